// Package inspect opens a built package archive and extracts its embedded
// metadata: .PKGINFO (required), .BUILDINFO and .MTREE (optional), the
// payload file listing, and the archive digests, all in a single streaming
// pass.
package inspect

import (
	"archive/tar"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/archlinux/repod/internal/compress"
	"github.com/archlinux/repod/internal/pkgmeta"
)

// FormatError reports an archive that cannot be decompressed or read as
// tar.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: not a package archive: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MissingMetadataError reports an archive without a .PKGINFO member.
type MissingMetadataError struct {
	Path string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("%s: archive has no .PKGINFO member", e.Path)
}

// Tier describes how complete the archive's metadata is. Archives without
// .BUILDINFO or .MTREE are still accepted, at a downgraded tier.
type Tier int

const (
	// TierFull means .PKGINFO, .BUILDINFO and .MTREE were all present.
	TierFull Tier = iota
	// TierDegraded means .BUILDINFO or .MTREE was absent.
	TierDegraded
)

// Inspection is the validated result of reading one package archive.
type Inspection struct {
	PkgInfo   *pkgmeta.PkgInfo
	BuildInfo *pkgmeta.BuildInfo // nil when absent
	MTree     []pkgmeta.MTreeEntry

	Tier Tier

	// Files lists the payload entries: paths relative to the package root,
	// directories with a trailing slash, dot-metadata members excluded.
	Files []string

	// CSize is the size of the archive file in bytes; the digests are
	// computed over the same bytes.
	CSize     int64
	MD5Sum    string
	SHA256Sum string
}

const (
	pkgInfoMember   = ".PKGINFO"
	buildInfoMember = ".BUILDINFO"
	mtreeMember     = ".MTREE"
)

// File inspects the package archive at path.
func File(ctx context.Context, path string) (*Inspection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return read(ctx, f, path)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

func read(ctx context.Context, f io.Reader, path string) (*Inspection, error) {
	md5h := md5.New()
	sha256h := sha256.New()
	counter := &countingReader{r: io.TeeReader(f, io.MultiWriter(md5h, sha256h))}

	zr, err := compress.NewReader(counter)
	if err != nil {
		return nil, &FormatError{Path: path, Err: err}
	}
	defer zr.Close()

	insp := &Inspection{}
	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FormatError{Path: path, Err: err}
		}
		name := normalizeMemberName(hdr.Name)
		switch name {
		case pkgInfoMember:
			info, err := pkgmeta.ParsePkgInfo(tr)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, pkgInfoMember, err)
			}
			insp.PkgInfo = info
		case buildInfoMember:
			info, err := pkgmeta.ParseBuildInfo(tr)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, buildInfoMember, err)
			}
			insp.BuildInfo = info
		case mtreeMember:
			// .MTREE is stored gzip-compressed inside the archive.
			gz, err := pgzip.NewReader(tr)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, mtreeMember, err)
			}
			entries, err := pkgmeta.ParseMTree(gz)
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", path, mtreeMember, err)
			}
			insp.MTree = entries
		default:
			if name == "" || isMetadataMember(name) {
				continue
			}
			switch hdr.Typeflag {
			case tar.TypeDir:
				if name[len(name)-1] != '/' {
					name += "/"
				}
				insp.Files = append(insp.Files, name)
			case tar.TypeReg, tar.TypeSymlink, tar.TypeLink:
				insp.Files = append(insp.Files, name)
			}
		}
	}
	if insp.PkgInfo == nil {
		return nil, &MissingMetadataError{Path: path}
	}
	insp.Tier = TierFull
	if insp.BuildInfo == nil || insp.MTree == nil {
		insp.Tier = TierDegraded
	}

	// Drain any bytes the tar reader did not consume (zero padding) so
	// the digests cover the whole file.
	if _, err := io.Copy(io.Discard, counter); err != nil {
		return nil, err
	}
	insp.CSize = counter.n
	insp.MD5Sum = hex.EncodeToString(md5h.Sum(nil))
	insp.SHA256Sum = hex.EncodeToString(sha256h.Sum(nil))
	return insp, nil
}

// normalizeMemberName strips the leading ./ some tar writers record.
func normalizeMemberName(name string) string {
	if len(name) > 1 && name[0] == '.' && name[1] == '/' {
		name = name[2:]
	}
	return name
}

// isMetadataMember reports dot-members at the archive root (.PKGINFO,
// .INSTALL, .CHANGELOG, …) which are not payload.
func isMetadataMember(name string) bool {
	return name[0] == '.'
}
