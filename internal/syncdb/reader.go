package syncdb

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/archlinux/repod"
	"github.com/archlinux/repod/internal/compress"
	"github.com/archlinux/repod/internal/descriptor"
)

// MalformedError reports a sync database that cannot be parsed. Any
// malformed block fails the whole read.
type MalformedError struct {
	Member string
	Msg    string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("sync database malformed: %s: %s", e.Member, e.Msg)
}

// Reader streams per-package records out of a sync database. It detects
// the database's compression from the stream and pairs each directory's
// desc and files members.
type Reader struct {
	zr io.ReadCloser
	tr *tar.Reader

	pending *Record // parsed, waiting for a possible files member
	done    bool
}

// NewReader starts reading a sync database from r.
func NewReader(r io.Reader) (*Reader, error) {
	zr, err := compress.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &Reader{zr: zr, tr: tar.NewReader(zr)}, nil
}

// Close releases the decompressor. It does not close the underlying
// stream.
func (r *Reader) Close() error { return r.zr.Close() }

// Next returns the next package record, or io.EOF after the last one.
func (r *Reader) Next() (*Record, error) {
	for {
		if r.done {
			return r.take()
		}
		hdr, err := r.tr.Next()
		if err == io.EOF {
			r.done = true
			continue
		}
		if err != nil {
			return nil, &MalformedError{Member: "(tar)", Msg: err.Error()}
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			continue
		case tar.TypeReg:
		default:
			continue
		}
		dir, member := splitMember(hdr.Name)
		switch member {
		case "desc":
			// A desc starts a new record; a previously pending one is
			// complete and handed out first.
			rec, err := parseDesc(r.tr, hdr.Name)
			if err != nil {
				return nil, err
			}
			if got := rec.DirName(); got != dir {
				return nil, &MalformedError{Member: hdr.Name, Msg: fmt.Sprintf("directory %q does not match package %q", dir, got)}
			}
			if prev := r.pending; prev != nil {
				r.pending = rec
				return prev, nil
			}
			r.pending = rec
		case "files":
			if r.pending == nil || r.pending.DirName() != dir {
				return nil, &MalformedError{Member: hdr.Name, Msg: "files member without matching desc"}
			}
			files, err := parseFiles(r.tr, hdr.Name)
			if err != nil {
				return nil, err
			}
			r.pending.Package.Files = files
		default:
			return nil, &MalformedError{Member: hdr.Name, Msg: "unexpected member"}
		}
	}
}

func (r *Reader) take() (*Record, error) {
	if r.pending == nil {
		return nil, io.EOF
	}
	rec := r.pending
	r.pending = nil
	return rec, nil
}

// ReadAll drains the reader.
func ReadAll(r io.Reader) ([]Record, error) {
	sr, err := NewReader(r)
	if err != nil {
		return nil, err
	}
	defer sr.Close()
	var records []Record
	for {
		rec, err := sr.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
}

func splitMember(name string) (dir, member string) {
	name = strings.TrimSuffix(name, "/")
	idx := strings.LastIndexByte(name, '/')
	if idx == -1 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// parseBlocks reads the %KEY% block structure shared by desc and files.
func parseBlocks(r io.Reader, member string) ([]UnknownBlock, error) {
	var blocks []UnknownBlock
	var current *UnknownBlock
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			current = nil
			continue
		}
		if strings.HasPrefix(line, "%") && strings.HasSuffix(line, "%") && len(line) > 2 {
			if current != nil {
				return nil, &MalformedError{Member: member, Msg: fmt.Sprintf("block %%%s%% not terminated by a blank line", current.Key)}
			}
			blocks = append(blocks, UnknownBlock{Key: line[1 : len(line)-1]})
			current = &blocks[len(blocks)-1]
			continue
		}
		if current == nil {
			return nil, &MalformedError{Member: member, Msg: fmt.Sprintf("value %q outside a block", line)}
		}
		current.Values = append(current.Values, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &MalformedError{Member: member, Msg: err.Error()}
	}
	return blocks, nil
}

func parseDesc(r io.Reader, member string) (*Record, error) {
	blocks, err := parseBlocks(r, member)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	pkg := &rec.Package
	single := func(b UnknownBlock) (string, error) {
		if len(b.Values) != 1 {
			return "", &MalformedError{Member: member, Msg: fmt.Sprintf("%%%s%% must have exactly one value", b.Key)}
		}
		return b.Values[0], nil
	}
	integer := func(b UnknownBlock) (int64, error) {
		v, err := single(b)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, &MalformedError{Member: member, Msg: fmt.Sprintf("%%%s%%: %v", b.Key, err)}
		}
		return n, nil
	}
	for _, b := range blocks {
		var err error
		switch b.Key {
		case "FILENAME":
			pkg.Filename, err = single(b)
		case "NAME":
			pkg.Name, err = single(b)
		case "BASE":
			rec.Pkgbase, err = single(b)
		case "VERSION":
			var v string
			if v, err = single(b); err == nil {
				pkg.Version, err = repod.ParseVersion(v)
				if err != nil {
					err = &MalformedError{Member: member, Msg: err.Error()}
				}
			}
		case "DESC":
			pkg.Description, err = single(b)
		case "GROUPS":
			pkg.Groups = b.Values
		case "CSIZE":
			pkg.CSize, err = integer(b)
		case "ISIZE":
			pkg.ISize, err = integer(b)
		case "MD5SUM":
			pkg.Checksums.MD5, err = single(b)
		case "SHA256SUM":
			pkg.Checksums.SHA256, err = single(b)
		case "PGPSIG":
			pkg.PGPSig, err = single(b)
		case "URL":
			pkg.URL, err = single(b)
		case "LICENSE":
			pkg.Licenses = b.Values
		case "ARCH":
			pkg.Arch, err = single(b)
		case "BUILDDATE":
			rec.Builddate, err = integer(b)
		case "PACKAGER":
			rec.Packager, err = single(b)
		case "REPLACES":
			pkg.Replaces = b.Values
		case "CONFLICTS":
			pkg.Conflicts = b.Values
		case "PROVIDES":
			pkg.Provides = b.Values
		case "DEPENDS":
			pkg.Depends = b.Values
		case "OPTDEPENDS":
			pkg.OptDepends = b.Values
		case "MAKEDEPENDS":
			rec.MakeDepends = b.Values
		case "CHECKDEPENDS":
			rec.CheckDepends = b.Values
		default:
			rec.Unknown = append(rec.Unknown, b)
		}
		if err != nil {
			return nil, err
		}
	}
	for _, required := range []string{pkg.Filename, pkg.Name, rec.Pkgbase} {
		if required == "" {
			return nil, &MalformedError{Member: member, Msg: "missing %FILENAME%, %NAME% or %BASE%"}
		}
	}
	if pkg.Version.IsZero() {
		return nil, &MalformedError{Member: member, Msg: "missing %VERSION%"}
	}
	return rec, nil
}

func parseFiles(r io.Reader, member string) ([]string, error) {
	blocks, err := parseBlocks(r, member)
	if err != nil {
		return nil, err
	}
	if len(blocks) != 1 || blocks[0].Key != "FILES" {
		return nil, &MalformedError{Member: member, Msg: "expected a single %FILES% block"}
	}
	return blocks[0].Values, nil
}

// BaseFromRecords regroups sync-db records by pkgbase into descriptor
// documents, the inverse of RecordsFromBase.
func BaseFromRecords(records []Record) ([]*descriptor.PackageBase, error) {
	byBase := make(map[string][]Record)
	var order []string
	for _, rec := range records {
		if _, ok := byBase[rec.Pkgbase]; !ok {
			order = append(order, rec.Pkgbase)
		}
		byBase[rec.Pkgbase] = append(byBase[rec.Pkgbase], rec)
	}
	var bases []*descriptor.PackageBase
	for _, name := range order {
		group := byBase[name]
		common := descriptor.Common{
			Pkgbase:      name,
			Version:      group[0].Package.Version,
			Packager:     group[0].Packager,
			Builddate:    group[0].Builddate,
			MakeDepends:  group[0].MakeDepends,
			CheckDepends: group[0].CheckDepends,
		}
		pkgs := make([]descriptor.Package, 0, len(group))
		for _, rec := range group {
			pkgs = append(pkgs, rec.Package)
		}
		pb, err := descriptor.New(common, pkgs)
		if err != nil {
			return nil, err
		}
		bases = append(bases, pb)
	}
	return bases, nil
}
