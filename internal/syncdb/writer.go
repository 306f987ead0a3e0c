package syncdb

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/google/renameio"

	"github.com/archlinux/repod/internal/compress"
)

// descKeys is the canonical emission order of desc blocks (the order
// repo-add writes them in).
var descKeys = []string{
	"FILENAME", "NAME", "BASE", "VERSION", "DESC", "GROUPS", "CSIZE",
	"ISIZE", "MD5SUM", "SHA256SUM", "PGPSIG", "URL", "LICENSE", "ARCH",
	"BUILDDATE", "PACKAGER", "REPLACES", "CONFLICTS", "PROVIDES",
	"DEPENDS", "OPTDEPENDS", "MAKEDEPENDS", "CHECKDEPENDS",
}

func (r *Record) descValues(descVersion int) map[string][]string {
	pkg := &r.Package
	m := map[string][]string{
		"FILENAME":     {pkg.Filename},
		"NAME":         {pkg.Name},
		"BASE":         {r.Pkgbase},
		"VERSION":      {pkg.Version.String()},
		"DESC":         {pkg.Description},
		"GROUPS":       pkg.Groups,
		"CSIZE":        {strconv.FormatInt(pkg.CSize, 10)},
		"ISIZE":        {strconv.FormatInt(pkg.ISize, 10)},
		"MD5SUM":       {pkg.Checksums.MD5},
		"SHA256SUM":    {pkg.Checksums.SHA256},
		"URL":          {pkg.URL},
		"LICENSE":      pkg.Licenses,
		"ARCH":         {pkg.Arch},
		"BUILDDATE":    {strconv.FormatInt(r.Builddate, 10)},
		"PACKAGER":     {r.Packager},
		"REPLACES":     pkg.Replaces,
		"CONFLICTS":    pkg.Conflicts,
		"PROVIDES":     pkg.Provides,
		"DEPENDS":      pkg.Depends,
		"OPTDEPENDS":   pkg.OptDepends,
		"MAKEDEPENDS":  r.MakeDepends,
		"CHECKDEPENDS": r.CheckDepends,
	}
	if descVersion == DescV1 && pkg.PGPSig != "" {
		m["PGPSIG"] = []string{pkg.PGPSig}
	}
	return m
}

func renderBlocks(buf *bytes.Buffer, keys []string, values map[string][]string, unknown []UnknownBlock) {
	first := true
	emit := func(key string, vals []string) {
		if len(vals) == 0 {
			return
		}
		if !first {
			buf.WriteByte('\n')
		}
		first = false
		buf.WriteByte('%')
		buf.WriteString(key)
		buf.WriteString("%\n")
		for _, v := range vals {
			buf.WriteString(v)
			buf.WriteByte('\n')
		}
	}
	for _, key := range keys {
		emit(key, values[key])
	}
	for _, ub := range unknown {
		emit(ub.Key, ub.Values)
	}
}

func (r *Record) renderDesc(descVersion int) []byte {
	var buf bytes.Buffer
	renderBlocks(&buf, descKeys, r.descValues(descVersion), r.Unknown)
	return buf.Bytes()
}

func (r *Record) renderFiles() []byte {
	var buf bytes.Buffer
	renderBlocks(&buf, []string{"FILES"}, map[string][]string{"FILES": r.Package.Files}, nil)
	return buf.Bytes()
}

// Write emits a sync database for the given records to w. Packages are
// sorted by name, desc precedes files within each directory, and all tar
// headers carry a zero mtime so identical state writes identical bytes.
func Write(w io.Writer, records []Record, opts Options) error {
	if err := opts.validate(); err != nil {
		return err
	}
	sorted := make([]*Record, len(records))
	for i := range records {
		sorted[i] = &records[i]
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Package.Name < sorted[j].Package.Name })

	zw, err := compress.NewWriter(w, opts.Compression)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	epoch := time.Unix(0, 0)
	writeMember := func(name string, content []byte) error {
		if err := tw.WriteHeader(&tar.Header{
			Name:    name,
			Mode:    0644,
			Size:    int64(len(content)),
			ModTime: epoch,
			Format:  tar.FormatPAX,
		}); err != nil {
			return err
		}
		_, err := tw.Write(content)
		return err
	}
	for _, rec := range sorted {
		dir := rec.DirName()
		if err := tw.WriteHeader(&tar.Header{
			Name:     dir + "/",
			Typeflag: tar.TypeDir,
			Mode:     0755,
			ModTime:  epoch,
			Format:   tar.FormatPAX,
		}); err != nil {
			return err
		}
		if err := writeMember(dir+"/desc", rec.renderDesc(opts.DescVersion)); err != nil {
			return err
		}
		if opts.IncludeFiles {
			if err := writeMember(dir+"/files", rec.renderFiles()); err != nil {
				return err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return zw.Close()
}

// WriteFile writes the database atomically at path and points the
// extensionless convenience symlink (e.g. stable.db -> stable.db.tar.gz)
// at it.
func WriteFile(path string, records []Record, opts Options) error {
	t, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if err := Write(t, records, opts); err != nil {
		return err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return pointSymlink(path)
}

// pointSymlink maintains <name>.db -> <name>.db.tar.<ext>.
func pointSymlink(path string) error {
	target := filepath.Base(path)
	link := path
	for ext := filepath.Ext(link); ext != ".db" && ext != ".files"; ext = filepath.Ext(link) {
		if ext == "" {
			return nil // nothing to link
		}
		link = link[:len(link)-len(ext)]
	}
	tmp := link + ".tmp"
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		return fmt.Errorf("linking %s: %v", link, err)
	}
	return nil
}

// Filename returns the database filename for a layer, e.g.
// stable.db.tar.gz or stable.files.tar.zst.
func Filename(layer string, files bool, algo compress.Algorithm) string {
	kind := ".db"
	if files {
		kind = ".files"
	}
	return layer + kind + ".tar" + algo.Ext()
}
