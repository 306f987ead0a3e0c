// Package repodtest builds synthetic package archives for tests.
package repodtest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Package describes the synthetic package to build.
type Package struct {
	Name      string
	Base      string
	Version   string // [epoch:]pkgver-pkgrel
	Arch      string
	Desc      string
	Depends   []string
	Provides  []string
	MakeDeps  []string
	CheckDeps []string
	PkgType   string // adds a schema 2 .PKGINFO when set

	// Payload maps file paths to contents. A trailing slash marks a
	// directory.
	Payload map[string]string

	// OmitBuildInfo drops the .BUILDINFO member (degraded tier).
	OmitBuildInfo bool
	// OmitMTree drops the .MTREE member (degraded tier).
	OmitMTree bool
}

func (p *Package) defaults() {
	if p.Base == "" {
		p.Base = p.Name
	}
	if p.Arch == "" {
		p.Arch = "any"
	}
	if p.Desc == "" {
		p.Desc = "test package " + p.Name
	}
	if p.Payload == nil {
		p.Payload = map[string]string{
			"usr/":              "",
			"usr/bin/":          "",
			"usr/bin/" + p.Name: "#!/bin/sh\n",
		}
	}
}

// Filename returns the archive filename the package will be written as.
func (p *Package) Filename() string {
	return fmt.Sprintf("%s-%s-%s.pkg.tar.zst", p.Name, p.Version, p.Arch)
}

func (p *Package) pkgInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pkgname = %s\n", p.Name)
	fmt.Fprintf(&b, "pkgbase = %s\n", p.Base)
	fmt.Fprintf(&b, "pkgver = %s\n", p.Version)
	fmt.Fprintf(&b, "pkgdesc = %s\n", p.Desc)
	fmt.Fprintf(&b, "url = https://example.org/%s\n", p.Base)
	fmt.Fprintf(&b, "builddate = 1673804735\n")
	fmt.Fprintf(&b, "packager = Test Packager <test@example.org>\n")
	fmt.Fprintf(&b, "size = 4096\n")
	fmt.Fprintf(&b, "arch = %s\n", p.Arch)
	fmt.Fprintf(&b, "license = GPL\n")
	if p.PkgType != "" {
		fmt.Fprintf(&b, "pkgtype = %s\n", p.PkgType)
	}
	for _, d := range p.Depends {
		fmt.Fprintf(&b, "depend = %s\n", d)
	}
	for _, d := range p.Provides {
		fmt.Fprintf(&b, "provides = %s\n", d)
	}
	for _, d := range p.MakeDeps {
		fmt.Fprintf(&b, "makedepend = %s\n", d)
	}
	for _, d := range p.CheckDeps {
		fmt.Fprintf(&b, "checkdepend = %s\n", d)
	}
	return b.String()
}

func (p *Package) buildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "format = 2\n")
	fmt.Fprintf(&b, "pkgname = %s\n", p.Name)
	fmt.Fprintf(&b, "pkgbase = %s\n", p.Base)
	fmt.Fprintf(&b, "pkgver = %s\n", p.Version)
	fmt.Fprintf(&b, "pkgarch = %s\n", p.Arch)
	fmt.Fprintf(&b, "pkgbuild_sha256sum = b5bb9d8014a0f9b1d61e21e796d78dccdf1352f23cd32812f4850b878ae4944c\n")
	fmt.Fprintf(&b, "packager = Test Packager <test@example.org>\n")
	fmt.Fprintf(&b, "builddate = 1673804735\n")
	fmt.Fprintf(&b, "builddir = /build\n")
	fmt.Fprintf(&b, "buildtool = devtools\n")
	fmt.Fprintf(&b, "buildtoolver = 1:20220621-1-any\n")
	fmt.Fprintf(&b, "buildenv = color\n")
	fmt.Fprintf(&b, "options = !strip\n")
	fmt.Fprintf(&b, "installed = glibc-2.36-6-x86_64\n")
	return b.String()
}

func (p *Package) mtree() []byte {
	var b strings.Builder
	b.WriteString("#mtree\n/set type=file uid=0 gid=0 mode=644 time=1673804735.0\n")
	fmt.Fprintf(&b, "./.PKGINFO size=%d\n", len(p.pkgInfo()))
	var paths []string
	for path := range p.Payload {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		content := p.Payload[path]
		if strings.HasSuffix(path, "/") {
			fmt.Fprintf(&b, "./%s type=dir mode=755\n", strings.TrimSuffix(path, "/"))
		} else {
			fmt.Fprintf(&b, "./%s mode=755 size=%d\n", path, len(content))
		}
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte(b.String()))
	gz.Close()
	return buf.Bytes()
}

// Write builds the archive in dir and returns its path.
func (p *Package) Write(t *testing.T, dir string) string {
	t.Helper()
	p.defaults()

	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	mtime := time.Unix(1673804735, 0)
	writeFile := func(name string, content []byte, mode int64) {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(content)), Mode: mode, ModTime: mtime}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(content); err != nil {
			t.Fatal(err)
		}
	}

	writeFile(".PKGINFO", []byte(p.pkgInfo()), 0644)
	if !p.OmitBuildInfo {
		writeFile(".BUILDINFO", []byte(p.buildInfo()), 0644)
	}
	if !p.OmitMTree {
		writeFile(".MTREE", p.mtree(), 0644)
	}

	// Deterministic payload order keeps inspections reproducible.
	var paths []string
	for path := range p.Payload {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if strings.HasSuffix(path, "/") {
			if err := tw.WriteHeader(&tar.Header{Name: path, Typeflag: tar.TypeDir, Mode: 0755, ModTime: mtime}); err != nil {
				t.Fatal(err)
			}
			continue
		}
		writeFile(path, []byte(p.Payload[path]), 0755)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, p.Filename())
	if err := os.WriteFile(path, out.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// WriteSig writes a dummy detached signature next to the archive at path.
func WriteSig(t *testing.T, path string) string {
	t.Helper()
	sig := path + ".sig"
	if err := os.WriteFile(sig, []byte("-----BEGIN PGP SIGNATURE-----\ntest\n-----END PGP SIGNATURE-----\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return sig
}
