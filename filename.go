package repod

import (
	"fmt"
	"strings"
)

// PackageFilename is the parsed form of a package archive filename,
// e.g. linux-6.1.1-1-x86_64.pkg.tar.zst.
type PackageFilename struct {
	Name    string
	Version Version
	Arch    string

	// Ext is the compression suffix after .pkg.tar (e.g. "zst"), empty for
	// an uncompressed .pkg.tar.
	Ext string
}

const (
	pkgSuffix = ".pkg.tar"

	// SigSuffix is appended to a package filename to name its detached
	// signature.
	SigSuffix = ".sig"
)

// ParseFilename parses a package archive filename of the form
// <name>-[epoch:]<pkgver>-<pkgrel>-<arch>.pkg.tar[.<ext>]. A trailing .sig
// is rejected; use strings.TrimSuffix with SigSuffix first.
func ParseFilename(filename string) (PackageFilename, error) {
	var pf PackageFilename
	idx := strings.Index(filename, pkgSuffix)
	if idx == -1 {
		return pf, fmt.Errorf("%q is not a package filename (missing %s)", filename, pkgSuffix)
	}
	rest := filename[idx+len(pkgSuffix):]
	if rest != "" {
		if !strings.HasPrefix(rest, ".") || strings.HasSuffix(rest, SigSuffix) {
			return pf, fmt.Errorf("%q is not a package filename (trailing %q)", filename, rest)
		}
		pf.Ext = rest[1:]
	}

	stem := filename[:idx] // name-[epoch:]pkgver-pkgrel-arch
	archIdx := strings.LastIndexByte(stem, '-')
	if archIdx == -1 {
		return pf, fmt.Errorf("%q is not a package filename (no architecture)", filename)
	}
	pf.Arch = stem[archIdx+1:]
	if !ValidArchitecture(pf.Arch) {
		return pf, fmt.Errorf("%q: unknown architecture %q", filename, pf.Arch)
	}

	stem = stem[:archIdx] // name-[epoch:]pkgver-pkgrel
	relIdx := strings.LastIndexByte(stem, '-')
	if relIdx == -1 {
		return pf, fmt.Errorf("%q is not a package filename (no pkgrel)", filename)
	}
	verIdx := strings.LastIndexByte(stem[:relIdx], '-')
	if verIdx == -1 {
		return pf, fmt.Errorf("%q is not a package filename (no version)", filename)
	}
	ver, err := ParseVersion(stem[verIdx+1:])
	if err != nil {
		return pf, err
	}
	pf.Version = ver
	pf.Name = stem[:verIdx]
	if !validPkgname(pf.Name) {
		return pf, fmt.Errorf("%q: invalid package name %q", filename, pf.Name)
	}
	return pf, nil
}

func (pf PackageFilename) String() string {
	s := pf.Name + "-" + pf.Version.String() + "-" + pf.Arch + pkgSuffix
	if pf.Ext != "" {
		s += "." + pf.Ext
	}
	return s
}
