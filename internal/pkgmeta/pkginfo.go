package pkgmeta

import (
	"io"
	"strconv"

	"github.com/archlinux/repod"
)

// Package types recognized by PkgInfo schema 2.
const (
	PkgTypePkg   = "pkg"
	PkgTypeSplit = "split"
	PkgTypeDebug = "debug"
	PkgTypeSrc   = "src"
)

// PkgInfo is the parsed .PKGINFO of one package. Schema 1 is the classic
// format; schema 2 adds the pkgtype discriminant.
type PkgInfo struct {
	Schema int

	Pkgname   string
	Pkgbase   string
	Version   repod.Version // the pkgver field: [epoch:]pkgver-pkgrel
	Pkgdesc   string
	URL       string
	Builddate int64
	Packager  string
	Size      int64 // installed size in bytes
	Arch      string
	License   []string

	// pkgtype, schema 2 only: pkg, split, debug or src.
	PkgType string

	Groups       []string
	Replaces     []string
	Conflicts    []string
	Provides     []string
	Depends      []string
	OptDepends   []string
	MakeDepends  []string
	CheckDepends []string
	Backup       []string

	// Extra holds unknown keys verbatim, in input order per key.
	Extra map[string][]string
}

var pkgInfoKnownKeys = map[string]bool{
	"pkgname": true, "pkgbase": true, "pkgver": true, "pkgdesc": true,
	"url": true, "builddate": true, "packager": true, "size": true,
	"arch": true, "license": true, "pkgtype": true, "group": true,
	"replaces": true, "conflict": true, "provides": true, "depend": true,
	"optdepend": true, "makedepend": true, "checkdepend": true, "backup": true,
}

// ParsePkgInfo parses a .PKGINFO document. The schema version is selected
// by the presence of the pkgtype key.
func ParsePkgInfo(r io.Reader) (*PkgInfo, error) {
	fields, err := scanFields(r)
	if err != nil {
		return nil, err
	}
	m := groupFields(fields)

	info := &PkgInfo{Schema: 1}
	if _, ok := m["pkgtype"]; ok {
		info.Schema = 2
	}

	for _, key := range []string{"pkgname", "pkgbase", "pkgver", "pkgdesc", "url", "builddate", "packager", "size", "arch", "license"} {
		if _, err := m.required(key); err != nil {
			return nil, err
		}
	}

	if info.Pkgname, err = m.required("pkgname"); err != nil {
		return nil, err
	}
	if info.Pkgbase, err = m.required("pkgbase"); err != nil {
		return nil, err
	}
	verStr, err := m.required("pkgver")
	if err != nil {
		return nil, err
	}
	ver, err := repod.ParseVersion(verStr)
	if err != nil {
		return nil, &SchemaViolationError{Field: "pkgver", Msg: err.Error()}
	}
	if ver.Pkgrel == "" {
		return nil, &SchemaViolationError{Field: "pkgver", Msg: "must include a pkgrel"}
	}
	info.Version = ver
	if info.Pkgdesc, err = m.required("pkgdesc"); err != nil {
		return nil, err
	}
	if info.URL, err = m.required("url"); err != nil {
		return nil, err
	}
	if info.Builddate, err = parseInt(m, "builddate"); err != nil {
		return nil, err
	}
	if info.Packager, err = m.required("packager"); err != nil {
		return nil, err
	}
	if info.Size, err = parseInt(m, "size"); err != nil {
		return nil, err
	}
	if info.Arch, err = m.required("arch"); err != nil {
		return nil, err
	}
	if !repod.ValidArchitecture(info.Arch) {
		return nil, &SchemaViolationError{Field: "arch", Msg: "unknown architecture " + strconv.Quote(info.Arch)}
	}
	info.License = m["license"]

	if info.Schema >= 2 {
		pkgType, err := m.required("pkgtype")
		if err != nil {
			return nil, err
		}
		switch pkgType {
		case PkgTypePkg, PkgTypeSplit, PkgTypeDebug, PkgTypeSrc:
			info.PkgType = pkgType
		default:
			return nil, &SchemaViolationError{Field: "pkgtype", Msg: "must be one of pkg, split, debug, src"}
		}
	}

	info.Groups = m["group"]
	info.Replaces = m["replaces"]
	info.Conflicts = m["conflict"]
	info.Provides = m["provides"]
	info.Depends = m["depend"]
	info.OptDepends = m["optdepend"]
	info.MakeDepends = m["makedepend"]
	info.CheckDepends = m["checkdepend"]
	info.Backup = m["backup"]

	for key, vals := range m {
		if pkgInfoKnownKeys[key] {
			continue
		}
		if info.Extra == nil {
			info.Extra = make(map[string][]string)
		}
		info.Extra[key] = vals
	}
	return info, nil
}

func parseInt(m fieldMap, key string) (int64, error) {
	val, err := m.required(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil || n < 0 {
		return 0, &SchemaViolationError{Field: key, Msg: "must be a non-negative integer"}
	}
	return n, nil
}
