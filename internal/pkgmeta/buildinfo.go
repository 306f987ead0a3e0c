package pkgmeta

import (
	"io"
	"strconv"
	"strings"

	"github.com/archlinux/repod"
)

// BuildInfo is the parsed .BUILDINFO of one package. The format field
// selects the schema: 1 is the original layout, 2 adds the buildtool
// fields.
type BuildInfo struct {
	Format int

	Pkgname           string
	Pkgbase           string
	Version           repod.Version // the pkgver field
	Pkgarch           string
	PkgbuildSHA256Sum string
	Packager          string
	Builddate         int64
	Builddir          string
	StartDir          string
	BuildEnv          []string
	Options           []string
	Installed         []string

	// Format 2 only.
	BuildTool    string
	BuildToolVer string
}

// ParseBuildInfo parses a .BUILDINFO document, dispatching on its format
// field.
func ParseBuildInfo(r io.Reader) (*BuildInfo, error) {
	fields, err := scanFields(r)
	if err != nil {
		return nil, err
	}
	m := groupFields(fields)

	formatStr, err := m.required("format")
	if err != nil {
		return nil, err
	}
	format, err := strconv.Atoi(formatStr)
	if err != nil || format < 1 || format > 2 {
		return nil, &SchemaUnknownError{Format: formatStr}
	}

	info := &BuildInfo{Format: format}
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
	info.Version = ver
	if info.Pkgarch, err = m.required("pkgarch"); err != nil {
		return nil, err
	}
	if info.PkgbuildSHA256Sum, err = m.required("pkgbuild_sha256sum"); err != nil {
		return nil, err
	}
	if len(info.PkgbuildSHA256Sum) != 64 || !isHex(info.PkgbuildSHA256Sum) {
		return nil, &SchemaViolationError{Field: "pkgbuild_sha256sum", Msg: "must be a hex SHA-256 digest"}
	}
	if info.Packager, err = m.required("packager"); err != nil {
		return nil, err
	}
	if info.Builddate, err = parseInt(m, "builddate"); err != nil {
		return nil, err
	}
	if info.Builddir, err = m.required("builddir"); err != nil {
		return nil, err
	}
	if info.StartDir, err = m.single("startdir"); err != nil {
		return nil, err
	}
	info.BuildEnv = m["buildenv"]
	info.Options = m["options"]
	info.Installed = m["installed"]

	if format >= 2 {
		if info.BuildTool, err = m.required("buildtool"); err != nil {
			return nil, err
		}
		if info.BuildToolVer, err = m.required("buildtoolver"); err != nil {
			return nil, err
		}
		if info.BuildTool == "devtools" {
			if err := validateDevtoolsVer(info.BuildToolVer); err != nil {
				return nil, err
			}
		}
	}
	return info, nil
}

// validateDevtoolsVer checks the [epoch:]pkgver-pkgrel-arch shape the
// devtools buildtool stamps into buildtoolver.
func validateDevtoolsVer(s string) error {
	archIdx := strings.LastIndexByte(s, '-')
	if archIdx == -1 {
		return &SchemaViolationError{Field: "buildtoolver", Msg: "devtools requires [epoch:]pkgver-pkgrel-arch"}
	}
	arch := s[archIdx+1:]
	if !repod.ValidArchitecture(arch) {
		return &SchemaViolationError{Field: "buildtoolver", Msg: "unknown architecture " + strconv.Quote(arch)}
	}
	ver, err := repod.ParseVersion(s[:archIdx])
	if err != nil || ver.Pkgrel == "" {
		return &SchemaViolationError{Field: "buildtoolver", Msg: "devtools requires [epoch:]pkgver-pkgrel-arch"}
	}
	return nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
