// Package descriptor implements the persisted unit of the management
// repository: one schema-versioned JSON document per package-base,
// containing the merged metadata of all packages built from that base.
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/archlinux/repod"
	"github.com/google/renameio"
)

// SchemaVersion is the current descriptor document schema.
const SchemaVersion = 1

// Checksums holds the archive digests of one package file.
type Checksums struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Package is the per-package record inside a PackageBase document. Field
// declaration order matches the alphabetical key order of the canonical
// JSON form.
type Package struct {
	Arch        string        `json:"arch"`
	Backup      []string      `json:"backup,omitempty"`
	Checksums   Checksums     `json:"checksums"`
	Conflicts   []string      `json:"conflicts,omitempty"`
	CSize       int64         `json:"csize"`
	Depends     []string      `json:"depends,omitempty"`
	Description string        `json:"description"`
	Filename    string        `json:"filename"`
	Files       []string      `json:"files,omitempty"`
	Groups      []string      `json:"groups,omitempty"`
	ISize       int64         `json:"isize"`
	Licenses    []string      `json:"license"`
	Name        string        `json:"name"`
	OptDepends  []string      `json:"optdepends,omitempty"`
	PGPSig      string        `json:"pgpsig,omitempty"`
	Provides    []string      `json:"provides,omitempty"`
	Replaces    []string      `json:"replaces,omitempty"`
	URL         string        `json:"url"`
	Version     repod.Version `json:"version"`
}

// BuildInfo is the build provenance summary persisted alongside a
// package-base when the archives carried a .BUILDINFO member.
type BuildInfo struct {
	BuildDir          string   `json:"builddir"`
	BuildEnv          []string `json:"buildenv,omitempty"`
	BuildTool         string   `json:"buildtool,omitempty"`
	BuildToolVer      string   `json:"buildtoolver,omitempty"`
	Format            int      `json:"format"`
	Installed         []string `json:"installed,omitempty"`
	Options           []string `json:"options,omitempty"`
	PkgbuildSHA256Sum string   `json:"pkgbuild_sha256sum"`
	StartDir          string   `json:"startdir,omitempty"`
}

// PackageBase is one descriptor document: the common fields of a
// package-base plus its member packages.
type PackageBase struct {
	Builddate     int64         `json:"builddate"`
	BuildInfo     *BuildInfo    `json:"buildinfo,omitempty"`
	CheckDepends  []string      `json:"checkdepends,omitempty"`
	MakeDepends   []string      `json:"makedepends,omitempty"`
	Packager      string        `json:"packager"`
	Packages      []Package     `json:"packages"`
	Pkgbase       string        `json:"pkgbase"`
	SchemaVersion int           `json:"schema_version"`
	Version       repod.Version `json:"version"`
}

// InconsistentError reports packages that claim the same pkgbase but
// disagree on a common field.
type InconsistentError struct {
	Pkgbase string
	Field   string
	A, B    string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("pkgbase %s: packages disagree on %s (%q vs %q)", e.Pkgbase, e.Field, e.A, e.B)
}

// Common carries the fields every member of a pkgbase must agree on.
type Common struct {
	Pkgbase      string
	Version      repod.Version
	Packager     string
	Builddate    int64
	MakeDepends  []string
	CheckDepends []string
	BuildInfo    *BuildInfo
}

// New merges per-package records into one PackageBase. Every package must
// agree with common on version; member names must be unique.
func New(common Common, pkgs []Package) (*PackageBase, error) {
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("pkgbase %s: no packages", common.Pkgbase)
	}
	seen := make(map[string]bool)
	for _, pkg := range pkgs {
		if seen[pkg.Name] {
			return nil, &InconsistentError{Pkgbase: common.Pkgbase, Field: "name", A: pkg.Name, B: pkg.Name}
		}
		seen[pkg.Name] = true
		if pkg.Version != common.Version {
			return nil, &InconsistentError{
				Pkgbase: common.Pkgbase,
				Field:   "version",
				A:       common.Version.String(),
				B:       pkg.Version.String(),
			}
		}
	}
	sorted := make([]Package, len(pkgs))
	copy(sorted, pkgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &PackageBase{
		Builddate:     common.Builddate,
		BuildInfo:     common.BuildInfo,
		CheckDepends:  common.CheckDepends,
		MakeDepends:   common.MakeDepends,
		Packager:      common.Packager,
		Packages:      sorted,
		Pkgbase:       common.Pkgbase,
		SchemaVersion: SchemaVersion,
		Version:       common.Version,
	}, nil
}

// MarshalCanonical renders the canonical on-disk form: UTF-8, two-space
// indentation, keys in sorted order (guaranteed by field declaration
// order), absent optionals omitted, exactly one trailing newline.
func (pb *PackageBase) MarshalCanonical() ([]byte, error) {
	b, err := json.MarshalIndent(pb, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Write persists the document atomically at path.
func (pb *PackageBase) Write(path string) error {
	b, err := pb.MarshalCanonical()
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0644)
}

// Load reads a descriptor document. Untagged legacy documents are assumed
// to be schema version 1; documents tagged with a newer schema are
// downgraded, reported through the second return value.
func Load(path string) (pb *PackageBase, downgraded bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var doc PackageBase
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, false, fmt.Errorf("%s: %v", path, err)
	}
	switch {
	case doc.SchemaVersion == 0:
		doc.SchemaVersion = SchemaVersion
	case doc.SchemaVersion > SchemaVersion:
		downgraded = true
		doc.SchemaVersion = SchemaVersion
	}
	if doc.Pkgbase == "" {
		return nil, false, fmt.Errorf("%s: missing pkgbase", path)
	}
	return &doc, downgraded, nil
}

// ProvidersOf returns everything the package-base's members can stand in
// for: each member name at the pkgbase version plus all provides entries.
func (pb *PackageBase) ProvidersOf() []repod.Provider {
	var providers []repod.Provider
	for _, pkg := range pb.Packages {
		providers = append(providers, repod.Provider{Name: pkg.Name, Version: pkg.Version})
		for _, prov := range pkg.Provides {
			p, err := repod.ParseProvide(prov)
			if err != nil {
				continue
			}
			providers = append(providers, p)
		}
	}
	return providers
}

// FileBasenames returns the pool basenames referenced by the descriptor:
// each member's archive filename and, when signed, its signature.
func (pb *PackageBase) FileBasenames() []string {
	var names []string
	for _, pkg := range pb.Packages {
		names = append(names, pkg.Filename)
		if pkg.PGPSig != "" {
			names = append(names, pkg.Filename+repod.SigSuffix)
		}
	}
	return names
}
