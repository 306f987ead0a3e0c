// Package syncdb reads and writes pacman sync databases: a compressed tar
// of one directory per package, each holding a desc record and, in the
// files variant, a files record. Writing is deterministic so that
// identical repository state yields byte-identical databases.
package syncdb

import (
	"fmt"

	"github.com/archlinux/repod/internal/compress"
	"github.com/archlinux/repod/internal/descriptor"
)

// Desc schema versions. V1 carries %PGPSIG%, V2 omits it.
const (
	DescV1 = 1
	DescV2 = 2

	FilesV1 = 1
)

// Options selects the schema versions and compression of a database.
type Options struct {
	DescVersion  int
	FilesVersion int
	Compression  compress.Algorithm

	// IncludeFiles selects the files variant (<layer>.files) which carries
	// a files record per package in addition to desc.
	IncludeFiles bool
}

func (o Options) validate() error {
	if o.DescVersion != DescV1 && o.DescVersion != DescV2 {
		return fmt.Errorf("unsupported desc version %d", o.DescVersion)
	}
	if o.IncludeFiles && o.FilesVersion != FilesV1 {
		return fmt.Errorf("unsupported files version %d", o.FilesVersion)
	}
	return nil
}

// Record is the per-package unit of a sync database: the package fields
// plus the package-base common fields that desc carries inline.
type Record struct {
	Pkgbase      string
	Builddate    int64
	Packager     string
	MakeDepends  []string
	CheckDepends []string

	Package descriptor.Package

	// Unknown preserves blocks with keys this schema does not define, in
	// input order. They are re-emitted unless the target schema version
	// excludes them.
	Unknown []UnknownBlock
}

// UnknownBlock is a retained %KEY% block with its value lines.
type UnknownBlock struct {
	Key    string
	Values []string
}

// DirName returns the package's tar directory, <name>-<version>.
func (r *Record) DirName() string {
	return r.Package.Name + "-" + r.Package.Version.String()
}

// RecordsFromBase explodes a descriptor document into per-package sync-db
// records.
func RecordsFromBase(pb *descriptor.PackageBase) []Record {
	records := make([]Record, 0, len(pb.Packages))
	for _, pkg := range pb.Packages {
		records = append(records, Record{
			Pkgbase:      pb.Pkgbase,
			Builddate:    pb.Builddate,
			Packager:     pb.Packager,
			MakeDepends:  pb.MakeDepends,
			CheckDepends: pb.CheckDepends,
			Package:      pkg,
		})
	}
	return records
}
