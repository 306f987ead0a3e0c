package engine

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/archlinux/repod"
	"github.com/archlinux/repod/internal/descriptor"
	"github.com/archlinux/repod/internal/inspect"
	"github.com/archlinux/repod/internal/pkgmeta"
	"github.com/archlinux/repod/internal/pool"
	"github.com/archlinux/repod/internal/sigverify"
)

// candidate is one inspected input archive.
type candidate struct {
	path    string // staged copy
	sigPath string // staged signature, "" when unsigned
	insp    *inspect.Inspection
	pkg     descriptor.Package
}

// batch is all candidates of one pkgbase destined for one layer.
type batch struct {
	pkgbase string
	layer   string
	members []*candidate
	base    *descriptor.PackageBase
}

// Add ingests the given package archives into a layer of the repository.
// The whole batch is validated before anything is placed; any failure
// rolls back every filesystem change.
func (e *Engine) Add(ctx context.Context, layer string, paths []string) error {
	layer, err := e.ResolveLayer(layer)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no packages given")
	}
	return e.run(ctx, func(t *txn) error {
		// Staged: copy inputs (and their signatures) into a transactional
		// staging directory so the operation is isolated from changes to
		// the input files.
		staging, err := os.MkdirTemp(e.Cfg.ManagementRepo.Directory, ".staging-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(staging)
		candidates, err := e.stage(ctx, staging, paths)
		if err != nil {
			return err
		}

		// Validated: pkgbase coherence, monotonicity, build requirements,
		// signatures.
		batches, err := e.groupByPkgbase(layer, candidates)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if err := e.checkMonotonicity(b); err != nil {
				return err
			}
			if err := e.checkNameConflicts(b); err != nil {
				return err
			}
		}
		if e.Cfg.BuildRequirementsExist {
			if err := e.checkBuildRequirements(batches); err != nil {
				return err
			}
		}
		for _, c := range candidates {
			if err := e.Verifier.Verify(ctx, c.path, c.sigPath); err != nil {
				return err
			}
		}

		// Applied: pool placement and symlinks for every member.
		poolDir := e.Cfg.PoolDir(e.Repo)
		for _, b := range batches {
			layerDir := e.Cfg.LayerDir(e.Repo, b.layer)
			for _, c := range b.members {
				poolPath, undo, err := pool.Place(c.path, poolDir)
				if err != nil {
					return err
				}
				t.add(undo)
				if _, undo, err = pool.Link(poolPath, layerDir); err != nil {
					return err
				}
				t.add(undo)
				if c.sigPath != "" {
					sigPool, undo, err := pool.Place(c.sigPath, poolDir)
					if err != nil {
						return err
					}
					t.add(undo)
					if _, undo, err = pool.Link(sigPool, layerDir); err != nil {
						return err
					}
					t.add(undo)
				}
			}
		}

		// Published: descriptors persisted, sync databases regenerated.
		layers := make(map[string]bool)
		for _, b := range batches {
			if err := e.writeDescriptor(t, b.layer, b.base); err != nil {
				return err
			}
			layers[b.layer] = true
		}
		for _, l := range sortedKeys(layers) {
			if err := e.publish(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// stage copies the inputs into the staging directory and inspects them in
// parallel.
func (e *Engine) stage(ctx context.Context, staging string, paths []string) ([]*candidate, error) {
	candidates := make([]*candidate, len(paths))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		eg.Go(func() error {
			staged := filepath.Join(staging, filepath.Base(path))
			if err := copyFile(path, staged); err != nil {
				return err
			}
			c := &candidate{path: staged}
			if sig := sigverify.Locate(path); sig != "" {
				c.sigPath = staged + repod.SigSuffix
				if err := copyFile(sig, c.sigPath); err != nil {
					return err
				}
			}
			insp, err := inspect.File(ctx, staged)
			if err != nil {
				return err
			}
			c.insp = insp
			if insp.Tier == inspect.TierDegraded {
				log.Printf("%s: no .BUILDINFO/.MTREE, accepting with degraded metadata", filepath.Base(path))
			}
			pkg, err := packageFromInspection(filepath.Base(path), insp, c.sigPath)
			if err != nil {
				return err
			}
			c.pkg = pkg
			candidates[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return candidates, nil
}

// packageFromInspection builds the descriptor record of one archive,
// cross-checking the filename against the embedded metadata.
func packageFromInspection(filename string, insp *inspect.Inspection, sigPath string) (descriptor.Package, error) {
	var pkg descriptor.Package
	pf, err := repod.ParseFilename(filename)
	if err != nil {
		return pkg, err
	}
	info := insp.PkgInfo
	if pf.Name != info.Pkgname || pf.Version != info.Version || pf.Arch != info.Arch {
		return pkg, fmt.Errorf("%s: filename disagrees with .PKGINFO (%s %s %s)",
			filename, info.Pkgname, info.Version, info.Arch)
	}
	pkg = descriptor.Package{
		Arch:        info.Arch,
		Backup:      info.Backup,
		Checksums:   descriptor.Checksums{MD5: insp.MD5Sum, SHA256: insp.SHA256Sum},
		Conflicts:   info.Conflicts,
		CSize:       insp.CSize,
		Depends:     info.Depends,
		Description: info.Pkgdesc,
		Filename:    filename,
		Files:       insp.Files,
		Groups:      info.Groups,
		ISize:       info.Size,
		Licenses:    info.License,
		Name:        info.Pkgname,
		OptDepends:  info.OptDepends,
		Provides:    info.Provides,
		Replaces:    info.Replaces,
		URL:         info.URL,
		Version:     info.Version,
	}
	if sigPath != "" {
		sig, err := os.ReadFile(sigPath)
		if err != nil {
			return pkg, err
		}
		pkg.PGPSig = base64.StdEncoding.EncodeToString(sig)
	}
	return pkg, nil
}

// groupByPkgbase partitions the candidates into per-pkgbase batches and
// routes debug packages to the layer's parallel debug series.
func (e *Engine) groupByPkgbase(layer string, candidates []*candidate) ([]*batch, error) {
	byKey := make(map[string]*batch)
	var order []string
	for _, c := range candidates {
		info := c.insp.PkgInfo
		target := layer
		if info.PkgType == pkgmeta.PkgTypeDebug {
			debug := e.Repo.DebugLayerFor(layer)
			if debug == "" {
				return nil, fmt.Errorf("%s is a debug package but repository %s has no debug layer for %s",
					info.Pkgname, e.Repo.Name, layer)
			}
			target = debug
		}
		key := info.Pkgbase + "\x00" + target
		b, ok := byKey[key]
		if !ok {
			b = &batch{pkgbase: info.Pkgbase, layer: target}
			byKey[key] = b
			order = append(order, key)
		}
		b.members = append(b.members, c)
	}

	batches := make([]*batch, 0, len(byKey))
	for _, key := range order {
		b := byKey[key]
		if err := e.mergeBatch(b); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// mergeBatch folds the members of one batch into a descriptor document,
// enforcing the pkgbase invariants.
func (e *Engine) mergeBatch(b *batch) error {
	first := b.members[0].insp
	common := descriptor.Common{
		Pkgbase:      b.pkgbase,
		Version:      first.PkgInfo.Version,
		Packager:     first.PkgInfo.Packager,
		Builddate:    first.PkgInfo.Builddate,
		MakeDepends:  first.PkgInfo.MakeDepends,
		CheckDepends: first.PkgInfo.CheckDepends,
	}
	if bi := first.BuildInfo; bi != nil {
		common.BuildInfo = &descriptor.BuildInfo{
			BuildDir:          bi.Builddir,
			BuildEnv:          bi.BuildEnv,
			BuildTool:         bi.BuildTool,
			BuildToolVer:      bi.BuildToolVer,
			Format:            bi.Format,
			Installed:         bi.Installed,
			Options:           bi.Options,
			PkgbuildSHA256Sum: bi.PkgbuildSHA256Sum,
			StartDir:          bi.StartDir,
		}
	}
	pkgs := make([]descriptor.Package, 0, len(b.members))
	for _, c := range b.members {
		info := c.insp.PkgInfo
		if info.Packager != common.Packager {
			return &descriptor.InconsistentError{Pkgbase: b.pkgbase, Field: "packager", A: common.Packager, B: info.Packager}
		}
		if info.Builddate != common.Builddate {
			return &descriptor.InconsistentError{
				Pkgbase: b.pkgbase, Field: "builddate",
				A: fmt.Sprint(common.Builddate), B: fmt.Sprint(info.Builddate),
			}
		}
		pkgs = append(pkgs, c.pkg)
	}
	pb, err := descriptor.New(common, pkgs)
	if err != nil {
		return err
	}
	b.base = pb
	return nil
}

// checkMonotonicity enforces the version rules of the target layer: the
// candidate must be strictly newer than what the same layer publishes,
// and must not regress past the stable layer.
func (e *Engine) checkMonotonicity(b *batch) error {
	if e.Force {
		return nil
	}
	existing, err := e.loadDescriptor(b.layer, b.pkgbase)
	if err != nil {
		return err
	}
	if existing != nil && !b.base.Version.Newer(existing.Version) {
		return &VersionRegressionError{Pkgbase: b.pkgbase, Layer: b.layer, Old: existing.Version, New: b.base.Version}
	}
	// Staging and testing may regress relative to each other, but never
	// past what stable publishes.
	if e.stabilityRank(b.layer) == 2 {
		return nil
	}
	for _, sibling := range e.Repo.LayerNames() {
		if sibling == b.layer || e.stabilityRank(sibling) != 2 {
			continue
		}
		published, err := e.loadDescriptor(sibling, b.pkgbase)
		if err != nil {
			return err
		}
		if published != nil && b.base.Version.Older(published.Version) {
			return &VersionRegressionError{Pkgbase: b.pkgbase, Layer: sibling, Old: published.Version, New: b.base.Version}
		}
	}
	return nil
}

// checkNameConflicts rejects member names already owned by a different
// pkgbase in the target layer.
func (e *Engine) checkNameConflicts(b *batch) error {
	bases, err := e.loadLayer(b.layer)
	if err != nil {
		return err
	}
	for _, pb := range bases {
		if pb.Pkgbase == b.pkgbase {
			continue
		}
		for _, pkg := range pb.Packages {
			for _, member := range b.base.Packages {
				if pkg.Name == member.Name {
					return &NameConflictError{Name: member.Name, Layer: b.layer, Pkgbase: pb.Pkgbase}
				}
			}
		}
	}
	return nil
}

// checkBuildRequirements validates every depends/makedepends/checkdepends
// constraint of the batches against (a) the batch itself, (b) every layer
// of the repository, and (c) the archiving directory if configured. A
// configured but absent archiving directory fails closed.
func (e *Engine) checkBuildRequirements(batches []*batch) error {
	var providers []repod.Provider
	for _, b := range batches {
		providers = append(providers, b.base.ProvidersOf()...)
	}
	for _, layer := range e.Repo.LayerNames() {
		bases, err := e.loadLayer(layer)
		if err != nil {
			return err
		}
		for _, pb := range bases {
			providers = append(providers, pb.ProvidersOf()...)
		}
	}
	if dir := e.Repo.Archiving; dir != "" {
		archived, err := archiveProviders(dir)
		if err != nil {
			return err
		}
		providers = append(providers, archived...)
	}

	for _, b := range batches {
		var constraints []string
		constraints = append(constraints, b.base.MakeDepends...)
		constraints = append(constraints, b.base.CheckDepends...)
		for _, pkg := range b.base.Packages {
			constraints = append(constraints, pkg.Depends...)
		}
		for _, raw := range constraints {
			c, err := repod.ParseConstraint(raw)
			if err != nil {
				return err
			}
			if !c.SatisfiedByProvider(providers) {
				return &MissingBuildRequirementError{Pkgbase: b.pkgbase, Constraint: raw}
			}
		}
	}
	return nil
}

// archiveProviders derives providers from the package filenames in an
// archive directory.
func archiveProviders(dir string) ([]repod.Provider, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		// An archiving directory that is configured but unreadable must
		// not silently satisfy nothing; the check fails closed.
		return nil, xerrors.Errorf("archiving directory: %w", err)
	}
	var providers []repod.Provider
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		pf, err := repod.ParseFilename(entry.Name())
		if err != nil {
			continue
		}
		providers = append(providers, repod.Provider{Name: pf.Name, Version: pf.Version})
	}
	return providers, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
