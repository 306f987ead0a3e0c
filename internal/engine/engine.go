// Package engine orchestrates repository state changes: adding, removing
// and moving package-bases across stability layers. All mutating
// operations run under the repository's advisory lock, accumulate undo
// closures, and roll back in reverse order on failure, so that a failed
// batch leaves the repository untouched.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/xerrors"

	"github.com/archlinux/repod"
	"github.com/archlinux/repod/internal/config"
	"github.com/archlinux/repod/internal/descriptor"
	"github.com/archlinux/repod/internal/pool"
	"github.com/archlinux/repod/internal/sigverify"
	"github.com/archlinux/repod/internal/syncdb"
)

// Engine mutates one configured repository (name, arch). It carries no
// state between operations; everything lives on disk.
type Engine struct {
	Cfg  *config.Config
	Repo *config.Repository

	Verifier sigverify.Verifier

	// Force disables version monotonicity checks.
	Force bool
}

// New builds an Engine for the repository, wiring the configured
// signature verifier.
func New(cfg *config.Config, repo *config.Repository) (*Engine, error) {
	verifier, err := sigverify.ForConfig(cfg.PackageVerification, cfg.Keyring)
	if err != nil {
		return nil, err
	}
	return &Engine{Cfg: cfg, Repo: repo, Verifier: verifier}, nil
}

// LockTimeoutError reports that the repository lock could not be acquired
// in time.
type LockTimeoutError struct {
	Path string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire repository lock %s", e.Path)
}

// VersionRegressionError reports an add or move that would lower the
// effective version of a pkgbase.
type VersionRegressionError struct {
	Pkgbase string
	Layer   string
	Old     repod.Version
	New     repod.Version
}

func (e *VersionRegressionError) Error() string {
	return fmt.Sprintf("version regression for %s in %s: %s -> %s", e.Pkgbase, e.Layer, e.Old, e.New)
}

// NameConflictError reports a package name already taken in the target
// layer by a different pkgbase.
type NameConflictError struct {
	Name    string
	Layer   string
	Pkgbase string
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("package %s already exists in %s (pkgbase %s)", e.Name, e.Layer, e.Pkgbase)
}

// MissingBuildRequirementError reports an unsatisfied build requirement.
type MissingBuildRequirementError struct {
	Pkgbase    string
	Constraint string
}

func (e *MissingBuildRequirementError) Error() string {
	return fmt.Sprintf("build requirement %s of %s is not satisfied", e.Constraint, e.Pkgbase)
}

// lock acquires the repository's exclusive advisory lock and returns its
// release function. With a zero lock timeout the acquisition fails fast.
func (e *Engine) lock(ctx context.Context) (func() error, error) {
	path := e.Cfg.LockPath(e.Repo)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	fl := flock.New(path)
	timeout := e.Cfg.LockTimeoutDuration()
	if timeout == 0 {
		ok, err := fl.TryLock()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &LockTimeoutError{Path: path}
		}
	} else {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ok, err := fl.TryLockContext(ctx, 100*time.Millisecond)
		if err != nil || !ok {
			return nil, &LockTimeoutError{Path: path}
		}
	}
	var released bool
	unlock := func() error {
		if released {
			return nil
		}
		released = true
		return fl.Unlock()
	}
	// Should the process exit without reaching the deferred release (a
	// command bailing out early), the lock still gets dropped.
	repod.RegisterAtExit(unlock)
	return unlock, nil
}

// txn is the undo stack of one operation. Undo closures run in reverse
// registration order.
type txn struct {
	undos []pool.UndoFunc
}

func (t *txn) add(undo pool.UndoFunc) {
	t.undos = append(t.undos, undo)
}

func (t *txn) rollback() error {
	var firstErr error
	for i := len(t.undos) - 1; i >= 0; i-- {
		if err := t.undos[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	t.undos = nil
	return firstErr
}

// run executes op under the repository lock and rolls the transaction
// back if op fails.
func (e *Engine) run(ctx context.Context, op func(t *txn) error) error {
	unlock, err := e.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	t := &txn{}
	if err := op(t); err != nil {
		if rbErr := t.rollback(); rbErr != nil {
			return xerrors.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}
	return nil
}

// ResolveLayer maps a layer argument to the repository's directory name.
// "stable" is accepted as an alias for the repository name.
func (e *Engine) ResolveLayer(layer string) (string, error) {
	if layer == "" || layer == "stable" {
		return e.Repo.StableLayer(), nil
	}
	for _, name := range e.Repo.LayerNames() {
		if name == layer {
			return name, nil
		}
	}
	return "", fmt.Errorf("repository %s has no layer %q", e.Repo.Name, layer)
}

// stabilityRank orders the non-debug layers; higher is more stable.
func (e *Engine) stabilityRank(layer string) int {
	switch layer {
	case e.Repo.Staging, e.Repo.StagingDebug:
		return 0
	case e.Repo.Testing, e.Repo.TestingDebug:
		return 1
	default:
		return 2 // stable and its debug series
	}
}

// descriptorPath is <management>/<repo>/<arch>/<layer>/<pkgbase>.json.
func (e *Engine) descriptorPath(layer, pkgbase string) string {
	return filepath.Join(e.Cfg.ManagementDir(e.Repo, layer), pkgbase+".json")
}

// loadDescriptor returns the descriptor of pkgbase in layer, or nil when
// the pkgbase is not present there.
func (e *Engine) loadDescriptor(layer, pkgbase string) (*descriptor.PackageBase, error) {
	pb, _, err := descriptor.Load(e.descriptorPath(layer, pkgbase))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pb, nil
}

// loadLayer returns all descriptors of a layer, sorted by pkgbase.
func (e *Engine) loadLayer(layer string) ([]*descriptor.PackageBase, error) {
	dir := e.Cfg.ManagementDir(e.Repo, layer)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var bases []*descriptor.PackageBase
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		pb, _, err := descriptor.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		bases = append(bases, pb)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].Pkgbase < bases[j].Pkgbase })
	return bases, nil
}

// writeDescriptor persists pb in layer and registers an undo restoring
// the previous contents (or absence).
func (e *Engine) writeDescriptor(t *txn, layer string, pb *descriptor.PackageBase) error {
	path := e.descriptorPath(layer, pb.Pkgbase)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	previous, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := pb.Write(path); err != nil {
		return err
	}
	t.add(func() error {
		if existed {
			return os.WriteFile(path, previous, 0644)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	return nil
}

// removeDescriptor drops pkgbase from layer and registers an undo
// restoring it.
func (e *Engine) removeDescriptor(t *txn, layer, pkgbase string) error {
	path := e.descriptorPath(layer, pkgbase)
	previous, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	t.add(func() error {
		return os.WriteFile(path, previous, 0644)
	})
	return nil
}

// publish regenerates the sync databases (db and files variants) of a
// layer from its descriptors. This is the final step of every operation;
// it is not undone (the descriptors are authoritative and a reconcile
// regenerates databases from them).
func (e *Engine) publish(layer string) error {
	bases, err := e.loadLayer(layer)
	if err != nil {
		return err
	}
	var records []syncdb.Record
	for _, pb := range bases {
		records = append(records, syncdb.RecordsFromBase(pb)...)
	}
	layerDir := e.Cfg.LayerDir(e.Repo, layer)
	if err := os.MkdirAll(layerDir, 0755); err != nil {
		return err
	}
	algo := e.Cfg.Compression()
	opts := syncdb.Options{
		DescVersion:  e.Cfg.SyncDBSettings.DescVersion,
		FilesVersion: e.Cfg.SyncDBSettings.FilesVersion,
		Compression:  algo,
	}
	dbPath := filepath.Join(layerDir, syncdb.Filename(layer, false, algo))
	if err := syncdb.WriteFile(dbPath, records, opts); err != nil {
		return xerrors.Errorf("writing %s: %w", dbPath, err)
	}
	opts.IncludeFiles = true
	filesPath := filepath.Join(layerDir, syncdb.Filename(layer, true, algo))
	if err := syncdb.WriteFile(filesPath, records, opts); err != nil {
		return xerrors.Errorf("writing %s: %w", filesPath, err)
	}
	return nil
}
