package engine

import (
	"context"
	"os"
	"sort"

	"github.com/archlinux/repod/internal/pool"
)

// Remove drops the given package-bases from a layer: descriptors deleted,
// layer symlinks removed, sync databases regenerated. Already-absent
// pkgbases are tolerated as no-ops. With gc, unreferenced pool entries
// are collected afterwards.
func (e *Engine) Remove(ctx context.Context, layer string, pkgbases []string, gc bool) error {
	layer, err := e.ResolveLayer(layer)
	if err != nil {
		return err
	}
	return e.run(ctx, func(t *txn) error {
		layerDir := e.Cfg.LayerDir(e.Repo, layer)
		changed := false
		for _, pkgbase := range pkgbases {
			if err := ctx.Err(); err != nil {
				return err
			}
			pb, err := e.loadDescriptor(layer, pkgbase)
			if err != nil {
				return err
			}
			if pb == nil {
				continue // tolerated no-op
			}
			for _, basename := range pb.FileBasenames() {
				undo, err := pool.Unlink(layerDir, basename)
				if err != nil {
					return err
				}
				t.add(undo)
			}
			if err := e.removeDescriptor(t, layer, pkgbase); err != nil {
				return err
			}
			changed = true
		}
		if changed {
			if err := e.publish(layer); err != nil {
				return err
			}
		}
		if gc {
			if _, err := e.collectPool(); err != nil {
				return err
			}
		}
		return nil
	})
}

// knownBasenames returns the union of every layer's descriptor-referenced
// pool basenames. The pool may be shared between layers, so all of them
// count.
func (e *Engine) knownBasenames() (map[string]bool, error) {
	known := make(map[string]bool)
	for _, layer := range e.Repo.LayerNames() {
		bases, err := e.loadLayer(layer)
		if err != nil {
			return nil, err
		}
		for _, pb := range bases {
			for _, basename := range pb.FileBasenames() {
				known[basename] = true
			}
		}
	}
	return known, nil
}

// collectPool garbage-collects pool entries no descriptor of this
// repository references any more.
func (e *Engine) collectPool() ([]string, error) {
	known, err := e.knownBasenames()
	if err != nil {
		return nil, err
	}
	return pool.Collect(e.Cfg.PoolDir(e.Repo), known)
}

// Orphans returns the pool basenames Collect would remove, without
// removing anything.
func (e *Engine) Orphans(ctx context.Context) ([]string, error) {
	var orphans []string
	err := e.run(ctx, func(t *txn) error {
		known, err := e.knownBasenames()
		if err != nil {
			return err
		}
		entries, err := os.ReadDir(e.Cfg.PoolDir(e.Repo))
		if os.IsNotExist(err) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.IsDir() || known[entry.Name()] {
				continue
			}
			orphans = append(orphans, entry.Name())
		}
		sort.Strings(orphans)
		return nil
	})
	return orphans, err
}

// Collect runs pool garbage collection under the repository lock and
// returns the removed basenames.
func (e *Engine) Collect(ctx context.Context) ([]string, error) {
	var removed []string
	err := e.run(ctx, func(t *txn) error {
		var err error
		removed, err = e.collectPool()
		return err
	})
	return removed, err
}
