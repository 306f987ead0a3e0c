package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/archlinux/repod/internal/pool"
)

// Move relocates package-bases from one layer to another, preserving the
// descriptor bytes and the pool entries; only the symlinks and sync
// databases change. Both layers belong to the same repository, so the
// single repository lock covers the whole transition.
func (e *Engine) Move(ctx context.Context, from, to string, pkgbases []string) error {
	from, err := e.ResolveLayer(from)
	if err != nil {
		return err
	}
	to, err = e.ResolveLayer(to)
	if err != nil {
		return err
	}
	if from == to {
		return fmt.Errorf("move source and target are both %q", from)
	}
	return e.run(ctx, func(t *txn) error {
		fromDir := e.Cfg.LayerDir(e.Repo, from)
		toDir := e.Cfg.LayerDir(e.Repo, to)
		poolDir := e.Cfg.PoolDir(e.Repo)

		for _, pkgbase := range pkgbases {
			if err := ctx.Err(); err != nil {
				return err
			}
			pb, err := e.loadDescriptor(from, pkgbase)
			if err != nil {
				return err
			}
			if pb == nil {
				return fmt.Errorf("pkgbase %s is not in %s", pkgbase, from)
			}

			// The target must not already publish the pkgbase or any of
			// its member names under a different base.
			if existing, err := e.loadDescriptor(to, pkgbase); err != nil {
				return err
			} else if existing != nil {
				return &NameConflictError{Name: pkgbase, Layer: to, Pkgbase: existing.Pkgbase}
			}
			moved := &batch{pkgbase: pkgbase, layer: to, base: pb}
			if err := e.checkNameConflicts(moved); err != nil {
				return err
			}
			if err := e.checkMonotonicity(moved); err != nil {
				return err
			}

			// Create target symlinks before touching the source, so a
			// rollback never observes a package with no links at all.
			for _, basename := range pb.FileBasenames() {
				poolPath := filepath.Join(poolDir, basename)
				if _, err := filepath.EvalSymlinks(poolPath); err != nil {
					return fmt.Errorf("pool entry for %s: %v", basename, err)
				}
				_, undo, err := pool.Link(poolPath, toDir)
				if err != nil {
					return err
				}
				t.add(undo)
			}
			if err := e.writeDescriptor(t, to, pb); err != nil {
				return err
			}
			for _, basename := range pb.FileBasenames() {
				undo, err := pool.Unlink(fromDir, basename)
				if err != nil {
					return err
				}
				t.add(undo)
			}
			if err := e.removeDescriptor(t, from, pkgbase); err != nil {
				return err
			}
		}

		if err := e.publish(from); err != nil {
			return err
		}
		return e.publish(to)
	})
}
