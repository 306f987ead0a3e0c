package engine

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/archlinux/repod/internal/pool"
)

// Reconcile repairs the repository after a crash: the descriptors are
// authoritative, so missing layer symlinks are recreated, orphan symlinks
// are removed, and the sync databases are regenerated. With gc,
// unreferenced pool entries are collected too.
func (e *Engine) Reconcile(ctx context.Context, gc bool) error {
	return e.run(ctx, func(t *txn) error {
		for _, layer := range e.Repo.LayerNames() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.reconcileLayer(layer); err != nil {
				return err
			}
			if err := e.publish(layer); err != nil {
				return err
			}
		}
		if gc {
			removed, err := e.collectPool()
			if err != nil {
				return err
			}
			for _, basename := range removed {
				log.Printf("collected orphan pool entry %s", basename)
			}
		}
		return nil
	})
}

func (e *Engine) reconcileLayer(layer string) error {
	bases, err := e.loadLayer(layer)
	if err != nil {
		return err
	}
	layerDir := e.Cfg.LayerDir(e.Repo, layer)
	poolDir := e.Cfg.PoolDir(e.Repo)

	referenced := make(map[string]bool)
	for _, pb := range bases {
		for _, basename := range pb.FileBasenames() {
			referenced[basename] = true
			poolPath := filepath.Join(poolDir, basename)
			if _, err := os.Stat(poolPath); err != nil {
				return err // descriptor references a file the pool lost
			}
			if _, _, err := pool.Link(poolPath, layerDir); err != nil {
				return err
			}
		}
	}

	entries, err := os.ReadDir(layerDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		if referenced[name] || isDatabaseFile(layer, name) {
			continue
		}
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		log.Printf("removing orphan symlink %s", filepath.Join(layerDir, name))
		if err := os.Remove(filepath.Join(layerDir, name)); err != nil {
			return err
		}
	}
	return nil
}

// isDatabaseFile reports the sync database files and their convenience
// symlinks, which reconciliation must leave alone.
func isDatabaseFile(layer, name string) bool {
	return name == layer+".db" || name == layer+".files" ||
		strings.HasPrefix(name, layer+".db.tar") ||
		strings.HasPrefix(name, layer+".files.tar")
}
