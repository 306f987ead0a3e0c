// Package pool places package files into the shared content pool and
// maintains the symlinks through which repository layers reference them.
// Every mutating operation stages its write next to the target and renames
// into place, and returns an undo closure the engine composes into a
// rollback stack.
package pool

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
)

// UndoFunc reverts one completed operation. Undo closures run in reverse
// order of the operations they revert.
type UndoFunc func() error

// nopUndo is returned when an operation turned out to be a no-op.
func nopUndo() error { return nil }

// CollisionError reports an attempt to place a file whose basename already
// exists in the pool with different contents.
type CollisionError struct {
	Path     string
	Existing string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("pool collision: %s already exists with different contents (placing %s)", e.Existing, e.Path)
}

// LinkConflictError reports an existing symlink pointing somewhere else.
type LinkConflictError struct {
	Link   string
	Target string
	Want   string
}

func (e *LinkConflictError) Error() string {
	return fmt.Sprintf("link conflict: %s points at %s, want %s", e.Link, e.Target, e.Want)
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// fsyncDir makes a completed rename in dir durable.
func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return unix.Fsync(int(f.Fd()))
}

// Place copies src into poolDir under its basename. Placing identical
// contents twice is a no-op; differing contents are a CollisionError.
func Place(src, poolDir string) (poolPath string, undo UndoFunc, err error) {
	base := filepath.Base(src)
	poolPath = filepath.Join(poolDir, base)

	if _, err := os.Lstat(poolPath); err == nil {
		srcSum, err := sha256File(src)
		if err != nil {
			return "", nil, err
		}
		poolSum, err := sha256File(poolPath)
		if err != nil {
			return "", nil, err
		}
		if srcSum != poolSum {
			return "", nil, &CollisionError{Path: src, Existing: poolPath}
		}
		return poolPath, nopUndo, nil
	} else if !os.IsNotExist(err) {
		return "", nil, err
	}

	if err := os.MkdirAll(poolDir, 0755); err != nil {
		return "", nil, err
	}
	t, err := renameio.TempFile(poolDir, poolPath)
	if err != nil {
		return "", nil, err
	}
	defer t.Cleanup()
	in, err := os.Open(src)
	if err != nil {
		return "", nil, err
	}
	defer in.Close()
	if _, err := io.Copy(t, in); err != nil {
		return "", nil, err
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", nil, err
	}
	if err := fsyncDir(poolDir); err != nil {
		return "", nil, err
	}
	return poolPath, func() error {
		if err := os.Remove(poolPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}

// Link creates a relative symlink in layerDir pointing back at poolPath.
// An existing symlink to the same target is a no-op; to a different target
// it is a LinkConflictError.
func Link(poolPath, layerDir string) (linkPath string, undo UndoFunc, err error) {
	base := filepath.Base(poolPath)
	linkPath = filepath.Join(layerDir, base)
	target, err := filepath.Rel(layerDir, poolPath)
	if err != nil {
		return "", nil, err
	}

	if existing, err := os.Readlink(linkPath); err == nil {
		if existing == target {
			return linkPath, nopUndo, nil
		}
		return "", nil, &LinkConflictError{Link: linkPath, Target: existing, Want: target}
	} else if !os.IsNotExist(err) {
		if _, statErr := os.Lstat(linkPath); statErr == nil {
			return "", nil, &LinkConflictError{Link: linkPath, Target: "(not a symlink)", Want: target}
		}
		return "", nil, err
	}

	if err := os.MkdirAll(layerDir, 0755); err != nil {
		return "", nil, err
	}
	// Stage the symlink as a temporary sibling, then rename into place:
	// rename within one directory is atomic.
	tmp := filepath.Join(layerDir, ".tmp-"+base)
	if err := os.Remove(tmp); err != nil && !os.IsNotExist(err) {
		return "", nil, err
	}
	if err := os.Symlink(target, tmp); err != nil {
		return "", nil, err
	}
	if err := os.Rename(tmp, linkPath); err != nil {
		os.Remove(tmp)
		return "", nil, err
	}
	if err := fsyncDir(layerDir); err != nil {
		return "", nil, err
	}
	return linkPath, func() error {
		if err := os.Remove(linkPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}

// Unlink removes the named symlink from layerDir, leaving the pool entry
// alone. Removing an absent link is a no-op.
func Unlink(layerDir, filename string) (undo UndoFunc, err error) {
	linkPath := filepath.Join(layerDir, filename)
	target, err := os.Readlink(linkPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nopUndo, nil
		}
		return nil, err
	}
	if err := os.Remove(linkPath); err != nil {
		return nil, err
	}
	return func() error {
		if err := os.Symlink(target, linkPath); err != nil && !os.IsExist(err) {
			return err
		}
		return nil
	}, nil
}

// Collect removes pool entries whose basename is not in known. It returns
// the removed basenames, sorted.
func Collect(poolDir string, known map[string]bool) ([]string, error) {
	entries, err := os.ReadDir(poolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() || known[entry.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(poolDir, entry.Name())); err != nil {
			return removed, err
		}
		removed = append(removed, entry.Name())
	}
	sort.Strings(removed)
	return removed, nil
}
