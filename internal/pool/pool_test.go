package pool

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "foo-1.0-1-any.pkg.tar.zst")
	poolDir := filepath.Join(dir, "pool")
	writeFile(t, src, "archive bytes")

	poolPath, undo, err := Place(src, poolDir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := poolPath, filepath.Join(poolDir, "foo-1.0-1-any.pkg.tar.zst"); got != want {
		t.Errorf("poolPath = %q, want %q", got, want)
	}
	b, err := os.ReadFile(poolPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "archive bytes" {
		t.Errorf("pool entry contents = %q", b)
	}

	// Placing the identical file again is a no-op.
	if _, _, err := Place(src, poolDir); err != nil {
		t.Errorf("idempotent Place failed: %v", err)
	}

	// Differing contents collide.
	src2 := filepath.Join(dir, "other", "foo-1.0-1-any.pkg.tar.zst")
	writeFile(t, src2, "different bytes")
	_, _, err = Place(src2, poolDir)
	var collision *CollisionError
	if !errors.As(err, &collision) {
		t.Errorf("expected CollisionError, got %v", err)
	}

	// Undo removes the entry.
	if err := undo(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(poolPath); !os.IsNotExist(err) {
		t.Errorf("undo did not remove the pool entry: %v", err)
	}
}

func TestLinkUnlink(t *testing.T) {
	dir := t.TempDir()
	poolDir := filepath.Join(dir, "pool", "package", "core")
	layerDir := filepath.Join(dir, "repo", "package", "core", "x86_64", "stable")
	poolPath := filepath.Join(poolDir, "foo-1.0-1-any.pkg.tar.zst")
	writeFile(t, poolPath, "archive bytes")

	linkPath, undo, err := Link(poolPath, layerDir)
	if err != nil {
		t.Fatal(err)
	}
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := target, "../../../../../pool/package/core/foo-1.0-1-any.pkg.tar.zst"; got != want {
		t.Errorf("link target = %q, want %q", got, want)
	}
	resolved, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		t.Fatal(err)
	}
	wantResolved, err := filepath.EvalSymlinks(poolPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != wantResolved {
		t.Errorf("link resolves to %q, want %q", resolved, wantResolved)
	}

	// Same target again: no-op.
	if _, _, err := Link(poolPath, layerDir); err != nil {
		t.Errorf("idempotent Link failed: %v", err)
	}

	// Different target: conflict.
	otherPool := filepath.Join(dir, "pool", "package", "extra", "foo-1.0-1-any.pkg.tar.zst")
	writeFile(t, otherPool, "archive bytes")
	_, _, err = Link(otherPool, layerDir)
	var conflict *LinkConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected LinkConflictError, got %v", err)
	}

	// Unlink leaves the pool entry alone.
	unlinkUndo, err := Unlink(layerDir, "foo-1.0-1-any.pkg.tar.zst")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(linkPath); !os.IsNotExist(err) {
		t.Error("Unlink did not remove the symlink")
	}
	if _, err := os.Stat(poolPath); err != nil {
		t.Errorf("Unlink touched the pool entry: %v", err)
	}

	// Unlink undo restores the symlink.
	if err := unlinkUndo(); err != nil {
		t.Fatal(err)
	}
	if restored, err := os.Readlink(linkPath); err != nil || restored != target {
		t.Errorf("undo restored %q, %v; want %q", restored, err, target)
	}

	// Link undo removes it again.
	if err := undo(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(linkPath); !os.IsNotExist(err) {
		t.Error("Link undo did not remove the symlink")
	}

	// Unlinking an absent file is a no-op.
	if _, err := Unlink(layerDir, "absent.pkg.tar.zst"); err != nil {
		t.Errorf("Unlink of absent link failed: %v", err)
	}
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep-1.0-1-any.pkg.tar.zst"), "a")
	writeFile(t, filepath.Join(dir, "drop-1.0-1-any.pkg.tar.zst"), "b")
	writeFile(t, filepath.Join(dir, "drop-1.0-1-any.pkg.tar.zst.sig"), "c")

	removed, err := Collect(dir, map[string]bool{"keep-1.0-1-any.pkg.tar.zst": true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"drop-1.0-1-any.pkg.tar.zst", "drop-1.0-1-any.pkg.tar.zst.sig"}
	if len(removed) != 2 || removed[0] != want[0] || removed[1] != want[1] {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep-1.0-1-any.pkg.tar.zst")); err != nil {
		t.Errorf("Collect removed a known entry: %v", err)
	}
}
