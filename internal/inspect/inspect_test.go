package inspect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/archlinux/repod/internal/repodtest"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	pkg := repodtest.Package{Name: "foo", Version: "1.0.0-1", Depends: []string{"glibc"}}
	path := pkg.Write(t, dir)

	insp, err := File(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := insp.PkgInfo.Pkgname, "foo"; got != want {
		t.Errorf("Pkgname = %q, want %q", got, want)
	}
	if got, want := insp.PkgInfo.Version.String(), "1.0.0-1"; got != want {
		t.Errorf("Version = %q, want %q", got, want)
	}
	if insp.BuildInfo == nil {
		t.Error("BuildInfo missing")
	}
	if len(insp.MTree) == 0 {
		t.Error("MTree missing")
	}
	if insp.Tier != TierFull {
		t.Errorf("Tier = %v, want TierFull", insp.Tier)
	}
	wantFiles := []string{"usr/", "usr/bin/", "usr/bin/foo"}
	if diff := cmp.Diff(wantFiles, insp.Files); diff != "" {
		t.Errorf("Files: diff (-want +got):\n%s", diff)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if insp.CSize != st.Size() {
		t.Errorf("CSize = %d, want %d", insp.CSize, st.Size())
	}
	if len(insp.SHA256Sum) != 64 || len(insp.MD5Sum) != 32 {
		t.Errorf("unexpected digest lengths: sha256 %d, md5 %d", len(insp.SHA256Sum), len(insp.MD5Sum))
	}
}

func TestFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	pkg := repodtest.Package{Name: "foo", Version: "1.0.0-1"}
	path := pkg.Write(t, dir)

	first, err := File(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := File(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("inspection is not deterministic: diff:\n%s", diff)
	}
}

func TestFileDegradedTier(t *testing.T) {
	dir := t.TempDir()
	pkg := repodtest.Package{Name: "foo", Version: "1.0.0-1", OmitBuildInfo: true, OmitMTree: true}
	path := pkg.Write(t, dir)

	insp, err := File(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if insp.Tier != TierDegraded {
		t.Errorf("Tier = %v, want TierDegraded", insp.Tier)
	}
}

func TestFileMissingMetadata(t *testing.T) {
	// A tar without .PKGINFO is rejected.
	dir := t.TempDir()
	path := filepath.Join(dir, "bare-1.0-1-any.pkg.tar")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(make([]byte, 1024)) // two zero blocks: an empty tar
	f.Close()

	_, err = File(context.Background(), path)
	var missing *MissingMetadataError
	if !errors.As(err, &missing) {
		t.Errorf("expected MissingMetadataError, got %v", err)
	}
}

func TestFileNotAnArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage-1.0-1-any.pkg.tar.zst")
	if err := os.WriteFile(path, []byte("\x28\xb5\x2f\xfdgarbage"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := File(context.Background(), path)
	var format *FormatError
	if !errors.As(err, &format) {
		t.Errorf("expected FormatError, got %v", err)
	}
}

func TestFileCancellation(t *testing.T) {
	dir := t.TempDir()
	pkg := repodtest.Package{Name: "foo", Version: "1.0.0-1"}
	path := pkg.Write(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := File(ctx, path); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
