package repod

import "testing"

func TestParseFilename(t *testing.T) {
	for _, tt := range []struct {
		filename string
		want     PackageFilename
	}{
		{
			filename: "linux-6.1.1-1-x86_64.pkg.tar.zst",
			want:     PackageFilename{Name: "linux", Version: Version{Pkgver: "6.1.1", Pkgrel: "1"}, Arch: "x86_64", Ext: "zst"},
		},
		{
			filename: "gcc-libs-12.1.0-2-aarch64.pkg.tar.xz",
			want:     PackageFilename{Name: "gcc-libs", Version: Version{Pkgver: "12.1.0", Pkgrel: "2"}, Arch: "aarch64", Ext: "xz"},
		},
		{
			filename: "texlive-core-1:2022.62885-17-any.pkg.tar.zst",
			want:     PackageFilename{Name: "texlive-core", Version: Version{Epoch: 1, Pkgver: "2022.62885", Pkgrel: "17"}, Arch: "any", Ext: "zst"},
		},
		{
			filename: "foo-1.0-1-any.pkg.tar",
			want:     PackageFilename{Name: "foo", Version: Version{Pkgver: "1.0", Pkgrel: "1"}, Arch: "any"},
		},
	} {
		t.Run(tt.filename, func(t *testing.T) {
			got, err := ParseFilename(tt.filename)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseFilename(%q) = %+v, want %+v", tt.filename, got, tt.want)
			}
			if rt := got.String(); rt != tt.filename {
				t.Errorf("round trip: got %q, want %q", rt, tt.filename)
			}
		})
	}
}

func TestParseFilenameInvalid(t *testing.T) {
	for _, filename := range []string{
		"",
		"foo-1.0-1-any.tar.zst",
		"foo-1.0-1-mips.pkg.tar.zst",
		"foo-1.0-any.pkg.tar.zst",
		"foo-1.0-1-any.pkg.tar.zst.sig",
	} {
		t.Run(filename, func(t *testing.T) {
			if _, err := ParseFilename(filename); err == nil {
				t.Errorf("ParseFilename(%q): expected error, got none", filename)
			}
		})
	}
}

func TestHasArchSuffix(t *testing.T) {
	if arch, ok := HasArchSuffix("foo-2.1-1-x86_64"); !ok || arch != "x86_64" {
		t.Errorf("HasArchSuffix = %q, %v; want x86_64, true", arch, ok)
	}
	if _, ok := HasArchSuffix("foo-2.1-1"); ok {
		t.Error("HasArchSuffix matched a name without an architecture")
	}
}
