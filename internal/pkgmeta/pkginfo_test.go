package pkgmeta

import (
	"errors"
	"strings"
	"testing"

	"github.com/archlinux/repod"
	"github.com/google/go-cmp/cmp"
)

const pkgInfoV1 = `# Generated by makepkg 6.0.2
pkgname = foo
pkgbase = foo
pkgver = 1:1.0.0-2
pkgdesc = An example = package
url = https://example.org/foo
builddate = 1673804735
packager = Foo Bar <foo@example.org>
size = 4096
arch = x86_64
license = GPL
license = MIT
group = tools
depend = glibc
depend = bar>=1.2
optdepend = baz: extra features
provides = libfoo=1.0.0
conflict = foo-git
replaces = foo-old
backup = etc/foo.conf
makedepend = cmake
checkdepend = check
xdata = pkgtype-unknown=value
`

func TestParsePkgInfoV1(t *testing.T) {
	got, err := ParsePkgInfo(strings.NewReader(pkgInfoV1))
	if err != nil {
		t.Fatal(err)
	}
	want := &PkgInfo{
		Schema:       1,
		Pkgname:      "foo",
		Pkgbase:      "foo",
		Version:      repod.Version{Epoch: 1, Pkgver: "1.0.0", Pkgrel: "2"},
		Pkgdesc:      "An example = package",
		URL:          "https://example.org/foo",
		Builddate:    1673804735,
		Packager:     "Foo Bar <foo@example.org>",
		Size:         4096,
		Arch:         "x86_64",
		License:      []string{"GPL", "MIT"},
		Groups:       []string{"tools"},
		Depends:      []string{"glibc", "bar>=1.2"},
		OptDepends:   []string{"baz: extra features"},
		Provides:     []string{"libfoo=1.0.0"},
		Conflicts:    []string{"foo-git"},
		Replaces:     []string{"foo-old"},
		Backup:       []string{"etc/foo.conf"},
		MakeDepends:  []string{"cmake"},
		CheckDepends: []string{"check"},
		Extra:        map[string][]string{"xdata": {"pkgtype-unknown=value"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected PkgInfo: diff (-want +got):\n%s", diff)
	}
}

func TestParsePkgInfoV2(t *testing.T) {
	input := strings.ReplaceAll(pkgInfoV1, "xdata = pkgtype-unknown=value\n", "pkgtype = debug\n")
	got, err := ParsePkgInfo(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got.Schema != 2 {
		t.Errorf("Schema = %d, want 2", got.Schema)
	}
	if got.PkgType != PkgTypeDebug {
		t.Errorf("PkgType = %q, want %q", got.PkgType, PkgTypeDebug)
	}
}

func TestParsePkgInfoViolations(t *testing.T) {
	for _, tt := range []struct {
		name      string
		transform func(string) string
		field     string
	}{
		{
			name:      "missing pkgname",
			transform: func(s string) string { return strings.ReplaceAll(s, "pkgname = foo\n", "") },
			field:     "pkgname",
		},
		{
			name:      "missing url",
			transform: func(s string) string { return strings.ReplaceAll(s, "url = https://example.org/foo\n", "") },
			field:     "url",
		},
		{
			name:      "bad size",
			transform: func(s string) string { return strings.ReplaceAll(s, "size = 4096", "size = lots") },
			field:     "size",
		},
		{
			name:      "bad arch",
			transform: func(s string) string { return strings.ReplaceAll(s, "arch = x86_64", "arch = mips") },
			field:     "arch",
		},
		{
			name:      "version without pkgrel",
			transform: func(s string) string { return strings.ReplaceAll(s, "pkgver = 1:1.0.0-2", "pkgver = 1.0.0") },
			field:     "pkgver",
		},
		{
			name:      "bad pkgtype",
			transform: func(s string) string { return s + "pkgtype = wheel\n" },
			field:     "pkgtype",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePkgInfo(strings.NewReader(tt.transform(pkgInfoV1)))
			var sv *SchemaViolationError
			if !errors.As(err, &sv) {
				t.Fatalf("expected SchemaViolationError, got %v", err)
			}
			if sv.Field != tt.field {
				t.Errorf("Field = %q, want %q", sv.Field, tt.field)
			}
		})
	}
}

func TestParsePkgInfoDecodeError(t *testing.T) {
	_, err := ParsePkgInfo(strings.NewReader("pkgname = foo\nnot a key value line\n"))
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	if de.Line != 2 {
		t.Errorf("Line = %d, want 2", de.Line)
	}
}
