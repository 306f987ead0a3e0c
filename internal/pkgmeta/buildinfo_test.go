package pkgmeta

import (
	"errors"
	"strings"
	"testing"
)

const buildInfoV2 = `format = 2
pkgname = foo
pkgbase = foo
pkgver = 1:1.0.0-2
pkgarch = x86_64
pkgbuild_sha256sum = b5bb9d8014a0f9b1d61e21e796d78dccdf1352f23cd32812f4850b878ae4944c
packager = Foo Bar <foo@example.org>
builddate = 1673804735
builddir = /build
startdir = /startdir
buildtool = devtools
buildtoolver = 1:20220621-1-any
buildenv = !distcc
buildenv = color
options = !strip
options = docs
installed = glibc-2.36-6-x86_64
installed = gcc-libs-12.1.0-2-x86_64
`

func TestParseBuildInfoV2(t *testing.T) {
	got, err := ParseBuildInfo(strings.NewReader(buildInfoV2))
	if err != nil {
		t.Fatal(err)
	}
	if got.Format != 2 {
		t.Errorf("Format = %d, want 2", got.Format)
	}
	if got.BuildTool != "devtools" {
		t.Errorf("BuildTool = %q, want devtools", got.BuildTool)
	}
	if len(got.BuildEnv) != 2 || len(got.Options) != 2 || len(got.Installed) != 2 {
		t.Errorf("multi-valued fields not accumulated: %+v", got)
	}
	if got.Version.Epoch != 1 || got.Version.Pkgver != "1.0.0" {
		t.Errorf("Version = %v, want 1:1.0.0-2", got.Version)
	}
}

func TestParseBuildInfoV1(t *testing.T) {
	input := buildInfoV2
	input = strings.ReplaceAll(input, "format = 2", "format = 1")
	input = strings.ReplaceAll(input, "buildtool = devtools\n", "")
	input = strings.ReplaceAll(input, "buildtoolver = 1:20220621-1-any\n", "")
	got, err := ParseBuildInfo(strings.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	if got.Format != 1 {
		t.Errorf("Format = %d, want 1", got.Format)
	}
	if got.BuildTool != "" {
		t.Errorf("BuildTool = %q, want empty for format 1", got.BuildTool)
	}
}

func TestParseBuildInfoUnknownFormat(t *testing.T) {
	input := strings.ReplaceAll(buildInfoV2, "format = 2", "format = 7")
	_, err := ParseBuildInfo(strings.NewReader(input))
	var su *SchemaUnknownError
	if !errors.As(err, &su) {
		t.Fatalf("expected SchemaUnknownError, got %v", err)
	}
}

func TestParseBuildInfoDevtoolsVer(t *testing.T) {
	for _, tt := range []struct {
		ver string
		ok  bool
	}{
		{"1:20220621-1-any", true},
		{"20230307-1-x86_64", true},
		{"20230307-1", false},  // missing arch
		{"frontend-any", false}, // missing pkgrel
	} {
		t.Run(tt.ver, func(t *testing.T) {
			input := strings.ReplaceAll(buildInfoV2, "buildtoolver = 1:20220621-1-any", "buildtoolver = "+tt.ver)
			_, err := ParseBuildInfo(strings.NewReader(input))
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok {
				var sv *SchemaViolationError
				if !errors.As(err, &sv) || sv.Field != "buildtoolver" {
					t.Errorf("expected buildtoolver SchemaViolationError, got %v", err)
				}
			}
		})
	}
}
