package repod

import "testing"

func TestParseConstraint(t *testing.T) {
	for _, tt := range []struct {
		input string
		want  Constraint
	}{
		{input: "glibc", want: Constraint{Name: "glibc"}},
		{input: "gcc-libs", want: Constraint{Name: "gcc-libs"}},
		{input: "linux>=6.1.1", want: Constraint{Name: "linux", Op: OpGreaterEqual, Version: Version{Pkgver: "6.1.1"}}},
		{input: "linux>=6.1.1-1", want: Constraint{Name: "linux", Op: OpGreaterEqual, Version: Version{Pkgver: "6.1.1", Pkgrel: "1"}}},
		{input: "foo<2.0", want: Constraint{Name: "foo", Op: OpLess, Version: Version{Pkgver: "2.0"}}},
		{input: "foo<=2.0", want: Constraint{Name: "foo", Op: OpLessEqual, Version: Version{Pkgver: "2.0"}}},
		{input: "foo=1:2.0-1", want: Constraint{Name: "foo", Op: OpEqual, Version: Version{Epoch: 1, Pkgver: "2.0", Pkgrel: "1"}}},
		{input: "foo>2.0", want: Constraint{Name: "foo", Op: OpGreater, Version: Version{Pkgver: "2.0"}}},
	} {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConstraint(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseConstraint(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if rt := got.String(); rt != tt.input {
				t.Errorf("round trip: got %q, want %q", rt, tt.input)
			}
		})
	}
}

func TestParseConstraintInvalid(t *testing.T) {
	for _, input := range []string{"", ">=1.0", "foo>=", "foo>=x y", "-foo", "foo bar"} {
		t.Run(input, func(t *testing.T) {
			if _, err := ParseConstraint(input); err == nil {
				t.Errorf("ParseConstraint(%q): expected error, got none", input)
			}
		})
	}
}

func TestConstraintSatisfiedBy(t *testing.T) {
	for _, tt := range []struct {
		constraint string
		name       string
		version    string
		want       bool
	}{
		{"glibc", "glibc", "2.36-6", true},
		{"glibc", "musl", "1.2.3-1", false},
		{"linux>=6.1", "linux", "6.1.1-1", true},
		{"linux>=6.1", "linux", "6.0-1", false},
		{"linux>6.1", "linux", "6.1-1", false},
		{"linux=6.1", "linux", "6.1-4", true},     // pkgrel-less constraint ignores pkgrel
		{"linux=6.1-4", "linux", "6.1-4", true},
		{"linux=6.1-4", "linux", "6.1-5", false},
		{"foo<2", "foo", "1.9-1", true},
		{"foo<=2", "foo", "2-1", true},
	} {
		t.Run(tt.constraint+"/"+tt.version, func(t *testing.T) {
			c, err := ParseConstraint(tt.constraint)
			if err != nil {
				t.Fatal(err)
			}
			got := c.SatisfiedBy(tt.name, MustParseVersion(tt.version))
			if got != tt.want {
				t.Errorf("(%q).SatisfiedBy(%q, %q) = %v, want %v", tt.constraint, tt.name, tt.version, got, tt.want)
			}
		})
	}
}

func TestConstraintSatisfiedByProvider(t *testing.T) {
	providers := []Provider{
		{Name: "libfoo", Version: MustParseVersion("1.2")},
		{Name: "dbus-units"}, // unversioned provide
	}
	for _, tt := range []struct {
		constraint string
		want       bool
	}{
		{"libfoo", true},
		{"libfoo>=1.0", true},
		{"libfoo>=1.3", false},
		{"dbus-units", true},
		{"dbus-units>=1", false}, // unversioned provide cannot satisfy a versioned constraint
		{"libbar", false},
	} {
		t.Run(tt.constraint, func(t *testing.T) {
			c, err := ParseConstraint(tt.constraint)
			if err != nil {
				t.Fatal(err)
			}
			if got := c.SatisfiedByProvider(providers); got != tt.want {
				t.Errorf("(%q).SatisfiedByProvider = %v, want %v", tt.constraint, got, tt.want)
			}
		})
	}
}
