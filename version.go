package repod

import (
	"fmt"
	"strconv"
	"strings"
)

// Version describes one released version of a package, broken into the
// three pacman components. Pkgrel may be empty when comparing against
// versions taken from dependency constraints.
type Version struct {
	// Epoch overrides all version comparison. 0 (the default) is not
	// serialized.
	Epoch int

	// Pkgver is the upstream version: alphanumerics, dots, underscores and
	// plus signs. Never contains a hyphen.
	Pkgver string

	// Pkgrel is the package release counter, \d+(\.\d+)?. Empty means
	// "unspecified" and makes the release not participate in comparison.
	Pkgrel string
}

// InvalidVersionError reports a version string that does not parse as
// [epoch:]pkgver[-pkgrel].
type InvalidVersionError struct {
	Input  string
	Reason string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

func validPkgverChar(c byte) bool {
	return isAlnum(c) || c == '.' || c == '_' || c == '+'
}

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
func isDigit(c byte) bool { return '0' <= c && c <= '9' }
func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func validPkgrel(rel string) bool {
	// \d+(\.\d+)?
	first, rest, dot := strings.Cut(rel, ".")
	if first == "" {
		return false
	}
	for i := 0; i < len(first); i++ {
		if !isDigit(first[i]) {
			return false
		}
	}
	if !dot {
		return true
	}
	if rest == "" {
		return false
	}
	for i := 0; i < len(rest); i++ {
		if !isDigit(rest[i]) {
			return false
		}
	}
	return true
}

// ParseVersion parses [epoch:]pkgver[-pkgrel], e.g. "1:1.0.0-2".
func ParseVersion(s string) (Version, error) {
	var v Version
	rem := s
	if epoch, rest, ok := strings.Cut(rem, ":"); ok {
		n, err := strconv.Atoi(epoch)
		if err != nil || n < 0 {
			return v, &InvalidVersionError{Input: s, Reason: "epoch must be a non-negative integer"}
		}
		v.Epoch = n
		rem = rest
	}
	if idx := strings.LastIndexByte(rem, '-'); idx > -1 {
		v.Pkgrel = rem[idx+1:]
		rem = rem[:idx]
		if !validPkgrel(v.Pkgrel) {
			return v, &InvalidVersionError{Input: s, Reason: "pkgrel must match \\d+(\\.\\d+)?"}
		}
	}
	if rem == "" {
		return v, &InvalidVersionError{Input: s, Reason: "empty pkgver"}
	}
	for i := 0; i < len(rem); i++ {
		if !validPkgverChar(rem[i]) {
			return v, &InvalidVersionError{Input: s, Reason: fmt.Sprintf("pkgver contains invalid byte %q", rem[i])}
		}
	}
	v.Pkgver = rem
	return v, nil
}

// MustParseVersion is like ParseVersion, but panics on invalid input. For
// use with hard-coded versions only.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	s := v.Pkgver
	if v.Epoch > 0 {
		s = strconv.Itoa(v.Epoch) + ":" + s
	}
	if v.Pkgrel != "" {
		s += "-" + v.Pkgrel
	}
	return s
}

// IsZero reports whether v is the zero Version (no pkgver).
func (v Version) IsZero() bool { return v.Pkgver == "" }

// Compare returns -1, 0 or +1 if v is older than, equal to or newer than o,
// using pacman's total order: epochs numerically, then pkgver segmentwise,
// then (when both carry one) pkgrel segmentwise.
func (v Version) Compare(o Version) int {
	if v.Epoch != o.Epoch {
		if v.Epoch < o.Epoch {
			return -1
		}
		return 1
	}
	if c := vercmpPart(v.Pkgver, o.Pkgver); c != 0 {
		return c
	}
	if v.Pkgrel != "" && o.Pkgrel != "" {
		return vercmpPart(v.Pkgrel, o.Pkgrel)
	}
	return 0
}

// Older reports whether v sorts strictly before o.
func (v Version) Older(o Version) bool { return v.Compare(o) < 0 }

// Newer reports whether v sorts strictly after o.
func (v Version) Newer(o Version) bool { return v.Compare(o) > 0 }

// vercmpPart compares one version component (pkgver or pkgrel) the way
// pacman's vercmp does: split into runs of digits or letters, compare
// digit runs numerically and letter runs bytewise. A digit run outranks a
// letter run. If one side runs out, the longer side wins unless its
// remainder starts with a letter run (1.0a < 1.0).
func vercmpPart(a, b string) int {
	if a == b {
		return 0
	}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		// strip separators (any non-alphanumeric bytes)
		for i < len(a) && !isAlnum(a[i]) {
			i++
		}
		for j < len(b) && !isAlnum(b[j]) {
			j++
		}
		if i >= len(a) || j >= len(b) {
			break
		}
		var x, y string
		numeric := isDigit(a[i])
		if numeric {
			x, i = takeRun(a, i, isDigit)
			y, j = takeRun(b, j, isDigit)
		} else {
			x, i = takeRun(a, i, isAlpha)
			y, j = takeRun(b, j, isAlpha)
		}
		if y == "" {
			// Mismatched run types: the numeric side is newer.
			if numeric {
				return 1
			}
			return -1
		}
		if numeric {
			x = strings.TrimLeft(x, "0")
			y = strings.TrimLeft(y, "0")
			if len(x) != len(y) {
				if len(x) < len(y) {
					return -1
				}
				return 1
			}
		}
		if c := strings.Compare(x, y); c != 0 {
			if c < 0 {
				return -1
			}
			return 1
		}
	}
	// One side is exhausted. An alphabetic remainder sorts before the
	// shorter version (1.0a < 1.0), any other remainder after (1.0.1 > 1.0).
	if i >= len(a) && j >= len(b) {
		return 0
	}
	if i < len(a) {
		if hasAlphaRemainder(a, i) {
			return -1
		}
		return 1
	}
	if hasAlphaRemainder(b, j) {
		return 1
	}
	return -1
}

func takeRun(s string, i int, class func(byte) bool) (run string, next int) {
	start := i
	for i < len(s) && class(s[i]) {
		i++
	}
	return s[start:i], i
}

func hasAlphaRemainder(s string, i int) bool {
	for i < len(s) && !isAlnum(s[i]) {
		i++
	}
	return i < len(s) && isAlpha(s[i])
}

// VerCmp is pacman's vercmp over full version strings. It parses both
// sides and returns the comparison result.
func VerCmp(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}
