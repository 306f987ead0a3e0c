package repod

import (
	"fmt"
	"strings"
)

// CompareOp is the relation a dependency constraint imposes on the
// candidate version.
type CompareOp string

const (
	OpLess         CompareOp = "<"
	OpLessEqual    CompareOp = "<="
	OpEqual        CompareOp = "="
	OpGreaterEqual CompareOp = ">="
	OpGreater      CompareOp = ">"
)

// Constraint is a parsed dependency string, name[cmp version]. A
// constraint without an operator matches any version of the named package.
type Constraint struct {
	Name    string
	Op      CompareOp
	Version Version
}

// InvalidConstraintError reports a dependency string that does not parse.
type InvalidConstraintError struct {
	Input  string
	Reason string
}

func (e *InvalidConstraintError) Error() string {
	return fmt.Sprintf("invalid constraint %q: %s", e.Input, e.Reason)
}

func validPkgnameChar(c byte) bool {
	return isAlnum(c) || c == '@' || c == '.' || c == '_' || c == '+' || c == '-'
}

func validPkgname(name string) bool {
	if name == "" || name[0] == '-' || name[0] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !validPkgnameChar(name[i]) {
			return false
		}
	}
	return true
}

// ParseConstraint parses a dependency string such as "glibc", "gcc-libs"
// or "linux>=6.1.1-1".
func ParseConstraint(s string) (Constraint, error) {
	idx := strings.IndexAny(s, "<>=")
	if idx == -1 {
		if !validPkgname(s) {
			return Constraint{}, &InvalidConstraintError{Input: s, Reason: "invalid package name"}
		}
		return Constraint{Name: s}, nil
	}
	name := s[:idx]
	rest := s[idx:]
	var op CompareOp
	for _, candidate := range []CompareOp{OpLessEqual, OpGreaterEqual, OpLess, OpGreater, OpEqual} {
		if strings.HasPrefix(rest, string(candidate)) {
			op = candidate
			break
		}
	}
	verStr := strings.TrimPrefix(rest, string(op))
	if !validPkgname(name) {
		return Constraint{}, &InvalidConstraintError{Input: s, Reason: "invalid package name"}
	}
	if verStr == "" {
		return Constraint{}, &InvalidConstraintError{Input: s, Reason: "operator without version"}
	}
	ver, err := ParseVersion(verStr)
	if err != nil {
		return Constraint{}, &InvalidConstraintError{Input: s, Reason: err.Error()}
	}
	return Constraint{Name: name, Op: op, Version: ver}, nil
}

func (c Constraint) String() string {
	if c.Op == "" {
		return c.Name
	}
	return c.Name + string(c.Op) + c.Version.String()
}

// SatisfiedBy reports whether a package with the given name and version
// satisfies the constraint. The version comparison ignores pkgrel when the
// constraint does not specify one (so "foo>=1.0" accepts foo-1.0-1).
func (c Constraint) SatisfiedBy(name string, v Version) bool {
	if name != c.Name {
		return false
	}
	if c.Op == "" {
		return true
	}
	if c.Version.Pkgrel == "" {
		v.Pkgrel = ""
	}
	cmp := v.Compare(c.Version)
	switch c.Op {
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpEqual:
		return cmp == 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpGreater:
		return cmp > 0
	}
	return false
}

// Provider is anything that can stand in for a dependency: a package name
// with its version, or one of its provides entries (which may carry a
// version of its own).
type Provider struct {
	Name    string
	Version Version
}

// SatisfiedByProvider reports whether any of the given providers satisfies
// the constraint. An unversioned provider satisfies only unversioned
// constraints on its name, matching pacman's resolver.
func (c Constraint) SatisfiedByProvider(providers []Provider) bool {
	for _, p := range providers {
		if p.Name != c.Name {
			continue
		}
		if c.Op == "" {
			return true
		}
		if p.Version.IsZero() {
			continue
		}
		if c.SatisfiedBy(p.Name, p.Version) {
			return true
		}
	}
	return false
}

// ParseProvide parses a provides entry, name[=version].
func ParseProvide(s string) (Provider, error) {
	name, verStr, ok := strings.Cut(s, "=")
	if !validPkgname(name) {
		return Provider{}, &InvalidConstraintError{Input: s, Reason: "invalid package name"}
	}
	if !ok {
		return Provider{Name: name}, nil
	}
	ver, err := ParseVersion(verStr)
	if err != nil {
		return Provider{}, &InvalidConstraintError{Input: s, Reason: err.Error()}
	}
	return Provider{Name: name, Version: ver}, nil
}
