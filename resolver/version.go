package resolver

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Version is a validated semantic version held in golang.org/x/mod/semver
// canonical form ("v1.2.3-rc.1").
type Version struct {
	canonical string
	Build     string
	Original  string
}

// ParseVersion parses MAJOR.MINOR.PATCH[-PRERELEASE][+BUILD]. A leading
// "v" is accepted; the major.minor shorthands semver allows are not.
func ParseVersion(s string) (Version, error) {
	norm := strings.TrimSpace(s)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) {
		return Version{}, fmt.Errorf("%w: %q", modular.ErrInvalidVersion, s)
	}
	build := semver.Build(norm)
	canonical := semver.Canonical(norm)
	if canonical != strings.TrimSuffix(norm, build) {
		return Version{}, fmt.Errorf("%w: %q is not MAJOR.MINOR.PATCH", modular.ErrInvalidVersion, s)
	}
	return Version{canonical: canonical, Build: strings.TrimPrefix(build, "+"), Original: s}, nil
}

// Compare returns -1, 0 or 1 following semantic version precedence. Build
// metadata is ignored.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.canonical, o.canonical)
}

// Prerelease returns the prerelease suffix without its leading "-".
func (v Version) Prerelease() string {
	return strings.TrimPrefix(semver.Prerelease(v.canonical), "-")
}

func (v Version) String() string { return strings.TrimPrefix(v.canonical, "v") }

func (v Version) core() string {
	return strings.TrimSuffix(v.canonical, semver.Prerelease(v.canonical))
}

type operator string

const (
	opEq    operator = "="
	opGt    operator = ">"
	opGte   operator = ">="
	opLt    operator = "<"
	opLte   operator = "<="
	opCaret operator = "^"
	opTilde operator = "~"
)

type term struct {
	op      operator
	version Version
}

// Constraint is a conjunction of version terms, e.g. ">=1.2.0, <2.0.0".
type Constraint struct {
	raw   string
	any   bool
	terms []term
}

// ParseConstraint parses a version requirement. "*" and "" match every
// version; a bare version means ">=".
func ParseConstraint(s string) (Constraint, error) {
	c := Constraint{raw: s}
	s = strings.TrimSpace(s)
	if s == "" || s == modular.AnyVersion {
		c.any = true
		return c, nil
	}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		op := opGte
		for _, candidate := range []operator{opGte, opLte, opGt, opLt, opEq, opCaret, opTilde} {
			if strings.HasPrefix(part, string(candidate)) {
				op = candidate
				part = strings.TrimSpace(strings.TrimPrefix(part, string(candidate)))
				break
			}
		}
		v, err := ParseVersion(part)
		if err != nil {
			return Constraint{}, fmt.Errorf("%w: %q: %w", modular.ErrInvalidConstraint, c.raw, err)
		}
		c.terms = append(c.terms, term{op: op, version: v})
	}
	if len(c.terms) == 0 {
		return Constraint{}, fmt.Errorf("%w: %q", modular.ErrInvalidConstraint, c.raw)
	}
	return c, nil
}

// Check reports whether v satisfies every term.
func (c Constraint) Check(v Version) bool {
	if c.any {
		return true
	}
	for _, t := range c.terms {
		if !t.check(v) {
			return false
		}
	}
	return true
}

func (c Constraint) String() string { return c.raw }

func (t term) check(v Version) bool {
	cmp := v.Compare(t.version)
	switch t.op {
	case opEq:
		return cmp == 0
	case opGt:
		return cmp > 0
	case opGte:
		return cmp >= 0
	case opLt:
		return cmp < 0
	case opLte:
		return cmp <= 0
	case opCaret:
		if cmp < 0 {
			return false
		}
		// ^0.y.z pins the minor version, ^0.0.z pins the patch.
		switch {
		case semver.Major(t.version.canonical) != "v0":
			return semver.Major(v.canonical) == semver.Major(t.version.canonical)
		case semver.MajorMinor(t.version.canonical) != "v0.0":
			return semver.MajorMinor(v.canonical) == semver.MajorMinor(t.version.canonical)
		default:
			return v.core() == t.version.core()
		}
	case opTilde:
		return cmp >= 0 && semver.MajorMinor(v.canonical) == semver.MajorMinor(t.version.canonical)
	default:
		return false
	}
}

// Satisfies reports whether version meets requirement. Unparseable inputs
// never satisfy a non-wildcard requirement.
func Satisfies(version, requirement string) (bool, error) {
	c, err := ParseConstraint(requirement)
	if err != nil {
		return false, err
	}
	if c.any {
		return true, nil
	}
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}
