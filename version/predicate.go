package version

import (
	"errors"
	"fmt"
	"strings"
)

// Op is a comparison operator of a version predicate.
type Op int

const (
	// OpExact matches exactly one version.
	OpExact Op = iota
	// OpGreater matches versions strictly greater.
	OpGreater
	// OpGreaterEq matches versions greater or equal.
	OpGreaterEq
	// OpLess matches versions strictly less.
	OpLess
	// OpLessEq matches versions less or equal.
	OpLessEq
	// OpTilde matches versions up to the next minor release.
	OpTilde
	// OpCaret matches versions up to the next breaking release.
	OpCaret
	// OpWildcardMinor matches any minor/patch of a major release ("1.*").
	OpWildcardMinor
	// OpWildcardPatch matches any patch of a minor release ("1.2.*").
	OpWildcardPatch
)

// String returns the textual operator prefix.
func (op Op) String() string {
	switch op {
	case OpExact:
		return "="
	case OpGreater:
		return ">"
	case OpGreaterEq:
		return ">="
	case OpLess:
		return "<"
	case OpLessEq:
		return "<="
	case OpTilde:
		return "~"
	case OpCaret:
		return "^"
	default:
		return ""
	}
}

// Predicate is a single version constraint.
type Predicate struct {
	Op      Op
	Version *NuGetVersion
}

// PredicateSet is a conjunction of predicates. An empty set matches every
// version ("unconstrained").
type PredicateSet []Predicate

// Any returns the unconstrained predicate set.
func Any() PredicateSet {
	return PredicateSet{}
}

// Matches reports whether v satisfies every predicate of the set.
//
// A prerelease version only matches when at least one predicate names a
// prerelease with the same Major.Minor.Patch. This keeps ">= 1.0" from
// resolving to "3.0.0-alpha1" while still allowing explicit prerelease
// bounds like ">= 1.0.0-alpha1" to match "1.0.0-beta2".
func (ps PredicateSet) Matches(v *NuGetVersion) bool {
	if v == nil {
		return false
	}

	if v.IsPrerelease() && len(ps) > 0 && !ps.prereleaseAdmitted(v) {
		return false
	}

	for _, p := range ps {
		if !p.matches(v) {
			return false
		}
	}
	return true
}

func (ps PredicateSet) prereleaseAdmitted(v *NuGetVersion) bool {
	for _, p := range ps {
		if p.Version != nil && p.Version.IsPrerelease() &&
			p.Version.Major == v.Major &&
			p.Version.Minor == v.Minor &&
			p.Version.Patch == v.Patch {
			return true
		}
	}
	return false
}

func (p Predicate) matches(v *NuGetVersion) bool {
	switch p.Op {
	case OpExact:
		return v.Compare(p.Version) == 0
	case OpGreater:
		return v.Compare(p.Version) > 0
	case OpGreaterEq:
		return v.Compare(p.Version) >= 0
	case OpLess:
		return v.Compare(p.Version) < 0
	case OpLessEq:
		return v.Compare(p.Version) <= 0
	case OpTilde:
		return v.Compare(p.Version) >= 0 && v.LessThan(nextMinor(p.Version))
	case OpCaret:
		return v.Compare(p.Version) >= 0 && v.LessThan(nextMajor(p.Version))
	case OpWildcardMinor:
		return v.Major == p.Version.Major
	case OpWildcardPatch:
		return v.Major == p.Version.Major && v.Minor == p.Version.Minor
	default:
		return false
	}
}

// String returns the canonical textual form used as the stored
// version_req value, e.g. ">=1.0.0, <2.0.0". The unconstrained set
// renders as "*".
func (ps PredicateSet) String() string {
	if len(ps) == 0 {
		return "*"
	}

	parts := make([]string, len(ps))
	for i, p := range ps {
		switch p.Op {
		case OpWildcardMinor:
			parts[i] = fmt.Sprintf("%d.*", p.Version.Major)
		case OpWildcardPatch:
			parts[i] = fmt.Sprintf("%d.%d.*", p.Version.Major, p.Version.Minor)
		default:
			parts[i] = p.Op.String() + p.Version.ToNormalizedString()
		}
	}
	return strings.Join(parts, ", ")
}

// ParsePredicateSet parses the canonical form produced by String.
func ParsePredicateSet(s string) (PredicateSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return Any(), nil
	}

	var ps PredicateSet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty predicate in %q", s)
		}

		p, err := parsePredicate(part)
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return ps, nil
}

// MustParsePredicateSet parses a canonical predicate set and panics on error.
func MustParsePredicateSet(s string) PredicateSet {
	ps, err := ParsePredicateSet(s)
	if err != nil {
		panic(err)
	}
	return ps
}

func parsePredicate(s string) (Predicate, error) {
	op := OpExact
	switch {
	case strings.HasPrefix(s, ">="):
		op, s = OpGreaterEq, s[2:]
	case strings.HasPrefix(s, "<="):
		op, s = OpLessEq, s[2:]
	case strings.HasPrefix(s, ">"):
		op, s = OpGreater, s[1:]
	case strings.HasPrefix(s, "<"):
		op, s = OpLess, s[1:]
	case strings.HasPrefix(s, "~"):
		op, s = OpTilde, s[1:]
	case strings.HasPrefix(s, "^"):
		op, s = OpCaret, s[1:]
	case strings.HasPrefix(s, "="):
		op, s = OpExact, s[1:]
	}
	s = strings.TrimSpace(s)

	// Wildcard components only make sense without an explicit operator.
	if op == OpExact {
		if trimmed, ok := strings.CutSuffix(s, ".*"); ok {
			return parseWildcard(trimmed)
		}
		if trimmed, ok := strings.CutSuffix(s, ".x"); ok {
			return parseWildcard(trimmed)
		}
	}

	v, err := Parse(s)
	if err != nil {
		return Predicate{}, fmt.Errorf("invalid predicate version %q: %w", s, err)
	}
	return Predicate{Op: op, Version: v}, nil
}

func parseWildcard(stem string) (Predicate, error) {
	v, err := Parse(stem)
	if err != nil {
		return Predicate{}, fmt.Errorf("invalid wildcard stem %q: %w", stem, err)
	}
	if strings.Contains(stem, ".") {
		return Predicate{Op: OpWildcardPatch, Version: v}, nil
	}
	return Predicate{Op: OpWildcardMinor, Version: v}, nil
}

// nextMinor returns the smallest version above v's minor release line.
func nextMinor(v *NuGetVersion) *NuGetVersion {
	return &NuGetVersion{Major: v.Major, Minor: v.Minor + 1}
}

// nextMajor returns the smallest version above v's major release line.
func nextMajor(v *NuGetVersion) *NuGetVersion {
	return &NuGetVersion{Major: v.Major + 1}
}

var (
	// ErrInvalidLowerBoundOp reports a two-predicate set whose first
	// predicate is not a lower bound.
	ErrInvalidLowerBoundOp = errors.New("first predicate is not a lower bound")

	// ErrInvalidUpperBoundOp reports a two-predicate set whose second
	// predicate is not an upper bound.
	ErrInvalidUpperBoundOp = errors.New("second predicate is not an upper bound")

	// ErrMultiPredicate reports a predicate set too complex for NuGet
	// interval notation.
	ErrMultiPredicate = errors.New("more than two predicates cannot be expressed as a NuGet range")
)
