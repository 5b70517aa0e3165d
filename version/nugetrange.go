package version

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidRange reports a version range string the NuGet interval
// grammar does not accept.
var ErrInvalidRange = errors.New("invalid version range")

// Anchored NuGet interval grammar: [open]? ver1? ,? ver2? [close]?
// Each version is major(.minor)?(.patch)?(-pre)? with missing components
// defaulting to zero.
var rangeRegexp = regexp.MustCompile(
	`^(\[|\()?\s*((\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-(\w+))?)?\s*(,?)\s*((\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-(\w+))?)?\s*(\]|\))?$`)

// ParseNuGetRange converts a NuGet interval string into a predicate set.
//
// Syntax:
//
//	[1.0, 2.0]   ⇒ >=1.0.0, <=2.0.0
//	(1.0, 2.0)   ⇒ >1.0.0, <2.0.0
//	[1.0, 2.0)   ⇒ >=1.0.0, <2.0.0
//	[1.0, )      ⇒ >=1.0.0
//	(, 2.0]      ⇒ <=2.0.0
//	[1.0]        ⇒ =1.0.0
//	1.0          ⇒ >=1.0.0
//	""           ⇒ unconstrained
func ParseNuGetRange(s string) (PredicateSet, error) {
	caps := rangeRegexp.FindStringSubmatch(s)
	if caps == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	open := caps[1]
	ver1 := caps[2]
	comma := caps[7] == ","
	ver2 := caps[8]
	clos := caps[13]

	// Reject the shapes the grammar matches but the syntax forbids.
	if (open == "") != (clos == "") {
		return nil, fmt.Errorf("%w: unbalanced brackets in %q", ErrInvalidRange, s)
	}
	if comma && ver1 != "" && ver2 == "" && clos == "]" {
		return nil, fmt.Errorf("%w: %q has a closed upper bound without a version", ErrInvalidRange, s)
	}
	if comma && ver1 == "" && ver2 != "" && open == "[" {
		return nil, fmt.Errorf("%w: %q has a closed lower bound without a version", ErrInvalidRange, s)
	}

	// Exact match: "[1.0]" with no comma.
	if open == "[" && !comma {
		if clos != "]" || ver1 == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		v, err := Parse(ver1)
		if err != nil {
			return nil, err
		}
		return PredicateSet{{Op: OpExact, Version: v}}, nil
	}

	var ps PredicateSet

	if ver1 != "" {
		lowerOp := OpGreaterEq
		if open == "(" {
			lowerOp = OpGreater
		}
		v, err := Parse(ver1)
		if err != nil {
			return nil, err
		}
		ps = append(ps, Predicate{Op: lowerOp, Version: v})
	}

	if ver2 != "" {
		upperOp := OpLessEq
		if clos == ")" {
			upperOp = OpLess
		}
		v, err := Parse(ver2)
		if err != nil {
			return nil, err
		}
		ps = append(ps, Predicate{Op: upperOp, Version: v})
	}

	return ps, nil
}

// ToNuGet serializes the predicate set back into NuGet interval notation.
// The unconstrained set returns the empty string; callers omit the
// version attribute in that case.
//
// A two-predicate set must be a (lower bound, upper bound) pair;
// anything else reports ErrInvalidLowerBoundOp, ErrInvalidUpperBoundOp,
// or ErrMultiPredicate.
func (ps PredicateSet) ToNuGet() (string, error) {
	switch len(ps) {
	case 0:
		return "", nil
	case 1:
		return ps[0].toNuGet()
	case 2:
		var lower, upper string
		switch ps[0].Op {
		case OpGreater:
			lower = "(" + ps[0].Version.ToNormalizedString()
		case OpGreaterEq:
			lower = "[" + ps[0].Version.ToNormalizedString()
		default:
			return "", ErrInvalidLowerBoundOp
		}
		switch ps[1].Op {
		case OpLess:
			upper = ps[1].Version.ToNormalizedString() + ")"
		case OpLessEq:
			upper = ps[1].Version.ToNormalizedString() + "]"
		default:
			return "", ErrInvalidUpperBoundOp
		}
		return lower + ", " + upper, nil
	default:
		return "", ErrMultiPredicate
	}
}

func (p Predicate) toNuGet() (string, error) {
	v := p.Version.ToNormalizedString()
	switch p.Op {
	case OpExact:
		return "[" + v + "]", nil
	case OpGreater:
		return "(" + v + ",)", nil
	case OpGreaterEq:
		return v, nil
	case OpLess:
		return "(," + v + ")", nil
	case OpLessEq:
		return "(," + v + "]", nil
	case OpTilde, OpWildcardPatch:
		return "[" + v + ", " + nextMinor(p.Version).ToNormalizedString() + ")", nil
	case OpCaret, OpWildcardMinor:
		return "[" + v + ", " + nextMajor(p.Version).ToNormalizedString() + ")", nil
	default:
		return "", fmt.Errorf("unsupported predicate operator %d", p.Op)
	}
}
