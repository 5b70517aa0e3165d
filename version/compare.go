package version

import "strconv"

// Compare returns -1, 0, or 1 if v is less than, equal to, or greater
// than other. Build metadata is ignored. Prerelease versions order below
// the release with the same Major.Minor.Patch.
func (v *NuGetVersion) Compare(other *NuGetVersion) int {
	if c := compareInt(v.Major, other.Major); c != 0 {
		return c
	}
	if c := compareInt(v.Minor, other.Minor); c != 0 {
		return c
	}
	if c := compareInt(v.Patch, other.Patch); c != 0 {
		return c
	}
	return compareReleaseLabels(v.ReleaseLabels, other.ReleaseLabels)
}

// Equal reports whether both versions have the same precedence.
func (v *NuGetVersion) Equal(other *NuGetVersion) bool {
	return v.Compare(other) == 0
}

// GreaterThan reports whether v has higher precedence than other.
func (v *NuGetVersion) GreaterThan(other *NuGetVersion) bool {
	return v.Compare(other) > 0
}

// LessThan reports whether v has lower precedence than other.
func (v *NuGetVersion) LessThan(other *NuGetVersion) bool {
	return v.Compare(other) < 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareReleaseLabels implements SemVer 2.0 prerelease precedence:
// no labels > any labels; numeric labels compare numerically and order
// below alphanumeric labels; a shorter label set orders first.
func compareReleaseLabels(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	if len(b) == 0 {
		return -1
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareLabel(a[i], b[i]); c != 0 {
			return c
		}
	}

	return compareInt(len(a), len(b))
}

func compareLabel(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)

	switch {
	case aerr == nil && berr == nil:
		return compareInt(an, bn)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Max returns the greatest version of the given slice, or nil for an
// empty slice.
func Max(versions []*NuGetVersion) *NuGetVersion {
	var best *NuGetVersion
	for _, v := range versions {
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}
