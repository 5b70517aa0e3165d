// Package version provides NuGet version parsing, comparison, and the
// translation between NuGet interval ranges and SemVer predicates.
//
// Parsing is deliberately lenient: feeds in the wild carry versions like
// "1", "1.2", and four-part legacy versions like "1.2.3.4". Missing
// components default to zero and a trailing fourth component is dropped
// from the normalized form.
//
// Example:
//
//	v, err := version.Parse("1.2-beta.1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.ToNormalizedString()) // 1.2.0-beta.1
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// NuGetVersion represents a NuGet package version.
type NuGetVersion struct {
	// Major version number
	Major int

	// Minor version number
	Minor int

	// Patch version number
	Patch int

	// ReleaseLabels contains prerelease labels (e.g., ["beta", "1"] for "1.0.0-beta.1")
	ReleaseLabels []string

	// Metadata is the build metadata (e.g., "20241019" for "1.0.0+20241019").
	// Metadata is ignored in version comparison per SemVer 2.0 spec
	Metadata string

	// originalString preserves the original version string
	originalString string
}

// String returns the string representation of the version.
func (v *NuGetVersion) String() string {
	if v.originalString != "" {
		return v.originalString
	}
	return v.ToNormalizedString()
}

// ToNormalizedString returns the canonical Major.Minor.Patch[-pre][+meta]
// form. Legacy fourth components do not survive normalization.
func (v *NuGetVersion) ToNormalizedString() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)

	if len(v.ReleaseLabels) > 0 {
		s += "-" + strings.Join(v.ReleaseLabels, ".")
	}

	if v.Metadata != "" {
		s += "+" + v.Metadata
	}

	return s
}

// IsPrerelease reports whether the version carries prerelease labels.
func (v *NuGetVersion) IsPrerelease() bool {
	return len(v.ReleaseLabels) > 0
}

// Parse parses a version string into a NuGetVersion.
//
// Supported formats:
//   - SemVer 2.0: Major.Minor.Patch[-Prerelease][+Metadata]
//   - Partial: Major or Major.Minor (missing components default to 0)
//   - Legacy: Major.Minor.Build.Revision (the revision is discarded)
//
// Returns an error if the version string is invalid.
func Parse(s string) (*NuGetVersion, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	v := &NuGetVersion{
		originalString: s,
	}

	// Split on '+' to extract metadata
	parts := strings.SplitN(s, "+", 2)
	versionPart := parts[0]
	if len(parts) == 2 {
		v.Metadata = parts[1]
	}

	// Split on '-' to extract prerelease labels
	parts = strings.SplitN(versionPart, "-", 2)
	numberPart := parts[0]
	if len(parts) == 2 {
		if parts[1] == "" {
			return nil, fmt.Errorf("invalid version format: %q", s)
		}
		v.ReleaseLabels = strings.Split(parts[1], ".")
	}

	numbers := strings.Split(numberPart, ".")
	if len(numbers) < 1 || len(numbers) > 4 {
		return nil, fmt.Errorf("invalid version format: %q", s)
	}

	fields := []*int{&v.Major, &v.Minor, &v.Patch}
	for i, number := range numbers {
		n, err := strconv.Atoi(number)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version component: %q", number)
		}
		if i < 3 {
			*fields[i] = n
		}
		// The fourth component is accepted but dropped. Chocolatey
		// packages commonly ship 4-part versions; the feed stores the
		// SemVer normalization.
	}

	return v, nil
}

// MustParse parses a version string and panics on error.
// Use this only when you know the version string is valid.
func MustParse(s string) *NuGetVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
