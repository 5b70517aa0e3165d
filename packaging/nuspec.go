// Package packaging reads and rewrites nupkg archives server-side.
//
// A nupkg is a ZIP archive carrying a .nuspec XML manifest. The feed only
// cares about the manifest and the raw bytes; assemblies and tools inside
// the archive are opaque.
package packaging

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// NuspecNamespaceV6 is the most recent nuspec schema namespace (2013/05).
const NuspecNamespaceV6 = "http://schemas.microsoft.com/packaging/2013/05/nuspec.xsd"

// Nuspec represents a parsed .nuspec manifest.
type Nuspec struct {
	XMLName  xml.Name       `xml:"package"`
	Xmlns    string         `xml:"xmlns,attr,omitempty"`
	Metadata NuspecMetadata `xml:"metadata"`
}

// NuspecMetadata represents the metadata section. It carries the standard
// NuGet fields plus the Chocolatey extensions (packageSourceUrl, docsUrl,
// mailingListUrl, bugTrackerUrl).
type NuspecMetadata struct {
	// Required fields
	ID      string `xml:"id"`
	Version string `xml:"version"`

	// Version-level metadata
	Title        string `xml:"title,omitempty"`
	Summary      string `xml:"summary,omitempty"`
	Description  string `xml:"description,omitempty"`
	ReleaseNotes string `xml:"releaseNotes,omitempty"`
	IconURL      string `xml:"iconUrl,omitempty"`
	Authors      string `xml:"authors,omitempty"`
	Tags         string `xml:"tags,omitempty"`

	// Package-level metadata
	ProjectURL               string `xml:"projectUrl,omitempty"`
	LicenseURL               string `xml:"licenseUrl,omitempty"`
	RequireLicenseAcceptance bool   `xml:"requireLicenseAcceptance,omitempty"`
	ProjectSourceURL         string `xml:"projectSourceUrl,omitempty"`
	PackageSourceURL         string `xml:"packageSourceUrl,omitempty"`
	DocsURL                  string `xml:"docsUrl,omitempty"`
	MailingListURL           string `xml:"mailingListUrl,omitempty"`
	BugTrackerURL            string `xml:"bugTrackerUrl,omitempty"`
	ReportAbuseURL           string `xml:"reportAbuseUrl,omitempty"`

	Dependencies *DependenciesElement `xml:"dependencies,omitempty"`
}

// DependenciesElement represents the dependencies container.
type DependenciesElement struct {
	Groups []DependencyGroup `xml:"group"`
	// Legacy: dependencies without groups (applies to all frameworks)
	Dependencies []Dependency `xml:"dependency"`
}

// DependencyGroup represents dependencies for a specific framework.
type DependencyGroup struct {
	TargetFramework string       `xml:"targetFramework,attr,omitempty"`
	Dependencies    []Dependency `xml:"dependency"`
}

// Dependency represents a package dependency.
type Dependency struct {
	ID      string `xml:"id,attr"`
	Version string `xml:"version,attr,omitempty"` // Version range string
}

// ParseNuspec parses a .nuspec XML document.
func ParseNuspec(r io.Reader) (*Nuspec, error) {
	decoder := xml.NewDecoder(r)

	var nuspec Nuspec
	if err := decoder.Decode(&nuspec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	return &nuspec, nil
}

// GetAuthors returns the list of authors. Authors are comma-separated.
func (n *Nuspec) GetAuthors() []string {
	if n.Metadata.Authors == "" {
		return []string{}
	}

	authors := strings.Split(n.Metadata.Authors, ",")
	for i := range authors {
		authors[i] = strings.TrimSpace(authors[i])
	}

	return authors
}

// GetTags returns the list of tags. Tags are whitespace-separated.
func (n *Nuspec) GetTags() []string {
	if n.Metadata.Tags == "" {
		return []string{}
	}

	return strings.Fields(n.Metadata.Tags)
}

// GetDependencies returns every dependency across grouped and legacy
// flat children, in document order with grouped entries first.
//
// Dependencies whose id starts with "chocolatey-core" are skipped: the
// Chocolatey host injects those synthetically and a feed must not track
// them.
func (n *Nuspec) GetDependencies() ([]Dependency, error) {
	if n.Metadata.Dependencies == nil {
		return nil, nil
	}

	var all []Dependency
	for _, group := range n.Metadata.Dependencies.Groups {
		all = append(all, group.Dependencies...)
	}
	all = append(all, n.Metadata.Dependencies.Dependencies...)

	var deps []Dependency
	for _, dep := range all {
		if dep.ID == "" {
			return nil, fmt.Errorf("%w: dependency without id attribute", ErrInvalidManifest)
		}
		if strings.HasPrefix(dep.ID, "chocolatey-core") {
			continue
		}
		deps = append(deps, dep)
	}

	return deps, nil
}
