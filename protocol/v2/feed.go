package v2

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/willibrandon/gonuget-server/db"
)

// Edm.DateTime values carry no zone suffix; Atom timestamps do.
const (
	atomTimeFormat = "2006-01-02T15:04:05Z"
	edmTimeFormat  = "2006-01-02T15:04:05"
)

// NewFeed creates an empty feed named after the collection or function
// that produced it ("Packages", "Search", ...).
func NewFeed(baseURL, name string) *Feed {
	return &Feed{
		Base:    baseURL + "/api/v2/",
		NSData:  NSDataService,
		NSMeta:  NSMetadata,
		NS:      NSAtom,
		Title:   Text{Type: "text", Value: name},
		ID:      baseURL + "/api/v2/" + name,
		Updated: time.Time{}.UTC().Format(atomTimeFormat),
		Link:    Link{Title: "Packages", Href: "Packages"},
	}
}

// Append adds an entry and advances the feed timestamp to the newest
// entry seen.
func (f *Feed) Append(e *Entry) {
	f.Entries = append(f.Entries, e)
	if e.Updated > f.Updated {
		f.Updated = e.Updated
	}
}

// Encode writes the feed as a complete XML document.
func (f *Feed) Encode(w io.Writer) error {
	return encodeDocument(w, f)
}

// BuildEntry renders one package version as an Atom entry, loading the
// enclosing package, its sibling versions, tags, authors, and
// dependencies.
func BuildEntry(ctx context.Context, q db.Querier, baseURL string, pv *db.PackageVersion) (*Entry, error) {
	pkg, err := pv.GetPackage(ctx, q)
	if err != nil {
		return nil, err
	}
	versions, err := pkg.Versions(ctx, q)
	if err != nil {
		return nil, err
	}
	tags, err := pkg.Tags(ctx, q)
	if err != nil {
		return nil, err
	}
	authors, err := pv.Authors(ctx, q)
	if err != nil {
		return nil, err
	}
	deps, err := dependencyString(ctx, q, pv)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(authors))
	for i, a := range authors {
		names[i] = a.ID
	}

	var downloadCount int64
	for _, sibling := range versions {
		downloadCount += sibling.VersionDownloadCount
	}

	entry := &Entry{
		ID:          fmt.Sprintf("%s/api/v2/Packages(Id='%s',Version='%s')", baseURL, pv.ID, pv.Version),
		Title:       Text{Type: "text", Value: pv.ID},
		Summary:     Text{Type: "text", Value: stringOrEmpty(pv.Summary)},
		Updated:     pv.Updated.UTC().Format(atomTimeFormat),
		AuthorNames: names,
		Category:    Category{Term: EntityCategory, Scheme: NSScheme},
		Content: Content{
			Type: "application/zip",
			Src:  fmt.Sprintf("%s/api/v2/package/%s/%s", baseURL, pv.ID, pv.Version),
		},
		Properties: Properties{
			NSMeta: NSMetadata,
			NSData: NSDataService,

			Version:                  pv.Version,
			Title:                    stringOrEmpty(pv.Title),
			Description:              nullable(pv.Description),
			Tags:                     PreservedText{Space: "preserve", Value: tagList(tags)},
			Created:                  TypedValue{Type: edmDateTime, Value: pv.CreationDate.UTC().Format(edmTimeFormat)},
			Dependencies:             deps,
			DownloadCount:            TypedValue{Type: edmInt32, Value: strconv.FormatInt(downloadCount, 10)},
			VersionDownloadCount:     TypedValue{Type: edmInt32, Value: strconv.FormatInt(pv.VersionDownloadCount, 10)},
			ReportAbuseURL:           nullable(pkg.ReportAbuseURL),
			IconURL:                  nullable(pv.IconURL),
			IsLatestVersion:          boolValue(isLatest(pv, versions, false)),
			IsAbsoluteLatestVersion:  boolValue(isLatest(pv, versions, true)),
			IsPrerelease:             boolValue(pv.SemVer().IsPrerelease()),
			Published:                TypedValue{Type: edmDateTime, Value: pv.CreationDate.UTC().Format(edmTimeFormat)},
			LicenseURL:               nullable(pkg.LicenseURL),
			RequireLicenseAcceptance: boolValue(pkg.LicenseAcceptance),
			PackageHash:              stringOrEmpty(pv.Hash),
			PackageHashAlgorithm:     stringOrEmpty(pv.HashAlgorithm),
			PackageSize:              TypedValue{Type: edmInt64, Value: strconv.FormatInt(pv.Size, 10)},
			ProjectURL:               nullable(pkg.ProjectURL),
			ReleaseNotes:             nullable(pv.ReleaseNotes),
			ProjectSourceURL:         nullable(pkg.ProjectSourceURL),
			PackageSourceURL:         nullable(pkg.PackageSourceURL),
			DocsURL:                  nullable(pkg.DocsURL),
			MailingListURL:           nullable(pkg.MailingListURL),
			BugTrackerURL:            nullable(pkg.BugTrackerURL),
		},
	}
	return entry, nil
}

// AsDocumentRoot prepares the entry for serving on its own, outside a
// feed, by attaching the namespace declarations a feed would carry.
func (e *Entry) AsDocumentRoot(baseURL string) *Entry {
	e.Base = baseURL + "/api/v2/"
	e.NSData = NSDataService
	e.NSMeta = NSMetadata
	e.NS = NSAtom
	return e
}

// Encode writes the entry as a complete XML document.
func (e *Entry) Encode(w io.Writer) error {
	return encodeDocument(w, e)
}

func encodeDocument(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

// isLatest reports whether pv is the newest of versions. With
// absolute unset, prereleases do not count, neither as candidates nor
// as the answer.
func isLatest(pv *db.PackageVersion, versions []*db.PackageVersion, absolute bool) bool {
	var newest *db.PackageVersion
	for _, candidate := range versions {
		if !absolute && candidate.SemVer().IsPrerelease() {
			continue
		}
		if newest == nil || candidate.SemVer().GreaterThan(newest.SemVer()) {
			newest = candidate
		}
	}
	return newest != nil && newest.Equal(pv)
}

// tagList renders the space-padded tag string clients expect, " a b "
// for tags a and b. Without tags it degrades to a single space.
func tagList(tags []*db.Tag) string {
	var b strings.Builder
	b.WriteString(" ")
	for _, t := range tags {
		b.WriteString(t.ID)
		b.WriteString(" ")
	}
	return b.String()
}

// dependencyString encodes the dependency list the way the feed wires
// it: "id:range:" per dependency, joined by "|". An unconstrained
// dependency has an empty range.
func dependencyString(ctx context.Context, q db.Querier, pv *db.PackageVersion) (string, error) {
	deps, err := pv.Dependencies(ctx, q)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(deps))
	for i, dep := range deps {
		rng, err := dep.Requirement().ToNuGet()
		if err != nil {
			return "", fmt.Errorf("dependency %s of %s %s: %w", dep.ID, pv.ID, pv.Version, err)
		}
		parts[i] = dep.ID + ":" + rng + ":"
	}
	return strings.Join(parts, "|"), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolValue(v bool) TypedValue {
	return TypedValue{Type: edmBoolean, Value: strconv.FormatBool(v)}
}
