// Package v2 renders the NuGet v2 OData surface: the service document,
// the $metadata schema, and Atom feeds and entries describing package
// versions. The package only renders; query logic lives in the server
// handlers.
//
// encoding/xml has no namespace prefix support, so element names carry
// their prefix literally ("d:Version", "m:properties") and the xmlns
// declarations are plain attributes. Clients parse the result the same
// either way.
package v2

import "encoding/xml"

// ContentType is the media type of every v2 response body.
const ContentType = "application/atom+xml"

// Namespace URIs of the v2 protocol.
const (
	NSAtom        = "http://www.w3.org/2005/Atom"
	NSApp         = "http://www.w3.org/2007/app"
	NSDataService = "http://schemas.microsoft.com/ado/2007/08/dataservices"
	NSMetadata    = "http://schemas.microsoft.com/ado/2007/08/dataservices/metadata"
	NSScheme      = "http://schemas.microsoft.com/ado/2007/08/dataservices/scheme"
)

// EntityCategory is the OData entity type term of every entry.
const EntityCategory = "NuGetGallery.V2FeedPackage"

// Edm primitive type names used in m:type attributes.
const (
	edmDateTime = "Edm.DateTime"
	edmInt32    = "Edm.Int32"
	edmInt64    = "Edm.Int64"
	edmBoolean  = "Edm.Boolean"
)

// Feed is an Atom feed of package entries.
type Feed struct {
	XMLName xml.Name `xml:"feed"`
	Base    string   `xml:"xml:base,attr"`
	NSData  string   `xml:"xmlns:d,attr"`
	NSMeta  string   `xml:"xmlns:m,attr"`
	NS      string   `xml:"xmlns,attr"`

	Title   Text     `xml:"title"`
	ID      string   `xml:"id"`
	Updated string   `xml:"updated"`
	Link    Link     `xml:"link"`
	Entries []*Entry `xml:"entry"`
}

// Entry is one package version rendered as an Atom entry. The namespace
// attributes are only set when the entry is a document root of its own.
type Entry struct {
	XMLName xml.Name `xml:"entry"`
	Base    string   `xml:"xml:base,attr,omitempty"`
	NSData  string   `xml:"xmlns:d,attr,omitempty"`
	NSMeta  string   `xml:"xmlns:m,attr,omitempty"`
	NS      string   `xml:"xmlns,attr,omitempty"`

	ID          string     `xml:"id"`
	Title       Text       `xml:"title"`
	Summary     Text       `xml:"summary"`
	Updated     string     `xml:"updated"`
	AuthorNames []string   `xml:"author>name"`
	Category    Category   `xml:"category"`
	Content     Content    `xml:"content"`
	Properties  Properties `xml:"m:properties"`
}

// Properties is the m:properties block of an entry. Field order matches
// the order clients see from chocolatey.org.
type Properties struct {
	NSMeta string `xml:"xmlns:m,attr"`
	NSData string `xml:"xmlns:d,attr"`

	Version                  string         `xml:"d:Version"`
	Title                    string         `xml:"d:Title"`
	Description              NullableString `xml:"d:Description"`
	Tags                     PreservedText  `xml:"d:Tags"`
	Created                  TypedValue     `xml:"d:Created"`
	Dependencies             string         `xml:"d:Dependencies"`
	DownloadCount            TypedValue     `xml:"d:DownloadCount"`
	VersionDownloadCount     TypedValue     `xml:"d:VersionDownloadCount"`
	ReportAbuseURL           NullableString `xml:"d:ReportAbuseUrl"`
	IconURL                  NullableString `xml:"d:IconUrl"`
	IsLatestVersion          TypedValue     `xml:"d:IsLatestVersion"`
	IsAbsoluteLatestVersion  TypedValue     `xml:"d:IsAbsoluteLatestVersion"`
	IsPrerelease             TypedValue     `xml:"d:IsPrerelease"`
	Published                TypedValue     `xml:"d:Published"`
	LicenseURL               NullableString `xml:"d:LicenseUrl"`
	RequireLicenseAcceptance TypedValue     `xml:"d:RequireLicenseAcceptance"`
	PackageHash              string         `xml:"d:PackageHash"`
	PackageHashAlgorithm     string         `xml:"d:PackageHashAlgorithm"`
	PackageSize              TypedValue     `xml:"d:PackageSize"`
	ProjectURL               NullableString `xml:"d:ProjectUrl"`
	ReleaseNotes             NullableString `xml:"d:ReleaseNotes"`
	ProjectSourceURL         NullableString `xml:"d:ProjectSourceUrl"`
	PackageSourceURL         NullableString `xml:"d:PackageSourceUrl"`
	DocsURL                  NullableString `xml:"d:DocsUrl"`
	MailingListURL           NullableString `xml:"d:MailingListUrl"`
	BugTrackerURL            NullableString `xml:"d:BugTrackerUrl"`
}

// Text is an Atom text construct.
type Text struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Link is an Atom link element.
type Link struct {
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// Category tags an entry with its OData entity type.
type Category struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr"`
}

// Content points clients at the archive download.
type Content struct {
	Type string `xml:"type,attr"`
	Src  string `xml:"src,attr"`
}

// NullableString renders an optional OData property. An absent value
// becomes an empty element carrying m:null="true".
type NullableString struct {
	Null  string `xml:"m:null,attr,omitempty"`
	Value string `xml:",chardata"`
}

func nullable(s *string) NullableString {
	if s == nil {
		return NullableString{Null: "true"}
	}
	return NullableString{Value: *s}
}

// TypedValue renders a non-string OData property with its Edm type.
type TypedValue struct {
	Type  string `xml:"m:type,attr"`
	Value string `xml:",chardata"`
}

// PreservedText keeps significant whitespace, used for the space-padded
// tag list.
type PreservedText struct {
	Space string `xml:"xml:space,attr"`
	Value string `xml:",chardata"`
}
