package server

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	v2 "github.com/willibrandon/gonuget-server/protocol/v2"
	"github.com/willibrandon/gonuget-server/version"
)

// OData string literals arrive quoted, sometimes with escaped quotes.
const odataQuotes = `\"'`

func odataString(r *http.Request, name string) string {
	return strings.Trim(r.URL.Query().Get(name), odataQuotes)
}

func odataBool(r *http.Request, name string) (bool, error) {
	raw := strings.Trim(r.URL.Query().Get(name), odataQuotes)
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s is no boolean", name)
	}
	return value, nil
}

func (s *Server) serviceDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", v2.ContentType)
	_, _ = w.Write([]byte(v2.ServiceDocument(baseURL(r))))
}

func (s *Server) metadataDocument(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", v2.ContentType)
	_, _ = w.Write([]byte(v2.MetadataDocument))
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, name string, versions []*db.PackageVersion) {
	feed := v2.NewFeed(baseURL(r), name)
	for _, pv := range versions {
		entry, err := v2.BuildEntry(r.Context(), s.db, baseURL(r), pv)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		feed.Append(entry)
	}

	w.Header().Set("Content-Type", v2.ContentType)
	if err := feed.Encode(w); err != nil {
		s.logger.Warn("Encoding {Feed} feed failed: {Error}", name, err)
	}
}

// packages lists the newest version of every package.
func (s *Server) packages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	all, err := db.AllPackages(ctx, s.db)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var latest []*db.PackageVersion
	for _, pkg := range all {
		newest, err := pkg.NewestVersion(ctx, s.db)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		latest = append(latest, newest)
	}
	s.writeFeed(w, r, "Packages", latest)
}

var packageKeyPattern = regexp.MustCompile(`^Packages\(Id='([^']*)'\s*,Version='([^']*)'\)$`)

// packageEntry serves Packages(Id='…',Version='…') as a standalone
// entry document.
func (s *Server) packageEntry(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v2/")
	match := packageKeyPattern.FindStringSubmatch(rest)
	if match == nil {
		http.NotFound(w, r)
		return
	}

	ver, err := version.Parse(match[2])
	if err != nil {
		http.Error(w, "Version value invalid", http.StatusUnprocessableEntity)
		return
	}

	pv, err := db.GetPackageVersion(r.Context(), s.db, match[1], ver.ToNormalizedString())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Package not found", http.StatusNotFound)
			return
		}
		s.internalError(w, r, err)
		return
	}

	entry, err := v2.BuildEntry(r.Context(), s.db, baseURL(r), pv)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", v2.ContentType)
	if err := entry.AsDocumentRoot(baseURL(r)).Encode(w); err != nil {
		s.logger.Warn("Encoding entry failed: {Error}", err)
	}
}

// findPackagesByID lists every version of one package id.
func (s *Server) findPackagesByID(w http.ResponseWriter, r *http.Request) {
	id := odataString(r, "id")
	if id == "" {
		http.Error(w, "id is no String", http.StatusBadRequest)
		return
	}

	pkg, err := db.GetPackage(r.Context(), s.db, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Package not found", http.StatusNotFound)
			return
		}
		s.internalError(w, r, err)
		return
	}

	versions, err := pkg.Versions(r.Context(), s.db)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeFeed(w, r, "FindPackagesById", versions)
}

// search filters packages by substring match on id or tag and renders
// every version of each match, minus prereleases unless asked for.
func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	if _, ok := r.URL.Query()["searchTerm"]; !ok {
		http.Error(w, "searchTerm is no String", http.StatusBadRequest)
		return
	}
	term := odataString(r, "searchTerm")
	includePrerelease, err := odataBool(r, "includePrerelease")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, span := observability.StartSearchSpan(r.Context(), "search", term)
	defer span.End()

	all, err := db.AllPackages(ctx, s.db)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var hits []*db.PackageVersion
	for _, pkg := range all {
		matched := strings.Contains(pkg.ID, term)
		if !matched {
			tags, err := pkg.Tags(ctx, s.db)
			if err != nil {
				s.internalError(w, r, err)
				return
			}
			for _, tag := range tags {
				if strings.Contains(tag.ID, term) {
					matched = true
					break
				}
			}
		}
		if !matched {
			continue
		}

		versions, err := pkg.Versions(ctx, s.db)
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		for _, pv := range versions {
			if !includePrerelease && pv.SemVer().IsPrerelease() {
				continue
			}
			hits = append(hits, pv)
		}
	}
	s.writeFeed(w, r, "Search", hits)
}

// getUpdates lists versions newer than the (id, version) pairs the
// client holds. Unlike upstream chocolatey servers of old,
// includePrerelease == false really does exclude prereleases here.
func (s *Server) getUpdates(w http.ResponseWriter, r *http.Request) {
	rawIDs := odataString(r, "packageIds")
	if rawIDs == "" {
		rawIDs = odataString(r, "packageids")
	}
	if rawIDs == "" {
		http.Error(w, "packageIds is no String", http.StatusBadRequest)
		return
	}
	rawVersions := odataString(r, "versions")
	if rawVersions == "" {
		http.Error(w, "versions is no String", http.StatusBadRequest)
		return
	}
	includePrerelease, err := odataBool(r, "includePrerelease")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	includeAllVersions, err := odataBool(r, "includeAllVersions")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := strings.Split(rawIDs, "|")
	currents := strings.Split(rawVersions, "|")
	if len(currents) < len(ids) {
		ids = ids[:len(currents)]
	}

	ctx := r.Context()
	var updates []*db.PackageVersion
	for i, id := range ids {
		current, err := version.Parse(currents[i])
		if err != nil {
			http.Error(w, "Version value invalid", http.StatusBadRequest)
			return
		}

		pkg, err := db.GetPackage(ctx, s.db, id)
		if err != nil {
			// An id the feed does not carry must not fail the whole
			// batch; the client asks about everything it has installed.
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			s.internalError(w, r, err)
			return
		}
		versions, err := pkg.Versions(ctx, s.db)
		if err != nil {
			s.internalError(w, r, err)
			return
		}

		var candidates []*db.PackageVersion
		for _, pv := range versions {
			if !includePrerelease && pv.SemVer().IsPrerelease() {
				continue
			}
			if pv.SemVer().GreaterThan(current) {
				candidates = append(candidates, pv)
			}
		}
		if len(candidates) == 0 {
			continue
		}

		if includeAllVersions {
			updates = append(updates, candidates...)
			continue
		}
		newest := candidates[0]
		for _, pv := range candidates[1:] {
			if pv.SemVer().GreaterThan(newest.SemVer()) {
				newest = pv
			}
		}
		updates = append(updates, newest)
	}
	s.writeFeed(w, r, "GetUpdates", updates)
}
