package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/willibrandon/gonuget-server/db"
)

// completionLimit caps the JSON completion answers.
const completionLimit = 30

func writeJSON(w http.ResponseWriter, values []string) {
	if values == nil {
		values = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(values)
}

// completeIDs answers tab completion over package ids.
func (s *Server) completeIDs(w http.ResponseWriter, r *http.Request) {
	partial := odataString(r, "partialId")
	includePrerelease, err := odataBool(r, "includePrerelease")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	all, err := db.AllPackages(ctx, s.db)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var ids []string
	for _, pkg := range all {
		if !strings.HasPrefix(pkg.ID, partial) {
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
			ids = append(ids, pkg.ID)
			break
		}
		if len(ids) == completionLimit {
			break
		}
	}
	writeJSON(w, ids)
}

// completeVersions answers tab completion over the versions of one id.
func (s *Server) completeVersions(w http.ResponseWriter, r *http.Request) {
	includePrerelease, err := odataBool(r, "includePrerelease")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	pkg, err := db.GetPackage(ctx, s.db, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Package not found", http.StatusBadRequest)
			return
		}
		s.internalError(w, r, err)
		return
	}

	versions, err := pkg.Versions(ctx, s.db)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	var answer []string
	for _, pv := range versions {
		if !includePrerelease && pv.SemVer().IsPrerelease() {
			continue
		}
		answer = append(answer, pv.Version)
		if len(answer) == completionLimit {
			break
		}
	}
	writeJSON(w, answer)
}
