package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/packaging"
	"github.com/willibrandon/gonuget-server/registry"
	"github.com/willibrandon/gonuget-server/version"
)

// download streams the archive of one version and counts the download.
func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ver, err := version.Parse(chi.URLParam(r, "version"))
	if err != nil {
		http.Error(w, "Version value invalid", http.StatusUnprocessableEntity)
		return
	}

	pv, handle, err := s.engine.Download(r.Context(), id, ver.ToNormalizedString())
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Package not found", http.StatusNotFound)
			return
		}
		s.internalError(w, r, err)
		return
	}
	defer func() { _ = handle.Close() }()

	w.Header().Set("Content-Type", "application/zip")
	if _, err := io.Copy(w, handle); err != nil {
		// The response is already underway, nothing to send anymore.
		s.logger.Warn("Streaming {PackageId} {Version} aborted: {Error}", pv.ID, pv.Version, err)
	}
}

// upload ingests a multipart nupkg push.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, _, err := r.FormFile("package")
	if err != nil {
		observability.PackageUploadsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "package is no File", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		observability.PackageUploadsTotal.WithLabelValues("rejected").Inc()
		http.Error(w, "reading upload failed", http.StatusBadRequest)
		return
	}
	observability.PackageUploadBytes.Observe(float64(len(data)))

	pv, err := s.engine.Upload(r.Context(), user, data)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrPermissionDenied):
			observability.PackageUploadsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, "only the maintainer or admin is allowed to update a package", http.StatusForbidden)
		case errors.Is(err, registry.ErrNotConfirmed):
			observability.PackageUploadsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, "account is not confirmed", http.StatusForbidden)
		case errors.Is(err, packaging.ErrInvalidArchive),
			errors.Is(err, packaging.ErrNuspecNotFound),
			errors.Is(err, packaging.ErrInvalidManifest),
			errors.Is(err, registry.ErrInvalidVersion),
			errors.Is(err, version.ErrInvalidRange),
			errors.Is(err, db.ErrNotFound):
			observability.PackageUploadsTotal.WithLabelValues("rejected").Inc()
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			observability.PackageUploadsTotal.WithLabelValues("failure").Inc()
			s.internalError(w, r, err)
		}
		return
	}

	observability.PackageUploadsTotal.WithLabelValues("success").Inc()
	w.WriteHeader(http.StatusOK)
	s.logger.Info("Pushed {PackageId} {Version}", pv.ID, pv.Version)
}

func (s *Server) deleteVersion(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	id := chi.URLParam(r, "id")
	ver, err := version.Parse(chi.URLParam(r, "version"))
	if err != nil {
		http.Error(w, "Version value invalid", http.StatusUnprocessableEntity)
		return
	}

	err = s.engine.DeleteVersion(r.Context(), user, id, ver.ToNormalizedString())
	s.finishDelete(w, r, err)
}

func (s *Server) deletePackage(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	err := s.engine.DeletePackage(r.Context(), user, chi.URLParam(r, "id"))
	s.finishDelete(w, r, err)
}

func (s *Server) finishDelete(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *registry.BlockingDependencyError
	switch {
	case err == nil:
		observability.PackageDeletionsTotal.WithLabelValues("success").Inc()
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "Package not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrPermissionDenied):
		http.Error(w, "only the maintainer or admin is allowed to delete a package", http.StatusForbidden)
	case errors.As(err, &blocked):
		observability.PackageDeletionsTotal.WithLabelValues("blocked").Inc()
		http.Error(w, blocked.Error(), http.StatusForbidden)
	default:
		observability.PackageDeletionsTotal.WithLabelValues("failure").Inc()
		s.internalError(w, r, err)
	}
}

// transfer hands a package over to a new maintainer. Only the current
// maintainer or the admin may do this.
func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	user := s.requireUser(w, r)
	if user == nil {
		return
	}

	id := chi.URLParam(r, "id")
	target := chi.URLParam(r, "username")
	_, err := s.engine.TransferMaintainer(r.Context(), user, id, target)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "package or user not found", http.StatusNotFound)
	case errors.Is(err, registry.ErrPermissionDenied):
		http.Error(w, "only the maintainer or admin may transfer a package", http.StatusForbidden)
	default:
		s.internalError(w, r, err)
	}
}
