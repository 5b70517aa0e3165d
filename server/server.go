// Package server binds the NuGet v2 HTTP surface to the lifecycle
// engine and the feed renderer.
package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/willibrandon/gonuget-server/auth"
	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/registry"
)

// DefaultMaxUploadBytes caps multipart uploads when the configuration
// does not set web.max_upload_filesize_mb.
const DefaultMaxUploadBytes = 250 << 20

// Server serves the /api/v2 feed.
type Server struct {
	db             *db.DB
	engine         *registry.Engine
	logger         observability.Logger
	directory      db.Directory
	health         *observability.HealthChecker
	maxUploadBytes int64
	openForSignup  bool
}

// Options tunes a Server beyond its mandatory collaborators.
type Options struct {
	// MaxUploadBytes caps pushes; zero selects DefaultMaxUploadBytes.
	MaxUploadBytes int64

	// Directory is the external account directory, nil for none.
	Directory db.Directory

	// OpenForRegistration enables the self-service account endpoint.
	OpenForRegistration bool

	// StoragePath, when set, adds the archive store root to the
	// health endpoint.
	StoragePath string
}

// New creates a Server.
func New(database *db.DB, engine *registry.Engine, logger observability.Logger, opts Options) *Server {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Directory == nil {
		opts.Directory = db.NoDirectory{}
	}

	health := observability.NewHealthChecker()
	health.Register(observability.DatabaseHealthCheck("database", database, 2*time.Second))
	if opts.StoragePath != "" {
		health.Register(observability.StorageHealthCheck("storage", opts.StoragePath))
	}

	return &Server{
		db:             database,
		engine:         engine,
		logger:         logger,
		directory:      opts.Directory,
		health:         health,
		maxUploadBytes: opts.MaxUploadBytes,
		openForSignup:  opts.OpenForRegistration,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.instrument)
	r.Use(func(next http.Handler) http.Handler {
		return observability.TraceHandler(next, observability.TracerName)
	})

	r.Route("/api/v2", func(r chi.Router) {
		r.Get("/", s.serviceDocument)
		r.Get("/$metadata", s.metadataDocument)
		r.Get("/Packages", s.packages)
		r.Get("/Packages()", s.packages)
		r.Get("/FindPackagesById", s.findPackagesByID)
		r.Get("/FindPackagesById()", s.findPackagesByID)
		r.Get("/Search", s.search)
		r.Get("/Search()", s.search)
		r.Get("/GetUpdates", s.getUpdates)
		r.Get("/GetUpdates()", s.getUpdates)

		r.Post("/account/register", s.register)
		r.Post("/account/apikey", s.issueAPIKey)

		r.Get("/package-ids", s.completeIDs)
		r.Get("/package-versions/{id}", s.completeVersions)

		r.Get("/package/{id}/{version}", s.download)
		r.Post("/package", s.upload)
		r.Put("/package", s.upload)
		r.Post("/package/{id}/transfer/{username}", s.transfer)
		r.Delete("/package/{id}", s.deletePackage)
		r.Delete("/package/{id}/{version}", s.deleteVersion)

		// Parenthesized OData keys cannot be expressed as a route
		// pattern, so Packages(Id='…',Version='…') lands here.
		r.Get("/*", s.packageEntry)
	})

	r.Handle("/metrics", observability.MetricsHandler())
	r.Get("/health", s.health.Handler())

	return r
}

// baseURL reconstructs the absolute URL prefix clients used to reach
// the feed, which the protocol embeds into every entry.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host
}

// requireUser authenticates the request by its X-NuGet-ApiKey header.
// It writes the error response itself and returns nil when the request
// must not proceed.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) *db.User {
	key := auth.APIKey(r)
	if key == "" {
		http.Error(w, "X-NuGet-ApiKey header required", http.StatusUnauthorized)
		return nil
	}
	user, err := db.GetUserByAPIKey(r.Context(), s.db, key)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "no user with matching API key", http.StatusUnauthorized)
			return nil
		}
		s.internalError(w, r, err)
		return nil
	}
	return user
}

// internalError hides the cause from the client but keeps it in the log.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("Request {Method} {Path} failed: {Error}", r.Method, r.URL.Path, err)
	http.Error(w, "internal error, please try again later", http.StatusInternalServerError)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		observability.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
