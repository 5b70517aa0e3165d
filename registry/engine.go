// Package registry implements the package lifecycle engine: ingesting
// uploaded archives, updating metadata, and deleting versions under the
// dependency safety rules.
package registry

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/packaging"
	"github.com/willibrandon/gonuget-server/storage"
	"github.com/willibrandon/gonuget-server/version"
)

// Engine coordinates the database, the archive store, and manifest
// parsing. It is safe for concurrent use; every operation is driven by
// its own transaction.
type Engine struct {
	db     *db.DB
	store  *storage.Store
	logger observability.Logger
}

// New creates an Engine.
func New(database *db.DB, store *storage.Store, logger observability.Logger) *Engine {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Engine{db: database, store: store, logger: logger}
}

// Upload ingests a nupkg uploaded by the given user and returns the
// created version row.
//
// Re-uploading an existing (id, version) replaces it: the old row, its
// join edges, and its archive are removed inside the same transaction
// before the new ones are written. The stored archive is byte-identical
// to what the client sent.
func (e *Engine) Upload(ctx context.Context, uploader *db.User, data []byte) (*db.PackageVersion, error) {
	if !uploader.Confirmed {
		return nil, ErrNotConfirmed
	}

	archive, err := packaging.OpenArchive(data)
	if err != nil {
		return nil, err
	}

	meta := &archive.Nuspec.Metadata
	ver, err := version.Parse(meta.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVersion, err)
	}

	ctx, span := observability.StartUploadSpan(ctx, meta.ID, ver.ToNormalizedString())
	defer span.End()

	now := time.Now().UTC()
	hash := archive.Hash
	hashAlgorithm := packaging.HashAlgorithm
	pv := &db.PackageVersion{
		ID:            meta.ID,
		Version:       ver.ToNormalizedString(),
		CreationDate:  now,
		Updated:       now,
		Hash:          &hash,
		HashAlgorithm: &hashAlgorithm,
		Size:          archive.Size(),
	}
	applyVersionMetadata(pv, meta)

	err = e.db.InTx(ctx, "upload", func(tx *sql.Tx) error {
		// The maintainer check comes before the replace-delete below so a
		// foreign uploader cannot free the package id by re-pushing its
		// only version.
		pkg, err := db.GetPackage(ctx, tx, pv.ID)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			return err
		}
		if pkg != nil {
			if err := requireMaintainer(ctx, tx, pkg, uploader); err != nil {
				return err
			}
		}

		if existing, err := db.GetPackageVersion(ctx, tx, pv.ID, pv.Version); err == nil {
			// Deleting the last version collapses the package row; it is
			// recreated below with its maintainer preserved.
			if err := e.deleteVersionTx(ctx, tx, existing); err != nil {
				return err
			}
		} else if !errors.Is(err, db.ErrNotFound) {
			return err
		}

		switch {
		case pkg == nil:
			pkg = &db.Package{ID: pv.ID, Maintainer: uploader.ID}
			applyPackageMetadata(pkg, meta)
			if err := pkg.Insert(ctx, tx); err != nil {
				return err
			}
		default:
			if _, err := db.GetPackage(ctx, tx, pv.ID); errors.Is(err, db.ErrNotFound) {
				applyPackageMetadata(pkg, meta)
				if err := pkg.Insert(ctx, tx); err != nil {
					return err
				}
				break
			} else if err != nil {
				return err
			}

			greatest, err := isStrictlyGreatest(ctx, tx, pkg, pv)
			if err != nil {
				return err
			}
			if greatest {
				applyPackageMetadata(pkg, meta)
				if err := e.updatePackageTx(ctx, tx, pkg, now); err != nil {
					return err
				}
			}
		}

		if err := pv.Insert(ctx, tx); err != nil {
			return err
		}

		if err := e.connectDependencies(ctx, tx, pv, archive.Nuspec); err != nil {
			return err
		}
		if err := connectTags(ctx, tx, pkg, archive.Nuspec); err != nil {
			return err
		}
		if err := connectAuthors(ctx, tx, pv, archive.Nuspec); err != nil {
			return err
		}

		return e.store.Store(pv.ID, pv.Version, bytes.NewReader(data))
	})
	if err != nil {
		// The archive may have been written before the transaction
		// aborted. The database is the source of truth, so clean up.
		e.store.Delete(pv.ID, pv.Version)
		observability.RecordError(ctx, err)
		return nil, err
	}

	e.logger.Info("Uploaded {PackageId} {Version} by {User}", pv.ID, pv.Version, uploader.ID)
	e.RefreshFeedGauges(ctx)
	return pv, nil
}

// RefreshFeedGauges recomputes the package and version count gauges
// from the database. Called after every upload and delete, and once at
// startup.
func (e *Engine) RefreshFeedGauges(ctx context.Context) {
	packages, versions, err := e.db.Counts(ctx)
	if err != nil {
		e.logger.Warn("Could not refresh feed size gauges: {Error}", err)
		return
	}
	observability.SetFeedSize(packages, versions)
}

func (e *Engine) connectDependencies(ctx context.Context, tx *sql.Tx, pv *db.PackageVersion, nuspec *packaging.Nuspec) error {
	deps, err := nuspec.GetDependencies()
	if err != nil {
		return err
	}

	for _, dep := range deps {
		// Chocolatey injects a synthetic dependency on its own
		// extension packages; those never live in this feed.
		if strings.HasPrefix(strings.ToLower(dep.ID), "chocolatey-core") {
			continue
		}

		req := version.Any()
		if dep.Version != "" {
			req, err = version.ParseNuGetRange(dep.Version)
			if err != nil {
				return fmt.Errorf("dependency %s: %w", dep.ID, err)
			}
		}

		existing, err := db.GetDependency(ctx, tx, dep.ID, req)
		switch {
		case err == nil:
			if err := existing.Connect(ctx, tx, pv); err != nil {
				return err
			}
		case errors.Is(err, db.ErrNotFound):
			if _, err := db.NewDependency(ctx, tx, pv, dep.ID, req); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func connectTags(ctx context.Context, tx *sql.Tx, pkg *db.Package, nuspec *packaging.Nuspec) error {
	for _, name := range nuspec.GetTags() {
		tag, err := db.GetTag(ctx, tx, name)
		switch {
		case err == nil:
			if err := tag.Connect(ctx, tx, pkg); err != nil {
				return err
			}
		case errors.Is(err, db.ErrNotFound):
			if _, err := db.NewTag(ctx, tx, pkg, name); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func connectAuthors(ctx context.Context, tx *sql.Tx, pv *db.PackageVersion, nuspec *packaging.Nuspec) error {
	for _, name := range nuspec.GetAuthors() {
		author, err := db.GetAuthor(ctx, tx, name)
		switch {
		case err == nil:
			if err := author.Connect(ctx, tx, pv); err != nil {
				return err
			}
		case errors.Is(err, db.ErrNotFound):
			if _, err := db.NewAuthor(ctx, tx, pv, name); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// requireMaintainer fails with ErrPermissionDenied unless the actor
// maintains the package or is the admin.
func requireMaintainer(ctx context.Context, q db.Querier, pkg *db.Package, actor *db.User) error {
	if actor.IsAdmin() || pkg.Maintainer == actor.ID {
		return nil
	}
	return fmt.Errorf("%s is not the maintainer of %s: %w", actor.ID, pkg.ID, ErrPermissionDenied)
}

// isStrictlyGreatest reports whether pv is greater than every existing
// version of the package. Only then may an upload rewrite the shared
// package-level metadata.
func isStrictlyGreatest(ctx context.Context, q db.Querier, pkg *db.Package, pv *db.PackageVersion) (bool, error) {
	versions, err := pkg.Versions(ctx, q)
	if err != nil {
		return false, err
	}
	for _, existing := range versions {
		if !pv.SemVer().GreaterThan(existing.SemVer()) {
			return false, nil
		}
	}
	return true, nil
}

func applyVersionMetadata(pv *db.PackageVersion, meta *packaging.NuspecMetadata) {
	pv.Title = optional(meta.Title)
	pv.Summary = optional(meta.Summary)
	pv.Description = optional(meta.Description)
	pv.ReleaseNotes = optional(meta.ReleaseNotes)
	pv.IconURL = optional(meta.IconURL)
}

func applyPackageMetadata(pkg *db.Package, meta *packaging.NuspecMetadata) {
	pkg.ProjectURL = optional(meta.ProjectURL)
	pkg.LicenseURL = optional(meta.LicenseURL)
	pkg.LicenseAcceptance = meta.RequireLicenseAcceptance
	pkg.ProjectSourceURL = optional(meta.ProjectSourceURL)
	pkg.PackageSourceURL = optional(meta.PackageSourceURL)
	pkg.DocsURL = optional(meta.DocsURL)
	pkg.MailingListURL = optional(meta.MailingListURL)
	pkg.BugTrackerURL = optional(meta.BugTrackerURL)
	pkg.ReportAbuseURL = optional(meta.ReportAbuseURL)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
