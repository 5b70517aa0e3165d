package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/packaging"
)

// VersionPatch holds the version-level fields UpdateVersion may change.
// Nil fields are left untouched.
type VersionPatch struct {
	Title        *string
	Summary      *string
	Description  *string
	ReleaseNotes *string
}

// PackagePatch holds the package-level fields UpdatePackage may change.
// Nil fields are left untouched.
type PackagePatch struct {
	ProjectURL        *string
	LicenseURL        *string
	LicenseAcceptance *bool
	ProjectSourceURL  *string
	PackageSourceURL  *string
	DocsURL           *string
	MailingListURL    *string
	BugTrackerURL     *string
	ReportAbuseURL    *string
}

// UpdateVersion changes version-level metadata. The change is written
// to the row and into the archive's embedded manifest.
//
// If the archive rewrite fails after the old archive was truncated the
// version is corrupt; it is deleted and ErrCriticalUpdateFailure is
// returned.
func (e *Engine) UpdateVersion(ctx context.Context, actor *db.User, id, ver string, patch VersionPatch) (*db.PackageVersion, error) {
	ctx, span := observability.StartUpdateSpan(ctx, id, ver)
	defer span.End()

	var pv *db.PackageVersion
	err := e.db.InTx(ctx, "update_version", func(tx *sql.Tx) error {
		var err error
		pv, err = db.GetPackageVersion(ctx, tx, id, ver)
		if err != nil {
			return err
		}

		pkg, err := pv.GetPackage(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireMaintainer(ctx, tx, pkg, actor); err != nil {
			return err
		}

		if patch.Title != nil {
			pv.Title = optional(*patch.Title)
		}
		if patch.Summary != nil {
			pv.Summary = optional(*patch.Summary)
		}
		if patch.Description != nil {
			pv.Description = optional(*patch.Description)
		}
		if patch.ReleaseNotes != nil {
			pv.ReleaseNotes = optional(*patch.ReleaseNotes)
		}
		pv.Updated = time.Now().UTC()

		if err := e.rewriteArchive(ctx, pkg, pv); err != nil {
			return err
		}
		return pv.Update(ctx, tx)
	})
	if err != nil {
		return nil, e.recoverCriticalFailure(ctx, err, id, ver)
	}
	return pv, nil
}

// UpdatePackage changes package-level metadata and propagates it: every
// version gets a fresh updated timestamp and a rewritten manifest.
func (e *Engine) UpdatePackage(ctx context.Context, actor *db.User, id string, patch PackagePatch) (*db.Package, error) {
	ctx, span := observability.StartUpdateSpan(ctx, id, "")
	defer span.End()

	var pkg *db.Package
	var corruptVersion string
	err := e.db.InTx(ctx, "update_package", func(tx *sql.Tx) error {
		var err error
		pkg, err = db.GetPackage(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireMaintainer(ctx, tx, pkg, actor); err != nil {
			return err
		}

		applyPackagePatch(pkg, patch)

		corrupt, err := e.updatePackageVersions(ctx, tx, pkg, time.Now().UTC())
		if err != nil {
			corruptVersion = corrupt
			return err
		}
		return pkg.Update(ctx, tx)
	})
	if err != nil {
		return nil, e.recoverCriticalFailure(ctx, err, id, corruptVersion)
	}
	return pkg, nil
}

// TransferMaintainer hands a package over to another user. Only the
// current maintainer or the admin may transfer.
func (e *Engine) TransferMaintainer(ctx context.Context, actor *db.User, id, newMaintainer string) (*db.Package, error) {
	var pkg *db.Package
	err := e.db.InTx(ctx, "transfer", func(tx *sql.Tx) error {
		var err error
		pkg, err = db.GetPackage(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireMaintainer(ctx, tx, pkg, actor); err != nil {
			return err
		}

		target, err := db.GetUser(ctx, tx, newMaintainer)
		if err != nil {
			return err
		}
		return pkg.UpdateMaintainer(ctx, tx, target)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Transferred {PackageId} to {User}", id, newMaintainer)
	return pkg, nil
}

func applyPackagePatch(pkg *db.Package, patch PackagePatch) {
	if patch.ProjectURL != nil {
		pkg.ProjectURL = optional(*patch.ProjectURL)
	}
	if patch.LicenseURL != nil {
		pkg.LicenseURL = optional(*patch.LicenseURL)
	}
	if patch.LicenseAcceptance != nil {
		pkg.LicenseAcceptance = *patch.LicenseAcceptance
	}
	if patch.ProjectSourceURL != nil {
		pkg.ProjectSourceURL = optional(*patch.ProjectSourceURL)
	}
	if patch.PackageSourceURL != nil {
		pkg.PackageSourceURL = optional(*patch.PackageSourceURL)
	}
	if patch.DocsURL != nil {
		pkg.DocsURL = optional(*patch.DocsURL)
	}
	if patch.MailingListURL != nil {
		pkg.MailingListURL = optional(*patch.MailingListURL)
	}
	if patch.BugTrackerURL != nil {
		pkg.BugTrackerURL = optional(*patch.BugTrackerURL)
	}
	if patch.ReportAbuseURL != nil {
		pkg.ReportAbuseURL = optional(*patch.ReportAbuseURL)
	}
}

// updatePackageTx persists the package row and propagates the change to
// every version. Used by Upload when a new greatest version carries
// fresh package metadata.
func (e *Engine) updatePackageTx(ctx context.Context, tx *sql.Tx, pkg *db.Package, now time.Time) error {
	if err := pkg.Update(ctx, tx); err != nil {
		return err
	}
	_, err := e.updatePackageVersions(ctx, tx, pkg, now)
	return err
}

// updatePackageVersions rewrites every version's row and archive. On a
// rewrite failure it returns the corrupt version so the caller can
// delete it after rollback.
func (e *Engine) updatePackageVersions(ctx context.Context, tx *sql.Tx, pkg *db.Package, now time.Time) (corruptVersion string, err error) {
	versions, err := pkg.Versions(ctx, tx)
	if err != nil {
		return "", err
	}

	for _, pv := range versions {
		pv.Updated = now
		if err := e.rewriteArchive(ctx, pkg, pv); err != nil {
			if errors.Is(err, ErrCriticalUpdateFailure) {
				return pv.Version, err
			}
			return "", err
		}
		if err := pv.Update(ctx, tx); err != nil {
			return "", err
		}
	}
	return "", nil
}

// rewriteArchive replaces the manifest inside the stored archive so it
// reflects the current row state of pkg and pv.
func (e *Engine) rewriteArchive(ctx context.Context, pkg *db.Package, pv *db.PackageVersion) error {
	handle, err := e.store.Get(pv.ID, pv.Version)
	if err != nil {
		return fmt.Errorf("open archive for rewrite: %w", err)
	}

	data, err := io.ReadAll(handle)
	if err != nil {
		_ = handle.Close()
		return fmt.Errorf("read archive for rewrite: %w", err)
	}

	archive, err := packaging.OpenArchive(data)
	if err != nil {
		_ = handle.Close()
		return err
	}

	nuspec := archive.Nuspec
	nuspec.Metadata.Title = stringOrEmpty(pv.Title)
	nuspec.Metadata.Summary = stringOrEmpty(pv.Summary)
	nuspec.Metadata.Description = stringOrEmpty(pv.Description)
	nuspec.Metadata.ReleaseNotes = stringOrEmpty(pv.ReleaseNotes)
	nuspec.Metadata.IconURL = stringOrEmpty(pv.IconURL)
	nuspec.Metadata.ProjectURL = stringOrEmpty(pkg.ProjectURL)
	nuspec.Metadata.LicenseURL = stringOrEmpty(pkg.LicenseURL)
	nuspec.Metadata.RequireLicenseAcceptance = pkg.LicenseAcceptance
	nuspec.Metadata.ProjectSourceURL = stringOrEmpty(pkg.ProjectSourceURL)
	nuspec.Metadata.PackageSourceURL = stringOrEmpty(pkg.PackageSourceURL)
	nuspec.Metadata.DocsURL = stringOrEmpty(pkg.DocsURL)
	nuspec.Metadata.MailingListURL = stringOrEmpty(pkg.MailingListURL)
	nuspec.Metadata.BugTrackerURL = stringOrEmpty(pkg.BugTrackerURL)
	nuspec.Metadata.ReportAbuseURL = stringOrEmpty(pkg.ReportAbuseURL)

	rewritten, err := archive.Rewrite(nuspec)
	if err != nil {
		_ = handle.Close()
		return err
	}

	// From here on the old archive is gone. Failure leaves a corrupt
	// version behind, which the caller removes.
	handle, err = e.store.Rewrite(pv.ID, pv.Version, handle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCriticalUpdateFailure, err)
	}
	if _, err := handle.Write(rewritten); err != nil {
		_ = handle.Close()
		return fmt.Errorf("%w: %v", ErrCriticalUpdateFailure, err)
	}
	if err := handle.Sync(); err != nil {
		_ = handle.Close()
		return fmt.Errorf("%w: %v", ErrCriticalUpdateFailure, err)
	}
	if err := handle.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCriticalUpdateFailure, err)
	}

	hash, size, err := rehash(rewritten)
	if err != nil {
		return err
	}
	pv.Hash = &hash
	algorithm := packaging.HashAlgorithm
	pv.HashAlgorithm = &algorithm
	pv.Size = size
	return nil
}

func rehash(data []byte) (string, int64, error) {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:]), int64(len(data)), nil
}

// recoverCriticalFailure deletes a version whose archive rewrite failed
// mid-way. Other errors pass through untouched.
func (e *Engine) recoverCriticalFailure(ctx context.Context, err error, id, ver string) error {
	if !errors.Is(err, ErrCriticalUpdateFailure) || ver == "" {
		return err
	}

	e.logger.Error("Archive rewrite of {PackageId} {Version} failed, deleting the corrupt version: {Error}",
		id, ver, err)

	cleanupErr := e.db.InTx(ctx, "recover", func(tx *sql.Tx) error {
		pv, getErr := db.GetPackageVersion(ctx, tx, id, ver)
		if getErr != nil {
			if errors.Is(getErr, db.ErrNotFound) {
				return nil
			}
			return getErr
		}
		return e.deleteVersionTx(ctx, tx, pv)
	})
	if cleanupErr != nil {
		e.logger.Error("Deleting corrupt version {PackageId} {Version} failed: {Error}",
			id, ver, cleanupErr)
	}
	return err
}
