package registry

import (
	"context"
	"database/sql"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
)

// DeleteVersion removes a single version. Refused with a
// BlockingDependencyError when another version strictly requires it.
// The archive removal is best-effort; the database is the source of
// truth.
func (e *Engine) DeleteVersion(ctx context.Context, actor *db.User, id, ver string) error {
	ctx, span := observability.StartDeleteSpan(ctx, id, ver)
	defer span.End()

	err := e.db.InTx(ctx, "delete", func(tx *sql.Tx) error {
		pv, err := db.GetPackageVersion(ctx, tx, id, ver)
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

		return e.deleteVersionTx(ctx, tx, pv)
	})
	if err != nil {
		observability.RecordError(ctx, err)
		return err
	}

	e.logger.Info("Deleted {PackageId} {Version} by {User}", id, ver, actor.ID)
	e.RefreshFeedGauges(ctx)
	return nil
}

// deleteVersionTx removes the version row, its join edges, and its
// archive, collapsing the package when its last version goes. The
// caller is responsible for permission checks.
func (e *Engine) deleteVersionTx(ctx context.Context, tx *sql.Tx, pv *db.PackageVersion) error {
	blocking, err := pv.BlockingDependents(ctx, tx)
	if err != nil {
		return err
	}
	if len(blocking) > 0 {
		var dependents []string
		for _, dep := range blocking {
			owners, err := dep.Dependents(ctx, tx)
			if err != nil {
				return err
			}
			for _, owner := range owners {
				dependents = append(dependents, owner.ID)
			}
		}
		return &BlockingDependencyError{Target: pv.ID, Dependents: dependents}
	}

	authors, err := pv.Authors(ctx, tx)
	if err != nil {
		return err
	}
	for _, author := range authors {
		if err := author.Disconnect(ctx, tx, pv); err != nil {
			return err
		}
	}

	deps, err := pv.Dependencies(ctx, tx)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		if err := dep.Disconnect(ctx, tx, pv); err != nil {
			return err
		}
	}

	pkg, err := pv.GetPackage(ctx, tx)
	if err != nil {
		return err
	}
	if err := pv.DeleteRow(ctx, tx); err != nil {
		return err
	}

	remaining, err := pkg.Versions(ctx, tx)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if err := pkg.Delete(ctx, tx); err != nil {
			return err
		}
	}

	e.store.Delete(pv.ID, pv.Version)
	return nil
}

// DeletePackage removes every version, newest first. Each version is
// its own transaction: a blocking dependency aborts the operation but
// leaves already-deleted versions gone.
func (e *Engine) DeletePackage(ctx context.Context, actor *db.User, id string) error {
	ctx, span := observability.StartDeleteSpan(ctx, id, "")
	defer span.End()

	versions, err := versionsNewestFirst(ctx, e.db, id)
	if err != nil {
		return err
	}

	for _, pv := range versions {
		if err := e.DeleteVersion(ctx, actor, pv.ID, pv.Version); err != nil {
			return err
		}
	}
	return nil
}

func versionsNewestFirst(ctx context.Context, q db.Querier, id string) ([]*db.PackageVersion, error) {
	pkg, err := db.GetPackage(ctx, q, id)
	if err != nil {
		return nil, err
	}
	versions, err := pkg.Versions(ctx, q)
	if err != nil {
		return nil, err
	}
	db.SortVersionsDescending(versions)
	return versions, nil
}
