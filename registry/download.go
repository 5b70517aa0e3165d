package registry

import (
	"context"

	"github.com/willibrandon/gonuget-server/db"
	"github.com/willibrandon/gonuget-server/observability"
	"github.com/willibrandon/gonuget-server/storage"
)

// Download opens the archive of a version for streaming and bumps its
// download counter. The caller must close the returned handle.
func (e *Engine) Download(ctx context.Context, id, ver string) (*db.PackageVersion, *storage.Handle, error) {
	ctx, span := observability.StartDownloadSpan(ctx, id, ver)
	defer span.End()

	pv, err := db.GetPackageVersion(ctx, e.db, id, ver)
	if err != nil {
		return nil, nil, err
	}

	handle, err := e.store.Get(pv.ID, pv.Version)
	if err != nil {
		return nil, nil, err
	}

	if err := pv.CountDownload(ctx, e.db); err != nil {
		// The download still works; only the statistic is lost.
		e.logger.Warn("Counting download of {PackageId} {Version} failed: {Error}",
			id, ver, err)
	}

	observability.RecordDownload(id)
	return pv, handle, nil
}
