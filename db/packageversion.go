package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/willibrandon/gonuget-server/version"
)

// PackageVersion is one row of the packageversion table: an uploaded
// archive with its per-version metadata and content digest.
type PackageVersion struct {
	ID                   string
	Version              string
	CreationDate         time.Time
	Title                *string
	Summary              *string
	Updated              time.Time
	Description          *string
	VersionDownloadCount int64
	ReleaseNotes         *string
	Hash                 *string
	HashAlgorithm        *string
	Size                 int64
	IconURL              *string

	semver *version.NuGetVersion
}

const packageVersionColumns = `id, version, creation_date, title, summary,
	updated, description, version_download_count, release_notes, hash,
	hash_algorithm, size, icon_url`

func scanPackageVersion(row rowScanner) (*PackageVersion, error) {
	var pv PackageVersion
	err := row.Scan(&pv.ID, &pv.Version, &pv.CreationDate, &pv.Title,
		&pv.Summary, &pv.Updated, &pv.Description, &pv.VersionDownloadCount,
		&pv.ReleaseNotes, &pv.Hash, &pv.HashAlgorithm, &pv.Size, &pv.IconURL)
	if err != nil {
		return nil, err
	}
	return &pv, nil
}

// SemVer returns the parsed version. The column only ever holds
// normalized versions written by the engine, so parsing cannot fail.
func (pv *PackageVersion) SemVer() *version.NuGetVersion {
	if pv.semver == nil {
		pv.semver = version.MustParse(pv.Version)
	}
	return pv.semver
}

// Equal reports identity, the (id, version) primary key.
func (pv *PackageVersion) Equal(other *PackageVersion) bool {
	return pv.ID == other.ID && pv.Version == other.Version
}

// GetPackageVersion loads one version row by its primary key.
func GetPackageVersion(ctx context.Context, q Querier, id, ver string) (*PackageVersion, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+packageVersionColumns+` FROM packageversion
		 WHERE id = ? AND version = ?`, id, ver)
	pv, err := scanPackageVersion(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("package version %s %s", id, ver))
	}
	return pv, nil
}

// AllPackageVersions loads every version row in the feed.
func AllPackageVersions(ctx context.Context, q Querier) ([]*PackageVersion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageVersionColumns+` FROM packageversion ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load package versions: %w", err)
	}
	defer rows.Close()
	return collectPackageVersions(rows)
}

func versionsOf(ctx context.Context, q Querier, id string) ([]*PackageVersion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageVersionColumns+` FROM packageversion WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("load versions of %s: %w", id, err)
	}
	defer rows.Close()
	return collectPackageVersions(rows)
}

func collectPackageVersions(rows *sql.Rows) ([]*PackageVersion, error) {
	var versions []*PackageVersion
	for rows.Next() {
		pv, err := scanPackageVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package version: %w", err)
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

// Insert stores a new version row.
func (pv *PackageVersion) Insert(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO packageversion (`+packageVersionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pv.ID, pv.Version, pv.CreationDate, pv.Title, pv.Summary, pv.Updated,
		pv.Description, pv.VersionDownloadCount, pv.ReleaseNotes, pv.Hash,
		pv.HashAlgorithm, pv.Size, pv.IconURL)
	if err != nil {
		return fmt.Errorf("insert version %s %s: %w", pv.ID, pv.Version, err)
	}
	return nil
}

// Update persists all mutable columns of the version row.
func (pv *PackageVersion) Update(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`UPDATE packageversion SET creation_date = ?, title = ?, summary = ?,
		 updated = ?, description = ?, version_download_count = ?,
		 release_notes = ?, hash = ?, hash_algorithm = ?, size = ?,
		 icon_url = ?
		 WHERE id = ? AND version = ?`,
		pv.CreationDate, pv.Title, pv.Summary, pv.Updated, pv.Description,
		pv.VersionDownloadCount, pv.ReleaseNotes, pv.Hash, pv.HashAlgorithm,
		pv.Size, pv.IconURL, pv.ID, pv.Version)
	if err != nil {
		return fmt.Errorf("update version %s %s: %w", pv.ID, pv.Version, err)
	}
	return nil
}

// DeleteRow removes only the version row itself. Lifecycle concerns,
// disconnecting authors and dependencies and collapsing the package,
// live in the registry engine.
func (pv *PackageVersion) DeleteRow(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM packageversion WHERE id = ? AND version = ?`,
		pv.ID, pv.Version)
	if err != nil {
		return fmt.Errorf("delete version %s %s: %w", pv.ID, pv.Version, err)
	}
	return nil
}

// CountDownload increments the per-version download counter.
func (pv *PackageVersion) CountDownload(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`UPDATE packageversion SET version_download_count = version_download_count + 1
		 WHERE id = ? AND version = ?`, pv.ID, pv.Version)
	if err != nil {
		return fmt.Errorf("count download of %s %s: %w", pv.ID, pv.Version, err)
	}
	pv.VersionDownloadCount++
	return nil
}

// GetPackage loads the owning package row.
func (pv *PackageVersion) GetPackage(ctx context.Context, q Querier) (*Package, error) {
	return GetPackage(ctx, q, pv.ID)
}

// Authors loads the authors connected to this version.
func (pv *PackageVersion) Authors(ctx context.Context, q Querier) ([]*Author, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT a.id FROM author a
		 JOIN packageversion_has_author pa ON pa.author_id = a.id
		 WHERE pa.id = ? AND pa.version = ?
		 ORDER BY a.id`, pv.ID, pv.Version)
	if err != nil {
		return nil, fmt.Errorf("load authors of %s %s: %w", pv.ID, pv.Version, err)
	}
	defer rows.Close()

	var authors []*Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, &a)
	}
	return authors, rows.Err()
}

// Dependencies loads the dependency edges declared by this version.
func (pv *PackageVersion) Dependencies(ctx context.Context, q Querier) ([]*Dependency, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT d.id, d.version_req FROM dependency d
		 JOIN packageversion_has_dependency pd
		   ON pd.dependency_package_id = d.id AND pd.version_req = d.version_req
		 WHERE pd.id = ? AND pd.version = ?
		 ORDER BY d.id, d.version_req`, pv.ID, pv.Version)
	if err != nil {
		return nil, fmt.Errorf("load dependencies of %s %s: %w", pv.ID, pv.Version, err)
	}
	defer rows.Close()
	return collectDependencies(rows)
}

// dependenciesOnSelf loads every dependency edge in the feed whose
// target package is this version's package.
func (pv *PackageVersion) dependenciesOnSelf(ctx context.Context, q Querier) ([]*Dependency, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT DISTINCT d.id, d.version_req FROM dependency d
		 JOIN packageversion_has_dependency pd
		   ON pd.dependency_package_id = d.id AND pd.version_req = d.version_req
		 WHERE pd.dependency_package_id = ?`, pv.ID)
	if err != nil {
		return nil, fmt.Errorf("load dependents of %s: %w", pv.ID, err)
	}
	defer rows.Close()
	return collectDependencies(rows)
}

// CurrentDependents returns the dependency edges whose newest
// resolution is exactly this version.
func (pv *PackageVersion) CurrentDependents(ctx context.Context, q Querier) ([]*Dependency, error) {
	edges, err := pv.dependenciesOnSelf(ctx, q)
	if err != nil {
		return nil, err
	}

	var results []*Dependency
	for _, dep := range edges {
		newest, err := dep.NewestResolution(ctx, q)
		if err != nil {
			return nil, err
		}
		if newest.Equal(pv) {
			results = append(results, dep)
		}
	}
	return results, nil
}

// PossibleDependents returns the dependency edges this version can
// satisfy.
func (pv *PackageVersion) PossibleDependents(ctx context.Context, q Querier) ([]*Dependency, error) {
	edges, err := pv.dependenciesOnSelf(ctx, q)
	if err != nil {
		return nil, err
	}

	var results []*Dependency
	for _, dep := range edges {
		possible, err := dep.PossibleResolutions(ctx, q)
		if err != nil {
			return nil, err
		}
		if containsVersion(possible, pv) {
			results = append(results, dep)
		}
	}
	return results, nil
}

// BlockingDependents returns the dependency edges for which this
// version is the only possible resolution. A version with blocking
// dependents must not be deleted.
func (pv *PackageVersion) BlockingDependents(ctx context.Context, q Querier) ([]*Dependency, error) {
	edges, err := pv.dependenciesOnSelf(ctx, q)
	if err != nil {
		return nil, err
	}

	var results []*Dependency
	for _, dep := range edges {
		possible, err := dep.PossibleResolutions(ctx, q)
		if err != nil {
			return nil, err
		}
		if len(possible) == 1 && containsVersion(possible, pv) {
			results = append(results, dep)
		}
	}
	return results, nil
}

func containsVersion(versions []*PackageVersion, pv *PackageVersion) bool {
	for _, v := range versions {
		if v.Equal(pv) {
			return true
		}
	}
	return false
}
