package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/willibrandon/gonuget-server/version"
)

// Dependency is one row of the dependency table: a target package id
// plus a version requirement. Edges are shared: every version that
// declares the same (id, requirement) pair connects to the same row.
type Dependency struct {
	ID         string
	VersionReq string

	predicates *version.PredicateSet
}

func collectDependencies(rows *sql.Rows) ([]*Dependency, error) {
	var deps []*Dependency
	for rows.Next() {
		var d Dependency
		if err := rows.Scan(&d.ID, &d.VersionReq); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// Requirement returns the parsed version requirement. The column only
// holds canonical requirement strings written by the engine.
func (d *Dependency) Requirement() version.PredicateSet {
	if d.predicates == nil {
		ps := version.MustParsePredicateSet(d.VersionReq)
		d.predicates = &ps
	}
	return *d.predicates
}

// GetDependency loads an edge by its primary key.
func GetDependency(ctx context.Context, q Querier, id string, req version.PredicateSet) (*Dependency, error) {
	var d Dependency
	err := q.QueryRowContext(ctx,
		`SELECT id, version_req FROM dependency WHERE id = ? AND version_req = ?`,
		id, req.String()).Scan(&d.ID, &d.VersionReq)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("dependency %s %s", id, req))
	}
	return &d, nil
}

// NewDependency inserts a new edge and connects it to the declaring
// version. The target package does not have to exist in the feed;
// dangling edges stay unresolvable until it is uploaded.
func NewDependency(ctx context.Context, q Querier, pv *PackageVersion, targetID string, req version.PredicateSet) (*Dependency, error) {
	d := &Dependency{ID: targetID, VersionReq: req.String()}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO dependency (id, version_req) VALUES (?, ?)`,
		d.ID, d.VersionReq); err != nil {
		return nil, fmt.Errorf("insert dependency %s %s: %w", d.ID, d.VersionReq, err)
	}
	if err := d.Connect(ctx, q, pv); err != nil {
		return nil, err
	}
	return d, nil
}

// Connect links the declaring version to this edge. Idempotent.
func (d *Dependency) Connect(ctx context.Context, q Querier, pv *PackageVersion) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM packageversion_has_dependency
		 WHERE id = ? AND version = ? AND dependency_package_id = ? AND version_req = ?`,
		pv.ID, pv.Version, d.ID, d.VersionReq).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("probe dependency connection: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO packageversion_has_dependency (id, version, dependency_package_id, version_req)
		 VALUES (?, ?, ?, ?)`,
		pv.ID, pv.Version, d.ID, d.VersionReq); err != nil {
		return fmt.Errorf("connect dependency %s %s to %s %s: %w",
			d.ID, d.VersionReq, pv.ID, pv.Version, err)
	}
	return nil
}

// Disconnect unlinks the declaring version from this edge and garbage
// collects the edge row once nothing references it.
func (d *Dependency) Disconnect(ctx context.Context, q Querier, pv *PackageVersion) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM packageversion_has_dependency
		 WHERE id = ? AND version = ? AND dependency_package_id = ? AND version_req = ?`,
		pv.ID, pv.Version, d.ID, d.VersionReq); err != nil {
		return fmt.Errorf("disconnect dependency %s %s from %s %s: %w",
			d.ID, d.VersionReq, pv.ID, pv.Version, err)
	}

	remaining, err := d.Dependents(ctx, q)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM dependency WHERE id = ? AND version_req = ?`,
			d.ID, d.VersionReq); err != nil {
			return fmt.Errorf("delete dependency %s %s: %w", d.ID, d.VersionReq, err)
		}
	}
	return nil
}

// Dependents loads the package versions declaring this edge.
func (d *Dependency) Dependents(ctx context.Context, q Querier) ([]*PackageVersion, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+prefixedPackageVersionColumns("pv")+` FROM packageversion pv
		 JOIN packageversion_has_dependency pd
		   ON pd.id = pv.id AND pd.version = pv.version
		 WHERE pd.dependency_package_id = ? AND pd.version_req = ?`,
		d.ID, d.VersionReq)
	if err != nil {
		return nil, fmt.Errorf("load dependents of %s %s: %w", d.ID, d.VersionReq, err)
	}
	defer rows.Close()
	return collectPackageVersions(rows)
}

// TargetPackage loads the package this edge points at.
func (d *Dependency) TargetPackage(ctx context.Context, q Querier) (*Package, error) {
	return GetPackage(ctx, q, d.ID)
}

// PossibleResolutions returns the target's versions that satisfy the
// requirement.
func (d *Dependency) PossibleResolutions(ctx context.Context, q Querier) ([]*PackageVersion, error) {
	versions, err := versionsOf(ctx, q, d.ID)
	if err != nil {
		return nil, err
	}

	req := d.Requirement()
	var possible []*PackageVersion
	for _, pv := range versions {
		if req.Matches(pv.SemVer()) {
			possible = append(possible, pv)
		}
	}
	return possible, nil
}

// NewestResolution returns the greatest satisfying version, or
// ErrNotFound if the requirement is unsatisfiable in the feed.
func (d *Dependency) NewestResolution(ctx context.Context, q Querier) (*PackageVersion, error) {
	possible, err := d.PossibleResolutions(ctx, q)
	if err != nil {
		return nil, err
	}

	var newest *PackageVersion
	for _, pv := range possible {
		if newest == nil || pv.SemVer().GreaterThan(newest.SemVer()) {
			newest = pv
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("dependency %s %s is unsatisfiable: %w",
			d.ID, d.VersionReq, ErrNotFound)
	}
	return newest, nil
}

func prefixedPackageVersionColumns(alias string) string {
	return alias + `.id, ` + alias + `.version, ` + alias + `.creation_date, ` +
		alias + `.title, ` + alias + `.summary, ` + alias + `.updated, ` +
		alias + `.description, ` + alias + `.version_download_count, ` +
		alias + `.release_notes, ` + alias + `.hash, ` + alias + `.hash_algorithm, ` +
		alias + `.size, ` + alias + `.icon_url`
}
