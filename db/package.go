package db

import (
	"context"
	"fmt"
	"sort"
)

// Package is one row of the package table: per-package metadata shared
// by every version, plus the maintaining user.
type Package struct {
	ID                string
	ProjectURL        *string
	LicenseURL        *string
	LicenseAcceptance bool
	ProjectSourceURL  *string
	PackageSourceURL  *string
	DocsURL           *string
	MailingListURL    *string
	BugTrackerURL     *string
	ReportAbuseURL    *string
	Maintainer        string
}

const packageColumns = `id, project_url, license_url, license_acceptance,
	project_source_url, package_source_url, docs_url, mailing_list_url,
	bug_tracker_url, report_abuse_url, maintainer`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*Package, error) {
	var p Package
	err := row.Scan(&p.ID, &p.ProjectURL, &p.LicenseURL, &p.LicenseAcceptance,
		&p.ProjectSourceURL, &p.PackageSourceURL, &p.DocsURL, &p.MailingListURL,
		&p.BugTrackerURL, &p.ReportAbuseURL, &p.Maintainer)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPackage loads a package by id.
func GetPackage(ctx context.Context, q Querier, id string) (*Package, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+packageColumns+` FROM package WHERE id = ?`, id)
	p, err := scanPackage(row)
	if err != nil {
		return nil, notFound(err, "package "+id)
	}
	return p, nil
}

// AllPackages loads every package.
func AllPackages(ctx context.Context, q Querier) ([]*Package, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM package ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}
	defer rows.Close()

	var packages []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

// Insert stores a new package row.
func (p *Package) Insert(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO package (`+packageColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectURL, p.LicenseURL, p.LicenseAcceptance,
		p.ProjectSourceURL, p.PackageSourceURL, p.DocsURL, p.MailingListURL,
		p.BugTrackerURL, p.ReportAbuseURL, p.Maintainer)
	if err != nil {
		return fmt.Errorf("insert package %s: %w", p.ID, err)
	}
	return nil
}

// Update persists all columns of the package row.
func (p *Package) Update(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx,
		`UPDATE package SET project_url = ?, license_url = ?,
		 license_acceptance = ?, project_source_url = ?,
		 package_source_url = ?, docs_url = ?, mailing_list_url = ?,
		 bug_tracker_url = ?, report_abuse_url = ?, maintainer = ?
		 WHERE id = ?`,
		p.ProjectURL, p.LicenseURL, p.LicenseAcceptance,
		p.ProjectSourceURL, p.PackageSourceURL, p.DocsURL, p.MailingListURL,
		p.BugTrackerURL, p.ReportAbuseURL, p.Maintainer, p.ID)
	if err != nil {
		return fmt.Errorf("update package %s: %w", p.ID, err)
	}
	return nil
}

// UpdateMaintainer reassigns the package to another user.
func (p *Package) UpdateMaintainer(ctx context.Context, q Querier, maintainer *User) error {
	p.Maintainer = maintainer.ID
	_, err := q.ExecContext(ctx,
		`UPDATE package SET maintainer = ? WHERE id = ?`, p.Maintainer, p.ID)
	if err != nil {
		return fmt.Errorf("update maintainer of %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes the package row after disconnecting its tags. Orphaned
// tags disappear with their last connection.
func (p *Package) Delete(ctx context.Context, q Querier) error {
	tags, err := p.Tags(ctx, q)
	if err != nil {
		return err
	}
	for _, t := range tags {
		if err := t.Disconnect(ctx, q, p); err != nil {
			return err
		}
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM package WHERE id = ?`, p.ID); err != nil {
		return fmt.Errorf("delete package %s: %w", p.ID, err)
	}
	return nil
}

// GetMaintainer loads the maintaining user.
func (p *Package) GetMaintainer(ctx context.Context, q Querier) (*User, error) {
	return GetUser(ctx, q, p.Maintainer)
}

// Tags loads the tags connected to the package.
func (p *Package) Tags(ctx context.Context, q Querier) ([]*Tag, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT t.id FROM tag t
		 JOIN package_has_tag pt ON pt.id = t.id
		 WHERE pt.package_id = ?
		 ORDER BY t.id`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("load tags of %s: %w", p.ID, err)
	}
	defer rows.Close()

	var tags []*Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, &t)
	}
	return tags, rows.Err()
}

// Versions loads all versions of the package, unsorted.
func (p *Package) Versions(ctx context.Context, q Querier) ([]*PackageVersion, error) {
	return versionsOf(ctx, q, p.ID)
}

// NewestVersion returns the version with the greatest semantic version,
// or ErrNotFound if the package has none.
func (p *Package) NewestVersion(ctx context.Context, q Querier) (*PackageVersion, error) {
	versions, err := p.Versions(ctx, q)
	if err != nil {
		return nil, err
	}

	var newest *PackageVersion
	for _, pv := range versions {
		if newest == nil || pv.SemVer().GreaterThan(newest.SemVer()) {
			newest = pv
		}
	}
	if newest == nil {
		return nil, fmt.Errorf("package %s has no versions: %w", p.ID, ErrNotFound)
	}
	return newest, nil
}

// SortVersionsDescending orders versions newest first in place.
func SortVersionsDescending(versions []*PackageVersion) {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].SemVer().GreaterThan(versions[j].SemVer())
	})
}
