package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Author is one row of the author table. Authors are shared across
// versions and garbage collected with their last connection.
type Author struct {
	ID string
}

// GetAuthor loads an author by name.
func GetAuthor(ctx context.Context, q Querier, id string) (*Author, error) {
	var a Author
	err := q.QueryRowContext(ctx,
		`SELECT id FROM author WHERE id = ?`, id).Scan(&a.ID)
	if err != nil {
		return nil, notFound(err, "author "+id)
	}
	return &a, nil
}

// NewAuthor inserts an author and connects it to the given version.
func NewAuthor(ctx context.Context, q Querier, pv *PackageVersion, id string) (*Author, error) {
	a := &Author{ID: id}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO author (id) VALUES (?)`, a.ID); err != nil {
		return nil, fmt.Errorf("insert author %s: %w", a.ID, err)
	}
	if err := a.Connect(ctx, q, pv); err != nil {
		return nil, err
	}
	return a, nil
}

// Connect links a version to this author. Idempotent.
func (a *Author) Connect(ctx context.Context, q Querier, pv *PackageVersion) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM packageversion_has_author
		 WHERE id = ? AND version = ? AND author_id = ?`,
		pv.ID, pv.Version, a.ID).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("probe author connection: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO packageversion_has_author (id, version, author_id)
		 VALUES (?, ?, ?)`, pv.ID, pv.Version, a.ID); err != nil {
		return fmt.Errorf("connect author %s to %s %s: %w", a.ID, pv.ID, pv.Version, err)
	}
	return nil
}

// Disconnect unlinks a version from this author and garbage collects
// the author row once nothing references it.
func (a *Author) Disconnect(ctx context.Context, q Querier, pv *PackageVersion) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM packageversion_has_author
		 WHERE id = ? AND version = ? AND author_id = ?`,
		pv.ID, pv.Version, a.ID); err != nil {
		return fmt.Errorf("disconnect author %s from %s %s: %w", a.ID, pv.ID, pv.Version, err)
	}

	var count int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM packageversion_has_author WHERE author_id = ?`,
		a.ID).Scan(&count); err != nil {
		return fmt.Errorf("count author connections: %w", err)
	}
	if count == 0 {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM author WHERE id = ?`, a.ID); err != nil {
			return fmt.Errorf("delete author %s: %w", a.ID, err)
		}
	}
	return nil
}
