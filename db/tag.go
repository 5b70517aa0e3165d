package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Tag is one row of the tag table. Tags connect to packages, not to
// individual versions, and are garbage collected with their last
// connection.
type Tag struct {
	ID string
}

// GetTag loads a tag by name.
func GetTag(ctx context.Context, q Querier, id string) (*Tag, error) {
	var t Tag
	err := q.QueryRowContext(ctx,
		`SELECT id FROM tag WHERE id = ?`, id).Scan(&t.ID)
	if err != nil {
		return nil, notFound(err, "tag "+id)
	}
	return &t, nil
}

// NewTag inserts a tag and connects it to the given package.
func NewTag(ctx context.Context, q Querier, p *Package, id string) (*Tag, error) {
	t := &Tag{ID: id}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO tag (id) VALUES (?)`, t.ID); err != nil {
		return nil, fmt.Errorf("insert tag %s: %w", t.ID, err)
	}
	if err := t.Connect(ctx, q, p); err != nil {
		return nil, err
	}
	return t, nil
}

// Connect links a package to this tag. Idempotent.
func (t *Tag) Connect(ctx context.Context, q Querier, p *Package) error {
	var one int
	err := q.QueryRowContext(ctx,
		`SELECT 1 FROM package_has_tag WHERE id = ? AND package_id = ?`,
		t.ID, p.ID).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("probe tag connection: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO package_has_tag (id, package_id) VALUES (?, ?)`,
		t.ID, p.ID); err != nil {
		return fmt.Errorf("connect tag %s to %s: %w", t.ID, p.ID, err)
	}
	return nil
}

// Disconnect unlinks a package from this tag and garbage collects the
// tag row once nothing references it.
func (t *Tag) Disconnect(ctx context.Context, q Querier, p *Package) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM package_has_tag WHERE id = ? AND package_id = ?`,
		t.ID, p.ID); err != nil {
		return fmt.Errorf("disconnect tag %s from %s: %w", t.ID, p.ID, err)
	}

	var count int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM package_has_tag WHERE id = ?`, t.ID).Scan(&count); err != nil {
		return fmt.Errorf("count tag connections: %w", err)
	}
	if count == 0 {
		if _, err := q.ExecContext(ctx,
			`DELETE FROM tag WHERE id = ?`, t.ID); err != nil {
			return fmt.Errorf("delete tag %s: %w", t.ID, err)
		}
	}
	return nil
}
