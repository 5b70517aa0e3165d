package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound reports that a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserAlreadyExists reports a registration with a taken username,
// either in the user table or in the configured directory.
var ErrUserAlreadyExists = errors.New("user already exists")

// ErrInvalidProviderForOp reports an operation that only applies to
// locally authenticated users, attempted on a directory-backed one.
var ErrInvalidProviderForOp = errors.New("operation not supported for this authentication provider")

// ErrNoPasswordHash reports a local user row without a stored hash.
var ErrNoPasswordHash = errors.New("user has no password hash")

// ErrInvalidProvider reports an unrecognized provider value in the
// user table.
var ErrInvalidProvider = errors.New("invalid authentication provider")

// notFound converts sql.ErrNoRows into ErrNotFound, annotated with what
// was being looked up.
func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
