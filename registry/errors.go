package registry

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPermissionDenied reports a maintainer or admin check failure.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNotConfirmed reports an upload from an account whose mail address
// is not confirmed yet.
var ErrNotConfirmed = errors.New("user account is not confirmed")

// ErrInvalidVersion reports a manifest version that fails best-effort
// version parsing.
var ErrInvalidVersion = errors.New("invalid package version")

// ErrCriticalUpdateFailure reports a failed archive rewrite. The old
// archive was already truncated, so the affected version is deleted as
// part of recovery.
var ErrCriticalUpdateFailure = errors.New("critical update failure")

// BlockingDependencyError refuses a deletion because the listed package
// versions strictly require the target.
type BlockingDependencyError struct {
	// Target is the package id whose deletion was refused.
	Target string

	// Dependents are the package ids that have no other resolution.
	Dependents []string
}

func (e *BlockingDependencyError) Error() string {
	quoted := make([]string, len(e.Dependents))
	for i, id := range e.Dependents {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	return fmt.Sprintf("%s are/is strictly depending on %q. Deletion is not possible.",
		strings.Join(quoted, ", "), e.Target)
}
