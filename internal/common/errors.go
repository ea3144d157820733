// Package common defines shared constants and sentinel errors used across
// client and server layers of SceneKeeper. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrInternal        = errors.New("internal error")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrVersionConflict = errors.New("version conflict")

	// Validation errors. Never retried, never queued.
	ErrInvalidInput = errors.New("invalid input")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// VersionConflictError carries the version the server currently holds for a
// file whose save was rejected. It matches ErrVersionConflict via errors.Is.
type VersionConflictError struct {
	CurrentVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: current version is %d", e.CurrentVersion)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// NewVersionConflict builds a VersionConflictError for the given stored version.
func NewVersionConflict(current int64) *VersionConflictError {
	return &VersionConflictError{CurrentVersion: current}
}
