package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these
// (optionally wrapped) so services can translate them into domain errors
// with the right code.
//
// These represent factual states about resources, not validation
// failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: uniqueness constraint hit on insert
// - ErrStaleVersion: write carried an out-of-date version stamp
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrAlreadyRecorded: drift tuple already has a record
// - ErrUnavailable: backing service temporarily unreachable
//
// For validation errors (bad input, missing fields), use
// pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrStaleVersion    = errors.New("stale version")
	ErrInvalidState    = errors.New("invalid state")
	ErrAlreadyRecorded = errors.New("already recorded")
	ErrUnavailable     = errors.New("unavailable")
)
