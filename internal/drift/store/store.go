package store

import (
	"context"

	"crosswalk/internal/drift/models"
	id "crosswalk/pkg/domain"
)

// Store persists compliance drifts. Implementations return
// pkg/platform/sentinel errors; Create enforces uniqueness on the
// (requirement, old version, new version) tuple with
// sentinel.ErrAlreadyRecorded.
type Store interface {
	Create(ctx context.Context, drift *models.ComplianceDrift) error
	Find(ctx context.Context, driftID id.DriftID) (*models.ComplianceDrift, error)
	FindByTuple(ctx context.Context, requirementID id.RequirementID, oldVersionID, newVersionID id.VersionID) (*models.ComplianceDrift, error)
	// ListByVersionPair returns every drift recorded for one scan tuple,
	// ordered by detection time.
	ListByVersionPair(ctx context.Context, oldVersionID, newVersionID id.VersionID) ([]*models.ComplianceDrift, error)
	// ListOpen returns drifts not yet in a terminal state.
	ListOpen(ctx context.Context) ([]*models.ComplianceDrift, error)

	// Execute atomically runs validate then mutate on the freshest copy
	// while holding the record lock, persisting the result.
	Execute(ctx context.Context, driftID id.DriftID, validate func(*models.ComplianceDrift) error, mutate func(*models.ComplianceDrift)) (*models.ComplianceDrift, error)
}
