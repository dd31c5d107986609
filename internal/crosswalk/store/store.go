package store

import (
	"context"

	"crosswalk/internal/crosswalk/models"
	id "crosswalk/pkg/domain"
)

// Store persists mappings. Implementations return pkg/platform/sentinel
// errors; writes enforce optimistic concurrency on Mapping.RecordVersion.
type Store interface {
	Create(ctx context.Context, mapping *models.Mapping) error
	// Update persists the mapping if the stored RecordVersion equals
	// mapping.RecordVersion, then increments it.
	Update(ctx context.Context, mapping *models.Mapping) error
	Find(ctx context.Context, mappingID id.MappingID) (*models.Mapping, error)
	ListByRequirement(ctx context.Context, requirementID id.RequirementID) ([]*models.Mapping, error)
	ListByControl(ctx context.Context, controlID id.ControlID) ([]*models.Mapping, error)
	List(ctx context.Context) ([]*models.Mapping, error)

	// Execute atomically runs validate then mutate on the freshest copy
	// while holding the record lock, persisting the result.
	Execute(ctx context.Context, mappingID id.MappingID, validate func(*models.Mapping) error, mutate func(*models.Mapping)) (*models.Mapping, error)
}
