package store

import (
	"context"

	"crosswalk/internal/control/models"
	id "crosswalk/pkg/domain"
)

// Store persists controls and their evidence. Implementations return
// pkg/platform/sentinel errors; writes enforce optimistic concurrency on
// Control.RecordVersion (sentinel.ErrStaleVersion on mismatch).
type Store interface {
	Create(ctx context.Context, control *models.Control) error
	// Update persists the control if the stored RecordVersion equals
	// control.RecordVersion, then increments it.
	Update(ctx context.Context, control *models.Control) error
	Find(ctx context.Context, controlID id.ControlID) (*models.Control, error)
	FindMany(ctx context.Context, controlIDs []id.ControlID) ([]*models.Control, error)
	List(ctx context.Context) ([]*models.Control, error)

	// Execute atomically runs validate then mutate while holding the
	// record lock, persisting the result. The mutation sees the freshest
	// copy, which is how one-way transitions stay race-free.
	Execute(ctx context.Context, controlID id.ControlID, validate func(*models.Control) error, mutate func(*models.Control)) (*models.Control, error)
}
