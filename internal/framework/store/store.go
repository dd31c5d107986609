package store

import (
	"context"

	"crosswalk/internal/framework/models"
	id "crosswalk/pkg/domain"
)

// Store persists frameworks, versions, and their requirement records.
// Implementations return pkg/platform/sentinel errors for infrastructure
// facts; the service translates them into coded domain errors.
type Store interface {
	SaveFramework(ctx context.Context, framework *models.Framework) error
	FindFramework(ctx context.Context, frameworkID id.FrameworkID) (*models.Framework, error)
	ListFrameworks(ctx context.Context) ([]*models.Framework, error)

	// PublishVersion atomically persists the version and its
	// requirements and, when superseded is set, moves that prior version
	// to superseded. Nothing is persisted on failure.
	PublishVersion(ctx context.Context, version *models.FrameworkVersion, requirements []*models.Requirement, superseded *id.VersionID) error

	FindVersion(ctx context.Context, versionID id.VersionID) (*models.FrameworkVersion, error)
	ActiveVersion(ctx context.Context, frameworkID id.FrameworkID) (*models.FrameworkVersion, error)
	// ListVersions returns a framework's versions ordered by publication
	// sequence, oldest first.
	ListVersions(ctx context.Context, frameworkID id.FrameworkID) ([]*models.FrameworkVersion, error)

	FindRequirement(ctx context.Context, requirementID id.RequirementID) (*models.Requirement, error)
	RequirementsByVersion(ctx context.Context, versionID id.VersionID) ([]*models.Requirement, error)

	// OrphanedRequirements reports requirements whose version record is
	// missing. A non-empty result means the store is corrupt.
	OrphanedRequirements(ctx context.Context) ([]id.RequirementID, error)
}
