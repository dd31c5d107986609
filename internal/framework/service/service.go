package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"crosswalk/internal/audit"
	"crosswalk/internal/framework/models"
	"crosswalk/internal/framework/store"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/aspect"
	"crosswalk/pkg/platform/sentinel"
	"crosswalk/pkg/requestcontext"
)

// AuditPublisher records state-changing framework actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates framework ingestion and lookups. Versions are
// immutable once published; the only mutation this service ever performs
// on an existing record is moving the prior active version to
// superseded as part of a publication.
type Service struct {
	frameworks store.Store
	auditor    AuditPublisher
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func New(frameworks store.Store, opts ...Option) *Service {
	s := &Service{
		frameworks: frameworks,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateFramework(ctx context.Context, name, description string) (*models.Framework, error) {
	name = strings.TrimSpace(name)
	framework, err := models.NewFramework(id.NewFrameworkID(), name, description, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.frameworks.SaveFramework(ctx, framework); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "framework name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create framework")
	}
	if err := s.emit(ctx, audit.ActionFrameworkCreated, "framework", framework.ID.String(), ""); err != nil {
		return nil, err
	}
	return framework, nil
}

// RequirementInput is one requirement record supplied by the ingestion
// feed for a new version. Supersedes refers to a requirement id in the
// immediately prior version.
type RequirementInput struct {
	SectionCode            string
	Text                   string
	Category               string
	RiskLevel              id.RiskLevel
	Keywords               []string
	ImplementationGuidance []string
	EvidenceExamples       []string
	Supersedes             *id.RequirementID
	RelatedSectionCodes    []string
}

// PublishInput describes the version being published.
type PublishInput struct {
	FrameworkID   id.FrameworkID
	Label         string
	EffectiveDate time.Time
	SunsetDate    *time.Time
	Requirements  []RequirementInput
}

// PublishVersion validates and persists a new framework version as the
// active one. Validation failures reject the whole publication; nothing
// is persisted.
//
// Rules:
//   - EffectiveDate must be strictly after the current active version's
//   - Every Supersedes reference must resolve to a requirement in the
//     immediately prior (currently active) version
//   - Publishing never touches mappings; it only makes the new
//     requirements visible to the drift detector
func (s *Service) PublishVersion(ctx context.Context, input PublishInput) (*models.FrameworkVersion, error) {
	if input.FrameworkID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "framework_id is required")
	}
	if len(input.Requirements) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a version must carry at least one requirement")
	}
	if _, err := s.frameworks.FindFramework(ctx, input.FrameworkID); err != nil {
		return nil, wrapStoreErr(err, "framework")
	}

	version, err := models.NewFrameworkVersion(id.NewVersionID(), input.FrameworkID, strings.TrimSpace(input.Label), input.EffectiveDate, input.SunsetDate)
	if err != nil {
		return nil, err
	}

	prior, err := s.frameworks.ActiveVersion(ctx, input.FrameworkID)
	switch {
	case err == nil:
		if !input.EffectiveDate.After(prior.EffectiveDate) {
			return nil, dErrors.New(dErrors.CodeValidation, "effective date must be strictly after the active version's effective date")
		}
		version.Sequence = prior.Sequence + 1
	case errors.Is(err, sentinel.ErrNotFound):
		prior = nil
		version.Sequence = 1
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active version")
	}

	now := requestcontext.Now(ctx)
	requirements, err := s.buildRequirements(ctx, version, prior, input.Requirements, now)
	if err != nil {
		return nil, err
	}

	version.Status = models.VersionStatusActive
	version.PublishedAt = now

	var supersededID *id.VersionID
	if prior != nil {
		supersededID = &prior.ID
	}
	if err := s.frameworks.PublishVersion(ctx, version, requirements, supersededID); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrConflict):
			return nil, dErrors.New(dErrors.CodeConflict, "version or requirement already exists")
		case errors.Is(err, sentinel.ErrInvalidState):
			return nil, dErrors.New(dErrors.CodeConflict, "prior version changed during publication, retry")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to publish version")
		}
	}

	if err := s.emit(ctx, audit.ActionVersionPublished, "framework_version", version.ID.String(), version.Label); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "framework version published",
		"framework_id", version.FrameworkID,
		"version_id", version.ID,
		"label", version.Label,
		"requirements", len(requirements),
	)
	return version, nil
}

func (s *Service) buildRequirements(ctx context.Context, version *models.FrameworkVersion, prior *models.FrameworkVersion, inputs []RequirementInput, now time.Time) ([]*models.Requirement, error) {
	// Requirement ids in the prior version, for supersedes resolution.
	priorIDs := make(map[id.RequirementID]struct{})
	if prior != nil {
		priorReqs, err := s.frameworks.RequirementsByVersion(ctx, prior.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load prior requirements")
		}
		for _, r := range priorReqs {
			priorIDs[r.ID] = struct{}{}
		}
	}

	// First pass: construct records and index section codes so related
	// references can be resolved within the same version.
	requirements := make([]*models.Requirement, 0, len(inputs))
	bySection := make(map[string]id.RequirementID, len(inputs))
	for _, in := range inputs {
		r, err := models.NewRequirement(id.NewRequirementID(), version.FrameworkID, version.ID,
			strings.TrimSpace(in.SectionCode), in.Text, in.Category, in.RiskLevel, now)
		if err != nil {
			return nil, err
		}
		if _, dup := bySection[r.SectionCode]; dup {
			return nil, dErrors.Newf(dErrors.CodeValidation, "duplicate section code %q in version", r.SectionCode)
		}
		r.Keywords = aspect.Normalize(in.Keywords)
		r.ImplementationGuidance = append([]string(nil), in.ImplementationGuidance...)
		r.EvidenceExamples = append([]string(nil), in.EvidenceExamples...)

		if in.Supersedes != nil {
			if prior == nil {
				return nil, dErrors.Newf(dErrors.CodeValidation, "requirement %q supersedes a record but the framework has no prior version", r.SectionCode)
			}
			if _, ok := priorIDs[*in.Supersedes]; !ok {
				return nil, dErrors.Newf(dErrors.CodeValidation, "requirement %q supersedes %s which is not in the immediately prior version", r.SectionCode, in.Supersedes)
			}
			sup := *in.Supersedes
			r.Supersedes = &sup
		}

		bySection[r.SectionCode] = r.ID
		requirements = append(requirements, r)
	}

	// Second pass: resolve intra-version related references.
	for i, in := range inputs {
		for _, code := range in.RelatedSectionCodes {
			rid, ok := bySection[strings.TrimSpace(code)]
			if !ok {
				return nil, dErrors.Newf(dErrors.CodeValidation, "requirement %q references unknown section %q", requirements[i].SectionCode, code)
			}
			requirements[i].RelatedRequirements = append(requirements[i].RelatedRequirements, rid)
		}
	}

	return requirements, nil
}

func (s *Service) GetFramework(ctx context.Context, frameworkID id.FrameworkID) (*models.Framework, error) {
	f, err := s.frameworks.FindFramework(ctx, frameworkID)
	if err != nil {
		return nil, wrapStoreErr(err, "framework")
	}
	return f, nil
}

func (s *Service) ListFrameworks(ctx context.Context) ([]*models.Framework, error) {
	out, err := s.frameworks.ListFrameworks(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list frameworks")
	}
	return out, nil
}

func (s *Service) GetActiveVersion(ctx context.Context, frameworkID id.FrameworkID) (*models.FrameworkVersion, error) {
	v, err := s.frameworks.ActiveVersion(ctx, frameworkID)
	if err != nil {
		return nil, wrapStoreErr(err, "active version")
	}
	return v, nil
}

func (s *Service) ListVersions(ctx context.Context, frameworkID id.FrameworkID) ([]*models.FrameworkVersion, error) {
	out, err := s.frameworks.ListVersions(ctx, frameworkID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list versions")
	}
	return out, nil
}

// GetRequirement loads a requirement and checks that it belongs to the
// given framework and version, rejecting cross-framework id confusion.
func (s *Service) GetRequirement(ctx context.Context, frameworkID id.FrameworkID, requirementID id.RequirementID, versionID id.VersionID) (*models.Requirement, error) {
	r, err := s.frameworks.FindRequirement(ctx, requirementID)
	if err != nil {
		return nil, wrapStoreErr(err, "requirement")
	}
	if r.FrameworkID != frameworkID || r.VersionID != versionID {
		return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found in the given framework version")
	}
	return r, nil
}

func (s *Service) ListRequirements(ctx context.Context, versionID id.VersionID) ([]*models.Requirement, error) {
	if _, err := s.frameworks.FindVersion(ctx, versionID); err != nil {
		return nil, wrapStoreErr(err, "version")
	}
	out, err := s.frameworks.RequirementsByVersion(ctx, versionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requirements")
	}
	return out, nil
}

// VerifyIntegrity surfaces the one fatal condition: requirements whose
// framework version is missing. Run at startup and after ingestion.
func (s *Service) VerifyIntegrity(ctx context.Context) error {
	orphaned, err := s.frameworks.OrphanedRequirements(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "integrity check failed to run")
	}
	if len(orphaned) > 0 {
		return dErrors.Newf(dErrors.CodeCorruptStore, "store is corrupt: %d requirement(s) reference missing framework versions", len(orphaned))
	}
	return nil
}

func (s *Service) emit(ctx context.Context, action, entity, entityID, reason string) error {
	if s.auditor == nil {
		return nil
	}
	if err := s.auditor.Emit(ctx, audit.Event{Action: action, Entity: entity, EntityID: entityID, Reason: reason}); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
	}
	return nil
}

func wrapStoreErr(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "%s not found", what)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "store failure")
}
