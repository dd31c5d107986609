package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"crosswalk/internal/audit"
	"crosswalk/internal/control/models"
	"crosswalk/internal/control/store"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/sentinel"
	"crosswalk/pkg/requestcontext"
)

// AuditPublisher records state-changing control actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// DeprecationListener is notified after a control is deprecated so the
// crosswalk can flag every mapping that references it for review. The
// mappings are flagged, never silently dropped.
type DeprecationListener interface {
	OnControlDeprecated(ctx context.Context, controlID id.ControlID) error
}

// Service orchestrates control lifecycle and evidence management.
type Service struct {
	controls     store.Store
	auditor      AuditPublisher
	onDeprecated DeprecationListener
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithDeprecationListener(l DeprecationListener) Option {
	return func(s *Service) { s.onDeprecated = l }
}

func New(controls store.Store, opts ...Option) *Service {
	s := &Service{
		controls: controls,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertInput carries the mutable fields of a control. ID empty means
// create; set means update, and RecordVersion must match the stamp the
// caller read or the write fails with concurrent_modification.
type UpsertInput struct {
	ID                  *id.ControlID
	Name                string
	Description         string
	Owner               string
	Status              *models.ControlStatus
	EffectivenessRating int
	RecordVersion       int64
}

func (s *Service) UpsertControl(ctx context.Context, input UpsertInput) (*models.Control, error) {
	if input.ID == nil {
		return s.createControl(ctx, input)
	}
	return s.updateControl(ctx, *input.ID, input)
}

func (s *Service) createControl(ctx context.Context, input UpsertInput) (*models.Control, error) {
	control, err := models.NewControl(id.NewControlID(), strings.TrimSpace(input.Name),
		input.Description, input.Owner, input.EffectivenessRating, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.controls.Create(ctx, control); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "control already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create control")
	}
	if err := s.emit(ctx, audit.ActionControlUpserted, control.ID, "created"); err != nil {
		return nil, err
	}
	return control, nil
}

func (s *Service) updateControl(ctx context.Context, controlID id.ControlID, input UpsertInput) (*models.Control, error) {
	if input.EffectivenessRating < 1 || input.EffectivenessRating > 5 {
		return nil, dErrors.New(dErrors.CodeValidation, "effectiveness rating must be between 1 and 5")
	}
	current, err := s.controls.Find(ctx, controlID)
	if err != nil {
		return nil, wrapControlErr(err)
	}
	if current.IsDeprecated() {
		return nil, dErrors.New(dErrors.CodeInvalidStateTransition, "deprecated controls cannot be edited")
	}
	if input.Status != nil && *input.Status != current.Status {
		if err := current.CanTransition(*input.Status); err != nil {
			return nil, err
		}
		current.Status = *input.Status
	}

	now := requestcontext.Now(ctx)
	current.Name = strings.TrimSpace(input.Name)
	current.Description = input.Description
	current.Owner = input.Owner
	current.EffectivenessRating = input.EffectivenessRating
	current.LastUpdated = now
	current.RecordVersion = input.RecordVersion

	if err := s.controls.Update(ctx, current); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrStaleVersion):
			return nil, dErrors.New(dErrors.CodeConcurrentModification, "control was modified concurrently, re-read and retry")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeNotFound, "control not found")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update control")
		}
	}
	if err := s.emit(ctx, audit.ActionControlUpserted, current.ID, "updated"); err != nil {
		return nil, err
	}
	return current, nil
}

// DeprecateControl performs the one-way transition and notifies the
// crosswalk so affected mappings are flagged for review.
func (s *Service) DeprecateControl(ctx context.Context, controlID id.ControlID) (*models.Control, error) {
	now := requestcontext.Now(ctx)
	control, err := s.controls.Execute(ctx, controlID,
		func(c *models.Control) error { return c.CanDeprecate() },
		func(c *models.Control) { c.ApplyDeprecation(now) },
	)
	if err != nil {
		return nil, wrapControlErr(err)
	}

	if s.onDeprecated != nil {
		if err := s.onDeprecated.OnControlDeprecated(ctx, controlID); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to flag mappings for deprecated control")
		}
	}
	if err := s.emit(ctx, audit.ActionControlDeprecated, controlID, ""); err != nil {
		return nil, err
	}
	return control, nil
}

// EvidenceInput describes a new evidence item for a control.
type EvidenceInput struct {
	Description string
	Location    string
	CollectedAt time.Time
	ExpiresAt   *time.Time
}

func (s *Service) AttachEvidence(ctx context.Context, controlID id.ControlID, input EvidenceInput) (*models.Control, error) {
	evidence, err := models.NewEvidence(id.NewEvidenceID(), strings.TrimSpace(input.Description),
		input.Location, input.CollectedAt, input.ExpiresAt)
	if err != nil {
		return nil, err
	}

	control, err := s.controls.Execute(ctx, controlID,
		func(c *models.Control) error {
			if c.IsDeprecated() {
				return dErrors.New(dErrors.CodeInvalidStateTransition, "deprecated controls cannot receive evidence")
			}
			return nil
		},
		func(c *models.Control) {
			c.Evidence = append(c.Evidence, *evidence)
			c.LastUpdated = requestcontext.Now(ctx)
		},
	)
	if err != nil {
		return nil, wrapControlErr(err)
	}
	if err := s.emit(ctx, audit.ActionEvidenceAttached, controlID, evidence.ID.String()); err != nil {
		return nil, err
	}
	return control, nil
}

// VerifyEvidence moves one pending evidence item to verified or rejected.
func (s *Service) VerifyEvidence(ctx context.Context, controlID id.ControlID, evidenceID id.EvidenceID, approve bool) (*models.Control, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)

	control, err := s.controls.Execute(ctx, controlID,
		func(c *models.Control) error {
			for i := range c.Evidence {
				if c.Evidence[i].ID == evidenceID {
					return c.Evidence[i].CanVerify()
				}
			}
			return sentinel.ErrNotFound
		},
		func(c *models.Control) {
			for i := range c.Evidence {
				if c.Evidence[i].ID != evidenceID {
					continue
				}
				if approve {
					c.Evidence[i].Status = models.EvidenceStatusVerified
					c.Evidence[i].VerifiedAt = &now
					c.Evidence[i].VerifiedBy = actor
				} else {
					c.Evidence[i].Status = models.EvidenceStatusRejected
				}
			}
			c.LastUpdated = now
		},
	)
	if err != nil {
		return nil, wrapControlErr(err)
	}
	if err := s.emit(ctx, audit.ActionEvidenceVerified, controlID, evidenceID.String()); err != nil {
		return nil, err
	}
	return control, nil
}

func (s *Service) GetControl(ctx context.Context, controlID id.ControlID) (*models.Control, error) {
	control, err := s.controls.Find(ctx, controlID)
	if err != nil {
		return nil, wrapControlErr(err)
	}
	return control, nil
}

func (s *Service) ListControls(ctx context.Context) ([]*models.Control, error) {
	out, err := s.controls.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list controls")
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, action string, controlID id.ControlID, reason string) error {
	if s.auditor == nil {
		return nil
	}
	event := audit.Event{Action: action, Entity: "control", EntityID: controlID.String(), Reason: reason}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
	}
	return nil
}

func wrapControlErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "control or evidence not found")
	case errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.New(dErrors.CodeConcurrentModification, "control was modified concurrently, re-read and retry")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "control store failure")
	}
}
