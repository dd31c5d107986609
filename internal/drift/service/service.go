package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crosswalk/internal/audit"
	ctrlmodels "crosswalk/internal/control/models"
	cwmodels "crosswalk/internal/crosswalk/models"
	dmetrics "crosswalk/internal/drift/metrics"
	"crosswalk/internal/drift/models"
	"crosswalk/internal/drift/scanlock"
	"crosswalk/internal/drift/store"
	fwmodels "crosswalk/internal/framework/models"
	"crosswalk/internal/textdiff"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/sentinel"
	"crosswalk/pkg/requestcontext"
)

const scanLockTTL = 5 * time.Minute

// FrameworkSource reads framework versions and requirements. The
// framework store satisfies it.
type FrameworkSource interface {
	FindVersion(ctx context.Context, versionID id.VersionID) (*fwmodels.FrameworkVersion, error)
	RequirementsByVersion(ctx context.Context, versionID id.VersionID) ([]*fwmodels.Requirement, error)
	FindRequirement(ctx context.Context, requirementID id.RequirementID) (*fwmodels.Requirement, error)
}

// MappingSource reads crosswalk mappings. The crosswalk store satisfies
// it.
type MappingSource interface {
	ListByRequirement(ctx context.Context, requirementID id.RequirementID) ([]*cwmodels.Mapping, error)
}

// ControlSource reads control records. The control store satisfies it.
type ControlSource interface {
	FindMany(ctx context.Context, controlIDs []id.ControlID) ([]*ctrlmodels.Control, error)
}

// MappingMigrator carries affected mappings forward to the successor
// requirement so their coverage reflects the new text. The crosswalk
// service implements it.
type MappingMigrator interface {
	MigrateToRequirement(ctx context.Context, from, to id.RequirementID) error
}

// AuditPublisher records state-changing drift actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service detects compliance drift between framework versions and
// drives each drift through its remediation workflow.
type Service struct {
	drifts     store.Store
	frameworks FrameworkSource
	mappings   MappingSource
	controls   ControlSource
	migrator   MappingMigrator
	lock       scanlock.Lock
	lockTTL    time.Duration
	auditor    AuditPublisher
	metrics    *dmetrics.Metrics
	logger     *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

func WithMappingMigrator(m MappingMigrator) Option {
	return func(s *Service) { s.migrator = m }
}

func WithMetrics(m *dmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func New(drifts store.Store, frameworks FrameworkSource, mappings MappingSource, controls ControlSource, lock scanlock.Lock, opts ...Option) *Service {
	s := &Service{
		drifts:     drifts,
		frameworks: frameworks,
		mappings:   mappings,
		controls:   controls,
		lock:       lock,
		lockTTL:    scanLockTTL,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanForDrift walks the new version's requirements that supersede one
// in the old version, diffs each pair, and records a drift per changed
// requirement. The scan holds a per-tuple lock; a concurrent caller
// does not rescan, it reads what has been recorded so far. The scan is
// cancellable between requirements: results already recorded stay, and
// a later scan of the same tuple picks up where this one stopped
// because recorded tuples are skipped.
func (s *Service) ScanForDrift(ctx context.Context, frameworkID id.FrameworkID, oldVersionID, newVersionID id.VersionID) ([]*models.ComplianceDrift, error) {
	if oldVersionID == newVersionID {
		return nil, dErrors.New(dErrors.CodeValidation, "old and new version must differ")
	}
	oldVersion, err := s.findVersion(ctx, frameworkID, oldVersionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.findVersion(ctx, frameworkID, newVersionID); err != nil {
		return nil, err
	}

	key := scanlock.Key(frameworkID, oldVersionID, newVersionID)
	acquired, err := s.lock.TryAcquire(ctx, key, s.lockTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "scan lock unavailable")
	}
	if !acquired {
		if s.metrics != nil {
			s.metrics.ScansSkipped.Inc()
		}
		recorded, err := s.drifts.ListByVersionPair(ctx, oldVersionID, newVersionID)
		if err != nil {
			return nil, wrapDriftErr(err)
		}
		return recorded, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("scan lock release failed", "key", key, "error", err)
		}
	}()

	ctx, span := otel.Tracer("crosswalk/drift").Start(ctx, "drift.scan", trace.WithAttributes(
		attribute.String("framework.id", frameworkID.String()),
		attribute.String("version.old", oldVersionID.String()),
		attribute.String("version.new", newVersionID.String()),
	))
	defer span.End()
	start := time.Now()

	requirements, err := s.frameworks.RequirementsByVersion(ctx, newVersionID)
	if err != nil {
		return nil, wrapDriftErr(err)
	}

	var results []*models.ComplianceDrift
	for _, requirement := range requirements {
		if err := ctx.Err(); err != nil {
			// Partial progress is valid: everything recorded so far
			// stays, and the next scan skips recorded tuples.
			return results, dErrors.Wrap(err, dErrors.CodeInternal, "scan cancelled")
		}
		if requirement.Supersedes == nil {
			continue
		}
		drift, err := s.processRequirement(ctx, oldVersion, newVersionID, requirement)
		if err != nil {
			return results, err
		}
		if drift != nil {
			results = append(results, drift)
		}
	}

	span.SetAttributes(attribute.Int("drifts.recorded", len(results)))
	if s.metrics != nil {
		s.metrics.ScansTotal.Inc()
		s.metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}
	return results, nil
}

func (s *Service) processRequirement(ctx context.Context, oldVersion *fwmodels.FrameworkVersion, newVersionID id.VersionID, requirement *fwmodels.Requirement) (*models.ComplianceDrift, error) {
	existing, err := s.drifts.FindByTuple(ctx, requirement.ID, oldVersion.ID, newVersionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, wrapDriftErr(err)
	}

	superseded, err := s.frameworks.FindRequirement(ctx, *requirement.Supersedes)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeCorruptStore, "requirement supersedes a record that does not exist")
	}
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if superseded.VersionID != oldVersion.ID {
		// Superseded into a different prior version; outside this
		// comparison pair.
		return nil, nil
	}

	comparison := textdiff.Compare(superseded.Text, requirement.Text)
	if comparison.Significance == textdiff.SignificanceCosmetic {
		return nil, nil
	}

	affected, err := s.affectedControls(ctx, superseded.ID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	drift := models.NewDrift(
		id.NewDriftID(),
		oldVersion.FrameworkID,
		oldVersion.ID,
		newVersionID,
		requirement.ID,
		classifyChange(comparison, superseded.Text, requirement.Text),
		impactFor(comparison.Significance, requirement.RiskLevel),
		affected,
		models.RequirementComparison{
			OldRequirementID: superseded.ID,
			NewRequirementID: requirement.ID,
			Segments:         comparison.Segments,
			Significance:     comparison.Significance,
			AddedSegments:    comparison.AddedSegments,
			RemovedSegments:  comparison.RemovedSegments,
		},
		now,
	)
	if len(affected) == 0 {
		// Recorded for the audit trail, but nobody owes remediation.
		drift.Status = models.StatusResolved
		drift.ResolutionNote = "no controls mapped to the superseded requirement; no remediation owed"
	}

	if err := s.drifts.Create(ctx, drift); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyRecorded) {
			recorded, findErr := s.drifts.FindByTuple(ctx, requirement.ID, oldVersion.ID, newVersionID)
			if findErr != nil {
				return nil, wrapDriftErr(findErr)
			}
			return recorded, nil
		}
		return nil, wrapDriftErr(err)
	}

	if s.migrator != nil && len(affected) > 0 {
		if err := s.migrator.MigrateToRequirement(ctx, superseded.ID, requirement.ID); err != nil {
			return nil, err
		}
	}
	if s.metrics != nil {
		s.metrics.DriftsDetected.WithLabelValues(string(drift.ChangeType)).Inc()
	}
	if err := s.emit(ctx, audit.ActionDriftDetected, drift.ID, string(drift.ChangeType)); err != nil {
		return nil, err
	}
	return drift, nil
}

// affectedControls collects every non-deprecated control reachable from
// a non-not-applicable mapping of the requirement.
func (s *Service) affectedControls(ctx context.Context, requirementID id.RequirementID) ([]id.ControlID, error) {
	mappings, err := s.mappings.ListByRequirement(ctx, requirementID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load mappings")
	}
	seen := make(map[id.ControlID]struct{})
	var ids []id.ControlID
	for _, m := range mappings {
		if m.NotApplicable {
			continue
		}
		for _, cid := range m.ControlIDs() {
			if _, dup := seen[cid]; !dup {
				seen[cid] = struct{}{}
				ids = append(ids, cid)
			}
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	controls, err := s.controls.FindMany(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load affected controls")
	}
	out := make([]id.ControlID, 0, len(controls))
	for _, c := range controls {
		if !c.IsDeprecated() {
			out = append(out, c.ID)
		}
	}
	return out, nil
}

// classifyChange applies the documented heuristics: strengthened when
// the change is substantive or breaking and the new text adds more than
// it removes, clarified for clarification-grade changes, modified
// otherwise.
func classifyChange(cmp textdiff.Comparison, oldText, newText string) models.ChangeType {
	switch cmp.Significance {
	case textdiff.SignificanceClarification:
		return models.ChangeClarified
	case textdiff.SignificanceSubstantive, textdiff.SignificanceBreaking:
		if len(strings.Fields(newText)) > len(strings.Fields(oldText)) && cmp.AddedSegments >= cmp.RemovedSegments {
			return models.ChangeStrengthened
		}
		return models.ChangeModified
	default:
		return models.ChangeModified
	}
}

// impactFor grades impact from diff significance, bumped one level when
// the requirement itself carries high or critical risk.
func impactFor(significance textdiff.Significance, risk id.RiskLevel) models.ImpactLevel {
	var impact models.ImpactLevel
	switch significance {
	case textdiff.SignificanceBreaking:
		impact = models.ImpactHigh
	case textdiff.SignificanceSubstantive:
		impact = models.ImpactMedium
	default:
		impact = models.ImpactLow
	}
	if risk.AtLeast(id.RiskLevelHigh) {
		switch impact {
		case models.ImpactLow:
			impact = models.ImpactMedium
		case models.ImpactMedium:
			impact = models.ImpactHigh
		case models.ImpactHigh:
			impact = models.ImpactCritical
		}
	}
	return impact
}

func (s *Service) GetDrift(ctx context.Context, driftID id.DriftID) (*models.ComplianceDrift, error) {
	drift, err := s.drifts.Find(ctx, driftID)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	return drift, nil
}

// Acknowledge records that someone owns the drift.
func (s *Service) Acknowledge(ctx context.Context, driftID id.DriftID) (*models.ComplianceDrift, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusAcknowledged) },
		func(d *models.ComplianceDrift) {
			d.AcknowledgedBy = actor
			d.AcknowledgedAt = &now
			d.ApplyTransition(models.StatusAcknowledged, now)
		},
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftAcknowledged, driftID, ""); err != nil {
		return nil, err
	}
	return drift, nil
}

// ActionInput is one remediation step for PlanRemediation.
type ActionInput struct {
	Description string
	Owner       string
	DueDate     *time.Time
}

// PlanRemediation attaches at least one required action and advances
// the workflow.
func (s *Service) PlanRemediation(ctx context.Context, driftID id.DriftID, actions []ActionInput) (*models.ComplianceDrift, error) {
	if len(actions) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "a remediation plan needs at least one action")
	}
	now := requestcontext.Now(ctx)
	required := make([]models.RequiredAction, 0, len(actions))
	for _, a := range actions {
		if strings.TrimSpace(a.Description) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, "remediation actions need a description")
		}
		required = append(required, models.RequiredAction{
			ID:          id.NewActionID(),
			Description: strings.TrimSpace(a.Description),
			Owner:       a.Owner,
			DueDate:     a.DueDate,
			CreatedAt:   now,
		})
	}

	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusRemediationPlanned) },
		func(d *models.ComplianceDrift) {
			d.Actions = append(d.Actions, required...)
			d.ApplyTransition(models.StatusRemediationPlanned, now)
		},
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftPlanned, driftID, ""); err != nil {
		return nil, err
	}
	return drift, nil
}

func (s *Service) StartRemediation(ctx context.Context, driftID id.DriftID) (*models.ComplianceDrift, error) {
	now := requestcontext.Now(ctx)
	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusInRemediation) },
		func(d *models.ComplianceDrift) { d.ApplyTransition(models.StatusInRemediation, now) },
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftStarted, driftID, ""); err != nil {
		return nil, err
	}
	return drift, nil
}

func (s *Service) Resolve(ctx context.Context, driftID id.DriftID, note string) (*models.ComplianceDrift, error) {
	if strings.TrimSpace(note) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "resolving a drift requires a note")
	}
	now := requestcontext.Now(ctx)
	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusResolved) },
		func(d *models.ComplianceDrift) {
			d.ResolutionNote = note
			d.ApplyTransition(models.StatusResolved, now)
		},
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftResolved, driftID, note); err != nil {
		return nil, err
	}
	return drift, nil
}

// AcceptRisk closes the drift without remediation. Allowed from any
// non-terminal state, and the justification is mandatory.
func (s *Service) AcceptRisk(ctx context.Context, driftID id.DriftID, justification string) (*models.ComplianceDrift, error) {
	if strings.TrimSpace(justification) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "accepting risk requires a justification")
	}
	now := requestcontext.Now(ctx)
	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error { return d.CanTransition(models.StatusRiskAccepted) },
		func(d *models.ComplianceDrift) {
			d.RecordDecision("risk accepted: "+justification, now)
			d.ApplyTransition(models.StatusRiskAccepted, now)
		},
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftRiskAccepted, driftID, justification); err != nil {
		return nil, err
	}
	return drift, nil
}

// Defer records the decision to postpone without moving the workflow.
// The drift stays in its current state; only the decision log and audit
// trail grow.
func (s *Service) Defer(ctx context.Context, driftID id.DriftID, reason string) (*models.ComplianceDrift, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "deferring a drift requires a reason")
	}
	now := requestcontext.Now(ctx)
	drift, err := s.drifts.Execute(ctx, driftID,
		func(d *models.ComplianceDrift) error {
			if d.Status.IsTerminal() {
				return dErrors.Newf(dErrors.CodeInvalidStateTransition, "drift is %s and cannot be deferred", d.Status)
			}
			return nil
		},
		func(d *models.ComplianceDrift) { d.RecordDecision("deferred: "+reason, now) },
	)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	if err := s.emit(ctx, audit.ActionDriftDeferred, driftID, reason); err != nil {
		return nil, err
	}
	return drift, nil
}

// OpenDrift pairs a drift with its recommended next steps.
type OpenDrift struct {
	Drift              *models.ComplianceDrift `json:"drift"`
	RecommendedActions []string                `json:"recommended_actions"`
}

// OpenDrifts lists every non-terminal drift with recommendations.
func (s *Service) OpenDrifts(ctx context.Context) ([]OpenDrift, error) {
	drifts, err := s.drifts.ListOpen(ctx)
	if err != nil {
		return nil, wrapDriftErr(err)
	}
	out := make([]OpenDrift, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, OpenDrift{Drift: d, RecommendedActions: recommendations(d)})
	}
	return out, nil
}

func recommendations(d *models.ComplianceDrift) []string {
	var recs []string
	switch d.ChangeType {
	case models.ChangeStrengthened:
		recs = append(recs,
			"review mapping contribution weights against the strengthened obligations",
			"collect evidence for the newly introduced obligations")
	case models.ChangeClarified:
		recs = append(recs, "confirm existing controls still satisfy the clarified wording")
	default:
		recs = append(recs, "re-assess mapping coverage aspects against the modified text")
	}
	if d.ImpactLevel == models.ImpactHigh || d.ImpactLevel == models.ImpactCritical {
		recs = append(recs, "prioritize remediation planning for affected controls")
	}
	if d.Status == models.StatusDetected {
		recs = append(recs, "acknowledge the drift to assign ownership")
	}
	return recs
}

func (s *Service) findVersion(ctx context.Context, frameworkID id.FrameworkID, versionID id.VersionID) (*fwmodels.FrameworkVersion, error) {
	version, err := s.frameworks.FindVersion(ctx, versionID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "framework version not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load framework version")
	}
	if version.FrameworkID != frameworkID {
		return nil, dErrors.New(dErrors.CodeValidation, "version does not belong to the framework")
	}
	return version, nil
}

func (s *Service) emit(ctx context.Context, action string, driftID id.DriftID, reason string) error {
	if s.auditor == nil {
		return nil
	}
	event := audit.Event{Action: action, Entity: "drift", EntityID: driftID.String(), Reason: reason}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
	}
	return nil
}

func wrapDriftErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "drift not found")
	case errors.Is(err, sentinel.ErrAlreadyRecorded):
		return dErrors.New(dErrors.CodeDuplicateDrift, "a drift for this requirement and version pair is already recorded")
	case errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.New(dErrors.CodeConcurrentModification, "drift was modified concurrently, re-read and retry")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "drift store failure")
	}
}
