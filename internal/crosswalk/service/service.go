package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"crosswalk/internal/audit"
	ctrlmodels "crosswalk/internal/control/models"
	"crosswalk/internal/crosswalk"
	cwmetrics "crosswalk/internal/crosswalk/metrics"
	"crosswalk/internal/crosswalk/models"
	"crosswalk/internal/crosswalk/store"
	fwmodels "crosswalk/internal/framework/models"
	platformredis "crosswalk/internal/platform/redis"
	id "crosswalk/pkg/domain"
	dErrors "crosswalk/pkg/domain-errors"
	"crosswalk/pkg/platform/sentinel"
	"crosswalk/pkg/requestcontext"
)

const (
	summaryCacheKey = "crosswalk:summary"
	summaryCacheTTL = 30 * time.Second

	// staleRetries bounds how often a recompute retries after losing an
	// optimistic-concurrency race before giving up.
	staleRetries = 3

	defaultWorkers = 4
)

// RequirementSource reads requirement and framework records. The
// framework store satisfies it.
type RequirementSource interface {
	FindRequirement(ctx context.Context, requirementID id.RequirementID) (*fwmodels.Requirement, error)
	FindFramework(ctx context.Context, frameworkID id.FrameworkID) (*fwmodels.Framework, error)
}

// ControlSource reads control records. The control store satisfies it.
type ControlSource interface {
	FindMany(ctx context.Context, controlIDs []id.ControlID) ([]*ctrlmodels.Control, error)
}

// AuditPublisher records state-changing mapping actions.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service owns the crosswalk: mapping lifecycle, coverage computation,
// gap analysis, and the aggregate summary.
type Service struct {
	mappings     store.Store
	requirements RequirementSource
	controls     ControlSource
	auditor      AuditPublisher
	cache        *platformredis.Client
	metrics      *cwmetrics.Metrics
	workers      int
	logger       *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.auditor = publisher }
}

// WithSummaryCache enables the short-lived Redis summary cache. A nil
// client leaves caching off.
func WithSummaryCache(cache *platformredis.Client) Option {
	return func(s *Service) { s.cache = cache }
}

func WithMetrics(m *cwmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithWorkers bounds parallelism of bulk coverage recomputation.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

func New(mappings store.Store, requirements RequirementSource, controls ControlSource, opts ...Option) *Service {
	s := &Service{
		mappings:     mappings,
		requirements: requirements,
		controls:     controls,
		workers:      defaultWorkers,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LinkInput is one requested control link.
type LinkInput struct {
	ControlID          id.ControlID
	ContributionWeight int
	CoverageAspects    []string
}

func (s *Service) CreateMapping(ctx context.Context, requirementID id.RequirementID, links []LinkInput) (*models.Mapping, error) {
	requirement, err := s.findRequirement(ctx, requirementID)
	if err != nil {
		return nil, err
	}

	mapping, err := models.NewMapping(id.NewMappingID(), requirementID, toControlLinks(links), requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	controls, err := s.resolveControls(ctx, mapping)
	if err != nil {
		return nil, err
	}
	s.applyCoverage(ctx, mapping, requirement, controls)

	if err := s.mappings.Create(ctx, mapping); err != nil {
		return nil, wrapMappingErr(err)
	}
	s.invalidateSummary(ctx)
	if err := s.emit(ctx, audit.ActionMappingCreated, mapping.ID, ""); err != nil {
		return nil, err
	}
	return mapping, nil
}

// UpdateInput carries PATCH semantics: nil fields are left untouched.
type UpdateInput struct {
	Links         *[]LinkInput
	NotApplicable *bool
	RecordVersion int64
}

func (s *Service) UpdateMapping(ctx context.Context, mappingID id.MappingID, input UpdateInput) (*models.Mapping, error) {
	mapping, err := s.mappings.Find(ctx, mappingID)
	if err != nil {
		return nil, wrapMappingErr(err)
	}

	if input.Links != nil {
		normalized, err := models.NormalizeLinks(toControlLinks(*input.Links))
		if err != nil {
			return nil, err
		}
		mapping.Links = normalized
	}
	if input.NotApplicable != nil && !*input.NotApplicable {
		mapping.NotApplicable = false
		mapping.NotApplicableReason = ""
	}

	requirement, err := s.findRequirement(ctx, mapping.RequirementID)
	if err != nil {
		return nil, err
	}
	controls, err := s.resolveControls(ctx, mapping)
	if err != nil {
		return nil, err
	}
	s.applyCoverage(ctx, mapping, requirement, controls)
	mapping.LastUpdated = requestcontext.Now(ctx)
	mapping.RecordVersion = input.RecordVersion

	if err := s.mappings.Update(ctx, mapping); err != nil {
		return nil, wrapMappingErr(err)
	}
	s.invalidateSummary(ctx)
	if err := s.emit(ctx, audit.ActionMappingUpdated, mapping.ID, ""); err != nil {
		return nil, err
	}
	return mapping, nil
}

func (s *Service) GetMapping(ctx context.Context, mappingID id.MappingID) (*models.Mapping, error) {
	mapping, err := s.mappings.Find(ctx, mappingID)
	if err != nil {
		return nil, wrapMappingErr(err)
	}
	return mapping, nil
}

func (s *Service) ListByRequirement(ctx context.Context, requirementID id.RequirementID) ([]*models.Mapping, error) {
	out, err := s.mappings.ListByRequirement(ctx, requirementID)
	if err != nil {
		return nil, wrapMappingErr(err)
	}
	return out, nil
}

func (s *Service) ListByControl(ctx context.Context, controlID id.ControlID) ([]*models.Mapping, error) {
	out, err := s.mappings.ListByControl(ctx, controlID)
	if err != nil {
		return nil, wrapMappingErr(err)
	}
	return out, nil
}

// MarkNotApplicable records the operator decision that the requirement
// does not apply. This is the only path to not_applicable.
func (s *Service) MarkNotApplicable(ctx context.Context, mappingID id.MappingID, reason string) (*models.Mapping, error) {
	now := requestcontext.Now(ctx)
	var markErr error
	mapping, err := s.mappings.Execute(ctx, mappingID,
		func(m *models.Mapping) error {
			if m.NotApplicable {
				return dErrors.New(dErrors.CodeInvalidStateTransition, "mapping is already marked not applicable")
			}
			return nil
		},
		func(m *models.Mapping) { markErr = m.MarkNotApplicable(reason, now) },
	)
	if err != nil {
		return nil, wrapMappingErr(err)
	}
	if markErr != nil {
		return nil, markErr
	}
	s.invalidateSummary(ctx)
	if err := s.emit(ctx, audit.ActionMappingNotApplicable, mappingID, reason); err != nil {
		return nil, err
	}
	return mapping, nil
}

// RecomputeForRequirement refreshes coverage for every mapping of one
// requirement. Mappings are independent records, so the work fans out
// with bounded parallelism and respects cancellation between items.
func (s *Service) RecomputeForRequirement(ctx context.Context, requirementID id.RequirementID) error {
	mappings, err := s.mappings.ListByRequirement(ctx, requirementID)
	if err != nil {
		return wrapMappingErr(err)
	}
	if len(mappings) == 0 {
		return nil
	}

	ctx, span := otel.Tracer("crosswalk/coverage").Start(ctx, "coverage.recompute", trace.WithAttributes(
		attribute.String("requirement.id", requirementID.String()),
		attribute.Int("mapping.count", len(mappings)),
	))
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, m := range mappings {
		mappingID := m.ID
		g.Go(func() error {
			return s.recomputeMapping(ctx, mappingID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.invalidateSummary(ctx)
	return nil
}

// recomputeMapping re-reads and rescores one mapping, retrying a
// bounded number of times when it loses an optimistic-concurrency race.
func (s *Service) recomputeMapping(ctx context.Context, mappingID id.MappingID) error {
	for attempt := 0; attempt < staleRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		mapping, err := s.mappings.Find(ctx, mappingID)
		if err != nil {
			return wrapMappingErr(err)
		}
		requirement, err := s.findRequirement(ctx, mapping.RequirementID)
		if err != nil {
			return err
		}
		controls, err := s.resolveControls(ctx, mapping)
		if err != nil {
			return err
		}
		s.applyCoverage(ctx, mapping, requirement, controls)
		mapping.LastUpdated = requestcontext.Now(ctx)

		err = s.mappings.Update(ctx, mapping)
		if err == nil {
			if s.metrics != nil {
				s.metrics.RecomputesTotal.Inc()
			}
			return nil
		}
		if !errors.Is(err, sentinel.ErrStaleVersion) {
			if s.metrics != nil {
				s.metrics.RecomputeFailures.Inc()
			}
			return wrapMappingErr(err)
		}
	}
	if s.metrics != nil {
		s.metrics.RecomputeFailures.Inc()
	}
	return dErrors.New(dErrors.CodeConcurrentModification, "mapping kept changing during recompute")
}

// OnControlDeprecated flags every mapping referencing the control for
// review and rescores it with the deprecated control contributing
// nothing. Links are never silently dropped.
func (s *Service) OnControlDeprecated(ctx context.Context, controlID id.ControlID) error {
	mappings, err := s.mappings.ListByControl(ctx, controlID)
	if err != nil {
		return wrapMappingErr(err)
	}
	for _, m := range mappings {
		mappingID := m.ID
		_, err := s.mappings.Execute(ctx, mappingID,
			func(*models.Mapping) error { return nil },
			func(fresh *models.Mapping) { fresh.FlaggedForReview = true },
		)
		if err != nil {
			return wrapMappingErr(err)
		}
		if err := s.recomputeMapping(ctx, mappingID); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ActionMappingUpdated, mappingID, "linked control deprecated, flagged for review"); err != nil {
			return err
		}
	}
	s.invalidateSummary(ctx)
	return nil
}

// MigrateToRequirement re-points every mapping of a superseded
// requirement at its successor and rescores it against the new text.
// Publication never touches mappings; this runs only when a drift scan
// has recorded the change, so coverage visibly drops the moment the
// drift exists instead of silently tracking stale law.
func (s *Service) MigrateToRequirement(ctx context.Context, from, to id.RequirementID) error {
	if _, err := s.findRequirement(ctx, to); err != nil {
		return err
	}
	mappings, err := s.mappings.ListByRequirement(ctx, from)
	if err != nil {
		return wrapMappingErr(err)
	}
	for _, m := range mappings {
		mappingID := m.ID
		_, err := s.mappings.Execute(ctx, mappingID,
			func(*models.Mapping) error { return nil },
			func(fresh *models.Mapping) { fresh.RequirementID = to },
		)
		if err != nil {
			return wrapMappingErr(err)
		}
		if err := s.recomputeMapping(ctx, mappingID); err != nil {
			return err
		}
		if err := s.emit(ctx, audit.ActionMappingUpdated, mappingID, "carried to successor requirement"); err != nil {
			return err
		}
	}
	s.invalidateSummary(ctx)
	return nil
}

// AnalyzeGaps runs gap analysis for one mapping against its
// requirement. The result is heuristic review input, documented as such.
func (s *Service) AnalyzeGaps(ctx context.Context, mappingID id.MappingID) (*models.GapAnalysis, error) {
	mapping, err := s.mappings.Find(ctx, mappingID)
	if err != nil {
		return nil, wrapMappingErr(err)
	}
	requirement, err := s.findRequirement(ctx, mapping.RequirementID)
	if err != nil {
		return nil, err
	}
	controls, err := s.resolveControls(ctx, mapping)
	if err != nil {
		return nil, err
	}
	analysis := crosswalk.AnalyzeGap(requirement, mapping, controls)
	return &analysis, nil
}

// Summary aggregates every mapping into status counts and average
// scores per framework and category, with a short-lived cache so bursts
// of dashboard reads do not rescan the store.
func (s *Service) Summary(ctx context.Context) (*models.CrosswalkSummary, error) {
	if cached := s.cachedSummary(ctx); cached != nil {
		return cached, nil
	}

	mappings, err := s.mappings.List(ctx)
	if err != nil {
		return nil, wrapMappingErr(err)
	}

	summary := &models.CrosswalkSummary{
		TotalMappings:    len(mappings),
		CountsByStatus:   make(map[models.ComplianceStatus]int),
		ScoreByFramework: make(map[string]float64),
		ScoreByCategory:  make(map[string]float64),
		GeneratedAt:      requestcontext.Now(ctx),
	}

	byFramework := make(map[string]*bucket)
	byCategory := make(map[string]*bucket)
	frameworkNames := make(map[id.FrameworkID]string)

	for _, m := range mappings {
		summary.CountsByStatus[m.Status]++
		if m.Status == models.StatusNotApplicable {
			continue
		}
		requirement, err := s.findRequirement(ctx, m.RequirementID)
		if err != nil {
			return nil, err
		}
		name, ok := frameworkNames[requirement.FrameworkID]
		if !ok {
			framework, err := s.requirements.FindFramework(ctx, requirement.FrameworkID)
			if err != nil {
				return nil, wrapMappingErr(err)
			}
			name = framework.Name
			frameworkNames[requirement.FrameworkID] = name
		}
		accumulate(byFramework, name, m.CoverageScore)
		accumulate(byCategory, requirement.Category, m.CoverageScore)
	}
	for name, b := range byFramework {
		summary.ScoreByFramework[name] = b.sum / float64(b.count)
	}
	for category, b := range byCategory {
		summary.ScoreByCategory[category] = b.sum / float64(b.count)
	}

	s.storeSummary(ctx, summary)
	return summary, nil
}

type bucket struct {
	sum   float64
	count int
}

func accumulate(buckets map[string]*bucket, key string, score int) {
	b, ok := buckets[key]
	if !ok {
		b = &bucket{}
		buckets[key] = b
	}
	b.sum += float64(score)
	b.count++
}

func (s *Service) cachedSummary(ctx context.Context) *models.CrosswalkSummary {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, summaryCacheKey).Bytes()
	if err != nil {
		if s.metrics != nil {
			s.metrics.SummaryCacheMiss.Inc()
		}
		return nil
	}
	var summary models.CrosswalkSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		s.logger.Warn("discarding undecodable summary cache entry", "error", err)
		return nil
	}
	if s.metrics != nil {
		s.metrics.SummaryCacheHits.Inc()
	}
	return &summary
}

func (s *Service) storeSummary(ctx context.Context, summary *models.CrosswalkSummary) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, summaryCacheKey, raw, summaryCacheTTL).Err(); err != nil {
		s.logger.Warn("summary cache write failed", "error", err)
	}
}

func (s *Service) invalidateSummary(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, summaryCacheKey).Err(); err != nil {
		s.logger.Warn("summary cache invalidation failed", "error", err)
	}
}

func (s *Service) applyCoverage(ctx context.Context, mapping *models.Mapping, requirement *fwmodels.Requirement, controls []*ctrlmodels.Control) {
	score, status := crosswalk.ComputeCoverage(mapping, requirement, controls, requestcontext.Now(ctx))
	mapping.CoverageScore = score
	mapping.Status = status
	if s.metrics != nil {
		s.metrics.CoverageScore.Observe(float64(score))
	}
}

func (s *Service) findRequirement(ctx context.Context, requirementID id.RequirementID) (*fwmodels.Requirement, error) {
	requirement, err := s.requirements.FindRequirement(ctx, requirementID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "requirement not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load requirement")
	}
	return requirement, nil
}

// resolveControls loads every linked control, failing when a link
// points at a record that does not exist.
func (s *Service) resolveControls(ctx context.Context, mapping *models.Mapping) ([]*ctrlmodels.Control, error) {
	ids := mapping.ControlIDs()
	if len(ids) == 0 {
		return nil, nil
	}
	controls, err := s.controls.FindMany(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load linked controls")
	}
	if len(controls) != len(ids) {
		return nil, dErrors.New(dErrors.CodeNotFound, "a linked control does not exist")
	}
	return controls, nil
}

func (s *Service) emit(ctx context.Context, action string, mappingID id.MappingID, reason string) error {
	if s.auditor == nil {
		return nil
	}
	event := audit.Event{Action: action, Entity: "mapping", EntityID: mappingID.String(), Reason: reason}
	if err := s.auditor.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "audit persistence failed")
	}
	return nil
}

func toControlLinks(links []LinkInput) []models.ControlLink {
	out := make([]models.ControlLink, 0, len(links))
	for _, l := range links {
		out = append(out, models.ControlLink{
			ControlID:          l.ControlID,
			ContributionWeight: l.ContributionWeight,
			CoverageAspects:    l.CoverageAspects,
		})
	}
	return out
}

func wrapMappingErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "mapping not found")
	case errors.Is(err, sentinel.ErrStaleVersion):
		return dErrors.New(dErrors.CodeConcurrentModification, "mapping was modified concurrently, re-read and retry")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "mapping already exists")
	default:
		var de *dErrors.Error
		if errors.As(err, &de) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "mapping store failure")
	}
}
