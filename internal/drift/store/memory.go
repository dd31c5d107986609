package store

import (
	"context"
	"sort"
	"sync"

	"crosswalk/internal/drift/models"
	"crosswalk/internal/textdiff"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

type tuple struct {
	requirementID id.RequirementID
	oldVersionID  id.VersionID
	newVersionID  id.VersionID
}

// InMemoryStore keeps drifts in maps guarded by a mutex, with a tuple
// index enforcing the one-drift-per-comparison invariant.
type InMemoryStore struct {
	mu      sync.RWMutex
	drifts  map[id.DriftID]*models.ComplianceDrift
	byTuple map[tuple]id.DriftID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drifts:  make(map[id.DriftID]*models.ComplianceDrift),
		byTuple: make(map[tuple]id.DriftID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, drift *models.ComplianceDrift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tuple{drift.RequirementID, drift.OldVersionID, drift.NewVersionID}
	if _, exists := s.byTuple[key]; exists {
		return sentinel.ErrAlreadyRecorded
	}
	if _, exists := s.drifts[drift.ID]; exists {
		return sentinel.ErrConflict
	}
	s.drifts[drift.ID] = copyDrift(drift)
	s.byTuple[key] = drift.ID
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, driftID id.DriftID) (*models.ComplianceDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drifts[driftID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDrift(d), nil
}

func (s *InMemoryStore) FindByTuple(_ context.Context, requirementID id.RequirementID, oldVersionID, newVersionID id.VersionID) (*models.ComplianceDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	driftID, ok := s.byTuple[tuple{requirementID, oldVersionID, newVersionID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyDrift(s.drifts[driftID]), nil
}

func (s *InMemoryStore) ListByVersionPair(_ context.Context, oldVersionID, newVersionID id.VersionID) ([]*models.ComplianceDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ComplianceDrift
	for _, d := range s.drifts {
		if d.OldVersionID == oldVersionID && d.NewVersionID == newVersionID {
			out = append(out, copyDrift(d))
		}
	}
	sortDrifts(out)
	return out, nil
}

func (s *InMemoryStore) ListOpen(_ context.Context) ([]*models.ComplianceDrift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ComplianceDrift
	for _, d := range s.drifts {
		if !d.Status.IsTerminal() {
			out = append(out, copyDrift(d))
		}
	}
	sortDrifts(out)
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, driftID id.DriftID, validate func(*models.ComplianceDrift) error, mutate func(*models.ComplianceDrift)) (*models.ComplianceDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.drifts[driftID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	mutate(current)
	current.RecordVersion++
	return copyDrift(current), nil
}

func sortDrifts(drifts []*models.ComplianceDrift) {
	sort.Slice(drifts, func(i, j int) bool {
		return drifts[i].DetectedAt.Before(drifts[j].DetectedAt)
	})
}

func copyDrift(d *models.ComplianceDrift) *models.ComplianceDrift {
	cp := *d
	cp.AffectedControlIDs = append([]id.ControlID(nil), d.AffectedControlIDs...)
	cp.Actions = append([]models.RequiredAction(nil), d.Actions...)
	cp.DecisionLog = append([]string(nil), d.DecisionLog...)
	cp.Comparison.Segments = append([]textdiff.Segment(nil), d.Comparison.Segments...)
	if d.AcknowledgedAt != nil {
		t := *d.AcknowledgedAt
		cp.AcknowledgedAt = &t
	}
	return &cp
}
