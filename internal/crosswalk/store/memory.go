package store

import (
	"context"
	"sort"
	"sync"

	"crosswalk/internal/crosswalk/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// InMemoryStore keeps mappings in a map guarded by a mutex, deep-copying
// records both ways.
type InMemoryStore struct {
	mu       sync.RWMutex
	mappings map[id.MappingID]*models.Mapping
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{mappings: make(map[id.MappingID]*models.Mapping)}
}

func (s *InMemoryStore) Create(_ context.Context, mapping *models.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.mappings[mapping.ID]; exists {
		return sentinel.ErrConflict
	}
	s.mappings[mapping.ID] = copyMapping(mapping)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, mapping *models.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.mappings[mapping.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.RecordVersion != mapping.RecordVersion {
		return sentinel.ErrStaleVersion
	}
	cp := copyMapping(mapping)
	cp.RecordVersion++
	s.mappings[mapping.ID] = cp
	mapping.RecordVersion = cp.RecordVersion
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, mappingID id.MappingID) (*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[mappingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyMapping(m), nil
}

func (s *InMemoryStore) ListByRequirement(_ context.Context, requirementID id.RequirementID) ([]*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Mapping
	for _, m := range s.mappings {
		if m.RequirementID == requirementID {
			out = append(out, copyMapping(m))
		}
	}
	sortMappings(out)
	return out, nil
}

func (s *InMemoryStore) ListByControl(_ context.Context, controlID id.ControlID) ([]*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Mapping
	for _, m := range s.mappings {
		if m.References(controlID) {
			out = append(out, copyMapping(m))
		}
	}
	sortMappings(out)
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, copyMapping(m))
	}
	sortMappings(out)
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, mappingID id.MappingID, validate func(*models.Mapping) error, mutate func(*models.Mapping)) (*models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.mappings[mappingID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	mutate(current)
	current.RecordVersion++
	return copyMapping(current), nil
}

func sortMappings(mappings []*models.Mapping) {
	sort.Slice(mappings, func(i, j int) bool {
		return mappings[i].CreatedAt.Before(mappings[j].CreatedAt)
	})
}

func copyMapping(m *models.Mapping) *models.Mapping {
	cp := *m
	cp.Links = make([]models.ControlLink, len(m.Links))
	copy(cp.Links, m.Links)
	for i := range cp.Links {
		cp.Links[i].CoverageAspects = append([]string(nil), m.Links[i].CoverageAspects...)
	}
	return &cp
}
