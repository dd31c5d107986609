package store

import (
	"context"
	"sort"
	"sync"

	"crosswalk/internal/framework/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// InMemoryStore keeps frameworks, versions, and requirements in maps
// guarded by a single mutex. Records are copied on the way in and out so
// callers can never mutate stored state, which is what keeps published
// versions immutable in this implementation.
type InMemoryStore struct {
	mu           sync.RWMutex
	frameworks   map[id.FrameworkID]*models.Framework
	versions     map[id.VersionID]*models.FrameworkVersion
	requirements map[id.RequirementID]*models.Requirement
	byVersion    map[id.VersionID][]id.RequirementID
	byFramework  map[id.FrameworkID][]id.VersionID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		frameworks:   make(map[id.FrameworkID]*models.Framework),
		versions:     make(map[id.VersionID]*models.FrameworkVersion),
		requirements: make(map[id.RequirementID]*models.Requirement),
		byVersion:    make(map[id.VersionID][]id.RequirementID),
		byFramework:  make(map[id.FrameworkID][]id.VersionID),
	}
}

func (s *InMemoryStore) SaveFramework(_ context.Context, framework *models.Framework) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.frameworks[framework.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, f := range s.frameworks {
		if f.Name == framework.Name {
			return sentinel.ErrConflict
		}
	}
	cp := *framework
	s.frameworks[framework.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindFramework(_ context.Context, frameworkID id.FrameworkID) (*models.Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frameworks[frameworkID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (s *InMemoryStore) ListFrameworks(_ context.Context) ([]*models.Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Framework, 0, len(s.frameworks))
	for _, f := range s.frameworks {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) PublishVersion(_ context.Context, version *models.FrameworkVersion, requirements []*models.Requirement, superseded *id.VersionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.versions[version.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, ok := s.frameworks[version.FrameworkID]; !ok {
		return sentinel.ErrNotFound
	}
	if superseded != nil {
		prior, ok := s.versions[*superseded]
		if !ok {
			return sentinel.ErrNotFound
		}
		if err := prior.CanSupersede(); err != nil {
			return sentinel.ErrInvalidState
		}
	}
	for _, r := range requirements {
		if _, exists := s.requirements[r.ID]; exists {
			return sentinel.ErrConflict
		}
	}

	// All checks passed; apply as a unit.
	if superseded != nil {
		s.versions[*superseded].ApplySuperseded()
	}
	vcp := *version
	s.versions[version.ID] = &vcp
	s.byFramework[version.FrameworkID] = append(s.byFramework[version.FrameworkID], version.ID)
	for _, r := range requirements {
		rcp := copyRequirement(r)
		s.requirements[r.ID] = rcp
		s.byVersion[version.ID] = append(s.byVersion[version.ID], r.ID)
	}
	return nil
}

func (s *InMemoryStore) FindVersion(_ context.Context, versionID id.VersionID) (*models.FrameworkVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[versionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *InMemoryStore) ActiveVersion(_ context.Context, frameworkID id.FrameworkID) (*models.FrameworkVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, vid := range s.byFramework[frameworkID] {
		if v := s.versions[vid]; v != nil && v.IsActive() {
			cp := *v
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListVersions(_ context.Context, frameworkID id.FrameworkID) ([]*models.FrameworkVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byFramework[frameworkID]
	out := make([]*models.FrameworkVersion, 0, len(ids))
	for _, vid := range ids {
		cp := *s.versions[vid]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (s *InMemoryStore) FindRequirement(_ context.Context, requirementID id.RequirementID) (*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requirements[requirementID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequirement(r), nil
}

func (s *InMemoryStore) RequirementsByVersion(_ context.Context, versionID id.VersionID) ([]*models.Requirement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byVersion[versionID]
	out := make([]*models.Requirement, 0, len(ids))
	for _, rid := range ids {
		out = append(out, copyRequirement(s.requirements[rid]))
	}
	return out, nil
}

func (s *InMemoryStore) OrphanedRequirements(_ context.Context) ([]id.RequirementID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var orphaned []id.RequirementID
	for rid, r := range s.requirements {
		if _, ok := s.versions[r.VersionID]; !ok {
			orphaned = append(orphaned, rid)
		}
	}
	return orphaned, nil
}

func copyRequirement(r *models.Requirement) *models.Requirement {
	cp := *r
	cp.Keywords = append([]string(nil), r.Keywords...)
	cp.ImplementationGuidance = append([]string(nil), r.ImplementationGuidance...)
	cp.EvidenceExamples = append([]string(nil), r.EvidenceExamples...)
	cp.RelatedRequirements = append([]id.RequirementID(nil), r.RelatedRequirements...)
	if r.Supersedes != nil {
		sup := *r.Supersedes
		cp.Supersedes = &sup
	}
	return &cp
}
