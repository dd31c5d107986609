package store

import (
	"context"
	"sort"
	"sync"

	"crosswalk/internal/control/models"
	id "crosswalk/pkg/domain"
	"crosswalk/pkg/platform/sentinel"
)

// InMemoryStore keeps controls in a map guarded by a mutex. Records are
// deep-copied on the way in and out.
type InMemoryStore struct {
	mu       sync.RWMutex
	controls map[id.ControlID]*models.Control
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{controls: make(map[id.ControlID]*models.Control)}
}

func (s *InMemoryStore) Create(_ context.Context, control *models.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.controls[control.ID]; exists {
		return sentinel.ErrConflict
	}
	s.controls[control.ID] = copyControl(control)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, control *models.Control) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.controls[control.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.RecordVersion != control.RecordVersion {
		return sentinel.ErrStaleVersion
	}
	cp := copyControl(control)
	cp.RecordVersion++
	s.controls[control.ID] = cp
	control.RecordVersion = cp.RecordVersion
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, controlID id.ControlID) (*models.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.controls[controlID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyControl(c), nil
}

func (s *InMemoryStore) FindMany(_ context.Context, controlIDs []id.ControlID) ([]*models.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Control, 0, len(controlIDs))
	for _, cid := range controlIDs {
		if c, ok := s.controls[cid]; ok {
			out = append(out, copyControl(c))
		}
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Control, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Control, 0, len(s.controls))
	for _, c := range s.controls {
		out = append(out, copyControl(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemoryStore) Execute(_ context.Context, controlID id.ControlID, validate func(*models.Control) error, mutate func(*models.Control)) (*models.Control, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.controls[controlID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(current); err != nil {
		return nil, err
	}
	mutate(current)
	current.RecordVersion++
	return copyControl(current), nil
}

func copyControl(c *models.Control) *models.Control {
	cp := *c
	cp.Evidence = make([]models.Evidence, len(c.Evidence))
	copy(cp.Evidence, c.Evidence)
	for i := range cp.Evidence {
		if e := c.Evidence[i].ExpiresAt; e != nil {
			t := *e
			cp.Evidence[i].ExpiresAt = &t
		}
		if v := c.Evidence[i].VerifiedAt; v != nil {
			t := *v
			cp.Evidence[i].VerifiedAt = &t
		}
	}
	return &cp
}
