package checkpoint

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*memoryStore)(nil)

type memoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]Checkpoint
}

func NewMemoryStore() Store {
	return &memoryStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

func (s *memoryStore) Save(_ context.Context, cp Checkpoint) (string, error) {
	cp, err := prepare(cp)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[cp.ID]; ok {
		return "", ErrCheckpointExists
	}
	cp.Params = cp.Params.Clone()
	s.checkpoints[cp.ID] = cp

	return cp.ID, nil
}

func (s *memoryStore) Load(_ context.Context, id string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[id]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	cp.Params = cp.Params.Clone()

	return cp, nil
}

func (s *memoryStore) Latest(_ context.Context, projectID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest Checkpoint
		found  bool
	)
	for _, cp := range s.checkpoints {
		if cp.ProjectID != projectID {
			continue
		}
		if !found || newer(cp, latest) {
			latest, found = cp, true
		}
	}
	if !found {
		return Checkpoint{}, ErrNotFound
	}
	latest.Params = latest.Params.Clone()

	return latest, nil
}

func (s *memoryStore) List(_ context.Context, projectID, sessionID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := []Checkpoint{}
	for _, cp := range s.checkpoints {
		if cp.ProjectID == projectID && cp.SessionID == sessionID {
			cp.Params = cp.Params.Clone()
			list = append(list, cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })

	return list, nil
}
