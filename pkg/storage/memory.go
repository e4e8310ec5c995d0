package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/absmach/flcoord/pkg/errors"
)

var _ Storage = (*inMemoryStorage)(nil)

// inMemoryStorage keeps keys sorted so prefix pages are a binary search plus a slice.
type inMemoryStorage struct {
	mu   sync.RWMutex
	keys []string
	data map[string]any
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string]any),
	}
}

func (s *inMemoryStorage) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; ok {
		return errors.Exists("key", key)
	}

	i, _ := slices.BinarySearch(s.keys, key)
	s.keys = slices.Insert(s.keys, i, key)
	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, errors.ErrEmptyKey
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	if !ok {
		return nil, errors.NotFound("key", key)
	}

	return val, nil
}

func (s *inMemoryStorage) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.ErrEmptyKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return errors.NotFound("key", key)
	}
	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) List(_ context.Context, prefix string, offset, limit uint64) ([]any, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start, _ := slices.BinarySearch(s.keys, prefix)
	end := start
	for end < len(s.keys) && strings.HasPrefix(s.keys[end], prefix) {
		end++
	}
	matched := s.keys[start:end]

	total := uint64(len(matched))
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:min(offset+limit, total)]

	result := make([]any, len(matched))
	for i, k := range matched {
		result[i] = s.data[k]
	}

	return result, total, nil
}
