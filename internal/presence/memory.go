package presence

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// MemoryStore is the single-instance backend.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{members: make(map[string]struct{})}
}

func (s *MemoryStore) Add(_ context.Context, identity string) error {
	s.mu.Lock()
	s.members[identity] = struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, identity string) error {
	s.mu.Lock()
	delete(s.members, identity)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members), nil
}

func (s *MemoryStore) Members(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := lo.Keys(s.members)
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) IsOnline(_ context.Context, identity string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[identity]
	return ok, nil
}
