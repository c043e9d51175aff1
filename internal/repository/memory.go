package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"world-chat/internal/models"

	"github.com/google/uuid"
)

type reactionKey struct {
	messageID uuid.UUID
	identity  string
	emoji     string
}

// MemoryStore implements every repository interface in process. It backs
// single-instance deployments without DATABASE_URL and the tests.
type MemoryStore struct {
	mu        sync.RWMutex
	messages  map[uuid.UUID]*models.Message
	reactions map[reactionKey]models.Reaction
	profiles  map[string]*models.Profile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages:  make(map[uuid.UUID]*models.Message),
		reactions: make(map[reactionKey]models.Reaction),
		profiles:  make(map[string]*models.Profile),
	}
}

func (s *MemoryStore) Save(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[m.ID]; ok {
		return nil
	}
	cp := *m
	s.messages[m.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) FetchSince(_ context.Context, room string, after Cursor, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	var out []*models.Message
	for _, m := range s.messages {
		if m.RoomID == room && after.Precedes(m) {
			cp := *m
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateContent(_ context.Context, id uuid.UUID, content string, editedAt time.Time) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.Deleted {
		return nil, ErrNotFound
	}
	m.Content = content
	m.Edited = true
	m.EditedAt = &editedAt
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.Tombstone()
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, m := range s.messages {
		if m.CreatedAt.Before(cutoff) {
			delete(s.messages, id)
			n++
		}
	}
	for k := range s.reactions {
		if _, ok := s.messages[k.messageID]; !ok {
			delete(s.reactions, k)
		}
	}
	return n, nil
}

func (s *MemoryStore) Exists(_ context.Context, messageID uuid.UUID, identity, emoji string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.reactions[reactionKey{messageID, identity, emoji}]
	return ok, nil
}

func (s *MemoryStore) Add(_ context.Context, r *models.Reaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{r.MessageID, r.Identity, r.Emoji}
	if _, ok := s.reactions[k]; ok {
		return false, nil
	}
	s.reactions[k] = *r
	return true, nil
}

func (s *MemoryStore) Remove(_ context.Context, messageID uuid.UUID, identity, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := reactionKey{messageID, identity, emoji}
	if _, ok := s.reactions[k]; !ok {
		return false, nil
	}
	delete(s.reactions, k)
	return true, nil
}

func (s *MemoryStore) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	grouped, err := s.ListByMessages(ctx, []uuid.UUID{messageID})
	if err != nil {
		return nil, err
	}
	return grouped[messageID], nil
}

func (s *MemoryStore) ListByMessages(_ context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Reaction, error) {
	wanted := make(map[uuid.UUID]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	out := make(map[uuid.UUID][]models.Reaction, len(messageIDs))
	for k, r := range s.reactions {
		if _, ok := wanted[k.messageID]; ok {
			out[k.messageID] = append(out[k.messageID], r)
		}
	}
	s.mu.RUnlock()

	for id := range out {
		list := out[id]
		sort.Slice(list, func(i, j int) bool {
			if list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].Identity < list[j].Identity
			}
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		})
	}
	return out, nil
}

func (s *MemoryStore) GetProfile(_ context.Context, identity string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identity]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) GetProfiles(_ context.Context, identities []string) (map[string]*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*models.Profile, len(identities))
	for _, id := range identities {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStore) SetDisplayName(_ context.Context, identity, displayName string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[identity]
	if !ok {
		p = &models.Profile{Identity: identity}
		s.profiles[identity] = p
	}
	p.DisplayName = displayName
	p.DisplayNameSet = true
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	return &cp, nil
}
