package store

import (
	"sort"
	"sync"

	"craftai/pkg/domain"
)

// MemoryStore is an in-memory Ledger used by tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	creations []domain.Creation
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// AppendCreation records the creation.
func (s *MemoryStore) AppendCreation(creation domain.Creation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creations = append(s.creations, creation)
	return nil
}

// ListCreationsByUser returns the user's generations, newest first.
func (s *MemoryStore) ListCreationsByUser(userID string, limit int) ([]domain.Creation, error) {
	return s.list(limit, func(c domain.Creation) bool { return c.UserID == userID })
}

// ListPublished returns published creations, newest first.
func (s *MemoryStore) ListPublished(limit int) ([]domain.Creation, error) {
	return s.list(limit, func(c domain.Creation) bool { return c.Publish })
}

func (s *MemoryStore) list(limit int, keep func(domain.Creation) bool) ([]domain.Creation, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Creation, 0, len(s.creations))
	for _, c := range s.creations {
		if keep(c) {
			res = append(res, c)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}
