package quota

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/imgdrop/internal/common"
)

type MemoryStore struct {
	mu   sync.Mutex
	used map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{used: make(map[string]int64)}
}

func (s *MemoryStore) Reserve(_ context.Context, owner string, n, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit > 0 && s.used[owner]+n > limit {
		return common.ErrorQuotaExceeded
	}
	s.used[owner] += n
	return nil
}

func (s *MemoryStore) Release(_ context.Context, owner string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.used[owner] = max(s.used[owner]-n, 0)
	return nil
}

func (s *MemoryStore) Usage(_ context.Context, owner string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used[owner], nil
}
