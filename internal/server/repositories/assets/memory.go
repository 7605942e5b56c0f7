package assets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/server/models"
)

// MemoryRepository keeps metadata in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	assets map[string]models.Asset
	now    func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{assets: make(map[string]models.Asset), now: time.Now}
}

func (r *MemoryRepository) Create(_ context.Context, asset *models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[asset.PublicID]; ok {
		return fmt.Errorf("failed to insert asset: duplicate public id %q", asset.PublicID)
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = r.now().UTC()
	}
	stored := *asset
	stored.Tags = append([]string(nil), asset.Tags...)
	r.assets[asset.PublicID] = stored
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, publicID string) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[publicID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) Delete(_ context.Context, publicID string) (*models.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[publicID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.assets, publicID)
	return &a, nil
}
