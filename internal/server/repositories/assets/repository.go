// Package assets persists asset metadata.
package assets

import (
	"context"

	"github.com/dmitrijs2005/imgdrop/internal/server/models"
)

// Repository stores asset metadata. Get and Delete return
// common.ErrorNotFound for unknown ids.
type Repository interface {
	Create(ctx context.Context, asset *models.Asset) error
	Get(ctx context.Context, publicID string) (*models.Asset, error)
	// Delete removes the asset and returns what was stored.
	Delete(ctx context.Context, publicID string) (*models.Asset, error)
}
