// Package uploads keeps the local history of finished uploads: descriptors
// only, never file content.
package uploads

import (
	"context"

	"github.com/dmitrijs2005/imgdrop/internal/client/models"
)

// Repository stores upload descriptors.
type Repository interface {
	// Insert records a finished upload. Re-inserting a public id replaces it.
	Insert(ctx context.Context, rec models.UploadRecord) error

	// List returns the newest records first, at most limit (0 = all).
	List(ctx context.Context, limit int) ([]models.UploadRecord, error)

	// MarkDeleted flags the record as deleted from the remote store.
	MarkDeleted(ctx context.Context, publicID string) error
}
