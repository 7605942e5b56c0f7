package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/dbx"
	"github.com/dmitrijs2005/imgdrop/internal/server/models"
)

const assetColumns = `public_id, owner_id, storage_key, folder, tags, file_name, format, content_type, width, height, bytes, created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts asset. CreatedAt is assigned by the database.
func (r *PostgresRepository) Create(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (public_id, owner_id, storage_key, folder, tags, file_name, format, content_type, width, height, bytes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		asset.PublicID, asset.OwnerID, asset.Key, asset.Folder, strings.Join(asset.Tags, ","),
		asset.FileName, asset.Format, asset.ContentType, asset.Width, asset.Height, asset.Bytes,
	).Scan(&asset.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, publicID string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE public_id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, publicID))
}

func (r *PostgresRepository) Delete(ctx context.Context, publicID string) (*models.Asset, error) {
	query := `DELETE FROM assets WHERE public_id = $1 RETURNING ` + assetColumns
	return r.scanOne(r.db.QueryRowContext(ctx, query, publicID))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Asset, error) {
	var (
		a    models.Asset
		tags string
	)
	err := row.Scan(&a.PublicID, &a.OwnerID, &a.Key, &a.Folder, &tags, &a.FileName,
		&a.Format, &a.ContentType, &a.Width, &a.Height, &a.Bytes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to read asset: %w", err)
	}
	a.Tags = splitTags(tags)
	return &a, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
