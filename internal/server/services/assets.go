// Package services contains the asset store business logic shared by the
// HTTP handlers: storing uploads under a per-owner quota, deleting them and
// opening stored blobs.
package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/dbx"
	"github.com/dmitrijs2005/imgdrop/internal/logging"
	"github.com/dmitrijs2005/imgdrop/internal/server/blobstore"
	"github.com/dmitrijs2005/imgdrop/internal/server/models"
	"github.com/dmitrijs2005/imgdrop/internal/server/quota"
	"github.com/dmitrijs2005/imgdrop/internal/server/repositories/assets"
	"github.com/dmitrijs2005/imgdrop/internal/server/repositories/repomanager"
)

// UploadRequest is one image to store for OwnerID.
type UploadRequest struct {
	OwnerID  string
	FileName string
	Folder   string
	Tags     []string
	Data     []byte
}

// Limits bound what a single owner may store.
type Limits struct {
	MaxUploadBytes int64
	QuotaBytes     int64
}

// AssetService stores images as a blob plus a metadata row. Metadata lives
// in PostgreSQL when db is set, otherwise in memory.
type AssetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	memory      assets.Repository
	blobs       blobstore.Store
	quota       quota.Store
	limits      Limits
	logger      logging.Logger
	newID       func() string
}

// NewAssetService constructs a service backed by PostgreSQL metadata.
func NewAssetService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store, q quota.Store, limits Limits, logger logging.Logger) *AssetService {
	return &AssetService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		quota:       q,
		limits:      limits,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// NewMemoryAssetService constructs a service that keeps metadata in repo
// without transactions.
func NewMemoryAssetService(repo assets.Repository, blobs blobstore.Store, q quota.Store, limits Limits, logger logging.Logger) *AssetService {
	return &AssetService{
		memory: repo,
		blobs:  blobs,
		quota:  q,
		limits: limits,
		logger: logger,
		newID:  uuid.NewString,
	}
}

func (s *AssetService) repo() assets.Repository {
	if s.db == nil {
		return s.memory
	}
	return s.repomanager.Assets(s.db)
}

func (s *AssetService) inTx(ctx context.Context, fn func(ctx context.Context, repo assets.Repository) error) error {
	if s.db == nil {
		return fn(ctx, s.memory)
	}
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.repomanager.Assets(tx))
	})
}

// Inspect sniffs data and reads the image header. It returns the short
// format name, the content type and the pixel dimensions.
func Inspect(data []byte) (format, contentType string, width, height int, err error) {
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", "", 0, 0, fmt.Errorf("%w: detected %s", common.ErrorNotAnImage, mt.String())
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", "", 0, 0, fmt.Errorf("%w: %v", common.ErrorNotAnImage, err)
	}
	return strings.TrimPrefix(mt.Extension(), "."), mt.String(), cfg.Width, cfg.Height, nil
}

// Upload validates req, reserves quota and stores the blob and its metadata.
// Partial work is undone when a later step fails.
func (s *AssetService) Upload(ctx context.Context, req UploadRequest) (*models.Asset, error) {
	size := int64(len(req.Data))
	if size == 0 {
		return nil, common.ErrorMissingFile
	}
	if s.limits.MaxUploadBytes > 0 && size > s.limits.MaxUploadBytes {
		return nil, common.ErrorTooLarge
	}

	format, contentType, width, height, err := Inspect(req.Data)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, req.OwnerID, size, s.limits.QuotaBytes); err != nil {
		return nil, err
	}

	publicID := s.newID()
	if req.Folder != "" {
		publicID = path.Join(req.Folder, publicID)
	}
	asset := &models.Asset{
		PublicID:    publicID,
		OwnerID:     req.OwnerID,
		Key:         req.OwnerID + "/" + publicID + "." + format,
		Folder:      req.Folder,
		Tags:        req.Tags,
		FileName:    req.FileName,
		Format:      format,
		ContentType: contentType,
		Width:       width,
		Height:      height,
		Bytes:       size,
	}

	if err := s.blobs.Put(ctx, asset.Key, bytes.NewReader(req.Data), size, contentType); err != nil {
		s.releaseQuota(ctx, req.OwnerID, size)
		return nil, err
	}

	if err := s.repo().Create(ctx, asset); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), asset.Key); delErr != nil {
			s.logger.Warn(ctx, "orphaned blob", "key", asset.Key, "error", delErr)
		}
		s.releaseQuota(ctx, req.OwnerID, size)
		return nil, err
	}

	s.logger.Info(ctx, "asset stored", "public_id", asset.PublicID, "owner", asset.OwnerID, "bytes", size)
	return asset, nil
}

// Delete removes the owner's asset. Assets of other owners are reported as
// common.ErrorNotFound.
func (s *AssetService) Delete(ctx context.Context, ownerID, publicID string) error {
	var deleted *models.Asset
	err := s.inTx(ctx, func(ctx context.Context, repo assets.Repository) error {
		a, err := repo.Get(ctx, publicID)
		if err != nil {
			return err
		}
		if a.OwnerID != ownerID {
			return common.ErrorNotFound
		}
		if deleted, err = repo.Delete(ctx, publicID); err != nil {
			return err
		}
		if err := s.blobs.Delete(ctx, deleted.Key); err != nil {
			if s.db == nil {
				s.restore(ctx, repo, deleted)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.releaseQuota(ctx, ownerID, deleted.Bytes)
	s.logger.Info(ctx, "asset deleted", "public_id", publicID, "owner", ownerID)
	return nil
}

// restore puts a removed row back when there is no transaction to roll back.
func (s *AssetService) restore(ctx context.Context, repo assets.Repository, a *models.Asset) {
	if err := repo.Create(context.WithoutCancel(ctx), a); err != nil {
		s.logger.Error(ctx, "cannot restore asset metadata", "public_id", a.PublicID, "error", err)
	}
}

// Open returns the stored blob for key.
func (s *AssetService) Open(ctx context.Context, key string) (*blobstore.Object, error) {
	return s.blobs.Get(ctx, key)
}

// Get returns the metadata of the owner's asset.
func (s *AssetService) Get(ctx context.Context, ownerID, publicID string) (*models.Asset, error) {
	a, err := s.repo().Get(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if a.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

// Usage reports the bytes currently stored by ownerID and the quota.
func (s *AssetService) Usage(ctx context.Context, ownerID string) (used, limit int64, err error) {
	used, err = s.quota.Usage(ctx, ownerID)
	return used, s.limits.QuotaBytes, err
}

func (s *AssetService) releaseQuota(ctx context.Context, owner string, n int64) {
	if err := s.quota.Release(context.WithoutCancel(ctx), owner, n); err != nil {
		s.logger.Warn(ctx, "quota release failed", "owner", owner, "bytes", n, "error", err)
	}
}

// IsClientError reports whether err is caused by the request rather than the
// server.
func IsClientError(err error) bool {
	return errors.Is(err, common.ErrorMissingFile) ||
		errors.Is(err, common.ErrorNotAnImage) ||
		errors.Is(err, common.ErrorTooLarge) ||
		errors.Is(err, common.ErrorQuotaExceeded) ||
		errors.Is(err, common.ErrorNotFound)
}
