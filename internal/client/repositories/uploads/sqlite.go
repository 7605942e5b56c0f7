package uploads

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/imgdrop/internal/client/migrations"
	"github.com/dmitrijs2005/imgdrop/internal/client/models"
	"github.com/dmitrijs2005/imgdrop/internal/common"
	"github.com/dmitrijs2005/imgdrop/internal/dbx"
	"github.com/dmitrijs2005/imgdrop/internal/filex"
)

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (creating if needed) the history database at path and
// migrates it. ":memory:" is accepted for tests.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := filex.EnsureParentDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps an in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec models.UploadRecord) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = r.now()
	}

	query := `INSERT INTO uploads (public_id, file_name, url, secure_url, width, height, format, bytes, uploaded_at, deleted)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(public_id) DO UPDATE SET file_name = excluded.file_name,
				url = excluded.url,
				secure_url = excluded.secure_url,
				width = excluded.width,
				height = excluded.height,
				format = excluded.format,
				bytes = excluded.bytes,
				uploaded_at = excluded.uploaded_at,
				deleted = excluded.deleted
	`
	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.FileName, rec.URL, rec.SecureURL,
		rec.Width, rec.Height, rec.Format, rec.Bytes, rec.UploadedAt.UTC(), rec.Deleted)
	if err != nil {
		return fmt.Errorf("failed to insert upload: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]models.UploadRecord, error) {
	query := `select public_id, file_name, url, secure_url, width, height, format, bytes, uploaded_at, deleted
		from uploads order by uploaded_at desc, public_id`
	args := []any{}
	if limit > 0 {
		query += ` limit ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error selecting uploads: %w", err)
	}
	defer rows.Close()

	var result []models.UploadRecord
	for rows.Next() {
		var rec models.UploadRecord
		err := rows.Scan(&rec.ID, &rec.FileName, &rec.URL, &rec.SecureURL,
			&rec.Width, &rec.Height, &rec.Format, &rec.Bytes, &rec.UploadedAt, &rec.Deleted)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) MarkDeleted(ctx context.Context, publicID string) error {
	query := `update uploads set deleted=1 where public_id=?`
	result, err := r.db.ExecContext(ctx, query, publicID)
	if err != nil {
		return fmt.Errorf("failed to mark upload deleted: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected != 1 {
		return common.ErrorNotFound
	}
	return nil
}
