package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
)

var _ repository.BlobRepository = (*DB)(nil)

// PutBlob stores blob.Data and assigns blob.Ref.
func (db *DB) PutBlob(ctx context.Context, blob *model.Blob) error {
	blob.Ref = xid.New().String()
	blob.CreatedAt = time.Now().UTC()

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO blobs (ref, content_type, data, created_at) VALUES (?, ?, ?, ?)`,
		blob.Ref, blob.ContentType, blob.Data, blob.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: storing blob: %w", err)
	}
	return nil
}

func (db *DB) GetBlob(ctx context.Context, ref string) (*model.Blob, error) {
	var b model.Blob
	err := db.q(ctx).QueryRowContext(ctx,
		`SELECT ref, content_type, data, created_at FROM blobs WHERE ref = ?`,
		ref,
	).Scan(&b.Ref, &b.ContentType, &b.Data, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("image", ref)
		}
		return nil, fmt.Errorf("sqlite: getting blob %s: %w", ref, err)
	}
	return &b, nil
}
