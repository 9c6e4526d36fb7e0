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

var _ repository.RecommendationRepository = (*DB)(nil)

const recommendationColumns = `id, title, genre, link, blurb, author_id, author_name,
	is_staff_pick, image_ref, created_at`

// Create assigns rec.ID and rec.CreatedAt and inserts the row.
func (db *DB) Create(ctx context.Context, rec *model.Recommendation) error {
	rec.ID = xid.New().String()
	rec.CreatedAt = time.Now().UTC()

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO recommendations (`+recommendationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Title,
		string(rec.Genre),
		rec.Link,
		rec.Blurb,
		rec.AuthorID,
		rec.AuthorName,
		rec.IsStaffPick,
		nullString(rec.ImageRef),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating recommendation: %w", err)
	}

	return nil
}

func (db *DB) GetByID(ctx context.Context, id string) (*model.Recommendation, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE id = ?`,
		id,
	)

	rec, err := scanRecommendation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("recommendation", id)
		}
		return nil, fmt.Errorf("sqlite: getting recommendation %s: %w", id, err)
	}

	return rec, nil
}

// List returns recommendations newest first. A non-positive Limit means no
// limit.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Recommendation, error) {
	query := `SELECT ` + recommendationColumns + ` FROM recommendations`
	var args []any

	if opts.Genre != "" {
		query += ` WHERE genre = ?`
		args = append(args, string(opts.Genre))
	}
	query += ` ORDER BY rowid DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing recommendations: %w", err)
	}
	defer rows.Close()

	recs := make([]model.Recommendation, 0)
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning recommendation row: %w", err)
		}
		recs = append(recs, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating recommendations: %w", err)
	}

	return recs, nil
}

// Patch overwrites the content fields only.
func (db *DB) Patch(ctx context.Context, id string, patch repository.RecommendationPatch) error {
	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE recommendations
		 SET title = ?, genre = ?, link = ?, blurb = ?, image_ref = ?
		 WHERE id = ?`,
		patch.Title,
		string(patch.Genre),
		patch.Link,
		patch.Blurb,
		nullString(patch.ImageRef),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating recommendation %s: %w", id, err)
	}

	return requireAffected(result, "recommendation", id)
}

func (db *DB) SetStaffPick(ctx context.Context, id string, isStaffPick bool) error {
	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE recommendations SET is_staff_pick = ? WHERE id = ?`,
		isStaffPick, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting staff pick on %s: %w", id, err)
	}

	return requireAffected(result, "recommendation", id)
}

func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM recommendations WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting recommendation %s: %w", id, err)
	}

	return requireAffected(result, "recommendation", id)
}

// DistinctGenres returns the genres in use, sorted.
func (db *DB) DistinctGenres(ctx context.Context) ([]model.Genre, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT DISTINCT genre FROM recommendations ORDER BY genre`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing genres: %w", err)
	}
	defer rows.Close()

	genres := make([]model.Genre, 0)
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("sqlite: scanning genre: %w", err)
		}
		genres = append(genres, model.Genre(g))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating genres: %w", err)
	}

	return genres, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row rowScanner) (*model.Recommendation, error) {
	var rec model.Recommendation
	var genre string
	var imageRef sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.Title,
		&genre,
		&rec.Link,
		&rec.Blurb,
		&rec.AuthorID,
		&rec.AuthorName,
		&rec.IsStaffPick,
		&imageRef,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Genre = model.Genre(genre)
	rec.ImageRef = imageRef.String
	return &rec, nil
}

func requireAffected(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
