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

var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts user, assigning ID and CreatedAt. Empty ExternalID,
// Role and DisplayName are stored as NULL. A second record for the same
// external identity is an apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()

	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO users (id, external_id, role, display_name, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID,
		nullString(user.ExternalID),
		nullString(string(user.Role)),
		nullString(user.DisplayName),
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.ExternalID)
		}
		return fmt.Errorf("sqlite: inserting user (externalID=%s): %w", user.ExternalID, err)
	}

	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT id, external_id, role, display_name, created_at FROM users WHERE id = ?`,
		id,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return u, nil
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	row := db.q(ctx).QueryRowContext(ctx,
		`SELECT id, external_id, role, display_name, created_at FROM users WHERE external_id = ?`,
		externalID,
	)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", externalID)
		}
		return nil, fmt.Errorf("sqlite: getting user by external id %s: %w", externalID, err)
	}

	return u, nil
}

// ListUsers returns every user record, oldest first. Role is returned as
// stored (possibly empty).
func (db *DB) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT id, external_id, role, display_name, created_at FROM users ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}

	return users, nil
}

func (db *DB) SetRole(ctx context.Context, id string, role model.Role) error {
	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ?`,
		string(role), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting role on user %s: %w", id, err)
	}

	return requireAffected(result, "user", id)
}

func (db *DB) DeleteUsersWithoutExternalID(ctx context.Context) (int64, error) {
	result, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM users WHERE external_id IS NULL OR external_id = ''`,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting orphan users: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func (db *DB) AssignRoleWhereMissing(ctx context.Context, role model.Role) (int64, error) {
	result, err := db.q(ctx).ExecContext(ctx,
		`UPDATE users SET role = ? WHERE role IS NULL OR role = ''`,
		string(role),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: assigning missing roles: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return n, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var externalID, role, displayName sql.NullString

	if err := row.Scan(&u.ID, &externalID, &role, &displayName, &u.CreatedAt); err != nil {
		return nil, err
	}

	u.ExternalID = externalID.String
	u.Role = model.Role(role.String)
	u.DisplayName = displayName.String
	return &u, nil
}
