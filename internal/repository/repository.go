// Package repository declares the record-store contracts the services depend
// on. Implementations live in subpackages (sqlite).
package repository

import (
	"context"

	"github.com/hypeshelf/hypeshelf/internal/model"
)

type ListOptions struct {
	Limit int
	// Genre restricts results to one genre when non-empty.
	Genre model.Genre
}

// RecommendationPatch carries the content fields an update may change.
// AuthorID, AuthorName and IsStaffPick cannot be patched.
type RecommendationPatch struct {
	Title    string
	Genre    model.Genre
	Link     string
	Blurb    string
	ImageRef string
}

// RecommendationRepository lists in descending creation order.
type RecommendationRepository interface {
	Create(ctx context.Context, rec *model.Recommendation) error
	GetByID(ctx context.Context, id string) (*model.Recommendation, error)
	List(ctx context.Context, opts ListOptions) ([]model.Recommendation, error)
	Patch(ctx context.Context, id string, patch RecommendationPatch) error
	SetStaffPick(ctx context.Context, id string, isStaffPick bool) error
	Delete(ctx context.Context, id string) error
	DistinctGenres(ctx context.Context) ([]model.Genre, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	// GetUserByExternalID returns apperror.ErrNotFound when no record exists.
	GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	SetRole(ctx context.Context, id string, role model.Role) error
	// DeleteUsersWithoutExternalID returns the number of records removed.
	DeleteUsersWithoutExternalID(ctx context.Context) (int64, error)
	// AssignRoleWhereMissing returns the number of records updated.
	AssignRoleWhereMissing(ctx context.Context, role model.Role) (int64, error)
}

type BlobRepository interface {
	PutBlob(ctx context.Context, blob *model.Blob) error
	GetBlob(ctx context.Context, ref string) (*model.Blob, error)
}

// Transactor runs fn as one atomic unit. Repository calls made with the ctx
// passed to fn join the transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
