// Package identity maps an externally authenticated caller onto an internal
// user record and its role.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
	"github.com/hypeshelf/hypeshelf/internal/sanitize"
)

// Caller is the per-operation identity supplied by the identity provider.
// The zero value is an anonymous caller.
type Caller struct {
	// Subject is the provider's opaque identifier, e.g. "github:1234".
	Subject string
	// Name is the provider's display name and may be empty.
	Name string
}

// Anonymous is the caller of an unauthenticated request.
var Anonymous = Caller{}

func (c Caller) Authenticated() bool {
	return c.Subject != ""
}

// RoleInfo is a resolved caller's effective role and internal user id.
type RoleInfo struct {
	Role   model.Role `json:"role"`
	UserID string     `json:"userId"`
}

// Resolver looks up and bootstraps user records for callers.
type Resolver struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewResolver(users repository.UserRepository, logger *slog.Logger) *Resolver {
	return &Resolver{users: users, logger: logger}
}

// ResolveRole is the read-only lookup. It returns nil for an anonymous caller
// or one without a record, and never writes. A legacy record without a role
// reports DefaultRole.
func (r *Resolver) ResolveRole(ctx context.Context, caller Caller) (*RoleInfo, error) {
	if !caller.Authenticated() {
		return nil, nil
	}

	user, err := r.users.GetUserByExternalID(ctx, caller.Subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("identity: resolving role for %s: %w", caller.Subject, err)
	}

	return &RoleInfo{Role: user.EffectiveRole(), UserID: user.ID}, nil
}

// ResolveOrCreateRole returns the caller's role, creating a record with
// DefaultRole on first contact and assigning DefaultRole to a legacy record
// that has none. It never creates a record with any other role.
func (r *Resolver) ResolveOrCreateRole(ctx context.Context, caller Caller) (RoleInfo, error) {
	if !caller.Authenticated() {
		return RoleInfo{}, apperror.Unauthenticated()
	}

	user, err := r.users.GetUserByExternalID(ctx, caller.Subject)
	switch {
	case err == nil:
		return r.healRole(ctx, user)
	case !errors.Is(err, apperror.ErrNotFound):
		return RoleInfo{}, fmt.Errorf("identity: looking up %s: %w", caller.Subject, err)
	}

	user = &model.User{
		ExternalID:  caller.Subject,
		Role:        model.DefaultRole,
		DisplayName: displayName(caller.Name),
	}
	if err := r.users.CreateUser(ctx, user); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return RoleInfo{}, fmt.Errorf("identity: creating user for %s: %w", caller.Subject, err)
		}
		// Another request created the record first.
		existing, getErr := r.users.GetUserByExternalID(ctx, caller.Subject)
		if getErr != nil {
			return RoleInfo{}, fmt.Errorf("identity: re-reading user for %s: %w", caller.Subject, getErr)
		}
		return r.healRole(ctx, existing)
	}

	r.logger.Info("user record created",
		slog.String("userID", user.ID),
		slog.String("externalID", user.ExternalID),
		slog.String("role", string(user.Role)),
	)

	return RoleInfo{Role: user.Role, UserID: user.ID}, nil
}

func (r *Resolver) healRole(ctx context.Context, user *model.User) (RoleInfo, error) {
	if user.Role.Valid() {
		return RoleInfo{Role: user.Role, UserID: user.ID}, nil
	}

	if err := r.users.SetRole(ctx, user.ID, model.DefaultRole); err != nil {
		return RoleInfo{}, fmt.Errorf("identity: assigning default role to %s: %w", user.ID, err)
	}

	r.logger.Info("legacy user assigned default role",
		slog.String("userID", user.ID),
		slog.String("role", string(model.DefaultRole)),
	)

	return RoleInfo{Role: model.DefaultRole, UserID: user.ID}, nil
}

// displayName returns the sanitized provider name, or "" when it does not
// survive sanitization.
func displayName(name string) string {
	clean, err := sanitize.DisplayName(name)
	if err != nil {
		return ""
	}
	return clean
}
