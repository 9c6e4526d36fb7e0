package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
)

// AdminService manages user records and roles. Every operation requires a
// caller the policy allows to administer.
type AdminService struct {
	gw     Gateway
	users  repository.UserRepository
	logger *slog.Logger
}

func NewAdminService(gw Gateway, users repository.UserRepository, logger *slog.Logger) *AdminService {
	return &AdminService{
		gw:     gw,
		users:  users,
		logger: logger,
	}
}

// RoleChange confirms a successful ChangeRole.
type RoleChange struct {
	UserID string     `json:"userId"`
	Role   model.Role `json:"newRole"`
}

// ListUsers returns every user record with legacy empty roles reported as
// DefaultRole. It uses the read-only resolver, so listing never creates the
// caller's record.
func (s *AdminService) ListUsers(ctx context.Context, caller identity.Caller) ([]model.User, error) {
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	var users []model.User
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		info, err := s.gw.Resolver.ResolveRole(ctx, caller)
		if err != nil {
			return err
		}
		if info == nil || !s.gw.Policy.CanAdminister(info.Role) {
			return s.denied(caller, "list users", "only admins can view all users")
		}

		users, err = s.users.ListUsers(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/admin: listing users: %w", err)
	}

	for i := range users {
		users[i].Role = users[i].EffectiveRole()
	}
	return users, nil
}

// ChangeRole sets the role of the user with internal id targetUserID. An
// admin may not demote their own record.
func (s *AdminService) ChangeRole(ctx context.Context, caller identity.Caller, targetUserID, newRole string) (*RoleChange, error) {
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	role, ok := model.ParseRole(newRole)
	if !ok {
		return nil, apperror.ValidationFailed("role", `Role must be one of: admin, user`)
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireAdmin(ctx, caller, "change role"); err != nil {
			return err
		}

		target, err := s.users.GetUserByID(ctx, targetUserID)
		if err != nil {
			return err
		}
		if target.ExternalID == caller.Subject && role != model.RoleAdmin {
			return apperror.SelfDemotion()
		}

		return s.users.SetRole(ctx, target.ID, role)
	})
	if err != nil {
		return nil, fmt.Errorf("service/admin: changing role of %s: %w", targetUserID, err)
	}

	s.logger.Info("role changed",
		slog.String("userID", targetUserID),
		slog.String("role", string(role)),
		slog.String("by", caller.Subject),
	)
	return &RoleChange{UserID: targetUserID, Role: role}, nil
}

// CleanupOrphanUsers deletes every user record without an external identity
// and returns how many were removed. Irreversible.
func (s *AdminService) CleanupOrphanUsers(ctx context.Context, caller identity.Caller) (int64, error) {
	if !caller.Authenticated() {
		return 0, apperror.Unauthenticated()
	}

	var deleted int64
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireAdmin(ctx, caller, "cleanup users"); err != nil {
			return err
		}
		var err error
		deleted, err = s.users.DeleteUsersWithoutExternalID(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("service/admin: cleaning up users: %w", err)
	}

	s.logger.Info("orphan users removed",
		slog.Int64("deleted", deleted),
		slog.String("by", caller.Subject),
	)
	return deleted, nil
}

// MigrateLegacyUsers assigns DefaultRole to every record without a role and
// returns how many were updated.
func (s *AdminService) MigrateLegacyUsers(ctx context.Context, caller identity.Caller) (int64, error) {
	if !caller.Authenticated() {
		return 0, apperror.Unauthenticated()
	}

	var updated int64
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requireAdmin(ctx, caller, "migrate users"); err != nil {
			return err
		}
		var err error
		updated, err = s.users.AssignRoleWhereMissing(ctx, model.DefaultRole)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("service/admin: migrating legacy users: %w", err)
	}

	s.logger.Info("legacy users migrated",
		slog.Int64("updated", updated),
		slog.String("by", caller.Subject),
	)
	return updated, nil
}

func (s *AdminService) requireAdmin(ctx context.Context, caller identity.Caller, action string) error {
	info, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller)
	if err != nil {
		return err
	}
	if !s.gw.Policy.CanAdminister(info.Role) {
		return s.denied(caller, action, "only admins can "+action)
	}
	return nil
}

func (s *AdminService) denied(caller identity.Caller, action, message string) error {
	s.logger.Warn("admin operation denied",
		slog.String("action", action),
		slog.String("caller", caller.Subject),
	)
	return apperror.Forbidden(message)
}
