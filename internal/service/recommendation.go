package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
	"github.com/hypeshelf/hypeshelf/internal/sanitize"
)

// Public listing bounds.
const (
	DefaultPublicCount = 5
	MinPublicCount     = 1
	MaxPublicCount     = 100
)

// AnonymousAuthor is stored as AuthorName when the caller has no usable
// display name.
const AnonymousAuthor = "Anonymous"

type RecommendationService struct {
	gw     Gateway
	recs   repository.RecommendationRepository
	logger *slog.Logger
}

func NewRecommendationService(gw Gateway, recs repository.RecommendationRepository, logger *slog.Logger) *RecommendationService {
	return &RecommendationService{
		gw:     gw,
		recs:   recs,
		logger: logger,
	}
}

// ListAllResult is what an authenticated listing returns: the records with
// AuthorID, plus who is asking so the client can decide what to offer.
type ListAllResult struct {
	Recommendations []model.Recommendation `json:"recommendations"`
	CurrentUserID   string                 `json:"currentUserId"`
	Role            model.Role             `json:"userRole"`
}

// ListPublic returns up to count of the newest recommendations, with count
// clamped to [MinPublicCount, MaxPublicCount]. No authentication needed.
func (s *RecommendationService) ListPublic(ctx context.Context, count int) ([]model.PublicRecommendation, error) {
	count = max(MinPublicCount, min(count, MaxPublicCount))

	var out []model.PublicRecommendation
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		recs, err := s.recs.List(ctx, repository.ListOptions{Limit: count})
		if err != nil {
			return err
		}
		out = make([]model.PublicRecommendation, len(recs))
		for i := range recs {
			out[i] = recs[i].Public()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: listing public: %w", err)
	}
	return out, nil
}

// ListAll returns every recommendation, optionally filtered by genre. An
// empty filter or GenreFilterAll means no filter; an unknown genre yields an
// empty list instead of an error.
func (s *RecommendationService) ListAll(ctx context.Context, caller identity.Caller, genreFilter string) (*ListAllResult, error) {
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	result := &ListAllResult{
		Recommendations: []model.Recommendation{},
		CurrentUserID:   caller.Subject,
		Role:            model.DefaultRole,
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		info, err := s.gw.Resolver.ResolveRole(ctx, caller)
		if err != nil {
			return err
		}
		if info != nil {
			result.Role = info.Role
		}

		opts := repository.ListOptions{}
		if genreFilter != "" && genreFilter != model.GenreFilterAll {
			genre, err := sanitize.Genre(genreFilter, model.Genres)
			if err != nil {
				return nil
			}
			opts.Genre = genre
		}

		recs, err := s.recs.List(ctx, opts)
		if err != nil {
			return err
		}
		result.Recommendations = recs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: listing all: %w", err)
	}
	return result, nil
}

// Genres returns the sorted distinct genres currently in use.
func (s *RecommendationService) Genres(ctx context.Context) ([]model.Genre, error) {
	var genres []model.Genre
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		genres, err = s.recs.DistinctGenres(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: listing genres: %w", err)
	}
	return genres, nil
}

// Create validates fields and stores a new recommendation owned by caller,
// creating the caller's user record on first contact.
func (s *RecommendationService) Create(ctx context.Context, caller identity.Caller, fields model.RecommendationFields) (*model.Recommendation, error) {
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	var rec *model.Recommendation
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller); err != nil {
			return err
		}

		clean, genre, err := sanitize.Recommendation(fields)
		if err != nil {
			return err
		}

		rec = &model.Recommendation{
			Title:       clean.Title,
			Genre:       genre,
			Link:        clean.Link,
			Blurb:       clean.Blurb,
			AuthorID:    caller.Subject,
			AuthorName:  authorName(caller.Name),
			IsStaffPick: false,
			ImageRef:    clean.ImageRef,
		}
		return s.recs.Create(ctx, rec)
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: creating: %w", err)
	}

	s.logger.Info("recommendation created",
		slog.String("id", rec.ID),
		slog.String("authorID", rec.AuthorID),
		slog.String("genre", string(rec.Genre)),
	)
	return rec, nil
}

// Update re-validates fields and replaces the content of recommendation id.
// Authorship and the staff pick flag are never touched.
func (s *RecommendationService) Update(ctx context.Context, caller identity.Caller, id string, fields model.RecommendationFields) error {
	if !caller.Authenticated() {
		return apperror.Unauthenticated()
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.recs.GetByID(ctx, id)
		if err != nil {
			return err
		}

		info, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller)
		if err != nil {
			return err
		}
		if !s.gw.Policy.CanModify(rec, caller.Subject, info.Role) {
			s.logger.Warn("update denied",
				slog.String("id", id),
				slog.String("caller", caller.Subject),
				slog.String("role", string(info.Role)),
			)
			return apperror.Forbidden("not authorized to update this recommendation")
		}

		clean, genre, err := sanitize.Recommendation(fields)
		if err != nil {
			return err
		}

		return s.recs.Patch(ctx, id, repository.RecommendationPatch{
			Title:    clean.Title,
			Genre:    genre,
			Link:     clean.Link,
			Blurb:    clean.Blurb,
			ImageRef: clean.ImageRef,
		})
	})
	if err != nil {
		return fmt.Errorf("service/recommendation: updating %s: %w", id, err)
	}

	s.logger.Info("recommendation updated",
		slog.String("id", id),
		slog.String("caller", caller.Subject),
	)
	return nil
}

// Delete permanently removes recommendation id.
func (s *RecommendationService) Delete(ctx context.Context, caller identity.Caller, id string) error {
	if !caller.Authenticated() {
		return apperror.Unauthenticated()
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		rec, err := s.recs.GetByID(ctx, id)
		if err != nil {
			return err
		}

		info, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller)
		if err != nil {
			return err
		}
		if !s.gw.Policy.CanModify(rec, caller.Subject, info.Role) {
			s.logger.Warn("delete denied",
				slog.String("id", id),
				slog.String("caller", caller.Subject),
				slog.String("role", string(info.Role)),
			)
			return apperror.Forbidden("not authorized to delete this recommendation")
		}

		return s.recs.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("service/recommendation: deleting %s: %w", id, err)
	}

	s.logger.Info("recommendation deleted",
		slog.String("id", id),
		slog.String("caller", caller.Subject),
	)
	return nil
}

// ToggleStaffPick sets the staff pick flag on id. Admin only; the role check
// runs before the existence check.
func (s *RecommendationService) ToggleStaffPick(ctx context.Context, caller identity.Caller, id string, isStaffPick bool) error {
	if !caller.Authenticated() {
		return apperror.Unauthenticated()
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		info, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller)
		if err != nil {
			return err
		}
		if !s.gw.Policy.CanFeature(info.Role) {
			s.logger.Warn("staff pick denied",
				slog.String("id", id),
				slog.String("caller", caller.Subject),
			)
			return apperror.Forbidden("only admins can mark recommendations as staff pick")
		}

		if _, err := s.recs.GetByID(ctx, id); err != nil {
			return err
		}
		return s.recs.SetStaffPick(ctx, id, isStaffPick)
	})
	if err != nil {
		return fmt.Errorf("service/recommendation: toggling staff pick on %s: %w", id, err)
	}

	s.logger.Info("staff pick changed",
		slog.String("id", id),
		slog.Bool("isStaffPick", isStaffPick),
	)
	return nil
}

// WhoAmI reports the caller's role without creating a record. It returns nil
// for anonymous callers and callers who have never written anything.
func (s *RecommendationService) WhoAmI(ctx context.Context, caller identity.Caller) (*identity.RoleInfo, error) {
	var info *identity.RoleInfo
	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		info, err = s.gw.Resolver.ResolveRole(ctx, caller)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/recommendation: resolving caller role: %w", err)
	}
	return info, nil
}

func authorName(name string) string {
	clean, err := sanitize.DisplayName(name)
	if err != nil {
		return AnonymousAuthor
	}
	return clean
}
