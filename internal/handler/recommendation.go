package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/service"
)

type RecommendationHandler struct {
	recs   *service.RecommendationService
	logger *slog.Logger
}

func NewRecommendationHandler(recs *service.RecommendationService, logger *slog.Logger) *RecommendationHandler {
	return &RecommendationHandler{recs: recs, logger: logger}
}

// HandlePublic lists the newest recommendations without author identities.
//
// HTTP: GET /api/recommendations/public?count=N
func (h *RecommendationHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	count := service.DefaultPublicCount
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, h.logger, apperror.ValidationFailed("count", "Count must be a whole number"))
			return
		}
		count = n
	}

	recs, err := h.recs.ListPublic(r.Context(), count)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

// HandleList lists every recommendation for a signed-in caller.
//
// HTTP: GET /api/recommendations?genre=G
func (h *RecommendationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.recs.ListAll(r.Context(), identity.FromContext(r.Context()), r.URL.Query().Get("genre"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HTTP: GET /api/genres
func (h *RecommendationHandler) HandleGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.recs.Genres(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, genres)
}

// HTTP: POST /api/recommendations
func (h *RecommendationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	rec, err := h.recs.Create(r.Context(), identity.FromContext(r.Context()), req.fields())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// HTTP: PUT /api/recommendations/{id}
func (h *RecommendationHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req recommendationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.recs.Update(r.Context(), identity.FromContext(r.Context()), id, req.fields()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: DELETE /api/recommendations/{id}
func (h *RecommendationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.recs.Delete(r.Context(), identity.FromContext(r.Context()), id); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: PUT /api/recommendations/{id}/staff-pick  {"isStaffPick": true}
func (h *RecommendationHandler) HandleStaffPick(w http.ResponseWriter, r *http.Request) {
	var req staffPickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.recs.ToggleStaffPick(r.Context(), identity.FromContext(r.Context()), id, *req.IsStaffPick); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWhoAmI answers {"role": ..., "userId": ...} or null for a caller
// without a user record.
//
// HTTP: GET /api/me/role
func (h *RecommendationHandler) HandleWhoAmI(w http.ResponseWriter, r *http.Request) {
	info, err := h.recs.WhoAmI(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (req recommendationRequest) fields() model.RecommendationFields {
	return model.RecommendationFields{
		Title:    req.Title,
		Genre:    req.Genre,
		Link:     req.Link,
		Blurb:    req.Blurb,
		ImageRef: req.ImageRef,
	}
}
