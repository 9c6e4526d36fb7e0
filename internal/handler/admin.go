package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/service"
)

// AdminHandler serves user administration and maintenance. Every route
// requires the admin role; the service enforces it.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// HTTP: GET /api/admin/users
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HTTP: PUT /api/admin/users/{id}/role  {"role": "admin"}
func (h *AdminHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	change, err := h.admin.ChangeRole(r.Context(), identity.FromContext(r.Context()), chi.URLParam(r, "id"), req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// HTTP: POST /api/admin/maintenance/cleanup-users
func (h *AdminHandler) HandleCleanupUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.admin.CleanupOrphanUsers(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// HTTP: POST /api/admin/maintenance/migrate-users
func (h *AdminHandler) HandleMigrateUsers(w http.ResponseWriter, r *http.Request) {
	n, err := h.admin.MigrateLegacyUsers(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}
