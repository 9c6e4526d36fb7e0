package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/service"
)

type UploadHandler struct {
	uploads  *service.UploadService
	maxBytes int64
	logger   *slog.Logger
}

func NewUploadHandler(uploads *service.UploadService, maxBytes int64, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, maxBytes: maxBytes, logger: logger}
}

// HandleIssueTicket returns a single-use upload URL.
//
// HTTP: POST /api/uploads
func (h *UploadHandler) HandleIssueTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.uploads.IssueUploadTicket(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// HandleUpload stores the raw request body as an image. The token in the
// path is the only credential.
//
// HTTP: POST /api/uploads/{token}
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// One byte over the limit is enough for the service to reject the size.
	data, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes+1))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	ref, err := h.uploads.Upload(r.Context(), chi.URLParam(r, "token"), r.Header.Get("Content-Type"), data)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"imageRef": ref})
}

// HandleImage serves stored image bytes. Refs are immutable, so responses
// can be cached indefinitely.
//
// HTTP: GET /api/images/{ref}
func (h *UploadHandler) HandleImage(w http.ResponseWriter, r *http.Request) {
	blob, err := h.uploads.Image(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	w.Write(blob.Data)
}

// HTTP: GET /api/images/{ref}/url
func (h *UploadHandler) HandleImageURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.uploads.ImageURL(chi.URLParam(r, "ref"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}
