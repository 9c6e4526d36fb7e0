package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
	"github.com/hypeshelf/hypeshelf/internal/identity"
	"github.com/hypeshelf/hypeshelf/internal/metrics"
	"github.com/hypeshelf/hypeshelf/internal/model"
	"github.com/hypeshelf/hypeshelf/internal/repository"
	"github.com/hypeshelf/hypeshelf/internal/sanitize"
	"github.com/hypeshelf/hypeshelf/internal/upload"
)

// AllowedImageTypes are the content types an upload may declare.
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type UploadConfig struct {
	// BaseURL is the public origin upload and image URLs are built on.
	BaseURL   string
	TicketTTL time.Duration
	MaxBytes  int64
}

// UploadService runs the two-step image upload: a caller obtains a
// single-use upload URL, then sends the bytes to it and gets back a blob
// reference to put on a recommendation.
type UploadService struct {
	gw      Gateway
	blobs   repository.BlobRepository
	tickets upload.TicketStore
	cfg     UploadConfig
	logger  *slog.Logger
}

func NewUploadService(
	gw Gateway,
	blobs repository.BlobRepository,
	tickets upload.TicketStore,
	cfg UploadConfig,
	logger *slog.Logger,
) *UploadService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &UploadService{
		gw:      gw,
		blobs:   blobs,
		tickets: tickets,
		cfg:     cfg,
		logger:  logger,
	}
}

// UploadTicket is handed to the client for the second step.
type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IssueUploadTicket ensures the caller has a user record and returns a
// single-use upload URL valid for TicketTTL.
func (s *UploadService) IssueUploadTicket(ctx context.Context, caller identity.Caller) (*UploadTicket, error) {
	if !caller.Authenticated() {
		return nil, apperror.Unauthenticated()
	}

	err := s.gw.Tx.WithinTx(ctx, func(ctx context.Context) error {
		_, err := s.gw.Resolver.ResolveOrCreateRole(ctx, caller)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service/upload: resolving caller: %w", err)
	}

	t, err := s.tickets.Issue(ctx, caller.Subject, s.cfg.TicketTTL)
	if err != nil {
		return nil, fmt.Errorf("service/upload: issuing ticket: %w", err)
	}

	return &UploadTicket{
		UploadURL: s.cfg.BaseURL + "/api/uploads/" + url.PathEscape(t.Token),
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// Upload redeems token and stores data. The ticket is consumed before the
// payload is checked, so a rejected upload needs a new ticket.
func (s *UploadService) Upload(ctx context.Context, token, contentType string, data []byte) (string, error) {
	subject, err := s.tickets.Consume(ctx, token)
	if err != nil {
		return "", fmt.Errorf("service/upload: redeeming ticket: %w", err)
	}

	contentType = normalizeContentType(contentType)
	if !AllowedImageTypes[contentType] {
		return "", apperror.ValidationFailed("contentType",
			"Image must be one of: image/jpeg, image/jpg, image/png, image/webp, image/gif")
	}
	if len(data) == 0 {
		return "", apperror.ValidationFailed("file", "Image is empty")
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return "", apperror.ValidationFailed("file",
			fmt.Sprintf("Image must be at most %d bytes", s.cfg.MaxBytes))
	}

	blob := &model.Blob{ContentType: contentType, Data: data}
	if err := s.blobs.PutBlob(ctx, blob); err != nil {
		return "", fmt.Errorf("service/upload: storing blob: %w", err)
	}

	metrics.UploadBytes.Observe(float64(len(data)))
	s.logger.Info("image uploaded",
		slog.String("ref", blob.Ref),
		slog.String("contentType", contentType),
		slog.Int("bytes", len(data)),
		slog.String("subject", subject),
	)
	return blob.Ref, nil
}

// ImageURL returns the public URL for ref, or "" for an empty ref.
func (s *UploadService) ImageURL(ref string) (string, error) {
	clean, err := sanitize.ImageRef(ref)
	if err != nil || clean == "" {
		return "", err
	}
	return s.cfg.BaseURL + "/api/images/" + clean, nil
}

// Image returns the stored blob for ref.
func (s *UploadService) Image(ctx context.Context, ref string) (*model.Blob, error) {
	clean, err := sanitize.ImageRef(ref)
	if err != nil {
		return nil, err
	}
	if clean == "" {
		return nil, apperror.NotFound("image", ref)
	}

	blob, err := s.blobs.GetBlob(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("service/upload: loading image %s: %w", clean, err)
	}
	return blob, nil
}

// normalizeContentType drops parameters such as "; charset=..." and
// lowercases the media type.
func normalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
