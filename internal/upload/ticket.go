// Package upload issues and redeems single-use, time-limited upload tickets
// for the two-step image upload flow.
package upload

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ticket authorizes exactly one upload by Subject until ExpiresAt.
type Ticket struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// TicketStore persists tickets. Consume must be atomic: at most one caller
// gets the subject for a token, and expired or unknown tokens return an
// apperror.ErrNotFound.
type TicketStore interface {
	Issue(ctx context.Context, subject string, ttl time.Duration) (Ticket, error)
	Consume(ctx context.Context, token string) (string, error)
}

func newToken() string {
	return uuid.NewString()
}
