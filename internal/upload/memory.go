package upload

import (
	"context"
	"sync"
	"time"

	"github.com/hypeshelf/hypeshelf/internal/apperror"
)

var _ TicketStore = (*MemoryStore)(nil)

// MemoryStore is the in-process TicketStore used when Redis is not
// configured. Tickets do not survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	tickets map[string]Ticket
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets: make(map[string]Ticket),
		now:     time.Now,
	}
}

func (s *MemoryStore) Issue(_ context.Context, subject string, ttl time.Duration) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictExpired()

	t := Ticket{
		Token:     newToken(),
		Subject:   subject,
		ExpiresAt: s.now().Add(ttl),
	}
	s.tickets[t.Token] = t
	return t, nil
}

func (s *MemoryStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[token]
	if !ok {
		return "", apperror.NotFound("upload ticket", token)
	}
	delete(s.tickets, token)

	if !s.now().Before(t.ExpiresAt) {
		return "", apperror.NotFound("upload ticket", token)
	}
	return t.Subject, nil
}

// evictExpired must be called with mu held.
func (s *MemoryStore) evictExpired() {
	now := s.now()
	for token, t := range s.tickets {
		if !now.Before(t.ExpiresAt) {
			delete(s.tickets, token)
		}
	}
}
