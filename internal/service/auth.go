package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hypeshelf/hypeshelf/internal/auth"
	"github.com/hypeshelf/hypeshelf/internal/identity"
)

// SessionService turns a completed GitHub sign-in into a session token.
//
// Signing in writes nothing to the store. A user record is created the first
// time the caller does something that needs one.
type SessionService struct {
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewSessionService(tokens *auth.TokenService, logger *slog.Logger) *SessionService {
	return &SessionService{tokens: tokens, logger: logger}
}

// Session is the identity and token issued at sign-in.
type Session struct {
	Caller identity.Caller
	Token  string
}

// LoginGitHub issues a session for the GitHub account ghUser.
func (s *SessionService) LoginGitHub(ghUser *auth.GitHubUser) (*Session, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	caller := ghUser.Caller()
	token, err := s.tokens.Generate(caller)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", caller.Subject, err)
	}

	s.logger.Info("user signed in via GitHub",
		slog.String("subject", caller.Subject),
		slog.String("login", ghUser.Login),
	)

	return &Session{Caller: caller, Token: token}, nil
}

// TTL is how long an issued session stays valid.
func (s *SessionService) TTL() time.Duration {
	return s.tokens.TTL()
}

// Authenticate validates a session token.
func (s *SessionService) Authenticate(token string) (identity.Caller, error) {
	caller, err := s.tokens.Validate(token)
	if err != nil {
		return identity.Caller{}, fmt.Errorf("service/auth: %w", err)
	}
	return caller, nil
}
