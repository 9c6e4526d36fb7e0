package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/hypeshelf/hypeshelf/internal/auth"
	"github.com/hypeshelf/hypeshelf/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler runs the GitHub sign-in flow and manages the session cookie.
type AuthHandler struct {
	github   *auth.GitHubProvider
	sessions *service.SessionService
	// afterLogin is where the browser lands once signed in.
	afterLogin   string
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	github *auth.GitHubProvider,
	sessions *service.SessionService,
	afterLogin string,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	if afterLogin == "" {
		afterLogin = "/"
	}
	return &AuthHandler{
		github:       github,
		sessions:     sessions,
		afterLogin:   afterLogin,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleGitHubLogin redirects to GitHub with a random state value that is
// also stored in a short-lived cookie for the callback to compare.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if !h.available() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "unavailable",
			Message: "GitHub sign-in is not configured",
		})
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback checks the state, exchanges the code for the GitHub
// account and sets the session cookie. No user record is written here.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if !h.available() {
		http.Error(w, "GitHub sign-in is not configured", http.StatusServiceUnavailable)
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.afterLogin+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	session, err := h.sessions.LoginGitHub(ghUser)
	if err != nil {
		h.logger.Error("auth callback: issuing session failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    session.Token,
		Path:     "/",
		MaxAge:   int(h.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.afterLogin, http.StatusSeeOther)
}

// HandleLogout deletes the session cookie. The token itself stays valid
// until it expires.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) available() bool {
	return h.github != nil && h.github.Configured() && h.sessions != nil
}
