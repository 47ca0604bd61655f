package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"
	"github.com/sakif/forklens/internal/auth"
	"github.com/sakif/forklens/internal/service"
)

// AuthHandler manages the GitHub OAuth login flow and session management.
//
//	HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//	HandleGitHubCallback → receive the code, exchange it, issue the session cookie
//	HandleLogout         → clear the session cookie
//	HandleMe             → current user's profile plus quota usage
type AuthHandler struct {
	github     *auth.GitHubProvider
	authSvc    *service.AuthService
	quotaLimit int
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. quotaLimit is surfaced in /api/me so
// the dashboard can draw the usage bar without a second endpoint.
func NewAuthHandler(github *auth.GitHubProvider, authSvc *service.AuthService, quotaLimit int, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		github:     github,
		authSvc:    authSvc,
		quotaLimit: quotaLimit,
		logger:     logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// A random state value goes into a short-lived HttpOnly cookie; the callback
// verifies it, which is the CSRF protection for the OAuth flow.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
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

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "GitHub login failed", http.StatusBadGateway)
		return
	}

	result, err := h.authSvc.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(auth.SessionLifetime.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// meResponse is the /api/me payload: profile plus quota usage for the
// dashboard's "current/limit" bar.
type meResponse struct {
	ID            string `json:"id"`
	Login         string `json:"login"`
	Email         string `json:"email"`
	AvatarURL     string `json:"avatarUrl"`
	DailySearches int    `json:"dailySearches"`
	SearchLimit   int    `json:"searchLimit"`
}

// HandleMe returns the currently logged-in user.
//
// HTTP: GET /api/me (auth required)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.authSvc.GetUserByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{
		ID:            user.ID,
		Login:         user.Login,
		Email:         user.Email,
		AvatarURL:     user.AvatarURL,
		DailySearches: user.DailySearches,
		SearchLimit:   h.quotaLimit,
	})
}
