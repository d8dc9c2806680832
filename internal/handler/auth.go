package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/auth"
	"github.com/sakif/planet-hub/internal/service"
)

const (
	stateCookie    = "oauth_state"
	googleProvider = "google"
)

// AuthHandler runs the sign-in flows and exposes the current session.
//
// HANDLER RESPONSIBILITIES:
//   - HandleMagicLink / HandleMagicLinkCallback → passwordless email sign-in
//   - HandleGoogleLogin / HandleGoogleCallback  → Google OAuth
//   - HandleLogout                              → clear the session cookie
//   - HandleSession / HandleMe                  → who is signed in
//
// The gateway does the work; this file only moves values between HTTP
// (cookies, redirects, query strings) and the gateway.
type AuthHandler struct {
	gateway      *auth.Gateway
	users        *service.UserService
	cookieSecure bool
	logger       *slog.Logger
}

func NewAuthHandler(gateway *auth.Gateway, users *service.UserService, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		gateway:      gateway,
		users:        users,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// setSessionCookie stores the JWT in an HttpOnly cookie.
//   - HttpOnly: page scripts cannot read it
//   - SameSite=Lax: sent on top-level navigation, not on cross-site POSTs
//   - Secure: only when the site is served over HTTPS (COOKIE_SECURE)
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.gateway.SessionTTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// failLogin sends the browser back to the login page with a reason.
func failLogin(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, "/login?error="+url.QueryEscape(reason), http.StatusSeeOther)
}

// =========================================================================
// MAGIC LINK
// =========================================================================

type magicLinkRequest struct {
	Email string `json:"email"`
}

// HandleMagicLink emails a sign-in link.
//
// HTTP: POST /auth/magic-link   {"email": "ada@example.com"}
//
// The response does not reveal whether the address already has an account.
func (h *AuthHandler) HandleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req magicLinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.gateway.SignInWithMagicLink(r.Context(), req.Email); err != nil {
		h.logger.Warn("magic link request failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "check your email for a sign-in link"})
}

// HandleMagicLinkCallback redeems the emailed link.
//
// HTTP: GET /auth/magic-link/callback?token=<id>.<secret>
func (h *AuthHandler) HandleMagicLinkCallback(w http.ResponseWriter, r *http.Request) {
	token, session, err := h.gateway.CompleteMagicLink(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		h.logger.Warn("magic link callback failed", slog.String("error", err.Error()))
		if errors.Is(err, apperror.ErrUnauthorized) {
			failLogin(w, r, "link_invalid")
			return
		}
		failLogin(w, r, "sign_in_failed")
		return
	}

	h.setSessionCookie(w, token)
	h.logger.Info("signed in with magic link", slog.String("userID", session.UserID))
	http.Redirect(w, r, "/myspace", http.StatusSeeOther)
}

// =========================================================================
// GOOGLE OAUTH
// =========================================================================

// HandleGoogleLogin redirects to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived cookie and into the consent URL.
// The callback only proceeds when both match, which proves this server
// started the flow.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	target, err := h.gateway.SignInWithOAuth(googleProvider, state)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. check state against the cookie, then drop the cookie (single use)
//  2. a denied consent goes back to /login
//  3. exchange the code through the gateway
//  4. set the session cookie and go to /myspace
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.Warn("oauth callback: state mismatch")
		failLogin(w, r, "invalid_state")
		return
	}
	h.clearCookie(w, stateCookie)

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("oauth callback: consent denied", slog.String("error", errParam))
		failLogin(w, r, "denied")
		return
	}

	token, session, err := h.gateway.CompleteOAuth(r.Context(), googleProvider, q.Get("code"))
	if err != nil {
		h.logger.Error("oauth callback failed", slog.String("error", err.Error()))
		failLogin(w, r, "sign_in_failed")
		return
	}

	h.setSessionCookie(w, token)
	h.logger.Info("signed in with google", slog.String("userID", session.UserID))
	http.Redirect(w, r, "/myspace", http.StatusSeeOther)
}

// =========================================================================
// SESSION
// =========================================================================

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless; the token stays valid until it expires, but the
// browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.gateway.CurrentSession(r); ok {
		h.gateway.SignOut(r.Context(), session)
	}
	h.clearCookie(w, auth.CookieName)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleSession reports whether the request carries a valid session.
//
// HTTP: GET /api/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.gateway.CurrentSession(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "session": session})
}

// HandleMe returns the signed-in user's stored profile, creating the row
// if the sign-in listener has not written it yet.
//
// HTTP: GET /api/me   (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	user, err := h.users.Get(r.Context(), session.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		user, err = h.users.EnsureUser(r.Context(), session)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
