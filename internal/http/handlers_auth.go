package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	"github.com/target/console-gate/internal/ports"
	"github.com/target/console-gate/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURL, clientIP string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*ports.Credentials, error)
	DirectLogin(ctx context.Context, input service.DirectLoginInput) (*ports.Credentials, error)
	StepUp(ctx context.Context, sessionID string, updates *domainauth.User) (*ports.Credentials, error)
	Logout(ctx context.Context, sess *domainauth.Session) error
	UnlockAccount(ctx context.Context, account, adminIdentity string) error
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc AuthServiceInterface

	// SessionCookieName names the HttpOnly cookie holding the signed token.
	SessionCookieName string
	// CookieDomain scopes all auth cookies.
	CookieDomain string
	// SessionCookieMaxAge matches the session absolute timeout.
	SessionCookieMaxAge time.Duration

	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Login handles the login initiation endpoint.
// GET /auth/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	redirectURI := safeRedirectPath(r.URL.Query().Get("redirect_uri"))

	result, err := h.Svc.BeginLogin(r.Context(), callbackURL(r), ClientIP(r))
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.setOAuthCookies(w, r, oauthCookieParams{State: result.State, Nonce: result.Nonce, RedirectURI: redirectURI})
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the OAuth callback endpoint.
// GET /auth/callback?code=<code>&state=<state>.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_params",
			Err:     errors.New("code and state parameters are required"),
		})
		return
	}

	// The state echo must match the value set when the flow began.
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value != state {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_state",
			Err:     errors.New("invalid or missing state parameter"),
		})
		return
	}
	nonceCookie, err := r.Cookie("oauth_nonce")
	if err != nil {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "missing_nonce",
			Err:     errors.New("missing nonce parameter"),
		})
		return
	}

	creds, err := h.Svc.CompleteLogin(r.Context(), service.CompleteLoginInput{
		Code:      code,
		State:     state,
		Nonce:     nonceCookie.Value,
		ClientIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.setCredentialCookies(w, r, *creds)
	h.clearCookie(w, r, "oauth_state")
	h.clearCookie(w, r, "oauth_nonce")

	redirectURI := h.getPostLoginRedirect(w, r)
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// directLoginRequest is the body for the direct login endpoint.
type directLoginRequest struct {
	Account string `json:"account"`
	Secret  string `json:"secret"`
}

// DirectLogin handles account/secret login, available only in dev mode.
// POST /auth/login/direct.
func (h *AuthHandlers) DirectLogin(w http.ResponseWriter, r *http.Request) {
	var req directLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	creds, err := h.Svc.DirectLogin(r.Context(), service.DirectLoginInput{
		Account:   req.Account,
		Secret:    req.Secret,
		ClientIP:  ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.setCredentialCookies(w, r, *creds)
	WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": creds.CSRFToken})
}

// Logout handles the logout endpoint. Runs behind RequireAuth and CSRF
// protection; the session comes from the request context.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())
	if err := h.Svc.Logout(r.Context(), session); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}

	h.clearCookie(w, r, h.SessionCookieName)

	redirectURI := safeRedirectPath(r.FormValue("redirect_uri"))
	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": redirectURI,
		})
		return
	}
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// stepUpRequest is the body for the step-up endpoint.
type stepUpRequest struct {
	Role string `json:"role,omitempty"`
}

// StepUp rotates the caller's session after a privilege change, returning
// fresh credentials. Runs behind RequireAuth and CSRF protection.
// POST /auth/step-up.
func (h *AuthHandlers) StepUp(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())

	var req stepUpRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	var updates *domainauth.User
	if req.Role != "" {
		updates = &domainauth.User{Role: domainauth.Role(req.Role)}
	}

	creds, err := h.Svc.StepUp(r.Context(), session.ID, updates)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	h.setCredentialCookies(w, r, *creds)
	WriteJSON(w, http.StatusOK, map[string]string{"csrf_token": creds.CSRFToken})
}

// Status returns the current authentication status. Runs behind
// OptionalAuth so unauthenticated callers get a clean "not signed in".
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	session, ok := GetUserSessionFromContext(r.Context())
	if !ok {
		WriteJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":         session.User.ID,
			"first_name": session.User.FirstName,
			"last_name":  session.User.LastName,
			"email":      session.User.Email,
			"role":       session.User.Role,
		},
		"issued_at": session.IssuedAt,
	})
}

// unlockRequest is the body for the admin unlock endpoint.
type unlockRequest struct {
	Account string `json:"account"`
}

// Unlock clears an account lockout. Admin only.
// POST /admin/unlock.
func (h *AuthHandlers) Unlock(w http.ResponseWriter, r *http.Request) {
	session := GetSessionFromContext(r.Context())

	var req unlockRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.Svc.UnlockAccount(r.Context(), req.Account, session.User.ID); err != nil {
		WriteAppError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// callbackURL builds the absolute redirect URL the IdP should send the
// browser back to.
func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || isForwardedHTTPS(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/callback"
}

// setCredentialCookies writes the session token cookie (HttpOnly) and the
// CSRF token cookie. The CSRF cookie stays readable by scripts so the client
// can echo it back in the request header.
func (h *AuthHandlers) setCredentialCookies(w http.ResponseWriter, r *http.Request, creds ports.Credentials) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	maxAge := int(h.SessionCookieMaxAge.Seconds())

	http.SetCookie(w, &http.Cookie{
		Name:     h.SessionCookieName,
		Value:    creds.Token,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})

	http.SetCookie(w, &http.Cookie{
		Name:     DefaultCSRFFormFieldName,
		Value:    creds.CSRFToken,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: false,
		Secure:   isSecure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// oauthCookieParams groups values needed to set OAuth cookies.
type oauthCookieParams struct {
	State       string
	Nonce       string
	RedirectURI string
}

// setOAuthCookies stores OAuth state, nonce, and the post-login redirect in secure cookies.
func (h *AuthHandlers) setOAuthCookies(w http.ResponseWriter, r *http.Request, p oauthCookieParams) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	const oauthCookieTTL = 600 // 10 minutes

	for name, value := range map[string]string{
		"oauth_state":         p.State,
		"oauth_nonce":         p.Nonce,
		"post_login_redirect": p.RedirectURI,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Domain:   h.CookieDomain,
			HttpOnly: true,
			Secure:   isSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   oauthCookieTTL,
		})
	}
}

// getPostLoginRedirect returns the post-login redirect URL and clears the cookie.
func (h *AuthHandlers) getPostLoginRedirect(w http.ResponseWriter, r *http.Request) string {
	redirectURI := "/"
	if redirectCookie, err := r.Cookie("post_login_redirect"); err == nil {
		candidate := redirectCookie.Value
		// Relative paths only.
		u, parseErr := url.Parse(candidate)
		if parseErr == nil && !u.IsAbs() && u.Host == "" && strings.HasPrefix(u.Path, "/") {
			redirectURI = candidate
		}
		h.clearCookie(w, r, "post_login_redirect")
	}
	return redirectURI
}
