package httpx

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	// DefaultCSRFHeaderName is the header carrying the echoed CSRF token
	// (canonical form).
	DefaultCSRFHeaderName = "X-Csrf-Token"
	// DefaultCSRFFormFieldName is the form field fallback for standard
	// form submissions.
	DefaultCSRFFormFieldName = "csrf_token"
)

// CSRFConfig holds configuration for CSRF protection middleware.
type CSRFConfig struct {
	// HeaderName is the name of the CSRF header to check (default: "X-Csrf-Token")
	HeaderName string
	// FormFieldName is the name of the form field to check (default: "csrf_token")
	FormFieldName string
}

// CSRFProtection returns a middleware that protects state-changing requests
// with the double-submit pattern bound to the session: the client must echo
// the CSRF token minted with its session, and the echo is compared against
// the server-side record, not a cookie an attacker could also set.
//
// Must run after RequireAuth/RequireRole: it reads the session from the
// request context. GET, HEAD, OPTIONS, and TRACE are exempt.
func CSRFProtection(cfg CSRFConfig) func(http.Handler) http.Handler {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultCSRFHeaderName
	}
	if cfg.FormFieldName == "" {
		cfg.FormFieldName = DefaultCSRFFormFieldName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requiresCSRFValidation(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			session := GetSessionFromContext(r.Context())
			if session == nil || !validateCSRFToken(r, session.CSRFToken, cfg) {
				http.Error(w, "CSRF token validation failed", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requiresCSRFValidation returns true if the HTTP method requires CSRF validation.
// Safe methods (GET, HEAD, OPTIONS, TRACE) are exempt.
func requiresCSRFValidation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	default:
		return true
	}
}

// validateCSRFToken validates the echoed CSRF token against the session's
// token. It checks the header first (for AJAX requests), then the form
// field. Uses constant-time comparison to prevent timing side channels.
func validateCSRFToken(r *http.Request, sessionToken string, cfg CSRFConfig) bool {
	if sessionToken == "" {
		return false
	}

	headerToken := r.Header.Get(cfg.HeaderName)
	if headerToken != "" {
		return subtle.ConstantTimeCompare([]byte(headerToken), []byte(sessionToken)) == 1
	}

	// Only parse the body for form-encoded content types.
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return false
		}
		formToken := r.FormValue(cfg.FormFieldName)
		if formToken != "" {
			return subtle.ConstantTimeCompare([]byte(formToken), []byte(sessionToken)) == 1
		}
	}

	return false
}
