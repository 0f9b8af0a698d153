package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/console-gate/internal/domain/auth"
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code  string
	State string
	Nonce string
}

// RoleMapper maps provider groups to application roles.
type RoleMapper interface {
	Map(groups []string) domainauth.Role
}

// CredentialVerifier checks a direct account/secret pair. Only the dev
// provider implements it; federated providers never see a password.
type CredentialVerifier interface {
	// Verify reports whether the secret is valid for the account and, when
	// it is, returns the account identity.
	Verify(ctx context.Context, account, secret string) (domainauth.Identity, bool, error)
}

// CreateInput groups parameters for minting a session.
type CreateInput struct {
	User      domainauth.User
	ClientIP  string
	UserAgent string
}

// Credentials are what a successful create or rotate hands back to the
// client: the signed token for the session cookie and the CSRF token the
// client must echo on state-changing requests.
type Credentials struct {
	Token     string
	CSRFToken string
}

// SessionStore owns session records in the shared cache. Callers never touch
// the records directly; every mutation goes through these four operations.
//
// Validate and Rotate distinguish "definitely invalid" (nil result, nil
// error) from "cannot currently tell" (an ErrCodeUnavailable error): the
// former maps to 401, the latter to 503. Collapsing them loses correctness
// under partial cache outages.
type SessionStore interface {
	// Create mints a session for an already-authenticated identity.
	Create(ctx context.Context, in CreateInput) (Credentials, error)

	// Validate checks a presented token and returns the live session, or
	// (nil, nil) when the token is invalid for any security reason.
	Validate(ctx context.Context, token, clientIP, userAgent string) (*domainauth.Session, error)

	// Rotate replaces the session id and CSRF token after a privilege
	// change, preserving the absolute-timeout origin. Returns (nil, nil) if
	// the old session no longer exists.
	Rotate(ctx context.Context, oldSessionID string, updates *domainauth.User) (*Credentials, error)

	// Invalidate deletes a session. Idempotent.
	Invalidate(ctx context.Context, sessionID string) error
}
