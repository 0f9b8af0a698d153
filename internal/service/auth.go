package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/target/console-gate/internal/audit"
	domainauth "github.com/target/console-gate/internal/domain/auth"
	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider ports.AuthProvider
	Sessions ports.SessionStore
	Roles    ports.RoleMapper
	Limiter  ports.RateLimiter

	// Verifier is set only in mock/dev mode; DirectLogin fails without it.
	Verifier ports.CredentialVerifier

	Audit  audit.Sink
	Logger *slog.Logger
}

// AuthService orchestrates authentication flows: provider exchange, role
// mapping, throttle protocol, session persistence, step-up rotation.
type AuthService struct {
	provider ports.AuthProvider
	sessions ports.SessionStore
	roles    ports.RoleMapper
	limiter  ports.RateLimiter
	verifier ports.CredentialVerifier
	audit    audit.Sink
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	sink := opts.Audit
	if sink == nil {
		sink = audit.NoopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		provider: opts.Provider,
		sessions: opts.Sessions,
		roles:    opts.Roles,
		limiter:  opts.Limiter,
		verifier: opts.Verifier,
		audit:    sink,
		logger:   logger,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   string
	Nonce   string
}

// BeginLogin initiates an authentication flow and returns the provider auth
// URL with state and nonce. The caller's IP budget is consumed here: no
// account identifier exists yet at this point in the flow.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURL, clientIP string) (*BeginLoginResult, error) {
	if redirectURL == "" {
		return nil, apperrors.Validation("redirect URL is required")
	}

	decision, err := s.limiter.CheckAndIncrementIP(ctx, clientIP)
	if err != nil {
		return nil, err
	}
	if decision.Blocked {
		return nil, apperrors.RateLimited("too many login attempts", decision.RetryAfterSeconds())
	}

	authURL, state, nonce, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURL: redirectURL})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}
	return &BeginLoginResult{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code      string
	State     string
	Nonce     string
	ClientIP  string
	UserAgent string
}

// CompleteLogin finishes a federated login: exchanges the code for an
// identity, maps the role, and mints a session. The account lockout check
// runs after the exchange, once the account identifier is known; a lockout
// denies the login even with valid upstream credentials.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*ports.Credentials, error) {
	if input.Code == "" || input.State == "" || input.Nonce == "" {
		return nil, apperrors.Validation("code, state, and nonce are required")
	}

	decision, err := s.limiter.CheckAndIncrementIP(ctx, input.ClientIP)
	if err != nil {
		return nil, err
	}
	if decision.Blocked {
		return nil, apperrors.RateLimited("too many login attempts", decision.RetryAfterSeconds())
	}

	identity, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		State: input.State,
		Nonce: input.Nonce,
	})
	if err != nil {
		s.audit.Emit(ctx, audit.Event{
			Type:   audit.TypeLoginFailure,
			IP:     input.ClientIP,
			Reason: "exchange_failed",
		})
		s.logger.WarnContext(ctx, "authorization code exchange failed", "error", err)
		return nil, apperrors.Unauthenticated("authentication failed")
	}

	decision, err = s.limiter.CheckOnly(ctx, input.ClientIP, identity.UserID)
	if err != nil {
		return nil, err
	}
	if decision.Blocked {
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.TypeLoginFailure,
			Subject: identity.UserID,
			IP:      input.ClientIP,
			Reason:  string(decision.Reason),
		})
		return nil, apperrors.RateLimited("too many login attempts", decision.RetryAfterSeconds())
	}

	return s.establish(ctx, identity, "oauth", input.ClientIP, input.UserAgent)
}

// DirectLoginInput groups parameters for a direct account/secret login.
type DirectLoginInput struct {
	Account   string
	Secret    string
	ClientIP  string
	UserAgent string
}

// DirectLogin authenticates an account/secret pair through the configured
// verifier, running the full throttle protocol: check before the attempt,
// record on failure, clear on success. Only available in mock/dev mode.
func (s *AuthService) DirectLogin(ctx context.Context, input DirectLoginInput) (*ports.Credentials, error) {
	if s.verifier == nil {
		return nil, apperrors.Unauthenticated("direct login is not enabled")
	}
	if input.Account == "" || input.Secret == "" {
		return nil, apperrors.Validation("account and secret are required")
	}

	decision, err := s.limiter.CheckOnly(ctx, input.ClientIP, input.Account)
	if err != nil {
		return nil, err
	}
	if decision.Blocked {
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.TypeLoginFailure,
			Subject: input.Account,
			IP:      input.ClientIP,
			Reason:  string(decision.Reason),
		})
		return nil, apperrors.RateLimited("too many login attempts", decision.RetryAfterSeconds())
	}

	identity, ok, err := s.verifier.Verify(ctx, input.Account, input.Secret)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}
	if !ok {
		recorded, recordErr := s.limiter.RecordFailure(ctx, input.ClientIP, input.Account)
		if recordErr != nil {
			// The failure still denies the login; losing the throttle
			// bookkeeping is logged, not fatal.
			s.logger.ErrorContext(ctx, "failed to record login failure", "error", recordErr)
		}
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.TypeLoginFailure,
			Subject: input.Account,
			IP:      input.ClientIP,
			Reason:  string(recorded.Reason),
		})
		return nil, apperrors.Unauthenticated("authentication failed")
	}

	return s.establish(ctx, identity, "direct", input.ClientIP, input.UserAgent)
}

// establish maps an authenticated identity into a session.
func (s *AuthService) establish(
	ctx context.Context,
	identity domainauth.Identity,
	method, clientIP, userAgent string,
) (*ports.Credentials, error) {
	user := domainauth.User{
		ID:             identity.UserID,
		FirstName:      identity.FirstName,
		LastName:       identity.LastName,
		Email:          identity.Email,
		Role:           s.roles.Map(identity.Groups),
		AuthMethod:     method,
		UpstreamTokens: identity.Tokens,
	}

	creds, err := s.sessions.Create(ctx, ports.CreateInput{
		User:      user,
		ClientIP:  clientIP,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}

	if clearErr := s.limiter.ClearOnSuccess(ctx, identity.UserID); clearErr != nil {
		s.logger.WarnContext(ctx, "failed to clear login failure state", "error", clearErr)
	}
	s.audit.Emit(ctx, audit.Event{
		Type:    audit.TypeLoginSuccess,
		Subject: identity.UserID,
		IP:      clientIP,
		Success: true,
	})
	return &creds, nil
}

// StepUp rotates a session after a privilege change, folding the supplied
// user updates into the new record. Returns ErrCodeUnauthenticated when the
// session no longer exists.
func (s *AuthService) StepUp(ctx context.Context, sessionID string, updates *domainauth.User) (*ports.Credentials, error) {
	if sessionID == "" {
		return nil, apperrors.Unauthenticated("no session")
	}
	creds, err := s.sessions.Rotate(ctx, sessionID, updates)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, apperrors.Unauthenticated("session no longer valid")
	}
	return creds, nil
}

// Logout revokes a session. Idempotent: a missing session is not an error.
func (s *AuthService) Logout(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.sessions.Invalidate(ctx, sess.ID); err != nil {
		return err
	}
	s.audit.Emit(ctx, audit.Event{
		Type:      audit.TypeSessionRevoked,
		Subject:   sess.User.ID,
		SessionID: sess.ID,
		Success:   true,
	})
	return nil
}

// UnlockAccount clears an account lockout on behalf of an administrator.
func (s *AuthService) UnlockAccount(ctx context.Context, account, adminIdentity string) error {
	if account == "" {
		return apperrors.Validation("account is required")
	}
	return s.limiter.Unlock(ctx, account, adminIdentity)
}

// LockoutRemaining reports the remaining lockout duration for an account.
func (s *AuthService) LockoutRemaining(ctx context.Context, account string) (int, error) {
	remaining, err := s.limiter.LockoutRemaining(ctx, account)
	if err != nil {
		return 0, err
	}
	return ports.Decision{RetryAfter: remaining}.RetryAfterSeconds(), nil
}
