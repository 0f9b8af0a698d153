package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/console-gate/internal/domain/auth"
	"github.com/target/console-gate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider       = (*MockAuthProvider)(nil)
	_ ports.SessionStore       = (*MemorySessionStore)(nil)
	_ ports.RoleMapper         = (*StaticRoleMapper)(nil)
	_ ports.RateLimiter        = (*MockRateLimiter)(nil)
	_ ports.ConnCounter        = (*MemoryConnCounter)(nil)
	_ ports.CredentialVerifier = (*MockCredentialVerifier)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string
	DefaultUser domainauth.Identity

	// Internal state tracking for deterministic behavior
	callCount int
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
		DefaultUser: domainauth.Identity{
			UserID:    "mock-user-1",
			FirstName: "Mock",
			LastName:  "User",
			Email:     "mock.user@example.com",
			Groups:    []string{"users"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}

	state := fmt.Sprintf("%s-%d", m.StatePrefix, m.callCount)
	nonce := fmt.Sprintf("%s-%d", m.NoncePrefix, m.callCount)
	return authURL, state, nonce, nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}

	user := m.DefaultUser
	user.ExpiresAt = time.Now().Add(time.Hour)
	return user, nil
}

// MemorySessionStore is an in-memory session store for unit tests. Tokens
// are the bare session id; no signing or encryption is simulated.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	nextID   int

	// CreateErr / ValidateErr / RotateErr / InvalidateErr inject failures.
	CreateErr     error
	ValidateErr   error
	RotateErr     error
	InvalidateErr error

	// ValidateFunc overrides Validate entirely when set.
	ValidateFunc func(ctx context.Context, token, clientIP, userAgent string) (*domainauth.Session, error)
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

// Put seeds a session directly.
func (m *MemorySessionStore) Put(sess domainauth.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess
}

// Len reports the number of live sessions.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) Create(_ context.Context, in ports.CreateInput) (ports.Credentials, error) {
	if m.CreateErr != nil {
		return ports.Credentials{}, m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	sess := domainauth.Session{
		ID:           fmt.Sprintf("sess-%d", m.nextID),
		User:         in.User,
		CSRFToken:    fmt.Sprintf("csrf-%d", m.nextID),
		CreatedAt:    now,
		IssuedAt:     now,
		LastActivity: now,
	}
	m.sessions[sess.ID] = sess
	return ports.Credentials{Token: sess.ID, CSRFToken: sess.CSRFToken}, nil
}

func (m *MemorySessionStore) Validate(ctx context.Context, token, clientIP, userAgent string) (*domainauth.Session, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, token, clientIP, userAgent)
	}
	if m.ValidateErr != nil {
		return nil, m.ValidateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	sess.LastActivity = time.Now().UTC()
	m.sessions[token] = sess
	return &sess, nil
}

func (m *MemorySessionStore) Rotate(_ context.Context, oldSessionID string, updates *domainauth.User) (*ports.Credentials, error) {
	if m.RotateErr != nil {
		return nil, m.RotateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.sessions[oldSessionID]
	if !ok {
		return nil, nil
	}
	delete(m.sessions, oldSessionID)

	m.nextID++
	now := time.Now().UTC()
	rotated := domainauth.Session{
		ID:           fmt.Sprintf("sess-%d", m.nextID),
		User:         old.User.Merge(updates),
		CSRFToken:    fmt.Sprintf("csrf-%d", m.nextID),
		CreatedAt:    old.CreatedAt,
		IssuedAt:     now,
		LastActivity: now,
		Device:       old.Device,
	}
	m.sessions[rotated.ID] = rotated
	return &ports.Credentials{Token: rotated.ID, CSRFToken: rotated.CSRFToken}, nil
}

func (m *MemorySessionStore) Invalidate(_ context.Context, sessionID string) error {
	if m.InvalidateErr != nil {
		return m.InvalidateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// StaticRoleMapper maps groups by simple string membership rules.
type StaticRoleMapper struct {
	AdminGroup string
	UserGroup  string
}

func (m StaticRoleMapper) Map(groups []string) domainauth.Role {
	for _, g := range groups {
		if m.AdminGroup != "" && g == m.AdminGroup {
			return domainauth.RoleAdmin
		}
	}
	for _, g := range groups {
		if m.UserGroup != "" && g == m.UserGroup {
			return domainauth.RoleUser
		}
	}
	return domainauth.RoleGuest
}

// MockRateLimiter is a configurable limiter double. The zero value allows
// everything and records calls.
type MockRateLimiter struct {
	mu sync.Mutex

	CheckOnlyFunc     func(ctx context.Context, ip, account string) (ports.Decision, error)
	RecordFailureFunc func(ctx context.Context, ip, account string) (ports.Decision, error)
	CheckIPFunc       func(ctx context.Context, ip string) (ports.Decision, error)

	Failures []string // accounts passed to RecordFailure
	Cleared  []string // accounts passed to ClearOnSuccess
	Unlocked []string // accounts passed to Unlock
}

func (m *MockRateLimiter) CheckOnly(ctx context.Context, ip, account string) (ports.Decision, error) {
	if m.CheckOnlyFunc != nil {
		return m.CheckOnlyFunc(ctx, ip, account)
	}
	return ports.Decision{Reason: ports.ReasonAllowed}, nil
}

func (m *MockRateLimiter) RecordFailure(ctx context.Context, ip, account string) (ports.Decision, error) {
	m.mu.Lock()
	m.Failures = append(m.Failures, account)
	m.mu.Unlock()
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, ip, account)
	}
	return ports.Decision{Reason: ports.ReasonFailureRecorded}, nil
}

func (m *MockRateLimiter) ClearOnSuccess(_ context.Context, account string) error {
	m.mu.Lock()
	m.Cleared = append(m.Cleared, account)
	m.mu.Unlock()
	return nil
}

func (m *MockRateLimiter) CheckAndIncrementIP(ctx context.Context, ip string) (ports.Decision, error) {
	if m.CheckIPFunc != nil {
		return m.CheckIPFunc(ctx, ip)
	}
	return ports.Decision{Reason: ports.ReasonAllowed}, nil
}

func (m *MockRateLimiter) Unlock(_ context.Context, account, _ string) error {
	m.mu.Lock()
	m.Unlocked = append(m.Unlocked, account)
	m.mu.Unlock()
	return nil
}

func (m *MockRateLimiter) LockoutRemaining(context.Context, string) (time.Duration, error) {
	return 0, nil
}

// MemoryConnCounter is an in-memory per-session connection counter.
type MemoryConnCounter struct {
	mu     sync.Mutex
	counts map[string]int

	// Max caps each session's count; zero means unlimited.
	Max int

	// AcquireErr / ReleaseErr inject failures.
	AcquireErr error
	ReleaseErr error
}

// NewMemoryConnCounter creates a counter capped at max per session.
func NewMemoryConnCounter(max int) *MemoryConnCounter {
	return &MemoryConnCounter{counts: make(map[string]int), Max: max}
}

func (m *MemoryConnCounter) Acquire(_ context.Context, sessionID string) (bool, int, error) {
	if m.AcquireErr != nil {
		return false, 0, m.AcquireErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Max > 0 && m.counts[sessionID] >= m.Max {
		return false, m.counts[sessionID], nil
	}
	m.counts[sessionID]++
	return true, m.counts[sessionID], nil
}

func (m *MemoryConnCounter) Release(_ context.Context, sessionID string) (int, error) {
	if m.ReleaseErr != nil {
		return 0, m.ReleaseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[sessionID] > 0 {
		m.counts[sessionID]--
	}
	if m.counts[sessionID] == 0 {
		delete(m.counts, sessionID)
	}
	return m.counts[sessionID], nil
}

func (m *MemoryConnCounter) Count(_ context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[sessionID], nil
}

// MockCredentialVerifier accepts a single account/secret pair.
type MockCredentialVerifier struct {
	Account  string
	Secret   string
	Identity domainauth.Identity

	// Err is returned from every Verify call when set.
	Err error
}

func (m *MockCredentialVerifier) Verify(_ context.Context, account, secret string) (domainauth.Identity, bool, error) {
	if m.Err != nil {
		return domainauth.Identity{}, false, m.Err
	}
	if account != m.Account || secret != m.Secret {
		return domainauth.Identity{}, false, nil
	}
	identity := m.Identity
	if identity.UserID == "" {
		identity.UserID = account
	}
	return identity, true, nil
}

// ErrUnavailable is a sentinel test error for injected infrastructure
// failures.
var ErrUnavailable = errors.New("backend unavailable")
