// Package testutil provides testing helpers shared across console-gate
// packages: an in-process Redis, codec fixtures, and session builders.
package testutil

import (
	"bytes"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/target/console-gate/internal/data/cryptoutil"
	domainauth "github.com/target/console-gate/internal/domain/auth"
)

// TestingTB is the subset of testing.TB the helpers need; it covers both
// *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Skip(args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// SetupRedis starts an in-process Redis and returns a connected client plus
// the server handle, for tests that need to manipulate time or keys
// directly. Both are torn down via t.Cleanup.
func SetupRedis(t TestingTB) (goredis.UniversalClient, *miniredis.Miniredis) {
	t.Helper()

	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(srv.Close)

	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() {
		if closeErr := client.Close(); closeErr != nil {
			t.Fatalf("failed to close redis client: %v", closeErr)
		}
	})
	return client, srv
}

// NewCodec builds a session codec from deterministic test keys.
func NewCodec(t TestingTB) *cryptoutil.SessionCodec {
	t.Helper()

	codec, err := cryptoutil.NewSessionCodec(cryptoutil.CodecConfig{
		EncryptionKeys:      [][]byte{bytes.Repeat([]byte{0x42}, 32)},
		SigningKeys:         map[string][]byte{"k1": []byte("test-signing-secret")},
		CurrentSigningKeyID: "k1",
	})
	if err != nil {
		t.Fatal("failed to build test codec:", err)
	}
	return codec
}

// UserBuilder provides a fluent interface for building users in tests.
type UserBuilder struct {
	user domainauth.User
}

// NewUser creates a UserBuilder with sensible defaults.
func NewUser() *UserBuilder {
	return &UserBuilder{
		user: domainauth.User{
			ID:         "u-1",
			FirstName:  "Ada",
			LastName:   "Lovelace",
			Email:      "ada@example.com",
			Role:       domainauth.RoleUser,
			AuthMethod: "oauth",
		},
	}
}

// WithID sets the user id.
func (b *UserBuilder) WithID(id string) *UserBuilder {
	b.user.ID = id
	return b
}

// WithRole sets the role.
func (b *UserBuilder) WithRole(role domainauth.Role) *UserBuilder {
	b.user.Role = role
	return b
}

// WithEmail sets the email.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

// Build returns the constructed user.
func (b *UserBuilder) Build() domainauth.User {
	return b.user
}

// SessionBuilder provides a fluent interface for building session records.
type SessionBuilder struct {
	sess domainauth.Session
}

// NewSession creates a SessionBuilder with sensible defaults.
func NewSession() *SessionBuilder {
	now := time.Now().UTC()
	return &SessionBuilder{
		sess: domainauth.Session{
			ID:           "s-1",
			User:         NewUser().Build(),
			CSRFToken:    "csrf-1",
			CreatedAt:    now,
			IssuedAt:     now,
			LastActivity: now,
		},
	}
}

// WithID sets the session id.
func (b *SessionBuilder) WithID(id string) *SessionBuilder {
	b.sess.ID = id
	return b
}

// WithUser sets the user.
func (b *SessionBuilder) WithUser(user domainauth.User) *SessionBuilder {
	b.sess.User = user
	return b
}

// WithCreatedAt sets the creation time.
func (b *SessionBuilder) WithCreatedAt(at time.Time) *SessionBuilder {
	b.sess.CreatedAt = at
	return b
}

// WithLastActivity sets the last validated activity time.
func (b *SessionBuilder) WithLastActivity(at time.Time) *SessionBuilder {
	b.sess.LastActivity = at
	return b
}

// Build returns the constructed session.
func (b *SessionBuilder) Build() domainauth.Session {
	return b.sess
}
