package redis

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/console-gate/internal/audit"
	"github.com/target/console-gate/internal/data/cryptoutil"
	domainauth "github.com/target/console-gate/internal/domain/auth"
	apperrors "github.com/target/console-gate/internal/errors"
	"github.com/target/console-gate/internal/ports"
)

// SessionStoreConfig tunes the session store.
type SessionStoreConfig struct {
	// Prefix namespaces session keys in Redis.
	Prefix string

	// AbsoluteTimeout is the maximum session lifetime from creation.
	AbsoluteTimeout time.Duration

	// IdleTimeout invalidates sessions with no validated activity.
	IdleTimeout time.Duration

	// DeviceBinding enables the coarse client fingerprint check.
	DeviceBinding      bool
	DeviceSubnetV4Bits int
	DeviceSubnetV6Bits int

	// CreateMaxPerMinute and ValidateMaxPerMinute are the per-IP caps
	// applied inside Create and Validate.
	CreateMaxPerMinute   int
	ValidateMaxPerMinute int
}

// SessionStore is the Redis-backed session store. Records are encrypted at
// rest through the codec and are opaque outside this type; the presented
// token is "{session_id}.{key_id}:{hex_hmac}" where the signature covers the
// session id only.
type SessionStore struct {
	client redis.UniversalClient
	codec  *cryptoutil.SessionCodec
	cfg    SessionStoreConfig
	audit  audit.Sink
	logger *slog.Logger
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore constructs a session store.
func NewSessionStore(
	client redis.UniversalClient,
	codec *cryptoutil.SessionCodec,
	cfg SessionStoreConfig,
	sink audit.Sink,
	logger *slog.Logger,
) *SessionStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "session:"
	}
	if sink == nil {
		sink = audit.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{client: client, codec: codec, cfg: cfg, audit: sink, logger: logger}
}

func (s *SessionStore) key(sessionID string) string { return s.cfg.Prefix + sessionID }

// rotateScript atomically swaps an old session record for a new one. The
// existence re-check closes the window between the caller's read of the old
// record and this swap: if the old session vanished (logout, expiry,
// concurrent rotation), the swap aborts instead of creating an orphan.
//
// KEYS[1] old session key, KEYS[2] new session key
// ARGV[1] new encrypted blob, ARGV[2] new TTL in milliseconds
// Returns 1 on success, 0 when the old session no longer exists.
const rotateScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[1], "PX", ARGV[2])
redis.call("DEL", KEYS[1])
return 1
`

var rotateLua = redis.NewScript(rotateScript)

// Create mints a session for an already-authenticated identity. The caller
// has verified credentials; this only applies the per-IP creation limit,
// generates the identifiers, and persists the encrypted record.
//
// Redis being unreachable is an infrastructure failure, not a security one:
// callers should answer 503, never 401.
func (s *SessionStore) Create(ctx context.Context, in ports.CreateInput) (ports.Credentials, error) {
	blocked, retryAfter, err := checkAndIncrementWindow(
		ctx, s.client, "sess:create:"+in.ClientIP, s.cfg.CreateMaxPerMinute)
	if err != nil {
		return ports.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session creation failed")
	}
	if blocked {
		s.audit.Emit(ctx, audit.Event{
			Type:    audit.TypeSessionCreateDenied,
			Subject: in.User.ID,
			IP:      in.ClientIP,
			Reason:  string(ports.ReasonIPRateLimited),
		})
		return ports.Credentials{}, apperrors.RateLimited(
			"session creation rate limit exceeded", int((retryAfter+time.Second-1)/time.Second))
	}

	sessionID, err := randomToken()
	if err != nil {
		return ports.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate session id")
	}
	csrfToken, err := randomToken()
	if err != nil {
		return ports.Credentials{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate csrf token")
	}

	now := time.Now().UTC()
	sess := domainauth.Session{
		ID:           sessionID,
		User:         in.User,
		CSRFToken:    csrfToken,
		CreatedAt:    now,
		IssuedAt:     now,
		LastActivity: now,
	}
	if s.cfg.DeviceBinding {
		device := domainauth.Fingerprint(
			in.ClientIP, in.UserAgent, s.cfg.DeviceSubnetV4Bits, s.cfg.DeviceSubnetV6Bits)
		sess.Device = &device
	}

	if err := s.persist(ctx, sess, s.cfg.AbsoluteTimeout); err != nil {
		return ports.Credentials{}, err
	}

	s.audit.Emit(ctx, audit.Event{
		Type:      audit.TypeSessionCreated,
		Subject:   in.User.ID,
		SessionID: sessionID,
		IP:        in.ClientIP,
		Success:   true,
	})
	return ports.Credentials{Token: s.token(sessionID), CSRFToken: csrfToken}, nil
}

// Validate checks a presented token and returns the live session, refreshing
// its activity stamp. Every security failure collapses to (nil, nil) with
// the reason audited server-side; infrastructure failures surface as
// ErrCodeUnavailable so callers can answer 503 instead of 401.
func (s *SessionStore) Validate(
	ctx context.Context,
	token, clientIP, userAgent string,
) (*domainauth.Session, error) {
	// The validation limit fails soft: exceeding it is indistinguishable
	// from "not logged in", so a probe learns nothing about limiter state.
	blocked, _, err := checkAndIncrementWindow(
		ctx, s.client, "sess:validate:"+clientIP, s.cfg.ValidateMaxPerMinute)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session validation failed")
	}
	if blocked {
		return nil, nil
	}

	sessionID, signature, ok := strings.Cut(token, ".")
	if !ok || sessionID == "" {
		s.denied(ctx, "", clientIP, "malformed_token")
		return nil, nil
	}
	if !s.codec.Verify(sessionID, signature) {
		s.denied(ctx, sessionID, clientIP, "bad_signature")
		return nil, nil
	}

	blob, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session validation failed")
	}

	sess, decodeErr := s.decode(blob)
	if decodeErr != nil || sess.ID != sessionID {
		// A corrupt record can never be silently resurrected.
		s.invalidateQuiet(ctx, sessionID)
		s.denied(ctx, sessionID, clientIP, "corrupt_record")
		return nil, nil
	}

	now := time.Now().UTC()
	if now.Sub(sess.CreatedAt) > s.cfg.AbsoluteTimeout {
		s.invalidateQuiet(ctx, sessionID)
		s.denied(ctx, sessionID, clientIP, "absolute_timeout")
		return nil, nil
	}
	if now.Sub(sess.LastActivity) > s.cfg.IdleTimeout {
		s.invalidateQuiet(ctx, sessionID)
		s.denied(ctx, sessionID, clientIP, "idle_timeout")
		return nil, nil
	}

	if s.cfg.DeviceBinding && sess.Device != nil {
		current := domainauth.Fingerprint(
			clientIP, userAgent, s.cfg.DeviceSubnetV4Bits, s.cfg.DeviceSubnetV6Bits)
		if !sess.Device.Equal(current) {
			s.invalidateQuiet(ctx, sessionID)
			s.denied(ctx, sessionID, clientIP, "device_mismatch")
			return nil, nil
		}
	}

	// Best-effort activity refresh: a lost concurrent update costs only
	// idle-timeout staleness, never security. The rewritten TTL is clamped
	// to the original absolute deadline.
	sess.LastActivity = now
	if err := s.persist(ctx, sess, s.remainingTTL(sess, now)); err != nil {
		return nil, err
	}

	return &sess, nil
}

// Rotate replaces the session id and CSRF token after a privilege change,
// defeating session fixation. CreatedAt carries over so the absolute timeout
// is not reset; user updates are merged into the payload. The swap is a
// single scripted transaction: no window exists where both or neither
// session is valid.
func (s *SessionStore) Rotate(
	ctx context.Context,
	oldSessionID string,
	updates *domainauth.User,
) (*ports.Credentials, error) {
	blob, err := s.client.Get(ctx, s.key(oldSessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session rotation failed")
	}

	old, decodeErr := s.decode(blob)
	if decodeErr != nil {
		s.invalidateQuiet(ctx, oldSessionID)
		return nil, nil
	}

	newSessionID, err := randomToken()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate session id")
	}
	csrfToken, err := randomToken()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "generate csrf token")
	}

	now := time.Now().UTC()
	rotated := domainauth.Session{
		ID:           newSessionID,
		User:         old.User.Merge(updates),
		CSRFToken:    csrfToken,
		CreatedAt:    old.CreatedAt,
		IssuedAt:     now,
		LastActivity: now,
		Device:       old.Device,
	}

	ttl := s.remainingTTL(rotated, now)
	if ttl <= 0 {
		s.invalidateQuiet(ctx, oldSessionID)
		return nil, nil
	}

	encrypted, err := s.encode(rotated)
	if err != nil {
		return nil, err
	}

	swapped, err := rotateLua.Run(
		ctx, s.client,
		[]string{s.key(oldSessionID), s.key(newSessionID)},
		encrypted, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session rotation failed")
	}
	if swapped == 0 {
		// Old session vanished between read and swap; abort, don't orphan.
		return nil, nil
	}

	s.audit.Emit(ctx, audit.Event{
		Type:      audit.TypeSessionRotated,
		Subject:   rotated.User.ID,
		SessionID: newSessionID,
		Success:   true,
	})
	return &ports.Credentials{Token: s.token(newSessionID), CSRFToken: csrfToken}, nil
}

// Invalidate deletes a session. Idempotent: deleting a missing session is a
// no-op, never an error.
func (s *SessionStore) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session invalidation failed")
	}
	return nil
}

// Health pings the underlying Redis connection.
func (s *SessionStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis ping failed")
	}
	return nil
}

func (s *SessionStore) token(sessionID string) string {
	return sessionID + "." + s.codec.Sign(sessionID)
}

func (s *SessionStore) encode(sess domainauth.Session) (string, error) {
	plain, err := json.Marshal(sess)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "marshal session")
	}
	encrypted, err := s.codec.Encrypt(plain)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "encrypt session")
	}
	return encrypted, nil
}

func (s *SessionStore) decode(blob string) (domainauth.Session, error) {
	plain, err := s.codec.Decrypt(blob)
	if err != nil {
		return domainauth.Session{}, err
	}
	var sess domainauth.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return domainauth.Session{}, err
	}
	if sess.ID == "" || sess.CreatedAt.IsZero() {
		return domainauth.Session{}, errors.New("session payload missing required fields")
	}
	return sess, nil
}

func (s *SessionStore) persist(ctx context.Context, sess domainauth.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return apperrors.Internal("refusing to persist session with non-positive ttl")
	}
	encrypted, err := s.encode(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(sess.ID), encrypted, ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "session write failed")
	}
	return nil
}

// remainingTTL computes the next record TTL: the idle window, clamped so the
// record can never outlive the absolute deadline set at creation.
func (s *SessionStore) remainingTTL(sess domainauth.Session, now time.Time) time.Duration {
	untilAbsolute := sess.CreatedAt.Add(s.cfg.AbsoluteTimeout).Sub(now)
	if s.cfg.IdleTimeout < untilAbsolute {
		return s.cfg.IdleTimeout
	}
	return untilAbsolute
}

// invalidateQuiet deletes a session server-side during validation. Failures
// are logged, not surfaced: the caller is already returning "denied" and a
// TTL'd record will expire on its own.
func (s *SessionStore) invalidateQuiet(ctx context.Context, sessionID string) {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		s.logger.WarnContext(ctx, "session cleanup failed", "error", err)
	}
}

// denied records the specific validation failure reason server-side only.
func (s *SessionStore) denied(ctx context.Context, sessionID, clientIP, reason string) {
	s.audit.Emit(ctx, audit.Event{
		Type:      audit.TypeSessionInvalid,
		SessionID: sessionID,
		IP:        clientIP,
		Reason:    reason,
	})
}

// randomToken returns a 256-bit URL-safe random string.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
