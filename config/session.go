package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SessionConfig contains key material and timeout configuration for the
// session store. Key material is hex-encoded in the environment; decoding
// errors surface at startup, not at first use.
type SessionConfig struct {
	// EncryptionKeys is a semicolon-separated list of hex-encoded 32-byte
	// AES-256 keys. The first key encrypts new sessions; the rest are
	// retained for decrypting sessions written before a key rotation.
	EncryptionKeys []string `env:"ENCRYPTION_KEYS,required" envSeparator:";"`

	// SigningKeys is a semicolon-separated list of id=hexsecret pairs for
	// HMAC token signing.
	SigningKeys []string `env:"SIGNING_KEYS,required" envSeparator:";"`

	// CurrentSigningKeyID names the SigningKeys entry used to sign new tokens.
	CurrentSigningKeyID string `env:"CURRENT_SIGNING_KEY_ID,required"`

	// AbsoluteTimeout is the maximum session lifetime from creation.
	AbsoluteTimeout time.Duration `env:"ABSOLUTE_TIMEOUT" envDefault:"1h"`

	// IdleTimeout invalidates sessions with no validated activity.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"15m"`

	// DeviceBinding ties sessions to a coarse client fingerprint
	// (IP subnet + user-agent hash) to detect theft across networks.
	DeviceBinding bool `env:"DEVICE_BINDING" envDefault:"false"`

	// DeviceSubnetV4Bits is the IPv4 mask width for the fingerprint subnet.
	DeviceSubnetV4Bits int `env:"DEVICE_SUBNET_V4_BITS" envDefault:"24"`

	// DeviceSubnetV6Bits is the IPv6 mask width for the fingerprint subnet.
	DeviceSubnetV6Bits int `env:"DEVICE_SUBNET_V6_BITS" envDefault:"64"`

	// CookieName is the cookie carrying the signed session token.
	CookieName string `env:"COOKIE_NAME" envDefault:"console_session"`
}

// Sanitize applies guardrails to session configuration values.
func (s *SessionConfig) Sanitize() {
	if s.AbsoluteTimeout <= 0 {
		s.AbsoluteTimeout = time.Hour
	}
	if s.IdleTimeout <= 0 || s.IdleTimeout > s.AbsoluteTimeout {
		s.IdleTimeout = s.AbsoluteTimeout
	}
	if s.DeviceSubnetV4Bits < 8 || s.DeviceSubnetV4Bits > 32 {
		s.DeviceSubnetV4Bits = 24
	}
	if s.DeviceSubnetV6Bits < 16 || s.DeviceSubnetV6Bits > 128 {
		s.DeviceSubnetV6Bits = 64
	}
	if s.CookieName == "" {
		s.CookieName = "console_session"
	}
}

// EncryptionKeyBytes decodes the configured encryption keys.
func (s *SessionConfig) EncryptionKeyBytes() ([][]byte, error) {
	keys := make([][]byte, 0, len(s.EncryptionKeys))
	for i, k := range s.EncryptionKeys {
		decoded, err := hex.DecodeString(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("decode encryption key %d: %w", i, err)
		}
		keys = append(keys, decoded)
	}
	return keys, nil
}

// SigningKeyBytes decodes the configured id=hexsecret signing key pairs.
func (s *SessionConfig) SigningKeyBytes() (map[string][]byte, error) {
	keys := make(map[string][]byte, len(s.SigningKeys))
	for _, pair := range s.SigningKeys {
		id, hexSecret, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("signing key entry %q is not id=hexsecret", pair)
		}
		secret, err := hex.DecodeString(hexSecret)
		if err != nil {
			return nil, fmt.Errorf("decode signing key %q: %w", id, err)
		}
		keys[id] = secret
	}
	return keys, nil
}
