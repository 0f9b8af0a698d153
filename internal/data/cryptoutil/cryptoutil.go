package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrDecrypt is returned for every authenticated-decryption failure: tampered
// bytes, wrong key, truncated or corrupt ciphertext. Callers are deliberately
// not told which, so a decryption oracle cannot be built against the store.
var ErrDecrypt = errors.New("session decryption failed")

const (
	// Versioned prefix to allow future key/algorithm rotations without data migrations.
	sessionCipherPrefixV1 = "v1:"

	keySize = 32 // AES-256
)

// SessionCodec encrypts session payloads with a list of AES-256-GCM keys and
// signs session identifiers with a dictionary of named HMAC-SHA256 keys.
//
// Encryption always uses the first configured key; decryption tries each key
// oldest-first so live sessions survive an encryption-key rotation. Signing
// uses the key named by currentSignKeyID; verification accepts any named key,
// so signing keys rotate without forcing re-login.
type SessionCodec struct {
	encKeys          [][]byte
	signKeys         map[string][]byte
	currentSignKeyID string
}

// CodecConfig groups the key material for NewSessionCodec.
type CodecConfig struct {
	// EncryptionKeys is the ordered list of 32-byte AES-256 keys.
	// The first key encrypts; all keys are tried for decryption.
	EncryptionKeys [][]byte
	// SigningKeys maps key id to HMAC secret.
	SigningKeys map[string][]byte
	// CurrentSigningKeyID names the SigningKeys entry used for new signatures.
	CurrentSigningKeyID string
}

// NewSessionCodec validates the key material and constructs a codec.
// Malformed configuration fails loudly here, never silently at first use.
func NewSessionCodec(cfg CodecConfig) (*SessionCodec, error) {
	if len(cfg.EncryptionKeys) == 0 {
		return nil, errors.New("at least one encryption key is required")
	}
	keys := make([][]byte, 0, len(cfg.EncryptionKeys))
	for i, k := range cfg.EncryptionKeys {
		if len(k) != keySize {
			return nil, fmt.Errorf("encryption key %d must be %d bytes, got %d", i, keySize, len(k))
		}
		keys = append(keys, append([]byte(nil), k...))
	}

	if len(cfg.SigningKeys) == 0 {
		return nil, errors.New("at least one signing key is required")
	}
	signKeys := make(map[string][]byte, len(cfg.SigningKeys))
	for id, k := range cfg.SigningKeys {
		if id == "" {
			return nil, errors.New("signing key id cannot be empty")
		}
		if len(k) == 0 {
			return nil, fmt.Errorf("signing key %q cannot be empty", id)
		}
		signKeys[id] = append([]byte(nil), k...)
	}
	if _, ok := signKeys[cfg.CurrentSigningKeyID]; !ok {
		return nil, fmt.Errorf("current signing key id %q is not in the signing key set", cfg.CurrentSigningKeyID)
	}

	return &SessionCodec{
		encKeys:          keys,
		signKeys:         signKeys,
		currentSignKeyID: cfg.CurrentSigningKeyID,
	}, nil
}

// Encrypt seals plaintext with the first configured key using a random nonce
// and returns a versioned base64 string storing nonce||ciphertext.
func (c *SessionCodec) Encrypt(plaintext []byte) (string, error) {
	gcm, err := newGCM(c.encKeys[0])
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, readErr := io.ReadFull(rand.Reader, nonce); readErr != nil {
		return "", readErr
	}
	ct := gcm.Seal(nil, nonce, plaintext, nil)
	buf := make([]byte, 0, len(nonce)+len(ct))
	buf = append(buf, nonce...)
	buf = append(buf, ct...)
	return sessionCipherPrefixV1 + base64.StdEncoding.EncodeToString(buf), nil
}

// Decrypt opens a versioned base64 string produced by Encrypt, trying each
// configured key in order. Every failure mode collapses to ErrDecrypt.
func (c *SessionCodec) Decrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, sessionCipherPrefixV1) {
		return nil, ErrDecrypt
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext[len(sessionCipherPrefixV1):])
	if err != nil {
		return nil, ErrDecrypt
	}

	for _, key := range c.encKeys {
		gcm, gcmErr := newGCM(key)
		if gcmErr != nil {
			return nil, ErrDecrypt
		}
		nonceSize := gcm.NonceSize()
		if len(data) < nonceSize {
			return nil, ErrDecrypt
		}
		pt, openErr := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
		if openErr == nil {
			return pt, nil
		}
	}
	return nil, ErrDecrypt
}

// Sign produces a detached "{key_id}:{hex_hmac}" signature over the session id
// using the current signing key.
func (c *SessionCodec) Sign(sessionID string) string {
	mac := hmac.New(sha256.New, c.signKeys[c.currentSignKeyID])
	mac.Write([]byte(sessionID))
	return c.currentSignKeyID + ":" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a detached signature against the session id. Unknown key ids
// and malformed signatures fail closed; the HMAC comparison is constant time.
func (c *SessionCodec) Verify(sessionID, signature string) bool {
	keyID, hexMAC, ok := strings.Cut(signature, ":")
	if !ok {
		return false
	}
	key, ok := c.signKeys[keyID]
	if !ok {
		return false
	}
	provided, err := hex.DecodeString(hexMAC)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(sessionID))
	return hmac.Equal(provided, mac.Sum(nil))
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
