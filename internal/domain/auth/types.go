package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
// Valid values are defined as constants below.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	RoleGuest Role = "guest"
)

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID    string // stable user identifier (e.g., samAccountName or sub)
	FirstName string
	LastName  string
	Email     string
	Groups    []string
	ExpiresAt time.Time // absolute expiry from IdP token

	// Tokens carries upstream credentials (access/refresh tokens) the
	// console proxies on the user's behalf. Stored opaquely in the
	// session payload, never interpreted by the session core.
	Tokens map[string]string
}

// User is the opaque identity payload carried inside a session. The session
// core never interprets it beyond Role; page and business logic read the rest.
type User struct {
	ID             string            `json:"id"`
	FirstName      string            `json:"first_name,omitempty"`
	LastName       string            `json:"last_name,omitempty"`
	Email          string            `json:"email,omitempty"`
	Role           Role              `json:"role"`
	Resources      []string          `json:"resources,omitempty"`
	AuthMethod     string            `json:"auth_method,omitempty"`
	UpstreamTokens map[string]string `json:"upstream_tokens,omitempty"`
}

// Merge returns a copy of u with the non-zero fields of updates applied.
// Used by session rotation to fold in privilege changes.
func (u User) Merge(updates *User) User {
	if updates == nil {
		return u
	}
	merged := u
	if updates.Role != "" {
		merged.Role = updates.Role
	}
	if updates.AuthMethod != "" {
		merged.AuthMethod = updates.AuthMethod
	}
	if updates.Resources != nil {
		merged.Resources = append([]string(nil), updates.Resources...)
	}
	if updates.UpstreamTokens != nil {
		merged.UpstreamTokens = updates.UpstreamTokens
	}
	return merged
}

// Device is the coarse client fingerprint stored at session creation when
// device binding is enabled: the client's masked IP network plus a hash of
// its user agent.
type Device struct {
	Subnet string `json:"subnet,omitempty"`
	UAHash string `json:"ua_hash,omitempty"`
}

// Equal compares two fingerprints.
func (d Device) Equal(other Device) bool {
	return d.Subnet == other.Subnet && d.UAHash == other.UAHash
}

// Fingerprint derives a Device from a client IP and user agent. v4Bits and
// v6Bits are the subnet mask widths applied to IPv4 and IPv6 addresses.
// An unparseable IP yields an empty subnet, which still compares stably.
func Fingerprint(clientIP, userAgent string, v4Bits, v6Bits int) Device {
	sum := sha256.Sum256([]byte(userAgent))
	d := Device{UAHash: hex.EncodeToString(sum[:])}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return d
	}
	if v4 := ip.To4(); v4 != nil {
		d.Subnet = v4.Mask(net.CIDRMask(v4Bits, 32)).String()
		return d
	}
	d.Subnet = ip.Mask(net.CIDRMask(v6Bits, 128)).String()
	return d
}

// Session is the server-side record binding an opaque identifier to an
// authenticated identity. CreatedAt anchors the absolute timeout and is
// preserved across rotation; IssuedAt is reset on rotation.
type Session struct {
	ID           string    `json:"id"`
	User         User      `json:"user"`
	CSRFToken    string    `json:"csrf_token"`
	CreatedAt    time.Time `json:"created_at"`
	IssuedAt     time.Time `json:"issued_at"`
	LastActivity time.Time `json:"last_activity"`
	Device       *Device   `json:"device,omitempty"`
}

// IsGuest returns true if the session role is guest.
func (s Session) IsGuest() bool { return s.User.Role == RoleGuest }
