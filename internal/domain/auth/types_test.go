package auth

import (
	"testing"
	"time"
)

func TestSession_IsGuest(t *testing.T) {
	s := Session{User: User{Role: RoleGuest}}
	if !s.IsGuest() {
		t.Fatalf("expected guest")
	}
	if (Session{User: User{Role: RoleUser}}).IsGuest() {
		t.Fatalf("did not expect guest")
	}
}

func TestIdentity_SimpleFields(t *testing.T) {
	id := Identity{UserID: "u", Email: "e", ExpiresAt: time.Now().Add(time.Hour)}
	if id.UserID != "u" || id.Email != "e" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestUser_Merge(t *testing.T) {
	base := User{ID: "u1", Role: RoleUser, AuthMethod: "password"}

	merged := base.Merge(&User{Role: RoleAdmin, Resources: []string{"orders"}})
	if merged.Role != RoleAdmin {
		t.Fatalf("expected role upgrade, got %q", merged.Role)
	}
	if merged.ID != "u1" || merged.AuthMethod != "password" {
		t.Fatalf("merge must preserve unset fields: %+v", merged)
	}
	if len(merged.Resources) != 1 || merged.Resources[0] != "orders" {
		t.Fatalf("unexpected resources: %v", merged.Resources)
	}

	if got := base.Merge(nil); got.Role != RoleUser {
		t.Fatalf("nil updates must be a no-op: %+v", got)
	}
}

func TestFingerprint_SubnetMasking(t *testing.T) {
	a := Fingerprint("10.0.0.5", "agent", 24, 64)
	b := Fingerprint("10.0.0.8", "agent", 24, 64)
	c := Fingerprint("10.0.1.5", "agent", 24, 64)

	if !a.Equal(b) {
		t.Fatalf("same /24 must match: %+v vs %+v", a, b)
	}
	if a.Equal(c) {
		t.Fatalf("different /24 must not match: %+v vs %+v", a, c)
	}

	d := Fingerprint("10.0.0.5", "other-agent", 24, 64)
	if a.Equal(d) {
		t.Fatalf("different user agent must not match")
	}
}

func TestFingerprint_UnparseableIP(t *testing.T) {
	a := Fingerprint("not-an-ip", "agent", 24, 64)
	b := Fingerprint("also-bad", "agent", 24, 64)
	if a.Subnet != "" || !a.Equal(b) {
		t.Fatalf("unparseable IPs must yield empty, stable subnets: %+v vs %+v", a, b)
	}
}
