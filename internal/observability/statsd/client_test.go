package statsd

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestCleanName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		" auth/login ":   "auth_login",
		"conn..lifetime": "conn.lifetime",
		"two  spaces":    "two__spaces",
		".admit.":        "admit",
		"":               "",
	}

	for input, want := range tests {
		if got := cleanName(input); got != want {
			t.Fatalf("cleanName(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestEncodeTags(t *testing.T) {
	t.Parallel()

	base := encodeTags(map[string]string{
		"env": "prod",
		//nolint:gocritic // whitespace is part of the test case
		" service ": " gateway ",
	}, "")

	got := encodeTags(map[string]string{
		"result": " denied ",
		"":       "ignored",
		"env":    "stage",
	}, base)
	want := "|#env:stage,result:denied,service:gateway"

	if got != want {
		t.Fatalf("encodeTags mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestEncodeTagsEmpty(t *testing.T) {
	t.Parallel()

	if got := encodeTags(nil, ""); got != "" {
		t.Fatalf("encodeTags(nil, \"\") = %q, want empty string", got)
	}
}

func TestClientEmitsWireFormat(t *testing.T) {
	t.Parallel()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer pc.Close()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    pc.LocalAddr().String(),
		Prefix:     "console_gate.",
		GlobalTags: map[string]string{"env": "test"},
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	defer client.Close()

	client.Count("auth.login", 1, map[string]string{"result": "success"})

	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	got := string(buf[:n])
	want := "console_gate.auth.login:1|c|#env:test,result:success"
	if got != want {
		t.Fatalf("wire line mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestClientEnabledAndClose(t *testing.T) {
	t.Parallel()

	clientConn, peerConn := net.Pipe()
	defer peerConn.Close()

	client := &Client{
		enabled: true,
		conn:    clientConn,
	}

	if !client.Enabled() {
		t.Fatal("expected client.Enabled to report true with active connection")
	}

	if err := client.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client.Enabled to report false after Close")
	}

	// Verify Close can be called again without error.
	if err := client.Close(); err != nil {
		t.Fatalf("Close (second call) error: %v", err)
	}

	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatal("nil client should report disabled")
	}
	if err := nilClient.Close(); err != nil {
		t.Fatalf("nil client Close error: %v", err)
	}
}

func TestNewClientDisabledWithoutAddress(t *testing.T) {
	t.Parallel()

	client, err := NewClient(Config{
		Enabled: true,
		Address: "   ",
	})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}

	if client.Enabled() {
		t.Fatal("expected client to stay disabled when address is empty")
	}

	// A disabled client swallows emissions instead of panicking.
	client.Count("auth.login", 1, nil)
	client.Gauge("conn.active", 3, nil)
	client.Timing("auth.exchange", time.Second, nil)
}

func TestNewClientDialError(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{
		Enabled: true,
		Address: "bad address",
	})
	if err == nil {
		t.Fatal("expected NewClient to error for invalid address")
	}
	if !strings.Contains(err.Error(), "statsd dial") {
		t.Fatalf("unexpected error: %v", err)
	}
}
