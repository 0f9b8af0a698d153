package slack

import (
	"strings"
	"testing"
	"time"

	"github.com/target/console-gate/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#security",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.SecurityEventPayload{
		EventType: "account_locked",
		Account:   "jslowik",
		SessionID: "sess-42",
		IP:        "203.0.113.7",
		Reason:    "failure_threshold",
		Severity:  notify.SeverityCritical,
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#security" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Account lockout alert", "jslowik", "sess-42", "203.0.113.7", "failure_threshold", "critical"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageAccountLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:       "https://hooks.slack.com/services/test",
		AccountURLPrefix: "https://console.example.com/admin/accounts",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.SecurityEventPayload{
		EventType: "account_locked",
		Account:   "jslowik",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	expected := "<https://console.example.com/admin/accounts/jslowik|jslowik>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected account link %q in text: %s", expected, text)
	}
}

func TestFormatMessageEscapesAccount(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.SecurityEventPayload{
		EventType: "account_locked",
		Account:   "user & <admin>",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	if !strings.Contains(text, "user &amp; &lt;admin&gt;") {
		t.Fatalf("expected escaped account, got: %s", text)
	}
}

func TestFormatAccountValuePermutations(t *testing.T) {
	tcs := []struct {
		name    string
		account string
		prefix  string
		want    string
	}{
		{
			name:    "account with link",
			account: "jslowik",
			prefix:  "https://console.example.com/admin/accounts",
			want:    "<https://console.example.com/admin/accounts/jslowik|jslowik>",
		},
		{
			name:    "account without link",
			account: "jslowik",
			prefix:  "not a url",
			want:    "jslowik",
		},
		{
			name:   "empty account",
			prefix: "https://console.example.com/admin/accounts",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:       "https://hooks.slack.com/services/test",
				AccountURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatAccountValue(tc.account)
			if got != tc.want {
				t.Fatalf("formatAccountValue(%q) = %q, want %q", tc.account, got, tc.want)
			}
		})
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
