package pagerduty

import (
	"strings"
	"testing"
	"time"

	"github.com/target/console-gate/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when routing key missing")
	}
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{
		RoutingKey: "key",
		Source:     "",
		Component:  "",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := notify.SecurityEventPayload{
		EventType: "account_locked",
		Account:   "jslowik",
		IP:        "203.0.113.7",
		Reason:    "failure_threshold",
	}
	event := client.buildEvent(payload)

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	if payloadSection["severity"] != notify.SeverityCritical {
		t.Fatalf("expected default severity, got %v", payloadSection["severity"])
	}
	if payloadSection["source"] != "console-gate" {
		t.Fatalf("expected default source, got %v", payloadSection["source"])
	}
	if payloadSection["component"] != "console-gate" {
		t.Fatalf("expected default component, got %v", payloadSection["component"])
	}

	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}

	required := []string{"event_type", "account", "source_ip", "reason"}
	for _, key := range required {
		if _, exists := custom[key]; !exists {
			t.Fatalf("expected key %s in custom details", key)
		}
	}

	dedup, _ := event["dedup_key"].(string)
	if !strings.Contains(dedup, "jslowik") {
		t.Fatalf("expected dedup key to reference the account, got %s", dedup)
	}
}

func TestBuildEventMetadataDoesNotOverrideCoreFields(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := client.buildEvent(notify.SecurityEventPayload{
		EventType: "account_locked",
		Account:   "jslowik",
		Metadata: map[string]string{
			"account":  "spoofed",
			"attempts": "5",
		},
	})

	payloadSection, ok := event["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected payload section")
	}
	custom, ok := payloadSection["custom_details"].(map[string]any)
	if !ok {
		t.Fatalf("expected custom details")
	}
	if custom["account"] != "jslowik" {
		t.Fatalf("expected core account to win, got %v", custom["account"])
	}
	if custom["attempts"] != "5" {
		t.Fatalf("expected metadata key to pass through, got %v", custom["attempts"])
	}
}
