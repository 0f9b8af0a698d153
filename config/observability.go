package config

import (
	"strings"
	"time"
)

// ObservabilityConfig groups configuration that controls metrics emission
// and external security notifications.
type ObservabilityConfig struct {
	Metrics ObservabilityMetricsConfig
	Notify  ObservabilityNotifyConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notify.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to external sinks such as StatsD.
type ObservabilityMetricsConfig struct {
	Enabled       bool   `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// ObservabilityNotifyConfig controls delivery of account lockout
// notifications to external sinks. A sink is active when its credential
// field is non-empty.
type ObservabilityNotifyConfig struct {
	SlackWebhookURL     string        `env:"OBSERVABILITY_NOTIFY_SLACK_WEBHOOK_URL"`
	SlackChannel        string        `env:"OBSERVABILITY_NOTIFY_SLACK_CHANNEL"`
	PagerDutyRoutingKey string        `env:"OBSERVABILITY_NOTIFY_PAGERDUTY_ROUTING_KEY"`
	AccountURLPrefix    string        `env:"OBSERVABILITY_NOTIFY_ACCOUNT_URL_PREFIX"`
	Timeout             time.Duration `env:"OBSERVABILITY_NOTIFY_TIMEOUT"     envDefault:"5s"`
	RetryLimit          int           `env:"OBSERVABILITY_NOTIFY_RETRY_LIMIT" envDefault:"2"`
}

// Sanitize normalises sink credentials and enforces safe defaults.
func (c *ObservabilityNotifyConfig) Sanitize() {
	c.SlackWebhookURL = strings.TrimSpace(c.SlackWebhookURL)
	c.PagerDutyRoutingKey = strings.TrimSpace(c.PagerDutyRoutingKey)
	c.AccountURLPrefix = strings.TrimSpace(c.AccountURLPrefix)
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
}
