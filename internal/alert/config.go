// Package alert delivers operator notifications for mediation events to
// webhook endpoints.
package alert

import "github.com/ppiankov/raspguard/internal/ratelimit"

// Event names a webhook can subscribe to.
const (
	EventBlocked     = "blocked"
	EventSinkFailure = "sink_failure"
	EventHookFailure = "hook_failure"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["blocked", "sink_failure", "hook_failure"]
	Headers map[string]string `yaml:"headers" json:"headers"`
	// Throttle caps deliveries per event and function. Zero means unlimited.
	Throttle ratelimit.Limit `yaml:"throttle" json:"throttle"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Function  string `json:"function"`
	Details   string `json:"details,omitempty"`
	Token     string `json:"token,omitempty"`
	Filename  string `json:"filename,omitempty"`
	IP        string `json:"ip,omitempty"`
	Error     string `json:"error,omitempty"`
}
