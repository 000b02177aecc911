// Package ratelimit counts events per key in fixed windows.
package ratelimit

import "time"

// Limit is the number of events allowed per window.
// Zero values mean no limit.
type Limit struct {
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window"       json:"window"`
}

// Enabled returns true if the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.MaxRequests > 0 && l.Window > 0
}
