package alert

import (
	"log/slog"
	"time"

	"github.com/ppiankov/raspguard/internal/ratelimit"
	"github.com/ppiankov/raspguard/internal/redact"
)

type target struct {
	cfg     AlertConfig
	tracker *ratelimit.Tracker
}

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	targets []target
	logger  *slog.Logger
	now     func() time.Time
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty (callers should nil-check).
func NewDispatcher(configs []AlertConfig, logger *slog.Logger) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger, now: time.Now}
	for _, cfg := range configs {
		d.targets = append(d.targets, target{cfg: cfg, tracker: ratelimit.NewTracker(cfg.Throttle)})
	}
	return d
}

// Dispatch sends the event to all webhooks whose Events list contains
// event.Event. Credentials in the details are masked first. Delivery
// runs in goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	event.Details = redact.Scrub(event.Details)
	now := d.now()
	for _, t := range d.targets {
		if !matches(t.cfg.Events, event) {
			continue
		}
		if r := t.tracker.Allow(event.Event+"/"+event.Function, now); r.Exceeded {
			d.logger.Debug("alert throttled", "url", t.cfg.URL, "event", event.Event,
				"count", r.Current, "limit", r.Limit)
			continue
		}
		go d.send(t.cfg, event)
	}
}

func (d *Dispatcher) send(cfg AlertConfig, event AlertEvent) {
	if err := Send(cfg, event); err != nil {
		d.logger.Warn("alert delivery failed", "url", cfg.URL, "event", event.Event, "err", err)
	}
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if e == event.Event {
			return true
		}
	}
	return false
}
