// Package rasp wires the interception pipeline into a host: it loads the
// denylist, builds the audit logger and mediator, and installs the
// configured hooks through the registry.
package rasp

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/raspguard/internal/alert"
	"github.com/ppiankov/raspguard/internal/audit"
	"github.com/ppiankov/raspguard/internal/denylist"
	"github.com/ppiankov/raspguard/internal/hook"
	"github.com/ppiankov/raspguard/internal/host"
	"github.com/ppiankov/raspguard/internal/mediator"
)

// Module is a loaded interception pipeline.
type Module struct {
	cfg      *Config
	registry *hook.Registry
	mediator *mediator.Mediator
	audit    *audit.Logger
	denylist *denylist.Denylist
	alerts   *alert.Dispatcher
	logger   *slog.Logger
}

type options struct {
	logger   *slog.Logger
	denylist *denylist.Denylist
	now      func() time.Time
}

// Option configures Start.
type Option func(*options)

// WithSlog sets the operator diagnostics logger.
func WithSlog(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDenylist uses dl instead of loading one from the configuration.
func WithDenylist(dl *denylist.Denylist) Option {
	return func(o *options) { o.denylist = dl }
}

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Start builds the pipeline over d and installs every configured hook.
// A hook that cannot be installed is reported and skipped; in strict mode
// the hooks installed so far are restored and the error is returned.
func Start(d host.Dispatcher, cfg *Config, opts ...Option) (*Module, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := options{logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	dl := o.denylist
	if dl == nil {
		loaded, err := denylist.Load(cfg.DenylistPath)
		if err != nil {
			return nil, fmt.Errorf("load denylist: %w", err)
		}
		dl = loaded
	}

	m := &Module{
		cfg:      cfg,
		registry: hook.NewRegistry(d),
		denylist: dl,
		alerts:   alert.NewDispatcher(cfg.Alerts, o.logger),
		logger:   o.logger,
	}
	m.audit = audit.NewLogger(cfg.AuditPath,
		audit.WithSlog(o.logger),
		audit.WithClock(o.now),
		audit.WithFailureHook(m.sinkFailed),
	)
	m.mediator = mediator.New(m.registry, dl, m.audit,
		mediator.WithSlog(o.logger),
		mediator.WithBlockObserver(m.blocked),
	)

	for _, name := range cfg.Hooks {
		err := m.install(name)
		if err == nil {
			continue
		}
		m.hookFailed(name, err)
		if cfg.Strict {
			if rerr := m.registry.RestoreAll(); rerr != nil {
				err = errors.Join(err, rerr)
			}
			return nil, fmt.Errorf("install %s: %w", name, err)
		}
		m.logger.Warn("hook not installed", "function", name, "err", err)
	}

	m.logger.Info("raspguard loaded",
		"hooks", len(m.registry.Hooked()),
		"denylist", dl.Len(),
		"audit_path", m.audit.Path(),
	)
	return m, nil
}

func (m *Module) install(name string) error {
	op, ok := mediator.Builtin(name)
	if !ok {
		op = mediator.Generic(name)
	}
	_, err := m.registry.Install(name, m.mediator.Wrap(op))
	return err
}

// AddOverride intercepts name at runtime. The six process-spawning
// names use their own argument parser; anything else is mediated
// generically.
func (m *Module) AddOverride(name string) error {
	if err := m.install(name); err != nil {
		m.hookFailed(name, err)
		return err
	}
	return nil
}

// RemoveOverride restores the original implementation of name.
func (m *Module) RemoveOverride(name string) error {
	return m.registry.Restore(name)
}

// Shutdown restores every hook, most recent first.
func (m *Module) Shutdown() error {
	return m.registry.RestoreAll()
}

// Hooked lists the intercepted names, sorted.
func (m *Module) Hooked() []string {
	return m.registry.Hooked()
}

// Denylist returns the active denylist.
func (m *Module) Denylist() *denylist.Denylist {
	return m.denylist
}

// AuditPath returns the audit sink path.
func (m *Module) AuditPath() string {
	return m.audit.Path()
}

func (m *Module) blocked(d mediator.Decision) {
	ev := alert.AlertEvent{
		Timestamp: time.Now().Format(audit.TimestampFormat),
		Event:     alert.EventBlocked,
		Function:  d.Op,
		Details:   d.Details,
		Token:     d.Token,
	}
	if d.Call != nil {
		ev.Filename = d.Call.Caller.File
		ev.IP = d.Call.RemoteAddr
	}
	m.alerts.Dispatch(ev)
}

func (m *Module) sinkFailed(rec audit.Record, err error) {
	m.alerts.Dispatch(alert.AlertEvent{
		Timestamp: rec.Timestamp,
		Event:     alert.EventSinkFailure,
		Function:  rec.Type,
		Details:   rec.Details,
		Filename:  rec.Filename,
		IP:        rec.IP,
		Error:     err.Error(),
	})
}

func (m *Module) hookFailed(name string, err error) {
	m.alerts.Dispatch(alert.AlertEvent{
		Timestamp: time.Now().Format(audit.TimestampFormat),
		Event:     alert.EventHookFailure,
		Function:  name,
		Error:     err.Error(),
	})
}
