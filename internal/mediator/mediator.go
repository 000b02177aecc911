// Package mediator decides, for every intercepted call, whether the
// original implementation runs. Each call is parsed, checked against the
// denylist, recorded in the audit sink, and then either blocked or
// forwarded unchanged.
package mediator

import (
	"log/slog"

	"github.com/ppiankov/raspguard/internal/denylist"
	"github.com/ppiankov/raspguard/internal/hook"
	"github.com/ppiankov/raspguard/internal/host"
)

// Recorder persists one decision. An error means the record was lost;
// the mediator proceeds regardless.
type Recorder interface {
	Log(call *host.Call, eventType, details string, blocked bool) error
}

// Decision is passed to the block observer.
type Decision struct {
	Op      string
	Command string
	Token   string
	Details string
	Call    *host.Call
}

// Mediator wraps operations into overrides.
type Mediator struct {
	registry *hook.Registry
	denylist *denylist.Denylist
	recorder Recorder
	logger   *slog.Logger
	onBlock  func(Decision)
}

// Option configures a Mediator.
type Option func(*Mediator)

// WithSlog sets the operator diagnostics logger.
func WithSlog(l *slog.Logger) Option {
	return func(m *Mediator) { m.logger = l }
}

// WithBlockObserver registers fn to run after every blocked call.
func WithBlockObserver(fn func(Decision)) Option {
	return func(m *Mediator) { m.onBlock = fn }
}

// New creates a Mediator. Originals are looked up in registry at call time.
func New(registry *hook.Registry, dl *denylist.Denylist, rec Recorder, opts ...Option) *Mediator {
	m := &Mediator{
		registry: registry,
		denylist: dl,
		recorder: rec,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Wrap returns the override for op.
func (m *Mediator) Wrap(op Operation) host.Func {
	return func(call *host.Call) any {
		return m.mediate(op, call)
	}
}

func (m *Mediator) mediate(op Operation, call *host.Call) any {
	var args []any
	if call != nil {
		args = call.Args
	}
	cmd, err := op.Parse(args)
	if err != nil {
		return host.False
	}

	verdict := m.denylist.Decide(cmd.Text)
	blocked := verdict == denylist.Block

	// A lost record has already been reported by the recorder.
	_ = m.recorder.Log(call, op.Name, cmd.Details, blocked)

	if blocked {
		m.blocked(op, cmd, call)
		return host.False
	}

	original, ok := m.registry.Original(op.Name)
	if !ok || original == nil {
		m.logger.Warn("original implementation missing", "function", op.Name)
		return host.False
	}
	return original(call)
}

func (m *Mediator) blocked(op Operation, cmd Command, call *host.Call) {
	if m.onBlock == nil || cmd.Text == nil {
		return
	}
	token, _ := m.denylist.Match(*cmd.Text)
	m.onBlock(Decision{
		Op:      op.Name,
		Command: *cmd.Text,
		Token:   token,
		Details: cmd.Details,
		Call:    call,
	})
}
