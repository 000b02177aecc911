package audit

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/raspguard/internal/host"
	"github.com/ppiankov/raspguard/internal/provenance"
)

// DefaultPath is the sink used when no path is configured.
const DefaultPath = "/var/www/logfile.log"

// Logger appends one record per intercepted call to an append-only
// JSONL file. The file is opened and closed on every append; no handle
// or lock is held between calls, so concurrent writers rely on O_APPEND.
type Logger struct {
	path      string
	logger    *slog.Logger
	onFailure func(Record, error)
	now       func() time.Time
	resolve   func(raw string) provenance.Record
}

// Option configures a Logger.
type Option func(*Logger)

// WithSlog sets the operator diagnostics logger. Defaults to slog.Default().
func WithSlog(l *slog.Logger) Option {
	return func(lg *Logger) { lg.logger = l }
}

// WithFailureHook registers a callback run after a record could not be
// persisted, in addition to the operator warning.
func WithFailureHook(fn func(Record, error)) Option {
	return func(lg *Logger) { lg.onFailure = fn }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(lg *Logger) { lg.now = now }
}

// NewLogger creates a Logger writing to path (DefaultPath when empty).
func NewLogger(path string, opts ...Option) *Logger {
	if path == "" {
		path = DefaultPath
	}
	l := &Logger{
		path:    path,
		logger:  slog.Default(),
		now:     time.Now,
		resolve: provenance.Resolve,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Path returns the sink path.
func (l *Logger) Path() string {
	return l.path
}

// Log builds the record for one intercepted call and appends it.
// A non-nil error means the event was lost; it has already been
// reported to the operator and the call should proceed regardless.
func (l *Logger) Log(call *host.Call, eventType, details string, blocked bool) error {
	return l.Append(l.Build(call, eventType, details, blocked))
}

// Build assembles a record from the call context and provenance of the
// calling frame. Missing context yields Unknown placeholders.
func (l *Logger) Build(call *host.Call, eventType, details string, blocked bool) Record {
	rec := Record{
		Timestamp:  l.now().Format(TimestampFormat),
		Type:       eventType,
		Details:    details,
		WasBlocked: blocked,
	}
	if call == nil {
		return rec.normalized()
	}

	rec.Caller = call.Caller.Function
	rec.IP = call.RemoteAddr

	prov := l.resolve(call.Caller.File)
	rec.Filename = prov.Path
	rec.FileHash = prov.FileHash
	rec.ModifiedTime = prov.ModifiedTime
	rec.IsEval = prov.IsEval
	if prov.IsEval {
		rec.Line = prov.EvalLine
	} else {
		rec.Line = call.Caller.Line
	}
	return rec.normalized()
}

// Append writes rec as one line to the sink.
func (l *Logger) Append(rec Record) error {
	line, err := Encode(rec)
	if err == nil {
		err = appendLine(l.path, line)
	}
	if err != nil {
		l.report(rec, err)
		return err
	}
	return nil
}

func (l *Logger) report(rec Record, err error) {
	l.logger.Warn("audit record lost",
		"path", l.path,
		"type", rec.Type,
		"was_blocked", rec.WasBlocked,
		"err", err,
	)
	if l.onFailure != nil {
		l.onFailure(rec, err)
	}
}

// appendLine opens path for appending, writes line in one call, and closes it.
func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0750); mkErr != nil {
			return fmt.Errorf("audit: create directory: %w", mkErr)
		}
		f, err = os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	}
	if err != nil {
		return fmt.Errorf("audit: open sink: %w", err)
	}

	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("audit: write entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audit: close sink: %w", err)
	}
	return nil
}
