package host

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
)

// Table is an in-process dispatch table. It is safe for concurrent use.
type Table struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewTable creates an empty dispatch table.
func NewTable() *Table {
	return &Table{funcs: make(map[string]Func)}
}

// Define adds or overwrites an entry. Hosts call this while booting,
// before any interception is installed.
func (t *Table) Define(name string, fn Func) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[name] = fn
}

// Lookup returns the current implementation registered under name.
func (t *Table) Lookup(name string) (Func, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.funcs[name]
	return fn, ok
}

// Replace swaps the implementation for name and returns the previous one.
// Absent names are left untouched and reported with ErrNotFound.
func (t *Table) Replace(name string, fn Func) (Func, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	t.funcs[name] = fn
	return prev, nil
}

// Names returns all defined names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.funcs))
	for name := range t.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke calls the entry registered under name the way host code would,
// recording the caller's frame and the client address carried by ctx.
func (t *Table) Invoke(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := t.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	call := &Call{
		Name:       name,
		Args:       args,
		Caller:     callerFrame(2),
		RemoteAddr: RemoteAddrFrom(ctx),
		Context:    ctx,
	}
	return fn(call), nil
}

func callerFrame(skip int) Frame {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Frame{Function: Unknown, File: Unknown}
	}
	fr := Frame{Function: Unknown, File: file, Line: uint(line)}
	if f := runtime.FuncForPC(pc); f != nil {
		fr.Function = f.Name()
	}
	return fr
}
