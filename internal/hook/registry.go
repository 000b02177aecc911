// Package hook owns the mapping from intercepted operation name to the
// original implementation it displaced. It is the single source of truth
// for what is hooked.
package hook

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ppiankov/raspguard/internal/host"
)

var (
	// ErrAlreadyHooked is returned when installing over an active entry.
	ErrAlreadyHooked = errors.New("hook: already hooked")
	// ErrNotFound is returned when the name is absent from the dispatch table.
	ErrNotFound = errors.New("hook: function not found")
)

// Entry is one active interception.
type Entry struct {
	Name     string
	Original host.Func
	Override host.Func
}

// Registry installs and restores overrides on a host dispatcher.
// Install and Restore are rare single-writer events and take the write
// lock; call handling only reads through Original.
type Registry struct {
	dispatcher host.Dispatcher
	mu         sync.RWMutex
	entries    map[string]*Entry
	order      []string // install order, for RestoreAll
}

// NewRegistry creates a Registry over the given dispatcher.
func NewRegistry(d host.Dispatcher) *Registry {
	return &Registry{
		dispatcher: d,
		entries:    make(map[string]*Entry),
	}
}

// Install captures the current implementation of name and replaces it
// with override. The original is captured before the dispatch entry is
// touched; on NotFound nothing is mutated.
func (r *Registry) Install(name string, override host.Func) (host.Func, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyHooked, name)
	}

	original, ok := r.dispatcher.Lookup(name)
	if !ok || original == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	prev, err := r.dispatcher.Replace(name, override)
	if err != nil {
		if errors.Is(err, host.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("hook: replace %s: %w", name, err)
	}
	if prev != nil {
		// the entry seen at replace time is the one to give back
		original = prev
	}

	r.entries[name] = &Entry{Name: name, Original: original, Override: override}
	r.order = append(r.order, name)
	return original, nil
}

// Restore writes the original implementation back and clears the entry.
// Restoring a name that is not hooked is a no-op.
func (r *Registry) Restore(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.restoreLocked(name)
}

func (r *Registry) restoreLocked(name string) error {
	entry, ok := r.entries[name]
	if !ok {
		return nil
	}
	if _, err := r.dispatcher.Replace(name, entry.Original); err != nil {
		return fmt.Errorf("hook: restore %s: %w", name, err)
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// RestoreAll restores every entry in reverse install order and returns
// the joined errors of any that failed.
func (r *Registry) RestoreAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	names := append([]string(nil), r.order...)
	for i := len(names) - 1; i >= 0; i-- {
		if err := r.restoreLocked(names[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Original returns the implementation displaced by the override for name.
func (r *Registry) Original(name string) (host.Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return entry.Original, true
}

// IsHooked reports whether name currently has an active entry.
func (r *Registry) IsHooked(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Hooked returns the names of active entries, sorted.
func (r *Registry) Hooked() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
