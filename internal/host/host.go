// Package host models the runtime boundary raspguard mediates: a
// name-indexed dispatch table of callable implementations, the identity
// of the calling frame, and the request-scoped client address.
package host

import (
	"context"
	"errors"
)

// False is the canonical failure value every mediated operation returns
// when its arguments cannot be parsed or the call is blocked.
const False = false

// Unknown is the placeholder used for any call attribute the host cannot supply.
const Unknown = "unknown"

// ErrNotFound is returned when a name is absent from the dispatch table.
var ErrNotFound = errors.New("host: function not found")

// Func is one callable implementation in the dispatch table.
// Out-parameters are passed as pointers inside Args and must be
// populated in place.
type Func func(call *Call) any

// Frame identifies the code that invoked an operation.
type Frame struct {
	Function string
	File     string
	Line     uint
}

// Call is the context of one invocation. It lives for the duration of
// the call only.
type Call struct {
	Name       string
	Args       []any
	Caller     Frame
	RemoteAddr string
	Context    context.Context
}

// Arg returns the i-th argument, or nil when absent.
func (c *Call) Arg(i int) any {
	if c == nil || i < 0 || i >= len(c.Args) {
		return nil
	}
	return c.Args[i]
}

// Dispatcher is the capability raspguard needs from a host: read an entry
// by name and replace it, receiving the previous implementation.
type Dispatcher interface {
	Lookup(name string) (Func, bool)
	Replace(name string, fn Func) (Func, error)
}
