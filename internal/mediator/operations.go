package mediator

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/raspguard/internal/shell"
)

// Placeholders logged in place of a proc_open command that is not a string.
const (
	ArrayPlaceholder   = "[Array Command]"
	UnknownPlaceholder = "[Unknown Command Type]"
)

// Command is what the mediator extracted from one call's arguments.
type Command struct {
	// Text is inspected by the denylist. Nil when the operation carries
	// no command string.
	Text *string
	// Details is the human-readable audit description.
	Details string
}

// Operation describes how to read the command out of one intercepted
// function's arguments.
type Operation struct {
	Name  string
	Parse func(args []any) (Command, error)
}

// ParseError reports arguments that do not match an operation's signature.
type ParseError struct {
	Op     string
	Index  int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: argument %d: %s", e.Op, e.Index, e.Reason)
}

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// optional checks that an out-parameter, when present, has the native type.
func optional[T any](op string, args []any, i int) error {
	v := argAt(args, i)
	if v == nil {
		return nil
	}
	if _, ok := v.(T); !ok {
		return &ParseError{Op: op, Index: i, Reason: fmt.Sprintf("unexpected type %T", v)}
	}
	return nil
}

func commandArg(op string, args []any) (string, error) {
	if len(args) == 0 {
		return "", &ParseError{Op: op, Index: 0, Reason: "missing command"}
	}
	s, ok := args[0].(string)
	if !ok {
		return "", &ParseError{Op: op, Index: 0, Reason: fmt.Sprintf("expected string, got %T", args[0])}
	}
	return s, nil
}

func simple(op string, args []any) (Command, error) {
	cmd, err := commandArg(op, args)
	if err != nil {
		return Command{}, err
	}
	return Command{Text: &cmd, Details: op + " executed: " + cmd}, nil
}

// Exec mediates exec(command, *[]string, *int).
var Exec = Operation{
	Name: shell.OpExec,
	Parse: func(args []any) (Command, error) {
		if err := optional[*[]string](shell.OpExec, args, 1); err != nil {
			return Command{}, err
		}
		if err := optional[*int](shell.OpExec, args, 2); err != nil {
			return Command{}, err
		}
		return simple(shell.OpExec, args)
	},
}

// System mediates system(command, *int).
var System = Operation{
	Name: shell.OpSystem,
	Parse: func(args []any) (Command, error) {
		if err := optional[*int](shell.OpSystem, args, 1); err != nil {
			return Command{}, err
		}
		return simple(shell.OpSystem, args)
	},
}

// Passthru mediates passthru(command, *int).
var Passthru = Operation{
	Name: shell.OpPassthru,
	Parse: func(args []any) (Command, error) {
		if err := optional[*int](shell.OpPassthru, args, 1); err != nil {
			return Command{}, err
		}
		return simple(shell.OpPassthru, args)
	},
}

// ShellExec mediates shell_exec(command).
var ShellExec = Operation{
	Name: shell.OpShellExec,
	Parse: func(args []any) (Command, error) {
		return simple(shell.OpShellExec, args)
	},
}

// Popen mediates popen(command, mode). Both arguments are required.
var Popen = Operation{
	Name: shell.OpPopen,
	Parse: func(args []any) (Command, error) {
		cmd, err := commandArg(shell.OpPopen, args)
		if err != nil {
			return Command{}, err
		}
		mode, ok := argAt(args, 1).(string)
		if !ok {
			return Command{}, &ParseError{Op: shell.OpPopen, Index: 1, Reason: "missing mode"}
		}
		return Command{
			Text:    &cmd,
			Details: fmt.Sprintf("popen executed: %s, mode: %s", cmd, mode),
		}, nil
	},
}

// ProcOpen mediates proc_open(command, descriptors, *pipes, cwd, env).
// A vector command is inspected as its string elements joined by single
// spaces and logged as ArrayPlaceholder. Any other command type is not
// inspected, logged as UnknownPlaceholder and forwarded.
var ProcOpen = Operation{
	Name: shell.OpProcOpen,
	Parse: func(args []any) (Command, error) {
		const op = shell.OpProcOpen
		var (
			text  *string
			shown string
		)
		switch c := argAt(args, 0).(type) {
		case string:
			text, shown = &c, c
		case []string:
			joined := strings.Join(c, " ")
			text, shown = &joined, ArrayPlaceholder
		case []any:
			joined := strings.Join(stringElems(c), " ")
			text, shown = &joined, ArrayPlaceholder
		case nil:
			return Command{}, &ParseError{Op: op, Index: 0, Reason: "missing command"}
		default:
			shown = UnknownPlaceholder
		}

		if _, ok := argAt(args, 1).([]shell.Descriptor); !ok {
			return Command{}, &ParseError{Op: op, Index: 1, Reason: "missing descriptors"}
		}
		if err := optional[*[]*os.File](op, args, 2); err != nil {
			return Command{}, err
		}
		if err := optional[string](op, args, 3); err != nil {
			return Command{}, err
		}
		if err := optional[[]string](op, args, 4); err != nil {
			return Command{}, err
		}

		cwd, _ := argAt(args, 3).(string)
		if cwd == "" {
			cwd = "N/A"
		}
		return Command{
			Text:    text,
			Details: fmt.Sprintf("proc_open executed: %s, cwd: %s", shown, cwd),
		}, nil
	},
}

func stringElems(elems []any) []string {
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Builtin returns the operation for one of the six native names.
func Builtin(name string) (Operation, bool) {
	switch name {
	case shell.OpExec:
		return Exec, true
	case shell.OpSystem:
		return System, true
	case shell.OpPopen:
		return Popen, true
	case shell.OpProcOpen:
		return ProcOpen, true
	case shell.OpShellExec:
		return ShellExec, true
	case shell.OpPassthru:
		return Passthru, true
	}
	return Operation{}, false
}

// Generic mediates an arbitrary function registered at runtime. It never
// fails to parse; the first string argument, if any, is inspected.
func Generic(name string) Operation {
	return Operation{
		Name: name,
		Parse: func(args []any) (Command, error) {
			c := Command{Details: "Function executed: " + name}
			for _, a := range args {
				if s, ok := a.(string); ok {
					c.Text = &s
					break
				}
			}
			return c, nil
		},
	}
}
