// Package shell is the native command host: Go implementations of the
// six process-spawning operations, registered into a host.Table under
// their conventional names. Each returns host.False when the process
// cannot be started or its arguments are malformed.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/ppiankov/raspguard/internal/host"
)

// Operation names.
const (
	OpExec      = "exec"
	OpSystem    = "system"
	OpPopen     = "popen"
	OpProcOpen  = "proc_open"
	OpShellExec = "shell_exec"
	OpPassthru  = "passthru"
)

// Operations lists every operation the native host defines.
var Operations = []string{OpExec, OpSystem, OpPopen, OpProcOpen, OpShellExec, OpPassthru}

// Options configures the native host.
type Options struct {
	Shell  string    // default /bin/sh
	Stdout io.Writer // destination for system and passthru; default os.Stdout
	Stderr io.Writer // child stderr; default os.Stderr
}

// Host runs commands for the registered operations.
type Host struct {
	shell  string
	stdout io.Writer
	stderr io.Writer
}

// New creates a Host with defaults applied.
func New(opts Options) *Host {
	h := &Host{shell: opts.Shell, stdout: opts.Stdout, stderr: opts.Stderr}
	if h.shell == "" {
		h.shell = "/bin/sh"
	}
	if h.stdout == nil {
		h.stdout = os.Stdout
	}
	if h.stderr == nil {
		h.stderr = os.Stderr
	}
	return h
}

// Register defines all six operations in t.
func (h *Host) Register(t *host.Table) {
	t.Define(OpExec, h.Exec)
	t.Define(OpSystem, h.System)
	t.Define(OpPopen, h.Popen)
	t.Define(OpProcOpen, h.ProcOpen)
	t.Define(OpShellExec, h.ShellExec)
	t.Define(OpPassthru, h.Passthru)
}

// Register defines all six operations in t using a Host built from opts.
func Register(t *host.Table, opts Options) *Host {
	h := New(opts)
	h.Register(t)
	return h
}

func (h *Host) command(call *host.Call, command string) *exec.Cmd {
	cmd := exec.CommandContext(callContext(call), h.shell, "-c", command)
	cmd.Stderr = h.stderr
	return cmd
}

func callContext(call *host.Call) context.Context {
	if call != nil && call.Context != nil {
		return call.Context
	}
	return context.Background()
}

// Exec runs command, appends each output line (trailing whitespace
// trimmed) to the optional *[]string, stores the exit status in the
// optional *int, and returns the last line.
//
//	exec(command string, output *[]string, resultCode *int) string|false
func (h *Host) Exec(call *host.Call) any {
	command, ok := call.Arg(0).(string)
	if !ok {
		return host.False
	}
	output, _ := call.Arg(1).(*[]string)
	resultCode, _ := call.Arg(2).(*int)

	cmd := h.command(call, command)
	out, err := cmd.Output()
	code, started := exitCode(err)
	if !started {
		return host.False
	}
	setCode(resultCode, code)

	lines := splitLines(out)
	if output != nil {
		*output = append(*output, lines...)
	}
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// System streams the command's output to the host stdout and returns the
// last line.
//
//	system(command string, resultCode *int) string|false
func (h *Host) System(call *host.Call) any {
	command, ok := call.Arg(0).(string)
	if !ok {
		return host.False
	}
	resultCode, _ := call.Arg(1).(*int)

	var captured bytes.Buffer
	cmd := h.command(call, command)
	cmd.Stdout = io.MultiWriter(h.stdout, &captured)
	code, started := exitCode(cmd.Run())
	if !started {
		return host.False
	}
	setCode(resultCode, code)

	lines := splitLines(captured.Bytes())
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

// Passthru streams raw output to the host stdout.
//
//	passthru(command string, resultCode *int) nil|false
func (h *Host) Passthru(call *host.Call) any {
	command, ok := call.Arg(0).(string)
	if !ok {
		return host.False
	}
	resultCode, _ := call.Arg(1).(*int)

	cmd := h.command(call, command)
	cmd.Stdout = h.stdout
	code, started := exitCode(cmd.Run())
	if !started {
		return host.False
	}
	setCode(resultCode, code)
	return nil
}

// ShellExec returns the complete output, or nil when there was none.
//
//	shell_exec(command string) string|nil|false
func (h *Host) ShellExec(call *host.Call) any {
	command, ok := call.Arg(0).(string)
	if !ok {
		return host.False
	}
	out, err := h.command(call, command).Output()
	if _, started := exitCode(err); !started {
		return host.False
	}
	if len(out) == 0 {
		return nil
	}
	return string(out)
}

// exitCode maps a Run/Output error to an exit status. started is false
// when the process could not be launched at all.
func exitCode(err error) (code int, started bool) {
	if err == nil {
		return 0, true
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal()), true
			}
			return status.ExitStatus(), true
		}
		return exitErr.ExitCode(), true
	}
	return -1, false
}

func setCode(dst *int, code int) {
	if dst != nil {
		*dst = code
	}
}

func splitLines(out []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), " \t\r\n\v\f"))
	}
	return lines
}
