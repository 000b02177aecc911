package shell

import (
	"errors"
	"io"
	"os"
	"os/exec"

	"github.com/ppiankov/raspguard/internal/host"
)

var (
	// ErrWrongDirection is returned when reading a write pipe or writing a read pipe.
	ErrWrongDirection = errors.New("shell: pipe opened in the other direction")
	// ErrWait is returned when the child could not be waited for.
	ErrWait = errors.New("shell: wait failed")
)

// Pipe is the handle popen returns: the read end of the child's stdout
// (mode "r") or the write end of its stdin (mode "w").
type Pipe struct {
	cmd *exec.Cmd
	r   io.ReadCloser
	w   io.WriteCloser
}

// Read reads child output. Only valid for mode "r".
func (p *Pipe) Read(b []byte) (int, error) {
	if p.r == nil {
		return 0, ErrWrongDirection
	}
	return p.r.Read(b)
}

// Write feeds child input. Only valid for mode "w".
func (p *Pipe) Write(b []byte) (int, error) {
	if p.w == nil {
		return 0, ErrWrongDirection
	}
	return p.w.Write(b)
}

// Close closes the pipe, waits for the child and returns its exit status.
func (p *Pipe) Close() (int, error) {
	if p.w != nil {
		p.w.Close()
	}
	if p.r != nil {
		// drain so the child is not blocked on a full pipe
		io.Copy(io.Discard, p.r)
	}
	code, started := exitCode(p.cmd.Wait())
	if !started {
		return -1, ErrWait
	}
	return code, nil
}

// Popen starts command with a unidirectional pipe.
//
//	popen(command string, mode string) *Pipe|false
func (h *Host) Popen(call *host.Call) any {
	command, ok := call.Arg(0).(string)
	if !ok {
		return host.False
	}
	mode, ok := call.Arg(1).(string)
	if !ok || mode == "" {
		return host.False
	}

	cmd := h.command(call, command)
	p := &Pipe{cmd: cmd}
	var err error
	switch mode[0] {
	case 'r':
		p.r, err = cmd.StdoutPipe()
	case 'w':
		cmd.Stdout = h.stdout
		p.w, err = cmd.StdinPipe()
	default:
		return host.False
	}
	if err != nil {
		return host.False
	}
	if err := cmd.Start(); err != nil {
		return host.False
	}
	return p
}

// Descriptor describes how one of the child's standard streams is wired
// by proc_open. Index in the descriptor slice is the fd (0, 1, 2). An
// empty Kind leaves stdin and stdout on /dev/null and stderr on the host.
type Descriptor struct {
	Kind string // "pipe", "file", "inherit" or ""
	Mode string // "r" or "w" from the child's point of view
	Path string // for "file"
}

// Process is the handle proc_open returns.
type Process struct {
	cmd   *exec.Cmd
	pipes []*os.File
}

// Pid returns the child's process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Close closes any parent-side pipes still open, waits for the child
// and returns its exit status.
func (p *Process) Close() (int, error) {
	for _, f := range p.pipes {
		if f != nil {
			f.Close()
		}
	}
	code, started := exitCode(p.cmd.Wait())
	if !started {
		return -1, ErrWait
	}
	return code, nil
}

// ProcOpen starts a command with per-descriptor wiring. A []string
// command is executed directly without a shell. Parent-side pipe ends
// are stored in *pipes at their descriptor index.
//
//	proc_open(command string|[]string, descriptors []Descriptor, pipes *[]*os.File, cwd string, env []string) *Process|false
func (h *Host) ProcOpen(call *host.Call) any {
	var cmd *exec.Cmd
	switch c := call.Arg(0).(type) {
	case string:
		cmd = exec.CommandContext(callContext(call), h.shell, "-c", c)
	case []string:
		if len(c) == 0 {
			return host.False
		}
		cmd = exec.CommandContext(callContext(call), c[0], c[1:]...)
	case []any:
		argv := make([]string, 0, len(c))
		for _, e := range c {
			s, ok := e.(string)
			if !ok {
				return host.False
			}
			argv = append(argv, s)
		}
		if len(argv) == 0 {
			return host.False
		}
		cmd = exec.CommandContext(callContext(call), argv[0], argv[1:]...)
	default:
		return host.False
	}

	descriptors, ok := call.Arg(1).([]Descriptor)
	if !ok || len(descriptors) > 3 {
		return host.False
	}
	pipes, _ := call.Arg(2).(*[]*os.File)
	if cwd, ok := call.Arg(3).(string); ok && cwd != "" {
		cmd.Dir = cwd
	}
	if env, ok := call.Arg(4).([]string); ok && env != nil {
		cmd.Env = env
	}

	parent := make([]*os.File, len(descriptors))
	var child []*os.File
	closeAll := func() {
		for _, f := range append(parent, child...) {
			if f != nil {
				f.Close()
			}
		}
	}

	for fd, d := range descriptors {
		var f *os.File
		switch d.Kind {
		case "pipe":
			r, w, err := os.Pipe()
			if err != nil {
				closeAll()
				return host.False
			}
			if fd == 0 {
				f, parent[fd] = r, w
			} else {
				f, parent[fd] = w, r
			}
		case "file":
			flag := os.O_RDONLY
			if d.Mode != "r" {
				flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}
			opened, err := os.OpenFile(d.Path, flag, 0644)
			if err != nil {
				closeAll()
				return host.False
			}
			f = opened
		case "inherit":
			switch fd {
			case 0:
				cmd.Stdin = os.Stdin
			case 1:
				cmd.Stdout = h.stdout
			case 2:
				cmd.Stderr = h.stderr
			}
			continue
		case "":
			continue
		default:
			closeAll()
			return host.False
		}
		child = append(child, f)
		switch fd {
		case 0:
			cmd.Stdin = f
		case 1:
			cmd.Stdout = f
		case 2:
			cmd.Stderr = f
		}
	}
	if cmd.Stderr == nil {
		cmd.Stderr = h.stderr
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return host.False
	}
	for _, f := range child {
		f.Close()
	}
	if pipes != nil {
		*pipes = parent
	}
	return &Process{cmd: cmd, pipes: parent}
}
