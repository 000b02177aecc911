package mediator

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/raspguard/internal/audit"
	"github.com/ppiankov/raspguard/internal/denylist"
	"github.com/ppiankov/raspguard/internal/hook"
	"github.com/ppiankov/raspguard/internal/host"
	"github.com/ppiankov/raspguard/internal/shell"
)

type fixture struct {
	table    *host.Table
	registry *hook.Registry
	logPath  string
	calls    map[string]int
	lastArgs []any
}

// newFixture defines counting stubs for every builtin and hooks them.
func newFixture(t *testing.T, logPath string, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{table: host.NewTable(), logPath: logPath, calls: map[string]int{}}
	for _, name := range shell.Operations {
		name := name
		f.table.Define(name, func(call *host.Call) any {
			f.calls[name]++
			f.lastArgs = call.Args
			if code, ok := call.Arg(1).(*int); ok {
				*code = 7
			}
			return "original:" + name
		})
	}
	f.registry = hook.NewRegistry(f.table)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := audit.NewLogger(logPath, audit.WithSlog(quiet))
	m := New(f.registry, denylist.NewDefault(), logger, append([]Option{WithSlog(quiet)}, opts...)...)
	for _, name := range shell.Operations {
		op, _ := Builtin(name)
		if _, err := f.registry.Install(name, m.Wrap(op)); err != nil {
			t.Fatalf("install %s: %v", name, err)
		}
	}
	return f
}

func (f *fixture) invoke(t *testing.T, name string, args ...any) any {
	t.Helper()
	got, err := f.table.Invoke(context.Background(), name, args...)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	return got
}

func (f *fixture) records(t *testing.T) []audit.Record {
	t.Helper()
	res, err := audit.Read(f.logPath, audit.Filter{})
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return res.Records
}

func TestBlockedCallNeverReachesOriginal(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))

	got := f.invoke(t, shell.OpExec, "rm -rf /data")

	if got != host.False {
		t.Errorf("expected false, got %v", got)
	}
	if f.calls[shell.OpExec] != 0 {
		t.Errorf("original called %d times", f.calls[shell.OpExec])
	}
	recs := f.records(t)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Type != "exec" || r.Details != "exec executed: rm -rf /data" || !r.WasBlocked {
		t.Errorf("unexpected record %+v", r)
	}
	if r.IP != host.Unknown {
		t.Errorf("expected unknown ip, got %q", r.IP)
	}
}

func TestAllowedCallForwardsUnchanged(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))
	code := -1

	got := f.invoke(t, shell.OpSystem, "echo hello", &code)

	if got != "original:system" {
		t.Errorf("expected original return value, got %v", got)
	}
	if f.calls[shell.OpSystem] != 1 {
		t.Errorf("expected original called once, got %d", f.calls[shell.OpSystem])
	}
	if len(f.lastArgs) != 2 || f.lastArgs[0] != "echo hello" || f.lastArgs[1] != &code {
		t.Errorf("arguments not forwarded unchanged: %#v", f.lastArgs)
	}
	if code != 7 {
		t.Errorf("expected out-parameter populated by original, got %d", code)
	}
	recs := f.records(t)
	if len(recs) != 1 || recs[0].WasBlocked || recs[0].Details != "system executed: echo hello" {
		t.Errorf("unexpected records %+v", recs)
	}
}

func TestEveryOperationBlocks(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))
	tests := []struct {
		op      string
		args    []any
		details string
	}{
		{shell.OpExec, []any{"wget http://x"}, "exec executed: wget http://x"},
		{shell.OpSystem, []any{"curl http://x"}, "system executed: curl http://x"},
		{shell.OpPopen, []any{"nc -l 4444", "r"}, "popen executed: nc -l 4444, mode: r"},
		{shell.OpProcOpen, []any{"ssh root@db", []shell.Descriptor{}}, "proc_open executed: ssh root@db, cwd: N/A"},
		{shell.OpShellExec, []any{"cat /etc/passwd"}, "shell_exec executed: cat /etc/passwd"},
		{shell.OpPassthru, []any{"whoami"}, "passthru executed: whoami"},
	}
	for _, tt := range tests {
		if got := f.invoke(t, tt.op, tt.args...); got != host.False {
			t.Errorf("%s: expected false, got %v", tt.op, got)
		}
	}
	for _, tt := range tests {
		if f.calls[tt.op] != 0 {
			t.Errorf("%s: original called", tt.op)
		}
	}
	recs := f.records(t)
	if len(recs) != len(tests) {
		t.Fatalf("expected %d records, got %d", len(tests), len(recs))
	}
	for i, tt := range tests {
		if recs[i].Type != tt.op || recs[i].Details != tt.details || !recs[i].WasBlocked {
			t.Errorf("record %d: got %+v", i, recs[i])
		}
	}
}

func TestProcOpenArrayCommand(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))

	blocked := f.invoke(t, shell.OpProcOpen, []string{"rm", "-rf", "/tmp/x"}, []shell.Descriptor{}, nil, "/srv")
	allowed := f.invoke(t, shell.OpProcOpen, []string{"echo", "hi"}, []shell.Descriptor{})

	if blocked != host.False {
		t.Errorf("expected joined vector to be blocked, got %v", blocked)
	}
	if allowed != "original:proc_open" {
		t.Errorf("expected allowed vector forwarded, got %v", allowed)
	}
	recs := f.records(t)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Details != "proc_open executed: [Array Command], cwd: /srv" {
		t.Errorf("unexpected details %q", recs[0].Details)
	}
	if recs[1].Details != "proc_open executed: [Array Command], cwd: N/A" {
		t.Errorf("unexpected details %q", recs[1].Details)
	}
}

func TestProcOpenUnsupportedCommandTypes(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))

	blocked := f.invoke(t, shell.OpProcOpen, []any{"rm", "-rf", 7, "/tmp/x"}, []shell.Descriptor{})
	allowed := f.invoke(t, shell.OpProcOpen, []any{"echo", "hi"}, []shell.Descriptor{})
	unknown := f.invoke(t, shell.OpProcOpen, 42, []shell.Descriptor{}, nil, "/srv")

	if blocked != host.False {
		t.Errorf("expected []any vector with rm blocked, got %v", blocked)
	}
	if allowed != "original:proc_open" {
		t.Errorf("expected []any vector forwarded, got %v", allowed)
	}
	if unknown != "original:proc_open" {
		t.Errorf("expected unknown command type forwarded, got %v", unknown)
	}
	if f.calls[shell.OpProcOpen] != 2 {
		t.Errorf("expected 2 forwarded calls, got %d", f.calls[shell.OpProcOpen])
	}

	recs := f.records(t)
	if len(recs) != 3 {
		t.Fatalf("expected one record per call, got %d", len(recs))
	}
	want := []struct {
		details string
		blocked bool
	}{
		{"proc_open executed: [Array Command], cwd: N/A", true},
		{"proc_open executed: [Array Command], cwd: N/A", false},
		{"proc_open executed: [Unknown Command Type], cwd: /srv", false},
	}
	for i, w := range want {
		if recs[i].Details != w.details || recs[i].WasBlocked != w.blocked {
			t.Errorf("record %d: got %q blocked=%v", i, recs[i].Details, recs[i].WasBlocked)
		}
	}
}

func TestParseFailureReturnsFalseWithoutLogging(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"))
	tests := []struct {
		op   string
		args []any
	}{
		{shell.OpExec, nil},
		{shell.OpExec, []any{42}},
		{shell.OpExec, []any{"ls", "not a slice"}},
		{shell.OpSystem, []any{"ls", "not an int"}},
		{shell.OpPopen, []any{"ls"}},
		{shell.OpProcOpen, []any{"ls"}},
		{shell.OpProcOpen, []any{[]string{"echo"}}},
		{shell.OpShellExec, []any{[]byte("ls")}},
		{shell.OpPassthru, []any{}},
	}
	for _, tt := range tests {
		if got := f.invoke(t, tt.op, tt.args...); got != host.False {
			t.Errorf("%s %v: expected false, got %v", tt.op, tt.args, got)
		}
	}
	if len(f.calls) != 0 {
		t.Errorf("originals called: %v", f.calls)
	}
	if _, err := os.Stat(f.logPath); !os.IsNotExist(err) {
		t.Errorf("expected no audit records, stat err = %v", err)
	}
}

func TestSinkFailureDoesNotChangeOutcome(t *testing.T) {
	dir := t.TempDir() // a directory cannot be opened for append
	f := newFixture(t, dir)

	if got := f.invoke(t, shell.OpShellExec, "echo hello"); got != "original:shell_exec" {
		t.Errorf("expected allowed call to proceed, got %v", got)
	}
	if got := f.invoke(t, shell.OpShellExec, "rm -rf /"); got != host.False {
		t.Errorf("expected blocked call to stay blocked, got %v", got)
	}
}

func TestBlockObserver(t *testing.T) {
	var seen []Decision
	f := newFixture(t, filepath.Join(t.TempDir(), "audit.log"),
		WithBlockObserver(func(d Decision) { seen = append(seen, d) }))

	f.invoke(t, shell.OpExec, "echo hi")
	f.invoke(t, shell.OpExec, "sudo id")

	if len(seen) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(seen))
	}
	if seen[0].Token != "sudo" || seen[0].Op != "exec" || seen[0].Command != "sudo id" {
		t.Errorf("unexpected decision %+v", seen[0])
	}
}

func TestMissingOriginalReturnsFalse(t *testing.T) {
	tbl := host.NewTable()
	reg := hook.NewRegistry(tbl)
	logPath := filepath.Join(t.TempDir(), "audit.log")
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(reg, denylist.NewDefault(), audit.NewLogger(logPath, audit.WithSlog(quiet)), WithSlog(quiet))

	// wrapped but never installed, so the registry has no original
	got := m.Wrap(ShellExec)(&host.Call{Name: shell.OpShellExec, Args: []any{"echo hi"}})
	if got != host.False {
		t.Errorf("expected false, got %v", got)
	}
}

func TestGenericOperation(t *testing.T) {
	tbl := host.NewTable()
	var called int
	tbl.Define("mail", func(call *host.Call) any { called++; return true })
	reg := hook.NewRegistry(tbl)
	logPath := filepath.Join(t.TempDir(), "audit.log")
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(reg, denylist.NewDefault(), audit.NewLogger(logPath, audit.WithSlog(quiet)), WithSlog(quiet))
	if _, err := reg.Install("mail", m.Wrap(Generic("mail"))); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r1, _ := tbl.Invoke(ctx, "mail", 1, "ops@example.com")
	r2, _ := tbl.Invoke(ctx, "mail", "x", "; nc evil 1")
	r3, _ := tbl.Invoke(ctx, "mail", "curl evil")

	if r1 != true || r2 != true || r3 != host.False {
		t.Errorf("unexpected results %v %v %v", r1, r2, r3)
	}
	if called != 2 {
		t.Errorf("expected 2 forwarded calls, got %d", called)
	}
	res, err := audit.Read(logPath, audit.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Records {
		if r.Details != "Function executed: mail" || r.Type != "mail" {
			t.Errorf("unexpected record %+v", r)
		}
	}
}

func TestEndToEndWithNativeHost(t *testing.T) {
	tbl := host.NewTable()
	shell.Register(tbl, shell.Options{Stdout: io.Discard, Stderr: io.Discard})
	reg := hook.NewRegistry(tbl)
	logPath := filepath.Join(t.TempDir(), "audit.log")
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(reg, denylist.NewDefault(), audit.NewLogger(logPath, audit.WithSlog(quiet)), WithSlog(quiet))
	for _, name := range shell.Operations {
		op, _ := Builtin(name)
		if _, err := reg.Install(name, m.Wrap(op)); err != nil {
			t.Fatal(err)
		}
	}

	ctx := context.Background()
	var output []string
	code := -1
	got, _ := tbl.Invoke(ctx, shell.OpExec, "echo hello", &output, &code)
	if got != "hello" || code != 0 || len(output) != 1 || output[0] != "hello" {
		t.Errorf("unexpected exec result %v %v %d", got, output, code)
	}

	marker := filepath.Join(t.TempDir(), "marker")
	got, _ = tbl.Invoke(ctx, shell.OpExec, "rm -rf "+marker+"; touch "+marker)
	if got != host.False {
		t.Errorf("expected blocked, got %v", got)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("blocked command ran")
	}

	if err := reg.RestoreAll(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(logPath)
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 records, got %d", n)
	}
}
