package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/raspguard/internal/host"
	"github.com/ppiankov/raspguard/internal/shell"
)

var errSinkFull = errors.New("sink full")

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errSinkFull }

func TestInvokePopenCopiesOutput(t *testing.T) {
	table := host.NewTable()
	shell.Register(table, shell.Options{})

	var out bytes.Buffer
	code, err := invokeOp(context.Background(), table, shell.OpPopen, "echo hi", &out)
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 || out.String() != "hi\n" {
		t.Errorf("expected code 0 and %q, got %d and %q", "hi\n", code, out.String())
	}
}

func TestInvokePopenReportsCopyError(t *testing.T) {
	table := host.NewTable()
	shell.Register(table, shell.Options{})

	_, err := invokeOp(context.Background(), table, shell.OpPopen, "echo hi", failingWriter{})
	if !errors.Is(err, errSinkFull) {
		t.Fatalf("expected copy error, got %v", err)
	}
}
