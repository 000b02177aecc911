package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/denylist"
	"github.com/ppiankov/raspguard/internal/host"
	"github.com/ppiankov/raspguard/internal/rasp"
	"github.com/ppiankov/raspguard/internal/shell"
)

var (
	execOp       string
	execDenylist string
	execAudit    string
	execDryRun   bool
)

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execOp, "op", shell.OpSystem, "Operation to invoke: "+strings.Join(shell.Operations, ", "))
	execCmd.Flags().StringVar(&execDenylist, "denylist", "", "Path to denylist YAML (overrides config)")
	execCmd.Flags().StringVar(&execAudit, "audit", "", "Path to audit log (overrides config)")
	execCmd.Flags().BoolVar(&execDryRun, "dry-run", false, "Check the denylist without executing")
}

var execCmd = &cobra.Command{
	Use:   "exec [flags] -- <command> [args...]",
	Short: "Run a command through an intercepted operation",
	Long: "Loads the guard over the native shell host and invokes the chosen\n" +
		"operation. The call is checked, audited and, if allowed, executed.\n" +
		"Exit code 77 indicates the denylist blocked the command.",
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func runExec(cmd *cobra.Command, args []string) error {
	if !slices.Contains(shell.Operations, execOp) {
		return fmt.Errorf("unknown operation %q: use one of %s", execOp, strings.Join(shell.Operations, ", "))
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if execDenylist != "" {
		cfg.DenylistPath = execDenylist
	}
	if execAudit != "" {
		cfg.AuditPath = execAudit
	}
	command := strings.Join(args, " ")

	if execDryRun {
		dl, err := denylist.Load(cfg.DenylistPath)
		if err != nil {
			return err
		}
		return printVerdict(cmd.OutOrStdout(), dl, command, "json")
	}

	table := host.NewTable()
	shell.Register(table, shell.Options{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()})
	cfg.Hooks = []string{execOp}
	cfg.Strict = true

	module, err := rasp.Start(table, cfg)
	if err != nil {
		return fmt.Errorf("failed to load guard: %w", err)
	}
	defer module.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	code, err := invokeOp(ctx, table, execOp, command, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if code == blockedCode {
		token, matched := module.Denylist().Match(command)
		if !matched {
			return fmt.Errorf("%s: command could not be started", execOp)
		}
		resp := map[string]any{
			"blocked": true,
			"op":      execOp,
			"command": command,
			"token":   token,
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(cmd.ErrOrStderr(), string(out))
		return &exitError{code: ExitBlocked}
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

const blockedCode = -1

// invokeOp calls op through the dispatch table with the arguments its
// native signature expects and returns the child's exit status, or
// blockedCode when the call returned false.
func invokeOp(ctx context.Context, table *host.Table, op, command string, stdout io.Writer) (int, error) {
	code := 0
	var (
		result any
		err    error
	)
	switch op {
	case shell.OpExec:
		var lines []string
		result, err = table.Invoke(ctx, op, command, &lines, &code)
		for _, l := range lines {
			fmt.Fprintln(stdout, l)
		}
	case shell.OpSystem, shell.OpPassthru:
		result, err = table.Invoke(ctx, op, command, &code)
	case shell.OpShellExec:
		result, err = table.Invoke(ctx, op, command)
		if s, ok := result.(string); ok {
			fmt.Fprint(stdout, s)
		}
	case shell.OpPopen:
		result, err = table.Invoke(ctx, op, command, "r")
		if p, ok := result.(*shell.Pipe); ok {
			if _, cerr := io.Copy(stdout, p); cerr != nil {
				p.Close()
				return 0, fmt.Errorf("popen read: %w", cerr)
			}
			code, err = p.Close()
		}
	case shell.OpProcOpen:
		inherit := []shell.Descriptor{{Kind: "inherit"}, {Kind: "inherit"}, {Kind: "inherit"}}
		result, err = table.Invoke(ctx, op, command, inherit)
		if p, ok := result.(*shell.Process); ok {
			code, err = p.Close()
		}
	}
	if err != nil {
		return 0, err
	}
	if result == host.False {
		return blockedCode, nil
	}
	return code, nil
}
