package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/rasp"
)

// ExitBlocked is the exit status for a command refused by the denylist.
const ExitBlocked = 77

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "raspguard",
	Short:         "Runtime guard for process-spawning calls",
	Long:          "Intercepts exec, system, popen, proc_open, shell_exec and passthru, blocks commands on the denylist, and records every call with its provenance in an append-only audit log.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default: ~/.raspguard/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose diagnostics on stderr")
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var exit *exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func loadConfig() (*rasp.Config, error) {
	return rasp.LoadConfig(configPath)
}
