package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/denylist"
)

var (
	checkDenylist string
	checkFormat   string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkDenylist, "denylist", "", "Path to denylist YAML (overrides config)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check <command> [args...]",
	Short: "Check a command against the denylist",
	Long: "Reports whether the command would be blocked and which token matched.\n" +
		"Exit code 0 if allowed, 77 if blocked.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := checkDenylist
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.DenylistPath
	}
	dl, err := denylist.Load(path)
	if err != nil {
		return err
	}
	return printVerdict(cmd.OutOrStdout(), dl, strings.Join(args, " "), checkFormat)
}

// printVerdict reports the denylist decision for command and returns an
// exitError with ExitBlocked when it is blocked.
func printVerdict(w io.Writer, dl *denylist.Denylist, command, format string) error {
	verdict := dl.Decide(&command)
	token, _ := dl.Match(command)

	switch format {
	case "json":
		resp := map[string]any{
			"command":  command,
			"decision": string(verdict),
		}
		if token != "" {
			resp["token"] = token
		}
		out, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Fprintln(w, string(out))
	default:
		if verdict == denylist.Block {
			fmt.Fprintf(w, "BLOCK: %q matches %q\n", command, token)
		} else {
			fmt.Fprintf(w, "ALLOW: %q\n", command)
		}
	}

	if verdict == denylist.Block {
		return &exitError{code: ExitBlocked}
	}
	return nil
}
