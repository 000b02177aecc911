package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/mediator"
)

func init() {
	rootCmd.AddCommand(hooksCmd)
}

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "List the functions the configuration intercepts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FUNCTION\tMEDIATION")
		for _, name := range cfg.Hooks {
			kind := "generic"
			if _, ok := mediator.Builtin(name); ok {
				kind = "builtin"
			}
			fmt.Fprintf(tw, "%s\t%s\n", name, kind)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		mode := "skip on failure"
		if cfg.Strict {
			mode = "strict"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\naudit: %s\ninstall: %s\n", cfg.AuditPath, mode)
		return nil
	},
}
