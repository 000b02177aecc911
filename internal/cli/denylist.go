package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/raspguard/internal/denylist"
)

var denylistPath string

func init() {
	rootCmd.AddCommand(denylistCmd)
	denylistCmd.AddCommand(denylistShowCmd)
	denylistCmd.PersistentFlags().StringVar(&denylistPath, "denylist", "", "Path to denylist YAML (overrides config)")
}

var denylistCmd = &cobra.Command{
	Use:   "denylist",
	Short: "Denylist operations",
}

var denylistShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective denylist in match order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := denylistPath
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
		out, err := yaml.Marshal(denylist.Patterns{Commands: dl.Commands()})
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}
