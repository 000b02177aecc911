package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/raspguard/internal/provenance"
)

func init() {
	rootCmd.AddCommand(provenanceCmd)
}

var provenanceCmd = &cobra.Command{
	Use:   "provenance <location>",
	Short: "Resolve a source location to its provenance record",
	Long: "Accepts a file path or an eval location such as\n" +
		"\"/var/www/app.php(12) : eval()'d code\" and prints the path, eval\n" +
		"line, SHA-256 and modification time as JSON.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec := provenance.Resolve(args[0])
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}
