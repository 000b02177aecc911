package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/raspguard/internal/denylist"
	"github.com/ppiankov/raspguard/internal/rasp"
)

var (
	initDir   string
	initForce bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Config directory (default: ~/.raspguard)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration and denylist",
	Long: `Creates the config directory with config.yaml and denylist.yaml
holding the built-in defaults. Existing files are kept unless --force is set.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := initConfigDir()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var created []string

	configContent, err := rasp.DefaultConfigYAML()
	if err != nil {
		return fmt.Errorf("generate default config: %w", err)
	}
	configFile := filepath.Join(configDir, "config.yaml")
	if wrote, err := writeIfMissing(configFile, configContent); err != nil {
		return err
	} else if wrote {
		created = append(created, configFile)
	}

	denylistContent, err := defaultDenylistYAML()
	if err != nil {
		return fmt.Errorf("generate default denylist: %w", err)
	}
	denylistFile := filepath.Join(configDir, "denylist.yaml")
	if wrote, err := writeIfMissing(denylistFile, denylistContent); err != nil {
		return err
	} else if wrote {
		created = append(created, denylistFile)
	}

	fmt.Fprintln(out, "raspguard init complete.")
	fmt.Fprintln(out)
	if len(created) > 0 {
		fmt.Fprintln(out, "Created:")
		for _, path := range created {
			fmt.Fprintf(out, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(out, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Check a command:")
	fmt.Fprintln(out, "  raspguard check -- <command>")
	return nil
}

func initConfigDir() (string, error) {
	if initDir != "" {
		return initDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".raspguard"), nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

func defaultDenylistYAML() (string, error) {
	data, err := yaml.Marshal(denylist.DefaultPatterns)
	if err != nil {
		return "", err
	}
	header := "# raspguard denylist.\n" +
		"# A command is blocked when it contains any token as a case-sensitive substring.\n"
	return header + string(data), nil
}
