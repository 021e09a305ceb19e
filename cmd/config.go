package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/inovacc/labelr/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage labelr configuration",
	Long: `Commands for managing labelr configuration.

Available Commands:
  init    Write a default configuration file
  show    Print the effective configuration`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to the config path. An existing file is
left untouched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			_, _ = fmt.Fprintf(os.Stdout, "Config already exists: %s\n", path)
			return nil
		}

		if err := config.CreateDefault(path); err != nil {
			return err
		}

		_, _ = fmt.Fprintf(os.Stdout, "Config written to %s\n", path)

		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cfg.Masked())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
