package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/inovacc/labelr/internal/application"
	"github.com/inovacc/labelr/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   application.AppName,
	Short: "Train issue classifiers and label GitHub issues",
	Long: `Labelr trains a classifier from the labeled issues of a GitHub repository
and uses it to label the issues of other repositories.

Run 'labelr serve' to start the web service and its run pool, or use the
train and classify commands to schedule runs from the command line.`,
	Version:       application.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for introspection purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is <app dir>/labelr.ini)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json (overrides config)")
}

// resolveConfigPath returns the --config value or the default location
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}

	return config.DefaultPath()
}

// loadConfig loads the configuration and installs the default logger
func loadConfig() (*config.Config, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	if logFormat != "" {
		cfg.Log.Format = logFormat
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)

	return cfg, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}
