// Package cmd implements the CLI commands for aura.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/auralabs/aura/internal/config"
	"github.com/auralabs/aura/internal/observability"
	"github.com/auralabs/aura/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "aura",
	Short:   "Local video generation studio",
	Version: version.Short(),
	Long: `aura turns a short content brief into a narrated video: it generates a
script, synthesizes narration, produces one image per scene, and composes
everything into a video with ffmpeg.

Providers resolve by tier (free, pro, pro-if-available) with deterministic
fallback, so a machine with nothing but ffmpeg installed still produces a
video. The server binds to loopback; aura is a local tool, not a network
service.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml, $HOME/.aura/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
}

// loadConfig loads configuration and applies explicit CLI flag overrides.
// Priority: CLI flag > env var > config file > default. Flags are not bound
// to viper because viper's flag layer would override env and config even
// when the flag still holds its default value.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if level, ok := changedString(rootCmd.PersistentFlags(), "log-level"); ok {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format, ok := changedString(rootCmd.PersistentFlags(), "log-format"); ok {
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	return cfg, nil
}

// changedString returns a string flag's value only when the user set it
// explicitly, so defaults never shadow env vars or the config file.
func changedString(fs *pflag.FlagSet, name string) (string, bool) {
	if !fs.Changed(name) {
		return "", false
	}
	value, err := fs.GetString(name)
	if err != nil {
		return "", false
	}
	return value, true
}

// initLogging builds the redacting slog logger and installs it as default.
func initLogging(cfg *config.Config) {
	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	observability.SetDefault(logger)
}
