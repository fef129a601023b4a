// Package commands implements the hioload-nio command line.
package commands

import (
	"github.com/momentics/hioload-nio/control"
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"

	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "hioload-nio",
	Short: "Non-blocking TCP reactor with pooled buffers and disk overflow",
	Long: `hioload-nio runs demo protocols on a single-goroutine epoll reactor.

Configuration is read from --config (YAML) and HIOLOAD_NIO_* environment
variables, which take precedence over the file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(echoCmd)
}

// PrintErr prints an error message to stderr.
func PrintErr(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
}

// applyFlags returns a copy of cfg with command line overrides applied.
func applyFlags(cfg *control.Config) *control.Config {
	c := *cfg
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	return &c
}
