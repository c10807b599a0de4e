// Package commands implements the bgpwatch CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/bgpwatch/internal/config"
	"github.com/dantte-lp/bgpwatch/internal/probe"
)

// rootFlags holds the persistent flags shared by all subcommands.
type rootFlags struct {
	// configPath is the optional YAML configuration file.
	configPath string

	// target overrides the configured router implementation.
	target string
}

// newRootCmd builds the bgpwatch command tree.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "bgpwatch",
		Short: "Measure BGP convergence time from UPDATE counters",
		Long: "bgpwatch unblocks inbound BGP, then samples the per-peer UPDATE counters of the\n" +
			"router under test once per second and reports when they stop changing.\n" +
			"Without --target the local GoBGP daemon is queried over gRPC.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}

			target, err := probe.ParseTarget(cfg.Target)
			if errors.Is(err, probe.ErrUnknownTarget) {
				fmt.Fprintln(cmd.OutOrStdout(), probe.TargetHint)
				return nil
			}
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			return runWatch(cmd.Context(), cfg, target, logger, cmd.OutOrStdout())
		},
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"path to configuration file (YAML)")
	cmd.Flags().StringVar(&flags.target, "target", "",
		"router under test: frr, bird, or openbgpd (default: GoBGP over gRPC)")

	cmd.AddCommand(summaryCmd(flags))
	cmd.AddCommand(configCmd(flags))
	cmd.AddCommand(versionCmd())

	return cmd
}

// load reads the configuration and applies flag overrides.
func (f *rootFlags) load(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if flag := cmd.Flags().Lookup("target"); flag != nil && flag.Changed {
		cfg.Target = f.target
	}
	return cfg, nil
}

// newLogger creates a slog.Logger writing to w in the configured format.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
