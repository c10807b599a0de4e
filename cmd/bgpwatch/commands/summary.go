package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/bgpwatch/internal/gobgp"
	"github.com/dantte-lp/bgpwatch/internal/ribsummary"
)

func summaryCmd(flags *rootFlags) *cobra.Command {
	var (
		addr   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "rib-summary",
		Short: "Print the IPv4 unicast table size of every peer's GoBGP",
		Long: "rib-summary lists the peers of the local GoBGP daemon, then queries the\n" +
			"GoBGP management API of each peer concurrently and prints one line per peer.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Reject a bad --format before dialing anything.
			if err := ribsummary.Write(io.Discard, nil, format); err != nil {
				return err
			}

			cfg, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.GoBGP.Addr = addr
			}

			logger := newLogger(cfg.Log, cmd.ErrOrStderr())

			local, err := gobgp.NewGRPCClient(gobgp.GRPCClientConfig{Addr: cfg.GoBGP.Addr}, logger)
			if err != nil {
				return fmt.Errorf("connect to gobgp: %w", err)
			}
			defer func() {
				if err := local.Close(); err != nil {
					logger.Warn("failed to close gobgp client", slog.String("error", err.Error()))
				}
			}()

			s := ribsummary.New(ribsummary.Config{
				Local:    local,
				PeerPort: cfg.GoBGP.PeerPort,
				Logger:   logger,
			})

			results, err := s.Collect(cmd.Context())
			if err != nil {
				return err
			}
			return ribsummary.Write(cmd.OutOrStdout(), results, format)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "local GoBGP API address (default from gobgp.addr)")
	cmd.Flags().StringVar(&format, "format", ribsummary.FormatJSON, "output format: json, table")

	return cmd
}
