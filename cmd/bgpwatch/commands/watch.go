package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/bgpwatch/internal/command"
	"github.com/dantte-lp/bgpwatch/internal/config"
	"github.com/dantte-lp/bgpwatch/internal/gobgp"
	watchmetrics "github.com/dantte-lp/bgpwatch/internal/metrics"
	"github.com/dantte-lp/bgpwatch/internal/preflight"
	"github.com/dantte-lp/bgpwatch/internal/probe"
	appversion "github.com/dantte-lp/bgpwatch/internal/version"
	"github.com/dantte-lp/bgpwatch/internal/watcher"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections.
const shutdownTimeout = 5 * time.Second

// runWatch opens the firewall and runs the poll loop until SIGINT/SIGTERM.
// The metrics endpoint, when configured, runs alongside in the same errgroup.
func runWatch(
	parent context.Context,
	cfg *config.Config,
	target probe.Target,
	logger *slog.Logger,
	stdout io.Writer,
) error {
	logger.Info("bgpwatch starting",
		slog.String("version", appversion.Version),
		slog.String("target", string(target)),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, closeAdapter, err := newAdapter(cfg, target, logger)
	if err != nil {
		return err
	}
	defer closeAdapter()

	reg := prometheus.NewRegistry()
	collector := watchmetrics.NewCollector(reg)

	loop, err := watcher.New(watcher.Config{
		Adapter:  adapter,
		Reporter: watcher.NewLineReporter(stdout),
		Metrics:  collector,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create poll loop: %w", err)
	}

	gate := newGate(cfg.Preflight, logger)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		srv := newMetricsServer(cfg.Metrics, reg)
		lc := net.ListenConfig{}

		g.Go(func() error {
			logger.Info("metrics server listening",
				slog.String("addr", cfg.Metrics.Addr),
				slog.String("path", cfg.Metrics.Path),
			)
			return listenAndServe(gCtx, &lc, srv, cfg.Metrics.Addr)
		})

		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		if err := gate.Open(gCtx); err != nil {
			return err
		}
		if err := loop.Run(gCtx); err != nil {
			return err
		}
		// Operator stop: release the metrics server as well.
		stop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run watcher: %w", err)
	}

	if elapsed, ok := loop.Converged(); ok {
		logger.Info("bgpwatch stopped", slog.Duration("converged_after", elapsed))
	} else {
		logger.Info("bgpwatch stopped before counters stabilized")
	}
	return nil
}

// newAdapter builds the probe for target. The returned func releases the
// GoBGP connection when one was opened.
func newAdapter(cfg *config.Config, target probe.Target, logger *slog.Logger) (probe.Adapter, func(), error) {
	opts := probe.Options{
		Runner: command.Exec{},
		Vtysh:  cfg.FRR.Vtysh,
		Birdc:  cfg.BIRD.Birdc,
		Bgpctl: cfg.OpenBGPD.Bgpctl,
		Logger: logger,
	}
	closer := func() {}

	if target == probe.TargetGoBGP {
		client, err := gobgp.NewGRPCClient(gobgp.GRPCClientConfig{Addr: cfg.GoBGP.Addr}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to gobgp: %w", err)
		}
		opts.GoBGP = client
		closer = func() {
			if err := client.Close(); err != nil {
				logger.Warn("failed to close gobgp client", slog.String("error", err.Error()))
			}
		}
	}

	adapter, err := probe.New(target, opts)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("create %s probe: %w", target, err)
	}
	return adapter, closer, nil
}

// newGate returns the firewall step, or a no-op when it is disabled.
func newGate(cfg config.PreflightConfig, logger *slog.Logger) preflight.Gate {
	if !cfg.Enabled {
		logger.Info("preflight disabled, assuming BGP is already unblocked")
		return preflight.NopGate{}
	}
	return preflight.NewIptablesGate(preflight.IptablesConfig{
		Runner:   command.Exec{},
		Iptables: cfg.Iptables,
		Sudo:     preflight.SudoMode(cfg.Sudo),
		Logger:   logger,
	})
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// srv until it is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}
