// Package watcher drives the convergence measurement: it samples the router
// once per interval, feeds each snapshot into the stabilization window, and
// reports progress until the operator stops it.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
	"github.com/dantte-lp/bgpwatch/internal/probe"
)

// DefaultInterval is the fixed pause between two samples.
const DefaultInterval = time.Second

// ErrNoAdapter indicates the loop was built without a probe adapter.
var ErrNoAdapter = errors.New("watcher: nil probe adapter")

// MetricsRecorder receives per-tick measurements.
// Implemented by watchmetrics.Collector.
type MetricsRecorder interface {
	RecordSample(target string, peers int, elapsed time.Duration, stabilized bool)
	RecordPeer(target string, peer netip.Addr, sent, received uint64)
	ForgetPeers(target string)
	RecordConvergence(target string, elapsed time.Duration)
	IncProbeFailures(target string)
}

// Config configures a Loop.
type Config struct {
	Adapter probe.Adapter

	// WindowSize is the number of consecutive equal samples required.
	// Zero means counter.DefaultWindowSize.
	WindowSize int

	// Interval is the pause between samples. Zero means DefaultInterval.
	Interval time.Duration

	// Reporter receives one Report per tick. Nil discards reports.
	Reporter Reporter

	// Metrics is optional.
	Metrics MetricsRecorder

	// Now is the clock used for elapsed time. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// Loop is the sequential sample, push, report cycle. A Loop is not safe
// for concurrent use; Run must be called once.
type Loop struct {
	adapter  probe.Adapter
	window   *counter.Window
	interval time.Duration
	reporter Reporter
	metrics  MetricsRecorder
	now      func() time.Time
	logger   *slog.Logger

	// convergedAt is the elapsed time of the first stable tick.
	convergedAt time.Duration
	converged   bool
}

// New creates a Loop. The window uses the adapter's equality rule.
func New(cfg Config) (*Loop, error) {
	if cfg.Adapter == nil {
		return nil, ErrNoAdapter
	}

	size := cfg.WindowSize
	if size == 0 {
		size = counter.DefaultWindowSize
	}

	l := &Loop{
		adapter:  cfg.Adapter,
		window:   counter.NewWindow(size, probe.EqualityFor(cfg.Adapter)),
		interval: cfg.Interval,
		reporter: cfg.Reporter,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.reporter == nil {
		l.reporter = nopReporter{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = slog.New(slog.DiscardHandler)
	}
	l.logger = l.logger.With(
		slog.String("component", "watcher"),
		slog.String("target", cfg.Adapter.Name()),
	)

	return l, nil
}

// Run samples until ctx is cancelled. Cancellation is the normal way to
// stop and returns nil. A failed sample is fatal and is returned wrapped
// in probe.ErrProbeFailed; no partial snapshot enters the window.
func (l *Loop) Run(ctx context.Context) error {
	start := l.now()
	target := l.adapter.Name()

	l.logger.Info("polling started",
		slog.Duration("interval", l.interval),
		slog.Int("window", l.window.Capacity()),
	)

	timer := time.NewTimer(l.interval)
	timer.Stop()
	defer timer.Stop()

	for tick := 1; ; tick++ {
		snap, err := l.adapter.Sample(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if l.metrics != nil {
				l.metrics.IncProbeFailures(target)
			}
			if !errors.Is(err, probe.ErrProbeFailed) {
				err = fmt.Errorf("%w: %w", probe.ErrProbeFailed, err)
			}
			return fmt.Errorf("sample %d: %w", tick, err)
		}

		l.window.Push(snap)
		r := Report{
			Elapsed:    l.now().Sub(start),
			Peers:      snap.Len(),
			Stabilized: l.window.Stable(),
			Phase:      l.window.Phase(),
		}

		l.record(target, snap, r)

		if err := l.reporter.Report(r); err != nil {
			return fmt.Errorf("report tick %d: %w", tick, err)
		}

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Converged returns the elapsed time at which the window first became
// stable, and whether that has happened.
func (l *Loop) Converged() (time.Duration, bool) {
	return l.convergedAt, l.converged
}

// Window exposes the stabilization window for inspection.
func (l *Loop) Window() *counter.Window {
	return l.window
}

func (l *Loop) record(target string, snap counter.Snapshot, r Report) {
	if r.Stabilized && !l.converged {
		l.converged = true
		l.convergedAt = r.Elapsed
		l.logger.Info("counters stabilized",
			slog.Duration("elapsed", r.Elapsed),
			slog.Int("peers", r.Peers),
		)
		if l.metrics != nil {
			l.metrics.RecordConvergence(target, r.Elapsed)
		}
	}

	if l.metrics == nil {
		return
	}
	l.metrics.RecordSample(target, r.Peers, r.Elapsed, r.Stabilized)
	l.metrics.ForgetPeers(target)
	for _, addr := range snap.Addrs() {
		pc, _ := snap.Get(addr)
		l.metrics.RecordPeer(target, addr, pc.Sent, pc.Received)
	}
}
