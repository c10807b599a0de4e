// Package probe samples per-peer BGP UPDATE counters from a router under
// test.
//
// Each supported router flavor has its own Adapter. GoBGP is queried through
// its gRPC API; FRR, BIRD and OpenBGPD are queried by running their control
// CLI and parsing the text it prints. Every CLI grammar lives in its own
// file so that a format change in one daemon cannot affect the others.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/command"
	"github.com/dantte-lp/bgpwatch/internal/counter"
	"github.com/dantte-lp/bgpwatch/internal/gobgp"
)

// -------------------------------------------------------------------------
// Adapter
// -------------------------------------------------------------------------

// Adapter produces a counter snapshot from one router.
//
// Sample may block for the duration of an RPC or an external process. Any
// failure to obtain a trustworthy snapshot is reported as an error wrapping
// ErrProbeFailed.
type Adapter interface {
	// Name returns the target name of the adapter (e.g., "frr").
	Name() string

	// Sample queries the router and returns the current counters.
	Sample(ctx context.Context) (counter.Snapshot, error)
}

// Comparer is implemented by adapters whose snapshots need a stricter
// equality rule than counter.Equal.
type Comparer interface {
	Equality() counter.EqualFunc
}

// EqualityFor returns the equality rule the stabilization window should use
// for snapshots produced by a.
func EqualityFor(a Adapter) counter.EqualFunc {
	if c, ok := a.(Comparer); ok {
		return c.Equality()
	}
	return counter.Equal
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrProbeFailed indicates the adapter could not produce a snapshot.
	ErrProbeFailed = errors.New("probe failed")

	// ErrUnknownTarget indicates an unrecognized --target value.
	ErrUnknownTarget = errors.New("unknown target")
)

// -------------------------------------------------------------------------
// Targets
// -------------------------------------------------------------------------

// Target names a router implementation.
type Target string

// Supported targets.
const (
	TargetGoBGP    Target = "gobgp"
	TargetFRR      Target = "frr"
	TargetBIRD     Target = "bird"
	TargetOpenBGPD Target = "openbgpd"
)

// TargetHint is printed when an unsupported target is requested.
const TargetHint = "supported target: bird, frr, or openbgpd"

// ParseTarget maps a --target value to a Target. The empty string selects
// GoBGP.
func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case "":
		return TargetGoBGP, nil
	case TargetFRR, TargetBIRD, TargetOpenBGPD:
		return Target(s), nil
	default:
		return "", fmt.Errorf("target %q: %w", s, ErrUnknownTarget)
	}
}

// Options carries the collaborators needed to build any adapter.
type Options struct {
	// GoBGP is the API client used by the gobgp target.
	GoBGP gobgp.Client

	// Runner executes CLI tools. Defaults to command.Exec.
	Runner command.Runner

	// Vtysh, Birdc and Bgpctl are the CLI tool paths.
	Vtysh  string
	Birdc  string
	Bgpctl string

	// Now stamps snapshots. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// New builds the adapter for target.
func New(target Target, opts Options) (Adapter, error) {
	if opts.Runner == nil {
		opts.Runner = command.Exec{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	switch target {
	case TargetGoBGP:
		if opts.GoBGP == nil {
			return nil, fmt.Errorf("build %s adapter: nil gobgp client", target)
		}
		return NewGoBGP(opts.GoBGP, opts.Now, opts.Logger), nil
	case TargetFRR:
		return NewFRR(cliConfig(opts, opts.Vtysh)), nil
	case TargetBIRD:
		return NewBIRD(cliConfig(opts, opts.Birdc)), nil
	case TargetOpenBGPD:
		return NewOpenBGPD(cliConfig(opts, opts.Bgpctl)), nil
	default:
		return nil, fmt.Errorf("build adapter %q: %w", target, ErrUnknownTarget)
	}
}

// -------------------------------------------------------------------------
// CLI adapters: shared plumbing
// -------------------------------------------------------------------------

// CLIConfig configures an adapter that shells out to a router CLI.
type CLIConfig struct {
	Runner command.Runner
	// Path is the tool binary (e.g., "/usr/bin/vtysh"). Defaults to the
	// bare tool name, resolved through PATH.
	Path   string
	Now    func() time.Time
	Logger *slog.Logger
}

func cliConfig(opts Options, path string) CLIConfig {
	return CLIConfig{
		Runner: opts.Runner,
		Path:   path,
		Now:    opts.Now,
		Logger: opts.Logger,
	}
}

// Skip records a peer left out of a snapshot because its data was
// incomplete or its counters had not started yet.
type Skip struct {
	Peer   string
	Reason string
}

// Skip reasons.
const (
	reasonNoCounts     = "no update counters in output"
	reasonNotStarted   = "update counters not started"
	reasonTemplate     = "session template"
	reasonMissingStats = "message statistics missing"
	reasonBadHeader    = "unrecognized neighbor header"
)

// parseFunc turns raw tool output into a snapshot.
type parseFunc func(out []byte, at time.Time) (counter.Snapshot, []Skip, error)

// cliAdapter runs one fixed command per sample and parses its output.
type cliAdapter struct {
	name   string
	runner command.Runner
	path   string
	args   []string
	parse  parseFunc
	now    func() time.Time
	logger *slog.Logger
}

func newCLIAdapter(name, tool string, cfg CLIConfig, parse parseFunc, args ...string) *cliAdapter {
	runner := cfg.Runner
	if runner == nil {
		runner = command.Exec{}
	}
	path := cfg.Path
	if path == "" {
		path = tool
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &cliAdapter{
		name:   name,
		runner: runner,
		path:   path,
		args:   args,
		parse:  parse,
		now:    now,
		logger: logger.With(slog.String("component", "probe."+name)),
	}
}

func (a *cliAdapter) Name() string { return a.name }

func (a *cliAdapter) Sample(ctx context.Context) (counter.Snapshot, error) {
	line := command.Line(a.path, a.args...)

	out, err := a.runner.Run(ctx, a.path, a.args...)
	if err != nil {
		return counter.Snapshot{}, fmt.Errorf("%s: %w: %w", a.name, ErrProbeFailed, err)
	}

	snap, skipped, err := a.parse(out, a.now())
	if err != nil {
		return counter.Snapshot{}, fmt.Errorf("%s: parse output of %q: %w: %w", a.name, line, ErrProbeFailed, err)
	}

	logSkipped(a.logger, skipped)
	logDuplicates(a.logger, snap)

	return snap, nil
}

func logSkipped(logger *slog.Logger, skipped []Skip) {
	for _, s := range skipped {
		logger.Debug("peer omitted from snapshot",
			slog.String("peer", s.Peer),
			slog.String("reason", s.Reason),
		)
	}
}

func logDuplicates(logger *slog.Logger, snap counter.Snapshot) {
	if n := snap.Duplicates(); n > 0 {
		logger.Warn("duplicate peer addresses in snapshot, last value kept",
			slog.Int("duplicates", n),
		)
	}
}
