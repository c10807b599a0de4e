// Package preflight opens the firewall for inbound BGP before the
// measurement starts.
//
// Benchmarks block TCP/179 while the router under test is being prepared:
//
//	iptables -A INPUT -p tcp --dport 179 -j DROP
//
// Removing that rule is the moment sessions start establishing, which is the
// zero point of the convergence timer.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/dantte-lp/bgpwatch/internal/command"
)

// BGPPort is the TCP port of BGP.
const BGPPort = 179

// ErrPreflightFailed indicates the firewall rule could not be removed.
var ErrPreflightFailed = errors.New("preflight failed")

// Gate performs the one-shot action that lets BGP traffic through.
type Gate interface {
	Open(ctx context.Context) error
}

// SudoMode controls whether the firewall tool is run through sudo.
type SudoMode string

const (
	// SudoAuto uses sudo only when the process is not running as root.
	SudoAuto SudoMode = "auto"
	// SudoAlways always prefixes the command with sudo.
	SudoAlways SudoMode = "always"
	// SudoNever never uses sudo.
	SudoNever SudoMode = "never"
)

// IptablesConfig configures an IptablesGate.
type IptablesConfig struct {
	Runner command.Runner

	// Iptables is the iptables binary. Defaults to "iptables".
	Iptables string

	// Sudo selects privilege escalation. Defaults to SudoAuto.
	Sudo SudoMode

	// Port is the blocked TCP port. Defaults to BGPPort.
	Port int

	Logger *slog.Logger
}

// IptablesGate deletes the INPUT DROP rule for the BGP port.
type IptablesGate struct {
	runner   command.Runner
	iptables string
	sudo     SudoMode
	port     int
	geteuid  func() int
	logger   *slog.Logger
}

// NewIptablesGate returns a gate that deletes the DROP rule for cfg.Port.
func NewIptablesGate(cfg IptablesConfig) *IptablesGate {
	g := &IptablesGate{
		runner:   cfg.Runner,
		iptables: cfg.Iptables,
		sudo:     cfg.Sudo,
		port:     cfg.Port,
		geteuid:  unix.Geteuid,
		logger:   cfg.Logger,
	}
	if g.runner == nil {
		g.runner = command.Exec{}
	}
	if g.iptables == "" {
		g.iptables = "iptables"
	}
	if g.sudo == "" {
		g.sudo = SudoAuto
	}
	if g.port == 0 {
		g.port = BGPPort
	}
	if g.logger == nil {
		g.logger = slog.New(slog.DiscardHandler)
	}
	g.logger = g.logger.With(slog.String("component", "preflight"))
	return g
}

// Command returns the command line Open will execute.
func (g *IptablesGate) Command() (string, []string) {
	args := []string{"-D", "INPUT", "-p", "tcp", "--dport", strconv.Itoa(g.port), "-j", "DROP"}
	if g.useSudo() {
		return "sudo", append([]string{g.iptables}, args...)
	}
	return g.iptables, args
}

func (g *IptablesGate) useSudo() bool {
	switch g.sudo {
	case SudoAlways:
		return true
	case SudoNever:
		return false
	default:
		return g.geteuid() != 0
	}
}

// Open removes the DROP rule. A non-zero exit of the firewall tool is
// returned as ErrPreflightFailed together with the tool's diagnostic output.
func (g *IptablesGate) Open(ctx context.Context) error {
	name, args := g.Command()
	line := command.Line(name, args...)

	if _, err := g.runner.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("unblock BGP with %q: %w: %w", line, ErrPreflightFailed, err)
	}

	g.logger.Info("inbound BGP unblocked",
		slog.String("command", line),
		slog.Int("port", g.port),
	)
	return nil
}

// NopGate is used when the operator manages the firewall separately.
type NopGate struct{}

// Open does nothing.
func (NopGate) Open(context.Context) error { return nil }
