// Package ribsummary collects the IPv4 unicast table size of every peer of
// the local GoBGP daemon, by dialing each peer's own GoBGP management API.
//
// Used after a benchmark to check that every router in a full-mesh lab holds
// the expected number of routes.
package ribsummary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strconv"

	apipb "github.com/osrg/gobgp/v3/api"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/bgpwatch/internal/gobgp"
)

// ErrListPeers indicates the local daemon's peer list could not be read.
var ErrListPeers = errors.New("list local peers")

// Dialer opens a GoBGP client to addr ("host:port").
type Dialer func(ctx context.Context, addr string) (gobgp.Client, error)

// GRPCDialer returns a Dialer backed by gobgp.NewGRPCClient.
func GRPCDialer(logger *slog.Logger) Dialer {
	return func(_ context.Context, addr string) (gobgp.Client, error) {
		c, err := gobgp.NewGRPCClient(gobgp.GRPCClientConfig{Addr: addr}, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// PeerTable is the outcome for one peer. Exactly one of Table and Err is set.
type PeerTable struct {
	Peer  netip.Addr
	Table *apipb.GetTableResponse
	Err   error
}

// Config configures a Summarizer.
type Config struct {
	// Local is the client of the GoBGP daemon whose peers are summarized.
	Local gobgp.Client

	// Dial opens a client per peer. Defaults to GRPCDialer.
	Dial Dialer

	// PeerPort is the management port dialed on each peer.
	// Defaults to gobgp.DefaultPort.
	PeerPort int

	Logger *slog.Logger
}

// Summarizer fans out GetTable calls to all peers of the local daemon.
type Summarizer struct {
	local  gobgp.Client
	dial   Dialer
	port   int
	logger *slog.Logger
}

// New creates a Summarizer.
func New(cfg Config) *Summarizer {
	s := &Summarizer{
		local:  cfg.Local,
		dial:   cfg.Dial,
		port:   cfg.PeerPort,
		logger: cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.logger = s.logger.With(slog.String("component", "ribsummary"))
	if s.dial == nil {
		s.dial = GRPCDialer(s.logger)
	}
	if s.port == 0 {
		s.port = gobgp.DefaultPort
	}
	return s
}

// Collect lists the local peers and queries each one concurrently. Per-peer
// failures are recorded in that peer's result and never cancel the others.
// Results keep the order of the local peer list.
func (s *Summarizer) Collect(ctx context.Context) ([]PeerTable, error) {
	peers, err := s.local.ListPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListPeers, err)
	}

	results := make([]PeerTable, 0, len(peers))
	for _, p := range peers {
		addr, err := netip.ParseAddr(p.GetState().GetNeighborAddress())
		if err != nil {
			s.logger.Warn("skipping peer with invalid address",
				slog.String("address", p.GetState().GetNeighborAddress()),
			)
			continue
		}
		results = append(results, PeerTable{Peer: addr.Unmap()})
	}

	// Each goroutine writes only its own slot, so no lock is needed.
	var g errgroup.Group
	for i := range results {
		g.Go(func() error {
			results[i].Table, results[i].Err = s.query(ctx, results[i].Peer)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Summarizer) query(ctx context.Context, peer netip.Addr) (*apipb.GetTableResponse, error) {
	target := net.JoinHostPort(peer.String(), strconv.Itoa(s.port))

	client, err := s.dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			s.logger.Debug("close peer client",
				slog.String("peer", target),
				slog.String("error", cerr.Error()),
			)
		}
	}()

	table, err := client.GetTable(ctx, gobgp.IPv4Unicast())
	if err != nil {
		return nil, fmt.Errorf("get table from %s: %w", target, err)
	}
	return table, nil
}
