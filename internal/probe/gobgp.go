package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
	"github.com/dantte-lp/bgpwatch/internal/gobgp"
)

// GoBGP samples counters through the GoBGP gRPC API. The client connection
// is created once and reused for every sample.
type GoBGP struct {
	client gobgp.Client
	now    func() time.Time
	logger *slog.Logger
}

// NewGoBGP returns an adapter reading peers from client.
func NewGoBGP(client gobgp.Client, now func() time.Time, logger *slog.Logger) *GoBGP {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &GoBGP{
		client: client,
		now:    now,
		logger: logger.With(slog.String("component", "probe.gobgp")),
	}
}

// Name implements Adapter.
func (g *GoBGP) Name() string { return string(TargetGoBGP) }

// Equality implements Comparer. GoBGP reports zero counters for sessions
// that are configured but idle, so those must never look stable.
func (g *GoBGP) Equality() counter.EqualFunc { return counter.EqualStarted }

// Sample lists every peer and reads the UPDATE counters from its message
// statistics. A peer without statistics is omitted from the snapshot.
func (g *GoBGP) Sample(ctx context.Context) (counter.Snapshot, error) {
	peers, err := g.client.ListPeers(ctx)
	if err != nil {
		return counter.Snapshot{}, fmt.Errorf("gobgp: %w: %w", ErrProbeFailed, err)
	}

	b := counter.NewBuilder()
	var skipped []Skip

	for i, p := range peers {
		state := p.GetState()
		if state == nil {
			return counter.Snapshot{}, fmt.Errorf("gobgp: peer %d has no state: %w", i, ErrProbeFailed)
		}

		addr, err := netip.ParseAddr(state.GetNeighborAddress())
		if err != nil {
			return counter.Snapshot{}, fmt.Errorf("gobgp: peer %d neighbor address: %w: %w", i, ErrProbeFailed, err)
		}

		msgs := state.GetMessages()
		if msgs.GetSent() == nil || msgs.GetReceived() == nil {
			skipped = append(skipped, Skip{Peer: addr.String(), Reason: reasonMissingStats})
			continue
		}

		b.Set(addr, counter.PeerCounter{
			Sent:     msgs.GetSent().GetUpdate(),
			Received: msgs.GetReceived().GetUpdate(),
		})
	}

	snap := b.Snapshot(g.now())

	logSkipped(g.logger, skipped)
	logDuplicates(g.logger, snap)

	return snap, nil
}
