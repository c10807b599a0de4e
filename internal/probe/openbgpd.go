package probe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
)

// errNoNeighbors indicates bgpctl output without a "neighbors" array.
var errNoNeighbors = errors.New(`missing "neighbors" array`)

// NewOpenBGPD returns the adapter for OpenBGPD. It runs
// `bgpctl -j show neighbor` on every sample.
func NewOpenBGPD(cfg CLIConfig) Adapter {
	return newCLIAdapter(string(TargetOpenBGPD), "bgpctl", cfg, ParseOpenBGPD, "-j", "show", "neighbor")
}

// bgpctl -j show neighbor, reduced to the fields used here.
type openbgpdOutput struct {
	Neighbors *[]openbgpdNeighbor `json:"neighbors"`
}

type openbgpdNeighbor struct {
	RemoteAddr string `json:"remote_addr"`
	Stats      *struct {
		Message *struct {
			Sent     *openbgpdMessage `json:"sent"`
			Received *openbgpdMessage `json:"received"`
		} `json:"message"`
	} `json:"stats"`
}

type openbgpdMessage struct {
	Updates *uint64 `json:"updates"`
}

// ParseOpenBGPD extracts per-peer UPDATE counters from the JSON printed by
// "bgpctl -j show neighbor".
//
// Neighbors whose remote address is a prefix (e.g. "172.16.0.0/16") are
// session templates rather than live sessions and are skipped, as are
// neighbors without statistics or without update traffic yet.
func ParseOpenBGPD(out []byte, at time.Time) (counter.Snapshot, []Skip, error) {
	var doc openbgpdOutput
	if err := json.Unmarshal(out, &doc); err != nil {
		return counter.Snapshot{}, nil, fmt.Errorf("decode JSON: %w", err)
	}
	if doc.Neighbors == nil {
		return counter.Snapshot{}, nil, errNoNeighbors
	}

	b := counter.NewBuilder()
	var skipped []Skip

	for i, n := range *doc.Neighbors {
		if strings.Contains(n.RemoteAddr, "/") {
			skipped = append(skipped, Skip{Peer: n.RemoteAddr, Reason: reasonTemplate})
			continue
		}

		addr, err := netip.ParseAddr(n.RemoteAddr)
		if err != nil {
			return counter.Snapshot{}, nil, fmt.Errorf("neighbors[%d] remote_addr: %w", i, err)
		}

		if n.Stats == nil || n.Stats.Message == nil ||
			n.Stats.Message.Sent == nil || n.Stats.Message.Sent.Updates == nil ||
			n.Stats.Message.Received == nil || n.Stats.Message.Received.Updates == nil {
			skipped = append(skipped, Skip{Peer: n.RemoteAddr, Reason: reasonMissingStats})
			continue
		}

		pc := counter.PeerCounter{
			Sent:     *n.Stats.Message.Sent.Updates,
			Received: *n.Stats.Message.Received.Updates,
		}
		if !pc.Started() {
			skipped = append(skipped, Skip{Peer: n.RemoteAddr, Reason: reasonNotStarted})
			continue
		}

		b.Set(addr, pc)
	}

	return b.Snapshot(at), skipped, nil
}
