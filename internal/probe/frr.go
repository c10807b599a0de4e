package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
)

// FRR output of "show bgp neighbors" starts every peer with
//
//	BGP neighbor is 10.0.0.2, remote AS 65002, local AS 65001, external link
//
// (or "BGP neighbor is *10.0.0.5, ..." for peers accepted from a listen
// range, "BGP neighbor on eth0: fe80::2, ..." for unnumbered sessions) and
// later carries the message statistics table, where
//
//	Updates:                3          2
//
// holds the sent and received UPDATE counts.
var (
	frrNeighborRe = regexp.MustCompile(`^BGP neighbor (?:is|on \S+:) \*?([0-9A-Fa-f.:]+),`)
	frrUpdatesRe  = regexp.MustCompile(`^\s*Updates:\D+(\d+)\D+(\d+)`)
)

// NewFRR returns the adapter for FRRouting. It runs
// `vtysh -c "show bgp neighbors"` on every sample; the process needs to be
// in the vtysh group.
func NewFRR(cfg CLIConfig) Adapter {
	return newCLIAdapter(string(TargetFRR), "vtysh", cfg, ParseFRR, "-c", "show bgp neighbors")
}

// ParseFRR extracts per-peer UPDATE counters from FRR's
// "show bgp neighbors" output.
//
// A neighbor whose block ends before its Updates line is omitted, as is a
// neighbor that has not sent or received any update yet. A neighbor header
// that cannot be read closes the previous block and is reported as skipped,
// so its counters are never credited to another peer.
func ParseFRR(out []byte, at time.Time) (counter.Snapshot, []Skip, error) {
	b := counter.NewBuilder()
	var skipped []Skip

	var pending string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()

		if strings.HasPrefix(line, "BGP neighbor") {
			if pending != "" {
				skipped = append(skipped, Skip{Peer: pending, Reason: reasonNoCounts})
			}
			pending = ""

			m := frrNeighborRe.FindStringSubmatch(line)
			if m == nil {
				skipped = append(skipped, Skip{Peer: line, Reason: reasonBadHeader})
				continue
			}
			pending = m[1]
			continue
		}

		m := frrUpdatesRe.FindStringSubmatch(line)
		if m == nil || pending == "" {
			continue
		}

		addr, err := netip.ParseAddr(pending)
		if err != nil {
			return counter.Snapshot{}, nil, fmt.Errorf("neighbor address %q: %w", pending, err)
		}
		pc, err := parseCounts(m[1], m[2])
		if err != nil {
			return counter.Snapshot{}, nil, fmt.Errorf("neighbor %s: %w", pending, err)
		}

		if pc.Started() {
			b.Set(addr, pc)
		} else {
			skipped = append(skipped, Skip{Peer: pending, Reason: reasonNotStarted})
		}
		pending = ""
	}
	if err := sc.Err(); err != nil {
		return counter.Snapshot{}, nil, fmt.Errorf("scan output: %w", err)
	}

	if pending != "" {
		skipped = append(skipped, Skip{Peer: pending, Reason: reasonNoCounts})
	}

	return b.Snapshot(at), skipped, nil
}

// parseCounts converts a sent/received pair of decimal strings.
func parseCounts(sent, received string) (counter.PeerCounter, error) {
	s, err := strconv.ParseUint(sent, 10, 64)
	if err != nil {
		return counter.PeerCounter{}, fmt.Errorf("sent updates %q: %w", sent, err)
	}
	r, err := strconv.ParseUint(received, 10, 64)
	if err != nil {
		return counter.PeerCounter{}, fmt.Errorf("received updates %q: %w", received, err)
	}
	return counter.PeerCounter{Sent: s, Received: r}, nil
}
