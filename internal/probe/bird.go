package probe

import (
	"bufio"
	"bytes"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
)

// BIRD prints one block per protocol for "show protocols all". The block
// header starts in column zero; BGP blocks carry
//
//	Neighbor address: 10.0.0.2
//
// and each channel contributes a route change stats table whose first
// numeric column is used:
//
//	Import updates:           1000          0          0          0       1000
//	Export updates:           1000       1000          0        ---          0
var (
	birdNeighborRe = regexp.MustCompile(`Neighbor address:\s*([0-9A-Fa-f.:]+)`)
	birdImportRe   = regexp.MustCompile(`Import updates:\D*(\d+)`)
	birdExportRe   = regexp.MustCompile(`Export updates:\D*(\d+)`)
)

// NewBIRD returns the adapter for BIRD. It runs `birdc show protocols all`
// on every sample.
func NewBIRD(cfg CLIConfig) Adapter {
	return newCLIAdapter(string(TargetBIRD), "birdc", cfg, ParseBIRD, "show", "protocols", "all")
}

// birdBlock accumulates one protocol block.
type birdBlock struct {
	addr      string
	imported  uint64
	exported  uint64
	hasImport bool
	hasExport bool
}

// ParseBIRD extracts per-peer UPDATE counters from BIRD's
// "show protocols all" output. Received updates come from the Import
// updates line and sent updates from the Export updates line, summed over
// the channels of a protocol.
//
// A protocol with an import count of zero has not started receiving and is
// left out of the snapshot. So is a BGP block that never reaches both
// update lines.
func ParseBIRD(out []byte, at time.Time) (counter.Snapshot, []Skip, error) {
	b := counter.NewBuilder()
	var skipped []Skip
	var cur birdBlock

	flush := func() error {
		defer func() { cur = birdBlock{} }()

		if cur.addr == "" {
			return nil
		}
		addr, err := netip.ParseAddr(cur.addr)
		if err != nil {
			return fmt.Errorf("neighbor address %q: %w", cur.addr, err)
		}
		switch {
		case !cur.hasImport || !cur.hasExport:
			skipped = append(skipped, Skip{Peer: cur.addr, Reason: reasonNoCounts})
		case cur.imported == 0:
			skipped = append(skipped, Skip{Peer: cur.addr, Reason: reasonNotStarted})
		default:
			b.Set(addr, counter.PeerCounter{Sent: cur.exported, Received: cur.imported})
		}
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()

		// A line starting in column zero opens a new protocol block (or is
		// a birdc banner/table header, which opens an empty one).
		if line != "" && line[0] != ' ' && line[0] != '\t' {
			if err := flush(); err != nil {
				return counter.Snapshot{}, nil, err
			}
			continue
		}

		if m := birdNeighborRe.FindStringSubmatch(line); m != nil {
			cur.addr = m[1]
			continue
		}
		if m := birdImportRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 64)
			if err != nil {
				return counter.Snapshot{}, nil, fmt.Errorf("import updates %q: %w", m[1], err)
			}
			cur.imported += n
			cur.hasImport = true
			continue
		}
		if m := birdExportRe.FindStringSubmatch(line); m != nil {
			n, err := strconv.ParseUint(m[1], 10, 64)
			if err != nil {
				return counter.Snapshot{}, nil, fmt.Errorf("export updates %q: %w", m[1], err)
			}
			cur.exported += n
			cur.hasExport = true
		}
	}
	if err := sc.Err(); err != nil {
		return counter.Snapshot{}, nil, fmt.Errorf("scan output: %w", err)
	}
	if err := flush(); err != nil {
		return counter.Snapshot{}, nil, err
	}

	return b.Snapshot(at), skipped, nil
}
