// Package counter holds the per-peer BGP UPDATE counter model and the
// sliding-window stabilization detector built on top of it.
//
// A Snapshot captures cumulative UPDATE message counts for every BGP session
// reported by a router at one instant. A Window keeps the last N snapshots
// and reports the router as converged once all of them are equal.
package counter

import (
	"net/netip"
	"slices"
	"time"
)

// PeerCounter is the cumulative number of BGP UPDATE messages exchanged with
// one peer since the session came up. A session reset drops both values
// back to zero.
type PeerCounter struct {
	Sent     uint64
	Received uint64
}

// Started reports whether update traffic has been observed in both
// directions. A zero value on either side means the counters are not yet
// comparable.
func (pc PeerCounter) Started() bool {
	return pc.Sent != 0 && pc.Received != 0
}

// -------------------------------------------------------------------------
// Snapshot
// -------------------------------------------------------------------------

// Snapshot is an immutable set of per-peer counters captured at one instant.
// Construct it with a Builder; the zero value is an empty snapshot.
type Snapshot struct {
	peers      map[netip.Addr]PeerCounter
	capturedAt time.Time
	duplicates int
}

// Len returns the number of peers in the snapshot.
func (s Snapshot) Len() int {
	return len(s.peers)
}

// Get returns the counters recorded for addr.
func (s Snapshot) Get(addr netip.Addr) (PeerCounter, bool) {
	pc, ok := s.peers[addr]
	return pc, ok
}

// Addrs returns the peer addresses in ascending order.
func (s Snapshot) Addrs() []netip.Addr {
	addrs := make([]netip.Addr, 0, len(s.peers))
	for addr := range s.peers {
		addrs = append(addrs, addr)
	}
	slices.SortFunc(addrs, func(a, b netip.Addr) int { return a.Compare(b) })
	return addrs
}

// CapturedAt returns the time the snapshot was taken.
func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

// Duplicates returns how many times an address was recorded more than once
// while the snapshot was being built. The last value recorded wins.
func (s Snapshot) Duplicates() int {
	return s.duplicates
}

// Totals returns the sum of sent and received updates over all peers.
func (s Snapshot) Totals() PeerCounter {
	var total PeerCounter
	for _, pc := range s.peers {
		total.Sent += pc.Sent
		total.Received += pc.Received
	}
	return total
}

// -------------------------------------------------------------------------
// Builder
// -------------------------------------------------------------------------

// Builder accumulates peer counters for a single Snapshot. It is not safe
// for concurrent use.
type Builder struct {
	peers      map[netip.Addr]PeerCounter
	duplicates int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{peers: make(map[netip.Addr]PeerCounter)}
}

// Set records counters for addr. IPv4-mapped IPv6 addresses are unmapped so
// that the same session always yields the same key.
func (b *Builder) Set(addr netip.Addr, pc PeerCounter) {
	addr = addr.Unmap()
	if _, dup := b.peers[addr]; dup {
		b.duplicates++
	}
	b.peers[addr] = pc
}

// Snapshot freezes the accumulated counters, stamped with capturedAt.
// The Builder must not be used afterwards.
func (b *Builder) Snapshot(capturedAt time.Time) Snapshot {
	s := Snapshot{
		peers:      b.peers,
		capturedAt: capturedAt,
		duplicates: b.duplicates,
	}
	b.peers = nil
	return s
}
