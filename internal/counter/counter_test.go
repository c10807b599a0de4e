package counter_test

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/bgpwatch/internal/counter"
)

// peer is a shorthand for one entry in a test snapshot.
type peer struct {
	addr     string
	sent     uint64
	received uint64
}

func snapshot(t *testing.T, peers ...peer) counter.Snapshot {
	t.Helper()

	b := counter.NewBuilder()
	for _, p := range peers {
		b.Set(netip.MustParseAddr(p.addr), counter.PeerCounter{Sent: p.sent, Received: p.received})
	}
	return b.Snapshot(time.Now())
}

// -------------------------------------------------------------------------
// Snapshot
// -------------------------------------------------------------------------

func TestSnapshotAddrsSorted(t *testing.T) {
	t.Parallel()

	s := snapshot(t,
		peer{"10.0.0.3", 1, 1},
		peer{"10.0.0.1", 1, 1},
		peer{"10.0.0.2", 1, 1},
	)

	want := []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.3"),
	}
	if diff := cmp.Diff(want, s.Addrs(), cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
		t.Errorf("Addrs() mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotDuplicateLastWriteWins(t *testing.T) {
	t.Parallel()

	s := snapshot(t,
		peer{"10.0.0.1", 1, 2},
		peer{"10.0.0.1", 7, 8},
	)

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}
	if s.Duplicates() != 1 {
		t.Errorf("Duplicates() = %d, want 1", s.Duplicates())
	}

	pc, ok := s.Get(netip.MustParseAddr("10.0.0.1"))
	if !ok {
		t.Fatal("Get(10.0.0.1) not found")
	}
	if pc != (counter.PeerCounter{Sent: 7, Received: 8}) {
		t.Errorf("Get(10.0.0.1) = %+v, want {Sent:7 Received:8}", pc)
	}
}

func TestSnapshotUnmapsIPv4MappedAddrs(t *testing.T) {
	t.Parallel()

	s := snapshot(t, peer{"::ffff:10.0.0.1", 3, 4})

	if _, ok := s.Get(netip.MustParseAddr("10.0.0.1")); !ok {
		t.Error("IPv4-mapped address was not stored under its IPv4 form")
	}
}

func TestSnapshotTotals(t *testing.T) {
	t.Parallel()

	s := snapshot(t,
		peer{"10.0.0.1", 1, 10},
		peer{"2001:db8::1", 2, 20},
	)

	got := s.Totals()
	if got != (counter.PeerCounter{Sent: 3, Received: 30}) {
		t.Errorf("Totals() = %+v, want {Sent:3 Received:30}", got)
	}
}

// -------------------------------------------------------------------------
// Equality
// -------------------------------------------------------------------------

func TestEqualReflexive(t *testing.T) {
	t.Parallel()

	// Insertion order differs; map iteration order must not matter.
	a := snapshot(t, peer{"10.0.0.1", 5, 5}, peer{"10.0.0.2", 6, 7}, peer{"10.0.0.3", 8, 9})
	b := snapshot(t, peer{"10.0.0.3", 8, 9}, peer{"10.0.0.1", 5, 5}, peer{"10.0.0.2", 6, 7})

	for _, eq := range []struct {
		name string
		fn   counter.EqualFunc
	}{
		{"Equal", counter.Equal},
		{"EqualStarted", counter.EqualStarted},
	} {
		if !eq.fn(a, a) {
			t.Errorf("%s(a, a) = false, want true", eq.name)
		}
		if !eq.fn(a, b) || !eq.fn(b, a) {
			t.Errorf("%s(a, b) = false for reordered snapshot, want true", eq.name)
		}
	}
}

func TestEqualDisjointPeerSets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b counter.Snapshot
	}{
		{
			name: "same size different peers",
			a:    snapshot(t, peer{"10.0.0.1", 5, 5}),
			b:    snapshot(t, peer{"10.0.0.2", 5, 5}),
		},
		{
			name: "extra peer in b",
			a:    snapshot(t, peer{"10.0.0.1", 5, 5}),
			b:    snapshot(t, peer{"10.0.0.1", 5, 5}, peer{"10.0.0.2", 5, 5}),
		},
		{
			name: "extra peer in a",
			a:    snapshot(t, peer{"10.0.0.1", 5, 5}, peer{"10.0.0.2", 5, 5}),
			b:    snapshot(t, peer{"10.0.0.1", 5, 5}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if counter.Equal(tt.a, tt.b) {
				t.Error("Equal() = true, want false")
			}
			if counter.EqualStarted(tt.a, tt.b) {
				t.Error("EqualStarted() = true, want false")
			}
		})
	}
}

func TestEqualCounterMismatch(t *testing.T) {
	t.Parallel()

	a := snapshot(t, peer{"10.0.0.1", 5, 5})
	sent := snapshot(t, peer{"10.0.0.1", 6, 5})
	recv := snapshot(t, peer{"10.0.0.1", 5, 6})

	if counter.Equal(a, sent) {
		t.Error("Equal() ignored a sent count change")
	}
	if counter.Equal(a, recv) {
		t.Error("Equal() ignored a received count change")
	}
}

func TestEqualStartedRejectsZeroCounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    peer
	}{
		{"zero sent", peer{"10.0.0.1", 0, 5}},
		{"zero received", peer{"10.0.0.1", 5, 0}},
		{"both zero", peer{"10.0.0.1", 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := snapshot(t, tt.p)
			if counter.EqualStarted(s, s) {
				t.Error("EqualStarted(s, s) = true for a peer without traffic")
			}
			if !counter.Equal(s, s) {
				t.Error("Equal(s, s) = false, plain equality must stay reflexive")
			}
		})
	}
}

func TestEqualEmptySnapshots(t *testing.T) {
	t.Parallel()

	var a, b counter.Snapshot
	if !counter.Equal(a, b) {
		t.Error("Equal() of two empty snapshots = false, want true")
	}
}
