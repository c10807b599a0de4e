package counter

// EqualFunc decides whether two snapshots carry the same counters.
type EqualFunc func(a, b Snapshot) bool

// Equal reports whether a and b contain exactly the same set of peers with
// identical sent and received counts. Capture times are ignored.
func Equal(a, b Snapshot) bool {
	if len(a.peers) != len(b.peers) {
		return false
	}
	for addr, pa := range a.peers {
		pb, ok := b.peers[addr]
		if !ok || pa != pb {
			return false
		}
	}
	return true
}

// EqualStarted is Equal with the additional rule that a peer whose sent or
// received count is zero on either side never compares equal. Sessions that
// have not exchanged updates yet must not look converged.
func EqualStarted(a, b Snapshot) bool {
	if len(a.peers) != len(b.peers) {
		return false
	}
	for addr, pa := range a.peers {
		pb, ok := b.peers[addr]
		if !ok {
			return false
		}
		if !pa.Started() || !pb.Started() {
			return false
		}
		if pa != pb {
			return false
		}
	}
	return true
}
