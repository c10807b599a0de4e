package counter

// DefaultWindowSize is the number of consecutive identical snapshots needed
// before the router is considered converged.
const DefaultWindowSize = 3

// Phase is the state of a Window.
type Phase uint8

const (
	// PhasePriming means the window holds fewer snapshots than its capacity.
	PhasePriming Phase = iota
	// PhaseSteady means the window is full and every push is evaluated.
	PhaseSteady
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhasePriming:
		return "priming"
	case PhaseSteady:
		return "steady"
	default:
		return "unknown"
	}
}

// Window keeps the most recent snapshots, newest first, and decides whether
// they indicate a stabilized router. A full window never returns to
// PhasePriming.
//
// Window is owned by a single goroutine and is not safe for concurrent use.
type Window struct {
	capacity int
	equal    EqualFunc
	history  []Snapshot
}

// NewWindow returns an empty window holding up to capacity snapshots and
// comparing them with equal. A capacity below 2 is raised to 2 and a nil
// equal defaults to Equal.
func NewWindow(capacity int, equal EqualFunc) *Window {
	if capacity < 2 {
		capacity = 2
	}
	if equal == nil {
		equal = Equal
	}
	return &Window{
		capacity: capacity,
		equal:    equal,
		history:  make([]Snapshot, 0, capacity+1),
	}
}

// Push adds s as the newest snapshot, evicting the oldest once the window
// exceeds its capacity.
func (w *Window) Push(s Snapshot) {
	w.history = append(w.history, Snapshot{})
	copy(w.history[1:], w.history)
	w.history[0] = s
	if len(w.history) > w.capacity {
		w.history[len(w.history)-1] = Snapshot{}
		w.history = w.history[:w.capacity]
	}
}

// Stable reports whether the window is full, its newest snapshot has at
// least one peer, and every snapshot equals the newest one.
func (w *Window) Stable() bool {
	if len(w.history) != w.capacity {
		return false
	}
	newest := w.history[0]
	if newest.Len() == 0 {
		return false
	}
	for _, s := range w.history[1:] {
		if !w.equal(newest, s) {
			return false
		}
	}
	return true
}

// Phase returns PhaseSteady once the window has been filled.
func (w *Window) Phase() Phase {
	if len(w.history) < w.capacity {
		return PhasePriming
	}
	return PhaseSteady
}

// Len returns the number of snapshots held.
func (w *Window) Len() int {
	return len(w.history)
}

// Capacity returns the maximum number of snapshots held.
func (w *Window) Capacity() int {
	return w.capacity
}

// Latest returns the newest snapshot, if any.
func (w *Window) Latest() (Snapshot, bool) {
	if len(w.history) == 0 {
		return Snapshot{}, false
	}
	return w.history[0], true
}

// At returns the i-th snapshot, counting from the newest (0).
func (w *Window) At(i int) (Snapshot, bool) {
	if i < 0 || i >= len(w.history) {
		return Snapshot{}, false
	}
	return w.history[i], true
}
