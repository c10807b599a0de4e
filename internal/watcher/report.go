package watcher

import (
	"fmt"
	"io"
	"time"

	"github.com/dantte-lp/bgpwatch/internal/counter"
)

// Report is the per-tick progress record.
type Report struct {
	// Elapsed is measured from the start of Run.
	Elapsed    time.Duration
	Peers      int
	Stabilized bool
	Phase      counter.Phase
}

// String formats the report as a progress line, e.g.
// "elapsed: 3.002s, peers: 8, stabilized: false".
func (r Report) String() string {
	return fmt.Sprintf("elapsed: %.3fs, peers: %d, stabilized: %t",
		r.Elapsed.Seconds(), r.Peers, r.Stabilized)
}

// Reporter consumes progress reports.
type Reporter interface {
	Report(r Report) error
}

// LineReporter writes each report as one line.
type LineReporter struct {
	w io.Writer
}

// NewLineReporter returns a reporter writing to w, normally os.Stdout.
func NewLineReporter(w io.Writer) *LineReporter {
	return &LineReporter{w: w}
}

// Report writes r followed by a newline.
func (lr *LineReporter) Report(r Report) error {
	if _, err := fmt.Fprintln(lr.w, r.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

type nopReporter struct{}

func (nopReporter) Report(Report) error { return nil }
