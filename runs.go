package sheetwidget

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RunState is what a RunTracker remembers about one record.
type RunState struct {
	Count   int
	LastRun time.Time
}

// RunTracker remembers, per record, how often and when a widget last acted on
// it. Widgets that trigger side effects on selection use it to act once per
// record, or at most once per interval.
type RunTracker struct {
	mu    sync.Mutex
	clock clock.Clock
	runs  map[int]RunState
}

// NewRunTracker creates an empty tracker.
func NewRunTracker(clk clock.Clock) *RunTracker {
	if clk == nil {
		clk = clock.New()
	}
	return &RunTracker{clock: clk, runs: make(map[int]RunState)}
}

// Check reports whether the widget may act on the record now. In one-shot
// mode a record is acted on once; otherwise runs are spaced by interval and
// wait tells how long until the next run is allowed.
func (t *RunTracker) Check(id int, oneShot bool, interval time.Duration) (ok bool, wait time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, seen := t.runs[id]
	if !seen || st.Count == 0 {
		return true, 0
	}
	if oneShot {
		return false, 0
	}
	elapsed := t.clock.Since(st.LastRun)
	if elapsed < interval {
		return false, interval - elapsed
	}
	return true, 0
}

// MarkRun records a run for the record and returns its new state.
func (t *RunTracker) MarkRun(id int) RunState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.runs[id]
	st.Count++
	st.LastRun = t.clock.Now()
	t.runs[id] = st
	return st
}

// State returns what is known about a record.
func (t *RunTracker) State(id int) (RunState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.runs[id]
	return st, ok
}

// Reset forgets a record.
func (t *RunTracker) Reset(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, id)
}
