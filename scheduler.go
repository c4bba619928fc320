package sheetwidget

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Operation is a deferred unit of work bound to a key.
type Operation func(ctx context.Context) error

// Scheduler keeps at most one pending operation per key. Scheduling a key
// again cancels the pending operation and arms a new timer, so only the last
// operation of a burst runs.
type Scheduler[K comparable] struct {
	mu      sync.Mutex
	clock   clock.Clock
	ctx     context.Context
	ops     map[K]*scheduledOp
	seq     uint64
	onError func(key K, err error)
	stopped bool
}

type scheduledOp struct {
	fn          Operation
	delay       time.Duration
	scheduledAt time.Time
	timer       *clock.Timer
	seq         uint64
}

// NewScheduler creates a scheduler. Operations fired by their timer run with
// ctx; their errors are passed to onError when it is non-nil.
func NewScheduler[K comparable](ctx context.Context, clk clock.Clock, onError func(key K, err error)) *Scheduler[K] {
	if clk == nil {
		clk = clock.New()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Scheduler[K]{
		clock:   clk,
		ctx:     ctx,
		ops:     make(map[K]*scheduledOp),
		onError: onError,
	}
}

// Schedule arms fn to run after delay, replacing any pending operation for
// the same key.
func (s *Scheduler[K]) Schedule(key K, delay time.Duration, fn Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if prev, ok := s.ops[key]; ok {
		prev.timer.Stop()
		delete(s.ops, key)
	}

	s.seq++
	op := &scheduledOp{
		fn:          fn,
		delay:       delay,
		scheduledAt: s.clock.Now(),
		seq:         s.seq,
	}
	op.timer = s.clock.AfterFunc(delay, func() { s.fire(key, op) })
	s.ops[key] = op
}

// fire runs op unless it was replaced or cancelled in the meantime.
func (s *Scheduler[K]) fire(key K, op *scheduledOp) {
	s.mu.Lock()
	if current, ok := s.ops[key]; !ok || current != op {
		s.mu.Unlock()
		return
	}
	delete(s.ops, key)
	s.mu.Unlock()

	if err := op.fn(s.ctx); err != nil && s.onError != nil {
		s.onError(key, err)
	}
}

// Cancel drops the pending operation for key. It reports whether one existed.
func (s *Scheduler[K]) Cancel(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[key]
	if !ok {
		return false
	}
	op.timer.Stop()
	delete(s.ops, key)
	return true
}

// RunNow runs the pending operations for the given keys, or all of them when
// no key is given, in the order they were scheduled. Each operation is
// removed before it runs. Errors are joined.
func (s *Scheduler[K]) RunNow(ctx context.Context, keys ...K) error {
	s.mu.Lock()
	var wanted map[K]bool
	if len(keys) > 0 {
		wanted = make(map[K]bool, len(keys))
		for _, k := range keys {
			wanted[k] = true
		}
	}

	type due struct {
		key K
		op  *scheduledOp
	}
	var run []due
	for key, op := range s.ops {
		if wanted != nil && !wanted[key] {
			continue
		}
		op.timer.Stop()
		delete(s.ops, key)
		run = append(run, due{key: key, op: op})
	}
	s.mu.Unlock()

	sort.Slice(run, func(i, j int) bool { return run[i].op.seq < run[j].op.seq })

	var errs []error
	for _, d := range run {
		if err := d.op.fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns the keys with a pending operation in scheduling order.
func (s *Scheduler[K]) Pending() []K {
	s.mu.Lock()
	defer s.mu.Unlock()

	type entry struct {
		key K
		seq uint64
	}
	entries := make([]entry, 0, len(s.ops))
	for key, op := range s.ops {
		entries = append(entries, entry{key: key, seq: op.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	keys := make([]K, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys
}

// Due returns when the pending operation for key is going to run.
func (s *Scheduler[K]) Due(key K) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.ops[key]
	if !ok {
		return time.Time{}, false
	}
	return op.scheduledAt.Add(op.delay), true
}

// Len returns the number of pending operations.
func (s *Scheduler[K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Stop cancels every pending operation and rejects new ones.
func (s *Scheduler[K]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, op := range s.ops {
		op.timer.Stop()
		delete(s.ops, key)
	}
	s.stopped = true
}
