package retry

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/observe"
)

var testStart = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sleepRecorder struct {
	mu    sync.Mutex
	clock *fakeClock
	waits []time.Duration
	hook  func(ctx context.Context, d time.Duration) error
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, d); err != nil {
			return err
		}
	}
	s.clock.advance(d)
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

type recordingSink struct {
	mu      sync.Mutex
	updates []observe.StateUpdate
	lines   []observe.StatusLine
}

func (s *recordingSink) UpdateState(_ context.Context, u observe.StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *recordingSink) Say(_ context.Context, line observe.StatusLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *recordingSink) last() observe.StateUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.updates) == 0 {
		return observe.StateUpdate{}
	}
	return s.updates[len(s.updates)-1]
}

// terminalUpdates counts updates that clear the retry slot.
func (s *recordingSink) terminalUpdates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.updates {
		if u.RetryStatus == nil {
			n++
		}
	}
	return n
}

func (s *recordingSink) waiting() []observe.RetryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []observe.RetryState
	for _, u := range s.updates {
		if u.RetryStatus != nil {
			out = append(out, *u.RetryStatus)
		}
	}
	return out
}

type harness struct {
	exec   *Executor
	clock  *fakeClock
	sleeps *sleepRecorder
	sink   *recordingSink
}

func newHarness(t *testing.T, opts ...ExecutorOption) *harness {
	t.Helper()
	clock := &fakeClock{now: testStart}
	sink := &recordingSink{}
	base := []ExecutorOption{
		WithName("test"),
		WithClock(clock.Now),
		WithStateSink(sink),
		WithTranscript(sink),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	exec := NewExecutor(append(base, opts...)...)
	sleeps := &sleepRecorder{clock: clock}
	exec.sleep = sleeps.sleep
	return &harness{exec: exec, clock: clock, sleeps: sleeps, sink: sink}
}

type step struct {
	chunks []string
	err    error
}

// scripted returns an operation whose n-th attempt plays steps[n], repeating
// the last step once the script runs out.
func scripted(steps ...step) (Operation[string], *atomic.Int32) {
	calls := &atomic.Int32{}
	op := func(ctx context.Context) iter.Seq2[string, error] {
		n := int(calls.Add(1)) - 1
		if n >= len(steps) {
			n = len(steps) - 1
		}
		s := steps[n]
		return func(yield func(string, error) bool) {
			for _, c := range s.chunks {
				if !yield(c, nil) {
					return
				}
			}
			if s.err != nil {
				yield("", s.err)
			}
		}
	}
	return op, calls
}

func status(code int) error {
	return &classify.APIError{Status: code}
}

func drain[C any](ctx context.Context, op Operation[C]) ([]C, []error) {
	var chunks []C
	var errs []error
	for c, err := range op(ctx) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks, errs
}
