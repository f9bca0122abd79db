package observe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned by a Queue after Close.
var ErrQueueClosed = errors.New("restream: observer queue closed")

// Queue serializes state updates and status lines from concurrent calls onto
// one StateSink and one Transcript. Enqueueing never blocks; delivery happens in
// FIFO order on a single goroutine.
type Queue struct {
	sink       StateSink
	transcript Transcript
	logger     *slog.Logger

	mu     sync.Mutex
	items  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewQueue starts a Queue delivering to sink and transcript. Either may be nil.
func NewQueue(sink StateSink, transcript Transcript, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		sink:       sink,
		transcript: transcript,
		logger:     logger,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go q.run()
	return q
}

// UpdateState enqueues u.
func (q *Queue) UpdateState(ctx context.Context, u StateUpdate) error {
	if q.sink == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	return q.push(func() {
		q.deliver("state_sink", func() error { return q.sink.UpdateState(ctx, u) })
	})
}

// Say enqueues line.
func (q *Queue) Say(ctx context.Context, line StatusLine) error {
	if q.transcript == nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	return q.push(func() {
		q.deliver("transcript", func() error { return q.transcript.Say(ctx, line) })
	})
}

// Close stops accepting items, delivers everything already queued and returns
// once the delivery goroutine has exited. It is safe to call more than once.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.signal()
	}
	q.mu.Unlock()
	<-q.done
	return nil
}

func (q *Queue) push(item func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	q.signal()
	return nil
}

// signal must be called with mu held.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		<-q.wake
		for {
			q.mu.Lock()
			batch := q.items
			q.items = nil
			closed := q.closed
			q.mu.Unlock()

			for _, item := range batch {
				item()
			}
			if len(batch) == 0 {
				if closed {
					return
				}
				break
			}
		}
	}
}

func (q *Queue) deliver(component string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			q.logger.Warn("queued observer panicked", "component", component, "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		q.logger.Warn("queued observer failed", "component", component, "error", err)
	}
}
