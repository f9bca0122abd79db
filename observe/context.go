package observe

import (
	"context"
	"sync"
)

type (
	attemptKey struct{}
	captureKey struct{}
)

// AttemptInfo describes the attempt a wrapped operation is running as. Every
// attempt context carries one.
type AttemptInfo struct {
	CallID      string
	Name        string
	Attempt     int
	MaxAttempts int
}

// Last reports whether the attempt is at the attempt ceiling.
func (a AttemptInfo) Last() bool {
	return a.MaxAttempts > 0 && a.Attempt >= a.MaxAttempts
}

func WithAttemptInfo(ctx context.Context, info AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptKey{}, info)
}

// AttemptFromContext returns the AttemptInfo attached to ctx, if any.
func AttemptFromContext(ctx context.Context) (AttemptInfo, bool) {
	if ctx == nil {
		return AttemptInfo{}, false
	}
	info, ok := ctx.Value(attemptKey{}).(AttemptInfo)
	return info, ok
}

// TimelineCapture receives the timeline of the first wrapped call that
// finishes under the context returned by CaptureTimeline.
type TimelineCapture struct {
	once sync.Once
	done chan struct{}
	tl   Timeline
}

func CaptureTimeline(ctx context.Context) (context.Context, *TimelineCapture) {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &TimelineCapture{done: make(chan struct{})}
	return context.WithValue(ctx, captureKey{}, c), c
}

// CaptureFrom returns the capture requested on ctx, or nil.
func CaptureFrom(ctx context.Context) *TimelineCapture {
	if ctx == nil {
		return nil
	}
	c, _ := ctx.Value(captureKey{}).(*TimelineCapture)
	return c
}

// WithoutCapture hides any capture requested further up ctx. Attempt contexts
// use it so nested wrapped calls leave the outer capture alone.
func WithoutCapture(ctx context.Context) context.Context {
	return context.WithValue(ctx, captureKey{}, (*TimelineCapture)(nil))
}

// Publish stores tl. Only the first call has an effect.
func (c *TimelineCapture) Publish(tl Timeline) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.tl = tl
		close(c.done)
	})
}

// Done is closed once a timeline has been published.
func (c *TimelineCapture) Done() <-chan struct{} { return c.done }

// Timeline returns a copy of the published timeline, or nil before Done is closed.
func (c *TimelineCapture) Timeline() *Timeline {
	if c == nil {
		return nil
	}
	select {
	case <-c.done:
		tl := c.tl
		return &tl
	default:
		return nil
	}
}
