package observe

import (
	"context"

	"github.com/aponysus/restream/internal"
)

// BaseObserver implements Observer with no-op methods. Embed it to implement
// only the hooks you need. The zero value is the executor's default observer.
type BaseObserver struct{}

func (BaseObserver) OnStart(context.Context, CallInfo)                  {}
func (BaseObserver) OnAttempt(context.Context, CallInfo, AttemptRecord) {}
func (BaseObserver) OnWaiting(context.Context, CallInfo, RetryState)    {}
func (BaseObserver) OnSuccess(context.Context, CallInfo, Timeline)      {}
func (BaseObserver) OnFailure(context.Context, CallInfo, Timeline)      {}

// MultiObserver fans every hook out to Observers in order. Nil entries,
// including typed nils, are skipped.
type MultiObserver struct {
	Observers []Observer
}

func (m MultiObserver) each(fn func(Observer)) {
	for _, o := range m.Observers {
		if !internal.IsTypedNil(o) {
			fn(o)
		}
	}
}

func (m MultiObserver) OnStart(ctx context.Context, call CallInfo) {
	m.each(func(o Observer) { o.OnStart(ctx, call) })
}

func (m MultiObserver) OnAttempt(ctx context.Context, call CallInfo, rec AttemptRecord) {
	m.each(func(o Observer) { o.OnAttempt(ctx, call, rec) })
}

func (m MultiObserver) OnWaiting(ctx context.Context, call CallInfo, state RetryState) {
	m.each(func(o Observer) { o.OnWaiting(ctx, call, state) })
}

func (m MultiObserver) OnSuccess(ctx context.Context, call CallInfo, tl Timeline) {
	m.each(func(o Observer) { o.OnSuccess(ctx, call, tl) })
}

func (m MultiObserver) OnFailure(ctx context.Context, call CallInfo, tl Timeline) {
	m.each(func(o Observer) { o.OnFailure(ctx, call, tl) })
}

// AttemptContext chains the AttemptContext hooks of Observers in order.
func (m MultiObserver) AttemptContext(ctx context.Context, call CallInfo, attempt int) context.Context {
	m.each(func(o Observer) {
		if ac, ok := o.(AttemptContexter); ok {
			ctx = ac.AttemptContext(ctx, call, attempt)
		}
	})
	return ctx
}
