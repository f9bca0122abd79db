package observe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aponysus/restream/classify"
)

// Reporter publishes the retry lifecycle of one call to a StateSink and a
// Transcript.
//
// Exactly one terminal report (success, failure or cancellation) takes effect;
// later reports of any kind are ignored. Sink errors and panics are logged and
// never reach the caller.
type Reporter struct {
	ctx        context.Context
	sink       StateSink
	transcript Transcript
	logger     *slog.Logger
	done       atomic.Bool
}

// NewReporter creates a Reporter for one call. Nil sinks are skipped. ctx is
// detached from cancellation so terminal resets are delivered after the call's
// context ends.
func NewReporter(ctx context.Context, sink StateSink, transcript Transcript, logger *slog.Logger) *Reporter {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		ctx:        context.WithoutCancel(ctx),
		sink:       sink,
		transcript: transcript,
		logger:     logger,
	}
}

// Done reports whether a terminal report has been made.
func (r *Reporter) Done() bool { return r.done.Load() }

// ReportWaiting publishes state and its banner. It is a no-op after a terminal
// report.
func (r *Reporter) ReportWaiting(state RetryState) {
	if r.done.Load() {
		return
	}
	s := state
	r.update(StateUpdate{RetryStatus: &s})
	r.say(StatusLine{Kind: LineRetrying, Text: WaitingBanner(s), State: &s})
}

// ReportSuccess clears the retry slot.
func (r *Reporter) ReportSuccess() {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.update(StateUpdate{})
}

// ReportTerminalFailure clears the retry slot, publishes the API error and says
// message.
func (r *Reporter) ReportTerminalFailure(message string, v classify.Verdict) {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	kind, typ := LineFailed, APIErrorFinalFailure
	if v.Category == classify.CategoryDailyQuotaExhausted {
		kind, typ = LineDailyQuota, APIErrorDailyQuota
	}
	r.update(StateUpdate{APIError: &APIErrorStatus{Type: typ, Message: message, Status: v.Status}})
	r.say(StatusLine{Kind: kind, Text: message})
}

// ReportCancelled clears the retry slot after the caller abandoned the call.
func (r *Reporter) ReportCancelled(message string) {
	if !r.done.CompareAndSwap(false, true) {
		return
	}
	r.update(StateUpdate{APIError: &APIErrorStatus{Type: APIErrorCancelled, Message: message}})
	r.say(StatusLine{Kind: LineCancelled, Text: message})
}

func (r *Reporter) update(u StateUpdate) {
	if r.sink == nil {
		return
	}
	r.guard("state_sink", func() error { return r.sink.UpdateState(r.ctx, u) })
}

func (r *Reporter) say(line StatusLine) {
	if r.transcript == nil {
		return
	}
	r.guard("transcript", func() error { return r.transcript.Say(r.ctx, line) })
}

func (r *Reporter) guard(component string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Warn("observer panicked", "component", component, "panic", fmt.Sprint(p))
		}
	}()
	if err := fn(); err != nil {
		r.logger.Warn("observer failed", "component", component, "error", err)
	}
}
