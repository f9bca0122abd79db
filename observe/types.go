package observe

import (
	"context"
	"time"

	"github.com/aponysus/restream/classify"
)

// RetryState describes a call that is waiting between attempts. It exists only
// between a failed attempt and the next attempt (or the terminal report).
type RetryState struct {
	CallID string
	Name   string

	// Attempt is the 1-based attempt that will run once the wait elapses.
	Attempt       int
	FailedAttempt int
	MaxAttempts   int

	Verdict       classify.Verdict
	WaitDuration  time.Duration
	WaitStartedAt time.Time
	RetryAt       time.Time
}

// APIError types published on terminal failure.
const (
	APIErrorDailyQuota   = "dailyQuotaExceeded"
	APIErrorFinalFailure = "finalFailure"
	APIErrorCancelled    = "cancelled"
)

// APIErrorStatus is the terminal failure published to the state sink.
type APIErrorStatus struct {
	Type    string
	Message string
	Status  int
}

// StateUpdate is one write to the UI's retry slot. A nil RetryStatus clears it.
type StateUpdate struct {
	RetryStatus *RetryState
	APIError    *APIErrorStatus
}

// StateSink receives retry slot updates.
type StateSink interface {
	UpdateState(ctx context.Context, u StateUpdate) error
}

// StateSinkFunc adapts a function to StateSink.
type StateSinkFunc func(ctx context.Context, u StateUpdate) error

func (f StateSinkFunc) UpdateState(ctx context.Context, u StateUpdate) error { return f(ctx, u) }

// LineKind tells the UI how to render a status line.
type LineKind int

const (
	LineRetrying LineKind = iota
	LineFailed
	LineDailyQuota
	LineCancelled
)

func (k LineKind) String() string {
	switch k {
	case LineRetrying:
		return "retrying"
	case LineFailed:
		return "failed"
	case LineDailyQuota:
		return "daily_quota"
	case LineCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// StatusLine is a human-readable progress message. State is set for waits.
type StatusLine struct {
	Kind  LineKind
	Text  string
	State *RetryState
}

// Transcript receives status lines, usually interleaved with streamed output.
type Transcript interface {
	Say(ctx context.Context, line StatusLine) error
}

// TranscriptFunc adapts a function to Transcript.
type TranscriptFunc func(ctx context.Context, line StatusLine) error

func (f TranscriptFunc) Say(ctx context.Context, line StatusLine) error { return f(ctx, line) }

// CallInfo identifies one wrapped call.
type CallInfo struct {
	CallID      string
	Name        string
	MaxAttempts int
	Start       time.Time
}

// AttemptRecord describes a single attempt.
type AttemptRecord struct {
	Attempt   int
	StartTime time.Time
	EndTime   time.Time

	// Chunks is the number of chunks forwarded to the consumer.
	Chunks int

	// Verdict is zero for successful attempts.
	Verdict classify.Verdict
	Err     error

	// Wait is the delay scheduled after this attempt, zero if none.
	Wait time.Duration
}

// Timeline is the structured record of a single call and all of its attempts.
type Timeline struct {
	CallID string
	Name   string
	Start  time.Time
	End    time.Time

	// Attributes holds call-level metadata such as config source and normalization notes.
	Attributes map[string]string

	Attempts []AttemptRecord
	FinalErr error
}

// Observer receives lifecycle callbacks for a single call.
type Observer interface {
	OnStart(ctx context.Context, call CallInfo)
	OnAttempt(ctx context.Context, call CallInfo, rec AttemptRecord)
	OnWaiting(ctx context.Context, call CallInfo, state RetryState)
	OnSuccess(ctx context.Context, call CallInfo, tl Timeline)
	OnFailure(ctx context.Context, call CallInfo, tl Timeline)
}

// AttemptContexter is an optional Observer extension. AttemptContext runs
// before each attempt and returns the context the operation sees, so an
// observer can attach values such as a tracing span.
type AttemptContexter interface {
	AttemptContext(ctx context.Context, call CallInfo, attempt int) context.Context
}
