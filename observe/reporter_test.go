package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aponysus/restream/classify"
)

type recordingSink struct {
	mu      sync.Mutex
	updates []StateUpdate
	lines   []StatusLine
}

func (s *recordingSink) UpdateState(_ context.Context, u StateUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return nil
}

func (s *recordingSink) Say(_ context.Context, line StatusLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func waitingState() RetryState {
	return RetryState{
		CallID:        "call-1",
		Attempt:       2,
		FailedAttempt: 1,
		MaxAttempts:   5,
		WaitDuration:  2 * time.Second,
		Verdict:       classify.Verdict{Category: classify.CategoryServiceUnavailable, Status: 503, Retryable: true},
	}
}

func TestReporter_WaitingThenSuccess(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(context.Background(), sink, sink, nil)

	r.ReportWaiting(waitingState())
	r.ReportSuccess()

	require.Len(t, sink.updates, 2)
	require.NotNil(t, sink.updates[0].RetryStatus)
	assert.Equal(t, 2, sink.updates[0].RetryStatus.Attempt)
	assert.Nil(t, sink.updates[1].RetryStatus)
	assert.Nil(t, sink.updates[1].APIError)

	require.Len(t, sink.lines, 1)
	assert.Equal(t, LineRetrying, sink.lines[0].Kind)
	assert.Equal(t, "Service unavailable. Retrying in 2s (attempt 2/5)...", sink.lines[0].Text)
	assert.True(t, r.Done())
}

func TestReporter_TerminalIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(context.Background(), sink, sink, nil)

	r.ReportTerminalFailure("Request failed after 5 attempts.", classify.Verdict{Category: classify.CategoryServiceUnavailable, Status: 503})
	r.ReportSuccess()
	r.ReportCancelled("late")
	r.ReportTerminalFailure("again", classify.Verdict{})
	r.ReportWaiting(waitingState())

	require.Len(t, sink.updates, 1)
	assert.Nil(t, sink.updates[0].RetryStatus)
	require.NotNil(t, sink.updates[0].APIError)
	assert.Equal(t, APIErrorFinalFailure, sink.updates[0].APIError.Type)
	assert.Equal(t, 503, sink.updates[0].APIError.Status)
	require.Len(t, sink.lines, 1)
	assert.Equal(t, LineFailed, sink.lines[0].Kind)
}

func TestReporter_ConcurrentTerminalReportsFireOnce(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(context.Background(), sink, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.ReportSuccess()
			} else {
				r.ReportTerminalFailure("x", classify.Verdict{})
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, sink.updates, 1)
}

func TestReporter_DailyQuota(t *testing.T) {
	sink := &recordingSink{}
	r := NewReporter(context.Background(), sink, sink, nil)

	r.ReportTerminalFailure(DailyQuotaMessage, classify.Verdict{Category: classify.CategoryDailyQuotaExhausted, Status: 429})

	require.Len(t, sink.updates, 1)
	assert.Equal(t, APIErrorDailyQuota, sink.updates[0].APIError.Type)
	assert.Equal(t, LineDailyQuota, sink.lines[0].Kind)
	assert.Equal(t, DailyQuotaMessage, sink.lines[0].Text)
}

func TestReporter_Cancelled(t *testing.T) {
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	r := NewReporter(ctx, StateSinkFunc(func(ctx context.Context, u StateUpdate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return sink.UpdateState(ctx, u)
	}), nil, nil)
	cancel()

	r.ReportCancelled(CancelledMessage(1))

	require.Len(t, sink.updates, 1)
	assert.Equal(t, APIErrorCancelled, sink.updates[0].APIError.Type)
}

func TestReporter_SinkFailuresAreSwallowed(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	sink := StateSinkFunc(func(context.Context, StateUpdate) error { return errors.New("ui gone") })
	transcript := TranscriptFunc(func(context.Context, StatusLine) error { panic("render exploded") })
	r := NewReporter(context.Background(), sink, transcript, logger)

	require.NotPanics(t, func() {
		r.ReportWaiting(waitingState())
		r.ReportTerminalFailure("done", classify.Verdict{})
	})
	assert.True(t, r.Done())
	assert.Contains(t, logs.String(), "ui gone")
	assert.Contains(t, logs.String(), "render exploded")
}

func TestReporter_NilSinks(t *testing.T) {
	r := NewReporter(context.TODO(), nil, nil, nil)
	require.NotPanics(t, func() {
		r.ReportWaiting(waitingState())
		r.ReportSuccess()
	})
}
