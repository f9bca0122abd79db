package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/observe"
)

func TestObserver_RecordsLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := New(reg)
	ctx := context.Background()
	call := observe.CallInfo{CallID: "c1", Name: "chat", MaxAttempts: 3}
	start := time.Unix(100, 0)

	o.OnStart(ctx, call)
	assert.Equal(t, 1.0, testutil.ToFloat64(o.inFlight.WithLabelValues("chat")))

	failed := observe.AttemptRecord{
		Attempt: 1,
		Err:     errors.New("503"),
		Verdict: classify.Verdict{Category: classify.CategoryServiceUnavailable},
		Chunks:  2,
	}
	o.OnAttempt(ctx, call, failed)
	o.OnWaiting(ctx, call, observe.RetryState{Attempt: 2, WaitDuration: 2 * time.Second, Verdict: failed.Verdict})
	o.OnAttempt(ctx, call, observe.AttemptRecord{Attempt: 2, Chunks: 5})
	o.OnSuccess(ctx, call, observe.Timeline{Start: start, End: start.Add(3 * time.Second)})

	assert.Equal(t, 1.0, testutil.ToFloat64(o.attempts.WithLabelValues("chat", "service_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.attempts.WithLabelValues("chat", "success")))
	assert.Equal(t, 7.0, testutil.ToFloat64(o.chunks.WithLabelValues("chat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("chat", "success", "")))
	assert.Equal(t, 0.0, testutil.ToFloat64(o.inFlight.WithLabelValues("chat")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.waits))
	assert.Equal(t, 1, testutil.CollectAndCount(o.duration))
}

func TestObserver_FailureOutcomes(t *testing.T) {
	o := New(prometheus.NewRegistry())
	ctx := context.Background()
	call := observe.CallInfo{Name: "chat"}

	o.OnStart(ctx, call)
	o.OnFailure(ctx, call, observe.Timeline{
		Attempts: []observe.AttemptRecord{{Verdict: classify.Verdict{Category: classify.CategoryDailyQuotaExhausted}}},
		FinalErr: errors.New("daily"),
	})
	o.OnStart(ctx, call)
	o.OnFailure(ctx, call, observe.Timeline{FinalErr: context.Canceled})

	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("chat", "failure", "daily_quota_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.calls.WithLabelValues("chat", "cancelled", "")))
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
