package tracing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/observe"
	"github.com/aponysus/restream/policy"
	"github.com/aponysus/restream/retry"
)

func newObserver() (*Observer, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return New(tp), sr
}

func TestObserver_SuccessSpan(t *testing.T) {
	o, sr := newObserver()
	ctx := context.Background()
	start := time.Now()
	call := observe.CallInfo{CallID: "c1", Name: "chat", MaxAttempts: 3, Start: start}

	o.OnStart(ctx, call)
	o.OnAttempt(ctx, call, observe.AttemptRecord{
		Attempt: 1,
		EndTime: start.Add(time.Millisecond),
		Err:     errors.New("429"),
		Verdict: classify.Verdict{Category: classify.CategoryRateLimited, Retryable: true, Status: 429, QuotaSubject: "rpm"},
	})
	o.OnWaiting(ctx, call, observe.RetryState{Attempt: 2, WaitDuration: time.Second, WaitStartedAt: start.Add(time.Millisecond)})
	o.OnAttempt(ctx, call, observe.AttemptRecord{Attempt: 2, Chunks: 3, EndTime: start.Add(2 * time.Second)})
	o.OnSuccess(ctx, call, observe.Timeline{Attempts: make([]observe.AttemptRecord, 2), End: start.Add(2 * time.Second)})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "restream.call", span.Name())
	assert.Equal(t, codes.Ok, span.Status().Code)

	names := make([]string, 0, len(span.Events()))
	for _, ev := range span.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"attempt", "retry.wait", "attempt"}, names)
}

func TestObserver_FailureSpan(t *testing.T) {
	o, sr := newObserver()
	ctx := context.Background()
	call := observe.CallInfo{CallID: "c2", Name: "chat", Start: time.Now()}

	o.OnStart(ctx, call)
	o.OnFailure(ctx, call, observe.Timeline{FinalErr: errors.New("exhausted"), End: time.Now()})
	o.OnFailure(ctx, call, observe.Timeline{FinalErr: errors.New("ignored")})

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "exhausted", spans[0].Status().Description)
}

func TestObserver_UnknownCallIgnored(t *testing.T) {
	o, sr := newObserver()
	ctx := context.Background()
	call := observe.CallInfo{CallID: "never-started"}

	o.OnAttempt(ctx, call, observe.AttemptRecord{})
	o.OnWaiting(ctx, call, observe.RetryState{})
	o.OnSuccess(ctx, call, observe.Timeline{})

	assert.Empty(t, sr.Ended())
}

func TestObserver_AttemptSpansAreChildren(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	exec := retry.NewExecutor(
		retry.WithName("chat"),
		retry.WithObserver(New(tp)),
		retry.WithPolicy(policy.BaseDelay(time.Millisecond)),
		retry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	attempts := 0
	op := retry.Func(func(ctx context.Context) error {
		attempts++
		_, span := tp.Tracer("client").Start(ctx, "client.request")
		defer span.End()
		if attempts == 1 {
			return &classify.APIError{Status: 503}
		}
		return nil
	})

	_, err := retry.Collect(context.Background(), exec, op)
	require.NoError(t, err)

	var call sdktrace.ReadOnlySpan
	var clients []sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		switch s.Name() {
		case "restream.call":
			call = s
		case "client.request":
			clients = append(clients, s)
		}
	}
	require.NotNil(t, call)
	require.Len(t, clients, 2)
	for _, c := range clients {
		assert.Equal(t, call.SpanContext().TraceID(), c.SpanContext().TraceID())
		assert.Equal(t, call.SpanContext().SpanID(), c.Parent().SpanID())
	}
}

func TestObserver_AttemptContextUnknownCall(t *testing.T) {
	o, _ := newObserver()
	ctx := context.Background()

	assert.Equal(t, ctx, o.AttemptContext(ctx, observe.CallInfo{CallID: "missing"}, 1))
}
