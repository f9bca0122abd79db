// Package tracing records wrapped calls as OpenTelemetry spans.
package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aponysus/restream/observe"
)

const instrumentationName = "github.com/aponysus/restream"

// Observer opens one span per wrapped call and adds an event per attempt and
// per wait. The call span is set on every attempt context, so spans started
// by the wrapped client become its children.
type Observer struct {
	tracer trace.Tracer
	spans  sync.Map // call ID -> trace.Span
}

// New returns an Observer using tp. A nil tp uses the global provider.
func New(tp trace.TracerProvider) *Observer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Observer{tracer: tp.Tracer(instrumentationName)}
}

func (o *Observer) OnStart(ctx context.Context, call observe.CallInfo) {
	_, span := o.tracer.Start(ctx, "restream.call",
		trace.WithTimestamp(call.Start),
		trace.WithAttributes(
			attribute.String("restream.call_id", call.CallID),
			attribute.String("restream.name", call.Name),
			attribute.Int("restream.max_attempts", call.MaxAttempts),
		),
	)
	o.spans.Store(call.CallID, span)
}

// AttemptContext returns ctx carrying the call span.
func (o *Observer) AttemptContext(ctx context.Context, call observe.CallInfo, _ int) context.Context {
	span, ok := o.span(call)
	if !ok {
		return ctx
	}
	return trace.ContextWithSpan(ctx, span)
}

func (o *Observer) OnAttempt(_ context.Context, call observe.CallInfo, rec observe.AttemptRecord) {
	span, ok := o.span(call)
	if !ok {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("restream.attempt", rec.Attempt),
		attribute.Int("restream.chunks", rec.Chunks),
	}
	if rec.Err != nil {
		attrs = append(attrs,
			attribute.String("restream.category", rec.Verdict.Category.String()),
			attribute.Bool("restream.retryable", rec.Verdict.Retryable),
			attribute.Int("restream.status", rec.Verdict.Status),
			attribute.String("restream.reason", rec.Verdict.Reason),
		)
		if rec.Verdict.QuotaSubject != "" {
			attrs = append(attrs, attribute.String("restream.quota_subject", rec.Verdict.QuotaSubject))
		}
	}
	span.AddEvent("attempt", trace.WithTimestamp(rec.EndTime), trace.WithAttributes(attrs...))
}

func (o *Observer) OnWaiting(_ context.Context, call observe.CallInfo, state observe.RetryState) {
	span, ok := o.span(call)
	if !ok {
		return
	}
	span.AddEvent("retry.wait", trace.WithTimestamp(state.WaitStartedAt), trace.WithAttributes(
		attribute.Int("restream.next_attempt", state.Attempt),
		attribute.Int64("restream.wait_ms", state.WaitDuration.Milliseconds()),
		attribute.String("restream.category", state.Verdict.Category.String()),
	))
}

func (o *Observer) OnSuccess(_ context.Context, call observe.CallInfo, tl observe.Timeline) {
	span, ok := o.take(call)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("restream.attempts", len(tl.Attempts)))
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(tl.End))
}

func (o *Observer) OnFailure(_ context.Context, call observe.CallInfo, tl observe.Timeline) {
	span, ok := o.take(call)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("restream.attempts", len(tl.Attempts)))
	if tl.FinalErr != nil {
		span.RecordError(tl.FinalErr)
		span.SetStatus(codes.Error, tl.FinalErr.Error())
	} else {
		span.SetStatus(codes.Error, "failed")
	}
	span.End(trace.WithTimestamp(tl.End))
}

func (o *Observer) span(call observe.CallInfo) (trace.Span, bool) {
	v, ok := o.spans.Load(call.CallID)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}

func (o *Observer) take(call observe.CallInfo) (trace.Span, bool) {
	v, ok := o.spans.LoadAndDelete(call.CallID)
	if !ok {
		return nil, false
	}
	return v.(trace.Span), true
}
