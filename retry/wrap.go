package retry

import (
	"context"
	"errors"
	"iter"

	"github.com/aponysus/restream/backoff"
	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/observe"
)

// Operation starts one attempt of a streaming call. The returned sequence
// yields chunks as they arrive; a non-nil error ends the attempt as failed.
type Operation[C any] func(ctx context.Context) iter.Seq2[C, error]

// Func adapts a plain call to a zero-chunk Operation.
func Func(op func(ctx context.Context) error) Operation[struct{}] {
	return func(ctx context.Context) iter.Seq2[struct{}, error] {
		return func(yield func(struct{}, error) bool) {
			if err := op(ctx); err != nil {
				yield(struct{}{}, err)
			}
		}
	}
}

// Wrap returns an Operation that retries op according to exec.
//
// Chunks are forwarded as they arrive. A failed attempt restarts op from
// scratch, so chunks from earlier attempts are not retracted. On terminal
// failure the sequence yields exactly one (zero, err) pair. Breaking out of the
// range loop stops the call and counts as success.
func Wrap[C any](exec *Executor, op Operation[C]) Operation[C] {
	if exec == nil {
		exec = NewExecutor()
	}
	return func(ctx context.Context) iter.Seq2[C, error] {
		return func(yield func(C, error) bool) {
			run(ctx, exec, op, yield)
		}
	}
}

// Collect runs a wrapped op and returns the chunks of the attempt that
// succeeded. Chunks of failed attempts are discarded.
func Collect[C any](ctx context.Context, exec *Executor, op Operation[C]) ([]C, error) {
	buffered := func(ctx context.Context) iter.Seq2[[]C, error] {
		return func(yield func([]C, error) bool) {
			seq := op(ctx)
			if seq == nil {
				yield(nil, errNilStream)
				return
			}
			var buf []C
			for chunk, err := range seq {
				if err != nil {
					yield(nil, err)
					return
				}
				buf = append(buf, chunk)
			}
			yield(buf, nil)
		}
	}

	var out []C
	for chunks, err := range Wrap(exec, buffered)(ctx) {
		if err != nil {
			return nil, err
		}
		out = chunks
	}
	return out, nil
}

// call is the per-call state shared by the attempt loop.
type call struct {
	exec     *Executor
	info     observe.CallInfo
	reporter *observe.Reporter
	tl       observe.Timeline
	capture  *observe.TimelineCapture

	attempt  int
	finished bool
}

func (e *Executor) begin(ctx context.Context) *call {
	start := e.clock()
	info := observe.CallInfo{
		CallID:      e.newID(),
		Name:        e.name,
		MaxAttempts: e.config.MaxAttempts,
		Start:       start,
	}
	c := &call{
		exec:     e,
		info:     info,
		capture:  observe.CaptureFrom(ctx),
		reporter: observe.NewReporter(ctx, e.sink, e.transcript, e.logger),
		tl: observe.Timeline{
			CallID:     info.CallID,
			Name:       info.Name,
			Start:      start,
			Attributes: configAttributes(e.config),
			Attempts:   make([]observe.AttemptRecord, 0, e.config.MaxAttempts),
		},
	}
	e.observer.OnStart(ctx, info)
	return c
}

func (c *call) record(ctx context.Context, rec observe.AttemptRecord) {
	c.tl.Attempts = append(c.tl.Attempts, rec)
	c.exec.observer.OnAttempt(ctx, c.info, rec)
}

func (c *call) finish(ctx context.Context, err error) {
	c.finished = true
	c.tl.End = c.exec.clock()
	c.tl.FinalErr = err
	if err == nil {
		c.exec.observer.OnSuccess(ctx, c.info, c.tl)
	} else {
		c.exec.observer.OnFailure(ctx, c.info, c.tl)
	}
	c.capture.Publish(c.tl)
}

func (c *call) succeed(ctx context.Context) {
	c.reporter.ReportSuccess()
	c.finish(ctx, nil)
}

func (c *call) fail(ctx context.Context, message string, v classify.Verdict, err error) {
	c.reporter.ReportTerminalFailure(message, v)
	c.finish(ctx, err)
}

func (c *call) cancel(ctx context.Context, attempts int, err error) {
	c.exec.logger.Debug("call cancelled", "name", c.info.Name, "call_id", c.info.CallID, "attempts", attempts, "error", err)
	c.reporter.ReportCancelled(observe.CancelledMessage(attempts))
	c.finish(ctx, err)
}

// abort ends a call that is unwinding from a panic in the operation or in
// the consumer, so the retry slot and observers are still reset.
func (c *call) abort(ctx context.Context, r any) {
	err := c.exec.panicError("call", c.attempt, r)
	c.exec.logger.Error("call panicked",
		"name", c.info.Name,
		"call_id", c.info.CallID,
		"attempt", c.attempt,
		"panic", r,
	)
	v := classify.Verdict{Category: classify.CategoryOther, Message: err.Error(), Reason: "panic"}
	c.fail(ctx, observe.FailureMessage(c.attempt, err), v, err)
}

func run[C any](ctx context.Context, exec *Executor, op Operation[C], yield func(C, error) bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	var zero C
	cfg := exec.config
	c := exec.begin(ctx)
	defer func() {
		if c.finished {
			return
		}
		if r := recover(); r != nil {
			c.abort(ctx, r)
			panic(r)
		}
	}()

	for attempt := 1; ; attempt++ {
		c.attempt = attempt
		if err := ctx.Err(); err != nil {
			c.cancel(ctx, attempt-1, err)
			yield(zero, err)
			return
		}

		rec, stopped, err := runAttempt(ctx, c, op, attempt, yield)
		if stopped || err == nil {
			c.record(ctx, rec)
			c.succeed(ctx)
			return
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			c.record(ctx, rec)
			c.cancel(ctx, attempt, ctxErr)
			yield(zero, ctxErr)
			return
		}

		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			rec.Verdict = classify.Verdict{Category: classify.CategoryOther, Message: err.Error(), Reason: "panic_in_operation"}
			c.record(ctx, rec)
			c.fail(ctx, observe.FailureMessage(attempt, err), rec.Verdict, err)
			yield(zero, err)
			return
		}

		v := exec.classifyErr(err)
		rec.Verdict = v
		exec.logger.Debug("attempt failed",
			"name", c.info.Name,
			"call_id", c.info.CallID,
			"attempt", attempt,
			"category", v.Category.String(),
			"status", v.Status,
			"retryable", v.Retryable,
			"error", err,
		)

		daily := v.Category == classify.CategoryDailyQuotaExhausted
		retryable := !daily && (v.Retryable || cfg.RetryAllErrors)
		if !retryable || attempt >= cfg.MaxAttempts {
			final := &Error{Attempts: attempt, Verdict: v, Err: err, Exhausted: retryable}
			message := observe.FailureMessage(attempt, err)
			if daily {
				message = observe.DailyQuotaMessage
			}
			c.record(ctx, rec)
			c.fail(ctx, message, v, final)
			yield(zero, final)
			return
		}

		now := exec.clock()
		wait := backoff.Resolve(v, attempt, cfg, now)
		rec.Wait = wait
		c.record(ctx, rec)

		state := observe.RetryState{
			CallID:        c.info.CallID,
			Name:          c.info.Name,
			Attempt:       attempt + 1,
			FailedAttempt: attempt,
			MaxAttempts:   cfg.MaxAttempts,
			Verdict:       v,
			WaitDuration:  wait,
			WaitStartedAt: now,
			RetryAt:       now.Add(wait),
		}
		exec.logger.Info("retrying",
			"name", c.info.Name,
			"call_id", c.info.CallID,
			"next_attempt", state.Attempt,
			"max_attempts", state.MaxAttempts,
			"wait", wait,
			"category", v.Category.String(),
		)
		exec.notifyRetry(err, attempt, wait)
		c.reporter.ReportWaiting(state)
		exec.observer.OnWaiting(ctx, c.info, state)

		if err := exec.sleep(ctx, wait); err != nil {
			c.cancel(ctx, attempt, err)
			yield(zero, err)
			return
		}
	}
}

// runAttempt executes one attempt and forwards its chunks. stopped is set when
// the consumer ended iteration.
func runAttempt[C any](ctx context.Context, c *call, op Operation[C], attempt int, yield func(C, error) bool) (rec observe.AttemptRecord, stopped bool, err error) {
	exec := c.exec
	rec = observe.AttemptRecord{Attempt: attempt, StartTime: exec.clock()}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	attemptCtx = observe.WithAttemptInfo(attemptCtx, observe.AttemptInfo{
		CallID:      c.info.CallID,
		Name:        c.info.Name,
		Attempt:     attempt,
		MaxAttempts: c.info.MaxAttempts,
	})
	attemptCtx = observe.WithoutCapture(attemptCtx)
	if ac, ok := exec.observer.(observe.AttemptContexter); ok {
		attemptCtx = ac.AttemptContext(attemptCtx, c.info, attempt)
	}

	inConsumer := false
	defer func() {
		rec.EndTime = exec.clock()
		if !exec.recoverPanics {
			return
		}
		if r := recover(); r != nil {
			if inConsumer {
				panic(r)
			}
			err = exec.panicError("operation", attempt, r)
			rec.Err = err
		}
	}()

	seq := op(attemptCtx)
	if seq == nil {
		rec.Err = errNilStream
		return rec, false, errNilStream
	}

	for chunk, cerr := range seq {
		if cerr != nil {
			err = cerr
			break
		}
		rec.Chunks++
		inConsumer = true
		more := yield(chunk, nil)
		inConsumer = false
		if !more {
			stopped = true
			break
		}
	}
	rec.Err = err
	return rec, stopped, err
}
