// Package retry runs streaming operations under a retry policy.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/observe"
	"github.com/aponysus/restream/policy"
)

// Executor holds everything a wrap site needs to retry calls. It is immutable
// after construction and safe for concurrent use.
type Executor struct {
	config        policy.Config
	name          string
	sink          observe.StateSink
	transcript    observe.Transcript
	observer      observe.Observer
	classifier    classify.Classifier
	logger        *slog.Logger
	clock         func() time.Time
	sleep         func(context.Context, time.Duration) error
	onRetry       func(err error, attempt int, delay time.Duration)
	newID         func() string
	recoverPanics bool
}

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	Config        policy.Config
	Name          string
	StateSink     observe.StateSink
	Transcript    observe.Transcript
	Observer      observe.Observer
	Classifier    classify.Classifier
	Logger        *slog.Logger
	Clock         func() time.Time
	OnRetry       func(err error, attempt int, delay time.Duration)
	RecoverPanics bool
}

// NewExecutor creates an Executor from functional options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	cfg := &executorConfig{}

	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	for _, opt := range cfg.policyOpts {
		if opt != nil {
			opt(&cfg.opts.Config)
		}
	}

	return NewExecutorFromOptions(cfg.opts)
}

// NewExecutorFromOptions creates an Executor from a config struct. A config that
// fails normalization is replaced by the defaults and the problem is logged.
func NewExecutorFromOptions(opts ExecutorOptions) *Executor {
	e := &Executor{
		name:          opts.Name,
		sink:          opts.StateSink,
		transcript:    opts.Transcript,
		observer:      opts.Observer,
		classifier:    opts.Classifier,
		logger:        opts.Logger,
		clock:         opts.Clock,
		onRetry:       opts.OnRetry,
		recoverPanics: opts.RecoverPanics,
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.observer == nil {
		e.observer = observe.BaseObserver{}
	}
	if e.classifier == nil {
		e.classifier = classify.Default{}
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.sleep == nil {
		e.sleep = sleepWithContext
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	cfg, err := opts.Config.Normalize()
	if err != nil {
		e.logger.Warn("invalid retry config, using defaults", "name", e.name, "error", err)
		cfg, _ = policy.Default().Normalize()
	}
	e.config = cfg

	return e
}

// Config returns the normalized retry configuration.
func (e *Executor) Config() policy.Config { return e.config }

// Name returns the wrap-site label.
func (e *Executor) Name() string { return e.name }

// Do retries a plain call through the same loop as a wrapped stream.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	stream := Wrap(e, Func(op))
	for _, err := range stream(ctx) {
		if err != nil {
			return err
		}
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyErr runs the classifier. A panicking classifier yields a terminal verdict.
func (e *Executor) classifyErr(err error) (v classify.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("classifier panicked", "name", e.name, "panic", fmt.Sprint(r))
			v = classify.Verdict{
				Category: classify.CategoryOther,
				Message:  err.Error(),
				Reason:   "panic_in_classifier",
			}
		}
	}()
	v = e.classifier.Classify(err)
	if v.Reason == "" {
		v.Reason = "classified"
	}
	return v
}

func (e *Executor) notifyRetry(err error, attempt int, delay time.Duration) {
	if e.onRetry == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("retry callback panicked", "name", e.name, "panic", fmt.Sprint(r))
		}
	}()
	e.onRetry(err, attempt, delay)
}

func (e *Executor) panicError(component string, attempt int, r any) *PanicError {
	return &PanicError{
		Component: component,
		Attempt:   attempt,
		Value:     r,
		Stack:     debug.Stack(),
	}
}

func configAttributes(cfg policy.Config) map[string]string {
	attrs := map[string]string{
		"config_source": string(cfg.Meta.Source),
	}
	if cfg.Meta.Normalization.Changed {
		attrs["config_normalized"] = strings.Join(cfg.Meta.Normalization.ChangedFields, ",")
	}
	if len(cfg.Meta.Overrides) > 0 {
		attrs["config_overrides"] = strings.Join(cfg.Meta.Overrides, ",")
	}
	return attrs
}
