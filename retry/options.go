package retry

import (
	"log/slog"
	"time"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/internal"
	"github.com/aponysus/restream/observe"
	"github.com/aponysus/restream/policy"
)

// ExecutorOption configures an Executor built by NewExecutor.
type ExecutorOption func(*executorConfig)

type executorConfig struct {
	opts       ExecutorOptions
	policyOpts []policy.Option
}

// WithConfig sets the retry configuration. It is normalized at construction.
func WithConfig(cfg policy.Config) ExecutorOption {
	return func(c *executorConfig) { c.opts.Config = cfg }
}

// WithPolicy applies policy options on top of the configuration.
func WithPolicy(opts ...policy.Option) ExecutorOption {
	return func(c *executorConfig) {
		c.policyOpts = append(c.policyOpts, opts...)
	}
}

// WithName labels calls made through the executor in states, logs and metrics.
func WithName(name string) ExecutorOption {
	return func(c *executorConfig) { c.opts.Name = name }
}

// WithStateSink sets the receiver of the retry state slot. Nil and typed-nil
// sinks are ignored.
func WithStateSink(s observe.StateSink) ExecutorOption {
	return func(c *executorConfig) {
		if internal.IsTypedNil(s) {
			return
		}
		c.opts.StateSink = s
	}
}

// WithTranscript sets the receiver of human-readable status lines such as
// retry banners. Nil and typed-nil transcripts are ignored.
func WithTranscript(t observe.Transcript) ExecutorOption {
	return func(c *executorConfig) {
		if internal.IsTypedNil(t) {
			return
		}
		c.opts.Transcript = t
	}
}

// WithObserver adds a lifecycle observer. Multiple observers are fanned out in order.
func WithObserver(o observe.Observer) ExecutorOption {
	return func(c *executorConfig) {
		if internal.IsTypedNil(o) {
			return
		}
		if c.opts.Observer == nil {
			c.opts.Observer = o
			return
		}
		if m, ok := c.opts.Observer.(observe.MultiObserver); ok {
			m.Observers = append(m.Observers, o)
			c.opts.Observer = m
			return
		}
		c.opts.Observer = observe.MultiObserver{Observers: []observe.Observer{c.opts.Observer, o}}
	}
}

// WithClassifier replaces the default error classifier. A panicking classifier
// makes the failure terminal.
func WithClassifier(cls classify.Classifier) ExecutorOption {
	return func(c *executorConfig) {
		if internal.IsTypedNil(cls) {
			return
		}
		c.opts.Classifier = cls
	}
}

// WithLogger sets the logger used for attempt failures (Debug), waits (Info)
// and swallowed sink errors (Warn). Nil means slog.Default().
func WithLogger(l *slog.Logger) ExecutorOption {
	return func(c *executorConfig) { c.opts.Logger = l }
}

// WithClock overrides time.Now for timelines and Retry-After arithmetic.
func WithClock(f func() time.Time) ExecutorOption {
	return func(c *executorConfig) { c.opts.Clock = f }
}

// WithOnRetry registers a callback invoked before each wait with the failure,
// the failed attempt number and the wait.
func WithOnRetry(f func(err error, attempt int, delay time.Duration)) ExecutorOption {
	return func(c *executorConfig) { c.opts.OnRetry = f }
}

// WithRecoverPanics turns panics in the wrapped operation into *PanicError.
func WithRecoverPanics(recover bool) ExecutorOption {
	return func(c *executorConfig) { c.opts.RecoverPanics = recover }
}
