package policy

import "time"

// Option mutates a Config before normalization.
type Option func(*Config)

// New builds a Config from Default and opts. If the result does not normalize,
// the defaults are returned instead.
func New(opts ...Option) Config {
	c := Default()
	c.Meta.Source = SourceStatic
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	normalized, err := c.Normalize()
	if err != nil {
		fallback, _ := Default().Normalize()
		return fallback
	}
	return normalized
}

func MaxAttempts(n int) Option {
	return func(c *Config) { c.MaxAttempts = n }
}

func BaseDelay(d time.Duration) Option {
	return func(c *Config) { c.BaseDelay = d }
}

func MaxDelay(d time.Duration) Option {
	return func(c *Config) { c.MaxDelay = d }
}

// RetryAllErrors sets whether unclassified failures are retried.
func RetryAllErrors(enabled bool) Option {
	return func(c *Config) { c.RetryAllErrors = enabled }
}
