package policy

import "time"

// Defaults applied when a Config field is left at its zero value.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1000 * time.Millisecond
	DefaultMaxDelay    = 10000 * time.Millisecond
)

// Config is the retry configuration for one wrap site. It is built once and
// treated as immutable afterwards.
type Config struct {
	// MaxAttempts is the hard ceiling on attempts, including the first.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`
	// BaseDelay seeds exponential backoff: BaseDelay * 2^(attempt-1).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`
	// MaxDelay caps every computed wait, including server-provided hints.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// RetryAllErrors makes every failure retryable regardless of classification.
	// Daily quota exhaustion is still terminal.
	RetryAllErrors bool `json:"retry_all_errors" yaml:"retry_all_errors"`

	Meta Metadata `json:"-" yaml:"-"`
}

type Source string

const (
	SourceDefault Source = "default"
	SourceStatic  Source = "static"
	SourceFile    Source = "file"
)

type NormalizationInfo struct {
	Changed       bool
	ChangedFields []string
}

type Metadata struct {
	Source        Source
	Normalization NormalizationInfo
	// Overrides lists fields set on top of the source, such as command-line
	// flags applied to a file config.
	Overrides []string
}

// Default returns the stock configuration: 5 attempts, 1s base, 10s cap.
func Default() Config {
	return Config{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Meta: Metadata{
			Source: SourceDefault,
		},
	}
}

// Normalize fills zero values with defaults and rejects values that cannot be
// repaired. The returned Config records which fields were changed.
func (c Config) Normalize() (Config, error) {
	normalized := c
	norm := &normalized.Meta.Normalization

	markChanged := func(field string) {
		norm.Changed = true
		for _, f := range norm.ChangedFields {
			if f == field {
				return
			}
		}
		norm.ChangedFields = append(norm.ChangedFields, field)
	}

	if normalized.MaxAttempts < 0 {
		return Config{}, invalid("max_attempts", normalized.MaxAttempts)
	}
	if normalized.MaxAttempts == 0 {
		normalized.MaxAttempts = DefaultMaxAttempts
		markChanged("max_attempts")
	}

	if normalized.BaseDelay < 0 {
		return Config{}, invalid("base_delay", normalized.BaseDelay)
	}
	if normalized.BaseDelay == 0 {
		normalized.BaseDelay = DefaultBaseDelay
		markChanged("base_delay")
	}

	if normalized.MaxDelay < 0 {
		return Config{}, invalid("max_delay", normalized.MaxDelay)
	}
	if normalized.MaxDelay == 0 {
		normalized.MaxDelay = DefaultMaxDelay
		markChanged("max_delay")
	}

	if normalized.Meta.Source == "" {
		normalized.Meta.Source = SourceStatic
	}

	return normalized, nil
}
