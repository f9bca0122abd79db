// Package backoff turns a classifier verdict into a concrete wait.
package backoff

import (
	"math"
	"time"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/policy"
)

// HintBuffer is added on top of a server-provided delay hint so the retry lands
// after the server's window has reopened.
const HintBuffer = 1000 * time.Millisecond

// Resolve computes how long to wait before the attempt after attempt.
//
// A delay hint in the verdict wins, then a retry-after style header, then
// exponential backoff seeded by cfg.BaseDelay. The result is clamped to
// [0, cfg.MaxDelay].
func Resolve(v classify.Verdict, attempt int, cfg policy.Config, now time.Time) time.Duration {
	if v.DelayHint != nil && v.DelayHint.Unit.Millis() > 0 {
		return capDelay(addSat(v.DelayHint.Duration(), HintBuffer), cfg.MaxDelay)
	}
	if d, ok := HeaderDelay(v.Header, now); ok {
		return capDelay(d, cfg.MaxDelay)
	}
	return capDelay(Exponential(cfg.BaseDelay, attempt), cfg.MaxDelay)
}

// Exponential returns base * 2^(attempt-1). Attempts below 1 count as 1.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift >= 62 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

func capDelay(d, max time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func addSat(a, b time.Duration) time.Duration {
	if a > time.Duration(math.MaxInt64)-b {
		return time.Duration(math.MaxInt64)
	}
	return a + b
}
