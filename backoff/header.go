package backoff

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryHeaders are consulted in order; the first one that parses wins.
var retryHeaders = []string{"Retry-After", "X-RateLimit-Reset", "RateLimit-Reset"}

// HeaderDelay reads a wait from retry-after style headers.
//
// Numeric values are delta-seconds unless they exceed now in Unix seconds, in
// which case they are an absolute reset timestamp. HTTP dates are accepted too.
// Past instants yield zero.
func HeaderDelay(h http.Header, now time.Time) (time.Duration, bool) {
	if len(h) == 0 {
		return 0, false
	}
	for _, name := range retryHeaders {
		if d, ok := parseRetryValue(h.Get(name), now); ok {
			return d, true
		}
	}
	return 0, false
}

func parseRetryValue(s string, now time.Time) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0, false
		}
		nowSecs := float64(now.UnixNano()) / float64(time.Second)
		if f > nowSecs {
			return secondsToDuration(f - nowSecs), true
		}
		return secondsToDuration(f), true
	}

	if t, err := http.ParseTime(s); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

func secondsToDuration(secs float64) time.Duration {
	ns := secs * float64(time.Second)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(math.Round(ns))
}
