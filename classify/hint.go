package classify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of a server-provided delay hint.
type Unit string

const (
	UnitMillis  Unit = "ms"
	UnitSeconds Unit = "s"
	UnitMinutes Unit = "m"
	UnitHours   Unit = "h"
)

// Millis returns the number of milliseconds in one Unit, or 0 for unknown units.
func (u Unit) Millis() float64 {
	switch u {
	case UnitMillis:
		return 1
	case UnitSeconds:
		return 1000
	case UnitMinutes:
		return 60 * 1000
	case UnitHours:
		return 60 * 60 * 1000
	default:
		return 0
	}
}

// DelayHint is a retry delay reported by the server, e.g. "5s" or "0.1m".
type DelayHint struct {
	Value float64
	Unit  Unit
}

// Duration converts the hint to a time.Duration.
func (h DelayHint) Duration() time.Duration {
	ns := h.Value * h.Unit.Millis() * float64(time.Millisecond)
	if math.IsNaN(ns) || ns <= 0 {
		return 0
	}
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(math.Round(ns))
}

func (h DelayHint) String() string {
	return strconv.FormatFloat(h.Value, 'f', -1, 64) + string(h.Unit)
}

var hintPattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?|\.\d+)\s*([A-Za-z]*)\s*$`)

// ParseDelayHint tokenizes a delay string into a value and unit. A missing unit
// means seconds. It reports false for anything it cannot read.
func ParseDelayHint(s string) (DelayHint, bool) {
	m := hintPattern.FindStringSubmatch(s)
	if m == nil {
		return DelayHint{}, false
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(value, 0) {
		return DelayHint{}, false
	}

	unit := Unit(strings.ToLower(m[2]))
	if unit == "" {
		unit = UnitSeconds
	}
	if unit.Millis() == 0 {
		return DelayHint{}, false
	}

	return DelayHint{Value: value, Unit: unit}, true
}
