package observe

import (
	"fmt"
	"math"
	"time"

	"github.com/aponysus/restream/classify"
)

// DailyQuotaMessage is shown when a call stops on an exhausted daily quota.
const DailyQuotaMessage = "Daily quota exhausted. Switch to another provider or upgrade your plan to continue."

// WaitingBanner renders the line shown while a call waits, e.g.
// "Rate limited. Retrying in 5s (attempt 2/5)...".
func WaitingBanner(s RetryState) string {
	label := s.Verdict.Category.Label()
	if s.Verdict.Category == classify.CategoryOther && s.Verdict.Status != 0 {
		label = fmt.Sprintf("API error %d", s.Verdict.Status)
	}
	msg := fmt.Sprintf("%s. Retrying in %s", label, FormatWait(s.WaitDuration))
	if s.MaxAttempts > 0 {
		msg += fmt.Sprintf(" (attempt %d/%d)", s.Attempt, s.MaxAttempts)
	} else {
		msg += fmt.Sprintf(" (attempt %d)", s.Attempt)
	}
	if s.Verdict.QuotaSubject != "" {
		msg += " [" + s.Verdict.QuotaSubject + "]"
	}
	return msg + "..."
}

// FormatWait renders a wait in whole seconds, rounding up.
func FormatWait(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return fmt.Sprintf("%ds", int64(math.Ceil(d.Seconds())))
}

// FailureMessage renders the generic terminal failure line.
func FailureMessage(attempts int, err error) string {
	noun := "attempts"
	if attempts == 1 {
		noun = "attempt"
	}
	if err == nil {
		return fmt.Sprintf("Request failed after %d %s.", attempts, noun)
	}
	return fmt.Sprintf("Request failed after %d %s: %v", attempts, noun, err)
}

// CancelledMessage renders the line shown when the caller gives up.
func CancelledMessage(attempts int) string {
	if attempts <= 0 {
		return "Request cancelled."
	}
	return fmt.Sprintf("Request cancelled after %d attempt(s).", attempts)
}
