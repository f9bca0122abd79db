package classify

import (
	"context"
	"errors"
	"net/http"
	"strconv"
)

// Classifier turns a failed attempt's error into a Verdict.
//
// Implementations must not panic; the retry executor still recovers if they do.
type Classifier interface {
	Classify(err error) Verdict
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(err error) Verdict

func (f ClassifierFunc) Classify(err error) Verdict { return f(err) }

// Default is the stock classifier. It reads status codes, structured error
// bodies and gRPC status details.
type Default struct{}

func (Default) Classify(err error) Verdict { return Classify(err) }

// Classify inspects err and returns a Verdict. It never panics: anything it
// cannot read degrades to status-only classification.
func Classify(err error) (v Verdict) {
	if err == nil {
		return Verdict{Category: CategoryOther, Reason: "no_error"}
	}

	v = Verdict{
		Category: CategoryOther,
		Message:  safeMessage(err),
	}
	defer func() {
		if r := recover(); r != nil {
			v = statusOnly(v.Status, v.Message, v.Header)
			v.Reason = "classifier_recovered"
		}
	}()

	if errors.Is(err, context.Canceled) {
		v.Reason = "context_canceled"
		return v
	}

	var violation *Violation
	var hint *DelayHint

	var sc StatusCoder
	if errors.As(err, &sc) {
		v.Status = sc.StatusCode()
	}
	var hc HeaderCarrier
	if errors.As(err, &hc) {
		v.Header = hc.Headers()
	}

	var bc BodyCarrier
	if errors.As(err, &bc) {
		if details, perr := ParseDetails(bc.ErrorBody()); perr == nil {
			if d, ok := findDetail(details, typeQuotaFailure); ok && len(d.Violations) > 0 {
				first := d.Violations[0]
				violation = &first
			}
			if d, ok := findDetail(details, typeRetryInfo); ok {
				if h, ok := ParseDelayHint(d.RetryDelay); ok {
					hint = &h
				}
			}
		}
	}

	if v.Status == 0 {
		if facts, ok := grpcStatusFacts(err); ok {
			v.Status = facts.status
			if violation == nil {
				violation = facts.violation
			}
			if hint == nil {
				hint = facts.hint
			}
			if v.Status == 0 {
				v.Reason = "grpc_" + facts.code.String()
			}
		}
	}

	if hint == nil {
		if s, ok := delayFromMessage(v.Message); ok {
			if h, ok := ParseDelayHint(s); ok {
				hint = &h
			}
		}
	}

	v.Category = CategoryForStatus(v.Status)
	if violation != nil {
		v.QuotaSubject = violation.Name()
		if v.Status == 429 && violation.Daily() {
			v.Category = CategoryDailyQuotaExhausted
		}
	}
	v.Retryable = v.Category.Transient()
	v.DelayHint = hint
	if v.Reason == "" {
		v.Reason = reasonFor(v.Category, v.Status)
	}
	return v
}

func statusOnly(status int, msg string, header http.Header) Verdict {
	cat := CategoryForStatus(status)
	return Verdict{
		Category:  cat,
		Retryable: cat.Transient(),
		Status:    status,
		Header:    header,
		Message:   msg,
	}
}

func reasonFor(c Category, status int) string {
	if c != CategoryOther {
		return c.String()
	}
	if status == 0 {
		return "unclassified_error"
	}
	return "http_" + strconv.Itoa(status)
}

func safeMessage(err error) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = "<error message unavailable>"
		}
	}()
	return err.Error()
}
