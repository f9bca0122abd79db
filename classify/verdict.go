package classify

import "net/http"

// Verdict is the structured judgement about one failed attempt. It is computed
// fresh for every attempt; server hints are attempt specific.
type Verdict struct {
	Category  Category
	Retryable bool

	// Status is the HTTP-like status the failure carried, or 0.
	Status int

	// QuotaSubject names the violated quota when the server reported one.
	QuotaSubject string

	// DelayHint is the server-provided retry delay, when present.
	DelayHint *DelayHint

	// Header holds transport headers, consulted for Retry-After style hints.
	Header http.Header

	Message string
	Reason  string
}
