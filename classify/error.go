package classify

import (
	"net/http"
	"strconv"
)

// StatusCoder is implemented by errors that carry an HTTP-like status code.
type StatusCoder interface {
	StatusCode() int
}

// BodyCarrier is implemented by errors that carry a structured error body.
type BodyCarrier interface {
	ErrorBody() []byte
}

// HeaderCarrier is implemented by errors that carry transport headers.
type HeaderCarrier interface {
	Headers() http.Header
}

// APIError is the failure a wrapped operation reports when the remote API
// rejects a call. It implements StatusCoder, BodyCarrier and HeaderCarrier.
type APIError struct {
	Status  int
	Message string
	Body    []byte
	Header  http.Header
	Err     error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status == 0 {
		if msg == "" {
			return "api error"
		}
		return msg
	}
	if msg == "" {
		return "api error: status " + strconv.Itoa(e.Status)
	}
	return "api error: status " + strconv.Itoa(e.Status) + ": " + msg
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) StatusCode() int { return e.Status }

func (e *APIError) ErrorBody() []byte { return e.Body }

func (e *APIError) Headers() http.Header { return e.Header }
