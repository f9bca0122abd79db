// Package http adapts Server-Sent-Events endpoints to retry.Operation.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/aponysus/restream/classify"
	"github.com/aponysus/restream/retry"
)

// MaxErrorBody is the number of bytes of a non-2xx response body kept for
// classification.
const MaxErrorBody = 64 * 1024

const (
	doneMarker = "[DONE]"
	maxMessage = 512
)

// RequestFunc builds a fresh request for every attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// NewRequest returns a RequestFunc that rebuilds the same request with a
// replayable body on every attempt.
func NewRequest(method, url string, body []byte, header http.Header) RequestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		return req, nil
	}
}

// SSE returns an operation that issues the request built by newRequest and
// yields its Server-Sent Events.
//
// Non-2xx responses fail the attempt with a *classify.APIError carrying the
// status, up to MaxErrorBody bytes of body and the response headers. An
// "error" event fails the attempt the same way. A "data: [DONE]" event ends the
// stream.
func SSE(client *http.Client, newRequest RequestFunc) retry.Operation[Event] {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) iter.Seq2[Event, error] {
		return func(yield func(Event, error) bool) {
			resp, err := open(ctx, client, newRequest)
			if err != nil {
				yield(Event{}, err)
				return
			}
			defer resp.Body.Close()

			for ev, err := range ReadEvents(resp.Body) {
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						err = ctxErr
					}
					yield(Event{}, fmt.Errorf("restream: read sse stream: %w", err))
					return
				}
				if string(ev.Data) == doneMarker {
					return
				}
				if ev.Type == "error" {
					yield(Event{}, eventError(ev, resp.Header))
					return
				}
				if !yield(ev, nil) {
					return
				}
			}
		}
	}
}

func open(ctx context.Context, client *http.Client, newRequest RequestFunc) (*http.Response, error) {
	req, err := newRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("restream: build request: %w", err)
	}
	if req.Context() != ctx {
		req = req.WithContext(ctx)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &classify.APIError{Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBody))
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxErrorBody))
	resp.Body.Close()

	return nil, &classify.APIError{
		Status:  resp.StatusCode,
		Message: errorMessage(body, resp.Status),
		Body:    body,
		Header:  resp.Header,
	}
}

// eventError turns an in-stream "error" event into an APIError. The data is
// expected to be a Google-style {"error": {"code": ..., "message": ...}} object.
func eventError(ev Event, header http.Header) error {
	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(ev.Data, &payload)

	msg := payload.Error.Message
	if msg == "" {
		msg = strings.TrimSpace(string(ev.Data))
	}
	return &classify.APIError{
		Status:  payload.Error.Code,
		Message: msg,
		Body:    ev.Data,
		Header:  header,
	}
}

func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return fallback
	}
	if len(text) > maxMessage {
		return text[:maxMessage] + "..."
	}
	return text
}
