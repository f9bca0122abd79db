package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"iter"

	gosse "github.com/tmaxmax/go-sse"
)

// MaxEventSize bounds a single SSE event, field names and line breaks included.
const MaxEventSize = 64 * 1024

// ErrEventTooLarge is returned when an SSE event exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("restream: sse event too large")

// Event is one Server-Sent Event. ID is the last event ID seen on the stream,
// which may belong to an earlier event.
type Event struct {
	Type string
	ID   string
	Data []byte
}

var readConfig = &gosse.ReadConfig{MaxEventSize: MaxEventSize}

// ReadEvents parses Server-Sent Events from r. Lines may end in CR, LF or
// CRLF. Iteration ends without an error at a clean EOF; a stream cut off in
// the middle of a field yields an error.
func ReadEvents(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for ev, err := range gosse.Read(r, readConfig) {
			if err != nil {
				if errors.Is(err, bufio.ErrTooLong) {
					err = fmt.Errorf("%w: %w", ErrEventTooLarge, err)
				}
				yield(Event{}, err)
				return
			}
			if !yield(Event{Type: ev.Type, ID: ev.LastEventID, Data: []byte(ev.Data)}, nil) {
				return
			}
		}
	}
}
