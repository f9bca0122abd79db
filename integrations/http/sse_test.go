package http

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, raw string) []Event {
	t.Helper()
	var out []Event
	for ev, err := range ReadEvents(strings.NewReader(raw)) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func dataOf(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, string(ev.Data))
	}
	return out
}

func TestReadEvents_Fields(t *testing.T) {
	raw := ": keep-alive\n" +
		"event: delta\n" +
		"id: 7\n" +
		"data: {\"text\":\"hi\"}\n" +
		"\n" +
		"data:line one\r\n" +
		"data: line two\r\n" +
		"retry: 1000\r\n" +
		"\r\n" +
		"\n\n" +
		"data: tail\n"

	events := readAll(t, raw)
	require.Len(t, events, 3)

	assert.Equal(t, Event{Type: "delta", ID: "7", Data: []byte(`{"text":"hi"}`)}, events[0])
	assert.Equal(t, "line one\nline two", string(events[1].Data))
	assert.Equal(t, "", events[1].Type)
	assert.Equal(t, "7", events[1].ID)
	assert.Equal(t, "tail", string(events[2].Data))
}

func TestReadEvents_LineTerminators(t *testing.T) {
	tests := map[string]string{
		"cr":    "data: a\r\rdata: b\r\r",
		"lf":    "data: a\n\ndata: b\n\n",
		"crlf":  "data: a\r\n\r\ndata: b\r\n\r\n",
		"mixed": "data: a\r\n\rdata: b\n\r\n",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, []string{"a", "b"}, dataOf(readAll(t, raw)))
		})
	}
}

func TestReadEvents_CRMultiLineData(t *testing.T) {
	events := readAll(t, "event: delta\rdata: one\rdata: two\r\r")
	require.Len(t, events, 1)
	assert.Equal(t, "delta", events[0].Type)
	assert.Equal(t, "one\ntwo", string(events[0].Data))
}

func TestReadEvents_Empty(t *testing.T) {
	assert.Empty(t, readAll(t, ""))
	assert.Empty(t, readAll(t, "\n\n: comment only\n\n"))
}

func TestReadEvents_TruncatedField(t *testing.T) {
	var got []string
	var last error
	for ev, err := range ReadEvents(strings.NewReader("data: whole\n\ndata: cut off")) {
		if err != nil {
			last = err
			break
		}
		got = append(got, string(ev.Data))
	}
	assert.Equal(t, []string{"whole"}, got)
	assert.Error(t, last)
}

func TestReadEvents_LongEvents(t *testing.T) {
	long := strings.Repeat("x", 10000)
	events := readAll(t, "data: "+long+"\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, long, string(events[0].Data))

	var last error
	for _, err := range ReadEvents(strings.NewReader("data: " + strings.Repeat("y", MaxEventSize+1) + "\n\n")) {
		last = err
	}
	assert.ErrorIs(t, last, ErrEventTooLarge)
}

func TestReadEvents_StopsWhenConsumerBreaks(t *testing.T) {
	n := 0
	for range ReadEvents(strings.NewReader("data: 1\n\ndata: 2\n\ndata: 3\n\n")) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}
