// Package sse reads server-sent events from an HTTP response body.
//
// Only the event and data fields are interpreted. Comment lines and unknown
// fields are skipped, and multiple data lines of one event are joined with a
// newline.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Image payloads arrive as one data
// line, so the scanner default of 64KiB is too small.
const maxLineSize = 16 << 20

// Event is one dispatched server-sent event.
type Event struct {
	Type string // empty when the event carried no event field
	Data string
}

// Reader assembles events from a line-oriented stream.
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: sc}
}

// Next returns the next event with a non-empty data payload. It returns
// io.EOF when the underlying stream ends cleanly.
func (r *Reader) Next() (Event, error) {
	var (
		eventType string
		data      strings.Builder
		hasData   bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if hasData {
				return Event{Type: eventType, Data: data.String()}, nil
			}
			eventType = ""
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			eventType = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("sse: %w", err)
	}
	// A final event without a trailing blank line is still dispatched.
	if hasData {
		return Event{Type: eventType, Data: data.String()}, nil
	}
	return Event{}, io.EOF
}
