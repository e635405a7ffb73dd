// Package sse frames server-sent events. Each frame is an `event:` line, a
// single-line JSON `data:` payload, and a blank line, flushed immediately so
// clients see tokens as they arrive.
package sse

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Event names used by the streaming endpoint.
const (
	EventStart = "start"
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// Writer emits frames to w, flushing after each one when w supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// Send writes one complete frame. The payload is marshalled compactly so
// the data line never spans multiple lines.
func (s *Writer) Send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("sse marshal: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// Frame is one decoded (event, data) pair.
type Frame struct {
	Event string
	Data  string
}

// Decode parses a captured SSE stream into frames. Multi-line data blocks
// are joined with newlines, per the SSE wire format. It exists for tests
// that replay recorded streams.
func Decode(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	var frames []Frame
	var event string
	var data []string

	flush := func() {
		if event == "" && len(data) == 0 {
			return
		}
		frames = append(frames, Frame{Event: event, Data: strings.Join(data, "\n")})
		event = ""
		data = nil
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return frames, nil
}
