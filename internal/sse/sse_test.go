package sse

import (
	"bytes"
	"strings"
	"testing"
)

func TestSend_WritesFrame(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	if err := w.Send(EventToken, map[string]string{"token": "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got := buf.String()
	want := "event: token\ndata: {\"token\":\"hi\"}\n\n"
	if got != want {
		t.Fatalf("unexpected frame:\n got %q\nwant %q", got, want)
	}
}

func TestSendDecode_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	_ = w.Send(EventStart, map[string]string{"session_id": "s1"})
	_ = w.Send(EventToken, map[string]string{"token": "a"})
	_ = w.Send(EventDone, map[string]any{"assistant": "a", "usage": nil})

	frames, err := Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	wantEvents := []string{EventStart, EventToken, EventDone}
	for i, f := range frames {
		if f.Event != wantEvents[i] {
			t.Fatalf("frame %d: expected event %q, got %q", i, wantEvents[i], f.Event)
		}
	}
	if !strings.Contains(frames[0].Data, `"session_id":"s1"`) {
		t.Fatalf("start frame missing session id: %q", frames[0].Data)
	}
}

func TestDecode_JoinsMultiLineData(t *testing.T) {
	raw := "event: token\ndata: line one\ndata: line two\n\n"
	frames, err := Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Data != "line one\nline two" {
		t.Fatalf("expected joined data, got %q", frames[0].Data)
	}
}

func TestDecode_IgnoresTrailingPartialBlock(t *testing.T) {
	raw := "event: start\ndata: {}\n\nevent: token\ndata: {\"token\":\"x\"}"
	frames, err := Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// The unterminated block still decodes; EOF flushes it.
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[1].Event != EventToken {
		t.Fatalf("expected token frame, got %q", frames[1].Event)
	}
}
