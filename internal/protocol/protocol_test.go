package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/liuscraft/orion-stream/internal/synth"
	"github.com/liuscraft/orion-stream/internal/timeline"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		text      *string
		flush     bool
		reset     bool
		closeMark bool
	}{
		{name: "handshake", raw: `{"text":" "}`, text: strPtr(" ")},
		{name: "text", raw: `{"text":"Hello "}`, text: strPtr("Hello ")},
		{name: "flush with text", raw: `{"text":"tail","flush":true}`, text: strPtr("tail"), flush: true},
		{name: "bare flush", raw: `{"flush":true}`, flush: true},
		{name: "reset", raw: `{"reset":true}`, reset: true},
		{name: "close", raw: `{"text":""}`, text: strPtr(""), closeMark: true},
		{name: "null text ignored", raw: `{"text":null,"reset":true}`, reset: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tc.raw))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if (msg.Text == nil) != (tc.text == nil) || (tc.text != nil && *msg.Text != *tc.text) {
				t.Fatalf("text mismatch: %v", msg.Text)
			}
			if msg.Flush != tc.flush || msg.Reset != tc.reset {
				t.Fatalf("flags mismatch: %+v", msg)
			}
			if msg.IsClose() != tc.closeMark {
				t.Fatalf("IsClose = %v", msg.IsClose())
			}
		})
	}
}

func TestDecodeInboundViolations(t *testing.T) {
	cases := []string{
		`{"text": 5}`,
		`{"flush": "yes"}`,
		`{"reset": 1}`,
		`{"other": true}`,
		`[1,2]`,
		`"text"`,
		`{}`,
	}
	for _, raw := range cases {
		if _, err := DecodeInbound([]byte(raw)); !errors.Is(err, ErrProtocolViolation) {
			t.Errorf("%s: expected protocol violation, got %v", raw, err)
		}
	}

	_, err := DecodeInbound([]byte(`{"text": "unterminated`))
	if !errors.Is(err, ErrInvalidJSON) || !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected invalid JSON, got %v", err)
	}
}

func TestInboundConstructors(t *testing.T) {
	b, err := Close().Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(b) != `{"text":""}` {
		t.Fatalf("unexpected close frame %s", b)
	}
	b, _ = Flush("x").Encode()
	if string(b) != `{"text":"x","flush":true}` {
		t.Fatalf("unexpected flush frame %s", b)
	}
	b, _ = Reset().Encode()
	if string(b) != `{"reset":true}` {
		t.Fatalf("unexpected reset frame %s", b)
	}
	if Handshake().TextValue() != " " {
		t.Fatal("handshake must be a single space")
	}
}

func TestNewAudioMessage(t *testing.T) {
	acc := timeline.NewAccumulator()
	acc.Append([]synth.Record{{Char: "a", DurationMs: 50}}, 50)
	seg := acc.Append([]synth.Record{
		{Char: "H", StartMs: 0, DurationMs: 80},
		{Char: "i", StartMs: 80, DurationMs: 80},
		{Char: " ", StartMs: 160, DurationMs: 40},
	}, 200)

	msg := NewAudio(3, seg, synth.Chunk{PCM: []byte{1, 0, 2, 0}, OriginalText: "Hi ", NormalizedText: "Hi"})
	b, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var wire map[string]json.RawMessage
	if err := json.Unmarshal(b, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"audio", "alignment", "word_alignment", "generation", "offset_ms", "duration_ms"} {
		if _, ok := wire[key]; !ok {
			t.Errorf("missing %q in %s", key, b)
		}
	}

	decoded, err := DecodeOutbound(b)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	if *decoded.Audio != "AQACAA==" {
		t.Fatalf("unexpected audio %q", *decoded.Audio)
	}
	if got := decoded.Alignment.CharStartTimesMs; got[0] != 50 || got[1] != 130 || got[2] != 210 {
		t.Fatalf("expected global start times, got %v", got)
	}
	if len(decoded.WordAlignment.Words) != 1 || decoded.WordAlignment.Words[0] != "Hi" {
		t.Fatalf("unexpected words %+v", decoded.WordAlignment)
	}
	if *decoded.OffsetMs != 50 || decoded.DurationMs != 200 || decoded.Generation != 3 {
		t.Fatalf("unexpected metadata %+v", decoded)
	}
}

func TestEmptyAudioMessageKeepsFields(t *testing.T) {
	acc := timeline.NewAccumulator()
	msg := NewAudio(0, acc.Append(nil, 0), synth.Chunk{})
	b, _ := msg.Encode()
	if !strings.Contains(string(b), `"audio":""`) || !strings.Contains(string(b), `"chars":[]`) {
		t.Fatalf("empty chunk must still carry audio and alignment: %s", b)
	}
	if _, err := DecodeOutbound(b); err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
}

func TestDecodeOutboundRejectsMismatchedAlignment(t *testing.T) {
	raw := `{"audio":"","alignment":{"chars":["a","b"],"char_start_times_ms":[0],"char_durations_ms":[1,1]}}`
	if _, err := DecodeOutbound([]byte(raw)); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected violation, got %v", err)
	}
	if _, err := DecodeOutbound([]byte(`{}`)); err == nil {
		t.Fatal("expected error for empty frame")
	}
	msg, err := DecodeOutbound([]byte(`{"error":"TTS processing failed"}`))
	if err != nil || !msg.IsError() {
		t.Fatalf("error frame: %+v %v", msg, err)
	}
}

func strPtr(s string) *string { return &s }

func TestFirstChunkCarriesZeroOffset(t *testing.T) {
	acc := timeline.NewAccumulator()
	msg := NewAudio(0, acc.Append([]synth.Record{{Char: "a", StartMs: 120, DurationMs: 80}}, 200), synth.Chunk{})
	b, _ := msg.Encode()
	if !strings.Contains(string(b), `"offset_ms":0`) {
		t.Fatalf("offset 0 must be on the wire: %s", b)
	}
	decoded, err := DecodeOutbound(b)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	if off, ok := decoded.Offset(); !ok || off != 0 {
		t.Fatalf("Offset() = %v, %v; want 0, true", off, ok)
	}

	legacy, err := DecodeOutbound([]byte(`{"audio":""}`))
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	if _, ok := legacy.Offset(); ok {
		t.Fatal("absent offset_ms should report not set")
	}
}
