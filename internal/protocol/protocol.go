package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/synth"
	"github.com/liuscraft/orion-stream/internal/timeline"
)

var (
	ErrProtocolViolation = errors.New("protocol violation")
	ErrInvalidJSON       = fmt.Errorf("%w: invalid JSON format", ErrProtocolViolation)
)

// Inbound is a client message. Text is nil when the field is absent so an
// empty string (end of session) can be told apart from no text at all.
type Inbound struct {
	Text  *string `json:"text,omitempty"`
	Flush bool    `json:"flush,omitempty"`
	Reset bool    `json:"reset,omitempty"`
}

func (m Inbound) HasText() bool { return m.Text != nil }

// TextValue returns the text or "" when absent.
func (m Inbound) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// IsClose reports the end-of-session marker: {"text": ""} without flush.
func (m Inbound) IsClose() bool {
	return m.Text != nil && *m.Text == "" && !m.Flush && !m.Reset
}

func Text(s string) Inbound  { return Inbound{Text: &s} }
func Flush(s string) Inbound { return Inbound{Text: &s, Flush: true} }
func Reset() Inbound         { return Inbound{Reset: true} }

// Handshake is the single-space first message that marks a session live.
func Handshake() Inbound { return Text(" ") }

// Close is the end-of-session marker.
func Close() Inbound { return Text("") }

func (m Inbound) Encode() ([]byte, error) { return json.Marshal(m) }

type rawInbound struct {
	Text  json.RawMessage `json:"text"`
	Flush json.RawMessage `json:"flush"`
	Reset json.RawMessage `json:"reset"`
}

// DecodeInbound parses and validates one client frame.
func DecodeInbound(data []byte) (Inbound, error) {
	if !json.Valid(data) {
		return Inbound{}, ErrInvalidJSON
	}
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: expected an object", ErrProtocolViolation)
	}

	var msg Inbound
	if present(raw.Text) {
		var s string
		if err := json.Unmarshal(raw.Text, &s); err != nil {
			return Inbound{}, fmt.Errorf("%w: text must be a string", ErrProtocolViolation)
		}
		msg.Text = &s
	}
	if present(raw.Flush) {
		if err := json.Unmarshal(raw.Flush, &msg.Flush); err != nil {
			return Inbound{}, fmt.Errorf("%w: flush must be a boolean", ErrProtocolViolation)
		}
	}
	if present(raw.Reset) {
		if err := json.Unmarshal(raw.Reset, &msg.Reset); err != nil {
			return Inbound{}, fmt.Errorf("%w: reset must be a boolean", ErrProtocolViolation)
		}
	}
	if msg.Text == nil && !msg.Flush && !msg.Reset {
		return Inbound{}, fmt.Errorf("%w: no text, flush or reset field", ErrProtocolViolation)
	}
	return msg, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

type Alignment struct {
	Chars            []string  `json:"chars"`
	CharStartTimesMs []float64 `json:"char_start_times_ms"`
	CharDurationsMs  []float64 `json:"char_durations_ms"`
}

func (a Alignment) Validate() error {
	if len(a.Chars) != len(a.CharStartTimesMs) || len(a.Chars) != len(a.CharDurationsMs) {
		return fmt.Errorf("%w: alignment arrays differ in length (%d/%d/%d)", ErrProtocolViolation,
			len(a.Chars), len(a.CharStartTimesMs), len(a.CharDurationsMs))
	}
	return nil
}

type WordAlignment struct {
	Words            []string  `json:"words"`
	WordStartTimesMs []float64 `json:"word_start_times_ms"`
	WordDurationsMs  []float64 `json:"word_durations_ms"`
}

// Outbound is a server message: an audio chunk with its alignment, or a
// non-fatal error.
type Outbound struct {
	Audio          *string        `json:"audio,omitempty"`
	Alignment      *Alignment     `json:"alignment,omitempty"`
	WordAlignment  *WordAlignment `json:"word_alignment,omitempty"`
	Error          string         `json:"error,omitempty"`
	Generation     uint64         `json:"generation,omitempty"`
	OffsetMs       *float64       `json:"offset_ms,omitempty"`
	DurationMs     float64        `json:"duration_ms,omitempty"`
	OriginalText   string         `json:"original_text,omitempty"`
	NormalizedText string         `json:"normalized_text,omitempty"`
}

func (m Outbound) IsAudio() bool { return m.Audio != nil }
func (m Outbound) IsError() bool { return m.Error != "" }

func (m Outbound) Encode() ([]byte, error) { return json.Marshal(m) }

// Offset returns the chunk's timeline offset and whether the server sent
// one. A first chunk legitimately sits at offset 0.
func (m Outbound) Offset() (float64, bool) {
	if m.OffsetMs == nil {
		return 0, false
	}
	return *m.OffsetMs, true
}

// NewAudio builds the wire message for a chunk placed on the timeline.
// Character start times are session-global.
func NewAudio(generation uint64, seg timeline.Segment, chunk synth.Chunk) Outbound {
	payload := audio.EncodeBase64(chunk.PCM)
	align := &Alignment{
		Chars:            make([]string, len(seg.Records)),
		CharStartTimesMs: make([]float64, len(seg.Records)),
		CharDurationsMs:  make([]float64, len(seg.Records)),
	}
	for i, r := range seg.Records {
		align.Chars[i] = r.Char
		align.CharStartTimesMs[i] = r.StartMs
		align.CharDurationsMs[i] = r.DurationMs
	}

	words := timeline.Words(seg.Records)
	wa := &WordAlignment{
		Words:            make([]string, len(words)),
		WordStartTimesMs: make([]float64, len(words)),
		WordDurationsMs:  make([]float64, len(words)),
	}
	for i, w := range words {
		wa.Words[i] = w.Text
		wa.WordStartTimesMs[i] = w.StartMs
		wa.WordDurationsMs[i] = w.DurationMs
	}

	offset := seg.OffsetMs
	return Outbound{
		Audio:          &payload,
		Alignment:      align,
		WordAlignment:  wa,
		Generation:     generation,
		OffsetMs:       &offset,
		DurationMs:     seg.DurationMs,
		OriginalText:   chunk.OriginalText,
		NormalizedText: chunk.NormalizedText,
	}
}

func NewError(generation uint64, msg string) Outbound {
	return Outbound{Error: msg, Generation: generation}
}

// DecodeOutbound parses a server frame on the client side.
func DecodeOutbound(data []byte) (Outbound, error) {
	var msg Outbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Outbound{}, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	if msg.Alignment != nil {
		if err := msg.Alignment.Validate(); err != nil {
			return Outbound{}, err
		}
	}
	if msg.Audio == nil && msg.Error == "" {
		return Outbound{}, fmt.Errorf("%w: neither audio nor error", ErrProtocolViolation)
	}
	return msg, nil
}
