package timeline

import (
	"sync"
	"unicode"

	"github.com/liuscraft/orion-stream/internal/synth"
)

// Record is a character placed on the session timeline. LocalStartMs is
// relative to its own segment, StartMs to the start of the session.
type Record struct {
	Char         string
	LocalStartMs float64
	StartMs      float64
	DurationMs   float64
}

// Segment is one emitted chunk's alignment resolved against the running
// offset.
type Segment struct {
	Index      int
	OffsetMs   float64
	DurationMs float64
	Records    []Record
}

func (s Segment) EndMs() float64 { return s.OffsetMs + s.DurationMs }

// Accumulator stitches per-chunk alignments into one session timeline.
// Segment n's offset is always the sum of the durations of segments
// 0..n-1.
type Accumulator struct {
	mu       sync.Mutex
	segments []Segment
	offsetMs float64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append places records at the current offset and advances it by
// durationMs. Negative durations count as zero.
func (a *Accumulator) Append(records []synth.Record, durationMs float64) Segment {
	if durationMs < 0 {
		durationMs = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	seg := Segment{
		Index:      len(a.segments),
		OffsetMs:   a.offsetMs,
		DurationMs: durationMs,
		Records:    make([]Record, len(records)),
	}
	for i, r := range records {
		seg.Records[i] = Record{
			Char:         r.Char,
			LocalStartMs: r.StartMs,
			StartMs:      r.StartMs + seg.OffsetMs,
			DurationMs:   r.DurationMs,
		}
	}
	a.segments = append(a.segments, seg)
	a.offsetMs += durationMs
	return seg
}

// Reset drops every segment and rewinds the offset to zero.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.segments = nil
	a.offsetMs = 0
	a.mu.Unlock()
}

func (a *Accumulator) OffsetMs() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offsetMs
}

func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segments)
}

// Segments returns a snapshot of the timeline.
func (a *Accumulator) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.segments))
	copy(out, a.segments)
	return out
}

// Word is a whitespace-delimited run of characters. First and Last index
// into the records it was built from.
type Word struct {
	Text       string
	StartMs    float64
	DurationMs float64
	First      int
	Last       int
}

func (w Word) EndMs() float64 { return w.StartMs + w.DurationMs }

// Words groups records into words, punctuation staying attached.
func Words(records []Record) []Word {
	var words []Word
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		var text []rune
		for _, r := range records[start : end+1] {
			text = append(text, []rune(r.Char)...)
		}
		first, last := records[start], records[end]
		words = append(words, Word{
			Text:       string(text),
			StartMs:    first.StartMs,
			DurationMs: last.StartMs + last.DurationMs - first.StartMs,
			First:      start,
			Last:       end,
		})
		start = -1
	}
	for i, r := range records {
		if isSpace(r.Char) {
			flush(i - 1)
			continue
		}
		if start < 0 {
			start = i
		}
	}
	flush(len(records) - 1)
	return words
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
