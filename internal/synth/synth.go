package synth

import (
	"context"
	"errors"
	"fmt"
)

// Record is the timing of one character within a synthesized unit,
// relative to the start of that unit's audio.
type Record struct {
	Char       string  `json:"char"`
	StartMs    float64 `json:"start_ms"`
	DurationMs float64 `json:"duration_ms"`
}

func (r Record) EndMs() float64 { return r.StartMs + r.DurationMs }

// Result is the raw output of a synthesizer at its native sample rate.
type Result struct {
	Samples    []int16
	SampleRate int
	Chars      []Record
}

// Synthesizer turns text into mono audio plus per-character timing.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Result, error)
}

// Readier is implemented by synthesizers that need warm-up.
type Readier interface {
	Ready() bool
}

var (
	ErrSynthesis  = errors.New("synthesis error")
	ErrResampling = fmt.Errorf("%w: resampled sample count mismatch", ErrSynthesis)
	ErrTimeout    = fmt.Errorf("%w: synthesizer timed out", ErrSynthesis)
	ErrNotReady   = fmt.Errorf("%w: synthesizer not ready", ErrSynthesis)
)

func wrapSynthesis(err error) error {
	if err == nil || errors.Is(err, ErrSynthesis) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSynthesis, err)
}

// Kind classifies a synthesis failure for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrResampling):
		return "resampling"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "synthesis"
	}
}
