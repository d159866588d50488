package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/text"
)

const DefaultTimeout = 30 * time.Second

// Chunk is one synthesized unit in wire format: 44.1 kHz 16-bit LE mono PCM
// plus the unit-local alignment. DurationMs is the length of the audio, the
// amount the session timeline advances by.
type Chunk struct {
	PCM            []byte
	SampleRate     int
	Records        []Record
	DurationMs     float64
	OriginalText   string
	NormalizedText string
	Cached         bool
}

type AdapterConfig struct {
	Timeout    time.Duration
	TargetRate int
	Voice      string
	Normalizer text.Normalizer
	Resampler  audio.Resampler
	Cache      *Cache
}

// Adapter wraps a Synthesizer and converts its native output into Chunks.
// It never retries; a failed unit is reported to the caller.
type Adapter struct {
	synth Synthesizer
	cfg   AdapterConfig
}

func NewAdapter(s Synthesizer, cfg AdapterConfig) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = audio.TargetSampleRate
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = text.Passthrough
	}
	if cfg.Resampler == nil {
		cfg.Resampler = audio.NewSincResampler(audio.DefaultSincTaps)
	}
	return &Adapter{synth: s, cfg: cfg}
}

func (a *Adapter) Ready() bool {
	if a == nil || a.synth == nil {
		return false
	}
	if r, ok := a.synth.(Readier); ok {
		return r.Ready()
	}
	return true
}

// Synthesize renders one unit. Whitespace-only input is not an error: it
// yields silent zero-length audio with a zero-duration record per rune.
func (a *Adapter) Synthesize(ctx context.Context, unit string) (Chunk, error) {
	if strings.TrimSpace(unit) == "" {
		return a.silent(unit), nil
	}
	normalized := a.cfg.Normalizer.Normalize(unit)
	if strings.TrimSpace(normalized) == "" {
		chunk := a.silent(unit)
		chunk.Records = nil
		return chunk, nil
	}

	key := CacheKey(normalized, a.cfg.Voice)
	if chunk, ok := a.cfg.Cache.Get(key); ok {
		chunk.OriginalText = unit
		chunk.Cached = true
		return chunk, nil
	}

	if !a.Ready() {
		return Chunk{}, ErrNotReady
	}

	res, err := a.call(ctx, normalized)
	if err != nil {
		return Chunk{}, err
	}
	if res.SampleRate <= 0 {
		return Chunk{}, fmt.Errorf("%w: invalid native sample rate %d", ErrSynthesis, res.SampleRate)
	}

	durationMs := audio.DurationMs(len(res.Samples), res.SampleRate)
	records, err := alignment(normalized, res.Chars, durationMs)
	if err != nil {
		return Chunk{}, err
	}

	out, err := a.cfg.Resampler.Resample(res.Samples, res.SampleRate, a.cfg.TargetRate, audio.Channels)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %w", ErrResampling, err)
	}
	if want := audio.OutputLength(len(res.Samples), res.SampleRate, a.cfg.TargetRate); len(out) != want {
		return Chunk{}, fmt.Errorf("%w: got %d samples, want %d", ErrResampling, len(out), want)
	}

	chunk := Chunk{
		PCM:            audio.EncodePCM16(out),
		SampleRate:     a.cfg.TargetRate,
		Records:        records,
		DurationMs:     durationMs,
		OriginalText:   unit,
		NormalizedText: normalized,
	}
	a.cfg.Cache.Add(key, chunk)
	return chunk, nil
}

func (a *Adapter) silent(unit string) Chunk {
	runes := []rune(unit)
	records := make([]Record, len(runes))
	for i, r := range runes {
		records[i] = Record{Char: string(r)}
	}
	return Chunk{
		PCM:            []byte{},
		SampleRate:     a.cfg.TargetRate,
		Records:        records,
		OriginalText:   unit,
		NormalizedText: "",
	}
}

// call runs the synthesizer under the adapter timeout. A synthesizer that
// ignores its context is abandoned once the deadline passes.
func (a *Adapter) call(ctx context.Context, normalized string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := a.synth.Synthesize(ctx, normalized)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil {
			return o.res, nil
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, a.cfg.Timeout)
		}
		return Result{}, wrapSynthesis(o.err)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, a.cfg.Timeout)
		}
		return Result{}, wrapSynthesis(ctx.Err())
	}
}

// alignment validates the synthesizer's records. When none were produced
// the duration is spread evenly over the characters.
func alignment(normalized string, chars []Record, durationMs float64) ([]Record, error) {
	if len(chars) == 0 {
		runes := []rune(normalized)
		records := make([]Record, len(runes))
		step := durationMs / float64(len(runes))
		for i, r := range runes {
			records[i] = Record{Char: string(r), StartMs: float64(i) * step, DurationMs: step}
		}
		return records, nil
	}

	records := make([]Record, len(chars))
	prev := 0.0
	for i, r := range chars {
		if !finite(r.StartMs) || !finite(r.DurationMs) || r.StartMs < 0 || r.DurationMs < 0 {
			return nil, fmt.Errorf("%w: malformed timing for char %d", ErrSynthesis, i)
		}
		if r.StartMs < prev {
			return nil, fmt.Errorf("%w: char %d starts before char %d", ErrSynthesis, i, i-1)
		}
		prev = r.StartMs
		records[i] = r
	}
	return records, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
