package session

import (
	"context"
	"errors"
	"sync"

	"github.com/liuscraft/orion-stream/internal/synth"
)

// fakeSynth emits 10ms per rune and no PCM beyond two bytes per rune.
type fakeSynth struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
	gate  chan struct{}
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{fail: map[string]bool{}}
}

func (f *fakeSynth) Synthesize(ctx context.Context, unit string) (synth.Chunk, error) {
	f.mu.Lock()
	f.calls = append(f.calls, unit)
	gate := f.gate
	fail := f.fail[unit]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if fail {
		return synth.Chunk{}, errors.Join(synth.ErrSynthesis, errors.New("scripted failure"))
	}

	runes := []rune(unit)
	records := make([]synth.Record, len(runes))
	for i, r := range runes {
		records[i] = synth.Record{Char: string(r), StartMs: float64(i) * 10, DurationMs: 10}
	}
	return synth.Chunk{
		PCM:            make([]byte, 2*len(runes)),
		SampleRate:     44100,
		Records:        records,
		DurationMs:     float64(10 * len(runes)),
		OriginalText:   unit,
		NormalizedText: unit,
	}, nil
}

func (f *fakeSynth) setGate(gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = gate
}

func (f *fakeSynth) failOn(unit string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[unit] = true
}

func (f *fakeSynth) getCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
