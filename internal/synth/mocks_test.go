package synth

import (
	"context"
	"sync"
)

// scriptedSynth returns a fixed result and records the texts it was asked for.
type scriptedSynth struct {
	mu     sync.Mutex
	result Result
	err    error
	block  chan struct{}
	calls  []string
	ready  bool
}

func newScriptedSynth(res Result) *scriptedSynth {
	return &scriptedSynth{result: res, ready: true}
}

func (s *scriptedSynth) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *scriptedSynth) Synthesize(ctx context.Context, text string) (Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	block := s.block
	s.mu.Unlock()

	if block != nil {
		// ignores ctx on purpose
		<-block
	}
	return s.result, s.err
}

func (s *scriptedSynth) getCalls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// shortResampler drops the last sample.
type shortResampler struct{}

func (shortResampler) Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error) {
	if len(input) == 0 {
		return input, nil
	}
	return make([]int16, len(input)*outputRate/inputRate-1), nil
}
