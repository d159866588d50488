package synth

import (
	"context"
	"math"
	"time"
	"unicode"
)

const (
	MockSampleRate = 24000

	mockVoicedMs = 80
	mockPauseMs  = 40
	mockStopMs   = 120
	mockFadeMs   = 20
)

// MockSynthesizer is the development fallback: a sine tone per voiced
// character and silence for spaces and punctuation.
type MockSynthesizer struct {
	SampleRate int
	Frequency  float64
	// Latency delays every call, for exercising timeouts and ordering.
	Latency time.Duration
}

func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{SampleRate: MockSampleRate, Frequency: 220}
}

func (m *MockSynthesizer) Ready() bool { return true }

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string) (Result, error) {
	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	rate := m.SampleRate
	if rate <= 0 {
		rate = MockSampleRate
	}
	freq := m.Frequency
	if freq <= 0 {
		freq = 220
	}

	runes := []rune(text)
	records := make([]Record, 0, len(runes))
	samples := make([]int16, 0, len(runes)*rate*mockVoicedMs/1000)
	for _, r := range runes {
		n := rate * mockDurationMs(r) / 1000
		start := len(samples)
		voiced := unicode.IsLetter(r) || unicode.IsDigit(r)
		for i := 0; i < n; i++ {
			var v float64
			if voiced {
				v = 0.5 * math.Sin(2*math.Pi*freq*float64(start+i)/float64(rate))
			}
			samples = append(samples, int16(v*32767))
		}
		records = append(records, Record{
			Char:       string(r),
			StartMs:    float64(start) * 1000 / float64(rate),
			DurationMs: float64(n) * 1000 / float64(rate),
		})
	}
	applyFade(samples, rate*mockFadeMs/1000)

	return Result{Samples: samples, SampleRate: rate, Chars: records}, nil
}

func mockDurationMs(r rune) int {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r):
		return mockVoicedMs
	case r == '.' || r == '!' || r == '?' || r == '。' || r == '！' || r == '？':
		return mockStopMs
	default:
		return mockPauseMs
	}
}

// applyFade ramps the first and last n samples to avoid clicks at chunk
// joins.
func applyFade(samples []int16, n int) {
	if limit := len(samples) / 20; n > limit {
		n = limit
	}
	if n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		g := float64(i) / float64(n)
		samples[i] = int16(float64(samples[i]) * g)
		j := len(samples) - 1 - i
		samples[j] = int16(float64(samples[j]) * g)
	}
}
