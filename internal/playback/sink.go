package playback

import (
	"context"
	"time"

	"github.com/liuscraft/orion-stream/internal/audio"
)

// Sink consumes 44.1 kHz mono PCM16 LE frames. Write returns once the frame
// has been played, so a real-time sink paces the player.
type Sink interface {
	Write(ctx context.Context, pcm []byte) error
	Close() error
}

// NullSink discards audio without waiting.
type NullSink struct{}

func (NullSink) Write(ctx context.Context, pcm []byte) error { return ctx.Err() }
func (NullSink) Close() error                                { return nil }

// PacedSink discards audio but takes as long as the audio would to play.
// It drives captions when no output device is available.
type PacedSink struct{}

func (PacedSink) Write(ctx context.Context, pcm []byte) error {
	d := frameDuration(len(pcm))
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (PacedSink) Close() error { return nil }

// MultiSink writes every frame to each sink in order.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, pcm []byte) error {
	for _, s := range m {
		if err := s.Write(ctx, pcm); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func frameDuration(bytes int) time.Duration {
	samples := bytes / audio.BytesPerSample
	return time.Duration(audio.DurationMs(samples, audio.TargetSampleRate) * float64(time.Millisecond))
}
