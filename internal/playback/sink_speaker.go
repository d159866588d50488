package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/liuscraft/orion-stream/internal/audio"
	"github.com/liuscraft/orion-stream/internal/logging"
)

// DefaultSpeakerFrames is 10ms at 44.1 kHz.
const DefaultSpeakerFrames = 441

// SpeakerSink plays audio on the default output device through a blocking
// portaudio stream.
type SpeakerSink struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buffer []int16
}

func NewSpeakerSink(framesPerBuffer int) (*SpeakerSink, error) {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultSpeakerFrames
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("init portaudio: %w", err)
	}

	buffer := make([]int16, framesPerBuffer*audio.Channels)
	stream, err := portaudio.OpenDefaultStream(0, audio.Channels, float64(audio.TargetSampleRate), framesPerBuffer, &buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}
	logging.Infof("SpeakerSink: started, rate=%d frames=%d", audio.TargetSampleRate, framesPerBuffer)
	return &SpeakerSink{stream: stream, buffer: buffer}, nil
}

// Write blocks until the frame has been handed to the device. The last
// partial buffer is padded with silence.
func (s *SpeakerSink) Write(ctx context.Context, pcm []byte) error {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return fmt.Errorf("speaker closed")
	}
	for len(samples) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := copy(s.buffer, samples)
		clear(s.buffer[n:])
		samples = samples[n:]
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("write speaker: %w", err)
		}
	}
	return nil
}

func (s *SpeakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return nil
	}
	if err := s.stream.Stop(); err != nil {
		logging.Warnf("SpeakerSink: error stopping stream: %v", err)
	}
	err := s.stream.Close()
	s.stream = nil
	portaudio.Terminate()
	return err
}
