package playback

import (
	"context"
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/liuscraft/orion-stream/internal/audio"
)

// WAVSink records everything played into a 16-bit mono WAV file.
type WAVSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
}

func NewWAVSink(path string) (*WAVSink, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav %s: %w", path, err)
	}
	return &WAVSink{
		file: file,
		enc:  wav.NewEncoder(file, audio.TargetSampleRate, audio.BitDepth, audio.Channels, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: audio.TargetSampleRate},
			SourceBitDepth: audio.BitDepth,
		},
	}, nil
}

func (w *WAVSink) Write(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return os.ErrClosed
	}
	data := w.buf.Data[:0]
	for _, s := range samples {
		data = append(data, int(s))
	}
	w.buf.Data = data
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// Close finalizes the WAV header and closes the file.
func (w *WAVSink) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enc == nil {
		return nil
	}
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	w.enc = nil
	if encErr != nil {
		return fmt.Errorf("close wav encoder: %w", encErr)
	}
	return fileErr
}
