package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire audio format: every emitted chunk is 44.1 kHz, 16-bit signed
// little-endian, mono.
const (
	TargetSampleRate = 44100
	BitDepth         = 16
	Channels         = 1
	BytesPerSample   = BitDepth / 8
)

var ErrOddLength = errors.New("pcm16 payload has odd byte length")

// EncodePCM16 serialises samples as little-endian 16-bit PCM.
func EncodePCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func DecodePCM16(data []byte) ([]int16, error) {
	if len(data)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddLength, len(data))
	}
	samples := make([]int16, len(data)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

func EncodeBase64(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

func DecodeBase64(payload string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	return data, nil
}

// DurationMs is the playback length of samples at rate.
func DurationMs(samples, rate int) float64 {
	if rate <= 0 {
		return 0
	}
	return float64(samples) * 1000 / float64(rate)
}
