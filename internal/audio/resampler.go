package audio

import "fmt"

// Resampler 音频重采样器接口
// input 为交织的 int16 PCM，返回 outputRate 下的样本
type Resampler interface {
	Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error)
}

// NewResampler returns the resampler registered under name: "linear" or
// "sinc". An empty name selects sinc.
func NewResampler(name string) (Resampler, error) {
	switch name {
	case "", "sinc":
		return NewSincResampler(DefaultSincTaps), nil
	case "linear":
		return NewLinearResampler(), nil
	default:
		return nil, fmt.Errorf("unknown resampler %q", name)
	}
}

// OutputLength is the exact frame count produced for frames input frames:
// ceil(frames * outputRate / inputRate), computed in integers so no sample
// is lost to float rounding.
func OutputLength(frames, inputRate, outputRate int) int {
	if frames <= 0 || inputRate <= 0 || outputRate <= 0 {
		return 0
	}
	return int((int64(frames)*int64(outputRate) + int64(inputRate) - 1) / int64(inputRate))
}

func validateRates(inputRate, outputRate, channels int) error {
	if inputRate <= 0 || outputRate <= 0 {
		return fmt.Errorf("invalid sample rate: input=%d, output=%d", inputRate, outputRate)
	}
	if channels <= 0 {
		return fmt.Errorf("invalid channels: %d", channels)
	}
	return nil
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
