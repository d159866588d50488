package audio

import "math"

const DefaultSincTaps = 16

// SincResampler is a band-limited resampler: a Blackman-windowed sinc
// kernel evaluated at each output position. When downsampling the kernel
// is widened so the cutoff tracks the output Nyquist frequency.
type SincResampler struct {
	// Taps is the number of zero crossings on each side of the kernel.
	Taps int
}

func NewSincResampler(taps int) *SincResampler {
	if taps <= 0 {
		taps = DefaultSincTaps
	}
	return &SincResampler{Taps: taps}
}

func (r *SincResampler) Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error) {
	if err := validateRates(inputRate, outputRate, channels); err != nil {
		return nil, err
	}
	inputFrames := len(input) / channels
	if inputFrames == 0 {
		return []int16{}, nil
	}
	if inputRate == outputRate {
		result := make([]int16, inputFrames*channels)
		copy(result, input)
		return result, nil
	}

	cutoff := 1.0
	if outputRate < inputRate {
		cutoff = float64(outputRate) / float64(inputRate)
	}
	half := float64(r.Taps) / cutoff
	step := float64(inputRate) / float64(outputRate)

	outputFrames := OutputLength(inputFrames, inputRate, outputRate)
	output := make([]int16, outputFrames*channels)
	weights := make([]float64, 0, int(2*half)+2)

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		t := float64(outFrame) * step
		lo := int(math.Ceil(t - half))
		hi := int(math.Floor(t + half))
		if lo < 0 {
			lo = 0
		}
		if hi > inputFrames-1 {
			hi = inputFrames - 1
		}

		weights = weights[:0]
		var total float64
		for k := lo; k <= hi; k++ {
			x := t - float64(k)
			w := cutoff * sinc(cutoff*x) * blackman(x/half)
			weights = append(weights, w)
			total += w
		}

		for ch := 0; ch < channels; ch++ {
			var acc float64
			for j, w := range weights {
				acc += w * float64(input[(lo+j)*channels+ch])
			}
			// Normalising by the summed weights keeps unity gain at the edges
			// where the kernel is truncated.
			if total != 0 {
				acc /= total
			}
			output[outFrame*channels+ch] = clip16(math.Round(acc))
		}
	}
	return output, nil
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	px := math.Pi * x
	return math.Sin(px) / px
}

// blackman evaluates the window at u in [-1, 1].
func blackman(u float64) float64 {
	if u <= -1 || u >= 1 {
		return 0
	}
	return 0.42 + 0.5*math.Cos(math.Pi*u) + 0.08*math.Cos(2*math.Pi*u)
}
