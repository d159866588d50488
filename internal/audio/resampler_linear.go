package audio

import "math"

// LinearResampler 线性插值重采样器
// 简单、快速，高频会有混叠；用于对音质要求不高的场景
type LinearResampler struct{}

func NewLinearResampler() *LinearResampler {
	return &LinearResampler{}
}

// Resample 使用线性插值进行重采样
//
//	position = outputIndex * inputRate / outputRate
//	output[outputIndex] = input[i] * (1 - frac) + input[i+1] * frac
func (r *LinearResampler) Resample(input []int16, inputRate, outputRate, channels int) ([]int16, error) {
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

	ratio := float64(inputRate) / float64(outputRate)
	outputFrames := OutputLength(inputFrames, inputRate, outputRate)
	output := make([]int16, outputFrames*channels)

	for outFrame := 0; outFrame < outputFrames; outFrame++ {
		position := float64(outFrame) * ratio
		inFrame := int(position)
		frac := position - float64(inFrame)

		// 末尾帧保持最后一个样本
		if inFrame >= inputFrames-1 {
			inFrame = inputFrames - 1
			frac = 0
		}

		for ch := 0; ch < channels; ch++ {
			i1 := inFrame*channels + ch
			i2 := i1
			if inFrame+1 < inputFrames {
				i2 = (inFrame+1)*channels + ch
			}
			v := float64(input[i1])*(1.0-frac) + float64(input[i2])*frac
			output[outFrame*channels+ch] = clip16(math.Round(v))
		}
	}

	return output, nil
}
