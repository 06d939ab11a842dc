// Package resampler converts a loaded HRIR/BRIR table's native sample rate
// to the AudioState.SampleRate a hrtf.Store was built for, a setup-time
// operation distinct from the live audio stream's rate (never converted by
// this module, per the ambient Non-goals).
package resampler

import (
	"math"
)

// Resampler performs sample rate conversion using windowed sinc interpolation.
type Resampler struct {
	// Quality parameter: number of sinc lobes on each side
	sincLobes int
}

// New creates a Resampler with the default quality (16 sinc lobes), enough
// to resample a measured HRIR without audible aliasing.
func New() *Resampler {
	return &Resampler{
		sincLobes: 16,
	}
}

// NewWithQuality creates a Resampler with specified quality.
// More lobes = higher quality but slower.
func NewWithQuality(lobes int) *Resampler {
	if lobes < 4 {
		lobes = 4
	}
	if lobes > 64 {
		lobes = 64
	}
	return &Resampler{
		sincLobes: lobes,
	}
}

// sinc computes sin(pi*x)/(pi*x) with proper handling at x=0.
func sinc(x float64) float64 {
	if math.Abs(x) < 1e-10 {
		return 1.0
	}
	pix := math.Pi * x
	return math.Sin(pix) / pix
}

// blackmanWindow computes the Blackman window value for a given position.
// x should be in range [-1, 1], returns 0 outside that range.
func blackmanWindow(x float64) float64 {
	if x < -1.0 || x > 1.0 {
		return 0.0
	}
	t := (x + 1.0) / 2.0 // map [-1,1] to [0,1]
	return 0.42 - 0.5*math.Cos(2*math.Pi*t) + 0.08*math.Cos(4*math.Pi*t)
}

// Resample converts one channel of HRIR/BRIR audio from srcRate to dstRate
// using windowed sinc interpolation.
func (r *Resampler) Resample(data []float32, srcRate, dstRate float64) ([]float32, error) {
	if len(data) == 0 {
		return []float32{}, nil
	}

	if srcRate == dstRate {
		out := make([]float32, len(data))
		copy(out, data)
		return out, nil
	}

	ratio := dstRate / srcRate
	inputLen := len(data)
	outputLen := int(math.Round(float64(inputLen) * ratio))

	if outputLen == 0 {
		return []float32{}, nil
	}

	output := make([]float32, outputLen)

	for i := 0; i < outputLen; i++ {
		inputPos := float64(i) / ratio

		// Downsampling widens the filter to avoid aliasing.
		filterRatio := 1.0
		if ratio < 1.0 {
			filterRatio = ratio
		}

		windowRadius := float64(r.sincLobes) / filterRatio
		startIdx := int(math.Floor(inputPos - windowRadius))
		endIdx := int(math.Ceil(inputPos + windowRadius))

		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx >= inputLen {
			endIdx = inputLen - 1
		}

		var sum, weightSum float64
		for j := startIdx; j <= endIdx; j++ {
			d := inputPos - float64(j)
			scaledD := d * filterRatio

			s := sinc(scaledD)
			w := blackmanWindow(d / windowRadius)
			weight := s * w

			sum += float64(data[j]) * weight
			weightSum += weight
		}

		if weightSum > 0 {
			output[i] = float32(sum / weightSum)
		}
	}

	return output, nil
}

// ResampleEarPair resamples a Left/Right HRIR pair from srcRate to dstRate,
// the shape hrtf.Store.EndSetup needs when a loaded table's native rate
// differs from the store's AudioState.SampleRate.
//
// Input: [channel][sample] at srcRate, where channel 0 is Left and channel 1
// is Right (or a single mono channel). Output: [channel][sample] at dstRate.
func (r *Resampler) ResampleEarPair(data [][]float32, srcRate, dstRate float64) ([][]float32, error) {
	if len(data) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, len(data))
	for ch := range data {
		resampled, err := r.Resample(data[ch], srcRate, dstRate)
		if err != nil {
			return nil, err
		}
		out[ch] = resampled
	}

	return out, nil
}

// CalculateOutputLength returns the expected output length for resampling.
func CalculateOutputLength(inputLen int, srcRate, dstRate float64) int {
	if inputLen == 0 {
		return 0
	}
	return int(math.Round(float64(inputLen) * dstRate / srcRate))
}
