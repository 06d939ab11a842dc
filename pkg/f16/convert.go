// Package f16 implements the IEEE 754 binary16 (half-precision) sample
// codec pkg/irlib uses to store measured HRIR/BRIR audio on disk at roughly
// half the size of float32, the precision loss a measured impulse response
// can absorb without an audible difference after HRIR convolution.
package f16

import (
	"encoding/binary"
	"math"
)

// Half is one IEEE 754 binary16 sample, little-endian on disk.
type Half uint16

// FromFloat32 rounds v to the nearest representable Half (round-to-nearest-even
// on the 13 discarded mantissa bits), flushing subnormal float32 input to
// signed zero rather than producing a denormal half.
func FromFloat32(v float32) Half {
	bits := math.Float32bits(v)
	sign := (bits >> 31) & 0x1
	exponent := (bits >> 23) & 0xFF
	mantissa := bits & 0x7FFFFF

	switch {
	case exponent == 0xFF:
		if mantissa == 0 {
			return Half((sign << 15) | 0x7C00)
		}
		return Half((sign << 15) | 0x7C00 | ((mantissa >> 13) & 0x3FF))
	case exponent == 0:
		return Half(sign << 15)
	}

	newExponent := int(exponent) - 127 + 15
	if newExponent >= 31 {
		return Half((sign << 15) | 0x7C00)
	}
	if newExponent <= 0 {
		return Half(sign << 15)
	}

	roundedMantissa := (mantissa + 0xFFF + ((mantissa >> 13) & 1)) >> 13
	if roundedMantissa > 0x3FF {
		newExponent++
		roundedMantissa = 0
		if newExponent >= 31 {
			return Half((sign << 15) | 0x7C00)
		}
	}

	return Half((sign << 15) | (uint32(newExponent) << 10) | (roundedMantissa & 0x3FF))
}

// Float32 widens h back to float32.
func (h Half) Float32() float32 {
	bits := uint16(h)
	sign := uint32((bits >> 15) & 0x1)
	exponent := uint32((bits >> 10) & 0x1F)
	mantissa := uint32(bits & 0x3FF)

	switch {
	case exponent == 31:
		if mantissa == 0 {
			return math.Float32frombits((sign << 31) | 0x7F800000)
		}
		return math.Float32frombits((sign << 31) | 0x7FC00000 | (mantissa << 13))
	case exponent == 0:
		if mantissa == 0 {
			return math.Float32frombits(sign << 31)
		}
		exponent = 1
	}

	newExponent := exponent - 15 + 127
	newMantissa := mantissa << 13
	return math.Float32frombits((sign << 31) | (newExponent << 23) | newMantissa)
}

// EncodeSamples converts a single channel of audio to Half precision.
func EncodeSamples(samples []float32) []Half {
	halves := make([]Half, len(samples))
	for i, v := range samples {
		halves[i] = FromFloat32(v)
	}
	return halves
}

// DecodeSamples widens a single channel of Half-precision audio back to float32.
func DecodeSamples(halves []Half) []float32 {
	samples := make([]float32, len(halves))
	for i, h := range halves {
		samples[i] = h.Float32()
	}
	return samples
}

// Marshal encodes samples as little-endian Half bytes, the layout pkg/irlib
// writes into an .irlib AUDI sub-chunk for a single channel.
func Marshal(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(FromFloat32(v)))
	}
	return out
}

// Unmarshal decodes little-endian Half bytes back to float32. Panics if data
// has an odd length, since a truncated AUDI sub-chunk indicates a corrupt file.
func Unmarshal(data []byte) []float32 {
	if len(data)%2 != 0 {
		panic("f16: Unmarshal: input length must be even")
	}
	out := make([]float32, len(data)/2)
	for i := 0; i < len(data); i += 2 {
		out[i/2] = Half(binary.LittleEndian.Uint16(data[i : i+2])).Float32()
	}
	return out
}

// MarshalInterleaved encodes a set of equal-length channels (e.g. an ear
// pair's left/right HRIR) as interleaved little-endian Half bytes:
// ch0[0], ch1[0], ..., ch0[1], ch1[1], ...
func MarshalInterleaved(channels [][]float32) []byte {
	if len(channels) == 0 {
		return []byte{}
	}

	numChannels := len(channels)
	numSamples := len(channels[0])
	for i := 1; i < numChannels; i++ {
		if len(channels[i]) != numSamples {
			panic("f16: MarshalInterleaved: all channels must have equal length")
		}
	}

	out := make([]byte, numChannels*numSamples*2)
	idx := 0
	for sample := 0; sample < numSamples; sample++ {
		for ch := 0; ch < numChannels; ch++ {
			binary.LittleEndian.PutUint16(out[idx:], uint16(FromFloat32(channels[ch][sample])))
			idx += 2
		}
	}
	return out
}

// UnmarshalInterleaved decodes interleaved little-endian Half bytes into
// channels separate float32 slices.
func UnmarshalInterleaved(data []byte, channels int) [][]float32 {
	if len(data)%2 != 0 {
		panic("f16: UnmarshalInterleaved: input length must be even")
	}
	if channels <= 0 {
		panic("f16: UnmarshalInterleaved: channels must be > 0")
	}

	totalSamples := len(data) / 2
	if totalSamples%channels != 0 {
		panic("f16: UnmarshalInterleaved: total samples must be divisible by channel count")
	}

	samplesPerChannel := totalSamples / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, samplesPerChannel)
	}

	idx := 0
	for sample := 0; sample < samplesPerChannel; sample++ {
		for ch := 0; ch < channels; ch++ {
			bits := binary.LittleEndian.Uint16(data[idx : idx+2])
			out[ch][sample] = Half(bits).Float32()
			idx += 2
		}
	}
	return out
}

// QuantizationStats summarizes the precision lost by round-tripping audio
// through Half, the check cmd/hrir-tool runs to confirm a capture survives
// the .irlib codec before it is trusted for convolution.
type QuantizationStats struct {
	PeakAbsoluteError float32
	PeakRelativeError float32
	SignalToNoiseDB   float32
}

// MeasureQuantization round-trips original through Half and reports the
// resulting error and SNR.
func MeasureQuantization(original []float32) QuantizationStats {
	if len(original) == 0 {
		return QuantizationStats{}
	}

	reconstructed := DecodeSamples(EncodeSamples(original))

	var peakAbs, peakRel, sumSquaredError, signalPower float32
	for i, orig := range original {
		errSample := reconstructed[i] - orig
		absErr := abs32(errSample)
		if absErr > peakAbs {
			peakAbs = absErr
		}

		absOrig := abs32(orig)
		if absOrig > 1e-10 {
			if relErr := absErr / absOrig; relErr > peakRel {
				peakRel = relErr
			}
		}

		sumSquaredError += errSample * errSample
		signalPower += orig * orig
	}

	snr := float32(0)
	if sumSquaredError > 0 {
		noisePower := sumSquaredError / float32(len(original))
		signalPower /= float32(len(original))
		if signalPower > 0 {
			snr = 10 * float32(math.Log10(float64(signalPower/noisePower)))
		}
	}

	return QuantizationStats{
		PeakAbsoluteError: peakAbs,
		PeakRelativeError: peakRel,
		SignalToNoiseDB:   snr,
	}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
