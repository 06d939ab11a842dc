// Package dsp implements the real-time signal-processing building blocks
// shared by every higher-level component: the frequency processor (C1),
// the uniformly-partitioned convolver (C2), and the biquad/filter-chain/
// graphic-EQ cascades (C3).
//
// FFT work is delegated to github.com/MeKo-Christian/algo-fft, the same
// dependency the teacher repo (pw-convoverb) uses for its convolution
// engines, rather than a hand-rolled transform.
package dsp

import (
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// FrequencyProcessor wraps a cached algo-fft plan for a fixed transform
// size, exposing the forward/inverse FFT and the complex-domain helpers
// CFprocessor provides in the original toolkit: complex multiply and
// module/phase conversion.
type FrequencyProcessor struct {
	size int
	plan *algofft.Plan[complex64]
}

// NewFrequencyProcessor creates a processor for complex transforms of the
// given size, which must be a power of two.
func NewFrequencyProcessor(size int) (*FrequencyProcessor, error) {
	if size <= 0 || size&(size-1) != 0 {
		return nil, fmt.Errorf("dsp: FFT size must be a power of two, got %d", size)
	}
	plan, err := algofft.NewPlan32(size)
	if err != nil {
		return nil, fmt.Errorf("dsp: failed to create FFT plan: %w", err)
	}
	return &FrequencyProcessor{size: size, plan: plan}, nil
}

// Size returns the transform length.
func (f *FrequencyProcessor) Size() int { return f.size }

// Forward computes the forward FFT of src into dst (both length Size()).
func (f *FrequencyProcessor) Forward(dst, src []complex64) error {
	return f.plan.Forward(dst, src)
}

// Inverse computes the inverse FFT of src into dst. algo-fft normalizes by
// 1/N internally, matching CFprocessor::CalculateIFFT's documented scaling.
func (f *FrequencyProcessor) Inverse(dst, src []complex64) error {
	return f.plan.Inverse(dst, src)
}

// RealToComplex packs a real time-domain buffer (zero-padded to Size() by
// the caller) into a complex buffer ready for Forward.
func RealToComplex(dst []complex64, src []float32) {
	for i := range dst {
		if i < len(src) {
			dst[i] = complex(src[i], 0)
		} else {
			dst[i] = 0
		}
	}
}

// ComplexToReal extracts the real part of a complex buffer, e.g. after Inverse.
func ComplexToReal(dst []float32, src []complex64) {
	for i := range dst {
		dst[i] = real(src[i])
	}
}

// ComplexMultiply computes y[i] = x[i] * h[i] for i in [0, n), matching
// CFprocessor::ProcessComplexMultiplication.
func ComplexMultiply(y, x, h []complex64, n int) {
	for i := 0; i < n; i++ {
		y[i] = x[i] * h[i]
	}
}

// ComplexMultiplyAccumulate computes y[i] += x[i] * h[i] for i in [0, n).
// Used by the UPC's partition accumulation step.
func ComplexMultiplyAccumulate(y, x, h []complex64, n int) {
	for i := 0; i < n; i++ {
		y[i] += x[i] * h[i]
	}
}

// ToModulePhase splits an interleaved complex buffer into module (magnitude)
// and phase, matching CFprocessor::ProcessToModulePhase.
func ToModulePhase(module, phase []float32, c []complex64) {
	for i, v := range c {
		re, im := float64(real(v)), float64(imag(v))
		module[i] = float32(math.Hypot(re, im))
		phase[i] = float32(math.Atan2(im, re))
	}
}

// ToRealImaginary rebuilds a complex buffer from module/phase, the inverse
// of ToModulePhase (CFprocessor::ProcessToRealImaginary). Round-tripping
// ToModulePhase then ToRealImaginary must be the identity within 1e-6
// (spec.md §8).
func ToRealImaginary(c []complex64, module, phase []float32) {
	for i := range c {
		m, p := float64(module[i]), float64(phase[i])
		c[i] = complex(float32(m*math.Cos(p)), float32(m*math.Sin(p)))
	}
}
