// Package hasim implements the Hearing-Aid Simulator (C11, spec.md §4.7):
// per-ear pre/post quantization, a multiband dynamic equalizer with
// level-dependent curves, LPF/HPF band shaping, Fig6 fitting from an
// audiogram, overall normalization, and a final overall gain.
//
// Grounded on 3dti_Toolkit/HAHLSimulation/HearingAidSim.{h,cpp}, reusing
// dsp.Biquad/FilterChain the same way hlsim does for its filterbank.
package hasim

import "math"

// Quantizer is a symmetric mid-tread quantizer to N bits, clipping to
// [-1, 1] (§4.7: "symmetric mid-tread, clipping to +/-1").
type Quantizer struct {
	levels float64 // 2^(bits-1) - 1
}

// NewQuantizer builds a quantizer for the given bit depth. bits<=0 disables
// quantization (ProcessSample becomes identity).
func NewQuantizer(bits int) *Quantizer {
	if bits <= 0 {
		return &Quantizer{levels: 0}
	}
	return &Quantizer{levels: math.Exp2(float64(bits-1)) - 1}
}

// ProcessSample quantizes one sample.
func (q *Quantizer) ProcessSample(x float32) float32 {
	if q.levels <= 0 {
		return x
	}
	if x > 1 {
		x = 1
	}
	if x < -1 {
		x = -1
	}
	return float32(math.Round(float64(x)*q.levels) / q.levels)
}

// ProcessBlock quantizes buf in place.
func (q *Quantizer) ProcessBlock(buf []float32) {
	if q.levels <= 0 {
		return
	}
	for i := range buf {
		buf[i] = q.ProcessSample(buf[i])
	}
}
