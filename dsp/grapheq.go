package dsp

import "math"

// DefaultBandCount and DefaultBandStartHz match spec.md's "default 9 bands
// starting at 62.5 Hz" octave layout, used for wall absorption (§3 Wall),
// the hearing-loss expander filterbank (§4.6), and the image-source
// per-reflection coloration EQ (§4.5).
const (
	DefaultBandCount   = 9
	DefaultBandStartHz = 62.5
)

// DefaultBandCenters returns the default 9-band octave centers:
// 62.5, 125, 250, 500, 1000, 2000, 4000, 8000, 16000 Hz.
func DefaultBandCenters() []float64 {
	return OctaveBandCenters(DefaultBandStartHz, DefaultBandCount)
}

// OctaveBandCenters returns n band centers starting at startHz and doubling
// each step, matching 3dti_Toolkit's CGraphicEQ band layout
// (BiquadFilter.h's 9-band filterbank convention generalized to N bands per
// spec.md §9 design note D5).
func OctaveBandCenters(startHz float64, n int) []float64 {
	centers := make([]float64, n)
	f := startHz
	for i := 0; i < n; i++ {
		centers[i] = f
		f *= 2
	}
	return centers
}

// GraphicEQ is an N-band peaking-filter cascade with per-band gain control,
// used as the per-reflection wall-absorption color filter (§4.5) and the
// hearing-aid/-loss EQ building block. Its band count is configurable
// (§9 D5) though every call site in this module defaults to 9 bands.
type GraphicEQ struct {
	bandCenters []float64
	chain       *FilterChain
	q           float64
}

// NewGraphicEQ builds a graphic EQ with one peaking biquad per band center.
// smooth controls per-band coefficient smoothing (§4.3 cross-fading rule).
func NewGraphicEQ(sampleRate float64, bandCenters []float64, smooth float32) *GraphicEQ {
	eq := &GraphicEQ{
		bandCenters: append([]float64(nil), bandCenters...),
		chain:       NewFilterChain(),
		q:           1.41, // ~1 octave bandwidth between adjacent default bands
	}
	for _, f := range bandCenters {
		b := eq.chain.AddStage(smooth)
		b.SetDesign(sampleRate, f, eq.q, PeakNotch, 0)
	}
	return eq
}

// BandCount returns the number of bands.
func (eq *GraphicEQ) BandCount() int { return len(eq.bandCenters) }

// SetBandGainsDB sets each band's gain in dB; len(gainsDB) must equal BandCount().
func (eq *GraphicEQ) SetBandGainsDB(sampleRate float64, gainsDB []float64) {
	for i, stage := range eq.chain.Stages() {
		if i >= len(gainsDB) {
			break
		}
		stage.SetDesign(sampleRate, eq.bandCenters[i], eq.q, PeakNotch, gainsDB[i])
	}
}

// SetBandGainsLinear sets each band's gain from a linear-amplitude vector
// (converted to dB), matching the wall-absorption gain path (§3 invariant
// 6: sqrt(1-absorption) linear gains cascaded along a reflection chain).
func (eq *GraphicEQ) SetBandGainsLinear(sampleRate float64, gainsLinear []float64) {
	db := make([]float64, len(gainsLinear))
	for i, g := range gainsLinear {
		if g <= 1e-9 {
			db[i] = -96
			continue
		}
		db[i] = 20 * math.Log10(g)
	}
	eq.SetBandGainsDB(sampleRate, db)
}

// ProcessBlock runs buf through the band cascade in place.
func (eq *GraphicEQ) ProcessBlock(buf []float32) {
	eq.chain.ProcessBlock(buf)
}

// ProcessSample runs one sample through the band cascade.
func (eq *GraphicEQ) ProcessSample(x float32) float32 {
	return eq.chain.ProcessSample(x)
}

// Reset clears all band filter states.
func (eq *GraphicEQ) Reset() {
	eq.chain.Reset()
}

// InterpolateBandGain linearly interpolates a gain value for an arbitrary
// frequency between two adjacent band centers (§3 invariant: "Adjacent
// bands contribute linearly to any filter frequency between them").
func InterpolateBandGain(bandCenters []float64, gains []float64, freq float64) float64 {
	if len(bandCenters) == 0 {
		return 0
	}
	if freq <= bandCenters[0] {
		return gains[0]
	}
	last := len(bandCenters) - 1
	if freq >= bandCenters[last] {
		return gains[last]
	}
	for i := 0; i < last; i++ {
		lo, hi := bandCenters[i], bandCenters[i+1]
		if freq >= lo && freq <= hi {
			t := (freq - lo) / (hi - lo)
			return gains[i] + t*(gains[i+1]-gains[i])
		}
	}
	return gains[last]
}
