// Package hlsim implements the Hearing-Loss Simulator (C10, spec.md §4.6):
// a per-ear, independently-bypassable chain of a multiband dynamic expander
// driven by an audiogram, a temporal-distortion jitter stage, and a
// frequency-smearing stage (classic overlap-add or subframe matrix).
//
// Grounded on 3dti_Toolkit/HAHLSimulation/HearingLossSim.{h,cpp} by way of
// the teacher's dsp package: the expander filterbank reuses dsp.GraphicEQ's
// band-splitting idea, and the jitter/smearing stages build on dsp.Biquad
// and dsp.FrequencyProcessor the same way the teacher composes convolution
// stages out of smaller dsp primitives.
package hlsim

// BandCount and BandStartHz mirror the default 9-band, 62.5 Hz-start octave
// layout spec.md §4.6 and §3 use throughout (wall absorption, graphic EQ,
// expander filterbank all share this default).
const (
	BandCount   = 9
	BandStartHz = 62.5
)

// Audiogram is a per-band hearing-loss profile in dB Hearing Level, one
// value per octave band (§4.6: "a user-supplied audiogram dBHL[band]").
type Audiogram [BandCount]float64

// CalibrationSPLFor0dBFS is the dB-SPL level a 0 dB-FS full-scale sine is
// assumed to reach, used to convert the simulator's internal dB-FS working
// level into the dB-SPL domain the audiogram-derived thresholds live in.
// 3dti_Toolkit's HearingLossSim defaults this to 100 dB SPL; callers with a
// different acoustic calibration can override it per Simulator.
const CalibrationSPLFor0dBFS = 100.0

// Expander calibration constants (§4.6): T100 is the compression threshold,
// in dB SPL, that a dBHL=100 band reaches; A100 is the maximum linear
// attenuation range, in dB, applied at dBHL=100. These match the values
// 3dti_Toolkit's HearingLossSim.cpp hardcodes for its default preset.
const (
	defaultT100 = 100.0
	defaultA100 = 50.0
)

// BandParams is the per-band expander configuration §4.6 derives from one
// audiogram entry.
type BandParams struct {
	ThresholdDB   float64 // dB SPL, compression knee
	Ratio         float64 // expansion ratio (>1 steepens below-threshold slope)
	AttenuationDB float64 // maximum linear attenuation at full loss, dB
}

// ComputeBandParams derives {threshold, ratio, attenuation} from one
// audiogram band value, per spec.md §4.6:
//
//	threshold = T100 - A100 + (A100/100)*dBHL
//	ratio     = (T100 - A100) / (T100 - A100 + (A100-T100)/100*dBHL)
//	attenuation = A100*dBHL/100
//
// dBHL >= 100 clamps to 100 for the ratio computation and the resulting
// threshold clamps to 120 (§4.6).
func ComputeBandParams(dBHL, t100, a100 float64) BandParams {
	ratioDBHL := dBHL
	if ratioDBHL >= 100 {
		ratioDBHL = 100
	}
	threshold := t100 - a100 + (a100/100)*dBHL
	if threshold > 120 {
		threshold = 120
	}
	denom := t100 - a100 + (a100-t100)/100*ratioDBHL
	ratio := 1.0
	if denom != 0 {
		ratio = (t100 - a100) / denom
	}
	atten := a100 * dBHL / 100
	if atten > a100*1.2 {
		atten = a100 * 1.2
	}
	return BandParams{ThresholdDB: threshold, Ratio: ratio, AttenuationDB: atten}
}

// BandCenters returns the 9 octave band centers the audiogram indexes.
func BandCenters() []float64 {
	centers := make([]float64, BandCount)
	f := BandStartHz
	for i := range centers {
		centers[i] = f
		f *= 2
	}
	return centers
}

// InterpolatedParamsAt returns the expander parameters for an arbitrary
// frequency by linearly interpolating the per-band parameters adjacent to
// it (§3 invariant: "adjacent bands contribute linearly to any filter
// frequency between them").
func InterpolatedParamsAt(freq float64, params [BandCount]BandParams) BandParams {
	centers := BandCenters()
	if freq <= centers[0] {
		return params[0]
	}
	last := BandCount - 1
	if freq >= centers[last] {
		return params[last]
	}
	for i := 0; i < last; i++ {
		lo, hi := centers[i], centers[i+1]
		if freq >= lo && freq <= hi {
			t := (freq - lo) / (hi - lo)
			return BandParams{
				ThresholdDB:   params[i].ThresholdDB + t*(params[i+1].ThresholdDB-params[i].ThresholdDB),
				Ratio:         params[i].Ratio + t*(params[i+1].Ratio-params[i].Ratio),
				AttenuationDB: params[i].AttenuationDB + t*(params[i+1].AttenuationDB-params[i].AttenuationDB),
			}
		}
	}
	return params[last]
}
