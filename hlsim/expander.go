package hlsim

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
)

// DefaultAttackMs and DefaultReleaseMs are the expander's envelope-follower
// time constants when a caller does not override them per band.
const (
	DefaultAttackMs  = 5.0
	DefaultReleaseMs = 50.0
)

// bandExpander is one octave band's split-and-expand stage: a bandpass
// biquad isolates the band, an envelope follower tracks its RMS-ish level,
// and a downward-expander gain computer attenuates samples below threshold.
type bandExpander struct {
	bandpass *dsp.Biquad
	params   BandParams
	attack   float64 // per-sample one-pole coefficient
	release  float64
	calib    float64 // dB SPL a 0 dB-FS sine reaches, for level-to-SPL conversion

	envelope float64 // running level estimate, linear
	gainLin  float64 // current smoothed linear gain
}

func newBandExpander(sampleRate, centerHz float64, params BandParams, attackMs, releaseMs, calib float64) *bandExpander {
	bp := dsp.NewBiquad(1)
	bp.SetDesign(sampleRate, centerHz, 1.2, dsp.BandPass, 0)
	return &bandExpander{
		bandpass: bp,
		params:   params,
		attack:   timeConstantCoefficient(attackMs, sampleRate),
		release:  timeConstantCoefficient(releaseMs, sampleRate),
		calib:    calib,
		gainLin:  1,
	}
}

func timeConstantCoefficient(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 1
	}
	tau := ms / 1000
	return 1 - math.Exp(-1/(tau*sampleRate))
}

// setParams installs new band parameters (audiogram changed).
func (b *bandExpander) setParams(p BandParams) { b.params = p }

// processSample band-passes the full-band sample x, runs the band signal
// through the envelope follower and downward expander, and returns the
// band signal scaled by the expander gain; callers sum band outputs across
// the filterbank.
func (b *bandExpander) processSample(x float32) float32 {
	band := b.bandpass.ProcessSample(x)

	level := math.Abs(float64(band))
	if level > b.envelope {
		b.envelope += (level - b.envelope) * b.attack
	} else {
		b.envelope += (level - b.envelope) * b.release
	}

	levelDB := b.calib + linearToDB(b.envelope)
	targetGainDB := 0.0
	if levelDB < b.params.ThresholdDB {
		below := b.params.ThresholdDB - levelDB
		attenDB := below * (b.params.Ratio - 1)
		if attenDB > b.params.AttenuationDB {
			attenDB = b.params.AttenuationDB
		}
		targetGainDB = -attenDB
	}
	targetGain := dbToLinear(targetGainDB)
	b.gainLin += (targetGain - b.gainLin) * b.attack

	return float32(b.gainLin) * band
}

func (b *bandExpander) reset() {
	b.bandpass.Reset()
	b.envelope = 0
	b.gainLin = 1
}

// Expander is the multiband dynamic expander described by §4.6: an
// octave-banded filterbank (default 9 bands), each band an independent
// downward expander, summed back together.
type Expander struct {
	sampleRate float64
	calib      float64 // CalibrationSPLFor0dBFS
	t100, a100 float64
	bands      [BandCount]*bandExpander
	audiogram  Audiogram
}

// NewExpander builds a 9-band expander for the given sample rate and
// audiogram, using the toolkit's default T100/A100 calibration constants.
func NewExpander(sampleRate float64, audiogram Audiogram) *Expander {
	e := &Expander{
		sampleRate: sampleRate,
		calib:      CalibrationSPLFor0dBFS,
		t100:       defaultT100,
		a100:       defaultA100,
		audiogram:  audiogram,
	}
	centers := BandCenters()
	for i := range e.bands {
		p := ComputeBandParams(audiogram[i], e.t100, e.a100)
		e.bands[i] = newBandExpander(sampleRate, centers[i], p, DefaultAttackMs, DefaultReleaseMs, e.calib)
	}
	return e
}

// SetAudiogram replaces the per-band dBHL profile and recomputes each
// band's threshold/ratio/attenuation.
func (e *Expander) SetAudiogram(audiogram Audiogram) {
	e.audiogram = audiogram
	for i, b := range e.bands {
		b.setParams(ComputeBandParams(audiogram[i], e.t100, e.a100))
	}
}

// SetCalibration overrides the dB-SPL-for-0-dBFS reference level used to
// convert the expander's internal envelope into the audiogram's dB-SPL
// domain.
func (e *Expander) SetCalibration(splFor0dBFS float64) {
	e.calib = splFor0dBFS
	for _, b := range e.bands {
		b.calib = splFor0dBFS
	}
}

// ProcessBlock runs buf through the filterbank in place: each band's
// expander output is accumulated into a fresh sum, replacing the input.
func (e *Expander) ProcessBlock(buf []float32) {
	for i := range buf {
		buf[i] = e.ProcessSample(buf[i])
	}
}

// ProcessSample expands one sample across all bands and sums the result.
func (e *Expander) ProcessSample(x float32) float32 {
	var sum float32
	for _, b := range e.bands {
		sum += b.processSample(x)
	}
	return sum
}

// Reset clears every band's filter and envelope state.
func (e *Expander) Reset() {
	for _, b := range e.bands {
		b.reset()
	}
}

func linearToDB(level float64) float64 {
	if level <= 1e-9 {
		return -200
	}
	return 20 * math.Log10(level)
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
