package hasim

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
)

// BandLevelCount is the number of level-dependent gain curves (M) per band,
// matching Fig6's three reference input levels (§4.7).
const BandLevelCount = len(Fig6Levels)

// Band is one ISO-spaced band-pass in the dynamic equalizer: a bandpass
// biquad plus an RMS envelope follower and M level curves (gain-vs-level)
// interpolated between the two neighbours of the instantaneous envelope.
type Band struct {
	centerHz float64
	bandpass *dsp.Biquad
	gain     *dsp.Biquad // peaking gain stage whose gain tracks the envelope

	levelsDBSPL [BandLevelCount]float64 // reference input levels (Fig6Levels by default)
	gainsDB     [BandLevelCount]float64 // per-level gain curve for this band

	envelope float64
	attack   float64
	release  float64
	calib    float64
}

func newBand(sampleRate, centerHz, q, attackMs, releaseMs, calib float64) *Band {
	bp := dsp.NewBiquad(1)
	bp.SetDesign(sampleRate, centerHz, q, dsp.BandPass, 0)
	gain := dsp.NewBiquad(0.05)
	gain.SetDesign(sampleRate, centerHz, q, dsp.PeakNotch, 0)
	return &Band{
		centerHz:    centerHz,
		bandpass:    bp,
		gain:        gain,
		levelsDBSPL: Fig6Levels,
		attack:      timeConstCoeff(attackMs, sampleRate),
		release:     timeConstCoeff(releaseMs, sampleRate),
		calib:       calib,
	}
}

func timeConstCoeff(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 1
	}
	tau := ms / 1000
	return 1 - math.Exp(-1/(tau*sampleRate))
}

// setGainCurve installs the per-level gain curve (dB) for this band.
func (b *Band) setGainCurve(curve [BandLevelCount]float64) { b.gainsDB = curve }

// gainForLevel interpolates the configured gain curve at the detector's
// current envelope level (dB SPL).
func (b *Band) gainForLevel(levelDBSPL float64) float64 {
	n := BandLevelCount
	if levelDBSPL <= b.levelsDBSPL[0] {
		return b.gainsDB[0]
	}
	if levelDBSPL >= b.levelsDBSPL[n-1] {
		return b.gainsDB[n-1]
	}
	for i := 0; i < n-1; i++ {
		lo, hi := b.levelsDBSPL[i], b.levelsDBSPL[i+1]
		if levelDBSPL >= lo && levelDBSPL <= hi {
			t := (levelDBSPL - lo) / (hi - lo)
			return b.gainsDB[i] + t*(b.gainsDB[i+1]-b.gainsDB[i])
		}
	}
	return b.gainsDB[n-1]
}

func (b *Band) processSample(sampleRate float64, x float32) float32 {
	det := float64(b.bandpass.ProcessSample(x))
	power := det * det // envelope tracks mean square; its log gives the RMS level
	if power > b.envelope {
		b.envelope += (power - b.envelope) * b.attack
	} else {
		b.envelope += (power - b.envelope) * b.release
	}
	levelDB := b.calib - 20 // nominal floor
	if b.envelope > 1e-18 {
		levelDB = b.calib + 10*math.Log10(b.envelope)
	}
	gainDB := b.gainForLevel(levelDB)
	b.gain.SetDesign(sampleRate, b.centerHz, 1.2, dsp.PeakNotch, gainDB)
	return b.gain.ProcessSample(x)
}

func (b *Band) reset() {
	b.bandpass.Reset()
	b.gain.Reset()
	b.envelope = 0
}

// DynamicEQ is the hearing-aid's multiband dynamic equalizer (§4.7): one
// band-pass filter chain at ISO band centres derived from iniFreq with
// octaveBandStep fractional-octave spacing, each with M level-dependent
// gain curves interpolated from the instantaneous envelope.
type DynamicEQ struct {
	bands      []*Band
	sampleRate float64
}

// NewDynamicEQ builds a dynamic EQ spanning bandCount ISO bands starting at
// iniFreqHz and spaced octaveBandStep fractional octaves apart.
func NewDynamicEQ(sampleRate, iniFreqHz, octaveBandStep float64, bandCount int, attackMs, releaseMs, calib float64) *DynamicEQ {
	eq := &DynamicEQ{sampleRate: sampleRate}
	f := iniFreqHz
	for i := 0; i < bandCount; i++ {
		eq.bands = append(eq.bands, newBand(sampleRate, f, 4.0, attackMs, releaseMs, calib))
		f *= math.Pow(2, octaveBandStep)
	}
	return eq
}

// BandCenters returns each band's center frequency.
func (eq *DynamicEQ) BandCenters() []float64 {
	out := make([]float64, len(eq.bands))
	for i, b := range eq.bands {
		out[i] = b.centerHz
	}
	return out
}

// SetGainCurves installs one level-curve set per band; len(curves) must
// equal len(eq.bands).
func (eq *DynamicEQ) SetGainCurves(curves [][BandLevelCount]float64) {
	for i, b := range eq.bands {
		if i >= len(curves) {
			break
		}
		b.setGainCurve(curves[i])
	}
}

// ProcessBlock runs buf through every band in parallel and averages the band
// outputs (a graphic-EQ-style parallel filterbank, not a cascade, since each band
// independently tracks its own envelope-dependent gain).
func (eq *DynamicEQ) ProcessBlock(buf []float32) {
	for i, x := range buf {
		var sum float32
		for _, b := range eq.bands {
			sum += b.processSample(eq.sampleRate, x)
		}
		buf[i] = sum / float32(len(eq.bands))
	}
}

// Reset clears all band filter/envelope state.
func (eq *DynamicEQ) Reset() {
	for _, b := range eq.bands {
		b.reset()
	}
}
