package hlsim

import (
	"math"
	"math/rand"

	"github.com/3dti-go/binaural/dsp"
)

// JitterCutoffHz splits the signal into low/high bands for temporal
// distortion (§4.6: "low (< cutoff, e.g. 500 Hz)").
const JitterCutoffHz = 500.0

// butterworthSplit is a 4th-order Butterworth split built from two cascaded
// biquad sections, matching 3dti_Toolkit's HighOrderButterworthFilter.cpp
// cascade-of-biquads structure (§9 design note: "the original cascades two
// biquad Butterworth sections to reach 4th order").
type butterworthSplit struct {
	lowA, lowB   *dsp.Biquad
	highA, highB *dsp.Biquad
}

// butterworthQs are the two per-stage Q factors (0.5412, 1.3066) that
// combine two 2nd-order Butterworth sections into one maximally-flat
// 4th-order response.
var butterworthQs = [2]float64{0.5411961, 1.3065630}

func newButterworthSplit(sampleRate, cutoffHz float64) *butterworthSplit {
	s := &butterworthSplit{
		lowA:  dsp.NewBiquad(1),
		lowB:  dsp.NewBiquad(1),
		highA: dsp.NewBiquad(1),
		highB: dsp.NewBiquad(1),
	}
	s.lowA.SetDesign(sampleRate, cutoffHz, butterworthQs[0], dsp.LowPass, 0)
	s.lowB.SetDesign(sampleRate, cutoffHz, butterworthQs[1], dsp.LowPass, 0)
	s.highA.SetDesign(sampleRate, cutoffHz, butterworthQs[0], dsp.HighPass, 0)
	s.highB.SetDesign(sampleRate, cutoffHz, butterworthQs[1], dsp.HighPass, 0)
	return s
}

func (s *butterworthSplit) processSample(x float32) (low, high float32) {
	low = s.lowB.ProcessSample(s.lowA.ProcessSample(x))
	high = s.highB.ProcessSample(s.highA.ProcessSample(x))
	return low, high
}

func (s *butterworthSplit) reset() {
	s.lowA.Reset()
	s.lowB.Reset()
	s.highA.Reset()
	s.highB.Reset()
}

// jitterNoiseSource is a band-limited Gaussian noise process driving the
// per-sample read-index offset of the low-band delay line. "Band-limited"
// is realized here by low-pass-filtering white Gaussian noise, matching the
// smooth, audio-rate-but-not-full-bandwidth jitter the original toolkit
// derives from a power-in-milliseconds parameter.
type jitterNoiseSource struct {
	rng    *rand.Rand
	lpf    *dsp.Biquad
	sigma  float64 // samples, derived from the power parameter
}

func newJitterNoiseSource(sampleRate, powerMs float64, seed int64) *jitterNoiseSource {
	lpf := dsp.NewBiquad(1)
	lpf.SetDesign(sampleRate, 20, 0.707, dsp.LowPass, 0)
	return &jitterNoiseSource{
		rng:   rand.New(rand.NewSource(seed)),
		lpf:   lpf,
		sigma: powerMs / 1000 * sampleRate,
	}
}

func (n *jitterNoiseSource) next() float32 {
	white := float32(n.rng.NormFloat64() * n.sigma)
	return n.lpf.ProcessSample(white)
}

// Jitter implements §4.6's temporal-distortion stage: the input is split
// into low/high bands by a 4th-order Butterworth crossover; the low band
// traverses a delay line whose read index is perturbed per sample by
// band-limited Gaussian noise, while the high band is delayed by the
// maximum possible offset so both paths stay time-aligned; the paths sum.
type Jitter struct {
	split *butterworthSplit
	noise *jitterNoiseSource

	lowDelay  []float32
	lowWrite  int
	maxOffset int

	highDelay []float32
	highWrite int
}

// NewJitter builds a jitter stage for the given sample rate, jitter power
// (ms std-dev of the noise process), and maximum offset (samples) the
// high-band fixed delay compensates for.
func NewJitter(sampleRate, powerMs float64, maxOffsetSamples int, seed int64) *Jitter {
	if maxOffsetSamples < 1 {
		maxOffsetSamples = 1
	}
	bufLen := maxOffsetSamples*2 + 4
	return &Jitter{
		split:     newButterworthSplit(sampleRate, JitterCutoffHz),
		noise:     newJitterNoiseSource(sampleRate, powerMs, seed),
		lowDelay:  make([]float32, bufLen),
		highDelay: make([]float32, maxOffsetSamples+1),
		maxOffset: maxOffsetSamples,
	}
}

// ProcessBlock applies the jitter stage to buf in place.
func (j *Jitter) ProcessBlock(buf []float32) {
	for i := range buf {
		buf[i] = j.ProcessSample(buf[i])
	}
}

// ProcessSample jitters one sample.
func (j *Jitter) ProcessSample(x float32) float32 {
	low, high := j.split.processSample(x)

	j.lowDelay[j.lowWrite] = low
	offset := float64(j.maxOffset) + float64(j.noise.next())
	readPos := float64(j.lowWrite) - offset
	n := len(j.lowDelay)
	readPos = math.Mod(readPos, float64(n))
	if readPos < 0 {
		readPos += float64(n)
	}
	lowOut := readLinearWrap(j.lowDelay, readPos)
	j.lowWrite = (j.lowWrite + 1) % n

	j.highDelay[j.highWrite] = high
	hn := len(j.highDelay)
	highReadIdx := (j.highWrite - j.maxOffset%hn + hn) % hn
	highOut := j.highDelay[highReadIdx]
	j.highWrite = (j.highWrite + 1) % hn

	return lowOut + highOut
}

func readLinearWrap(buf []float32, pos float64) float32 {
	n := len(buf)
	i0 := int(math.Floor(pos))
	i1 := (i0 + 1) % n
	frac := float32(pos - math.Floor(pos))
	return buf[i0%n]*(1-frac) + buf[i1]*frac
}

// Reset clears filter and delay-line state.
func (j *Jitter) Reset() {
	j.split.reset()
	for i := range j.lowDelay {
		j.lowDelay[i] = 0
	}
	for i := range j.highDelay {
		j.highDelay[i] = 0
	}
	j.lowWrite, j.highWrite = 0, 0
}

// SynchronicityCoefficient blends two independent noise sources (one per
// ear) so their jitter is partially correlated, per §4.6: "Left/right noise
// sources share a synchronicity coefficient in [0,1]." 1 means identical
// jitter on both ears, 0 means fully independent.
func SynchronicityCoefficient(leftIndependent, sharedNoise float32, coeff float32) float32 {
	if coeff < 0 {
		coeff = 0
	}
	if coeff > 1 {
		coeff = 1
	}
	return leftIndependent*(1-coeff) + sharedNoise*coeff
}
