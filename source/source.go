// Package source implements the single-source anechoic DSP pipeline (§4.3):
// geometry, far-distance low-pass, distance attenuation, ITD, HRIR
// convolution, near-field ILD, and directionality, for each of the three
// spatialization modes.
//
// Grounded on 3dti_Toolkit/BinauralSpatializer/SingleSourceDSP.{h,cpp}; the
// convolution step reuses this module's dsp.UPC instead of
// CUniformPartitionedConvolution, and near-field ILD uses a parametric
// shelf pair rather than the original's measured ILD.h coefficient table
// (see DESIGN.md).
package source

import (
	"math"

	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hrtf"
	"github.com/3dti-go/binaural/result"
)

// Mode selects the spatialization algorithm (§4.3).
type Mode int

const (
	ModeQuality Mode = iota
	ModeHighPerformance
	ModeNoSpatialization
)

const (
	defaultFarDistanceThreshold = 15.0
	defaultNearFieldThreshold   = 2.0
	defaultGainAttack           = 0.01 // one-pole EMA coefficient for distance attenuation
	speedOfSound                = 343.0
)

// Source is one sound source's anechoic DSP state. It is owned by a single
// Listener/Core and processed once per block from the control/audio thread;
// none of its state is shared across sources.
type Source struct {
	reporter *result.Reporter
	state    audio.State
	store    *hrtf.Store

	mode Mode

	enableFarDistanceEffect   bool
	enableDistanceAttenuation bool
	enableNearField           bool
	enableCustomITD           bool
	enableInterpolation       bool

	farDistanceThreshold float64
	nearFieldThreshold   float64
	headRadius           float64

	transform     geom.Transform
	buffer        audio.MonoBuffer
	hasBuffer     bool
	readyAnechoic bool

	upc      geom.EarPair[*dsp.UPC]
	ildChain geom.EarPair[*dsp.FilterChain]
	farLPF   geom.EarPair[*dsp.Biquad]
	itd      geom.EarPair[*earDelayLine]

	gainEMA float32

	// scratch buffers, sized once at construction (§3 invariant 4: no
	// reallocation on the real-time path).
	scratchIn  []float32
	delayedL   []float32
	delayedR   []float32
}

// New creates a Source bound to store for HRIR lookups, with UPC engines
// sized for state.BlockSize and an HRIR length of hrirLength samples.
func New(reporter *result.Reporter, state audio.State, store *hrtf.Store, hrirLength int) (*Source, error) {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	partitions := dsp.PartitionIR(make([]float32, hrirLength), state.BlockSize)

	upcL, err := dsp.NewUPC(partitions, state.BlockSize, true)
	if err != nil {
		return nil, err
	}
	upcR, err := dsp.NewUPC(partitions, state.BlockSize, true)
	if err != nil {
		return nil, err
	}

	maxDelaySamples := int(state.SampleRate * 0.003) // ~3ms, comfortably above any human ITD

	s := &Source{
		reporter:                  reporter,
		state:                     state,
		store:                     store,
		mode:                      ModeQuality,
		enableFarDistanceEffect:   true,
		enableDistanceAttenuation: true,
		enableNearField:           true,
		enableInterpolation:       true,
		farDistanceThreshold:      defaultFarDistanceThreshold,
		nearFieldThreshold:        defaultNearFieldThreshold,
		headRadius:                0.0875,
		gainEMA:                   1,
		scratchIn:                 make([]float32, state.BlockSize),
		delayedL:                  make([]float32, state.BlockSize),
		delayedR:                  make([]float32, state.BlockSize),
		upc:                       geom.EarPair[*dsp.UPC]{Left: upcL, Right: upcR},
		ildChain:                  geom.EarPair[*dsp.FilterChain]{Left: dsp.NewFilterChain(), Right: dsp.NewFilterChain()},
		farLPF:                    geom.EarPair[*dsp.Biquad]{Left: dsp.NewBiquad(0.05), Right: dsp.NewBiquad(0.05)},
		itd:                       geom.EarPair[*earDelayLine]{Left: newEarDelayLine(maxDelaySamples), Right: newEarDelayLine(maxDelaySamples)},
	}
	s.ildChain.Left.AddStage(0.05)
	s.ildChain.Left.AddStage(0.05)
	s.ildChain.Right.AddStage(0.05)
	s.ildChain.Right.AddStage(0.05)
	return s, nil
}

// SetMode selects the spatialization algorithm.
func (s *Source) SetMode(m Mode) { s.mode = m }

// SetHeadRadius sets the listener's head radius in metres, used for the
// near-source bypass test and the customized-ITD Woodworth formula.
func (s *Source) SetHeadRadius(r float64) { s.headRadius = r }

// EnableFarDistanceEffect, EnableDistanceAttenuation, EnableNearField,
// EnableCustomizedITD, and EnableInterpolation toggle the corresponding
// pipeline stages.
func (s *Source) EnableFarDistanceEffect(enable bool)   { s.enableFarDistanceEffect = enable }
func (s *Source) EnableDistanceAttenuation(enable bool) { s.enableDistanceAttenuation = enable }
func (s *Source) EnableNearField(enable bool)           { s.enableNearField = enable }
func (s *Source) EnableCustomizedITD(enable bool)       { s.enableCustomITD = enable }
func (s *Source) EnableInterpolation(enable bool)       { s.enableInterpolation = enable }

// SetBuffer installs this block's mono input, matching CSingleSourceDSP::SetBuffer.
func (s *Source) SetBuffer(buf audio.MonoBuffer) {
	s.buffer = buf
	s.hasBuffer = true
	s.readyAnechoic = true
}

// SetSourceTransform updates the source's world position/orientation.
func (s *Source) SetSourceTransform(t geom.Transform) { s.transform = t }

// Transform returns the source's last-set world transform, a read-only view
// Core.ProcessAll uses to drive the Ambisonic and image-source paths from
// the same per-source state without a back-pointer (§9 "weak reference +
// lookup").
func (s *Source) Transform() geom.Transform { return s.transform }

// Buffer returns the most recently installed input block, read-only.
func (s *Source) Buffer() audio.MonoBuffer { return s.buffer }

// ProcessAnechoic runs the full per-block pipeline (§4.3), writing into
// outL/outR (both length state.BlockSize, pre-sized by the caller per the
// no-reallocation invariant).
func (s *Source) ProcessAnechoic(listener geom.Transform, outL, outR audio.MonoBuffer) result.Result {
	if !s.hasBuffer {
		outL.Zero()
		outR.Zero()
		return s.reporter.SetResult(result.NotInitialized, "ProcessAnechoic called before SetBuffer", "source/source.go", 0)
	}

	toSource := listener.VectorTo(s.transform.Position)
	distance := toSource.Norm()

	if s.mode == ModeNoSpatialization {
		copy(outL, s.buffer)
		copy(outR, s.buffer)
		s.readyAnechoic = false
		return s.reporter.SetResult(result.OK, "", "source/source.go", 0)
	}

	if distance < s.headRadius {
		copy(outL, s.buffer)
		copy(outR, s.buffer)
		s.readyAnechoic = false
		return s.reporter.SetResult(result.OK, "", "source/source.go", 0)
	}

	headAz, headEl := listener.AzimuthElevation(toSource)
	interauralAz := geom.InterauralAzimuth(headAz, headEl)

	leftEarPos := listener.Position.Add(listener.Right().Mul(-s.headRadius))
	rightEarPos := listener.Position.Add(listener.Right().Mul(s.headRadius))
	leftProj := geom.SphereProjection(leftEarPos, s.transform.Position, s.store.MeasurementDistance())
	rightProj := geom.SphereProjection(rightEarPos, s.transform.Position, s.store.MeasurementDistance())
	leftAz, leftEl := listener.AzimuthElevation(leftProj.Sub(leftEarPos))
	rightAz, rightEl := listener.AzimuthElevation(rightProj.Sub(rightEarPos))

	if s.mode == ModeHighPerformance {
		s.processHighPerformance(distance, interauralAz, headAz, headEl, outL, outR)
	} else {
		s.processQuality(distance, interauralAz, leftAz, leftEl, rightAz, rightEl, headAz, headEl, outL, outR)
	}

	s.applyDirectionality(headAz, outL, outR)

	s.readyAnechoic = false
	return s.reporter.SetResult(result.OK, "", "source/source.go", 0)
}

// processQuality implements steps 2-6 of §4.3 using full HRIR convolution.
func (s *Source) processQuality(distance, interauralAz, leftAz, leftEl, rightAz, rightEl, headAz, headEl float64, outL, outR audio.MonoBuffer) {
	in := s.scratchIn
	copy(in, s.buffer)

	if s.enableFarDistanceEffect && distance > s.farDistanceThreshold {
		s.applyFarDistanceLPF(distance, in)
	}

	s.applyITD(in, s.delayedL, s.delayedR, headAz, headEl)

	hL, resL := s.store.GetHRIRPartitioned(geom.EarLeft, leftAz, leftEl, s.enableInterpolation)
	hR, resR := s.store.GetHRIRPartitioned(geom.EarRight, rightAz, rightEl, s.enableInterpolation)
	if resL.Code == result.OK && len(hL.Freq) > 0 {
		_ = s.upc.Left.SetIRFreq(hL.Freq)
	}
	if resR.Code == result.OK && len(hR.Freq) > 0 {
		_ = s.upc.Right.SetIRFreq(hR.Freq)
	}
	_ = s.upc.Left.ProcessBlock(s.delayedL, outL)
	_ = s.upc.Right.ProcessBlock(s.delayedR, outR)

	if s.enableDistanceAttenuation {
		s.applyDistanceAttenuation(distance, outL, outR)
	}

	if s.enableNearField && distance < s.nearFieldThreshold {
		s.applyNearFieldILD(distance, interauralAz, outL, outR)
	}
}

// processHighPerformance implements the reduced pipeline: a single ILD
// filter pair plus optional custom ITD, no HRIR convolution.
func (s *Source) processHighPerformance(distance, interauralAz, headAz, headEl float64, outL, outR audio.MonoBuffer) {
	in := s.scratchIn
	copy(in, s.buffer)

	if s.enableFarDistanceEffect && distance > s.farDistanceThreshold {
		s.applyFarDistanceLPF(distance, in)
	}

	if s.enableCustomITD {
		s.applyITD(in, outL, outR, headAz, headEl)
	} else {
		copy(outL, in)
		copy(outR, in)
	}

	s.ildChain.Left.ProcessBlock(outL)
	s.ildChain.Right.ProcessBlock(outR)
	s.designILD(distance, interauralAz)

	if s.enableDistanceAttenuation {
		s.applyDistanceAttenuation(distance, outL, outR)
	}
}

func (s *Source) applyFarDistanceLPF(distance float64, buf []float32) {
	excess := distance - s.farDistanceThreshold
	cutoff := 20000.0 / (1 + excess/10)
	if cutoff < 500 {
		cutoff = 500
	}
	s.farLPF.Left.SetDesign(s.state.SampleRate, cutoff, 0.707, dsp.LowPass, 0)
	s.farLPF.Left.ProcessBlock(buf)
}

func (s *Source) applyDistanceAttenuation(distance float64, outL, outR audio.MonoBuffer) {
	target := float32(1.0 / math.Max(distance, 0.25))
	if target > 1 {
		target = 1
	}
	n := len(outL)
	for i := 0; i < n; i++ {
		s.gainEMA += (target - s.gainEMA) * defaultGainAttack
		outL[i] *= s.gainEMA
		outR[i] *= s.gainEMA
	}
}

func (s *Source) applyITD(in []float32, outL, outR []float32, headAz, headEl float64) {
	var delayL, delayR int
	if s.enableCustomITD {
		delayL, _ = s.store.GetCustomizedDelay(geom.EarLeft, headAz, headEl)
		delayR, _ = s.store.GetCustomizedDelay(geom.EarRight, headAz, headEl)
	} else {
		delayL, _ = s.store.GetHRIRDelay(geom.EarLeft, headAz, headEl, s.enableInterpolation)
		delayR, _ = s.store.GetHRIRDelay(geom.EarRight, headAz, headEl, s.enableInterpolation)
	}
	if delayL < 0 {
		delayL = 0
	}
	if delayR < 0 {
		delayR = 0
	}
	s.itd.Left.Process(in, outL, delayL)
	s.itd.Right.Process(in, outR, delayR)
}

// applyNearFieldILD designs and applies a near-field boost/cut pair from
// distance and interaural azimuth. The original toolkit indexes a measured
// coefficient table (ILD.h); this uses a parametric shelf approximation
// instead (see DESIGN.md).
func (s *Source) applyNearFieldILD(distance, interauralAz float64, outL, outR audio.MonoBuffer) {
	s.designILD(distance, interauralAz)
	s.ildChain.Left.ProcessBlock(outL)
	s.ildChain.Right.ProcessBlock(outR)
}

func (s *Source) designILD(distance, interauralAz float64) {
	proximity := 1.0
	if distance < s.nearFieldThreshold && distance > 0 {
		proximity = 1 - distance/s.nearFieldThreshold
	}
	side := math.Sin(interauralAz * math.Pi / 180)
	gainNear := 6 * proximity * side
	gainFar := -6 * proximity * side

	leftStages := s.ildChain.Left.Stages()
	rightStages := s.ildChain.Right.Stages()
	if len(leftStages) < 2 || len(rightStages) < 2 {
		return
	}
	leftStages[0].SetDesign(s.state.SampleRate, 1200, 0.7, dsp.LowShelf, -gainNear)
	leftStages[1].SetDesign(s.state.SampleRate, 6000, 0.7, dsp.HighShelf, -gainNear)
	rightStages[0].SetDesign(s.state.SampleRate, 1200, 0.7, dsp.LowShelf, -gainFar)
	rightStages[1].SetDesign(s.state.SampleRate, 6000, 0.7, dsp.HighShelf, -gainFar)
}

// applyDirectionality scales both ears by the listener's directionality
// pattern evaluated at the source's head-centred azimuth: a cardioid-ish
// response, 1 directly ahead tapering toward a fixed floor of 0.3 behind.
func (s *Source) applyDirectionality(headAz float64, outL, outR audio.MonoBuffer) {
	az := headAz * math.Pi / 180
	gain := float32(0.5 + 0.5*math.Cos(az))
	const floor = 0.3
	if gain < floor {
		gain = floor
	}
	outL.Scale(gain)
	outR.Scale(gain)
}

// Ready reports whether SetBuffer has been called since the last
// ProcessAnechoic (§4.3 step 8's "not ready" marker).
func (s *Source) Ready() bool { return s.readyAnechoic }

// Reset clears all per-source filter/delay state (new source or Core reset).
func (s *Source) Reset() {
	s.upc.Left.Reset()
	s.upc.Right.Reset()
	s.ildChain.Left.Reset()
	s.ildChain.Right.Reset()
	s.farLPF.Left.Reset()
	s.farLPF.Right.Reset()
	s.itd.Left.Reset()
	s.itd.Right.Reset()
	s.gainEMA = 1
}
