package hasim

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
)

// Config configures one ear's hearing-aid chain (§4.7).
type Config struct {
	PreQuantizationBits  int // 0 disables pre-quantization
	PostQuantizationBits int // 0 disables post-quantization

	IniFreqHz       float64
	OctaveBandStep  float64
	BandCount       int
	AttackMs        float64
	ReleaseMs       float64
	CalibrationSPL  float64 // dB SPL a 0 dB-FS sine reaches

	LPFCutoffHz float64 // HP-cutoff biquad shaping the bottom of the HA band; 0 disables
	HPFCutoffHz float64 // LP-cutoff biquad shaping the top of the HA band; 0 disables

	Audiogram [9]float64 // dBHL per band, drives Fig6 fitting

	NormalizeEnabled  bool
	NormalizeRefDBFS  float64 // target dB-FS for the tallest 0 dB-FS level-curve point

	OverallGainDB float64
}

// earChain is one ear's assembled pre-quant -> dynamic EQ -> LPF/HPF ->
// post-quant -> overall-gain pipeline.
type earChain struct {
	cfg Config

	preQuant  *Quantizer
	postQuant *Quantizer
	eq        *DynamicEQ
	lpf       *dsp.Biquad
	hpf       *dsp.Biquad

	overallGainLin float32
}

func newEarChain(sampleRate float64, cfg Config) *earChain {
	e := &earChain{cfg: cfg}
	e.preQuant = NewQuantizer(cfg.PreQuantizationBits)
	e.postQuant = NewQuantizer(cfg.PostQuantizationBits)

	bandCount := cfg.BandCount
	if bandCount <= 0 {
		bandCount = 9
	}
	iniFreq := cfg.IniFreqHz
	if iniFreq <= 0 {
		iniFreq = 62.5
	}
	step := cfg.OctaveBandStep
	if step <= 0 {
		step = 1
	}
	calib := cfg.CalibrationSPL
	if calib == 0 {
		calib = 100
	}
	e.eq = NewDynamicEQ(sampleRate, iniFreq, step, bandCount, cfg.AttackMs, cfg.ReleaseMs, calib)
	e.applyFig6(bandCount)

	if cfg.LPFCutoffHz > 0 {
		e.lpf = dsp.NewBiquad(1)
		e.lpf.SetDesign(sampleRate, cfg.LPFCutoffHz, 0.707, dsp.HighPass, 0)
	}
	if cfg.HPFCutoffHz > 0 {
		e.hpf = dsp.NewBiquad(1)
		e.hpf.SetDesign(sampleRate, cfg.HPFCutoffHz, 0.707, dsp.LowPass, 0)
	}

	overallDB := cfg.OverallGainDB
	if cfg.NormalizeEnabled {
		overallDB += e.normalizationOffset(bandCount)
	}
	e.overallGainLin = float32(math.Pow(10, overallDB/20))
	return e
}

// applyFig6 fits the dynamic EQ's level curves from the ear's audiogram,
// spreading the 9-band Fig6 curve onto however many bands the EQ actually
// has via linear interpolation over band index.
func (e *earChain) applyFig6(bandCount int) {
	curves9 := Fig6LevelCurves(e.cfg.Audiogram)
	centers := e.eq.BandCenters()
	fig6Centers := make([]float64, 9)
	f := 62.5
	for i := range fig6Centers {
		fig6Centers[i] = f
		f *= 2
	}

	out := make([][BandLevelCount]float64, bandCount)
	for bi, freq := range centers {
		for lvl := 0; lvl < BandLevelCount; lvl++ {
			out[bi][lvl] = interpAt(fig6Centers, curves9[lvl][:], freq)
		}
	}
	e.eq.SetGainCurves(out)
}

func interpAt(centers []float64, vals []float64, freq float64) float64 {
	n := len(centers)
	if freq <= centers[0] {
		return vals[0]
	}
	if freq >= centers[n-1] {
		return vals[n-1]
	}
	for i := 0; i < n-1; i++ {
		if freq >= centers[i] && freq <= centers[i+1] {
			t := (freq - centers[i]) / (centers[i+1] - centers[i])
			return vals[i] + t*(vals[i+1]-vals[i])
		}
	}
	return vals[n-1]
}

// normalizationOffset computes the (non-positive) dB offset that brings
// the tallest point of the 0-dB-FS (central, 65 dB SPL) level curve to
// cfg.NormalizeRefDBFS (§4.7: "adjusts an overall offset, clamped to
// non-positive").
func (e *earChain) normalizationOffset(bandCount int) float64 {
	curves9 := Fig6LevelCurves(e.cfg.Audiogram)
	central := curves9[0] // fig6Order puts the central 65 dB-SPL curve at slot 0
	tallest := 0.0
	for _, g := range central {
		if g > tallest {
			tallest = g
		}
	}
	offset := e.cfg.NormalizeRefDBFS - tallest
	if offset > 0 {
		offset = 0
	}
	return offset
}

func (e *earChain) processBlock(buf []float32) {
	e.preQuant.ProcessBlock(buf)
	e.eq.ProcessBlock(buf)
	if e.lpf != nil {
		e.lpf.ProcessBlock(buf)
	}
	if e.hpf != nil {
		e.hpf.ProcessBlock(buf)
	}
	e.postQuant.ProcessBlock(buf)
	for i := range buf {
		buf[i] *= e.overallGainLin
	}
}

func (e *earChain) reset() {
	e.eq.Reset()
	if e.lpf != nil {
		e.lpf.Reset()
	}
	if e.hpf != nil {
		e.hpf.Reset()
	}
}

// Simulator is the Hearing-Aid Simulator (C11): independent left/right
// chains, each pre-quantization -> dynamic EQ (Fig6-fit) -> LPF/HPF ->
// post-quantization -> overall gain.
type Simulator struct {
	left, right *earChain
}

// New builds a hearing-aid simulator with independent per-ear configs.
func New(sampleRate float64, cfg geom.EarPair[Config]) *Simulator {
	return &Simulator{
		left:  newEarChain(sampleRate, cfg.Left),
		right: newEarChain(sampleRate, cfg.Right),
	}
}

// ProcessBlock runs the binaural output through both ears' chains in
// place (§2 data flow: "optional C11 -> optional C10 -> host").
func (s *Simulator) ProcessBlock(outL, outR []float32) {
	s.left.processBlock(outL)
	s.right.processBlock(outR)
}

// Reset clears all per-ear filter/envelope state.
func (s *Simulator) Reset() {
	s.left.reset()
	s.right.reset()
}
