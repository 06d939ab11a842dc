package hlsim

import "github.com/3dti-go/binaural/geom"

// SmearingAlgorithm selects between the two frequency-smearing
// implementations §4.6 describes.
type SmearingAlgorithm int

const (
	SmearingClassic SmearingAlgorithm = iota
	SmearingSubframe
)

// Config configures one ear's hearing-loss chain.
type Config struct {
	ExpanderEnabled bool
	Audiogram       Audiogram

	JitterEnabled bool
	JitterPowerMs float64 // std-dev of the jitter noise, in ms

	SmearingEnabled   bool
	SmearingAlgorithm SmearingAlgorithm
	DownwardBW        float64
	UpwardBW          float64
}

// earChain is one ear's fully-assembled expander -> jitter -> smearing
// pipeline, each stage independently bypassable per Config.
type earChain struct {
	cfg      Config
	expander *Expander
	jitter   *Jitter
	classic  *ClassicSmearer
	subframe *SubframeSmearer
}

func newEarChain(sampleRate float64, blockSize int, cfg Config, seed int64) (*earChain, error) {
	e := &earChain{cfg: cfg}
	if cfg.ExpanderEnabled {
		e.expander = NewExpander(sampleRate, cfg.Audiogram)
	}
	if cfg.JitterEnabled {
		maxOffset := int(cfg.JitterPowerMs/1000*sampleRate*6) + 1
		e.jitter = NewJitter(sampleRate, cfg.JitterPowerMs, maxOffset, seed)
	}
	if cfg.SmearingEnabled {
		var err error
		switch cfg.SmearingAlgorithm {
		case SmearingSubframe:
			subSize := blockSize
			if subSize < 4 {
				subSize = 4
			}
			subSize -= subSize % 4
			e.subframe, err = NewSubframeSmearer(sampleRate, subSize, cfg.DownwardBW, cfg.UpwardBW)
		default:
			e.classic, err = NewClassicSmearer(sampleRate, blockSize, cfg.DownwardBW, cfg.UpwardBW)
		}
		if err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *earChain) processBlock(buf []float32) {
	if e.expander != nil {
		e.expander.ProcessBlock(buf)
	}
	if e.jitter != nil {
		e.jitter.ProcessBlock(buf)
	}
	if e.classic != nil {
		e.classic.ProcessBlock(buf)
	}
	if e.subframe != nil {
		e.subframe.ProcessBlock(buf)
	}
}

func (e *earChain) reset() {
	if e.expander != nil {
		e.expander.Reset()
	}
	if e.jitter != nil {
		e.jitter.Reset()
	}
	if e.classic != nil {
		e.classic.Reset()
	}
	if e.subframe != nil {
		e.subframe.Reset()
	}
}

// Simulator is the Hearing-Loss Simulator (C10): independent left/right
// chains of expander -> jitter -> smearing, each stage bypassable per ear
// (§4.6: "each independently bypassable per ear").
type Simulator struct {
	left, right *earChain
}

// New builds a simulator with independent per-ear configs. Passing the
// zero Config for an ear disables every stage (pass-through).
func New(sampleRate float64, blockSize int, cfg geom.EarPair[Config]) (*Simulator, error) {
	left, err := newEarChain(sampleRate, blockSize, cfg.Left, 1)
	if err != nil {
		return nil, err
	}
	right, err := newEarChain(sampleRate, blockSize, cfg.Right, 2)
	if err != nil {
		return nil, err
	}
	return &Simulator{left: left, right: right}, nil
}

// ProcessBlock runs the binaural output through both ears' chains in
// place, matching §2's data-flow position: "optional C11 -> optional C10
// -> host."
func (s *Simulator) ProcessBlock(outL, outR []float32) {
	s.left.processBlock(outL)
	s.right.processBlock(outR)
}

// Reset clears all stage state on both ears.
func (s *Simulator) Reset() {
	s.left.reset()
	s.right.reset()
}
