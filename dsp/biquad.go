package dsp

import "math"

// FilterType selects which biquad design SetCoefficients(freq, Q, type,
// gain) computes, matching CBiquadFilter::T_filterType.
type FilterType int

const (
	LowPass FilterType = iota
	HighPass
	BandPass
	LowShelf
	HighShelf
	PeakNotch
)

// BiquadCoefficients is a direct-form-II transposed second-order section:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2].
type BiquadCoefficients struct {
	B0, B1, B2, A1, A2 float32
}

// Biquad is a single second-order section with built-in one-pole
// coefficient smoothing, so changing frequency/gain/type between blocks
// never produces an audible discontinuity (§4.3 "Cross-fading rule": "the
// ILD filter coefficients change with one-pole smoothing").
type Biquad struct {
	target  BiquadCoefficients
	current BiquadCoefficients
	smooth  float32 // one-pole coefficient in (0,1]; 1 = no smoothing

	// state (transposed direct form II)
	z1, z2 float32
}

// NewBiquad creates an identity (pass-through) biquad with smoothing
// coefficient smooth (0 < smooth <= 1; smaller = slower transitions).
func NewBiquad(smooth float32) *Biquad {
	identity := BiquadCoefficients{B0: 1}
	if smooth <= 0 || smooth > 1 {
		smooth = 1
	}
	return &Biquad{target: identity, current: identity, smooth: smooth}
}

// SetCoefficients installs raw coefficients as the new smoothing target.
func (b *Biquad) SetCoefficients(c BiquadCoefficients) {
	b.target = c
}

// SetDesign computes and installs coefficients for a standard filter design
// at the given sample rate, matching CBiquadFilter::SetCoefficients(freq, Q,
// filterType, gain).
func (b *Biquad) SetDesign(sampleRate float64, freq, q float64, ft FilterType, gainDB float64) {
	b.target = DesignBiquad(sampleRate, freq, q, ft, gainDB)
}

// Reset clears filter state (not coefficients).
func (b *Biquad) Reset() {
	b.z1, b.z2 = 0, 0
}

// ProcessSample filters one sample, advancing the smoothed coefficients one
// step toward target.
func (b *Biquad) ProcessSample(x float32) float32 {
	b.step()
	c := b.current
	y := c.B0*x + b.z1
	b.z1 = c.B1*x - c.A1*y + b.z2
	b.z2 = c.B2*x - c.A2*y
	return y
}

// ProcessBlock filters a whole block in place.
func (b *Biquad) ProcessBlock(buf []float32) {
	for i := range buf {
		buf[i] = b.ProcessSample(buf[i])
	}
}

func (b *Biquad) step() {
	if b.smooth >= 1 {
		b.current = b.target
		return
	}
	s := b.smooth
	b.current.B0 += (b.target.B0 - b.current.B0) * s
	b.current.B1 += (b.target.B1 - b.current.B1) * s
	b.current.B2 += (b.target.B2 - b.current.B2) * s
	b.current.A1 += (b.target.A1 - b.current.A1) * s
	b.current.A2 += (b.target.A2 - b.current.A2) * s
}

// DesignBiquad computes normalized (a0=1) RBJ-cookbook biquad coefficients
// for the given design, matching the set of filter types CBiquadFilter
// supports (LowPass/HighPass/BandPass/LowShelf/HighShelf/PeakNotch).
func DesignBiquad(sampleRate, freq, q float64, ft FilterType, gainDB float64) BiquadCoefficients {
	if freq <= 0 {
		freq = 1
	}
	if q <= 0 {
		q = 0.707
	}
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	sinW0 := math.Sin(w0)
	alpha := sinW0 / (2 * q)
	a := math.Pow(10, gainDB/40)

	var b0, b1, b2, a0, a1, a2 float64

	switch ft {
	case LowPass:
		b0 = (1 - cosW0) / 2
		b1 = 1 - cosW0
		b2 = (1 - cosW0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	case HighPass:
		b0 = (1 + cosW0) / 2
		b1 = -(1 + cosW0)
		b2 = (1 + cosW0) / 2
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	case BandPass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
		a0 = 1 + alpha
		a1 = -2 * cosW0
		a2 = 1 - alpha
	case LowShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) - (a-1)*cosW0 + sq)
		b1 = 2 * a * ((a - 1) - (a+1)*cosW0)
		b2 = a * ((a + 1) - (a-1)*cosW0 - sq)
		a0 = (a + 1) + (a-1)*cosW0 + sq
		a1 = -2 * ((a - 1) + (a+1)*cosW0)
		a2 = (a + 1) + (a-1)*cosW0 - sq
	case HighShelf:
		sq := 2 * math.Sqrt(a) * alpha
		b0 = a * ((a + 1) + (a-1)*cosW0 + sq)
		b1 = -2 * a * ((a - 1) + (a+1)*cosW0)
		b2 = a * ((a + 1) + (a-1)*cosW0 - sq)
		a0 = (a + 1) - (a-1)*cosW0 + sq
		a1 = 2 * ((a - 1) - (a+1)*cosW0)
		a2 = (a + 1) - (a-1)*cosW0 - sq
	case PeakNotch:
		alphaA := alpha * a
		alphaOverA := alpha / a
		b0 = 1 + alphaA
		b1 = -2 * cosW0
		b2 = 1 - alphaA
		a0 = 1 + alphaOverA
		a1 = -2 * cosW0
		a2 = 1 - alphaOverA
	default:
		return BiquadCoefficients{B0: 1}
	}

	return BiquadCoefficients{
		B0: float32(b0 / a0),
		B1: float32(b1 / a0),
		B2: float32(b2 / a0),
		A1: float32(a1 / a0),
		A2: float32(a2 / a0),
	}
}

// FilterChain cascades an ordered sequence of biquads, used for the
// near-field ILD pair (§4.3 step 6, two sections per ear) and for hearing
// loss/aid EQ cascades.
type FilterChain struct {
	stages []*Biquad
}

// NewFilterChain creates an empty cascade.
func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// AddStage appends a biquad to the cascade and returns it for configuration.
func (c *FilterChain) AddStage(smooth float32) *Biquad {
	b := NewBiquad(smooth)
	c.stages = append(c.stages, b)
	return b
}

// Stages returns the cascade's biquads in processing order.
func (c *FilterChain) Stages() []*Biquad { return c.stages }

// ProcessSample runs x through every stage in order.
func (c *FilterChain) ProcessSample(x float32) float32 {
	for _, s := range c.stages {
		x = s.ProcessSample(x)
	}
	return x
}

// ProcessBlock filters buf through every stage in place.
func (c *FilterChain) ProcessBlock(buf []float32) {
	for _, s := range c.stages {
		s.ProcessBlock(buf)
	}
}

// Reset clears all stage states.
func (c *FilterChain) Reset() {
	for _, s := range c.stages {
		s.Reset()
	}
}
