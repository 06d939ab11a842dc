package ambisonic

import (
	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

// AmbisonicDSP runs the higher-order virtual-Ambisonic anechoic path (C7,
// §4.4 "Virtual-Ambisonic Anechoic"): encodes every active source into
// (N+1)^2 spherical-harmonic channels, convolves each with its AHRBIR via
// UPC-without-memory, sums per ear, and performs one shared inverse FFT.
// Structurally identical to Environment; kept as a separate type per §9's
// "enum-driven switches... in the few cases where behaviour differs"
// guidance, since the channel count and encode law genuinely differ from
// the fixed four-channel B-format path.
type AmbisonicDSP struct {
	reporter      *result.Reporter
	state         audio.State
	order         Order
	normalization Normalization

	channels []geom.EarPair[*dsp.UPC]
	ifft     *dsp.FrequencyProcessor

	directionality geom.EarPair[float32]

	channelBuf [][]float32
	scratch    []complex64
	freqAccum  geom.EarPair[[]complex64]
	timeOut    geom.EarPair[[]float32]
}

// NewAmbisonicDSP builds an AmbisonicDSP from a completed HOAStore.
func NewAmbisonicDSP(reporter *result.Reporter, state audio.State, store *HOAStore) (*AmbisonicDSP, error) {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	n := store.ChannelCount()
	a := &AmbisonicDSP{reporter: reporter, state: state, order: store.order, normalization: store.normalization}
	a.channels = make([]geom.EarPair[*dsp.UPC], n)
	for c := 0; c < n; c++ {
		upcL, err := buildChannelUPC(store.ChannelIR(c, geom.EarLeft), state.BlockSize)
		if err != nil {
			return nil, err
		}
		upcR, err := buildChannelUPC(store.ChannelIR(c, geom.EarRight), state.BlockSize)
		if err != nil {
			return nil, err
		}
		a.channels[c] = geom.EarPair[*dsp.UPC]{Left: upcL, Right: upcR}
	}

	proc, err := dsp.NewFrequencyProcessor(2 * state.BlockSize)
	if err != nil {
		return nil, err
	}
	a.ifft = proc
	a.directionality = geom.EarPair[float32]{Left: 1, Right: 1}

	a.channelBuf = make([][]float32, n)
	for c := range a.channelBuf {
		a.channelBuf[c] = make([]float32, state.BlockSize)
	}
	a.scratch = make([]complex64, 2*state.BlockSize)
	a.freqAccum = geom.EarPair[[]complex64]{
		Left:  make([]complex64, 2*state.BlockSize),
		Right: make([]complex64, 2*state.BlockSize),
	}
	a.timeOut = geom.EarPair[[]float32]{
		Left:  make([]float32, 2*state.BlockSize),
		Right: make([]float32, 2*state.BlockSize),
	}
	return a, nil
}

// SetDirectionality sets the per-ear linear gain applied after the sum.
func (a *AmbisonicDSP) SetDirectionality(left, right float32) {
	a.directionality = geom.EarPair[float32]{Left: left, Right: right}
}

// BeginBlock clears the per-channel encode buffers.
func (a *AmbisonicDSP) BeginBlock() {
	for c := range a.channelBuf {
		for i := range a.channelBuf[c] {
			a.channelBuf[c][i] = 0
		}
	}
}

// EncodeSource adds one active source's contribution into the per-channel
// spherical-harmonic mix. dir is a unit direction vector (listener-local,
// head-centred). The encode gain is scaled by normalizationScale, the same
// factor BuildHOAStore divided out of the decode matrix, so the rendered
// acoustic result never depends on the chosen Normalization (§4.4).
func (a *AmbisonicDSP) EncodeSource(dir geom.CVector3, buf audio.MonoBuffer) {
	for c := range a.channelBuf {
		l, m := acnToLM(c)
		g := float32(sphericalHarmonicN3D(l, m, dir.X, dir.Y, dir.Z) * normalizationScale(c, a.normalization))
		if g == 0 {
			continue
		}
		n := len(buf)
		if n > len(a.channelBuf[c]) {
			n = len(a.channelBuf[c])
		}
		for i := 0; i < n; i++ {
			a.channelBuf[c][i] += g * buf[i]
		}
	}
}

// ProcessVirtualAmbisonicAnechoic convolves every channel with its AHRBIR,
// sums per ear, performs the shared inverse FFT, applies the §4.4 mixing
// rule, and the listener directionality gain.
func (a *AmbisonicDSP) ProcessVirtualAmbisonicAnechoic(outL, outR audio.MonoBuffer) result.Result {
	for i := range a.freqAccum.Left {
		a.freqAccum.Left[i] = 0
		a.freqAccum.Right[i] = 0
	}

	for c := range a.channels {
		if err := a.channels[c].Left.ProcessBlockFreq(a.channelBuf[c], a.scratch); err == nil {
			for i, v := range a.scratch {
				a.freqAccum.Left[i] += v
			}
		}
		if err := a.channels[c].Right.ProcessBlockFreq(a.channelBuf[c], a.scratch); err == nil {
			for i, v := range a.scratch {
				a.freqAccum.Right[i] += v
			}
		}
	}

	if err := a.ifft.Inverse(a.timeOut.Left, a.freqAccum.Left); err != nil {
		outL.Zero()
		outR.Zero()
		return a.reporter.SetResult(result.Exception, "AmbisonicDSP: inverse FFT failed", "ambisonic/hoadsp.go", 0)
	}
	if err := a.ifft.Inverse(a.timeOut.Right, a.freqAccum.Right); err != nil {
		outL.Zero()
		outR.Zero()
		return a.reporter.SetResult(result.Exception, "AmbisonicDSP: inverse FFT failed", "ambisonic/hoadsp.go", 0)
	}

	div := channelCountDivisor(len(a.channels))
	half := a.state.BlockSize
	for i := 0; i < half; i++ {
		outL[i] = a.timeOut.Left[half+i] / div * a.directionality.Left
		outR[i] = a.timeOut.Right[half+i] / div * a.directionality.Right
	}

	return a.reporter.SetResult(result.OK, "", "ambisonic/hoadsp.go", 0)
}

// Reset clears every channel's convolver memory.
func (a *AmbisonicDSP) Reset() {
	for _, ch := range a.channels {
		ch.Left.Reset()
		ch.Right.Reset()
	}
}
