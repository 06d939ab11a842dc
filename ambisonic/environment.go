package ambisonic

import (
	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

// channelCountDivisor is the Ambisonic mixer's documented, unexplained
// divisor (§4.4 "Mixing rule", §9 open question): the final stereo output
// is divided by the live channel count rather than a gain-normalization
// coefficient. Preserved verbatim from the original toolkit.
func channelCountDivisor(channels int) float32 {
	if channels <= 0 {
		return 1
	}
	return float32(channels)
}

// Environment runs the B-format virtual-Ambisonic reverb path (C7, §4.4
// "Virtual-Ambisonic Reverb"): encodes every active source into W/X/Y/Z
// time-domain channel buffers, convolves each channel with its ABIR via
// UPC-without-memory, sums the frequency-domain results per ear, and
// performs a single shared inverse FFT.
type Environment struct {
	reporter *result.Reporter
	state    audio.State
	order    ReverbOrder

	channels []geom.EarPair[*dsp.UPC]
	ifft     *dsp.FrequencyProcessor

	directionality geom.EarPair[float32]

	channelBuf [][]float32
	scratch    []complex64
	freqAccum  geom.EarPair[[]complex64]
	timeOut    geom.EarPair[[]float32]
}

// NewEnvironment builds an Environment from a completed ReverbStore.
func NewEnvironment(reporter *result.Reporter, state audio.State, store *ReverbStore) (*Environment, error) {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	if err := validateOrder(store.order); err != nil {
		return nil, err
	}

	n := store.order.ChannelCount()
	e := &Environment{reporter: reporter, state: state, order: store.order}
	e.channels = make([]geom.EarPair[*dsp.UPC], n)
	for c := 0; c < n; c++ {
		upcL, err := buildChannelUPC(store.ChannelIR(c, geom.EarLeft), state.BlockSize)
		if err != nil {
			return nil, err
		}
		upcR, err := buildChannelUPC(store.ChannelIR(c, geom.EarRight), state.BlockSize)
		if err != nil {
			return nil, err
		}
		e.channels[c] = geom.EarPair[*dsp.UPC]{Left: upcL, Right: upcR}
	}

	proc, err := dsp.NewFrequencyProcessor(2 * state.BlockSize)
	if err != nil {
		return nil, err
	}
	e.ifft = proc
	e.directionality = geom.EarPair[float32]{Left: 1, Right: 1}

	e.channelBuf = make([][]float32, n)
	for c := range e.channelBuf {
		e.channelBuf[c] = make([]float32, state.BlockSize)
	}
	e.scratch = make([]complex64, 2*state.BlockSize)
	e.freqAccum = geom.EarPair[[]complex64]{
		Left:  make([]complex64, 2*state.BlockSize),
		Right: make([]complex64, 2*state.BlockSize),
	}
	e.timeOut = geom.EarPair[[]float32]{
		Left:  make([]float32, 2*state.BlockSize),
		Right: make([]float32, 2*state.BlockSize),
	}
	return e, nil
}

// buildChannelUPC constructs a "without memory" UPC sized to match
// freqPartitions's partition count and installs it as the channel's IR.
func buildChannelUPC(freqPartitions [][]complex64, blockSize int) (*dsp.UPC, error) {
	count := len(freqPartitions)
	if count == 0 {
		count = 1
	}
	zero := make([][]float32, count)
	for i := range zero {
		zero[i] = make([]float32, blockSize)
	}
	u, err := dsp.NewUPC(zero, blockSize, false)
	if err != nil {
		return nil, err
	}
	if len(freqPartitions) > 0 {
		_ = u.SetIRFreq(freqPartitions)
	}
	return u, nil
}

// SetDirectionality sets the per-ear linear gain applied after the reverb
// sum (Listener.DirectionalityEnabled, §6).
func (e *Environment) SetDirectionality(left, right float32) {
	e.directionality = geom.EarPair[float32]{Left: left, Right: right}
}

// BeginBlock clears the per-channel encode buffers; call once per block
// before any EncodeSource calls.
func (e *Environment) BeginBlock() {
	for c := range e.channelBuf {
		for i := range e.channelBuf[c] {
			e.channelBuf[c][i] = 0
		}
	}
}

// EncodeSource adds one active source's contribution into the per-channel
// B-format mix (§4.4 step 1). dir is the source's head-centred direction,
// in the listener-local frame.
func (e *Environment) EncodeSource(dir geom.CVector3, buf audio.MonoBuffer) {
	w, x, y, z := EncodeBFormat(dir, e.order)
	gains := [4]float64{w, x, y, z}
	for c := range e.channelBuf {
		g := float32(gains[c])
		if g == 0 {
			continue
		}
		n := len(buf)
		if n > len(e.channelBuf[c]) {
			n = len(e.channelBuf[c])
		}
		for i := 0; i < n; i++ {
			e.channelBuf[c][i] += g * buf[i]
		}
	}
}

// ProcessVirtualAmbisonicReverb convolves every channel's encoded mix with
// its ABIR, sums the frequency-domain results per ear, performs the single
// shared inverse FFT (§4.4 step 2), and applies directionality (step 3).
func (e *Environment) ProcessVirtualAmbisonicReverb(outL, outR audio.MonoBuffer) result.Result {
	for i := range e.freqAccum.Left {
		e.freqAccum.Left[i] = 0
		e.freqAccum.Right[i] = 0
	}

	for c := range e.channels {
		if err := e.channels[c].Left.ProcessBlockFreq(e.channelBuf[c], e.scratch); err == nil {
			for i, v := range e.scratch {
				e.freqAccum.Left[i] += v
			}
		}
		if err := e.channels[c].Right.ProcessBlockFreq(e.channelBuf[c], e.scratch); err == nil {
			for i, v := range e.scratch {
				e.freqAccum.Right[i] += v
			}
		}
	}

	if err := e.ifft.Inverse(e.timeOut.Left, e.freqAccum.Left); err != nil {
		outL.Zero()
		outR.Zero()
		return e.reporter.SetResult(result.Exception, "Environment: inverse FFT failed", "ambisonic/environment.go", 0)
	}
	if err := e.ifft.Inverse(e.timeOut.Right, e.freqAccum.Right); err != nil {
		outL.Zero()
		outR.Zero()
		return e.reporter.SetResult(result.Exception, "Environment: inverse FFT failed", "ambisonic/environment.go", 0)
	}

	div := channelCountDivisor(len(e.channels))
	half := e.state.BlockSize
	for i := 0; i < half; i++ {
		outL[i] = e.timeOut.Left[half+i] / div * e.directionality.Left
		outR[i] = e.timeOut.Right[half+i] / div * e.directionality.Right
	}

	return e.reporter.SetResult(result.OK, "", "ambisonic/environment.go", 0)
}

// Reset clears every channel's convolver memory.
func (e *Environment) Reset() {
	for _, ch := range e.channels {
		ch.Left.Reset()
		ch.Right.Reset()
	}
}
