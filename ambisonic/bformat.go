package ambisonic

import (
	"fmt"

	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

// ReverbOrder selects how many B-format channels the virtual-Ambisonic
// reverb path uses (§4.4, §6 control API).
type ReverbOrder int

const (
	Adimensional  ReverbOrder = iota // W only
	Bidimensional                    // W, X, Y
	Threedimensional                 // W, X, Y, Z
)

// ChannelCount returns how many B-format channels this order carries.
func (o ReverbOrder) ChannelCount() int {
	switch o {
	case Adimensional:
		return 1
	case Bidimensional:
		return 3
	default:
		return 4
	}
}

// bFormatW is the conventional B-format W-channel scale (1/sqrt(2)).
const bFormatW = 0.70710678

// bFormat2DWBoost compensates the 2D (W,X,Y-only) encoding for the power
// lost by omitting Z, per §4.4: "a W-channel power boost in 2D mode to
// compensate for missing Z". sqrt(2) doubles W's power contribution.
const bFormat2DWBoost = 1.41421356

// EncodeBFormat computes the W/X/Y/Z gains for a source at unit direction
// dir (listener-local, +X right/+Y up/-Z forward), first-order spherical
// harmonics per §4.4 step 1.
func EncodeBFormat(dir geom.CVector3, order ReverbOrder) (w, x, y, z float64) {
	w = bFormatW
	x, y, z = dir.X, dir.Y, dir.Z
	switch order {
	case Adimensional:
		x, y, z = 0, 0, 0
	case Bidimensional:
		z = 0
		w *= bFormat2DWBoost
	}
	return
}

// VirtualSpeaker identifies one of the six fixed BRIR measurement
// directions (§3 "six virtual loudspeakers") the B-format ABIR is derived
// from.
type VirtualSpeaker int

const (
	SpeakerNorth VirtualSpeaker = iota
	SpeakerSouth
	SpeakerEast
	SpeakerWest
	SpeakerZenith
	SpeakerNadir
)

// Direction returns the unit direction vector for speaker, in the same
// listener-local frame EncodeBFormat uses.
func (s VirtualSpeaker) Direction() geom.CVector3 {
	switch s {
	case SpeakerNorth:
		return geom.Vec(0, 0, -1)
	case SpeakerSouth:
		return geom.Vec(0, 0, 1)
	case SpeakerEast:
		return geom.Vec(1, 0, 0)
	case SpeakerWest:
		return geom.Vec(-1, 0, 0)
	case SpeakerZenith:
		return geom.Vec(0, 1, 0)
	default: // SpeakerNadir
		return geom.Vec(0, -1, 0)
	}
}

var allSpeakers = [6]VirtualSpeaker{
	SpeakerNorth, SpeakerSouth, SpeakerEast, SpeakerWest, SpeakerZenith, SpeakerNadir,
}

// ReverbStore holds the partitioned, per-channel, per-ear binaural impulse
// response for the B-format virtual-Ambisonic reverb path (C5), derived at
// setup time from six virtual-loudspeaker BRIRs (§3 "Ambisonic BIR").
type ReverbStore struct {
	reporter *result.Reporter
	state    audio.State
	order    ReverbOrder

	setupInProgress bool
	ready           bool
	irLength        int

	speakerBIR map[VirtualSpeaker]geom.EarPair[[]float32]

	// channelIR[c] holds the partitioned frequency-domain IR for B-format
	// channel c (0=W,1=X,2=Y,3=Z), per ear.
	channelIR []geom.EarPair[[][]complex64]
}

// NewReverbStore creates an empty store for the given reverb order.
func NewReverbStore(reporter *result.Reporter, state audio.State, order ReverbOrder) *ReverbStore {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	return &ReverbStore{reporter: reporter, state: state, order: order}
}

// BeginSetup starts a new build: every BRIR added must be irLength samples.
func (s *ReverbStore) BeginSetup(irLength int) {
	s.irLength = irLength
	s.speakerBIR = make(map[VirtualSpeaker]geom.EarPair[[]float32])
	s.setupInProgress = true
	s.ready = false
}

// AddVirtualSpeakerBRIR installs the measured BRIR for one ear of one
// virtual loudspeaker.
func (s *ReverbStore) AddVirtualSpeakerBRIR(speaker VirtualSpeaker, ear geom.Ear, ir []float32) result.Result {
	if !s.setupInProgress {
		return s.reporter.SetResult(result.NotAllowed, "AddVirtualSpeakerBRIR called outside BeginSetup/EndSetup", "ambisonic/bformat.go", 0)
	}
	if len(ir) != s.irLength {
		return s.reporter.SetResult(result.BadSize, "AddVirtualSpeakerBRIR: length does not match BeginSetup length", "ambisonic/bformat.go", 0)
	}
	pair := s.speakerBIR[speaker]
	pair.Set(ear, append([]float32(nil), ir...))
	s.speakerBIR[speaker] = pair
	return s.reporter.SetResult(result.OK, "", "ambisonic/bformat.go", 0)
}

// EndSetup derives each B-format channel's binaural IR as the first-order-
// encoded sum of the six virtual-speaker BRIRs (§4.4), then partitions and
// transforms each channel/ear IR exactly as §4.2 step 5 does for the HRIR.
func (s *ReverbStore) EndSetup() result.Result {
	if !s.setupInProgress {
		return s.reporter.SetResult(result.NotAllowed, "EndSetup called without a matching BeginSetup", "ambisonic/bformat.go", 0)
	}
	if len(s.speakerBIR) == 0 {
		s.setupInProgress = false
		return s.reporter.SetResult(result.NotSet, "EndSetup: no virtual-speaker BRIRs were added", "ambisonic/bformat.go", 0)
	}

	n := s.order.ChannelCount()
	s.channelIR = make([]geom.EarPair[[][]complex64], n)

	for c := 0; c < n; c++ {
		var sumL, sumR []float32
		for _, sp := range allSpeakers {
			bir, ok := s.speakerBIR[sp]
			if !ok {
				continue
			}
			gain := bFormatChannelGain(c, sp.Direction(), s.order)
			sumL = accumulateScaled(sumL, bir.Left, gain, s.irLength)
			sumR = accumulateScaled(sumR, bir.Right, gain, s.irLength)
		}
		s.channelIR[c] = geom.EarPair[[][]complex64]{
			Left:  partitionAndTransform(sumL, s.state.BlockSize),
			Right: partitionAndTransform(sumR, s.state.BlockSize),
		}
	}

	s.setupInProgress = false
	s.ready = true
	return s.reporter.SetResult(result.OK, "", "ambisonic/bformat.go", 0)
}

// bFormatChannelGain returns channel c's (0=W,1=X,2=Y,3=Z) encoding gain
// for a virtual speaker at dir, per EncodeBFormat.
func bFormatChannelGain(c int, dir geom.CVector3, order ReverbOrder) float64 {
	w, x, y, z := EncodeBFormat(dir, order)
	switch c {
	case 0:
		return w
	case 1:
		return x
	case 2:
		return y
	default:
		return z
	}
}

// Ready reports whether EndSetup has completed successfully.
func (s *ReverbStore) Ready() bool { return s.ready }

// ChannelIR returns the partitioned frequency-domain IR for B-format
// channel c (0=W,1=X,2=Y,3=Z), for the requested ear.
func (s *ReverbStore) ChannelIR(c int, ear geom.Ear) [][]complex64 {
	if c < 0 || c >= len(s.channelIR) {
		return nil
	}
	return s.channelIR[c].Get(ear)
}

func accumulateScaled(dst, src []float32, gain float64, length int) []float32 {
	if dst == nil {
		dst = make([]float32, length)
	}
	g := float32(gain)
	for i := 0; i < length && i < len(src); i++ {
		dst[i] += g * src[i]
	}
	return dst
}

// partitionAndTransform splits ir into blockSize partitions (zero-padded to
// 2*blockSize) and forward-transforms each one, matching HRIR partitioning
// (§4.2 step 5, §3 invariant 1). Returns nil if ir is empty (missing
// speaker data for this channel).
func partitionAndTransform(ir []float32, blockSize int) [][]complex64 {
	if len(ir) == 0 {
		return nil
	}
	parts := dsp.PartitionIR(ir, blockSize)
	proc, err := dsp.NewFrequencyProcessor(2 * blockSize)
	if err != nil {
		return nil
	}
	out := make([][]complex64, len(parts))
	padded := make([]complex64, 2*blockSize)
	for i, p := range parts {
		dsp.RealToComplex(padded, p)
		freq := make([]complex64, 2*blockSize)
		if err := proc.Forward(freq, padded); err != nil {
			continue
		}
		out[i] = freq
	}
	return out
}

// validateOrder is a small guard used by callers that accept a ReverbOrder
// from outside the package (control API).
func validateOrder(o ReverbOrder) error {
	if o < Adimensional || o > Threedimensional {
		return fmt.Errorf("ambisonic: invalid reverb order %d", o)
	}
	return nil
}
