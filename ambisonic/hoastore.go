package ambisonic

import (
	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hrtf"
	"github.com/3dti-go/binaural/result"
)

// HOAStore holds the AHRBIR (§3 "Ambisonic BIR") for the higher-order
// virtual-Ambisonic anechoic path: one partitioned binaural impulse
// response per spherical-harmonic channel, derived from a virtual-
// loudspeaker decoding of the listener's own HRIR table (§4.4 "Virtual-
// Ambisonic Anechoic").
type HOAStore struct {
	order         Order
	normalization Normalization
	channelIR     []geom.EarPair[[][]complex64]
}

// BuildHOAStore derives the AHRBIR by querying store for each of order's
// virtual loudspeaker directions (6/12/20, §4.4) and decoding the resulting
// per-direction HRIRs into per-channel signals with a sampling Ambisonic
// decoder matched to that uniformly distributed speaker set. Because FFT is
// linear, the decode's weighted sum is taken directly in the frequency-
// domain partitions the HRTF store already returns, rather than round-
// tripping through the time domain.
func BuildHOAStore(state audio.State, order Order, normalization Normalization, store *hrtf.Store) (*HOAStore, result.Result) {
	if !store.Ready() {
		return nil, result.Result{Code: result.NotSet, Suggestion: "BuildHOAStore: HRTF store not ready"}
	}

	dirs := virtualSpeakerDirections(order)
	n := order.ChannelCount()
	speakers := order.VirtualSpeakerCount()

	hoa := &HOAStore{order: order, normalization: normalization}
	hoa.channelIR = make([]geom.EarPair[[][]complex64], n)

	// decodeGain[c][i] is the sampling-decoder weight of speaker i for
	// channel c: the "basic/projection" decoder valid for spherical-design
	// point sets (octahedron/icosahedron/dodecahedron vertices), scaled by
	// the channel/speaker count ratio so a uniform field reconstructs at
	// unit gain. It is divided through by normalizationScale so switching
	// Normalization never changes the rendered acoustic result, exactly as
	// a normalization-aware decoder would (§4.4 discussion).
	decodeGain := make([][]float64, n)
	for c := 0; c < n; c++ {
		l, m := acnToLM(c)
		decodeGain[c] = make([]float64, speakers)
		scale := normalizationScale(c, normalization)
		for i, d := range dirs {
			encode := sphericalHarmonicN3D(l, m, d[0], d[1], d[2])
			decodeGain[c][i] = encode * float64(n) / float64(speakers) / scale
		}
	}

	for c := 0; c < n; c++ {
		var framesL, framesR [][]complex64
		for i, d := range dirs {
			az, el := geom.LocalAzimuthElevation(geom.Vec(d[0], d[1], d[2]))
			hL, resL := store.GetHRIRPartitioned(geom.EarLeft, az, el, true)
			hR, resR := store.GetHRIRPartitioned(geom.EarRight, az, el, true)
			if resL.Code != result.OK || resR.Code != result.OK {
				continue
			}
			framesL = accumulateFreq(framesL, hL.Freq, decodeGain[c][i])
			framesR = accumulateFreq(framesR, hR.Freq, decodeGain[c][i])
		}
		hoa.channelIR[c] = geom.EarPair[[][]complex64]{Left: framesL, Right: framesR}
	}

	return hoa, result.Result{Code: result.OK}
}

// accumulateFreq adds gain*src into dst partition-by-partition and bin-by-
// bin, growing dst (zero-initialized) on the first call or when src has
// more partitions than previously seen.
func accumulateFreq(dst, src [][]complex64, gain float64) [][]complex64 {
	if len(src) > len(dst) {
		grown := make([][]complex64, len(src))
		copy(grown, dst)
		for p := len(dst); p < len(src); p++ {
			grown[p] = make([]complex64, len(src[p]))
		}
		dst = grown
	}
	g := complex64(complex(gain, 0))
	for p, block := range src {
		if block == nil {
			continue
		}
		if dst[p] == nil {
			dst[p] = make([]complex64, len(block))
		}
		for i, v := range block {
			dst[p][i] += v * g
		}
	}
	return dst
}

// ChannelCount returns (N+1)^2 for this store's order.
func (h *HOAStore) ChannelCount() int { return h.order.ChannelCount() }

// ChannelIR returns the partitioned frequency-domain AHRBIR for ACN channel
// c, for the requested ear.
func (h *HOAStore) ChannelIR(c int, ear geom.Ear) [][]complex64 {
	if c < 0 || c >= len(h.channelIR) {
		return nil
	}
	return h.channelIR[c].Get(ear)
}
