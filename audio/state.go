// Package audio defines the block-processing data model shared by every
// DSP component: the immutable per-process AudioState and the mono/stereo
// buffer containers §3 of the spec calls "ordered sequence of float with
// known channel count."
package audio

import "fmt"

// SampleRate is one of the three rates the toolkit supports.
type SampleRate int

const (
	SampleRate44100 SampleRate = 44100
	SampleRate48000 SampleRate = 48000
	SampleRate96000 SampleRate = 96000
)

// State is fixed at setup; every buffer in the pipeline is sized against it.
// Changing it requires a full Core.Reset (§3 Lifecycle).
type State struct {
	SampleRate float64
	BlockSize  int
}

// Validate reports whether the state satisfies the data-model invariants:
// BlockSize must be a power of two (typically 128-1024) and SampleRate must
// be positive.
func (s State) Validate() error {
	if s.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %v", s.SampleRate)
	}
	if s.BlockSize <= 0 || s.BlockSize&(s.BlockSize-1) != 0 {
		return fmt.Errorf("audio: block size must be a power of two, got %d", s.BlockSize)
	}
	return nil
}

// MonoBuffer is a single channel of contiguous float samples.
type MonoBuffer []float32

// StereoBuffer is an interleaved two-channel buffer: L0,R0,L1,R1,...
type StereoBuffer []float32

// NewStereoBuffer allocates an interleaved stereo buffer for blockSize frames.
func NewStereoBuffer(blockSize int) StereoBuffer {
	return make(StereoBuffer, blockSize*2)
}

// Deinterleave splits a stereo buffer into independent left/right slices.
// The returned slices alias into dstL and dstR if provided and large
// enough; otherwise new slices are allocated. Callers on the real-time path
// must pre-size dst to honor the no-reallocation invariant (§3 invariant 4).
func (s StereoBuffer) Deinterleave(dstL, dstR MonoBuffer) (MonoBuffer, MonoBuffer) {
	n := len(s) / 2
	if cap(dstL) < n {
		dstL = make(MonoBuffer, n)
	}
	if cap(dstR) < n {
		dstR = make(MonoBuffer, n)
	}
	dstL = dstL[:n]
	dstR = dstR[:n]
	for i := 0; i < n; i++ {
		dstL[i] = s[2*i]
		dstR[i] = s[2*i+1]
	}
	return dstL, dstR
}

// Interleave writes l/r mono channels into dst, which must be sized 2*len(l).
func Interleave(dst StereoBuffer, l, r MonoBuffer) {
	n := len(l)
	for i := 0; i < n; i++ {
		dst[2*i] = l[i]
		dst[2*i+1] = r[i]
	}
}

// Zero clears a mono buffer in place (no reallocation).
func (m MonoBuffer) Zero() {
	for i := range m {
		m[i] = 0
	}
}

// Zero clears a stereo buffer in place.
func (s StereoBuffer) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// Add accumulates src into dst sample-wise; len(src) must equal len(dst).
func (m MonoBuffer) Add(src MonoBuffer) {
	for i := range m {
		m[i] += src[i]
	}
}

// Scale multiplies every sample by g in place.
func (m MonoBuffer) Scale(g float32) {
	for i := range m {
		m[i] *= g
	}
}
