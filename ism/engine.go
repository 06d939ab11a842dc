package ism

import (
	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

// fadeRate is the one-pole coefficient an image's gain moves toward its
// target Visibility by each block, avoiding the audible click a hard
// visibility switch would otherwise produce.
const fadeRate = 0.15

// VirtualSource is one audible reflection emitted for a block: a filtered
// copy of the source signal and the direction/distance it appears to arrive
// from (§4.5 "per-image... emission").
type VirtualSource struct {
	Location geom.CVector3
	Buffer   audio.MonoBuffer
}

// Engine runs the per-source image trees against a shared Room (C8, §4.5).
type Engine struct {
	reporter                *result.Reporter
	state                   audio.State
	room                    *Room
	maxOrder                int
	maxDistanceImageSources float64
	bandCount               int

	trees map[int]*Tree
	bufs  map[int][][]float32 // per source, per-image scratch buffers (no-reallocation invariant)
}

// NewEngine builds an image-source engine bound to room. maxOrder is the
// reflection depth (images-of-images) to build; maxDistanceImageSources
// drops any image whose mirrored distance to the listener exceeds it, per
// §4.5's cutoff.
func NewEngine(reporter *result.Reporter, state audio.State, room *Room, maxOrder int, maxDistanceImageSources float64) *Engine {
	if reporter == nil {
		reporter = result.NewReporter()
	}
	if maxOrder < 1 {
		maxOrder = 1
	}
	return &Engine{
		reporter:                reporter,
		state:                   state,
		room:                    room,
		maxOrder:                maxOrder,
		maxDistanceImageSources: maxDistanceImageSources,
		bandCount:               9,
		trees:                   make(map[int]*Tree),
		bufs:                    make(map[int][][]float32),
	}
}

// BuildImages (re)builds sourceID's image tree from scratch: called on
// setup and whenever the source or room geometry changes (§4.5 step 1,
// not a per-block operation).
func (e *Engine) BuildImages(sourceID int, sourceLoc, listenerLoc geom.CVector3) {
	t := buildTree(e.room, sourceLoc, listenerLoc, e.maxOrder, e.maxDistanceImageSources, e.state.SampleRate, e.state.BlockSize, e.bandCount)
	t.updateVisibility(e.room, listenerLoc)
	e.trees[sourceID] = t
	bufs := make([][]float32, len(t.Nodes))
	for i := range bufs {
		bufs[i] = make([]float32, e.state.BlockSize)
	}
	e.bufs[sourceID] = bufs
}

// UpdateVisibility recomputes visibility for sourceID's existing tree
// against a new listener position, without rebuilding image locations
// (§4.5: visibility is cheap to refresh every block, geometry rebuilds are
// not).
func (e *Engine) UpdateVisibility(sourceID int, listenerLoc geom.CVector3) {
	t, ok := e.trees[sourceID]
	if !ok {
		return
	}
	t.updateVisibility(e.room, listenerLoc)
}

// ProcessBlock filters in through every visible image's coloration EQ,
// applies its fade-in/silence state machine, and appends the resulting
// virtual sources to dst (which the caller should truncate to :0 first).
func (e *Engine) ProcessBlock(sourceID int, in audio.MonoBuffer, dst []VirtualSource) []VirtualSource {
	t, ok := e.trees[sourceID]
	if !ok {
		return dst
	}
	bufs := e.bufs[sourceID]

	for i := range t.Nodes {
		img := &t.Nodes[i]
		buf := bufs[i]
		n := len(in)
		if n > len(buf) {
			n = len(buf)
		}

		if !img.Visible {
			img.fadeGain = 0
			continue
		}
		if !img.born {
			if img.silenceFrames > 0 {
				img.silenceFrames--
				continue
			}
			img.born = true
		}

		img.fadeGain += (float32(img.Visibility) - img.fadeGain) * fadeRate
		if img.fadeGain < 1e-4 {
			continue
		}

		copy(buf[:n], in[:n])
		img.EQ.ProcessBlock(buf[:n])
		for j := 0; j < n; j++ {
			buf[j] *= img.fadeGain
		}

		dst = append(dst, VirtualSource{Location: img.Location, Buffer: buf[:n]})
	}
	return dst
}

// Reset clears every image's filter and birth state (Core.Reset, §3
// Lifecycle), keeping the built tree geometry.
func (e *Engine) Reset() {
	for _, t := range e.trees {
		for i := range t.Nodes {
			t.Nodes[i].EQ.Reset()
			t.Nodes[i].fadeGain = 0
			t.Nodes[i].born = false
		}
	}
}

// RemoveSource discards sourceID's image tree, e.g. when a source is
// destroyed.
func (e *Engine) RemoveSource(sourceID int) {
	delete(e.trees, sourceID)
	delete(e.bufs, sourceID)
}

// ImageCount reports how many images sourceID's tree currently holds,
// chiefly for the C12 monitor/profiler surface.
func (e *Engine) ImageCount(sourceID int) int {
	t, ok := e.trees[sourceID]
	if !ok {
		return 0
	}
	return len(t.Nodes)
}
