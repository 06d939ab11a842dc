package ism

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
)

// Image is one node of a source's reflection tree (§3 "SourceImage",
// §9 "flat arena with parent/child indices"): a mirrored source position,
// the chain of walls it reflects across (root-to-node order), the
// resulting per-band coloration filter, and the birth/visibility state
// needed for click-free appearance and disappearance.
type Image struct {
	Location        geom.CVector3
	ReflectionWalls []int // indices into the Room.Walls the image reflects across, root-first
	ParentIdx       int   // -1 for the root (direct path)
	Children        []int

	BandGains []float64
	EQ        *dsp.GraphicEQ

	Visibility float64 // 0..1 geometric mean across the reflection chain
	Visible    bool

	// fadeGain ramps toward Visibility each block instead of jumping,
	// and silenceFrames holds a newly born image fully silent for the
	// blocks its extra propagation delay would take to arrive (§4.5
	// "silenced for the duration of its extra propagation delay").
	fadeGain      float32
	silenceFrames int
	born          bool
}

// borderVisibilityThreshold is the wall-edge smoothing margin (§4.5
// "smooth ramp over a border threshold"): 0 at 0.3 m outside a wall's
// boundary, 1 at 0.3 m inside it.
const borderVisibilityThreshold = 0.3

// edgeVisibility converts a wall's signed edge distance into a 0..1
// visibility contribution via a smoothstep ramp across
// borderVisibilityThreshold on either side of the boundary.
func edgeVisibility(signedDist float64) float64 {
	t := (signedDist + borderVisibilityThreshold) / (2 * borderVisibilityThreshold)
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t) // smoothstep
}

// Tree is one source's flattened image arena, built breadth-first up to
// the engine's configured reflection order (§9: "iterate breadth-first to
// avoid deep recursion inside the real-time path").
type Tree struct {
	Nodes []Image
}

func speedOfSoundMetresPerSecond() float64 { return 343.0 }

// buildTree grows the breadth-first image arena for one source, given the
// listener position at build time (used only to prune images that would
// never be audible and to seed each image's birth delay).
func buildTree(room *Room, sourceLoc, listenerLoc geom.CVector3, maxOrder int, maxDistance float64, sampleRate float64, blockSize int, bandCount int) *Tree {
	directDistance := sourceLoc.Sub(listenerLoc).Norm()

	type queued struct {
		parentIdx int
		loc       geom.CVector3
		walls     []int
		bandGains []float64
		room      *Room
	}

	rootGains := make([]float64, bandCount)
	for i := range rootGains {
		rootGains[i] = 1
	}

	t := &Tree{}
	queue := []queued{{parentIdx: -1, loc: sourceLoc, walls: nil, bandGains: rootGains, room: room}}

	for depth := 0; depth < maxOrder && len(queue) > 0; depth++ {
		var next []queued
		for _, item := range queue {
			for wi, w := range item.room.Walls {
				if !w.Active {
					continue
				}
				imageLoc := w.Mirror(item.loc)
				dist := imageLoc.Sub(listenerLoc).Norm()
				if dist <= directDistance || dist > maxDistance {
					continue // invariant: images must add path length, and beyond cutoff are dropped
				}

				bandGains := make([]float64, bandCount)
				for b := range bandGains {
					absorb := 0.0
					if b < len(w.Absorption) {
						absorb = w.Absorption[b]
					}
					if absorb > 1 {
						absorb = 1
					}
					bandGains[b] = item.bandGains[b] * math.Sqrt(1-absorb)
				}

				walls := make([]int, len(item.walls)+1)
				copy(walls, item.walls)
				walls[len(walls)-1] = wi

				eq := dsp.NewGraphicEQ(sampleRate, dsp.OctaveBandCenters(dsp.DefaultBandStartHz, bandCount), 1.0)
				eq.SetBandGainsLinear(sampleRate, bandGains)

				extraPath := dist - directDistance
				silenceFrames := int(math.Ceil(extraPath / speedOfSoundMetresPerSecond() * sampleRate / float64(blockSize)))

				node := Image{
					Location:        imageLoc,
					ReflectionWalls: walls,
					ParentIdx:       item.parentIdx,
					BandGains:       bandGains,
					EQ:              eq,
					silenceFrames:   silenceFrames,
				}
				idx := len(t.Nodes)
				t.Nodes = append(t.Nodes, node)
				if item.parentIdx >= 0 {
					t.Nodes[item.parentIdx].Children = append(t.Nodes[item.parentIdx].Children, idx)
				}

				next = append(next, queued{
					parentIdx: idx,
					loc:       imageLoc,
					walls:     walls,
					bandGains: bandGains,
					room:      item.room.Mirrored(wi),
				})
			}
		}
		queue = next
	}

	return t
}

// updateVisibility recomputes every node's Visibility/Visible against the
// (possibly moved) listener, by casting the image-to-listener line through
// each wall in its reflection chain and taking the geometric mean of the
// per-wall edge visibilities (§4.5).
func (t *Tree) updateVisibility(room *Room, listenerLoc geom.CVector3) {
	for i := range t.Nodes {
		img := &t.Nodes[i]
		origin := img.Location
		vis := 1.0
		n := len(img.ReflectionWalls)
		ok := true
		for _, wi := range img.ReflectionWalls {
			w := room.Walls[wi]
			hit, intersects := w.IntersectSegment(origin, listenerLoc)
			if !intersects {
				ok = false
				break
			}
			vis *= edgeVisibility(w.SignedDistanceToEdge(hit))
		}
		if !ok || n == 0 {
			if n == 0 {
				img.Visibility = 1
				img.Visible = true
			} else {
				img.Visibility = 0
				img.Visible = false
			}
			continue
		}
		img.Visibility = math.Pow(vis, 1/float64(n))
		img.Visible = img.Visibility > 1e-4
	}
}
