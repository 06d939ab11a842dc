// Package ism implements the Image-Source Engine (C8, §4.5): convex
// polygonal walls and rooms, the recursive (flattened-to-arena, §9) image
// tree, per-image visibility against the reflection-wall chain, and the
// per-block virtual-source emission that feeds the anechoic (C6) and
// Ambisonic (C7) paths.
//
// Grounded on 3dti_Toolkit/BinauralSpatializer/{Room,Wall,SourceImages}.
// {h,cpp}; wall/plane geometry uses this module's geom package instead of
// the original's hand-rolled vector math.
package ism

import (
	"math"

	"github.com/3dti-go/binaural/dsp"
	"github.com/3dti-go/binaural/geom"
)

// Wall is an ordered sequence of coplanar vertices defining a convex
// polygon (§3 "Wall"), with plane constants (A,B,C,D), per-octave-band
// absorption coefficients, and an active flag.
type Wall struct {
	Vertices   []geom.CVector3
	Absorption []float64 // per octave band, default dsp.DefaultBandCount bands
	Active     bool

	normal geom.CVector3 // unit normal, (A,B,C)
	d      float64       // plane constant D, such that normal.Dot(p) + D == 0 on the plane

	// local 2D basis for point-in-polygon / edge-distance tests.
	u, v geom.CVector3
	poly2D [][2]float64
}

// NewWall builds a wall from its ordered convex-polygon vertices.
// absorption defaults to all-zero (fully reflective) across
// dsp.DefaultBandCount bands if nil.
func NewWall(vertices []geom.CVector3, absorption []float64) *Wall {
	w := &Wall{Vertices: vertices, Active: true}
	if absorption == nil {
		absorption = make([]float64, dsp.DefaultBandCount)
	}
	w.Absorption = absorption
	w.computePlane()
	return w
}

func (w *Wall) computePlane() {
	if len(w.Vertices) < 3 {
		return
	}
	// Newell's method: robust against near-collinear consecutive vertices.
	var n geom.CVector3
	verts := w.Vertices
	for i := range verts {
		cur := verts[i]
		next := verts[(i+1)%len(verts)]
		n.X += (cur.Y - next.Y) * (cur.Z + next.Z)
		n.Y += (cur.Z - next.Z) * (cur.X + next.X)
		n.Z += (cur.X - next.X) * (cur.Y + next.Y)
	}
	norm := n.Norm()
	if norm < 1e-12 {
		return
	}
	w.normal = n.Mul(1 / norm)
	w.d = -w.normal.Dot(verts[0])

	// Build an orthonormal (u,v) basis in the wall plane for 2D tests.
	ref := geom.Vec(1, 0, 0)
	if math.Abs(w.normal.Dot(ref)) > 0.9 {
		ref = geom.Vec(0, 1, 0)
	}
	w.u = w.normal.Cross(ref)
	w.u = w.u.Mul(1 / w.u.Norm())
	w.v = w.normal.Cross(w.u)

	w.poly2D = make([][2]float64, len(verts))
	for i, p := range verts {
		w.poly2D[i] = w.project2D(p)
	}
}

func (w *Wall) project2D(p geom.CVector3) [2]float64 {
	rel := p.Sub(w.Vertices[0])
	return [2]float64{rel.Dot(w.u), rel.Dot(w.v)}
}

// Mirror reflects p across the wall's plane (§4.5 "image_loc = mirror(source.loc, W)").
func (w *Wall) Mirror(p geom.CVector3) geom.CVector3 {
	dist := w.normal.Dot(p) + w.d
	return p.Sub(w.normal.Mul(2 * dist))
}

// IntersectSegment returns the point where segment a->b crosses the wall's
// plane, and whether that point lies on the segment (endpoints included).
func (w *Wall) IntersectSegment(a, b geom.CVector3) (geom.CVector3, bool) {
	da := w.normal.Dot(a) + w.d
	db := w.normal.Dot(b) + w.d
	if da == db {
		return geom.CVector3{}, false
	}
	t := da / (da - db)
	if t < 0 || t > 1 {
		return geom.CVector3{}, false
	}
	return a.Add(b.Sub(a).Mul(t)), true
}

// SignedDistanceToEdge returns the signed distance (in the wall's own
// plane, metres) from p's projection to the nearest polygon edge: positive
// when p lies inside the polygon, negative when outside (§4.5 visibility).
func (w *Wall) SignedDistanceToEdge(p geom.CVector3) float64 {
	pt := w.project2D(p)
	inside := pointInPolygon(pt, w.poly2D)
	dist := minDistanceToEdges(pt, w.poly2D)
	if inside {
		return dist
	}
	return -dist
}

func pointInPolygon(pt [2]float64, poly [][2]float64) bool {
	inside := false
	n := len(poly)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := poly[i][0], poly[i][1]
		xj, yj := poly[j][0], poly[j][1]
		if (yi > pt[1]) != (yj > pt[1]) {
			xIntersect := (xj-xi)*(pt[1]-yi)/(yj-yi) + xi
			if pt[0] < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

func minDistanceToEdges(pt [2]float64, poly [][2]float64) float64 {
	n := len(poly)
	minDist := math.MaxFloat64
	for i := 0; i < n; i++ {
		a := poly[i]
		b := poly[(i+1)%n]
		d := distancePointToSegment(pt, a, b)
		if d < minDist {
			minDist = d
		}
	}
	if minDist == math.MaxFloat64 {
		return 0
	}
	return minDist
}

func distancePointToSegment(p, a, b [2]float64) float64 {
	abx, aby := b[0]-a[0], b[1]-a[1]
	apx, apy := p[0]-a[0], p[1]-a[1]
	lenSq := abx*abx + aby*aby
	t := 0.0
	if lenSq > 1e-12 {
		t = (apx*abx + apy*aby) / lenSq
	}
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	cx, cy := a[0]+t*abx, a[1]+t*aby
	dx, dy := p[0]-cx, p[1]-cy
	return math.Hypot(dx, dy)
}
