// Package geom provides the 3D geometry primitives shared by every DSP
// component: positions, orientations, azimuth/elevation conversions, and the
// ear-pairing container used throughout the binaural pipeline.
//
// Vector algebra is built on r3.Vector from github.com/golang/geo rather than
// a hand-rolled struct, the same way the rest of this module reaches for a
// pack dependency instead of reimplementing dot/cross products.
package geom

import (
	"math"

	"github.com/golang/geo/r3"
)

// CVector3 is a point or direction in listener/world space, measured in
// metres. It is a thin alias over r3.Vector so callers get Add/Sub/Dot/Cross/
// Norm for free while keeping the name the original toolkit used.
type CVector3 = r3.Vector

// Vec constructs a CVector3 from cartesian coordinates.
func Vec(x, y, z float64) CVector3 {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Zero is the origin vector.
var Zero = Vec(0, 0, 0)

// EarPair bundles a left/right value of any type T. It is the ubiquitous
// pairing type for per-ear quantities: delays, gains, filter chains, HRIRs.
type EarPair[T any] struct {
	Left  T
	Right T
}

// Ear identifies one ear or a request spanning both/neither.
type Ear int

const (
	EarLeft Ear = iota
	EarRight
	EarBoth
	EarNone
)

// Get returns the value for ear, which must be EarLeft or EarRight.
func (p EarPair[T]) Get(ear Ear) T {
	if ear == EarRight {
		return p.Right
	}
	return p.Left
}

// Set stores v for ear, which must be EarLeft or EarRight.
func (p *EarPair[T]) Set(ear Ear, v T) {
	if ear == EarRight {
		p.Right = v
	} else {
		p.Left = v
	}
}

// Quaternion is a unit quaternion orientation, {x,y,z,w}.
type Quaternion struct {
	X, Y, Z, W float64
}

// IdentityOrientation is "facing -Z with +Y up" (no rotation).
var IdentityOrientation = Quaternion{0, 0, 0, 1}

// Rotate applies the quaternion rotation to v.
func (q Quaternion) Rotate(v CVector3) CVector3 {
	// v' = q * v * q^-1, expanded via the standard quaternion-vector rotation formula.
	ux, uy, uz := q.X, q.Y, q.Z
	uvx := uy*v.Z - uz*v.Y
	uvy := uz*v.X - ux*v.Z
	uvz := ux*v.Y - uy*v.X

	uuvx := uy*uvz - uz*uvy
	uuvy := uz*uvx - ux*uvz
	uuvz := ux*uvy - uy*uvx

	return Vec(
		v.X+2*(q.W*uvx+uuvx),
		v.Y+2*(q.W*uvy+uuvy),
		v.Z+2*(q.W*uvz+uuvz),
	)
}

// Inverse returns the conjugate (inverse for unit quaternions).
func (q Quaternion) Inverse() Quaternion {
	return Quaternion{-q.X, -q.Y, -q.Z, q.W}
}

// Transform is a position + orientation in world space (§3 Data Model).
type Transform struct {
	Position    CVector3
	Orientation Quaternion
}

// NewTransform builds a Transform at position, facing forward with no rotation.
func NewTransform(position CVector3) Transform {
	return Transform{Position: position, Orientation: IdentityOrientation}
}

// VectorTo returns the vector from t to target, in world coordinates.
func (t Transform) VectorTo(target Transform) CVector3 {
	return target.Position.Sub(t.Position)
}

// Forward, Up, Right are the transform's local axes expressed in world space.
// The local frame before rotation is +Y up, -Z forward, +X right (right-handed).
func (t Transform) Forward() CVector3 { return t.Orientation.Rotate(Vec(0, 0, -1)) }
func (t Transform) Up() CVector3      { return t.Orientation.Rotate(Vec(0, 1, 0)) }
func (t Transform) Right() CVector3   { return t.Orientation.Rotate(Vec(1, 0, 0)) }

// AzimuthElevation converts a world-space vector into the listener's local
// azimuth/elevation, in degrees. Azimuth is measured clockwise from forward,
// in [0,360). Elevation is measured from the horizontal plane, in [-90,90]
// mapped onto the toolkit's [0,360) convention (270..360 = below horizon).
func (t Transform) AzimuthElevation(worldVec CVector3) (azimuthDeg, elevationDeg float64) {
	local := t.Orientation.Inverse().Rotate(worldVec)
	return LocalAzimuthElevation(local)
}

// LocalAzimuthElevation converts a vector already expressed in the listener's
// local frame (+X right, +Y up, -Z forward) into azimuth/elevation degrees.
func LocalAzimuthElevation(local CVector3) (azimuthDeg, elevationDeg float64) {
	horizLen := math.Hypot(local.X, local.Z)
	elevationDeg = radToDeg(math.Atan2(local.Y, horizLen))
	if elevationDeg < 0 {
		elevationDeg += 360
	}

	azimuthDeg = radToDeg(math.Atan2(local.X, -local.Z))
	if azimuthDeg < 0 {
		azimuthDeg += 360
	}
	return azimuthDeg, elevationDeg
}

// InterauralAzimuth computes asin(sin(az)*cos(el)), the angle relative to the
// interaural axis used by the near-field ILD lookup and Woodworth ITD formula
// (§4.3 step 1, §8 scenario 5).
func InterauralAzimuth(azimuthDeg, elevationDeg float64) float64 {
	az := degToRad(azimuthDeg)
	el := degToRad(NormalizeElevation(elevationDeg))
	v := math.Sin(az) * math.Cos(el)
	v = clamp(v, -1, 1)
	return radToDeg(math.Asin(v))
}

// NormalizeElevation maps the toolkit's [0,360) elevation convention
// (270..360 meaning "below horizon, negative") onto [-90,90].
func NormalizeElevation(elevationDeg float64) float64 {
	if elevationDeg >= 270 {
		return elevationDeg - 360
	}
	return elevationDeg
}

func degToRad(d float64) float64 { return d * math.Pi / 180 }
func radToDeg(r float64) float64 { return r * 180 / math.Pi }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SphereProjection projects point onto a sphere of the given radius centred
// at origin, returning the projected point. Used to compute the per-ear
// direction for a near source (§4.3 step 1: project source onto a sphere of
// the HRTF measurement distance centred on each ear).
func SphereProjection(origin, point CVector3, radius float64) CVector3 {
	dir := point.Sub(origin)
	norm := dir.Norm()
	if norm < 1e-9 {
		return origin.Add(Vec(0, 0, -radius))
	}
	return origin.Add(dir.Mul(radius / norm))
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b CVector3) float64 {
	return a.Sub(b).Norm()
}
