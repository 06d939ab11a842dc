package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestAzimuthElevationOfForwardIsZero(t *testing.T) {
	az, el := LocalAzimuthElevation(Vec(0, 0, -1))
	assert.InDelta(t, 0, az, 1e-9)
	assert.InDelta(t, 0, el, 1e-9)
}

func TestAzimuthElevationOfRightIsNinety(t *testing.T) {
	az, _ := LocalAzimuthElevation(Vec(1, 0, 0))
	assert.InDelta(t, 90, az, 1e-9)
}

func TestAzimuthElevationOfUpIsNinety(t *testing.T) {
	// Elevations above the horizon stay in [0,90]; only elevations below the
	// horizon wrap into the toolkit's [270,360) convention (NormalizeElevation).
	_, el := LocalAzimuthElevation(Vec(0, 1, 0))
	assert.InDelta(t, 90, el, 1e-9)
}

func TestAzimuthElevationOfDownWrapsIntoToolkitRange(t *testing.T) {
	_, el := LocalAzimuthElevation(Vec(0, -1, 0))
	assert.InDelta(t, 270, el, 1e-9)
}

func TestNormalizeElevationFoldsBelowHorizon(t *testing.T) {
	assert.InDelta(t, -10, NormalizeElevation(350), 1e-9)
	assert.InDelta(t, -90, NormalizeElevation(270), 1e-9)
	assert.InDelta(t, 45, NormalizeElevation(45), 1e-9)
}

func TestInterauralAzimuthAtBroadside(t *testing.T) {
	assert.InDelta(t, 90, InterauralAzimuth(90, 0), 1e-6)
	assert.InDelta(t, -90, InterauralAzimuth(270, 0), 1e-6)
	assert.InDelta(t, 0, InterauralAzimuth(0, 0), 1e-6)
}

func TestQuaternionIdentityRotationIsNoOp(t *testing.T) {
	v := Vec(1, 2, 3)
	assert.Equal(t, v, IdentityOrientation.Rotate(v))
}

// TestQuaternionRotationPreservesNorm checks that an arbitrary unit
// quaternion rotation is an isometry, the property every orientation
// transform in the anechoic/ambisonic encode path (§4.3, §4.4) relies on.
func TestQuaternionRotationPreservesNorm(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		angle := rapid.Float64Range(0, 2*math.Pi).Draw(t, "angle")
		// rotation about +Y
		q := Quaternion{X: 0, Y: math.Sin(angle / 2), Z: 0, W: math.Cos(angle / 2)}

		x := rapid.Float64Range(-10, 10).Draw(t, "x")
		y := rapid.Float64Range(-10, 10).Draw(t, "y")
		z := rapid.Float64Range(-10, 10).Draw(t, "z")
		v := Vec(x, y, z)

		rotated := q.Rotate(v)
		assert.InDelta(t, v.Norm(), rotated.Norm(), 1e-6)
	})
}

func TestQuaternionInverseUndoesRotation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		angle := rapid.Float64Range(0, 2*math.Pi).Draw(t, "angle")
		q := Quaternion{X: 0, Y: math.Sin(angle / 2), Z: 0, W: math.Cos(angle / 2)}

		v := Vec(
			rapid.Float64Range(-5, 5).Draw(t, "x"),
			rapid.Float64Range(-5, 5).Draw(t, "y"),
			rapid.Float64Range(-5, 5).Draw(t, "z"),
		)

		back := q.Inverse().Rotate(q.Rotate(v))
		assert.InDelta(t, v.X, back.X, 1e-6)
		assert.InDelta(t, v.Y, back.Y, 1e-6)
		assert.InDelta(t, v.Z, back.Z, 1e-6)
	})
}

func TestSphereProjectionLandsOnSphere(t *testing.T) {
	origin := Vec(0, 0, 0)
	p := SphereProjection(origin, Vec(10, 0, 0), 2)
	assert.InDelta(t, 2, Distance(origin, p), 1e-9)
	assert.InDelta(t, 2, p.X, 1e-9)
}

func TestEarPairGetSet(t *testing.T) {
	var p EarPair[float32]
	p.Set(EarLeft, 1)
	p.Set(EarRight, 2)
	assert.Equal(t, float32(1), p.Get(EarLeft))
	assert.Equal(t, float32(2), p.Get(EarRight))
}
