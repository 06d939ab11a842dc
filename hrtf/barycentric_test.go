package hrtf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBarycentricWeightsSumToOne(t *testing.T) {
	w, ok := barycentric(2, 2, 0, 0, 5, 0, 0, 5)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, w.alpha+w.beta+w.gamma, 1e-9)
}

func TestBarycentricDegenerateTriangleRejected(t *testing.T) {
	_, ok := barycentric(1, 1, 0, 0, 5, 0, 10, 0)
	assert.False(t, ok)
}

func TestBarycentricVertexWeightsAreOneHot(t *testing.T) {
	w, ok := barycentric(0, 0, 0, 0, 5, 0, 0, 5)
	assert.True(t, ok)
	assert.InDelta(t, 1.0, w.alpha, 1e-9)
	assert.InDelta(t, 0.0, w.beta, 1e-9)
	assert.InDelta(t, 0.0, w.gamma, 1e-9)
}

func TestSectorIndexBoundaryInclusiveLowExclusiveHigh(t *testing.T) {
	border := 90 // ceil(360/NUMBER_OF_PARTS) with NUMBER_OF_PARTS=4
	assert.Equal(t, 0, sectorIndex(0, border))
	assert.Equal(t, 0, sectorIndex(89, border))
	assert.Equal(t, 1, sectorIndex(90, border))
	assert.Equal(t, 1, sectorIndex(179, border))
	assert.Equal(t, 2, sectorIndex(180, border))
	assert.Equal(t, 3, sectorIndex(359, border))
}

func TestAngularDistanceWrapsAcrossZero(t *testing.T) {
	a := orientation{Azimuth: 359, Elevation: 0}
	b := orientation{Azimuth: 1, Elevation: 0}
	assert.InDelta(t, 2.0, angularDistance(a, b), 1e-9)
}
