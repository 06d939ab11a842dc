package ism

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupShoeBoxBuildsSixWalls(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(4, 3, 2.5)
	require.Len(t, r.Walls, 6)
	for _, w := range r.Walls {
		assert.True(t, w.Active)
		assert.Len(t, w.Vertices, 4)
	}
}

func TestEnableDisableWall(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(4, 3, 2.5)
	r.DisableWall(0)
	assert.False(t, r.Walls[0].Active)
	r.EnableWall(0)
	assert.True(t, r.Walls[0].Active)
}

func TestMirroredRoomPreservesWallCount(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(4, 3, 2.5)
	m := r.Mirrored(0)
	assert.Len(t, m.Walls, len(r.Walls))
}

func TestSetWallAbsorptionAppliesToTargetWallOnly(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(4, 3, 2.5)
	bands := make([]float64, 9)
	for i := range bands {
		bands[i] = 0.5
	}
	r.SetWallAbsorption(1, bands)
	assert.Equal(t, 0.5, r.Walls[1].Absorption[0])
	assert.NotEqual(t, 0.5, r.Walls[0].Absorption[0])
}
