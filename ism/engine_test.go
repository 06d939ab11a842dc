package ism

import (
	"testing"

	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState() audio.State {
	return audio.State{SampleRate: 48000, BlockSize: 128}
}

func TestBuildImagesFirstOrderProducesOneImagePerActiveWall(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 1, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	assert.Equal(t, 6, e.ImageCount(0))
}

func TestBuildImagesRespectsMaxDistanceCutoff(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 1, 0.1)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	assert.Equal(t, 0, e.ImageCount(0))
}

func TestBuildImagesSecondOrderGrowsTree(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 2, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	assert.Greater(t, e.ImageCount(0), 6)
}

func TestDisabledWallProducesNoImage(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	for i := range r.Walls {
		r.DisableWall(i)
	}
	e := NewEngine(nil, testState(), r, 1, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	assert.Equal(t, 0, e.ImageCount(0))
}

func TestProcessBlockSilencesNewlyBornImageForItsDelay(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 1, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))

	in := make(audio.MonoBuffer, 128)
	for i := range in {
		in[i] = 1
	}

	var out []VirtualSource
	// Every image with a nonzero extra path should start silent: none of
	// its processed output should be emitted on the very first block.
	nSilent := 0
	for _, img := range e.trees[0].Nodes {
		if img.silenceFrames > 0 {
			nSilent++
		}
	}
	require.Greater(t, nSilent, 0)

	out = e.ProcessBlock(0, in, out[:0])
	assert.LessOrEqual(t, len(out), e.ImageCount(0))
}

func TestUpdateVisibilityRunsWithoutRebuildingGeometry(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 1, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	before := e.ImageCount(0)
	e.UpdateVisibility(0, geom.Vec(1, 0, 3))
	assert.Equal(t, before, e.ImageCount(0))
}

func TestRemoveSourceClearsTree(t *testing.T) {
	r := NewRoom()
	r.SetupShoeBox(10, 10, 4)
	e := NewEngine(nil, testState(), r, 1, 100)
	e.BuildImages(0, geom.Vec(0, 0, 0), geom.Vec(0, 0, 3))
	e.RemoveSource(0)
	assert.Equal(t, 0, e.ImageCount(0))
}
