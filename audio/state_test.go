package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateValidate(t *testing.T) {
	assert.NoError(t, State{SampleRate: 48000, BlockSize: 512}.Validate())
	assert.Error(t, State{SampleRate: 0, BlockSize: 512}.Validate())
	assert.Error(t, State{SampleRate: 48000, BlockSize: 0}.Validate())
	assert.Error(t, State{SampleRate: 48000, BlockSize: 513}.Validate())
}

func TestInterleaveDeinterleaveRoundTrip(t *testing.T) {
	l := MonoBuffer{1, 2, 3, 4}
	r := MonoBuffer{-1, -2, -3, -4}
	stereo := NewStereoBuffer(4)
	Interleave(stereo, l, r)

	assert.Equal(t, StereoBuffer{1, -1, 2, -2, 3, -3, 4, -4}, stereo)

	gotL, gotR := stereo.Deinterleave(nil, nil)
	assert.Equal(t, l, gotL)
	assert.Equal(t, r, gotR)
}

func TestMonoBufferAddAndScale(t *testing.T) {
	m := MonoBuffer{1, 2, 3}
	m.Add(MonoBuffer{10, 20, 30})
	assert.Equal(t, MonoBuffer{11, 22, 33}, m)

	m.Scale(2)
	assert.Equal(t, MonoBuffer{22, 44, 66}, m)
}

func TestZeroClearsInPlaceWithoutReallocating(t *testing.T) {
	m := make(MonoBuffer, 4)
	for i := range m {
		m[i] = float32(i + 1)
	}
	backing := &m[0]
	m.Zero()
	assert.Equal(t, MonoBuffer{0, 0, 0, 0}, m)
	assert.Same(t, backing, &m[0])

	s := StereoBuffer{1, 2, 3, 4}
	s.Zero()
	assert.Equal(t, StereoBuffer{0, 0, 0, 0}, s)
}
