package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3dti-go/binaural/audio"
	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/hlsim"
	"github.com/3dti-go/binaural/hrtf"
)

func impulseHRIR(length, onset int, amplitude float32) hrtf.HRIR {
	l := make([]float32, length)
	r := make([]float32, length)
	if onset < length {
		l[onset] = amplitude
		r[onset] = amplitude
	}
	return hrtf.HRIR{Left: l, Right: r}
}

func fillSparseGrid(store *hrtf.Store) {
	store.BeginSetup(16, 1.95)
	for az := 0; az < 360; az += 30 {
		for el := 0; el <= 60; el += 30 {
			store.AddHRIR(float64(az), float64(el), impulseHRIR(16, 4, 1.0))
		}
	}
	store.EndSetup()
}

func newTestCore(t *testing.T) (*Core, *Listener) {
	t.Helper()
	c := New(nil, nil)
	require.NoError(t, c.SetAudioState(audio.State{SampleRate: 48000, BlockSize: 64}))
	l, err := c.CreateListener(0.0875)
	require.NoError(t, err)
	l.HRTF().SetResamplingStep(10)
	fillSparseGrid(l.HRTF())
	require.True(t, l.HRTF().Ready())
	return c, l
}

func TestProcessAllBeforeListenerReportsNotInitialized(t *testing.T) {
	c := New(nil, nil)
	require.NoError(t, c.SetAudioState(audio.State{SampleRate: 48000, BlockSize: 64}))
	out := audio.NewStereoBuffer(64)
	res := c.ProcessAll(out)
	assert.NotEqual(t, 0, int(res.Code)) // NotInitialized, not OK
}

func TestCreateSingleSourceDSPRegistersSource(t *testing.T) {
	c, _ := newTestCore(t)
	src, id, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)
	require.NotNil(t, src)
	assert.GreaterOrEqual(t, id, 0)
}

func TestProcessAllWithoutReadySourceProducesSilence(t *testing.T) {
	c, _ := newTestCore(t)
	_, _, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)

	out := audio.NewStereoBuffer(64)
	res := c.ProcessAll(out)
	require.Equal(t, 0, int(res.Code))
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestProcessAllWithReadySourceProducesNonZeroOutput(t *testing.T) {
	c, l := newTestCore(t)
	src, _, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)

	src.SetSourceTransform(geom.NewTransform(geom.Vec(1, 0, 0)))
	in := make(audio.MonoBuffer, 64)
	for i := range in {
		in[i] = 1
	}
	src.SetBuffer(in)
	_ = l

	out := audio.NewStereoBuffer(64)
	res := c.ProcessAll(out)
	require.Equal(t, 0, int(res.Code))

	nonZero := false
	for _, v := range out {
		if v != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
}

func TestProcessAllRejectsWrongOutputSize(t *testing.T) {
	c, _ := newTestCore(t)
	out := audio.NewStereoBuffer(32)
	res := c.ProcessAll(out)
	assert.NotEqual(t, 0, int(res.Code))
}

func TestRemoveSourceUnregistersIt(t *testing.T) {
	c, _ := newTestCore(t)
	_, id, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)
	c.RemoveSource(id)
	_, ok := c.sources[id]
	assert.False(t, ok)
}

func TestActiveSourceCountTracksRegistration(t *testing.T) {
	c, _ := newTestCore(t)
	assert.Equal(t, 0, c.ActiveSourceCount())

	_, id, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)
	assert.Equal(t, 1, c.ActiveSourceCount())

	c.RemoveSource(id)
	assert.Equal(t, 0, c.ActiveSourceCount())
}

func TestActiveImageCountIsZeroWithoutRoom(t *testing.T) {
	c, _ := newTestCore(t)
	assert.Equal(t, 0, c.ActiveImageCount())
}

func TestProcessAllSucceedsWithHearingLossSimulatorSet(t *testing.T) {
	c, _ := newTestCore(t)
	src, _, err := c.CreateSingleSourceDSP(16)
	require.NoError(t, err)
	src.SetSourceTransform(geom.NewTransform(geom.Vec(1, 0, 0)))
	in := make(audio.MonoBuffer, 64)
	for i := range in {
		in[i] = 1
	}
	src.SetBuffer(in)

	sim, err := hlsim.New(48000, 64, geom.EarPair[hlsim.Config]{
		Left:  hlsim.Config{ExpanderEnabled: false},
		Right: hlsim.Config{ExpanderEnabled: false},
	})
	require.NoError(t, err)
	c.SetHearingLossSimulator(sim)

	out := audio.NewStereoBuffer(64)
	res := c.ProcessAll(out)
	assert.Equal(t, 0, int(res.Code))
}
