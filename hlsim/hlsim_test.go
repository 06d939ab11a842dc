package hlsim

import (
	"math"
	"testing"

	"github.com/3dti-go/binaural/geom"
	"github.com/stretchr/testify/require"
)

func TestComputeBandParams_ZeroLossIsTransparent(t *testing.T) {
	p := ComputeBandParams(0, defaultT100, defaultA100)
	require.InDelta(t, defaultT100-defaultA100, p.ThresholdDB, 1e-9)
	require.InDelta(t, 0, p.AttenuationDB, 1e-9)
}

func TestComputeBandParams_FullLossClampsThreshold(t *testing.T) {
	p := ComputeBandParams(100, defaultT100, defaultA100)
	require.LessOrEqual(t, p.ThresholdDB, 120.0)
	require.InDelta(t, defaultA100, p.AttenuationDB, 1e-9)
}

func TestComputeBandParams_AboveHundredClampsRatioInput(t *testing.T) {
	p1 := ComputeBandParams(100, defaultT100, defaultA100)
	p2 := ComputeBandParams(150, defaultT100, defaultA100)
	require.InDelta(t, p1.Ratio, p2.Ratio, 1e-9)
}

func TestInterpolatedParamsAt_MatchesBandCenter(t *testing.T) {
	var params [BandCount]BandParams
	for i := 0; i < BandCount; i++ {
		params[i] = ComputeBandParams(float64(i)*10, defaultT100, defaultA100)
	}
	centers := BandCenters()
	got := InterpolatedParamsAt(centers[3], params)
	require.InDelta(t, params[3].ThresholdDB, got.ThresholdDB, 1e-9)
}

func TestExpander_ZeroAudiogramProducesNoNaN(t *testing.T) {
	var ag Audiogram
	e := NewExpander(44100, ag)
	buf := make([]float32, 256)
	for i := range buf {
		buf[i] = 0.5
	}
	e.ProcessBlock(buf)
	var sum float64
	for _, v := range buf {
		sum += float64(v)
	}
	require.False(t, math.IsNaN(sum))
}

func TestButterworthSplit_SumApproximatesInputAtDC(t *testing.T) {
	s := newButterworthSplit(44100, JitterCutoffHz)
	var low, high float32
	for i := 0; i < 2000; i++ {
		l, h := s.processSample(1)
		low, high = l, h
	}
	require.InDelta(t, 1.0, float64(low+high), 0.2)
}

func TestSmearingMatrix_IdentityWhenBroadeningIsOne(t *testing.T) {
	m := BuildSmearingMatrix(17, 64, 44100, 1.0, 1.0)
	rows, cols := m.Dims()
	require.Equal(t, rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			require.InDelta(t, want, m.At(i, j), 0.15)
		}
	}
}

func TestClassicSmearer_NoNaNOutput(t *testing.T) {
	sm, err := NewClassicSmearer(44100, 64, 2, 2)
	require.NoError(t, err)
	buf := make([]float32, 64)
	for i := range buf {
		buf[i] = float32(math.Sin(float64(i)))
	}
	sm.ProcessBlock(buf)
	for _, v := range buf {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestSimulator_PassthroughWhenAllBypassed(t *testing.T) {
	sim, err := New(44100, 64, geom.EarPair[Config]{Left: Config{}, Right: Config{}})
	require.NoError(t, err)
	buf := make([]float32, 64)
	want := make([]float32, 64)
	for i := range buf {
		buf[i] = float32(i) / 64
		want[i] = buf[i]
	}
	r := make([]float32, 64)
	copy(r, buf)
	sim.ProcessBlock(buf, r)
	require.Equal(t, want, buf)
	require.Equal(t, want, r)
}
