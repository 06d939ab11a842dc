package hasim

import (
	"math"
	"testing"

	"github.com/3dti-go/binaural/geom"
	"github.com/stretchr/testify/require"
)

func TestFig6Gain_ZeroThresholdHasNoGain(t *testing.T) {
	for lvl := 0; lvl < 3; lvl++ {
		require.InDelta(t, 0, Fig6Gain(0, lvl), 1e-9)
		require.InDelta(t, 0, Fig6Gain(20, lvl), 1e-9)
	}
}

func TestFig6Gain_SoftGainsExceedLoudGains(t *testing.T) {
	soft := Fig6Gain(80, 0)
	loud := Fig6Gain(80, 2)
	require.Greater(t, soft, loud)
}

func TestFig6LevelCurves_CentralCurveIsSlotZero(t *testing.T) {
	var ag [9]float64
	for i := range ag {
		ag[i] = 60
	}
	curves := Fig6LevelCurves(ag)
	want := Fig6Gain(60, 1) // natural level index 1 = 65 dB SPL, the central curve
	require.InDelta(t, want, curves[0][0], 1e-9)
}

func TestQuantizer_ClipsAndQuantizes(t *testing.T) {
	q := NewQuantizer(4)
	require.LessOrEqual(t, q.ProcessSample(5), float32(1.0))
	require.GreaterOrEqual(t, q.ProcessSample(-5), float32(-1.0))
}

func TestQuantizer_ZeroBitsIsIdentity(t *testing.T) {
	q := NewQuantizer(0)
	require.Equal(t, float32(0.37), q.ProcessSample(0.37))
}

func TestDynamicEQ_NoNaNOutput(t *testing.T) {
	eq := NewDynamicEQ(44100, 62.5, 1, 9, 5, 50, 100)
	buf := make([]float32, 128)
	for i := range buf {
		buf[i] = float32(math.Sin(float64(i) * 0.1))
	}
	eq.ProcessBlock(buf)
	for _, v := range buf {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestSimulator_RunsBothEars(t *testing.T) {
	cfg := Config{BandCount: 9, IniFreqHz: 62.5, OctaveBandStep: 1, AttackMs: 5, ReleaseMs: 50, CalibrationSPL: 100}
	sim := New(44100, geom.EarPair[Config]{Left: cfg, Right: cfg})
	l := make([]float32, 64)
	r := make([]float32, 64)
	for i := range l {
		l[i] = 0.1
		r[i] = 0.1
	}
	sim.ProcessBlock(l, r)
	for i := range l {
		require.False(t, math.IsNaN(float64(l[i])))
		require.False(t, math.IsNaN(float64(r[i])))
	}
}

func TestNormalizationOffset_NeverPositive(t *testing.T) {
	var ag [9]float64
	for i := range ag {
		ag[i] = 90
	}
	cfg := Config{Audiogram: ag, NormalizeEnabled: true, NormalizeRefDBFS: 200}
	e := newEarChain(44100, cfg)
	require.LessOrEqual(t, e.normalizationOffset(9), 0.0)
}
