package hrtf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3dti-go/binaural/geom"
	"github.com/3dti-go/binaural/result"
)

func impulseHRIR(length, onset int, amplitude float32) HRIR {
	l := make([]float32, length)
	r := make([]float32, length)
	if onset < length {
		l[onset] = amplitude
		r[onset] = amplitude
	}
	return HRIR{Left: l, Right: r}
}

// buildSparseStore adds a coarse but complete measurement grid (every 30
// degrees of azimuth, every 30 degrees of elevation from 0 to 60) so
// EndSetup has a convex hull to resample against in every test.
func buildSparseStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(result.NewReporter(), 48000, 64)
	s.SetResamplingStep(10)
	s.BeginSetup(16, 1.95)
	for az := 0; az < 360; az += 30 {
		for el := 0; el <= 60; el += 30 {
			s.AddHRIR(float64(az), float64(el), impulseHRIR(16, 4, 1.0))
		}
	}
	res := s.EndSetup()
	require.Equal(t, result.OK, res.Code)
	return s
}

func TestEndSetupRequiresBeginSetup(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	res := s.EndSetup()
	assert.Equal(t, result.NotAllowed, res.Code)
}

func TestEndSetupEmptyTableReportsNotSet(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	s.BeginSetup(16, 1.95)
	res := s.EndSetup()
	assert.Equal(t, result.NotSet, res.Code)
}

func TestGetHRIRPartitionedBeforeEndSetupReportsNotSet(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	s.BeginSetup(16, 1.95)
	s.AddHRIR(0, 0, impulseHRIR(16, 0, 1))
	_, res := s.GetHRIRPartitioned(geom.EarLeft, 0, 0, true)
	assert.Equal(t, result.NotSet, res.Code)
}

func TestGetHRIRPartitionedRejectsInvalidEar(t *testing.T) {
	s := buildSparseStore(t)
	_, res := s.GetHRIRPartitioned(geom.EarBoth, 0, 0, true)
	assert.Equal(t, result.InvalidParam, res.Code)
}

func TestGetHRIRPartitionedReturnsPoleDirectly(t *testing.T) {
	s := buildSparseStore(t)
	h, res := s.GetHRIRPartitioned(geom.EarLeft, 0, 90, true)
	assert.Equal(t, result.OK, res.Code)
	assert.NotEmpty(t, h.Freq)
}

func TestGetHRIRPartitionedGridSnapWithoutInterpolation(t *testing.T) {
	s := buildSparseStore(t)
	h, res := s.GetHRIRPartitioned(geom.EarRight, 12, 3, false)
	assert.Equal(t, result.OK, res.Code)
	assert.NotEmpty(t, h.Freq)
}

func TestGetHRIRPartitionedInterpolatedMatchesExactOnGridPoint(t *testing.T) {
	s := buildSparseStore(t)
	exact, res1 := s.GetHRIRPartitioned(geom.EarLeft, 0, 0, false)
	interp, res2 := s.GetHRIRPartitioned(geom.EarLeft, 0, 0, true)
	assert.Equal(t, result.OK, res1.Code)
	assert.Equal(t, result.OK, res2.Code)
	assert.Equal(t, exact.Delay, interp.Delay)
}

func TestGetCustomizedDelaySignFlipsBetweenEars(t *testing.T) {
	s := buildSparseStore(t)
	s.SetHeadRadius(0.0875)
	left, _ := s.GetCustomizedDelay(geom.EarLeft, 90, 0)
	right, _ := s.GetCustomizedDelay(geom.EarRight, 90, 0)
	assert.NotEqual(t, left, right)
}

func TestAddHRIRRejectsWrongLength(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	s.BeginSetup(16, 1.95)
	s.AddHRIR(0, 0, impulseHRIR(8, 0, 1))
	assert.Empty(t, s.raw)
}
