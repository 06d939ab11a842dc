package hrtf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3dti-go/binaural/result"
)

// TestEndSetupResamplesWhenNativeRateDiffers exercises the setup-time
// resample path SetNativeSampleRate/resampleToTargetRate adds to EndSetup:
// a table captured at 96 kHz loaded into a store built for a 48 kHz
// AudioState should come out partitioned at half the captured length.
func TestEndSetupResamplesWhenNativeRateDiffers(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	s.SetResamplingStep(30)
	s.SetNativeSampleRate(96000)

	const nativeLength = 32
	s.BeginSetup(nativeLength, 1.95)
	for az := 0; az < 360; az += 30 {
		for el := 0; el <= 60; el += 30 {
			s.AddHRIR(float64(az), float64(el), impulseHRIR(nativeLength, 4, 1.0))
		}
	}

	res := s.EndSetup()
	require.Equal(t, result.OK, res.Code)
	assert.Equal(t, nativeLength/2, s.hrirLength)
}

// TestEndSetupSkipsResampleWhenNativeRateUnset confirms the default
// (nativeSampleRate unset) leaves hrirLength untouched.
func TestEndSetupSkipsResampleWhenNativeRateUnset(t *testing.T) {
	s := NewStore(result.NewReporter(), 48000, 64)
	s.SetResamplingStep(30)

	const length = 16
	s.BeginSetup(length, 1.95)
	for az := 0; az < 360; az += 30 {
		for el := 0; el <= 60; el += 30 {
			s.AddHRIR(float64(az), float64(el), impulseHRIR(length, 4, 1.0))
		}
	}

	res := s.EndSetup()
	require.Equal(t, result.OK, res.Code)
	assert.Equal(t, length, s.hrirLength)
}
