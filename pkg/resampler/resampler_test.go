package resampler

import (
	"math"
	"testing"
)

func TestResampleEmptyInput(t *testing.T) {
	t.Parallel()

	r := New()

	result, err := r.Resample([]float32{}, 48000, 44100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %d samples", len(result))
	}
}

func TestResampleIdentityRatio(t *testing.T) {
	t.Parallel()

	r := New()
	input := []float32{1.0, 2.0, 3.0, 4.0, 5.0, 6.0, 7.0, 8.0}

	result, err := r.Resample(input, 48000, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != len(input) {
		t.Errorf("expected length %d, got %d", len(input), len(result))
	}
	for i := range input {
		if result[i] != input[i] {
			t.Errorf("at index %d: expected %f, got %f", i, input[i], result[i])
		}
	}
}

// TestResampleHRIRNativeRates exercises the conversions hrtf.Store.EndSetup
// actually performs: a measured HRIR table captured at 44.1/96 kHz resampled
// to a 48 kHz AudioState, and the reverse.
func TestResampleHRIRNativeRates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		srcRate float64
		dstRate float64
	}{
		{"44100 to 48000", 44100, 48000},
		{"96000 to 48000", 96000, 48000},
		{"48000 to 44100", 48000, 44100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := New()
			inputLen := 512
			input := make([]float32, inputLen)
			for i := range input {
				input[i] = float32(math.Sin(2 * math.Pi * float64(i) / float64(inputLen)))
			}

			result, err := r.Resample(input, tt.srcRate, tt.dstRate)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			expectedLen := CalculateOutputLength(inputLen, tt.srcRate, tt.dstRate)
			if abs(len(result)-expectedLen) > 1 {
				t.Errorf("expected length ~%d, got %d", expectedLen, len(result))
			}
		})
	}
}

func TestResamplePreservesLowFrequencyContent(t *testing.T) {
	t.Parallel()

	r := New()

	srcRate := 88200.0
	dstRate := 48000.0
	frequency := 100.0
	duration := 0.1
	inputLen := int(srcRate * duration)

	input := make([]float32, inputLen)
	for i := range input {
		tSec := float64(i) / srcRate
		input[i] = float32(math.Sin(2 * math.Pi * frequency * tSec))
	}

	result, err := r.Resample(input, srcRate, dstRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedCrossings := int(2 * frequency * duration)
	actualCrossings := countZeroCrossings(result)

	tolerance := expectedCrossings / 5
	if tolerance < 2 {
		tolerance = 2
	}
	if abs(actualCrossings-expectedCrossings) > tolerance {
		t.Errorf("expected ~%d zero crossings, got %d", expectedCrossings, actualCrossings)
	}
}

func TestResampleEarPair(t *testing.T) {
	t.Parallel()

	r := New()
	inputLen := 512

	earPair := make([][]float32, 2)
	for ch := range earPair {
		earPair[ch] = make([]float32, inputLen)
		phase := float64(ch) * math.Pi / 2
		for i := range earPair[ch] {
			earPair[ch][i] = float32(math.Sin(2*math.Pi*float64(i)/float64(inputLen) + phase))
		}
	}

	result, err := r.ResampleEarPair(earPair, 88200, 48000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected a Left/Right pair, got %d channels", len(result))
	}

	expectedLen := CalculateOutputLength(inputLen, 88200, 48000)
	for ch := range result {
		if abs(len(result[ch])-expectedLen) > 1 {
			t.Errorf("channel %d: expected length ~%d, got %d", ch, expectedLen, len(result[ch]))
		}
	}
}

func TestResampleEarPairEmpty(t *testing.T) {
	t.Parallel()

	r := New()

	result, err := r.ResampleEarPair([][]float32{}, 48000, 44100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected empty result, got %d channels", len(result))
	}
}

func TestCalculateOutputLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		inputLen int
		srcRate  float64
		dstRate  float64
		expected int
	}{
		{1000, 48000, 48000, 1000}, // no change
		{1000, 96000, 48000, 500},  // downsample 2x
		{1000, 44100, 88200, 2000}, // upsample 2x
		{8820, 88200, 48000, 4800}, // measured HRIR rate to playback rate
		{0, 48000, 44100, 0},       // empty
		{100, 44100, 48000, 109},   // arbitrary ratio
	}

	for _, tt := range tests {
		result := CalculateOutputLength(tt.inputLen, tt.srcRate, tt.dstRate)
		if result != tt.expected {
			t.Errorf("CalculateOutputLength(%d, %f, %f) = %d, want %d",
				tt.inputLen, tt.srcRate, tt.dstRate, result, tt.expected)
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func countZeroCrossings(data []float32) int {
	if len(data) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(data); i++ {
		if (data[i-1] >= 0 && data[i] < 0) || (data[i-1] < 0 && data[i] >= 0) {
			crossings++
		}
	}
	return crossings
}
