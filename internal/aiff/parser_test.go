package aiff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestParseSyntheticCapture(t *testing.T) {
	data := synthesizeAIFF(t, 2, 48000, 16, 1000)

	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}

	if c.NumChannels != 2 {
		t.Errorf("Channels: got %d, want 2", c.NumChannels)
	}
	if c.SampleRate < 20000 || c.SampleRate > 200000 {
		t.Errorf("Sample rate out of range: got %v", c.SampleRate)
	}
	if c.BitsPerSample != 16 {
		t.Errorf("Bit depth: got %d, want 16", c.BitsPerSample)
	}
	if c.NumSamples != 1000 {
		t.Errorf("Samples: got %d, want 1000", c.NumSamples)
	}
	if len(c.Data) != c.NumChannels {
		t.Errorf("Data channel count mismatch: got %d, want %d", len(c.Data), c.NumChannels)
	}
	for ch, samples := range c.Data {
		for i, s := range samples {
			if s < -1.0 || s > 1.0 {
				t.Errorf("channel %d sample %d out of range: %v", ch, i, s)
				break
			}
		}
	}
}

func TestParseMonoCapture(t *testing.T) {
	data := synthesizeAIFF(t, 1, 44100, 16, 500)

	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if c.NumChannels != 1 {
		t.Errorf("Channels: got %d, want 1", c.NumChannels)
	}
	if len(c.Data) != 1 {
		t.Errorf("Data channels: got %d, want 1", len(c.Data))
	}
}

func TestParse24BitCapture(t *testing.T) {
	data := synthesizeAIFF(t, 2, 96000, 24, 200)

	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if c.BitsPerSample != 24 {
		t.Errorf("Bit depth: got %d, want 24", c.BitsPerSample)
	}
}

func TestParseRejectsNonAIFF(t *testing.T) {
	data := []byte("RIFF....WAVEfmt ")

	_, err := Parse(bytes.NewReader(data))
	if !errors.Is(err, ErrNotAIFF) {
		t.Errorf("Expected ErrNotAIFF, got %v", err)
	}
}

func TestParseRejectsEmptyFile(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte{}))
	if err == nil {
		t.Error("Expected error for empty file")
	}
}

func TestParseRejectsMissingCOMM(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("FORM")
	binary.Write(&buf, binary.BigEndian, uint32(4))
	buf.WriteString("AIFF")

	_, err := Parse(&buf)
	if err == nil {
		t.Error("Expected error for missing COMM chunk")
	}
}

func TestExtendedToFloat64(t *testing.T) {
	tests := []struct {
		name     string
		bytes    []byte
		expected float64
	}{
		{
			// from a real HRIR measurement file: 0x400E AC44 0000 0000 0000
			name:     "44100 Hz",
			bytes:    []byte{0x40, 0x0E, 0xAC, 0x44, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			expected: 44100,
		},
		{
			name:     "zero",
			bytes:    []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			expected: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := extendedToFloat64(tc.bytes)
			if math.Abs(result-tc.expected) > 0.5 {
				t.Errorf("got %v, want %v", result, tc.expected)
			}
		})
	}
}

func TestCaptureDuration(t *testing.T) {
	c := &Capture{NumSamples: 96000, SampleRate: 48000}

	duration := c.Duration()
	if math.Abs(duration-2.0) > 0.001 {
		t.Errorf("Duration: got %v, want 2.0", duration)
	}
}

// synthesizeAIFF builds a minimal single-direction AIFF capture, standing in
// for a real HRIR measurement file.
func synthesizeAIFF(t *testing.T, channels, sampleRate, bitDepth, numSamples int) []byte {
	t.Helper()

	var buf bytes.Buffer

	bytesPerSample := bitDepth / 8
	audioDataSize := channels * numSamples * bytesPerSample

	commSize := uint32(18)
	ssndSize := uint32(8 + audioDataSize)
	formSize := uint32(4 + 8 + commSize + 8 + ssndSize)

	buf.WriteString("FORM")
	binary.Write(&buf, binary.BigEndian, formSize)
	buf.WriteString("AIFF")

	buf.WriteString("COMM")
	binary.Write(&buf, binary.BigEndian, commSize)
	binary.Write(&buf, binary.BigEndian, uint16(channels))
	binary.Write(&buf, binary.BigEndian, uint32(numSamples))
	binary.Write(&buf, binary.BigEndian, uint16(bitDepth))
	buf.Write(float64ToExtended(float64(sampleRate)))

	buf.WriteString("SSND")
	binary.Write(&buf, binary.BigEndian, ssndSize)
	binary.Write(&buf, binary.BigEndian, uint32(0)) // offset
	binary.Write(&buf, binary.BigEndian, uint32(0)) // block size

	for i := range numSamples {
		sample := math.Sin(2 * math.Pi * 440 * float64(i) / float64(sampleRate))

		for range channels {
			switch bitDepth {
			case 8:
				buf.WriteByte(byte(int8(sample * 127)))
			case 16:
				binary.Write(&buf, binary.BigEndian, int16(sample*32767))
			case 24:
				s := int32(sample * 8388607)
				buf.WriteByte(byte(s >> 16))
				buf.WriteByte(byte(s >> 8))
				buf.WriteByte(byte(s))
			case 32:
				binary.Write(&buf, binary.BigEndian, int32(sample*2147483647))
			}
		}
	}

	return buf.Bytes()
}

// float64ToExtended converts float64 to 80-bit extended precision format.
func float64ToExtended(f float64) []byte {
	result := make([]byte, 10)
	if f == 0 {
		return result
	}

	sign := byte(0)
	if f < 0 {
		sign = 0x80
		f = -f
	}

	mant, exp := math.Frexp(f)
	biasedExp := exp - 1 + 16383

	result[0] = sign | byte((biasedExp>>8)&0x7F)
	result[1] = byte(biasedExp & 0xFF)

	mantissa := uint64(mant * 2 * float64(uint64(1)<<63))
	binary.BigEndian.PutUint64(result[2:], mantissa)

	return result
}
