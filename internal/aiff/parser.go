// Package aiff parses the AIFF/AIFF-C captures cmd/hrir-tool's build step
// ingests: a researcher's raw HRIR/BRIR measurement files, one direction per
// file, converted into an .irlib entry before hrtf.Store ever sees them.
//
// Supports:
//   - Standard AIFF files (uncompressed PCM)
//   - 8-bit, 16-bit, 24-bit, and 32-bit sample depths
//   - Mono and stereo channels
//
// AIFF-C files using an actual compression codec are not supported; only the
// uncompressed "NONE"/"sowt" AIFF-C variants are accepted.
package aiff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Errors.
var (
	ErrNotAIFF           = errors.New("aiff: not an AIFF file")
	ErrUnsupportedFormat = errors.New("aiff: unsupported format")
	ErrInvalidFile       = errors.New("aiff: invalid file structure")
	ErrMissingChunk      = errors.New("aiff: missing required chunk")
)

// Capture is one parsed AIFF measurement: a single direction's HRIR/BRIR, or
// a reverb-chamber recording, decoded to float32 PCM.
type Capture struct {
	NumChannels   int
	SampleRate    float64
	BitsPerSample int
	NumSamples    int

	// Data is organized as [channel][sample], each sample in [-1.0, 1.0].
	Data [][]float32
}

// Parse reads and decodes one AIFF/AIFF-C capture from r.
func Parse(r io.Reader) (*Capture, error) {
	var formHeader [12]byte
	if _, err := io.ReadFull(r, formHeader[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if string(formHeader[0:4]) != "FORM" {
		return nil, ErrNotAIFF
	}

	formType := string(formHeader[8:12])
	if formType != "AIFF" && formType != "AIFC" {
		return nil, ErrNotAIFF
	}

	capture := &Capture{}
	var commFound, ssndFound bool
	var ssndData []byte

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.BigEndian.Uint32(chunkHeader[4:8])

		paddedSize := chunkSize
		if paddedSize%2 != 0 {
			paddedSize++
		}

		switch chunkID {
		case "COMM":
			if err := capture.parseCOMM(r, chunkSize, formType); err != nil {
				return nil, err
			}
			commFound = true
			if chunkSize%2 != 0 {
				_, _ = io.ReadFull(r, make([]byte, 1))
			}

		case "SSND":
			var err error
			ssndData, err = capture.parseSSND(r, chunkSize)
			if err != nil {
				return nil, err
			}
			ssndFound = true
			if chunkSize%2 != 0 {
				_, _ = io.ReadFull(r, make([]byte, 1))
			}

		default:
			if _, err := io.CopyN(io.Discard, r, int64(paddedSize)); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("%w: failed to skip chunk %s: %w", ErrInvalidFile, chunkID, err)
			}
		}
	}

	if !commFound {
		return nil, fmt.Errorf("%w: COMM chunk", ErrMissingChunk)
	}
	if !ssndFound {
		return nil, fmt.Errorf("%w: SSND chunk", ErrMissingChunk)
	}

	if err := capture.decodeAudio(ssndData); err != nil {
		return nil, err
	}
	return capture, nil
}

// parseCOMM parses the COMM (Common) chunk.
func (c *Capture) parseCOMM(r io.Reader, size uint32, formType string) error {
	if size < 18 {
		return fmt.Errorf("%w: COMM chunk too small", ErrInvalidFile)
	}

	var comm [18]byte
	if _, err := io.ReadFull(r, comm[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}

	c.NumChannels = int(binary.BigEndian.Uint16(comm[0:2]))
	c.NumSamples = int(binary.BigEndian.Uint32(comm[2:6]))
	c.BitsPerSample = int(binary.BigEndian.Uint16(comm[6:8]))
	c.SampleRate = extendedToFloat64(comm[8:18])

	if c.NumChannels < 1 || c.NumChannels > 8 {
		return fmt.Errorf("%w: unsupported channel count %d", ErrUnsupportedFormat, c.NumChannels)
	}
	if c.BitsPerSample != 8 && c.BitsPerSample != 16 && c.BitsPerSample != 24 && c.BitsPerSample != 32 {
		return fmt.Errorf("%w: unsupported bit depth %d", ErrUnsupportedFormat, c.BitsPerSample)
	}
	if c.SampleRate <= 0 || c.SampleRate > 384000 {
		return fmt.Errorf("%w: invalid sample rate %v", ErrUnsupportedFormat, c.SampleRate)
	}

	if formType == "AIFC" && size > 18 {
		remaining := size - 18
		comprData := make([]byte, remaining)
		if _, err := io.ReadFull(r, comprData); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
		if len(comprData) >= 4 {
			comprType := string(comprData[0:4])
			if comprType != "NONE" && comprType != "none" && comprType != "sowt" {
				return fmt.Errorf("%w: AIFC compression type %q not supported", ErrUnsupportedFormat, comprType)
			}
		}
	} else if size > 18 {
		_, _ = io.CopyN(io.Discard, r, int64(size-18))
	}

	return nil
}

// parseSSND parses the SSND (Sound Data) chunk and returns raw audio bytes.
func (c *Capture) parseSSND(r io.Reader, size uint32) ([]byte, error) {
	if size < 8 {
		return nil, fmt.Errorf("%w: SSND chunk too small", ErrInvalidFile)
	}

	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	offset := binary.BigEndian.Uint32(header[0:4])

	if offset > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(offset)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
		}
	}

	dataSize := size - 8 - offset
	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	return data, nil
}

// decodeAudio converts raw PCM bytes to float32 audio data.
func (c *Capture) decodeAudio(data []byte) error {
	bytesPerSample := c.BitsPerSample / 8
	frameSize := bytesPerSample * c.NumChannels
	numFrames := len(data) / frameSize

	if numFrames < c.NumSamples {
		c.NumSamples = numFrames
	}

	c.Data = make([][]float32, c.NumChannels)
	for ch := range c.Data {
		c.Data[ch] = make([]float32, c.NumSamples)
	}

	offset := 0
	for frame := range c.NumSamples {
		for ch := range c.NumChannels {
			var sample float32

			switch c.BitsPerSample {
			case 8:
				s := int8(data[offset])
				sample = float32(s) / 128.0
				offset++

			case 16:
				s := int16(binary.BigEndian.Uint16(data[offset : offset+2]))
				sample = float32(s) / 32768.0
				offset += 2

			case 24:
				b0, b1, b2 := data[offset], data[offset+1], data[offset+2] //nolint:varnamelen // b0-b2 are idiomatic for byte components
				var s int32
				if b0&0x80 != 0 {
					s = -1<<24 | int32(b0)<<16 | int32(b1)<<8 | int32(b2)
				} else {
					s = int32(b0)<<16 | int32(b1)<<8 | int32(b2)
				}
				sample = float32(s) / 8388608.0
				offset += 3

			case 32:
				s := int32(binary.BigEndian.Uint32(data[offset : offset+4]))
				sample = float32(s) / 2147483648.0
				offset += 4
			}

			c.Data[ch][frame] = sample
		}
	}

	return nil
}

// extendedToFloat64 converts an 80-bit IEEE 754 extended precision float to
// float64. AIFF stores the sample rate in this format (10 bytes).
func extendedToFloat64(byteBuffer []byte) float64 {
	if len(byteBuffer) != 10 {
		return 0
	}

	sign := (byteBuffer[0] >> 7) & 1
	exponent := int(binary.BigEndian.Uint16(byteBuffer[0:2])) & 0x7FFF
	mantissa := binary.BigEndian.Uint64(byteBuffer[2:10])

	if exponent == 0 {
		return 0 // zero, or a denormal (not used for sample rates)
	}
	if exponent == 0x7FFF {
		return math.Inf(1)
	}

	// Extended precision has an explicit integer bit; float64's is implicit.
	// Bias: extended = 16383, double = 1023.
	fval := float64(mantissa) / float64(1<<63)
	fval = math.Ldexp(fval, exponent-16383)
	if sign == 1 {
		fval = -fval
	}
	return fval
}

// Duration returns the capture's length in seconds.
func (c *Capture) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.NumSamples) / c.SampleRate
}
