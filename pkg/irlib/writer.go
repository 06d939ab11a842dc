package irlib

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/3dti-go/binaural/pkg/f16"
)

// Writer serializes impulse responses to an .irlib file. The index chunk
// records every IR's byte offset so a later Reader can jump straight to one
// entry instead of decoding the whole file, which matters once a library
// holds a full measurement grid (thousands of directions).
type Writer struct {
	dst        io.WriteSeeker
	irCount    uint32
	irOffsets  []uint64
	irMetas    []IRMetadata
	currentPos uint64
}

// NewWriter creates a Writer over dst, which must support seeking so Close
// can patch the header's index-offset field after the index is written.
func NewWriter(dst io.WriteSeeker) *Writer {
	return &Writer{dst: dst}
}

// WriteHeader writes the file header and records irCount for the index
// chunk. Must be called exactly once, before any WriteIR call.
func (w *Writer) WriteHeader(irCount int) error {
	w.irCount = uint32(irCount)

	if _, err := w.dst.Write([]byte(MagicNumber)); err != nil {
		return fmt.Errorf("irlib: writing magic number: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, CurrentVersion); err != nil {
		return fmt.Errorf("irlib: writing version: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, w.irCount); err != nil {
		return fmt.Errorf("irlib: writing IR count: %w", err)
	}
	// Placeholder; Close seeks back and overwrites this once the real
	// index offset is known.
	if err := binary.Write(w.dst, binary.LittleEndian, uint64(0)); err != nil {
		return fmt.Errorf("irlib: writing index offset placeholder: %w", err)
	}

	w.currentPos = FileHeaderSize
	return nil
}

// WriteIR appends one impulse response's metadata and Half-encoded audio.
func (w *Writer) WriteIR(ir *ImpulseResponse) error {
	if len(ir.Audio.Data) > 0 {
		if err := validateChannelCount(len(ir.Audio.Data)); err != nil {
			return err
		}
	}

	w.irOffsets = append(w.irOffsets, w.currentPos)
	w.irMetas = append(w.irMetas, ir.Metadata)

	metaChunk := w.buildMetadataSubChunk(&ir.Metadata)
	audioChunk := w.buildAudioSubChunk(&ir.Audio)
	chunkSize := uint64(len(metaChunk) + len(audioChunk))

	if _, err := w.dst.Write([]byte(ChunkTypeIR)); err != nil {
		return fmt.Errorf("irlib: writing IR chunk header: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, chunkSize); err != nil {
		return fmt.Errorf("irlib: writing IR chunk size: %w", err)
	}
	if _, err := w.dst.Write(metaChunk); err != nil {
		return fmt.Errorf("irlib: writing metadata sub-chunk: %w", err)
	}
	if _, err := w.dst.Write(audioChunk); err != nil {
		return fmt.Errorf("irlib: writing audio sub-chunk: %w", err)
	}

	w.currentPos += ChunkHeaderSize + chunkSize
	return nil
}

// Close writes the trailing index chunk and back-patches the header's index
// offset. Must be called exactly once, after every WriteIR call.
func (w *Writer) Close() error {
	indexOffset := w.currentPos
	indexData := w.buildIndexChunk()

	if _, err := w.dst.Write([]byte(ChunkTypeIndex)); err != nil {
		return fmt.Errorf("irlib: writing index chunk header: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, uint64(len(indexData))); err != nil {
		return fmt.Errorf("irlib: writing index chunk size: %w", err)
	}
	if _, err := w.dst.Write(indexData); err != nil {
		return fmt.Errorf("irlib: writing index data: %w", err)
	}

	const indexOffsetFieldPos = 10 // magic(4) + version(2) + ircount(4)
	if _, err := w.dst.Seek(indexOffsetFieldPos, io.SeekStart); err != nil {
		return fmt.Errorf("irlib: seeking to index offset field: %w", err)
	}
	if err := binary.Write(w.dst, binary.LittleEndian, indexOffset); err != nil {
		return fmt.Errorf("irlib: writing index offset: %w", err)
	}
	return nil
}

func (w *Writer) buildMetadataSubChunk(meta *IRMetadata) []byte {
	size := 8 + 4 + 4 + // sample rate + channels + length
		2 + len(meta.Name) +
		2 + len(meta.Description) +
		2 + len(meta.Category) +
		2 // tag count
	for _, tag := range meta.Tags {
		size += 2 + len(tag)
	}

	buf := make([]byte, SubChunkHeaderSize+size)
	offset := writeSubChunkHeader(buf, ChunkTypeMeta, size)

	offset += putFloat64(buf[offset:], meta.SampleRate)
	offset += putUint32(buf[offset:], uint32(meta.Channels))
	offset += putUint32(buf[offset:], uint32(meta.Length))
	offset += putString(buf[offset:], meta.Name)
	offset += putString(buf[offset:], meta.Description)
	offset += putString(buf[offset:], meta.Category)

	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(meta.Tags)))
	offset += 2
	for _, tag := range meta.Tags {
		offset += putString(buf[offset:], tag)
	}

	return buf
}

func (w *Writer) buildAudioSubChunk(audio *AudioData) []byte {
	payload := f16.MarshalInterleaved(audio.Data)

	buf := make([]byte, SubChunkHeaderSize+len(payload))
	writeSubChunkHeader(buf, ChunkTypeAudio, len(payload))
	copy(buf[SubChunkHeaderSize:], payload)
	return buf
}

func (w *Writer) buildIndexChunk() []byte {
	size := 0
	for i := range w.irMetas {
		size += 8 + 8 + 4 + 4 + // offset + sample rate + channels + length
			2 + len(w.irMetas[i].Name) +
			2 + len(w.irMetas[i].Category)
	}

	buf := make([]byte, size)
	offset := 0
	for i, meta := range w.irMetas {
		binary.LittleEndian.PutUint64(buf[offset:], w.irOffsets[i])
		offset += 8
		offset += putFloat64(buf[offset:], meta.SampleRate)
		offset += putUint32(buf[offset:], uint32(meta.Channels))
		offset += putUint32(buf[offset:], uint32(meta.Length))
		offset += putString(buf[offset:], meta.Name)
		offset += putString(buf[offset:], meta.Category)
	}

	return buf
}

// writeSubChunkHeader writes a 4-byte chunk ID and 4-byte size at buf's
// start and returns the header length (SubChunkHeaderSize).
func writeSubChunkHeader(buf []byte, chunkType string, size int) int {
	copy(buf, chunkType)
	binary.LittleEndian.PutUint32(buf[4:], uint32(size))
	return SubChunkHeaderSize
}

func putFloat64(buf []byte, v float64) int {
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return 8
}

func putUint32(buf []byte, v uint32) int {
	binary.LittleEndian.PutUint32(buf, v)
	return 4
}

func putString(buf []byte, s string) int {
	binary.LittleEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	return 2 + len(s)
}

// validateChannelCount rejects channel counts an HRIR/BRIR ear pair can't
// represent: every .irlib entry is either a mono capture (one channel,
// duplicated to both ears by the caller) or a measured left/right pair.
func validateChannelCount(channels int) error {
	if channels != 1 && channels != 2 {
		return fmt.Errorf("%w: got %d channels, want 1 (mono) or 2 (ear pair)", ErrUnsupportedFormat, channels)
	}
	return nil
}

// WriteLibrary writes every IR in lib to dst in one call.
func WriteLibrary(dst io.WriteSeeker, lib *IRLibrary) error {
	writer := NewWriter(dst)
	if err := writer.WriteHeader(len(lib.IRs)); err != nil {
		return err
	}
	for _, ir := range lib.IRs {
		if err := writer.WriteIR(ir); err != nil {
			return err
		}
	}
	return writer.Close()
}
