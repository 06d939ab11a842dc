package irlib

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/3dti-go/binaural/pkg/f16"
)

// Reader streams an .irlib file: it parses the header and index eagerly but
// defers decoding any IR's Half-precision audio until LoadIR/LoadIRByName is
// called, so hrir-tool list doesn't pay for audio decode on entries it
// never touches.
type Reader struct {
	src         io.ReadSeeker
	version     uint16
	irCount     uint32
	indexOffset uint64
	index       []IndexEntry
}

// NewReader parses r's header and index. r must support seeking because the
// index sits at the tail of the file, written last by Writer.Close.
func NewReader(r io.ReadSeeker) (*Reader, error) {
	reader := &Reader{src: r}

	if err := reader.readHeader(); err != nil {
		return nil, err
	}
	if err := reader.readIndex(); err != nil {
		return nil, err
	}

	return reader, nil
}

func (r *Reader) readHeader() error {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r.src, magic); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(magic) != MagicNumber {
		return ErrInvalidMagic
	}

	if err := binary.Read(r.src, binary.LittleEndian, &r.version); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if r.version != CurrentVersion {
		return fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, r.version, CurrentVersion)
	}

	if err := binary.Read(r.src, binary.LittleEndian, &r.irCount); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if err := binary.Read(r.src, binary.LittleEndian, &r.indexOffset); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	return nil
}

func (r *Reader) readIndex() error {
	if _, err := r.src.Seek(int64(r.indexOffset), io.SeekStart); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	chunkID, _, err := r.readSubChunkHeader(ChunkTypeIndex)
	if err != nil {
		return err
	}
	_ = chunkID

	r.index = make([]IndexEntry, 0, r.irCount)
	for range r.irCount {
		entry, err := r.readIndexEntry()
		if err != nil {
			return err
		}
		r.index = append(r.index, entry)
	}

	return nil
}

// readSubChunkHeader reads a 4-byte chunk ID and validates it against want,
// then reads the 8-byte (index-chunk-sized) size field that follows it.
func (r *Reader) readSubChunkHeader(want string) (string, uint64, error) {
	id := make([]byte, 4)
	if _, err := io.ReadFull(r.src, id); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(id) != want {
		return "", 0, fmt.Errorf("%w: expected %q chunk, got %q", ErrInvalidChunk, want, string(id))
	}

	var size uint64
	if err := binary.Read(r.src, binary.LittleEndian, &size); err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	return string(id), size, nil
}

func (r *Reader) readIndexEntry() (IndexEntry, error) {
	var entry IndexEntry

	if err := binary.Read(r.src, binary.LittleEndian, &entry.Offset); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	var rateBits uint64
	if err := binary.Read(r.src, binary.LittleEndian, &rateBits); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	entry.SampleRate = math.Float64frombits(rateBits)

	var channels uint32
	if err := binary.Read(r.src, binary.LittleEndian, &channels); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	entry.Channels = int(channels)

	var length uint32
	if err := binary.Read(r.src, binary.LittleEndian, &length); err != nil {
		return entry, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	entry.Length = int(length)

	name, err := r.readString()
	if err != nil {
		return entry, err
	}
	entry.Name = name

	category, err := r.readString()
	if err != nil {
		return entry, err
	}
	entry.Category = category

	return entry, nil
}

func (r *Reader) readString() (string, error) {
	var length uint16
	if err := binary.Read(r.src, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if length == 0 {
		return "", nil
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.src, data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	return string(data), nil
}

// Version reports the file's format version.
func (r *Reader) Version() uint16 { return r.version }

// IRCount reports the number of impulse responses the index describes.
func (r *Reader) IRCount() int { return int(r.irCount) }

// ListIRs returns every indexed entry's metadata without decoding any audio.
func (r *Reader) ListIRs() []IndexEntry {
	out := make([]IndexEntry, len(r.index))
	copy(out, r.index)
	return out
}

// LoadIR decodes the index-th impulse response, seeking directly to its
// chunk rather than scanning from the front of the file.
func (r *Reader) LoadIR(index int) (*ImpulseResponse, error) {
	if index < 0 || index >= len(r.index) {
		return nil, ErrInvalidIndex
	}

	if _, err := r.src.Seek(int64(r.index[index].Offset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	return r.readIRChunk()
}

// LoadIRByName decodes the first impulse response whose metadata name
// matches exactly, or ErrIRNotFound.
func (r *Reader) LoadIRByName(name string) (*ImpulseResponse, error) {
	for i, entry := range r.index {
		if entry.Name == name {
			return r.LoadIR(i)
		}
	}
	return nil, ErrIRNotFound
}

func (r *Reader) readIRChunk() (*ImpulseResponse, error) {
	if _, _, err := r.readSubChunkHeader(ChunkTypeIR); err != nil {
		return nil, err
	}

	ir := &ImpulseResponse{}
	if err := r.readMetadataSubChunk(&ir.Metadata); err != nil {
		return nil, err
	}
	if err := r.readAudioSubChunk(&ir.Audio, ir.Metadata.Channels); err != nil {
		return nil, err
	}
	return ir, nil
}

func (r *Reader) readMetadataSubChunk(meta *IRMetadata) error {
	chunkID := make([]byte, 4)
	if _, err := io.ReadFull(r.src, chunkID); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(chunkID) != ChunkTypeMeta {
		return fmt.Errorf("%w: expected metadata sub-chunk, got %q", ErrInvalidChunk, string(chunkID))
	}

	var subChunkSize uint32
	if err := binary.Read(r.src, binary.LittleEndian, &subChunkSize); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	var rateBits uint64
	if err := binary.Read(r.src, binary.LittleEndian, &rateBits); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	meta.SampleRate = math.Float64frombits(rateBits)

	var channels uint32
	if err := binary.Read(r.src, binary.LittleEndian, &channels); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	meta.Channels = int(channels)

	var length uint32
	if err := binary.Read(r.src, binary.LittleEndian, &length); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	meta.Length = int(length)

	var err error
	if meta.Name, err = r.readString(); err != nil {
		return err
	}
	if meta.Description, err = r.readString(); err != nil {
		return err
	}
	if meta.Category, err = r.readString(); err != nil {
		return err
	}

	var tagCount uint16
	if err := binary.Read(r.src, binary.LittleEndian, &tagCount); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	meta.Tags = make([]string, tagCount)
	for i := range tagCount {
		if meta.Tags[i], err = r.readString(); err != nil {
			return err
		}
	}

	return nil
}

func (r *Reader) readAudioSubChunk(audio *AudioData, channels int) error {
	chunkID := make([]byte, 4)
	if _, err := io.ReadFull(r.src, chunkID); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}
	if string(chunkID) != ChunkTypeAudio {
		return fmt.Errorf("%w: expected audio sub-chunk, got %q", ErrInvalidChunk, string(chunkID))
	}

	var subChunkSize uint32
	if err := binary.Read(r.src, binary.LittleEndian, &subChunkSize); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	payload := make([]byte, subChunkSize)
	if _, err := io.ReadFull(r.src, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptedData, err)
	}

	audio.Data = f16.UnmarshalInterleaved(payload, channels)
	return nil
}

// Close is a no-op; Reader never owns src's lifecycle.
func (r *Reader) Close() error { return nil }

// ReadLibrary decodes every entry of r into an in-memory IRLibrary.
func ReadLibrary(r io.ReadSeeker) (*IRLibrary, error) {
	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	lib := &IRLibrary{
		Version: reader.version,
		IRs:     make([]*ImpulseResponse, 0, reader.irCount),
	}
	for i := range reader.irCount {
		ir, err := reader.LoadIR(int(i))
		if err != nil {
			return nil, fmt.Errorf("failed to load IR %d: %w", i, err)
		}
		lib.IRs = append(lib.IRs, ir)
	}
	return lib, nil
}
