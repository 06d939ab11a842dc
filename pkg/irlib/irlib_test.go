package irlib

import (
	"errors"
	"io"
	"math"
	"testing"
)

// memFile is an in-memory io.ReadWriteSeeker, standing in for the .irlib
// file a real hrir-tool build/bench run would read and write on disk.
type memFile struct {
	data []byte
	pos  int64
}

func newMemFile() *memFile {
	return &memFile{data: make([]byte, 0)}
}

func (m *memFile) Write(p []byte) (n int, err error) {
	needed := int(m.pos) + len(p)
	if needed > len(m.data) {
		newData := make([]byte, needed)
		copy(newData, m.data)
		m.data = newData
	}
	copy(m.data[m.pos:], p)
	m.pos += int64(len(p))
	return len(p), nil
}

func (m *memFile) Read(p []byte) (n int, err error) {
	if m.pos >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n = copy(p, m.data[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.data)) + offset
	}
	if newPos < 0 {
		return 0, io.EOF
	}
	m.pos = newPos
	return m.pos, nil
}

var _ io.ReadWriteSeeker = (*memFile)(nil)

// hrirEntry builds a single measured direction's IR, one ear-pair channel
// per ear, a decaying test signal standing in for a real capture.
func hrirEntry(name string, azimuth, elevation float64, length int, stereo bool) *ImpulseResponse {
	data := [][]float32{generateTestSamples(length)}
	channels := 1
	if stereo {
		data = append(data, generateTestSamples(length))
		channels = 2
	}
	return &ImpulseResponse{
		Metadata: IRMetadata{
			Name:        name,
			Description: "az=" + ftoa(azimuth) + " el=" + ftoa(elevation),
			Category:    "HRIR",
			Tags:        []string{"subject01"},
			SampleRate:  48000,
			Channels:    channels,
			Length:      length,
		},
		Audio: AudioData{Data: data},
	}
}

func ftoa(f float64) string {
	return string([]byte{'0' + byte(int(f)/100%10), '0' + byte(int(f)/10%10), '0' + byte(int(f)%10)})
}

func TestWriteReadSingleIR(t *testing.T) {
	ir := hrirEntry("az000_el00", 0, 0, 100, false)

	buf := newMemFile()
	writer := NewWriter(buf)
	if err := writer.WriteHeader(1); err != nil {
		t.Fatalf("WriteHeader failed: %v", err)
	}
	if err := writer.WriteIR(ir); err != nil {
		t.Fatalf("WriteIR failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	buf.Seek(0, io.SeekStart)
	reader, err := NewReader(buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if reader.IRCount() != 1 {
		t.Errorf("expected 1 IR, got %d", reader.IRCount())
	}

	loaded, err := reader.LoadIR(0)
	if err != nil {
		t.Fatalf("LoadIR failed: %v", err)
	}

	if loaded.Metadata.Name != ir.Metadata.Name {
		t.Errorf("name mismatch: got %q, want %q", loaded.Metadata.Name, ir.Metadata.Name)
	}
	if loaded.Metadata.Description != ir.Metadata.Description {
		t.Errorf("description mismatch: got %q, want %q", loaded.Metadata.Description, ir.Metadata.Description)
	}
	if loaded.Metadata.Category != ir.Metadata.Category {
		t.Errorf("category mismatch: got %q, want %q", loaded.Metadata.Category, ir.Metadata.Category)
	}
	if loaded.Metadata.SampleRate != ir.Metadata.SampleRate {
		t.Errorf("sample rate mismatch: got %v, want %v", loaded.Metadata.SampleRate, ir.Metadata.SampleRate)
	}
	if loaded.Metadata.Channels != ir.Metadata.Channels {
		t.Errorf("channels mismatch: got %d, want %d", loaded.Metadata.Channels, ir.Metadata.Channels)
	}
	if len(loaded.Metadata.Tags) != len(ir.Metadata.Tags) {
		t.Errorf("tags count mismatch: got %d, want %d", len(loaded.Metadata.Tags), len(ir.Metadata.Tags))
	}

	verifyAudioData(t, ir.Audio.Data, loaded.Audio.Data)

	pair, ok := loaded.Audio.EarPair()
	if !ok {
		t.Fatal("expected EarPair() to accept a mono capture")
	}
	if &pair.Left[0] == nil { // sanity: mono duplicates to both ears
		t.Fatal("unexpected nil ear data")
	}
}

func TestWriteReadMultipleIRsPreservesOrder(t *testing.T) {
	irs := []*ImpulseResponse{
		hrirEntry("az000_el00", 0, 0, 50, false),
		hrirEntry("az090_el00", 90, 0, 100, true),
		hrirEntry("az180_el30", 180, 30, 200, true),
	}

	lib := NewIRLibrary()
	for _, ir := range irs {
		lib.AddIR(ir)
	}

	buf := newMemFile()
	if err := WriteLibrary(buf, lib); err != nil {
		t.Fatalf("WriteLibrary failed: %v", err)
	}

	buf.Seek(0, io.SeekStart)
	loadedLib, err := ReadLibrary(buf)
	if err != nil {
		t.Fatalf("ReadLibrary failed: %v", err)
	}
	if len(loadedLib.IRs) != len(irs) {
		t.Fatalf("IR count mismatch: got %d, want %d", len(loadedLib.IRs), len(irs))
	}

	for i, ir := range irs {
		loaded := loadedLib.IRs[i]
		if loaded.Metadata.Name != ir.Metadata.Name {
			t.Errorf("IR %d name mismatch: got %q, want %q", i, loaded.Metadata.Name, ir.Metadata.Name)
		}
		if loaded.Metadata.Channels != ir.Metadata.Channels {
			t.Errorf("IR %d channels mismatch: got %d, want %d", i, loaded.Metadata.Channels, ir.Metadata.Channels)
		}
		verifyAudioData(t, ir.Audio.Data, loaded.Audio.Data)
	}
}

func TestListIRsDoesNotDecodeAudio(t *testing.T) {
	lib := NewIRLibrary()
	lib.AddIR(hrirEntry("az000_el00", 0, 0, 1000, true))
	lib.AddIR(hrirEntry("az045_el00", 45, 0, 500, false))

	buf := newMemFile()
	if err := WriteLibrary(buf, lib); err != nil {
		t.Fatalf("WriteLibrary failed: %v", err)
	}
	buf.Seek(0, io.SeekStart)

	reader, err := NewReader(buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	entries := reader.ListIRs()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "az000_el00" || entries[0].Channels != 2 {
		t.Errorf("entry 0: got name=%q channels=%d", entries[0].Name, entries[0].Channels)
	}
	if entries[1].Name != "az045_el00" || entries[1].Channels != 1 {
		t.Errorf("entry 1: got name=%q channels=%d", entries[1].Name, entries[1].Channels)
	}
}

func TestLoadIRByName(t *testing.T) {
	lib := NewIRLibrary()
	lib.AddIR(hrirEntry("az000_el00", 0, 0, 10, false))
	lib.AddIR(hrirEntry("az090_el00", 90, 0, 20, false))
	lib.AddIR(hrirEntry("az180_el00", 180, 0, 30, false))

	buf := newMemFile()
	if err := WriteLibrary(buf, lib); err != nil {
		t.Fatalf("WriteLibrary failed: %v", err)
	}
	buf.Seek(0, io.SeekStart)

	reader, err := NewReader(buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	ir, err := reader.LoadIRByName("az090_el00")
	if err != nil {
		t.Fatalf("LoadIRByName failed: %v", err)
	}
	if ir.Metadata.Length != 20 {
		t.Errorf("got length %d, want %d", ir.Metadata.Length, 20)
	}

	_, err = reader.LoadIRByName("az999_el00")
	if !errors.Is(err, ErrIRNotFound) {
		t.Errorf("expected ErrIRNotFound, got %v", err)
	}
}

func TestInvalidMagic(t *testing.T) {
	buf := newMemFile()
	buf.Write([]byte("XXXX"))
	buf.Seek(0, io.SeekStart)

	_, err := NewReader(buf)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestInvalidIndex(t *testing.T) {
	lib := NewIRLibrary()
	lib.AddIR(hrirEntry("az000_el00", 0, 0, 10, false))

	buf := newMemFile()
	if err := WriteLibrary(buf, lib); err != nil {
		t.Fatalf("WriteLibrary failed: %v", err)
	}
	buf.Seek(0, io.SeekStart)

	reader, err := NewReader(buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	if _, err := reader.LoadIR(-1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex for -1, got %v", err)
	}
	if _, err := reader.LoadIR(1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("expected ErrInvalidIndex for 1, got %v", err)
	}
}

func TestDuration(t *testing.T) {
	ir := NewImpulseResponse("az000_el00", 48000, 2, [][]float32{
		make([]float32, 96000),
		make([]float32, 96000),
	})

	if d := ir.Duration(); math.Abs(d-2.0) > 0.0001 {
		t.Errorf("expected duration 2.0s, got %v", d)
	}

	ir.Metadata.SampleRate = 0
	if ir.Duration() != 0 {
		t.Errorf("expected 0 duration for zero sample rate")
	}
}

func TestIndexEntryDuration(t *testing.T) {
	entry := IndexEntry{SampleRate: 44100, Length: 88200}
	if d := entry.Duration(); math.Abs(d-2.0) > 0.0001 {
		t.Errorf("expected duration 2.0s, got %v", d)
	}
}

func TestAudioDataEarPairRejectsUnsupportedChannelCount(t *testing.T) {
	a := AudioData{Data: [][]float32{{1}, {2}, {3}}}
	if _, ok := a.EarPair(); ok {
		t.Error("expected EarPair() to reject a 3-channel capture")
	}
}

// generateTestSamples produces an exponential-decay-shaped signal, the
// general envelope of a measured HRIR onset.
func generateTestSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range n {
		t := float64(i) / float64(n)
		samples[i] = float32(math.Exp(-5*t) * math.Sin(2*math.Pi*1000*t/48000))
	}
	return samples
}

// verifyAudioData compares audio within a 1% relative-error tolerance
// (or 1e-4 absolute), comfortably above what f16 round-tripping introduces.
func verifyAudioData(t *testing.T, original, loaded [][]float32) {
	t.Helper()

	if len(original) != len(loaded) {
		t.Errorf("channel count mismatch: got %d, want %d", len(loaded), len(original))
		return
	}

	for ch := range original {
		if len(original[ch]) != len(loaded[ch]) {
			t.Errorf("channel %d length mismatch: got %d, want %d", ch, len(loaded[ch]), len(original[ch]))
			continue
		}
		for i := range original[ch] {
			orig := original[ch][i]
			load := loaded[ch][i]

			absErr := math.Abs(float64(orig - load))
			relErr := float64(0)
			if math.Abs(float64(orig)) > 1e-6 {
				relErr = absErr / math.Abs(float64(orig))
			}
			if relErr > 0.01 && absErr > 1e-4 {
				t.Errorf("channel %d sample %d: got %v, want %v (relErr=%v, absErr=%v)", ch, i, load, orig, relErr, absErr)
			}
		}
	}
}
