package irlib

import (
	"os"
	"path/filepath"
	"testing"
)

// hrirLibraryFixture builds a small multi-direction library standing in for
// a real hrir-tool build output: short mono, long stereo, and full-metadata
// entries at three measured directions.
func hrirLibraryFixture() *IRLibrary {
	lib := NewIRLibrary()
	lib.AddIR(hrirEntry("az000_el00", 0, 0, 256, false))
	lib.AddIR(hrirEntry("az090_el00", 90, 0, 512, true))
	lib.AddIR(hrirEntry("az180_el30", 180, 30, 128, true))
	lib.IRs[1].Metadata.Description = "A long stereo measurement at grazing incidence"
	lib.IRs[1].Metadata.Tags = []string{"subject01", "stereo"}
	return lib
}

// TestIntegrationWriteReadFile exercises a real on-disk round trip, not the
// in-memory memFile the unit tests use.
func TestIntegrationWriteReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "subject01.irlib")

	lib := hrirLibraryFixture()

	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := WriteLibrary(file, lib); err != nil {
		file.Close()
		t.Fatalf("WriteLibrary failed: %v", err)
	}
	file.Close()

	file, err = os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()

	loadedLib, err := ReadLibrary(file)
	if err != nil {
		t.Fatalf("ReadLibrary failed: %v", err)
	}

	if len(loadedLib.IRs) != len(lib.IRs) {
		t.Fatalf("IR count mismatch: got %d, want %d", len(loadedLib.IRs), len(lib.IRs))
	}
	for i, exp := range lib.IRs {
		act := loadedLib.IRs[i]
		if act.Metadata.Name != exp.Metadata.Name {
			t.Errorf("IR %d name: got %q, want %q", i, act.Metadata.Name, exp.Metadata.Name)
		}
		if act.Metadata.Description != exp.Metadata.Description {
			t.Errorf("IR %d description: got %q, want %q", i, act.Metadata.Description, exp.Metadata.Description)
		}
		verifyAudioData(t, exp.Audio.Data, act.Audio.Data)
	}
}

// TestIntegrationLazyLoading confirms the reader can answer ListIRs from the
// index chunk alone, without decoding any IR's audio sub-chunk.
func TestIntegrationLazyLoading(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "lazy.irlib")

	lib := hrirLibraryFixture()
	writeLibraryToFile(t, filePath, lib)

	file, err := os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()

	reader, err := NewReader(file)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	entries := reader.ListIRs()
	if len(entries) != len(lib.IRs) {
		t.Fatalf("Index entry count mismatch: got %d, want %d", len(entries), len(lib.IRs))
	}
	for i, entry := range entries {
		expected := lib.IRs[i].Metadata
		if entry.Name != expected.Name {
			t.Errorf("Index entry %d name: got %q, want %q", i, entry.Name, expected.Name)
		}
		if entry.Channels != expected.Channels {
			t.Errorf("Index entry %d channels: got %d, want %d", i, entry.Channels, expected.Channels)
		}
		if entry.Length != expected.Length {
			t.Errorf("Index entry %d length: got %d, want %d", i, entry.Length, expected.Length)
		}
	}

	ir, err := reader.LoadIR(2)
	if err != nil {
		t.Fatalf("LoadIR(2) failed: %v", err)
	}
	if ir.Metadata.Name != lib.IRs[2].Metadata.Name {
		t.Errorf("Loaded IR name: got %q, want %q", ir.Metadata.Name, lib.IRs[2].Metadata.Name)
	}
}

// TestIntegrationIndexSeeking loads IRs out of order, exercising the index
// chunk's random-access offsets rather than sequential decode.
func TestIntegrationIndexSeeking(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "seeking.irlib")

	lib := hrirLibraryFixture()
	writeLibraryToFile(t, filePath, lib)

	file, err := os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open file: %v", err)
	}
	defer file.Close()

	reader, err := NewReader(file)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	for _, idx := range []int{2, 0, 1} {
		ir, err := reader.LoadIR(idx)
		if err != nil {
			t.Fatalf("LoadIR(%d) failed: %v", idx, err)
		}
		expected := lib.IRs[idx]
		if ir.Metadata.Name != expected.Metadata.Name {
			t.Errorf("LoadIR(%d) name: got %q, want %q", idx, ir.Metadata.Name, expected.Metadata.Name)
		}
		verifyAudioData(t, expected.Audio.Data, ir.Audio.Data)
	}
}

// TestIntegrationFileSizeReduction confirms f16 sample encoding keeps an
// on-disk HRIR library close to half the size a float32 encoding would take.
func TestIntegrationFileSizeReduction(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "size.irlib")

	const length = 48000 // 1 second at 48kHz, a long BRIR tail
	lib := NewIRLibrary()
	lib.AddIR(hrirEntry("az000_el00", 0, 0, length, true))

	writeLibraryToFile(t, filePath, lib)

	info, err := os.Stat(filePath)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}

	float32Size := length * 2 * 4 // stereo, 4 bytes/sample
	actualSize := int(info.Size())
	maxExpectedSize := int(float64(float32Size) * 0.6)

	t.Logf("Float32 equivalent: %d bytes, actual: %d bytes (%.1f%% reduction)",
		float32Size, actualSize, 100*(1-float64(actualSize)/float64(float32Size)))

	if actualSize > maxExpectedSize {
		t.Errorf("File size too large: got %d, expected less than %d", actualSize, maxExpectedSize)
	}
}

// writeLibraryToFile writes lib to path, failing the test on error.
func writeLibraryToFile(t *testing.T, path string, lib *IRLibrary) {
	t.Helper()

	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if err := WriteLibrary(file, lib); err != nil {
		file.Close()
		t.Fatalf("WriteLibrary failed: %v", err)
	}
	file.Close()
}

