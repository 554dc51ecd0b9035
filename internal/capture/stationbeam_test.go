package capture

import (
	"os"
	"testing"
	"time"

	"github.com/skalabs/stationdaq/internal/reassembly"
)

func newTestCapture(t *testing.T, bufferBytes int64, maxFileSize int64) *StationBeamCapture {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		Directory:        dir,
		FirstChannel:     100,
		ChannelsInFile:   1,
		MaxFileSizeBytes: maxFileSize,
		SamplingPeriod:   1.08e-6,
	}
	c, err := New(cfg, bufferBytes, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestInOrderBuffersAppendSequentially(t *testing.T) {
	c := newTestCapture(t, 4, 1024)
	defer c.Close()

	for i := uint64(0); i < 3; i++ {
		data := []byte{byte(i), byte(i), byte(i), byte(i)}
		if err := c.Write(data, time.Now(), reassembly.Metadata{BufferCounter: i}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	got := readFile(t, c.file.Name())
	want := []byte{0, 0, 0, 0, 1, 1, 1, 1, 2, 2, 2, 2}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestFutureBufferGapFillsThenBackfills(t *testing.T) {
	c := newTestCapture(t, 4, 1024)
	defer c.Close()

	// Counter 0 arrives, then counter 2 arrives before counter 1.
	_ = c.Write([]byte{1, 1, 1, 1}, time.Now(), reassembly.Metadata{BufferCounter: 0})
	_ = c.Write([]byte{3, 3, 3, 3}, time.Now(), reassembly.Metadata{BufferCounter: 2})

	name := c.file.Name()
	got := readFile(t, name)
	want := []byte{1, 1, 1, 1, 0, 0, 0, 0, 3, 3, 3, 3}
	if string(got) != string(want) {
		t.Fatalf("after future buffer: got %v, want %v", got, want)
	}

	// The genuinely expected buffer (counter 1) now backfills the zero slot.
	if err := c.Write([]byte{2, 2, 2, 2}, time.Now(), reassembly.Metadata{BufferCounter: 1}); err != nil {
		t.Fatalf("Write counter 1 failed: %v", err)
	}
	got = readFile(t, name)
	want = []byte{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}
	if string(got) != string(want) {
		t.Fatalf("after backfill: got %v, want %v", got, want)
	}
}

func TestFileRotatesAtCutoff(t *testing.T) {
	c := newTestCapture(t, 4, 8) // cutoff = 2 buffers per file

	for i := uint64(0); i < 3; i++ {
		if err := c.Write([]byte{1, 1, 1, 1}, time.Now(), reassembly.Metadata{BufferCounter: i}); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}
	defer c.Close()

	if c.FilesOpened() != 2 {
		t.Fatalf("expected 2 files opened after crossing the cutoff, got %d", c.FilesOpened())
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading output file: %v", err)
	}
	return data
}
