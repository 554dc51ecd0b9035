package capture

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSequentialWriterAppendsWithinOneFile(t *testing.T) {
	dir := t.TempDir()
	w := NewSequentialWriter(SequentialConfig{Directory: dir, Prefix: "raw", MaxFileSizeBytes: 1024}, nil)
	defer w.Close()

	if err := w.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write 1 failed: %v", err)
	}
	if err := w.Write([]byte{4, 5, 6}); err != nil {
		t.Fatalf("write 2 failed: %v", err)
	}
	if w.FilesOpened() != 1 {
		t.Fatalf("expected 1 file, got %d", w.FilesOpened())
	}

	got, err := os.ReadFile(w.file.Name())
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6}
	if string(got) != string(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSequentialWriterRotatesAtCutoff(t *testing.T) {
	dir := t.TempDir()
	w := NewSequentialWriter(SequentialConfig{Directory: dir, Prefix: "raw", MaxFileSizeBytes: 4}, nil)
	defer w.Close()

	for i := 0; i < 3; i++ {
		if err := w.Write([]byte{1, 2, 3}); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	if w.FilesOpened() != 3 {
		t.Fatalf("expected 3 files after crossing the cutoff each time, got %d", w.FilesOpened())
	}
}

func TestSequentialWriterNoRotationWhenUnset(t *testing.T) {
	dir := t.TempDir()
	w := NewSequentialWriter(SequentialConfig{Directory: dir, Prefix: "raw"}, nil)
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := w.Write([]byte{9}); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	if w.FilesOpened() != 1 {
		t.Fatalf("expected no rotation with MaxFileSizeBytes unset, got %d files", w.FilesOpened())
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one file on disk, got %d", len(files))
	}
	got, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 bytes written, got %d", len(got))
	}
}
