package capture

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SequentialConfig configures a simple rotating sink for stream
// families that reassemble strictly in order and need no gap-fill:
// raw, channelised, and beamformed buffers all persist this way.
type SequentialConfig struct {
	Directory        string
	Prefix           string
	MaxFileSizeBytes int64 // 0 disables rotation
}

// SequentialWriter appends persisted buffers to a rotating output
// file, opening a fresh file whenever the current one would exceed
// MaxFileSizeBytes.
type SequentialWriter struct {
	cfg         SequentialConfig
	log         *slog.Logger
	file        *os.File
	written     int64
	filesOpened int
}

// NewSequentialWriter constructs an unopened writer; the first Write
// call creates the initial file.
func NewSequentialWriter(cfg SequentialConfig, log *slog.Logger) *SequentialWriter {
	if log == nil {
		log = slog.Default()
	}
	return &SequentialWriter{cfg: cfg, log: log}
}

func (w *SequentialWriter) filename() string {
	name := fmt.Sprintf("%s_%d.dat", w.cfg.Prefix, time.Now().UnixNano())
	return filepath.Join(w.cfg.Directory, name)
}

func (w *SequentialWriter) openNewFile() error {
	if w.file != nil {
		w.file.Close()
	}
	f, err := os.Create(w.filename())
	if err != nil {
		return fmt.Errorf("capture: creating sequential output file: %w", err)
	}
	w.file = f
	w.written = 0
	w.filesOpened++
	return nil
}

// Write appends data, rotating first if it would cross the configured
// file-size cutoff.
func (w *SequentialWriter) Write(data []byte) error {
	if w.file == nil {
		if err := w.openNewFile(); err != nil {
			return err
		}
	}
	if w.cfg.MaxFileSizeBytes > 0 && w.written+int64(len(data)) > w.cfg.MaxFileSizeBytes {
		if err := w.openNewFile(); err != nil {
			return err
		}
	}
	n, err := w.file.Write(data)
	w.written += int64(n)
	return err
}

// Close flushes and closes the current output file.
func (w *SequentialWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// FilesOpened reports how many files this writer has created.
func (w *SequentialWriter) FilesOpened() int {
	return w.filesOpened
}
