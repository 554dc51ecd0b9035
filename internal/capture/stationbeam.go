// Package capture implements the station-beam capture pipeline: it
// binds a station-beam reassembler's persisted buffers to a
// filesystem sink that writes contiguous, gap-filled binary files with
// fixed-size cutoffs and optional per-channel splitting.
package capture

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/skalabs/stationdaq/internal/reassembly"
)

// Config configures one station-beam capture run.
type Config struct {
	Directory          string
	FirstChannel       int
	ChannelsInFile     int
	MaxFileSizeBytes   int64
	Dada               bool
	IndividualChannels bool
	CaptureStartTime   time.Time // zero means capture from the first buffer
	SamplingPeriod     float64
	Source             string // DADA SOURCE header field; ignored when Dada is false
}

// dadaHeaderSize is the fixed DADA ASCII header size per §6.
const dadaHeaderSize = 4096

// StationBeamCapture binds ingress-fed reassembled buffers to a
// rotating set of output files.
type StationBeamCapture struct {
	cfg Config
	log *slog.Logger

	file            *os.File
	filesOpened     int
	bufferBytes     int64
	cutoffCounter   int64
	expectedCounter uint64
	expectedPos     int64
	haveExpected    bool

	alignmentDone     bool
	startSampleOffset int
}

// New constructs a capture pipeline. bufferBytes is the size in bytes
// of one persisted station-beam buffer, used to derive the file
// rotation cutoff.
func New(cfg Config, bufferBytes int64, log *slog.Logger) (*StationBeamCapture, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxFileSizeBytes <= 0 || bufferBytes <= 0 {
		return nil, fmt.Errorf("capture: max file size and buffer size must be positive")
	}
	cutoff := cfg.MaxFileSizeBytes / bufferBytes
	if cutoff < 1 {
		cutoff = 1
	}

	c := &StationBeamCapture{
		cfg:           cfg,
		log:           log,
		bufferBytes:   bufferBytes,
		cutoffCounter: cutoff,
	}
	return c, nil
}

// filename builds the station-beam output filename per §6:
// channel_<first_channel>_<channels_in_file>_<unix_timestamp>.{dat|dada}.
func (c *StationBeamCapture) filename() string {
	ext := "dat"
	if c.cfg.Dada {
		ext = "dada"
	}
	name := fmt.Sprintf("channel_%d_%d_%d.%s", c.cfg.FirstChannel, c.cfg.ChannelsInFile, time.Now().Unix(), ext)
	return filepath.Join(c.cfg.Directory, name)
}

func (c *StationBeamCapture) openNewFile() error {
	if c.file != nil {
		c.file.Close()
	}
	f, err := os.Create(c.filename())
	if err != nil {
		return fmt.Errorf("capture: creating output file: %w", err)
	}
	if c.cfg.Dada {
		if err := writeDadaHeader(f, c.cfg); err != nil {
			f.Close()
			return err
		}
	}
	c.file = f
	c.filesOpened++
	c.haveExpected = false
	return nil
}

// writeDadaHeader writes a fixed-4096-byte NUL-padded ASCII header.
func writeDadaHeader(f *os.File, cfg Config) error {
	fields := map[string]string{
		"TELESCOPE":  "AAVS",
		"NBIT":       "8",
		"NPOL":       "2",
		"NCHAN":      fmt.Sprintf("%d", cfg.ChannelsInFile),
		"NDIM":       "2",
		"TSAMP":      fmt.Sprintf("%.9f", cfg.SamplingPeriod*1e6),
		"UTC_START":  time.Now().UTC().Format("2006-01-02-15:04:05"),
		"FREQ_START": fmt.Sprintf("%d", cfg.FirstChannel),
	}
	if cfg.Source != "" {
		fields["SOURCE"] = cfg.Source
	}

	header := make([]byte, 0, dadaHeaderSize)
	for k, v := range fields {
		line := fmt.Sprintf("%-16s %s\n", k, v)
		header = append(header, line...)
	}
	if len(header) > dadaHeaderSize {
		return fmt.Errorf("capture: DADA header exceeds %d bytes", dadaHeaderSize)
	}
	padded := make([]byte, dadaHeaderSize)
	copy(padded, header)

	_, err := f.Write(padded)
	return err
}

// Write persists one completed station-beam buffer, applying capture
// start alignment (once), out-of-order back-fill, and file rotation.
func (c *StationBeamCapture) Write(data []byte, ts time.Time, meta reassembly.Metadata) error {
	if c.file == nil {
		if err := c.openNewFile(); err != nil {
			return err
		}
	}

	data, ts = c.applyCaptureStartAlignment(data, ts)
	if data == nil {
		return nil // entirely before the alignment point
	}

	if !c.haveExpected {
		c.expectedCounter = meta.BufferCounter
		c.expectedPos = 0
		c.haveExpected = true
	}

	advanced, err := c.writeOrdered(data, meta.BufferCounter)
	if err != nil || !advanced {
		return err
	}

	c.expectedCounter++
	c.expectedPos += c.bufferBytes
	if int64(c.expectedCounter)%c.cutoffCounter == 0 {
		return c.openNewFile()
	}
	return nil
}

// applyCaptureStartAlignment trims the first buffer to start at
// capture_start_time, per §4.6. Buffers persisted after alignment pass
// through untouched.
func (c *StationBeamCapture) applyCaptureStartAlignment(data []byte, ts time.Time) ([]byte, time.Time) {
	if c.alignmentDone || c.cfg.CaptureStartTime.IsZero() {
		c.alignmentDone = true
		return data, ts
	}

	bufferEnd := ts.Add(time.Duration(float64(len(data)) * c.cfg.SamplingPeriod * float64(time.Second)))
	if bufferEnd.Before(c.cfg.CaptureStartTime) {
		return nil, ts // discard, buffer entirely precedes the alignment point
	}

	offsetSeconds := c.cfg.CaptureStartTime.Sub(ts).Seconds()
	offsetSamples := int(offsetSeconds/c.cfg.SamplingPeriod + 0.5)
	c.startSampleOffset = offsetSamples
	c.alignmentDone = true

	if offsetSamples <= 0 || offsetSamples >= len(data) {
		return data, ts
	}
	shifted := ts.Add(time.Duration(float64(offsetSamples) * c.cfg.SamplingPeriod * float64(time.Second)))
	return data[offsetSamples:], shifted
}

// writeOrdered implements the ordered/late/early write policy of
// §4.6, keeping the file's logical write cursor pinned at
// expectedPos: the byte offset of the buffer this file is still
// waiting for. It returns advanced=true only when the exactly-expected
// buffer was written, since that is the only case in which the
// expected counter and position should move forward.
//
//   - In order: append at expectedPos.
//   - Future (counter > expected): zero-fill the gap at expectedPos,
//     write this buffer into its own slot within that gap, then seek
//     back to expectedPos so the still-missing buffer lands there later.
//   - Past (counter < expected): the buffer's slot already has a zero
//     placeholder (or a previous write) behind expectedPos; overwrite
//     it in place and restore the cursor to expectedPos.
func (c *StationBeamCapture) writeOrdered(data []byte, counter uint64) (advanced bool, err error) {
	switch {
	case counter == c.expectedCounter:
		if _, err := c.file.Seek(c.expectedPos, os.SEEK_SET); err != nil {
			return false, err
		}
		if _, err := c.file.Write(data); err != nil {
			return false, err
		}
		return true, nil

	case counter > c.expectedCounter:
		gapBuffers := counter - c.expectedCounter
		if int64(gapBuffers) >= c.cutoffCounter {
			c.log.Warn("capture: future buffer crosses file rotation boundary, dropping", "counter", counter, "expected", c.expectedCounter)
			return false, nil
		}
		if _, err := c.file.Seek(c.expectedPos, os.SEEK_SET); err != nil {
			return false, err
		}
		zeros := make([]byte, int64(gapBuffers)*c.bufferBytes)
		if _, err := c.file.Write(zeros); err != nil {
			return false, err
		}
		if _, err := c.file.Write(data); err != nil {
			return false, err
		}
		if _, err := c.file.Seek(c.expectedPos, os.SEEK_SET); err != nil {
			return false, err
		}
		return false, nil

	default: // counter < expected: a late arrival for an already-passed slot
		behind := c.expectedCounter - counter
		if int64(behind) >= c.cutoffCounter {
			c.log.Warn("capture: late buffer crosses file rotation boundary, dropping", "counter", counter, "expected", c.expectedCounter)
			return false, nil
		}
		slotPos := c.expectedPos - int64(behind)*c.bufferBytes
		if _, err := c.file.Seek(slotPos, os.SEEK_SET); err != nil {
			return false, err
		}
		if _, err := c.file.Write(data); err != nil {
			return false, err
		}
		if _, err := c.file.Seek(c.expectedPos, os.SEEK_SET); err != nil {
			return false, err
		}
		return false, nil
	}
}

// Close flushes and closes the current output file.
func (c *StationBeamCapture) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// FilesOpened reports how many output files this capture run has
// created, for tests and diagnostics.
func (c *StationBeamCapture) FilesOpened() int {
	return c.filesOpened
}
