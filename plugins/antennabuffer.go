package plugins

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/capture"
	"github.com/skalabs/stationdaq/internal/reassembly"
	"github.com/skalabs/stationdaq/internal/spead"
	"github.com/skalabs/stationdaq/pkg/daq"
)

type antennaBufferPluginConfig struct {
	reassembly.AntennaBufferConfig `mapstructure:",squash"`
	Directory                      string
	MaxFileSizeBytes               int64
}

type antennaBufferConsumer struct {
	log    *slog.Logger
	cfg    antennaBufferPluginConfig
	r      *reassembly.AntennaBufferReassembler
	writer *capture.SequentialWriter
}

func newAntennaBufferConsumer(log *slog.Logger) *antennaBufferConsumer {
	return &antennaBufferConsumer{log: log}
}

func (c *antennaBufferConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewAntennaBufferReassembler(c.cfg.AntennaBufferConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "antenna_buffer", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("antenna buffer consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *antennaBufferConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

// Process resolves fields per the antenna-buffer wire convention: tile
// and pol from TileInfo, the FPGA index from the antenna info item's
// secondary field (a station-beam-style antenna group covers exactly
// one FPGA per packet), the antenna start from its primary field, and
// the global sample index directly from the timestamp item (the
// antenna-buffer family's "timestamp" already is a global ADC sample
// count, scaled by 1/800 MHz into wall-clock time elsewhere).
func (c *antennaBufferConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tile, ok := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ant, ok := spead.FindEither(p.View, spead.ItemAntennaInfoA, spead.ItemAntennaInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ts, ok := p.View.Find(spead.ItemTimestamp)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	tf := spead.DecodeTileInfo(tile.Value)
	af := spead.DecodeAntennaInfo(ant.Value)

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	fpgaID := af.NofIncluded // repurposed as the FPGA index for this family
	if err := c.r.Process(pkt, tf.TileID, fpgaID, uint32(af.StartAntenna), ts.Value, tf.PolID); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("antenna buffer consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *antennaBufferConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.writer != nil {
		c.writer.Close()
	}
}

func (c *antennaBufferConsumer) Cleanup() {}
