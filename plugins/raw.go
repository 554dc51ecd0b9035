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

type rawPluginConfig struct {
	reassembly.RawConfig `mapstructure:",squash"`
	Directory            string
	MaxFileSizeBytes     int64
}

type rawConsumer struct {
	log    *slog.Logger
	cfg    rawPluginConfig
	r      *reassembly.RawReassembler
	writer *capture.SequentialWriter
}

func newRawConsumer(log *slog.Logger) *rawConsumer {
	return &rawConsumer{log: log}
}

func (c *rawConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	if c.cfg.SamplesPerPacket == 0 {
		c.cfg.SamplesPerPacket = 1
	}
	c.r = reassembly.NewRawReassembler(c.cfg.RawConfig, c.log)
	if c.cfg.Directory != "" {
		c.writer = capture.NewSequentialWriter(capture.SequentialConfig{
			Directory:        c.cfg.Directory,
			Prefix:           "raw_burst",
			MaxFileSizeBytes: c.cfg.MaxFileSizeBytes,
		}, c.log)
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("raw consumer: writing persisted buffer failed", "error", err, "buffer_counter", meta.BufferCounter)
			}
		})
	}
	return nil
}

func (c *rawConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

func (c *rawConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tile, ok := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	tf := spead.DecodeTileInfo(tile.Value)
	ant, ok := spead.FindEither(p.View, spead.ItemAntennaInfoA, spead.ItemAntennaInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	af := spead.DecodeAntennaInfo(ant.Value)

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tf.TileID, uint32(af.StartAntenna), tf.PolID); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("raw consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *rawConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.writer != nil {
		c.writer.Close()
	}
}

func (c *rawConsumer) Cleanup() {}
