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

type beamPluginConfig struct {
	reassembly.BeamConfig `mapstructure:",squash"`
	Directory             string
	MaxFileSizeBytes      int64
}

type beamBurstConsumer struct {
	log    *slog.Logger
	cfg    beamPluginConfig
	r      *reassembly.BeamBurstReassembler
	writer *capture.SequentialWriter
}

func newBeamBurstConsumer(log *slog.Logger) *beamBurstConsumer { return &beamBurstConsumer{log: log} }

func (c *beamBurstConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewBeamBurstReassembler(c.cfg.BeamConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "beam_burst", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("beam burst consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *beamBurstConsumer) Filter(mode spead.CaptureMode) bool { return c.r != nil && c.r.Accept(mode) }

func (c *beamBurstConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tile, ok := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ch, ok := spead.FindEither(p.View, spead.ItemChannelInfoA, spead.ItemChannelInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	tf := spead.DecodeTileInfo(tile.Value)
	cf := spead.DecodeChannelInfo(ch.Value)

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	sampleIndex := int(cf.PacketIndex) * c.cfg.SamplesPerPacket
	if err := c.r.Process(pkt, tf.TileID, tf.PolID, sampleIndex); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("beam burst consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *beamBurstConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.writer != nil {
		c.writer.Close()
	}
}
func (c *beamBurstConsumer) Cleanup() {}

type beamIntegratedConsumer struct {
	log    *slog.Logger
	cfg    beamPluginConfig
	r      *reassembly.BeamIntegratedReassembler
	writer *capture.SequentialWriter
}

func newBeamIntegratedConsumer(log *slog.Logger) *beamIntegratedConsumer {
	return &beamIntegratedConsumer{log: log}
}

func (c *beamIntegratedConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewBeamIntegratedReassembler(c.cfg.BeamConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "beam_integrated", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("beam integrated consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *beamIntegratedConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

func (c *beamIntegratedConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tile, ok := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ch, ok := spead.FindEither(p.View, spead.ItemChannelInfoA, spead.ItemChannelInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	beam, ok := p.View.Find(spead.ItemBeamInfo)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	tf := spead.DecodeTileInfo(tile.Value)
	cf := spead.DecodeChannelInfo(ch.Value)
	bf := spead.DecodeBeamInfo(beam.Value)

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tf.TileID, uint32(bf.BeamID), uint32(cf.ChannelID), bf.PolID); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("beam integrated consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *beamIntegratedConsumer) OnStreamEnd() {
	if c.writer != nil {
		c.writer.Close()
	}
}
func (c *beamIntegratedConsumer) Cleanup() {}
