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

type channelPluginConfig struct {
	reassembly.ChannelConfig `mapstructure:",squash"`
	Directory                string
	MaxFileSizeBytes         int64
}

func decodePacket(p daq.Packet) (tileID uint16, channel spead.ChannelFields, antenna spead.AntennaFields, ok bool) {
	tile, found := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	if !found {
		return 0, spead.ChannelFields{}, spead.AntennaFields{}, false
	}
	ch, found := spead.FindEither(p.View, spead.ItemChannelInfoA, spead.ItemChannelInfoB)
	if !found {
		return 0, spead.ChannelFields{}, spead.AntennaFields{}, false
	}
	ant, found := spead.FindEither(p.View, spead.ItemAntennaInfoA, spead.ItemAntennaInfoB)
	if !found {
		return 0, spead.ChannelFields{}, spead.AntennaFields{}, false
	}
	tf := spead.DecodeTileInfo(tile.Value)
	return tf.TileID, spead.DecodeChannelInfo(ch.Value), spead.DecodeAntennaInfo(ant.Value), true
}

func openWriter(dir, prefix string, maxBytes int64, log *slog.Logger) *capture.SequentialWriter {
	if dir == "" {
		return nil
	}
	return capture.NewSequentialWriter(capture.SequentialConfig{Directory: dir, Prefix: prefix, MaxFileSizeBytes: maxBytes}, log)
}

// -- burst --------------------------------------------------------------

type channelBurstConsumer struct {
	log    *slog.Logger
	cfg    channelPluginConfig
	r      *reassembly.ChannelBurstReassembler
	writer *capture.SequentialWriter
}

func newChannelBurstConsumer(log *slog.Logger) *channelBurstConsumer { return &channelBurstConsumer{log: log} }

func (c *channelBurstConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	if c.cfg.SamplesPerPacket == 0 {
		c.cfg.SamplesPerPacket = 1
	}
	c.r = reassembly.NewChannelBurstReassembler(c.cfg.ChannelConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "channel_burst", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("channel burst consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *channelBurstConsumer) Filter(mode spead.CaptureMode) bool { return c.r != nil && c.r.Accept(mode) }

func (c *channelBurstConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tileID, ch, ant, ok := decodePacket(p)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	sampleIndex := int(ch.PacketIndex) * c.cfg.SamplesPerPacket
	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tileID, uint32(ch.ChannelID), uint32(ant.StartAntenna), sampleIndex); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("channel burst consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *channelBurstConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.writer != nil {
		c.writer.Close()
	}
}
func (c *channelBurstConsumer) Cleanup() {}

// -- continuous -----------------------------------------------------------

type channelContinuousConsumer struct {
	log    *slog.Logger
	cfg    channelPluginConfig
	r      *reassembly.ChannelContinuousReassembler
	writer *capture.SequentialWriter
}

func newChannelContinuousConsumer(log *slog.Logger) *channelContinuousConsumer {
	return &channelContinuousConsumer{log: log}
}

func (c *channelContinuousConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewChannelContinuousReassembler(c.cfg.ChannelConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "channel_continuous", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("channel continuous consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *channelContinuousConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

func (c *channelContinuousConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tileID, ch, ant, ok := decodePacket(p)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	tile, _ := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB)
	tf := spead.DecodeTileInfo(tile.Value)

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tileID, uint32(ch.ChannelID), uint32(ant.StartAntenna), tf.PolID, int(ch.PacketIndex)); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("channel continuous consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *channelContinuousConsumer) OnStreamEnd() {
	if c.writer != nil {
		c.writer.Close()
	}
}
func (c *channelContinuousConsumer) Cleanup() {}

// -- integrated -----------------------------------------------------------

type channelIntegratedConsumer struct {
	log    *slog.Logger
	cfg    channelPluginConfig
	r      *reassembly.ChannelIntegratedReassembler
	writer *capture.SequentialWriter
}

func newChannelIntegratedConsumer(log *slog.Logger) *channelIntegratedConsumer {
	return &channelIntegratedConsumer{log: log}
}

func (c *channelIntegratedConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewChannelIntegratedReassembler(c.cfg.ChannelConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "channel_integrated", c.cfg.MaxFileSizeBytes, c.log)
	if c.writer != nil {
		c.r.SetCallback(func(data []byte, _ time.Time, meta reassembly.Metadata) {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("channel integrated consumer: write failed", "error", err)
			}
		})
	}
	return nil
}

func (c *channelIntegratedConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

func (c *channelIntegratedConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tileID, ch, ant, ok := decodePacket(p)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tileID, uint32(ch.ChannelID), uint32(ant.StartAntenna)); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("channel integrated consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *channelIntegratedConsumer) OnStreamEnd() {
	if c.writer != nil {
		c.writer.Close()
	}
}
func (c *channelIntegratedConsumer) Cleanup() {}
