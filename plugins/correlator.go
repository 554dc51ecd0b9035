package plugins

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/capture"
	"github.com/skalabs/stationdaq/internal/doublebuffer"
	"github.com/skalabs/stationdaq/internal/reassembly"
	"github.com/skalabs/stationdaq/internal/spead"
	"github.com/skalabs/stationdaq/pkg/daq"
)

type correlatorPluginConfig struct {
	reassembly.CorrelatorConfig `mapstructure:",squash"`
	Directory                   string
	MaxFileSizeBytes            int64
	HandoffSlots                uint32
}

// correlatorConsumer moves channelised data into the layout the
// correlator kernel expects; it performs no correlation itself. Each
// completed buffer is pushed onto a handoff double-buffer alongside an
// optional on-disk copy, since the correlator kernel it feeds is an
// external collaborator that drains buffers on its own schedule.
type correlatorConsumer struct {
	log     *slog.Logger
	cfg     correlatorPluginConfig
	r       *reassembly.CorrelatorReassembler
	writer  *capture.SequentialWriter
	handoff *doublebuffer.DoubleBuffer
}

func newCorrelatorConsumer(log *slog.Logger) *correlatorConsumer {
	return &correlatorConsumer{log: log}
}

func (c *correlatorConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	c.r = reassembly.NewCorrelatorReassembler(c.cfg.CorrelatorConfig, c.log)
	c.writer = openWriter(c.cfg.Directory, "correlator", c.cfg.MaxFileSizeBytes, c.log)
	c.handoff = doublebuffer.New(c.cfg.HandoffSlots, c.log)

	c.r.SetCallback(func(data []byte, ts time.Time, meta reassembly.Metadata) {
		if c.writer != nil {
			if err := c.writer.Write(data); err != nil {
				c.log.Error("correlator consumer: write failed", "error", err)
			}
		}
		c.handoff.WriteData(0, uint32(c.cfg.NofAntennas), 0, 0, data, ts)
		c.handoff.FinishWrite()
	})
	return nil
}

// Handoff exposes the double-buffer a correlator kernel drains
// completed buffers from; the kernel itself lives outside this module.
func (c *correlatorConsumer) Handoff() *doublebuffer.DoubleBuffer {
	return c.handoff
}

func (c *correlatorConsumer) Filter(mode spead.CaptureMode) bool { return c.r != nil && c.r.Accept(mode) }

func (c *correlatorConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	tileID, ch, ant, ok := decodePacket(p)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, tileID, uint32(ch.ChannelID), uint32(ant.StartAntenna)); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("correlator consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *correlatorConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.writer != nil {
		c.writer.Close()
	}
}

func (c *correlatorConsumer) Cleanup() {}
