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

const captureStartTimeLayout = "2006/01/02_15:04"

type stationBeamPluginConfig struct {
	reassembly.StationBeamConfig `mapstructure:",squash"`
	Directory                    string
	MaxFileSizeBytes             int64
	Dada                         bool
	IndividualChannels           bool
	CaptureStartTime             string
}

// stationBeamConsumer binds the station-beam reassembler to the
// gap-filling, file-rotating capture pipeline.
type stationBeamConsumer struct {
	log *slog.Logger
	cfg stationBeamPluginConfig
	r   *reassembly.StationBeamReassembler
	cap *capture.StationBeamCapture
}

func newStationBeamConsumer(log *slog.Logger) *stationBeamConsumer {
	return &stationBeamConsumer{log: log}
}

func (c *stationBeamConsumer) Init(config map[string]any) error {
	if err := decodeConfig(config, &c.cfg); err != nil {
		return err
	}
	if c.cfg.SamplesPerPacket == 0 {
		c.cfg.SamplesPerPacket = 1
	}
	c.r = reassembly.NewStationBeamReassembler(c.cfg.StationBeamConfig, c.log)

	var startTime time.Time
	if c.cfg.CaptureStartTime != "" {
		t, err := time.Parse(captureStartTimeLayout, c.cfg.CaptureStartTime)
		if err != nil {
			return fmt.Errorf("station beam consumer: parsing capture_start_time: %w", err)
		}
		startTime = t
	}

	const nofPols = 2
	bufferBytes := int64(c.cfg.NofChannels * c.cfg.NofSamples * nofPols)

	if c.cfg.Directory != "" {
		capCfg := capture.Config{
			Directory:          c.cfg.Directory,
			FirstChannel:       c.cfg.StartChannel,
			ChannelsInFile:     c.cfg.NofChannels,
			MaxFileSizeBytes:   c.cfg.MaxFileSizeBytes,
			Dada:               c.cfg.Dada,
			IndividualChannels: c.cfg.IndividualChannels,
			CaptureStartTime:   startTime,
			SamplingPeriod:     spead.SamplingPeriod,
		}
		cap, err := capture.New(capCfg, bufferBytes, c.log)
		if err != nil {
			return fmt.Errorf("station beam consumer: %w", err)
		}
		c.cap = cap

		c.r.SetCallback(func(data []byte, ts time.Time, meta reassembly.Metadata) {
			if err := c.cap.Write(data, ts, meta); err != nil {
				c.log.Error("station beam consumer: write failed", "error", err, "buffer_counter", meta.BufferCounter)
			}
		})
	}
	return nil
}

func (c *stationBeamConsumer) Filter(mode spead.CaptureMode) bool {
	return c.r != nil && c.r.Accept(mode)
}

func (c *stationBeamConsumer) Process(p daq.Packet) (daq.ProcessResult, error) {
	sync, ok := p.View.Find(spead.ItemSyncTime)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ts, ok := p.View.Find(spead.ItemTimestamp)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	ch, ok := spead.FindEither(p.View, spead.ItemChannelInfoA, spead.ItemChannelInfoB)
	if !ok {
		return daq.ProcessResult{}, nil
	}
	cf := spead.DecodeChannelInfo(ch.Value)
	pol := uint8(0)
	if tile, found := spead.FindEither(p.View, spead.ItemTileInfoA, spead.ItemTileInfoB); found {
		pol = spead.DecodeTileInfo(tile.Value).PolID
	}

	sampleIndex := int(cf.PacketIndex) * c.cfg.SamplesPerPacket
	logicalChannel := int(cf.ChannelID) - c.cfg.StartChannel

	pkt := reassembly.Packet{View: p.View, Payload: p.Payload, Timestamp: p.Timestamp}
	if err := c.r.Process(pkt, sync.Value, ts.Value, sampleIndex, pol, logicalChannel); err != nil {
		return daq.ProcessResult{}, fmt.Errorf("station beam consumer: %w", err)
	}
	return daq.ProcessResult{Accepted: true}, nil
}

func (c *stationBeamConsumer) OnStreamEnd() {
	if c.r != nil {
		c.r.Flush()
	}
	if c.cap != nil {
		c.cap.Close()
	}
}

func (c *stationBeamConsumer) Cleanup() {}
