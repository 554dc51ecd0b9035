package reassembly

import (
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

// StationBeamConfig configures the station-beam reassembler.
type StationBeamConfig struct {
	StartChannel     int  `mapstructure:"start_channel"`
	NofChannels      int  `mapstructure:"nof_channels"`
	NofSamples       int  `mapstructure:"nof_samples"`
	TransposeSamples bool `mapstructure:"transpose_samples"`
	SamplesPerPacket int  `mapstructure:"samples_per_packet"`

	// LegacyCounterShift selects the packet_counter >> 3 variant some
	// firmware revisions require before comparing against
	// buffer_start_counter. Off by default; enable per firmware revision.
	LegacyCounterShift bool `mapstructure:"legacy_counter_shift"`
}

// StationBeamReassembler scatters into [channel, sample, pol] (or its
// transpose [sample, channel, pol] when nof_channels > 1 and
// TransposeSamples is set), one buffer per station.
type StationBeamReassembler struct {
	base
	cfg                StationBeamConfig
	bufferStartCounter uint64
	haveStart          bool
}

// NewStationBeamReassembler constructs the station-beam variant. It
// resolves its timestamp scale from whether the packet stream carries
// a scan-ID item, decided per packet in Process since the scale can
// only be known once a packet's items are visible.
func NewStationBeamReassembler(cfg StationBeamConfig, log *slog.Logger) *StationBeamReassembler {
	const nofPols = 2
	size := cfg.NofChannels * cfg.NofSamples * nofPols
	return &StationBeamReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStationBeamLegacy, log),
		cfg:  cfg,
	}
}

func (r *StationBeamReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeStationBeam
}

// resolveTimestamp applies the scan-ID-aware scale from §6.
func (r *StationBeamReassembler) resolveTimestamp(view spead.View, syncTime, timestamp uint64) time.Time {
	scale := spead.ScaleStationBeamLegacy
	if _, ok := view.Find(spead.ItemScanID); ok {
		scale = spead.ScaleStationBeamScanID
	}
	return packetTime(syncTime, timestamp, scale)
}

// Process scatters one station-beam packet, evaluating the
// buffer-start boundary trigger: (packet_counter - buffer_start_counter)
// >= nof_samples/samples_in_packet on logical channel 0.
func (r *StationBeamReassembler) Process(p Packet, syncTime, rawTimestamp uint64, sampleIndex int, pol uint8, logicalChannel int) error {
	counter, _ := p.View.HeapCounter()
	if r.cfg.LegacyCounterShift {
		counter >>= 3
	}
	ts := r.resolveTimestamp(p.View, syncTime, rawTimestamp)

	if !r.haveStart {
		r.bufferStartCounter = counter
		r.haveStart = true
	}

	c := r.currentContainer()
	packetsPerBuffer := r.cfg.NofSamples / r.cfg.SamplesPerPacket
	if logicalChannel == 0 && c.HasData() && counter-r.bufferStartCounter >= uint64(packetsPerBuffer) {
		r.bufferStartCounter = counter
		r.advance(func(cc *Container) Metadata {
			return Metadata{NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter}
		})
		c = r.currentContainer()
	}

	nofPols := 2
	off := scatterOffsetStationBeam(r.cfg, logicalChannel, sampleIndex, int(pol), nofPols)
	scatter(c.Samples, off, p.Payload)
	r.admit(c, counter, ts)
	return nil
}

// scatterOffsetStationBeam computes the destination offset honouring
// the configured transpose: [channel, sample, pol] normally, or
// [sample, channel, pol] when TransposeSamples is set (multi-channel
// station-beam capture).
func scatterOffsetStationBeam(cfg StationBeamConfig, channel, sample, pol, nofPols int) int {
	if cfg.NofChannels == 1 || !cfg.TransposeSamples {
		return channel*cfg.NofSamples*nofPols + sample*nofPols + pol
	}
	return sample*cfg.NofChannels*nofPols + channel*nofPols + pol
}

func (r *StationBeamReassembler) Flush() {
	r.base.Flush(func(c *Container) Metadata {
		return Metadata{NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}
