package reassembly

import (
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

// RawConfig configures a raw-burst reassembler.
type RawConfig struct {
	NofAntennas      int `mapstructure:"nof_antennas"`
	SamplesPerBuffer int `mapstructure:"samples_per_buffer"`
	NofTiles         int `mapstructure:"nof_tiles"`
	NofPols          int `mapstructure:"nof_pols"`
	SamplesPerPacket int `mapstructure:"samples_per_packet"`
}

// RawReassembler scatters raw-antenna packets into [tile, antenna,
// sample, pol] containers, one buffer per tile.
type RawReassembler struct {
	base
	cfg RawConfig
}

// NewRawReassembler constructs a reassembler for the raw-burst family.
func NewRawReassembler(cfg RawConfig, log *slog.Logger) *RawReassembler {
	size := cfg.NofTiles * cfg.NofAntennas * cfg.SamplesPerBuffer * cfg.NofPols
	return &RawReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

// Accept reports whether this reassembler's packet filter matches the
// packet's capture mode.
func (r *RawReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeRawBurst || mode == spead.CaptureModeRawSync
}

// Process scatters one raw packet into the current container, routing
// late packets to the previous container per §4.4.1. It never persists
// a buffer itself: raw streams have no boundary trigger of their own
// beyond filling the buffer exactly once (§8 scenario S1): the caller
// invokes Flush when the configured sample count has been received.
func (r *RawReassembler) Process(p Packet, tileID uint16, antennaID uint32, polID uint8) error {
	counter, _ := p.View.HeapCounter()
	pivot := tileID == 0 && polID == 0
	counter = r.rollover.Reconstruct(counter, pivot)

	c := r.currentContainer()
	target := c
	if c.HasData() && p.Timestamp.Before(c.ReferenceTime) {
		target = r.previousContainer()
	}

	row, ok := target.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	nofSamples := r.cfg.SamplesPerBuffer

	packetIndex := 0
	if c.HasData() {
		packetIndex = int((counter - c.ReferenceCounter)) % (nofSamples / r.cfg.SamplesPerPacket)
	}
	offset := row*r.cfg.NofAntennas*nofSamples*r.cfg.NofPols +
		int(antennaID)*nofSamples*r.cfg.NofPols +
		packetIndex*r.cfg.SamplesPerPacket*r.cfg.NofPols

	scatter(target.Samples, offset, p.Payload)
	target.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(target, counter, p.Timestamp)
	return nil
}

func (r *RawReassembler) rowSize() int {
	return r.cfg.NofAntennas * r.cfg.SamplesPerBuffer * r.cfg.NofPols
}

// Flush forces the current buffer out once the configured burst length
// has been captured.
func (r *RawReassembler) Flush() {
	r.base.FlushPerTile(r.rowSize(), func(c *Container, row int, tileID uint16) Metadata {
		return Metadata{TileOrChannelID: uint32(tileID), NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}

// ChannelConfig configures the channelised burst/continuous/integrated
// reassemblers.
type ChannelConfig struct {
	NofTiles         int `mapstructure:"nof_tiles"`
	NofChannels      int `mapstructure:"nof_channels"`
	NofSamples       int `mapstructure:"nof_samples"`
	NofAntennas      int `mapstructure:"nof_antennas"`
	NofPols          int `mapstructure:"nof_pols"`
	SamplesPerPacket int `mapstructure:"samples_per_packet"`
	NofBufferSkips   int `mapstructure:"nof_buffer_skips"`
}

// ChannelBurstReassembler scatters into [tile, channel, sample,
// antenna, pol]; a single burst always fills exactly one buffer.
type ChannelBurstReassembler struct {
	base
	cfg ChannelConfig
}

func channelContainerSize(cfg ChannelConfig) int {
	return cfg.NofTiles * cfg.NofChannels * cfg.NofSamples * cfg.NofAntennas * cfg.NofPols
}

// NewChannelBurstReassembler constructs the burst-channel variant.
func NewChannelBurstReassembler(cfg ChannelConfig, log *slog.Logger) *ChannelBurstReassembler {
	return &ChannelBurstReassembler{
		base: newBase(channelContainerSize(cfg), CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

func (r *ChannelBurstReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeChannelBurst
}

func (r *ChannelBurstReassembler) scatterOffset(c *Container, tileID uint16, channel, antenna uint32, sampleIndex int) (int, int, bool) {
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return 0, 0, false
	}
	return row, row*r.cfg.NofChannels*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols +
		int(channel)*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols +
		sampleIndex*r.cfg.NofAntennas*r.cfg.NofPols +
		int(antenna)*r.cfg.NofPols, true
}

func (r *ChannelBurstReassembler) rowSize() int {
	return r.cfg.NofChannels * r.cfg.NofSamples * r.cfg.NofAntennas * r.cfg.NofPols
}

// Process writes one packet's samples into the current burst buffer.
func (r *ChannelBurstReassembler) Process(p Packet, tileID uint16, channel, antenna uint32, sampleIndex int) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0)

	c := r.currentContainer()
	row, off, ok := r.scatterOffset(c, tileID, channel, antenna, sampleIndex)
	if !ok {
		return nil
	}
	scatter(c.Samples, off, p.Payload)
	c.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(c, counter, p.Timestamp)
	return nil
}

func (r *ChannelBurstReassembler) Flush() {
	r.base.FlushPerTile(r.rowSize(), func(c *Container, row int, tileID uint16) Metadata {
		return Metadata{TileOrChannelID: uint32(tileID), NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}

// ChannelContinuousReassembler is the free-running channelised stream:
// buffers are cut on a packet-count/time boundary rather than a fixed
// burst length, and every Nth boundary can be skipped (nof_buffer_skips)
// so the persisted cadence is coarser than the capture cadence.
//
// Per the buffer-skip decision recorded for this stream: current_container
// always advances on a boundary; persistence is what gets skipped, not
// the container rotation. skipCounter counts boundaries since the last
// actual persist.
type ChannelContinuousReassembler struct {
	base
	cfg         ChannelConfig
	skipCounter int
}

// NewChannelContinuousReassembler constructs the continuous-channel variant.
func NewChannelContinuousReassembler(cfg ChannelConfig, log *slog.Logger) *ChannelContinuousReassembler {
	return &ChannelContinuousReassembler{
		base: newBase(channelContainerSize(cfg), CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

func (r *ChannelContinuousReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeChannelContinuous
}

// boundaryTrigger evaluates the continuous-channel trigger from §4.4.1:
// packet_index == 0 AND packet_time >= reference_time + nof_samples *
// sampling_period AND num_packets > 2*nof_tiles AND tile_id==0 AND pol_id==0.
func (r *ChannelContinuousReassembler) boundaryTrigger(c *Container, packetIndex int, at time.Time, tileID uint16, polID uint8) bool {
	if packetIndex != 0 || tileID != 0 || polID != 0 {
		return false
	}
	bufferSpan := time.Duration(float64(r.cfg.NofSamples) * spead.SamplingPeriod * float64(time.Second))
	threshold := c.ReferenceTime.Add(bufferSpan)
	if at.Before(threshold) {
		return false
	}
	return c.PacketCount > uint64(2*r.cfg.NofTiles)
}

// Process scatters a continuous-channel packet and evaluates the
// boundary trigger, persisting only every (nof_buffer_skips+1)th
// boundary.
func (r *ChannelContinuousReassembler) Process(p Packet, tileID uint16, channel, antenna uint32, polID uint8, packetIndex int) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0 && polID == 0)

	c := r.currentContainer()

	if c.HasData() && p.Timestamp.Before(c.ReferenceTime) {
		prev := r.previousContainer()
		row, ok := prev.Tiles.RowFor(tileID, r.cfg.NofTiles)
		if !ok {
			return nil
		}
		off := row*r.cfg.NofChannels*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols +
			int(channel)*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols
		scatter(prev.Samples, off, p.Payload)
		prev.Tiles.NoteTimestamp(row, p.Timestamp)
		return nil
	}

	if c.HasData() && r.boundaryTrigger(c, packetIndex, p.Timestamp, tileID, polID) {
		r.skipCounter++
		shouldPersist := r.skipCounter > r.cfg.NofBufferSkips
		if shouldPersist {
			r.skipCounter = 0
			r.advancePerTile(r.rowSize(), func(cc *Container, row int, tileID uint16) Metadata {
				return Metadata{TileOrChannelID: uint32(tileID), NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter}
			})
		} else {
			// Boundary crossed but persistence deferred: rotate the
			// container ring without invoking the consumer callback.
			stepped := r.currentContainer()
			r.current = (r.current + 1) % nofContainers
			r.currentContainer().Reset()
			stepped.Reset()
		}
		c = r.currentContainer()
	}

	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	off := row*r.cfg.NofChannels*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols +
		int(channel)*r.cfg.NofSamples*r.cfg.NofAntennas*r.cfg.NofPols
	scatter(c.Samples, off, p.Payload)
	c.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(c, counter, p.Timestamp)
	return nil
}

func (r *ChannelContinuousReassembler) rowSize() int {
	return r.cfg.NofChannels * r.cfg.NofSamples * r.cfg.NofAntennas * r.cfg.NofPols
}

// ChannelIntegratedReassembler scatters pre-integrated channel data;
// unlike burst/continuous, one packet may already represent a full
// integration period so the boundary is simply "one packet, one
// buffer" for a given tile.
type ChannelIntegratedReassembler struct {
	base
	cfg ChannelConfig
}

func NewChannelIntegratedReassembler(cfg ChannelConfig, log *slog.Logger) *ChannelIntegratedReassembler {
	size := cfg.NofTiles * cfg.NofChannels * cfg.NofAntennas * cfg.NofPols
	return &ChannelIntegratedReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

func (r *ChannelIntegratedReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeChannelIntegrated
}

func (r *ChannelIntegratedReassembler) Process(p Packet, tileID uint16, channel, antenna uint32) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0)

	c := r.currentContainer()
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	off := row*r.cfg.NofChannels*r.cfg.NofAntennas*r.cfg.NofPols +
		int(channel)*r.cfg.NofAntennas*r.cfg.NofPols +
		int(antenna)*r.cfg.NofPols
	scatter(c.Samples, off, p.Payload)
	c.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(c, counter, p.Timestamp)

	if c.Tiles.Len() >= r.cfg.NofTiles {
		r.advancePerTile(r.rowSize(), func(cc *Container, row int, tileID uint16) Metadata {
			return Metadata{TileOrChannelID: uint32(tileID), NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter}
		})
	}
	return nil
}

func (r *ChannelIntegratedReassembler) rowSize() int {
	return r.cfg.NofChannels * r.cfg.NofAntennas * r.cfg.NofPols
}

// BeamConfig configures the beamformed burst/integrated reassemblers.
type BeamConfig struct {
	NofTiles         int `mapstructure:"nof_tiles"`
	NofChannels      int `mapstructure:"nof_channels"`
	NofSamples       int `mapstructure:"nof_samples"`
	NofPols          int `mapstructure:"nof_pols"`
	NofBeams         int `mapstructure:"nof_beams"`
	SamplesPerPacket int `mapstructure:"samples_per_packet"`
}

// BeamBurstReassembler scatters into [tile, pol, sample, channel]. The
// transpose into that layout is done at scatter time in Process, so a
// persisted buffer needs no further reordering.
type BeamBurstReassembler struct {
	base
	cfg BeamConfig
}

func NewBeamBurstReassembler(cfg BeamConfig, log *slog.Logger) *BeamBurstReassembler {
	size := cfg.NofTiles * cfg.NofPols * cfg.NofSamples * cfg.NofChannels
	return &BeamBurstReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

func (r *BeamBurstReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeBeamBurst
}

// Process writes the first NofChannels payload bytes, one per channel,
// as sample sampleIndex of the container's [tile, pol, sample, channel]
// layout. Payload bytes beyond the first NofChannels are not written.
func (r *BeamBurstReassembler) Process(p Packet, tileID uint16, polID uint8, sampleIndex int) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0 && polID == 0)

	c := r.currentContainer()
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	base := row*r.cfg.NofPols*r.cfg.NofSamples*r.cfg.NofChannels + int(polID)*r.cfg.NofSamples*r.cfg.NofChannels

	for ch := 0; ch < r.cfg.NofChannels && ch < len(p.Payload); ch++ {
		dst := base + sampleIndex*r.cfg.NofChannels + ch
		if dst < len(c.Samples) {
			c.Samples[dst] = p.Payload[ch]
		}
	}
	c.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(c, counter, p.Timestamp)
	return nil
}

func (r *BeamBurstReassembler) rowSize() int {
	return r.cfg.NofPols * r.cfg.NofSamples * r.cfg.NofChannels
}

func (r *BeamBurstReassembler) Flush() {
	r.base.FlushPerTile(r.rowSize(), func(c *Container, row int, tileID uint16) Metadata {
		return Metadata{TileOrChannelID: uint32(tileID), NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}

// BeamIntegratedReassembler scatters into [tile, beam, channel, pol]
// two-pol planes.
type BeamIntegratedReassembler struct {
	base
	cfg BeamConfig
}

func NewBeamIntegratedReassembler(cfg BeamConfig, log *slog.Logger) *BeamIntegratedReassembler {
	size := cfg.NofTiles * cfg.NofBeams * cfg.NofChannels * cfg.NofPols
	return &BeamIntegratedReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

func (r *BeamIntegratedReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeBeamIntegrated
}

func (r *BeamIntegratedReassembler) Process(p Packet, tileID uint16, beam, channel uint32, pol uint8) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0)

	c := r.currentContainer()
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	off := row*r.cfg.NofBeams*r.cfg.NofChannels*r.cfg.NofPols +
		int(beam)*r.cfg.NofChannels*r.cfg.NofPols +
		int(channel)*r.cfg.NofPols +
		int(pol)
	scatter(c.Samples, off, p.Payload)
	c.Tiles.NoteTimestamp(row, p.Timestamp)
	r.admit(c, counter, p.Timestamp)

	if c.Tiles.Len() >= r.cfg.NofTiles {
		r.advancePerTile(r.rowSize(), func(cc *Container, row int, tileID uint16) Metadata {
			return Metadata{TileOrChannelID: uint32(tileID), NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter}
		})
	}
	return nil
}

func (r *BeamIntegratedReassembler) rowSize() int {
	return r.cfg.NofBeams * r.cfg.NofChannels * r.cfg.NofPols
}

// CorrelatorConfig configures the correlator hand-off reassembler:
// only data movement into [tile, channel, fine_channel, antenna, pol]
// position is this package's concern; the correlation itself happens
// downstream.
type CorrelatorConfig struct {
	NofAntennas     int `mapstructure:"nof_antennas"`
	NofChannels     int `mapstructure:"nof_channels"`
	NofFineChannels int `mapstructure:"nof_fine_channels"`
	NofTiles        int `mapstructure:"nof_tiles"`
	NofPols         int `mapstructure:"nof_pols"`
}

// CorrelatorReassembler scatters pre-channelised fine-resolution
// samples destined for the correlator kernel; one packet fills one
// (tile, channel) plane's fine-channel row for a given antenna.
type CorrelatorReassembler struct {
	base
	cfg CorrelatorConfig
}

func NewCorrelatorReassembler(cfg CorrelatorConfig, log *slog.Logger) *CorrelatorReassembler {
	size := cfg.NofTiles * cfg.NofChannels * cfg.NofFineChannels * cfg.NofAntennas * cfg.NofPols
	return &CorrelatorReassembler{
		base: newBase(size, CounterWidth32, spead.SamplingPeriod, spead.ScaleStandard, log),
		cfg:  cfg,
	}
}

// Accept shares the channel-integrated wire family: correlator input
// is pre-channelised data, distinguished from a plain integrated-
// channel consumer only by which plugin is loaded against it.
func (r *CorrelatorReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeChannelIntegrated
}

func (r *CorrelatorReassembler) Process(p Packet, tileID uint16, channel, antenna uint32) error {
	counter, _ := p.View.HeapCounter()
	counter = r.rollover.Reconstruct(counter, tileID == 0)

	c := r.currentContainer()
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}
	off := row*r.cfg.NofChannels*r.cfg.NofFineChannels*r.cfg.NofAntennas*r.cfg.NofPols +
		int(channel)*r.cfg.NofFineChannels*r.cfg.NofAntennas*r.cfg.NofPols +
		int(antenna)*r.cfg.NofPols
	scatter(c.Samples, off, p.Payload)
	r.admit(c, counter, p.Timestamp)

	if c.Tiles.Len() >= r.cfg.NofTiles {
		r.advance(func(cc *Container) Metadata {
			return Metadata{NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter}
		})
	}
	return nil
}

func (r *CorrelatorReassembler) Flush() {
	r.base.Flush(func(c *Container) Metadata {
		return Metadata{NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}

// scatter copies src into dst starting at offset, clamping to dst's
// bounds so a malformed or truncated packet never panics the
// reassembler goroutine.
func scatter(dst []byte, offset int, src []byte) {
	if offset < 0 || offset >= len(dst) {
		return
	}
	copy(dst[offset:], src)
}
