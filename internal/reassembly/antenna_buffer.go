package reassembly

import (
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

const discoveryTimeout = 100 * time.Microsecond // 0.1 ms per §4.4.3

// AntennaBufferConfig configures the antenna-buffer reassembler.
type AntennaBufferConfig struct {
	NofAntennas int `mapstructure:"nof_antennas"`
	NofSamples  int `mapstructure:"nof_samples"`
	NofTiles    int `mapstructure:"nof_tiles"`
}

// AntennaBufferReassembler aligns per-FPGA streams from multiple tiles
// during a discovery phase, then scatters into [tile, antenna, sample,
// pol]. Each packet's payload is copied contiguously from its start
// antenna, 4-sample block and pol; the FPGA index is used only for
// discovery, and no interleaving across the two FPGAs of a tile is
// applied.
type AntennaBufferReassembler struct {
	base
	cfg AntennaBufferConfig

	discovering    bool
	discoveryStart time.Time
	firstSample    map[uint32]uint64 // global_fpga_id -> first global sample index seen
	baseSample     uint64

	lastBufferIndex int // logical buffer number of the last packet scattered, -1 before the first
}

// NewAntennaBufferReassembler constructs the antenna-buffer variant,
// starting in its discovery phase.
func NewAntennaBufferReassembler(cfg AntennaBufferConfig, log *slog.Logger) *AntennaBufferReassembler {
	const nofPols = 2
	size := cfg.NofTiles * cfg.NofAntennas * cfg.NofSamples * nofPols
	return &AntennaBufferReassembler{
		base:            newBase(size, CounterWidth32, float64(spead.ScaleAntennaBuffer), spead.ScaleAntennaBuffer, log),
		cfg:             cfg,
		discovering:     true,
		firstSample:     make(map[uint32]uint64),
		lastBufferIndex: -1,
	}
}

// Accept reports whether mode is the antenna-buffer family. The mode
// itself is resolved by spead.View.CaptureMode, which finds item 0x2004
// by scanning every item rather than relying on a fixed item-index
// convention that firmware revisions have been observed to violate.
func (r *AntennaBufferReassembler) Accept(mode spead.CaptureMode) bool {
	return mode == spead.CaptureModeAntennaBuffer
}

// globalFpgaID combines tile and FPGA index per §4.4.3.
func globalFpgaID(tileID uint16, fpgaID uint8) uint32 {
	return uint32(tileID)*2 + uint32(fpgaID)
}

// noteDiscovery records the first global sample index seen from each
// FPGA and ends the discovery phase once every FPGA has reported or the
// wall-clock timeout elapses.
func (r *AntennaBufferReassembler) noteDiscovery(fpgaID uint32, globalSampleIndex uint64) {
	if r.discoveryStart.IsZero() {
		r.discoveryStart = time.Now()
	}
	if _, seen := r.firstSample[fpgaID]; !seen {
		r.firstSample[fpgaID] = globalSampleIndex
	}

	allReported := len(r.firstSample) >= 2*r.cfg.NofTiles
	timedOut := time.Since(r.discoveryStart) >= discoveryTimeout
	if !allReported && !timedOut {
		return
	}

	var max uint64
	for _, v := range r.firstSample {
		if v > max {
			max = v
		}
	}
	r.baseSample = max
	r.discovering = false
}

// Process scatters one antenna-buffer packet. During discovery,
// packets only feed alignment bookkeeping; once discovery ends, packets
// with a global sample index below baseSample are dropped and the rest
// are scattered by sampleOffset = globalSampleIndex - baseSample.
func (r *AntennaBufferReassembler) Process(p Packet, tileID uint16, fpgaID uint8, antennaID uint32, globalSampleIndex uint64, pol uint8) error {
	fpga := globalFpgaID(tileID, fpgaID)

	if r.discovering {
		r.noteDiscovery(fpga, globalSampleIndex)
		return nil
	}

	if globalSampleIndex < r.baseSample {
		return nil
	}
	sampleOffset := globalSampleIndex - r.baseSample

	samplesPerPacket := uint64(4) // 4-sample blocks per antenna per §4.4.4
	bufferIndex := int(sampleOffset / uint64(r.cfg.NofSamples))
	packetIndex := int((sampleOffset % uint64(r.cfg.NofSamples)) / samplesPerPacket)

	if r.lastBufferIndex >= 0 && bufferIndex != r.lastBufferIndex {
		r.advancePerTile(r.rowSize(), func(cc *Container, row int, tileID uint16) Metadata {
			return Metadata{TileOrChannelID: uint32(tileID), NofPackets: cc.PacketCount, BufferCounter: cc.ReferenceCounter, StartSampleIndex: sampleOffset}
		})
	}
	r.lastBufferIndex = bufferIndex

	c := r.currentContainer()
	row, ok := c.Tiles.RowFor(tileID, r.cfg.NofTiles)
	if !ok {
		return nil
	}

	const nofPols = 2
	sampleStart := packetIndex * int(samplesPerPacket)
	off := row*r.cfg.NofAntennas*r.cfg.NofSamples*nofPols +
		int(antennaID)*r.cfg.NofSamples*nofPols +
		sampleStart*nofPols +
		int(pol)

	scatter(c.Samples, off, p.Payload)
	c.Tiles.NoteTimestamp(row, p.Timestamp)

	counter, _ := p.View.HeapCounter()
	r.admit(c, counter, p.Timestamp)
	return nil
}

func (r *AntennaBufferReassembler) rowSize() int {
	const nofPols = 2
	return r.cfg.NofAntennas * r.cfg.NofSamples * nofPols
}

func (r *AntennaBufferReassembler) Flush() {
	r.base.FlushPerTile(r.rowSize(), func(c *Container, row int, tileID uint16) Metadata {
		return Metadata{TileOrChannelID: uint32(tileID), NofPackets: c.PacketCount, BufferCounter: c.ReferenceCounter}
	})
}
