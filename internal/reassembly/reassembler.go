package reassembly

import (
	"log/slog"
	"time"

	"github.com/skalabs/stationdaq/internal/spead"
)

// Metadata accompanies a persisted buffer to its consumer callback:
// which tile or channel it belongs to, how many packets built it, and
// where it starts in the stream.
type Metadata struct {
	TileOrChannelID  uint32
	Frequency        float64
	NofPackets       uint64
	BufferCounter    uint64
	StartSampleIndex uint64
}

// ConsumerCallback receives one completed buffer. It is a plain
// function value plus whatever closure state the registering consumer
// needs; reassemblers hold no back-reference to their consumer.
type ConsumerCallback func(data []byte, timestamp time.Time, meta Metadata)

// Packet is the decoded view a reassembler scatters into its
// containers: the validated SPEAD view plus the already-located
// payload bytes.
type Packet struct {
	View      spead.View
	Payload   []byte
	Timestamp time.Time
}

// boundary is the outcome of evaluating one packet against the current
// container's state.
type boundary int

const (
	boundaryNone boundary = iota
	boundaryPrevious
	boundaryAdvance
)

const nofContainers = 4

// base holds the state and behaviour common to every stream-family
// reassembler: the container ring, rollover tracking, and the
// persist/clear cycle. Family types embed base and supply their own
// boundary trigger and scatter logic.
type base struct {
	containers []*Container
	current    int

	rollover *RolloverTracker
	callback ConsumerCallback
	log      *slog.Logger

	samplingPeriod float64
	scale          spead.TimestampScale
}

func newBase(containerSize int, width CounterWidth, samplingPeriod float64, scale spead.TimestampScale, log *slog.Logger) base {
	containers := make([]*Container, nofContainers)
	for i := range containers {
		containers[i] = NewContainer(containerSize)
		containers[i].Reset()
	}
	if log == nil {
		log = slog.Default()
	}
	return base{
		containers:     containers,
		rollover:       NewRolloverTracker(width),
		log:            log,
		samplingPeriod: samplingPeriod,
		scale:          scale,
	}
}

// SetCallback attaches the consumer callback invoked on persist.
func (b *base) SetCallback(cb ConsumerCallback) {
	b.callback = cb
}

func (b *base) currentContainer() *Container {
	return b.containers[b.current]
}

func (b *base) previousContainer() *Container {
	return b.containers[(b.current-1+nofContainers)%nofContainers]
}

// packetTime computes sync_time + timestamp*scale per §6.
func packetTime(syncTime uint64, timestamp uint64, scale spead.TimestampScale) time.Time {
	seconds := float64(syncTime) + float64(timestamp)*float64(scale)
	return time.Unix(0, int64(seconds*1e9))
}

// admit records the packet against the current container's reference
// state if this is the first packet the container has seen, then
// increments the packet count. Callers invoke this after routing.
func (b *base) admit(c *Container, counter uint64, t time.Time) {
	if !c.HasData() {
		c.ReferenceCounter = counter
		c.ReferenceTime = t
	}
	if t.Before(c.Timestamp) {
		c.Timestamp = t
	}
	c.PacketCount++
}

// advance steps current_container forward by one, then persists the
// container it just stepped off of if it holds data. Two source
// variants disagreed on this ordering; this reassembler always
// advances the index before persisting, so the newly-current container
// is already selected by the time any consumer callback runs and can
// safely start accepting the next packet's writes.
func (b *base) advance(meta func(*Container) Metadata) {
	stepped := b.currentContainer()
	b.current = (b.current + 1) % nofContainers
	b.currentContainer().Reset()

	if stepped.HasData() {
		b.persist(stepped, meta(stepped))
	}
}

// persist invokes the consumer callback once, then clears the
// container per §4.4.5. If no callback is registered the container is
// silently cleared and a warning logged.
func (b *base) persist(c *Container, meta Metadata) {
	if b.callback == nil {
		b.log.Warn("reassembly: no consumer callback registered, dropping buffer",
			"packets", c.PacketCount, "tiles", c.Tiles.Len())
		c.Reset()
		return
	}
	data := make([]byte, len(c.Samples))
	copy(data, c.Samples)
	ts := c.Timestamp
	b.callback(data, ts, meta)
	c.Reset()
}

// Flush forces the current container to persist even if a boundary was
// never crossed, used on stream end / consumer shutdown.
func (b *base) Flush(meta func(*Container) Metadata) {
	c := b.currentContainer()
	if c.HasData() {
		b.persist(c, meta(c))
	}
}

// persistPerTile invokes the consumer callback once per tile row that
// received data this cycle, per §4.4.5: each tile gets its own slice of
// the container's sample region, its own reference timestamp, and its
// tile ID in Metadata.TileOrChannelID. A tile that never reported is
// skipped rather than handed an all-zero buffer. Used by every family
// except station-beam and correlator, which persist the whole buffer
// at once.
func (b *base) persistPerTile(c *Container, rowSize int, metaFor func(c *Container, row int, tileID uint16) Metadata) {
	if b.callback == nil {
		b.log.Warn("reassembly: no consumer callback registered, dropping buffer",
			"packets", c.PacketCount, "tiles", c.Tiles.Len())
		c.Reset()
		return
	}
	for row, tileID := range c.Tiles.Tiles() {
		if !c.Tiles.HasDataFor(row) {
			continue
		}
		start := row * rowSize
		end := start + rowSize
		if start < 0 || end > len(c.Samples) {
			continue
		}
		data := make([]byte, rowSize)
		copy(data, c.Samples[start:end])
		b.callback(data, c.Tiles.TimestampFor(row), metaFor(c, row, tileID))
	}
	c.Reset()
}

// advancePerTile is advance's per-tile counterpart.
func (b *base) advancePerTile(rowSize int, metaFor func(c *Container, row int, tileID uint16) Metadata) {
	stepped := b.currentContainer()
	b.current = (b.current + 1) % nofContainers
	b.currentContainer().Reset()

	if stepped.HasData() {
		b.persistPerTile(stepped, rowSize, metaFor)
	}
}

// FlushPerTile is Flush's per-tile counterpart.
func (b *base) FlushPerTile(rowSize int, metaFor func(c *Container, row int, tileID uint16) Metadata) {
	c := b.currentContainer()
	if c.HasData() {
		b.persistPerTile(c, rowSize, metaFor)
	}
}
