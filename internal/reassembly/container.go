// Package reassembly implements the per-stream SPEAD reassembly
// engines: family-specific containers that scatter packet payloads
// into (tile, channel, sample, antenna, pol) position, detect buffer
// boundaries, and persist complete buffers to a ConsumerCallback.
package reassembly

import (
	"time"
)

// TileMap assigns each tile ID an insertion-ordered row index within a
// container, so scatter offsets stay stable for the lifetime of one
// buffer even as tiles report in arbitrary order. It also tracks each
// row's own reference timestamp and whether it has received any data
// this cycle, since per-tile persistence needs both per §4.4.5.
type TileMap struct {
	order      []uint16
	index      map[uint16]int
	timestamps []time.Time
	hasData    []bool
}

// NewTileMap returns an empty tile map.
func NewTileMap() *TileMap {
	return &TileMap{index: make(map[uint16]int)}
}

// RowFor returns the row index for tileID, assigning the next free row
// on first sight. It reports ok=false without assigning a row once nofTiles
// distinct tiles have already reported this cycle, keeping the map capped
// at the configured tile count rather than growing without bound on an
// unexpected extra tile.
func (m *TileMap) RowFor(tileID uint16, nofTiles int) (int, bool) {
	if row, ok := m.index[tileID]; ok {
		return row, true
	}
	if len(m.order) >= nofTiles {
		return 0, false
	}
	row := len(m.order)
	m.order = append(m.order, tileID)
	m.index[tileID] = row
	m.timestamps = append(m.timestamps, time.Time{})
	m.hasData = append(m.hasData, false)
	return row, true
}

// NoteTimestamp records t as row's reference timestamp the first time
// data is scattered into it this cycle; later calls for the same row
// are no-ops, mirroring base.admit's reference-timestamp handling at
// the container level.
func (m *TileMap) NoteTimestamp(row int, t time.Time) {
	if !m.hasData[row] {
		m.timestamps[row] = t
		m.hasData[row] = true
	}
}

// TimestampFor returns row's recorded reference timestamp.
func (m *TileMap) TimestampFor(row int) time.Time {
	return m.timestamps[row]
}

// HasDataFor reports whether row has received any data this cycle.
func (m *TileMap) HasDataFor(row int) bool {
	return m.hasData[row]
}

// Len reports how many distinct tiles have reported this cycle.
func (m *TileMap) Len() int {
	return len(m.order)
}

// Tiles returns tile IDs in insertion order.
func (m *TileMap) Tiles() []uint16 {
	return m.order
}

// Clear empties the map for reuse on the next buffer cycle.
func (m *TileMap) Clear() {
	m.order = m.order[:0]
	m.timestamps = m.timestamps[:0]
	m.hasData = m.hasData[:0]
	for k := range m.index {
		delete(m.index, k)
	}
}

// Container is one slot of a reassembler's N-container ring: the
// sample memory for one in-progress or completed buffer, plus the
// bookkeeping needed to detect its boundary and route late packets.
type Container struct {
	Samples []byte
	Tiles   *TileMap

	Timestamp        time.Time
	ReferenceTime    time.Time
	ReferenceCounter uint64
	RolloverCounter  uint64
	PacketCount      uint64
}

// farFuture is the container's "unset" timestamp sentinel, used so a
// freshly cleared container never compares less than any real packet
// time when checked by boundary detection.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// NewContainer allocates a container with the given sample-region size.
func NewContainer(size int) *Container {
	return &Container{
		Samples:   make([]byte, size),
		Tiles:     NewTileMap(),
		Timestamp: farFuture,
	}
}

// Reset clears a container back to its just-constructed state: sample
// memory zeroed, tile map emptied, counters and timestamp reset.
func (c *Container) Reset() {
	for i := range c.Samples {
		c.Samples[i] = 0
	}
	c.Tiles.Clear()
	c.Timestamp = farFuture
	c.ReferenceTime = time.Time{}
	c.ReferenceCounter = 0
	c.RolloverCounter = 0
	c.PacketCount = 0
}

// HasData reports whether any packet has been scattered into this
// container since the last Reset.
func (c *Container) HasData() bool {
	return c.PacketCount > 0
}
