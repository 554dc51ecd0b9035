package spead

import (
	"encoding/binary"

	"github.com/skalabs/stationdaq/internal/core"
)

const (
	magicByte        = 0x53
	protocolVersion  = 4
	itemPointerWidth = 8
	heapAddressWidth = 24 // bytes; wire field carries this /4, i.e. 6
	headerLen        = 8
	itemLen          = 8
	modeImmediate    = 1
	valueWidth       = 48 // mode(1) | id(15) | value_or_addr(48)
	idMask           = 0x7FFF
	modeBitShift     = 63
)

// View is a validated, zero-copy handle onto a SPEAD packet's bytes.
// It never copies the payload: Items and Payload both alias data.
type View struct {
	data     []byte
	nofItems int
}

// Validate checks the 8-byte SPEAD header against the station's fixed
// wire profile (version 4, 8-byte item pointers) and returns a View
// over the item list and payload. It never allocates.
func Validate(data []byte) (View, error) {
	if len(data) < headerLen {
		return View{}, core.ErrPacketTooShort
	}
	if data[0] != magicByte {
		return View{}, core.ErrMalformedSpead
	}
	if data[1] != protocolVersion {
		return View{}, core.ErrMalformedSpead
	}
	if data[2] != itemPointerWidth/4 {
		return View{}, core.ErrMalformedSpead
	}
	if data[3] != heapAddressWidth/4 {
		return View{}, core.ErrMalformedSpead
	}

	nofItems := int(binary.BigEndian.Uint16(data[6:8]))
	need := headerLen + nofItems*itemLen
	if len(data) < need {
		return View{}, core.ErrPacketTooShort
	}

	return View{data: data, nofItems: nofItems}, nil
}

// NofItems reports the number of item pointers in the heap.
func (v View) NofItems() int {
	return v.nofItems
}

// Item is a single decoded SPEAD item pointer: an immediate value or a
// heap address, keyed by ItemID.
type Item struct {
	ID        ItemID
	Immediate bool
	Value     uint64 // immediate value, or byte offset when Immediate is false
}

// itemAt decodes the item pointer at index i without bounds checking
// beyond what Validate already guaranteed.
func (v View) itemAt(i int) Item {
	off := headerLen + i*itemLen
	raw := binary.BigEndian.Uint64(v.data[off : off+8])

	immediate := (raw >> modeBitShift) == modeImmediate
	id := ItemID((raw >> valueWidth) & idMask)
	value := raw & ((1 << valueWidth) - 1)

	return Item{ID: id, Immediate: immediate, Value: value}
}

// Items returns every item pointer in the heap, in wire order.
func (v View) Items() []Item {
	items := make([]Item, v.nofItems)
	for i := range items {
		items[i] = v.itemAt(i)
	}
	return items
}

// Find returns the first item matching id.
func (v View) Find(id ItemID) (Item, bool) {
	for i := 0; i < v.nofItems; i++ {
		if it := v.itemAt(i); it.ID == id {
			return it, true
		}
	}
	return Item{}, false
}

// Payload returns the heap payload bytes, aliasing the original packet
// buffer. Item 0x3300 (payload offset), if present, is honoured;
// otherwise the payload starts immediately after the item list.
func (v View) Payload() ([]byte, error) {
	start := headerLen + v.nofItems*itemLen
	if off, ok := v.Find(ItemPayloadOffset); ok {
		start += int(off.Value)
	}
	if start > len(v.data) {
		return nil, core.ErrMalformedSpead
	}
	return v.data[start:], nil
}

// CaptureMode resolves the packet's stream family. It prefers the
// explicit capture-mode item (0x2004) and falls back to inferring
// station-beam traffic, since station-beam heaps carry no explicit
// capture-mode item on this station's correlator firmware revision.
// The legacy station-beam firmware signals this with a frequency item
// (0x1011) and no scan-ID; newer firmware instead carries a scan-ID
// item (0x3010). Either is sufficient.
func (v View) CaptureMode() CaptureMode {
	if it, ok := v.Find(ItemCaptureMode); ok {
		_, hasScanID := v.Find(ItemScanID)
		return resolveCaptureMode(it.Value, hasScanID)
	}
	if _, ok := v.Find(ItemFrequency); ok {
		return CaptureModeStationBeam
	}
	if _, ok := v.Find(ItemScanID); ok {
		return CaptureModeStationBeam
	}
	return CaptureModeUnknown
}

// HeapCounter returns the packet's rolling heap counter (item 0x0001),
// used by reassemblers to detect boundaries and rollover.
func (v View) HeapCounter() (uint64, bool) {
	it, ok := v.Find(ItemHeapCounter)
	if !ok {
		return 0, false
	}
	return it.Value, true
}
