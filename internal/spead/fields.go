package spead

import "time"

// PacketTime computes sync_time + timestamp*scale per the station's
// per-family timestamp conversion table.
func PacketTime(syncTime, timestamp uint64, scale TimestampScale) time.Time {
	seconds := float64(syncTime) + float64(timestamp)*float64(scale)
	return time.Unix(0, int64(seconds*1e9))
}

// FindEither looks up a with a fallback to b, for item IDs the station
// profile has renumbered across firmware revisions (AntennaInfo,
// TileInfo, ChannelInfo).
func FindEither(v View, a, b ItemID) (Item, bool) {
	if it, ok := v.Find(a); ok {
		return it, true
	}
	return v.Find(b)
}

// Composite items pack more than one dimension into their 48-bit
// value. The station profile packs a 16-bit primary index in the low
// bits and an 8-bit secondary index directly above it; every composite
// accessor below follows that layout except DecodeChannelInfo, whose
// secondary field is 16 bits wide.
const (
	compositeLowMask   = 0xFFFF
	compositeHighShift = 16
	compositeHighMask  = 0xFF
)

// TileFields decodes item 0x2001/0x3001: tile_id in the low 16 bits,
// pol_id in the next 8.
type TileFields struct {
	TileID uint16
	PolID  uint8
}

func DecodeTileInfo(value uint64) TileFields {
	return TileFields{
		TileID: uint16(value & compositeLowMask),
		PolID:  uint8((value >> compositeHighShift) & compositeHighMask),
	}
}

// AntennaFields decodes item 0x2000/0x2006: starting antenna id in the
// low 16 bits, the number of antennas the packet covers in the next 8.
type AntennaFields struct {
	StartAntenna uint16
	NofIncluded  uint8
}

func DecodeAntennaInfo(value uint64) AntennaFields {
	return AntennaFields{
		StartAntenna: uint16(value & compositeLowMask),
		NofIncluded:  uint8((value >> compositeHighShift) & compositeHighMask),
	}
}

// ChannelFields decodes item 0x2002/0x2005: channel id in the low 16
// bits, the in-buffer packet index in the next 16 (channelised streams
// carry more packets per buffer than an 8-bit index could address).
type ChannelFields struct {
	ChannelID   uint16
	PacketIndex uint16
}

func DecodeChannelInfo(value uint64) ChannelFields {
	return ChannelFields{
		ChannelID:   uint16(value & compositeLowMask),
		PacketIndex: uint16((value >> compositeHighShift) & 0xFFFF),
	}
}

// BeamFields decodes item 0x3000: beam id in the low 16 bits, pol id
// in the next 8.
type BeamFields struct {
	BeamID uint16
	PolID  uint8
}

func DecodeBeamInfo(value uint64) BeamFields {
	return BeamFields{
		BeamID: uint16(value & compositeLowMask),
		PolID:  uint8((value >> compositeHighShift) & compositeHighMask),
	}
}
