// Package spead implements a SPEAD v4 codec that works on the packet
// bytes in place (only View.Items allocates): header validation, item
// iteration, payload location, and CaptureMode resolution, per the
// station's fixed wire profile.
package spead

// ItemID identifies a SPEAD item by its 15-bit wire ID.
type ItemID uint16

// Item IDs recognised by the station profile (spec.md §3).
const (
	ItemHeapCounter   ItemID = 0x0001
	ItemPayloadLength ItemID = 0x0004
	ItemSyncTime      ItemID = 0x1027
	ItemTimestamp     ItemID = 0x1600
	ItemFrequency     ItemID = 0x1011
	ItemAntennaInfoA  ItemID = 0x2000
	ItemAntennaInfoB  ItemID = 0x2006
	ItemTileInfoA     ItemID = 0x2001
	ItemTileInfoB     ItemID = 0x3001
	ItemChannelInfoA  ItemID = 0x2002
	ItemChannelInfoB  ItemID = 0x2005
	ItemCaptureMode   ItemID = 0x2004
	ItemBeamInfo      ItemID = 0x3000
	ItemScanID        ItemID = 0x3010
	ItemPayloadOffset ItemID = 0x3300
)

// CaptureMode is the sum type the packet filter resolves each SPEAD
// packet to, one family per StreamReassembler variant.
type CaptureMode uint8

const (
	CaptureModeUnknown CaptureMode = iota
	CaptureModeRawBurst
	CaptureModeRawSync
	CaptureModeChannelBurst
	CaptureModeChannelContinuous
	CaptureModeChannelIntegrated
	CaptureModeBeamBurst
	CaptureModeBeamIntegrated
	CaptureModeStationBeam
	CaptureModeAntennaBuffer
)

func (m CaptureMode) String() string {
	switch m {
	case CaptureModeRawBurst:
		return "raw_burst"
	case CaptureModeRawSync:
		return "raw_sync"
	case CaptureModeChannelBurst:
		return "channel_burst"
	case CaptureModeChannelContinuous:
		return "channel_continuous"
	case CaptureModeChannelIntegrated:
		return "channel_integrated"
	case CaptureModeBeamBurst:
		return "beam_burst"
	case CaptureModeBeamIntegrated:
		return "beam_integrated"
	case CaptureModeStationBeam:
		return "station_beam"
	case CaptureModeAntennaBuffer:
		return "antenna_buffer"
	default:
		return "unknown"
	}
}

// rawCaptureMode is the on-wire value of item 0x2004.
type rawCaptureMode uint8

const (
	wireRawBurst           rawCaptureMode = 0x0
	wireRawSync            rawCaptureMode = 0x1
	wireChannelBurst       rawCaptureMode = 0x4
	wireChannelContinuous1 rawCaptureMode = 0x5
	wireChannelContinuous2 rawCaptureMode = 0x7
	wireChannelIntegrated  rawCaptureMode = 0x6
	wireBeamBurst          rawCaptureMode = 0x8
	wireBeamIntegrated1    rawCaptureMode = 0x9
	wireBeamIntegrated2    rawCaptureMode = 0x11
	wireAntennaBuffer      rawCaptureMode = 0xC
)

func resolveCaptureMode(raw uint64, hasScanID bool) CaptureMode {
	switch rawCaptureMode(raw) {
	case wireRawBurst:
		return CaptureModeRawBurst
	case wireRawSync:
		return CaptureModeRawSync
	case wireChannelBurst:
		return CaptureModeChannelBurst
	case wireChannelContinuous1, wireChannelContinuous2:
		return CaptureModeChannelContinuous
	case wireChannelIntegrated:
		return CaptureModeChannelIntegrated
	case wireBeamBurst:
		return CaptureModeBeamBurst
	case wireBeamIntegrated1, wireBeamIntegrated2:
		return CaptureModeBeamIntegrated
	case wireAntennaBuffer:
		return CaptureModeAntennaBuffer
	}
	if hasScanID {
		return CaptureModeStationBeam
	}
	return CaptureModeUnknown
}

// TimestampScale selects the sync_time + timestamp*scale conversion per
// stream family (spec.md §6 table).
type TimestampScale float64

const (
	ScaleStandard          TimestampScale = 1.08e-6 // raw / channel
	ScaleStationBeamLegacy TimestampScale = 1.0e-9
	ScaleStationBeamScanID TimestampScale = 1.0e-8
	ScaleAntennaBuffer     TimestampScale = 1.0 / 800e6
)

// SamplingPeriod is the native ADC sample period for the station profile,
// used by every family except antenna buffer (which samples at 800 MHz).
const SamplingPeriod = 1.08e-6
