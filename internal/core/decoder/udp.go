package decoder

import (
	"encoding/binary"

	"github.com/skalabs/stationdaq/internal/core"
)

const udpHeaderLen = 8

// decodeUDP decodes the UDP header and returns the SPEAD payload.
func decodeUDP(data []byte) (core.UDPHeader, []byte, error) {
	if len(data) < udpHeaderLen {
		return core.UDPHeader{}, nil, core.ErrPacketTooShort
	}

	udp := core.UDPHeader{
		SrcPort: binary.BigEndian.Uint16(data[0:2]),
		DstPort: binary.BigEndian.Uint16(data[2:4]),
		Length:  binary.BigEndian.Uint16(data[4:6]),
	}

	return udp, data[udpHeaderLen:], nil
}
