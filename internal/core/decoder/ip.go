package decoder

import (
	"encoding/binary"

	"github.com/skalabs/stationdaq/internal/core"
)

const (
	ipv4MinHeaderLen = 20
	protocolUDP      = 17
)

// decodeIPv4 decodes the IPv4 header. Options (IHL > 5) are skipped, not
// parsed: the DAQ never needs them, and fragmentation of SPEAD/UDP
// traffic is out of scope (see spec Non-goals).
func decodeIPv4(data []byte) (core.IPv4Header, []byte, error) {
	if len(data) < ipv4MinHeaderLen {
		return core.IPv4Header{}, nil, core.ErrPacketTooShort
	}

	ihl := int(data[0]&0x0F) * 4
	if ihl < ipv4MinHeaderLen || len(data) < ihl {
		return core.IPv4Header{}, nil, core.ErrPacketTooShort
	}

	var ip core.IPv4Header
	ip.Protocol = data[9]
	ip.TotalLen = binary.BigEndian.Uint16(data[2:4])
	copy(ip.SrcIP[:], data[12:16])
	copy(ip.DstIP[:], data[16:20])

	return ip, data[ihl:], nil
}
