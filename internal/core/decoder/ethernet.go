package decoder

import (
	"encoding/binary"

	"github.com/skalabs/stationdaq/internal/core"
)

const (
	ethernetHeaderLen = 14
	etherTypeIPv4      = 0x0800
)

// decodeEthernet decodes the L2 header and returns the remaining bytes.
// VLAN tags are not expected on the station capture NIC and are treated
// as an unresolvable EtherType rather than unwrapped.
func decodeEthernet(data []byte) (core.EthernetHeader, []byte, error) {
	if len(data) < ethernetHeaderLen {
		return core.EthernetHeader{}, nil, core.ErrPacketTooShort
	}

	var eth core.EthernetHeader
	copy(eth.DstMAC[:], data[0:6])
	copy(eth.SrcMAC[:], data[6:12])
	eth.EtherType = binary.BigEndian.Uint16(data[12:14])

	return eth, data[ethernetHeaderLen:], nil
}
