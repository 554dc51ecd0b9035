// Package decoder implements zero-allocation L2-L4 decoding of captured
// Ethernet frames down to the UDP payload, in place, without copying.
package decoder

import "github.com/skalabs/stationdaq/internal/core"

// Decoder turns a RawPacket into a DecodedPacket. Implementations never
// allocate on the success path; Payload aliases RawPacket.Data.
type Decoder interface {
	Decode(raw core.RawPacket) (core.DecodedPacket, error)
}

// UDPDecoder is the only Decoder the station DAQ needs: Ethernet -> IPv4
// -> UDP, discarding anything else at the first mismatch.
type UDPDecoder struct{}

// NewUDPDecoder returns a decoder for the Ethernet/IPv4/UDP stack.
func NewUDPDecoder() *UDPDecoder { return &UDPDecoder{} }

func (d *UDPDecoder) Decode(raw core.RawPacket) (core.DecodedPacket, error) {
	eth, rest, err := decodeEthernet(raw.Data)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	if eth.EtherType != etherTypeIPv4 {
		return core.DecodedPacket{}, core.ErrUnknownCapture
	}

	ip, rest, err := decodeIPv4(rest)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	if ip.Protocol != protocolUDP {
		return core.DecodedPacket{}, core.ErrUnknownCapture
	}

	udp, payload, err := decodeUDP(rest)
	if err != nil {
		return core.DecodedPacket{}, err
	}

	return core.DecodedPacket{
		Timestamp: raw.Timestamp,
		Ethernet:  eth,
		IP:        ip,
		UDP:       udp,
		Payload:   payload,
	}, nil
}
