package core

import "time"

// RawPacket is a zero-copy view into a captured Ethernet frame, valid
// only until the ingress worker advances past it (TPACKET_V3 ring
// semantics: the backing array belongs to the kernel-mapped block).
// Consumers that need the bytes past that point must copy them.
type RawPacket struct {
	Data           []byte    // full frame, starting at the Ethernet header
	Timestamp      time.Time // capture timestamp (kernel timestamp preferred)
	CaptureLen     uint32
	OrigLen        uint32
	InterfaceIndex int
}

// EthernetHeader is the decoded L2 header. VLAN tags are not unwrapped:
// the decoder reads the EtherType at bytes 12-13, so a VLAN-tagged frame
// is rejected as non-IPv4.
type EthernetHeader struct {
	SrcMAC    [6]byte
	DstMAC    [6]byte
	EtherType uint16
}

// IPv4Header is the decoded L3 header, IPv4 only: SPEAD/UDP is the only
// wire protocol in scope (spec Non-goals exclude IPv6/other L3).
type IPv4Header struct {
	SrcIP    [4]byte
	DstIP    [4]byte
	Protocol uint8
	TotalLen uint16
}

// UDPHeader is the decoded L4 header.
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Length  uint16
}

// DecodedPacket is the result of L2-L4 decoding: everything a consumer
// filter or the SPEAD codec needs, with Payload a zero-copy slice into
// RawPacket.Data.
type DecodedPacket struct {
	Timestamp time.Time
	Ethernet  EthernetHeader
	IP        IPv4Header
	UDP       UDPHeader
	Payload   []byte
}
