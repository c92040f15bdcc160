package packet

import "encoding/binary"

// EtherType values consulted by the pfq-lang built-in predicates.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
	EtherTypeIPv6 = 0x86DD
	EtherTypeVLAN = 0x8100
)

// IP protocol numbers.
const (
	ProtoICMP   = 1
	ProtoTCP    = 6
	ProtoUDP    = 17
	ProtoICMPv6 = 58
)

// ParseEther reads the Ethernet header (and an optional single 802.1Q tag)
// from frame, returning the EtherType of the payload and the byte offset
// where the L3 header begins.
func ParseEther(frame []byte) (etherType uint16, l3Offset int, vlanTCI uint16, hasVLAN bool) {
	if len(frame) < 14 {
		return 0, 0, 0, false
	}
	et := binary.BigEndian.Uint16(frame[12:14])
	if et == EtherTypeVLAN && len(frame) >= 18 {
		tci := binary.BigEndian.Uint16(frame[14:16])
		inner := binary.BigEndian.Uint16(frame[16:18])
		return inner, 18, tci, true
	}
	return et, 14, 0, false
}

// InlineVLANTag splices an 802.1Q tag carrying tci back into frame right
// after the MAC addresses, for descriptors whose tag was stripped before
// capture (the `vl_untag` re-inline half, spec §4.5 step 3).
func InlineVLANTag(frame []byte, tci uint16) []byte {
	if len(frame) < 12 {
		return frame
	}
	out := make([]byte, len(frame)+4)
	copy(out, frame[:12])
	binary.BigEndian.PutUint16(out[12:14], EtherTypeVLAN)
	binary.BigEndian.PutUint16(out[14:16], tci)
	copy(out[16:], frame[12:])
	return out
}

// HasInlineVLANTag reports whether frame's EtherType already names an
// 802.1Q tag, i.e. it was not pre-stripped.
func HasInlineVLANTag(frame []byte) bool {
	return len(frame) >= 14 && binary.BigEndian.Uint16(frame[12:14]) == EtherTypeVLAN
}

// IPv4Header describes the fields predicates need from an IPv4 datagram.
type IPv4Header struct {
	Protocol     uint8
	Src, Dst     [4]byte
	HeaderLen    int
	FragOffset   uint16
	MoreFragments bool
}

// ParseIPv4 reads an IPv4 header at frame[off:]. ok is false on truncation.
func ParseIPv4(frame []byte, off int) (h IPv4Header, ok bool) {
	if off+20 > len(frame) {
		return h, false
	}
	ihl := int(frame[off]&0x0f) * 4
	if ihl < 20 || off+ihl > len(frame) {
		return h, false
	}
	flagsFrag := binary.BigEndian.Uint16(frame[off+6 : off+8])
	h.HeaderLen = ihl
	h.Protocol = frame[off+9]
	copy(h.Src[:], frame[off+12:off+16])
	copy(h.Dst[:], frame[off+16:off+20])
	h.FragOffset = flagsFrag & 0x1fff
	h.MoreFragments = flagsFrag&0x2000 != 0
	return h, true
}

// IPv6Header describes the fields predicates need from an IPv6 datagram.
type IPv6Header struct {
	NextHeader uint8
	Src, Dst   [16]byte
}

// ParseIPv6 reads a fixed IPv6 header at frame[off:]. Extension headers are
// not walked; NextHeader reflects the immediate next header value.
func ParseIPv6(frame []byte, off int) (h IPv6Header, ok bool) {
	if off+40 > len(frame) {
		return h, false
	}
	h.NextHeader = frame[off+6]
	copy(h.Src[:], frame[off+8:off+24])
	copy(h.Dst[:], frame[off+24:off+40])
	return h, true
}

// L4Ports reads the first 4 bytes of a TCP/UDP header at frame[off:].
func L4Ports(frame []byte, off int) (sport, dport uint16, ok bool) {
	if off+4 > len(frame) {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(frame[off : off+2]), binary.BigEndian.Uint16(frame[off+2 : off+4]), true
}
