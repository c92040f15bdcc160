package squeue

import "encoding/binary"

// SlotHeaderSize is the encoded size of a Rx slot header (spec §6
// "Packet header (Rx slot)"). The field list there sums to 32 bytes; the
// spec's stated "Total size 24 bytes" does not match its own field list
// (see DESIGN.md for the reconciliation), so this implementation treats
// the explicit field list as authoritative and pads the payload to the
// next 8-byte boundary after the real 32-byte header.
const SlotHeaderSize = 32

// SlotHeader is the per-slot metadata prefixing every Rx payload.
type SlotHeader struct {
	TstampSec  uint32
	TstampNsec uint32
	Caplen     uint16
	Len        uint16
	IfIndex    int32
	Gid        int32
	Mark       uint32
	State      uint32
	VlanTCI    uint16
	Queue      uint8
	Commit     uint8
}

// Encode writes h into b[:SlotHeaderSize]. b must have at least
// SlotHeaderSize bytes.
func (h SlotHeader) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.TstampSec)
	binary.LittleEndian.PutUint32(b[4:8], h.TstampNsec)
	binary.LittleEndian.PutUint16(b[8:10], h.Caplen)
	binary.LittleEndian.PutUint16(b[10:12], h.Len)
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.IfIndex))
	binary.LittleEndian.PutUint32(b[16:20], uint32(h.Gid))
	binary.LittleEndian.PutUint32(b[20:24], h.Mark)
	binary.LittleEndian.PutUint32(b[24:28], h.State)
	binary.LittleEndian.PutUint16(b[28:30], h.VlanTCI)
	b[30] = h.Queue
	b[31] = h.Commit
}

// DecodeSlotHeader reads a SlotHeader from b[:SlotHeaderSize].
func DecodeSlotHeader(b []byte) SlotHeader {
	return SlotHeader{
		TstampSec:  binary.LittleEndian.Uint32(b[0:4]),
		TstampNsec: binary.LittleEndian.Uint32(b[4:8]),
		Caplen:     binary.LittleEndian.Uint16(b[8:10]),
		Len:        binary.LittleEndian.Uint16(b[10:12]),
		IfIndex:    int32(binary.LittleEndian.Uint32(b[12:16])),
		Gid:        int32(binary.LittleEndian.Uint32(b[16:20])),
		Mark:       binary.LittleEndian.Uint32(b[20:24]),
		State:      binary.LittleEndian.Uint32(b[24:28]),
		VlanTCI:    binary.LittleEndian.Uint16(b[28:30]),
		Queue:      b[30],
		Commit:     b[31],
	}
}

// align8 rounds n up to the next multiple of 8, as required for slot
// payload alignment (spec §3 "align8(sizeof(pkthdr) + caplen)").
func align8(n int) int {
	return (n + 7) &^ 7
}
