package squeue

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// TxSlotHeaderSize is the encoded size of a Tx request header (spec §4.6
// "Tx layout"): tstamp, caplen, ifindex, queue, copies.
const TxSlotHeaderSize = 24

// TxSlotHeader prefixes every Tx request appended by the producer (user
// space) and read by the consumer (sync flush or an async worker).
type TxSlotHeader struct {
	TstampSec  uint32
	TstampNsec uint32
	Caplen     uint32
	IfIndex    int32
	Queue      uint32
	Copies     uint32 // repeat-send count
}

func (h TxSlotHeader) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.TstampSec)
	binary.LittleEndian.PutUint32(b[4:8], h.TstampNsec)
	binary.LittleEndian.PutUint32(b[8:12], h.Caplen)
	binary.LittleEndian.PutUint32(b[12:16], uint32(h.IfIndex))
	binary.LittleEndian.PutUint32(b[16:20], h.Queue)
	binary.LittleEndian.PutUint32(b[20:24], h.Copies)
}

func DecodeTxSlotHeader(b []byte) TxSlotHeader {
	return TxSlotHeader{
		TstampSec:  binary.LittleEndian.Uint32(b[0:4]),
		TstampNsec: binary.LittleEndian.Uint32(b[4:8]),
		Caplen:     binary.LittleEndian.Uint32(b[8:12]),
		IfIndex:    int32(binary.LittleEndian.Uint32(b[12:16])),
		Queue:      binary.LittleEndian.Uint32(b[16:20]),
		Copies:     binary.LittleEndian.Uint32(b[20:24]),
	}
}

// TxRequest is one decoded Tx request handed to the consumer by Drain.
type TxRequest struct {
	Header  TxSlotHeader
	Payload []byte
}

// TxQueue is a double-buffered producer region (spec §4.6 "Tx layout").
// One TxQueue backs either the synchronous Tx path or a single async
// worker's arena.
type TxQueue struct {
	raw        []byte
	arenas     [2][]byte
	offsets    [2]atomic.Uint32 // producer-owned write cursor per arena
	prodIndex  atomic.Uint32    // low bit selects the producer's active arena
	consIndex  atomic.Uint32    // low bit selects the consumer's active arena
	consOffset [2]uint32        // consumer-owned read cursor per arena
}

// NewTxQueue allocates a Tx queue with two arenas of arenaSize bytes each.
func NewTxQueue(arenaSize int) (*TxQueue, error) {
	if arenaSize <= 0 {
		return nil, fmt.Errorf("squeue: arenaSize must be positive")
	}
	raw, err := mmapAnon(2 * arenaSize)
	if err != nil {
		return nil, err
	}
	q := &TxQueue{raw: raw}
	q.arenas[0] = raw[:arenaSize]
	q.arenas[1] = raw[arenaSize : 2*arenaSize]
	return q, nil
}

// Close releases the queue's backing memory.
func (q *TxQueue) Close() error { return munmap(q.raw) }

// Append writes one Tx request into the producer's active arena, flipping
// to the other arena if it does not fit. ok is false if the request does
// not fit in an empty arena either (malformed/oversize request).
func (q *TxQueue) Append(hdr TxSlotHeader, payload []byte) (ok bool) {
	need := align8(TxSlotHeaderSize + len(payload))
	idx := int(q.prodIndex.Load() & 1)
	off := q.offsets[idx].Load()

	if int(off)+need > len(q.arenas[idx]) {
		q.prodIndex.Add(1)
		idx = int(q.prodIndex.Load() & 1)
		q.offsets[idx].Store(0)
		off = 0
	}
	if need > len(q.arenas[idx]) {
		return false
	}

	arena := q.arenas[idx]
	hdr.Caplen = uint32(len(payload))
	hdr.Encode(arena[off : off+TxSlotHeaderSize])
	copy(arena[off+TxSlotHeaderSize:], payload)
	q.offsets[idx].Store(off + uint32(need))
	return true
}

// Drain returns up to maxBatch pending requests from the consumer's
// active arena. When that arena is fully drained and the producer has
// moved on, Drain flips the consumer to the new arena and resets the old
// one for reuse.
func (q *TxQueue) Drain(maxBatch int) []TxRequest {
	idx := int(q.consIndex.Load() & 1)
	arena := q.arenas[idx]
	limit := q.offsets[idx].Load()

	var out []TxRequest
	off := q.consOffset[idx]
	for off < limit && len(out) < maxBatch {
		if int(off)+TxSlotHeaderSize > len(arena) {
			break
		}
		hdr := DecodeTxSlotHeader(arena[off : off+TxSlotHeaderSize])
		need := align8(TxSlotHeaderSize + int(hdr.Caplen))
		if int(off)+need > len(arena) {
			break
		}
		payload := arena[int(off)+TxSlotHeaderSize : int(off)+TxSlotHeaderSize+int(hdr.Caplen)]
		out = append(out, TxRequest{Header: hdr, Payload: payload})
		off += uint32(need)
	}
	q.consOffset[idx] = off

	if off >= limit && int(idx) != int(q.prodIndex.Load()&1) {
		q.consOffset[idx] = 0
		q.offsets[idx].Store(0)
		q.consIndex.Add(1)
	}
	return out
}
