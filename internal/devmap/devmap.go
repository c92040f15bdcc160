// Package devmap implements the device->group routing table (spec §4.2): a
// fixed (ifindex, hw-queue) -> group-bitmask table with lock-free reads and
// a single mutex serializing all writers.
package devmap

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pfq-dev/go-pfq/internal/constants"
)

// ErrOutOfRange is returned when ifindex, queue, or gid falls outside the
// table's fixed dimensions.
var ErrOutOfRange = errors.New("devmap: index out of range")

// Action selects whether Update sets or clears gid's bit.
type Action int

const (
	Set Action = iota
	Clear
)

// Map is the fixed two-dimensional table M[0..MaxIfIndex][0..MaxHwQueue] of
// group bitmaps, with a parallel per-device monitor vector.
type Map struct {
	mu    sync.Mutex // serializes all writers; readers never block
	table [constants.MaxIfIndex][constants.MaxHwQueue]atomic.Uint64
	mon   [constants.MaxIfIndex]atomic.Uint64
}

// New returns an empty device->group map.
func New() *Map {
	return &Map{}
}

// Lookup returns the group bitmask for (ifindex, queue). A single relaxed
// atomic load, safe to call from the hot path without synchronization.
func (m *Map) Lookup(ifindex, queue int) uint64 {
	if !inRange(ifindex, queue) {
		return 0
	}
	return m.table[ifindex][queue].Load()
}

// Monitor returns the logical OR of all queues' bitmaps for ifindex: a fast
// "any group interested in this device?" gate.
func (m *Map) Monitor(ifindex int) uint64 {
	if ifindex < 0 || ifindex >= constants.MaxIfIndex {
		return 0
	}
	return m.mon[ifindex].Load()
}

// Update sets or clears gid's bit in M[ifindex][queue] and recomputes the
// device's monitor word. Writes are serialized; rare relative to Lookup.
func (m *Map) Update(action Action, ifindex, queue, gid int) error {
	if !inRange(ifindex, queue) {
		return ErrOutOfRange
	}
	if gid < 0 || gid >= constants.MaxGroups {
		return ErrOutOfRange
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bit := uint64(1) << uint(gid)
	cell := &m.table[ifindex][queue]
	switch action {
	case Set:
		cell.Store(cell.Load() | bit)
	case Clear:
		cell.Store(cell.Load() &^ bit)
	}

	var row uint64
	for q := 0; q < constants.MaxHwQueue; q++ {
		row |= m.table[ifindex][q].Load()
	}
	m.mon[ifindex].Store(row)
	return nil
}

func inRange(ifindex, queue int) bool {
	return ifindex >= 0 && ifindex < constants.MaxIfIndex &&
		queue >= 0 && queue < constants.MaxHwQueue
}
