// Package engine implements the per-CPU batched Rx pipeline (spec §4.5):
// classify -> filter -> evaluate -> fan out -> forward -> recycle.
package engine

import (
	"math/bits"

	"github.com/pfq-dev/go-pfq/internal/devmap"
	"github.com/pfq-dev/go-pfq/internal/gc"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/interfaces"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/pfq-dev/go-pfq/internal/squeue"
)

// Socket is the subset of per-socket state the engine needs to fan out
// and deliver packets: its steering weight and its Rx shared queue.
type Socket struct {
	ID     int32
	Weight int32
	Caplen int
	Rx     *squeue.RxQueue
}

// SocketRegistry resolves socket ids to their engine-facing state. The
// control plane owns the backing store; the engine only reads.
type SocketRegistry interface {
	Socket(sid int32) (*Socket, bool)
}

// Engine is the per-CPU pipeline instance. It is not safe for concurrent
// use: exactly one goroutine, pinned to a CPU, drives a given Engine.
type Engine struct {
	cpuID    int
	devmap   *devmap.Map
	groups   *group.Table
	sockets  SocketRegistry
	devices  lang.Devices
	observer interfaces.Observer

	cache map[int32]expansionEntry // per-gid steering expansion, invalidated by generation
}

// New returns an Engine bound to cpuID, reading from the shared devmap and
// group table and delivering through sockets/devices.
func New(cpuID int, dm *devmap.Map, groups *group.Table, sockets SocketRegistry, devices lang.Devices, observer interfaces.Observer) *Engine {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Engine{
		cpuID:    cpuID,
		devmap:   dm,
		groups:   groups,
		sockets:  sockets,
		devices:  devices,
		observer: observer,
		cache:    make(map[int32]expansionEntry),
	}
}

type expansionEntry struct {
	generation uint64
	eligible   uint64
	expansion  []int32
}

// ProcessBatch runs one full pass of spec §4.5's 5 steps over b, then
// resets it, recycling every descriptor's frame buffer.
func (e *Engine) ProcessBatch(b *gc.Batch) {
	n := b.Size()
	if n == 0 {
		return
	}
	e.observer.ObserveRecv(uint64(n))

	var sockQueue [64]uint64 // bit i set => packet i is destined to socket sid
	var batchGroupMask uint64

	b.Each(func(h gc.Handle, d *packet.Descriptor) {
		gm := e.devmap.Lookup(int(d.IfIndex), int(d.HwQueue))
		d.CB.GroupMask = gm
		batchGroupMask |= gm
	})

	for batchGroupMask != 0 {
		gid := bits.TrailingZeros64(batchGroupMask)
		batchGroupMask &^= 1 << uint(gid)
		g := e.groups.Get(int32(gid))
		if g == nil {
			continue
		}
		e.processGroup(int32(gid), g, b, &sockQueue)
	}

	for sid := 0; sid < 64; sid++ {
		mask := sockQueue[sid]
		if mask == 0 {
			continue
		}
		sock, ok := e.sockets.Socket(int32(sid))
		if !ok {
			continue
		}
		e.deliver(sock, mask, b)
	}

	e.flush(b)

	b.Each(func(h gc.Handle, d *packet.Descriptor) {
		if d.CB.Direct {
			for _, t := range d.CB.ForwardLog {
				if t.ToKernel {
					e.observer.ObserveKernel(1)
				}
			}
		}
	})

	b.Reset()
}

func (e *Engine) processGroup(gid int32, g *group.Group, b *gc.Batch, sockQueue *[64]uint64) {
	b.Each(func(h gc.Handle, d *packet.Descriptor) {
		if d.CB.GroupMask&(1<<uint(gid)) == 0 {
			return
		}
		if f := g.Filter(); f != nil && !f.Accept(d.Frame) {
			g.AddDrop(e.cpuID, 1)
			return
		}
		if enabled, pass := g.VlanFilter(d.VLAN.VID()); enabled && !pass {
			g.AddDrop(e.cpuID, 1)
			return
		}

		d.CB.Action = packet.ActionCopy
		d.CB.ClassMask = 1
		d.CB.Hash = 0
		d.CB.State = 0
		d.CB.Right = true
		d.CB.StopWalk = false

		if prog, ok := g.Program().(*lang.Program); ok && prog != nil {
			before := len(d.CB.ForwardLog)
			out, err := lang.Eval(prog, d)
			if err != nil || out == nil {
				g.AddDrop(e.cpuID, 1)
				return
			}
			for _, t := range d.CB.ForwardLog[before:] {
				if t.ToKernel {
					g.AddKern(e.cpuID, 1)
				} else {
					g.AddFrwd(e.cpuID, 1)
				}
			}
			if out.CB.Action == packet.ActionDrop {
				g.AddDrop(e.cpuID, 1)
				return
			}
		}

		eligible := g.EligibleMask(d.CB.ClassMask)
		g.AddRecv(e.cpuID, 1)

		var sockMask uint64
		switch d.CB.Action {
		case packet.ActionSteer:
			sockMask = e.steer(gid, g, eligible, d.CB.Hash)
		case packet.ActionDrop:
			sockMask = 0
		default:
			sockMask = eligible
		}

		for sockMask != 0 {
			sid := bits.TrailingZeros64(sockMask)
			sockMask &^= 1 << uint(sid)
			sockQueue[sid] |= 1 << uint(int(h))
		}
	})
}

// steer picks one socket from eligible using the fold(finalize_hash(h), n)
// scheme over a cached weighted expansion (spec §4.5 "Dispatch"/"Cache
// invalidation").
func (e *Engine) steer(gid int32, g *group.Group, eligible uint64, hash uint32) uint64 {
	gen := g.Generation()
	entry, ok := e.cache[gid]
	if !ok || entry.generation != gen || entry.eligible != eligible {
		entry = expansionEntry{generation: gen, eligible: eligible, expansion: e.expand(eligible)}
		e.cache[gid] = entry
	}
	if len(entry.expansion) == 0 {
		return 0
	}
	h := finalizeHash(hash)
	idx := fold(h, len(entry.expansion))
	sid := entry.expansion[idx]
	return 1 << uint(sid)
}

func (e *Engine) expand(eligible uint64) []int32 {
	var out []int32
	for sid := 0; sid < 64; sid++ {
		if eligible&(1<<uint(sid)) == 0 {
			continue
		}
		sock, ok := e.sockets.Socket(int32(sid))
		weight := int32(1)
		if ok && sock.Weight > 0 {
			weight = sock.Weight
		}
		for i := int32(0); i < weight; i++ {
			out = append(out, int32(sid))
		}
	}
	return out
}

func finalizeHash(h uint32) uint32 {
	return h ^ (h >> 8) ^ (h >> 16) ^ (h >> 24)
}

func fold(a uint32, n int) int {
	if n <= 0 {
		return 0
	}
	p := ceilPow2(n)
	if p == uint32(n) {
		return int(a & (p - 1))
	}
	return int(a % uint32(n))
}

func ceilPow2(n int) uint32 {
	if n <= 1 {
		return 1
	}
	v := uint32(n - 1)
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	return v + 1
}

// deliver copies every packet marked for sock in mask into its Rx shared
// queue, re-inlining the VLAN tag if present (spec §4.5 step 3).
func (e *Engine) deliver(sock *Socket, mask uint64, b *gc.Batch) {
	if sock.Rx == nil {
		return
	}
	pos := 0
	for mask != 0 {
		i := bits.TrailingZeros64(mask)
		mask &^= 1 << uint(i)
		d := b.Descriptor(gc.Handle(i))

		frame := d.Frame
		if d.VLAN.Present && !packet.HasInlineVLANTag(frame) {
			frame = packet.InlineVLANTag(frame, d.VLAN.TCI)
		}
		caplen := len(frame)
		if sock.Caplen > 0 && caplen > sock.Caplen {
			caplen = sock.Caplen
		}
		hdr := squeue.SlotHeader{
			TstampSec:  uint32(d.Timestamp.Unix()),
			TstampNsec: uint32(d.Timestamp.Nanosecond()),
			Len:        uint16(len(frame)),
			IfIndex:    d.IfIndex,
			Mark:       d.CB.Mark,
			State:      d.CB.State,
			VlanTCI:    d.VLAN.TCI,
			Queue:      uint8(d.HwQueue),
		}
		if pos < sock.Rx.Capacity() {
			_ = sock.Rx.WriteSlot(pos, hdr, frame[:caplen])
			pos++
		}
	}
	if pos > 0 {
		sock.Rx.Publish(pos)
	}
}

// flush drains the batch's lazily-recorded forwarding log to real devices
// (spec §4.5 step 4 "Bulk forward"). Kernel copies are step 5's concern,
// counted once in ProcessBatch's direct&&to_kernel pass below.
func (e *Engine) flush(b *gc.Batch) {
	agg := b.GetLazyEndpoints()
	for ifindex, handles := range agg.Devices {
		for _, h := range handles {
			d := b.Descriptor(h)
			if e.devices == nil {
				e.observer.ObserveDiscard(1)
				continue
			}
			if err := e.devices.SendNow(ifindex, d.Frame); err != nil {
				e.observer.ObserveDiscard(1)
				continue
			}
			e.observer.ObserveForward(1, 0, true)
		}
	}
}
