// Package group implements the group table (spec §4.3): per-group joined
// sockets, policy enforcement, filters, program binding, VLAN filters, and
// per-CPU counters/stats summed on read.
package group

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pfq-dev/go-pfq/internal/constants"
)

// Policy governs who may join an existing group.
type Policy int

const (
	Undefined Policy = iota
	Private
	Restricted
	Shared
)

// Stats mirrors the control surface's GET_STATS/GROUP_STATS payload
// (spec §6).
type Stats struct {
	Recv, Lost, Drop, Sent, Disc, Fail, Frwd, Kern uint64
}

// cacheLinePad is sized so a perCPU struct occupies its own cache line,
// avoiding false sharing between CPUs incrementing adjacent stats.
const cacheLinePad = 64

type perCPU struct {
	stats    [4]atomic.Uint64 // recv, drop, frwd, kern, indexed by statIdx
	counters [constants.GroupCounterSlots]atomic.Uint64
	_        [cacheLinePad]byte
}

const (
	statRecv = iota
	statDrop
	statFrwd
	statKern
)

// Filter is the classic-BPF predicate bound to a group, implemented by
// internal/bpf.
type Filter interface {
	Accept(frame []byte) bool
}

// Program is the compiled pfq-lang program bound to a group, implemented by
// internal/lang. Kept as an interface so group does not import lang.
type Program interface {
	Name() string
}

// Group is the per-gid state described by spec §3 "Group".
type Group struct {
	gid   int32
	owner int32

	mu                 sync.RWMutex
	policy             Policy
	sockID             [constants.MaxClasses]uint64 // bit sid set per class
	pid                map[int32]Policy              // sid -> policy acknowledged at join
	filter             Filter
	program            Program
	vlanFiltersEnabled bool
	vlanBitmap         [constants.VlanBitmapSlots / 64]uint64

	generation atomic.Uint64 // bumped on sockID membership changes only; a socket weight change does not bump it
	percpu     []perCPU
}

func newGroup(gid, owner int32, policy Policy) *Group {
	return &Group{
		gid:    gid,
		owner:  owner,
		policy: policy,
		pid:    make(map[int32]Policy),
		percpu: make([]perCPU, runtime.NumCPU()),
	}
}

// GID returns the group's identifier.
func (g *Group) GID() int32 { return g.gid }

// Owner returns the socket id that allocated the group.
func (g *Group) Owner() int32 { return g.owner }

// Policy returns the group's join policy.
func (g *Group) Policy() Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.policy
}

// Generation returns the cache-invalidation stamp, bumped whenever sockID
// membership changes (spec §4.5 "Cache invalidation"). Changing a joined
// socket's weight leaves it unchanged, so an engine's cached steering
// expansion keeps the old weights until the next join or leave.
func (g *Group) Generation() uint64 { return g.generation.Load() }

// SockIDMask returns the bitmap of socket ids joined on class c.
func (g *Group) SockIDMask(class int) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if class < 0 || class >= constants.MaxClasses {
		return 0
	}
	return g.sockID[class]
}

// EligibleMask returns the union of sockID[c] for every class bit set in
// classMask (spec §4.5 step 2, "eligible" set).
func (g *Group) EligibleMask(classMask uint64) uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var eligible uint64
	for c := 0; c < constants.MaxClasses; c++ {
		if classMask&(1<<uint(c)) != 0 {
			eligible |= g.sockID[c]
		}
	}
	return eligible
}

// IsJoined reports whether sid is a member of any class (spec's access).
func (g *Group) IsJoined(sid int32) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pid[sid]
	return ok
}

// Filter returns the group's bound BPF filter, or nil.
func (g *Group) Filter() Filter {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.filter
}

// Program returns the group's bound pfq-lang program, or nil.
func (g *Group) Program() Program {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.program
}

// VlanFilter reports whether vlan filtering is enabled and whether vid
// passes the bitmap.
func (g *Group) VlanFilter(vid uint16) (enabled, pass bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.vlanFiltersEnabled {
		return false, true
	}
	if int(vid) >= constants.VlanBitmapSlots {
		return true, false
	}
	word := g.vlanBitmap[vid/64]
	return true, word&(1<<(vid%64)) != 0
}

// CPUStats returns a snapshot of per-CPU stats summed across all CPUs.
func (g *Group) CPUStats() Stats {
	var s Stats
	for i := range g.percpu {
		p := &g.percpu[i]
		s.Recv += p.stats[statRecv].Load()
		s.Drop += p.stats[statDrop].Load()
		s.Frwd += p.stats[statFrwd].Load()
		s.Kern += p.stats[statKern].Load()
	}
	return s
}

// Counters returns the 64-slot user-addressable counters summed across
// CPUs (spec's GROUP_COUNTERS).
func (g *Group) Counters() [constants.GroupCounterSlots]uint64 {
	var out [constants.GroupCounterSlots]uint64
	for i := range g.percpu {
		p := &g.percpu[i]
		for slot := range out {
			out[slot] += p.counters[slot].Load()
		}
	}
	return out
}

func (g *Group) cpu(cpuID int) *perCPU {
	if cpuID < 0 || cpuID >= len(g.percpu) {
		cpuID = 0
	}
	return &g.percpu[cpuID]
}

// AddRecv/AddDrop/AddFrwd/AddKern are called from the engine hot path with
// the current CPU's id; no allocation, no locking.
func (g *Group) AddRecv(cpuID int, n uint64) { g.cpu(cpuID).stats[statRecv].Add(n) }
func (g *Group) AddDrop(cpuID int, n uint64) { g.cpu(cpuID).stats[statDrop].Add(n) }
func (g *Group) AddFrwd(cpuID int, n uint64) { g.cpu(cpuID).stats[statFrwd].Add(n) }
func (g *Group) AddKern(cpuID int, n uint64) { g.cpu(cpuID).stats[statKern].Add(n) }

// IncCounter bumps a user-addressable counter slot on the calling CPU.
func (g *Group) IncCounter(cpuID, slot int, delta int64) {
	if slot < 0 || slot >= constants.GroupCounterSlots {
		return
	}
	if delta >= 0 {
		g.cpu(cpuID).counters[slot].Add(uint64(delta))
	} else {
		g.cpu(cpuID).counters[slot].Add(^uint64(-delta) + 1)
	}
}
