package group

import (
	"errors"
	"sync"

	"github.com/pfq-dev/go-pfq/internal/constants"
)

var (
	// ErrPolicyRejected is returned when a join is refused by the target
	// group's policy.
	ErrPolicyRejected = errors.New("group: join refused by policy")
	// ErrNoSuchGroup is returned when gid names no allocated group.
	ErrNoSuchGroup = errors.New("group: no such group")
	// ErrGroupTableFull is returned when AutoAssign finds no free gid.
	ErrGroupTableFull = errors.New("group: table full")
	// ErrNotJoined is returned when a socket operates on a group it never
	// joined.
	ErrNotJoined = errors.New("group: socket not joined")
)

// Table owns the fixed gid-indexed group slots (spec §4.3). A group is
// created implicitly on first join and freed once it has no joined
// sockets (spec §3 "Lifecycle").
type Table struct {
	mu     sync.Mutex
	groups [constants.MaxGroups]*Group
	uid    map[int32]int32 // sid -> uid, populated by the control plane
}

// NewTable returns an empty group table.
func NewTable() *Table {
	return &Table{uid: make(map[int32]int32)}
}

// SetUID records sid's owning user id, consulted by the Restricted policy.
// The control plane calls this once per socket, typically at open.
func (t *Table) SetUID(sid, uid int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.uid[sid] = uid
}

// Get returns the group for gid, or nil if unallocated.
func (t *Table) Get(gid int32) *Group {
	if gid < 0 || int(gid) >= constants.MaxGroups {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.groups[gid]
}

// Mask returns the bitmask of currently allocated group ids. The engine
// does not call it; it takes each batch's groups from the device map.
func (t *Table) Mask() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var m uint64
	for gid, g := range t.groups {
		if g != nil {
			m |= 1 << uint(gid)
		}
	}
	return m
}

// JoinGroup allocates a free gid when requested is constants.AutoAssignGroupID,
// otherwise joins the named gid subject to its policy (Private: owner only;
// Restricted: same uid as owner; Shared: any; Undefined: reject). Joining
// sets sock_id[c] |= 1<<sid for every class bit in classMask.
func (t *Table) JoinGroup(requested int32, sid int32, classMask uint64, policy Policy) (int32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	gid := requested
	if gid == constants.AutoAssignGroupID {
		var err error
		gid, err = t.allocLocked(sid, policy)
		if err != nil {
			return -1, err
		}
	} else {
		if gid < 0 || int(gid) >= constants.MaxGroups {
			return -1, ErrNoSuchGroup
		}
		g := t.groups[gid]
		if g == nil {
			t.groups[gid] = newGroup(gid, sid, policy)
			g = t.groups[gid]
		} else if err := t.checkPolicyLocked(g, sid); err != nil {
			return -1, err
		}
	}

	g := t.groups[gid]
	g.mu.Lock()
	for c := 0; c < constants.MaxClasses; c++ {
		if classMask&(1<<uint(c)) != 0 {
			g.sockID[c] |= 1 << uint(sid)
		}
	}
	if _, already := g.pid[sid]; !already {
		g.pid[sid] = policy
	}
	g.mu.Unlock()
	g.generation.Add(1)
	return gid, nil
}

func (t *Table) allocLocked(sid int32, policy Policy) (int32, error) {
	for gid := 0; gid < constants.MaxGroups; gid++ {
		if t.groups[gid] == nil {
			t.groups[gid] = newGroup(int32(gid), sid, policy)
			return int32(gid), nil
		}
	}
	return -1, ErrGroupTableFull
}

func (t *Table) checkPolicyLocked(g *Group, sid int32) error {
	g.mu.RLock()
	policy, owner := g.policy, g.owner
	_, alreadyJoined := g.pid[sid]
	g.mu.RUnlock()
	if alreadyJoined {
		return nil // idempotent re-join
	}
	switch policy {
	case Private:
		if owner != sid {
			return ErrPolicyRejected
		}
	case Restricted:
		if t.uid[owner] != t.uid[sid] {
			return ErrPolicyRejected
		}
	case Shared:
		// any socket may join
	case Undefined:
		return ErrPolicyRejected
	}
	return nil
}

// LeaveGroup clears sid's membership bits; the group is freed once every
// class bitmap and the pid table are empty.
func (t *Table) LeaveGroup(gid int32, sid int32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gid < 0 || int(gid) >= constants.MaxGroups || t.groups[gid] == nil {
		return nil // leave after leave is a no-op
	}
	g := t.groups[gid]

	g.mu.Lock()
	if _, ok := g.pid[sid]; !ok {
		g.mu.Unlock()
		return nil
	}
	delete(g.pid, sid)
	for c := 0; c < constants.MaxClasses; c++ {
		g.sockID[c] &^= 1 << uint(sid)
	}
	empty := len(g.pid) == 0
	g.mu.Unlock()
	g.generation.Add(1)

	if empty {
		t.groups[gid] = nil
	}
	return nil
}

// Access reports whether sid is joined to gid in any class.
func (t *Table) Access(gid int32, sid int32) bool {
	g := t.Get(gid)
	if g == nil {
		return false
	}
	return g.IsJoined(sid)
}

// SetFilter binds or clears gid's classic-BPF filter.
func (t *Table) SetFilter(gid int32, f Filter) error {
	g := t.Get(gid)
	if g == nil {
		return ErrNoSuchGroup
	}
	g.mu.Lock()
	g.filter = f
	g.mu.Unlock()
	return nil
}

// SetProgram binds or clears gid's pfq-lang program (spec §4.4.3's
// compilation result). A nil program clears the binding; calling with the
// existing value is a stable no-op (spec §8's idempotence property).
func (t *Table) SetProgram(gid int32, p Program) error {
	g := t.Get(gid)
	if g == nil {
		return ErrNoSuchGroup
	}
	g.mu.Lock()
	g.program = p
	g.mu.Unlock()
	return nil
}

// ToggleVlan enables or disables vlan filtering for gid.
func (t *Table) ToggleVlan(gid int32, on bool) error {
	g := t.Get(gid)
	if g == nil {
		return ErrNoSuchGroup
	}
	g.mu.Lock()
	g.vlanFiltersEnabled = on
	g.mu.Unlock()
	return nil
}

// SetVlanFilter sets or clears a single VID's bit. vid == -1 means "match
// any VID" and is implemented as a direct bitmap fill-all, per the design
// decision to not reproduce the kernel's inner-loop increment bug.
func (t *Table) SetVlanFilter(gid int32, vid int32, on bool) error {
	g := t.Get(gid)
	if g == nil {
		return ErrNoSuchGroup
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if vid == -1 {
		fill := uint64(0)
		if on {
			fill = ^uint64(0)
		}
		for i := range g.vlanBitmap {
			g.vlanBitmap[i] = fill
		}
		return nil
	}
	if vid < 0 || int(vid) >= constants.VlanBitmapSlots {
		return errors.New("group: vid out of range")
	}
	idx, bit := vid/64, uint(vid%64)
	if on {
		g.vlanBitmap[idx] |= 1 << bit
	} else {
		g.vlanBitmap[idx] &^= 1 << bit
	}
	return nil
}
