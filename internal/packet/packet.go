// Package packet defines the per-frame descriptor and control block carried
// through the engine pipeline (spec §3 "Packet descriptor").
package packet

import "time"

// Action is the result of a monadic pfq-lang step.
type Action int

const (
	ActionPass Action = iota
	ActionDrop
	ActionCopy
	ActionSteer
	ActionContinue
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionPass:
		return "pass"
	case ActionDrop:
		return "drop"
	case ActionCopy:
		return "copy"
	case ActionSteer:
		return "steer"
	case ActionContinue:
		return "continue"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// ForwardTarget is one entry in a packet's forwarding log: either a device
// queue, or a marker that the frame should also reach the host stack.
type ForwardTarget struct {
	IfIndex  int32
	Queue    int32
	ToKernel bool
}

// ControlBlock is the per-packet mutable record ("the monad") threaded
// through pfq-lang evaluation: current action, class mask, group
// membership, user state/mark, and the lazy forwarding log.
type ControlBlock struct {
	Action     Action
	ClassMask  uint64
	GroupMask  uint64
	State      uint32
	Mark       uint32
	Hash       uint32
	Direct     bool
	Right      bool // which successor edge to take next (CB.right)
	StopWalk   bool
	ForwardLog []ForwardTarget
}

// Reset clears a control block for reuse without reallocating ForwardLog's
// backing array.
func (cb *ControlBlock) Reset() {
	cb.Action = ActionPass
	cb.ClassMask = 0
	cb.GroupMask = 0
	cb.State = 0
	cb.Mark = 0
	cb.Hash = 0
	cb.Direct = false
	cb.Right = true
	cb.StopWalk = false
	cb.ForwardLog = cb.ForwardLog[:0]
}

// VLAN carries the 802.1Q tag extracted from the frame, if present.
type VLAN struct {
	TCI     uint16
	Present bool
}

func (v VLAN) VID() uint16 { return v.TCI & 0x0FFF }

// Descriptor is the per-frame metadata that flows through the engine from
// admission to batch completion. Frame holds the raw bytes (owned by the
// per-CPU buffer pool until recycled).
type Descriptor struct {
	Frame       []byte
	Timestamp   time.Time
	IfIndex     int32
	HwQueue     int32
	VLAN        VLAN
	LinkHdrLen  int
	CapLen      int
	Len         int
	CB          ControlBlock
}

// Reset prepares a descriptor for reuse from a pool.
func (d *Descriptor) Reset() {
	d.Frame = d.Frame[:0]
	d.Timestamp = time.Time{}
	d.IfIndex = 0
	d.HwQueue = 0
	d.VLAN = VLAN{}
	d.LinkHdrLen = 0
	d.CapLen = 0
	d.Len = 0
	d.CB.Reset()
}
