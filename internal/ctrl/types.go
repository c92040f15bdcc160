// Package ctrl implements the per-socket control surface (spec §6): a
// fixed set of getters and setters, mediating every mutation of the group
// table, device map, and per-socket shared queues.
package ctrl

import "errors"

var (
	ErrNoSuchSocket   = errors.New("ctrl: no such socket")
	ErrAlreadyEnabled = errors.New("ctrl: socket already enabled")
	ErrNotEnabled     = errors.New("ctrl: socket not enabled")
	ErrBadArgument    = errors.New("ctrl: bad argument")
)

// Option enumerates the control surface's addressable operations (spec
// §6's table). Socket and Control expose one concrete Go method per
// Option; the enum itself is used for logging and status reporting, not
// as a dispatch key.
type Option int

const (
	OptEnable Option = iota
	OptDisable
	OptGetID
	OptGetStatus
	OptGetStats
	OptGroupStats
	OptGroupCounters
	OptRxTstamp
	OptRxCaplen
	OptRxSlots
	OptTxSlots
	OptWeight
	OptGroupJoin
	OptGroupLeave
	OptGroupBind
	OptGroupUnbind
	OptEgressBind
	OptEgressUnbind
	OptGroupFprog
	OptVlanFiltToggle
	OptVlanFilt
	OptGroupFunction
	OptTxBind
	OptTxUnbind
	OptTxQueue
)

func (o Option) String() string {
	switch o {
	case OptEnable:
		return "ENABLE"
	case OptDisable:
		return "DISABLE"
	case OptGetID:
		return "GET_ID"
	case OptGetStatus:
		return "GET_STATUS"
	case OptGetStats:
		return "GET_STATS"
	case OptGroupStats:
		return "GROUP_STATS"
	case OptGroupCounters:
		return "GROUP_COUNTERS"
	case OptRxTstamp:
		return "RX_TSTAMP"
	case OptRxCaplen:
		return "RX_CAPLEN"
	case OptRxSlots:
		return "RX_SLOTS"
	case OptTxSlots:
		return "TX_SLOTS"
	case OptWeight:
		return "WEIGHT"
	case OptGroupJoin:
		return "GROUP_JOIN"
	case OptGroupLeave:
		return "GROUP_LEAVE"
	case OptGroupBind:
		return "GROUP_BIND"
	case OptGroupUnbind:
		return "GROUP_UNBIND"
	case OptEgressBind:
		return "EGRESS_BIND"
	case OptEgressUnbind:
		return "EGRESS_UNBIND"
	case OptGroupFprog:
		return "GROUP_FPROG"
	case OptVlanFiltToggle:
		return "GROUP_VLAN_FILT_TOGGLE"
	case OptVlanFilt:
		return "GROUP_VLAN_FILT"
	case OptGroupFunction:
		return "GROUP_FUNCTION"
	case OptTxBind:
		return "TX_BIND"
	case OptTxUnbind:
		return "TX_UNBIND"
	case OptTxQueue:
		return "TX_QUEUE"
	default:
		return "UNKNOWN"
	}
}

// Status is the GET_STATUS payload: a socket's current configuration
// snapshot.
type Status struct {
	Enabled  bool
	Caplen   int
	RxSlots  int
	TxSlots  int
	Weight   int32
	RxTstamp bool
}

// EgressBinding is the EGRESS_BIND payload: the device a socket's
// explicitly-forwarded packets leave by default, distinct from
// group-routed forwarding.
type EgressBinding struct {
	IfIndex int32
	Queue   int32
}

// TxBinding is one TX_BIND entry: an async Tx thread id paired with the
// device/queue it drains to.
type TxBinding struct {
	ThreadID int
	IfIndex  int32
	Queue    int32
}
