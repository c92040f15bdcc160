package ctrl

import (
	"sync"

	"github.com/pfq-dev/go-pfq/internal/bpf"
	"github.com/pfq-dev/go-pfq/internal/constants"
	"github.com/pfq-dev/go-pfq/internal/devmap"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/logging"
	"github.com/pfq-dev/go-pfq/internal/squeue"
	"github.com/pfq-dev/go-pfq/internal/symtab"
)

// Socket is the per-socket configuration and queue state a Control
// manages. Fields mirror spec §3's Socket: id, opt (caplen/slots/tstamp),
// weight, egress, shmem, and the Tx binding set.
type Socket struct {
	mu sync.Mutex

	id  int32
	uid int32

	enabled  bool
	caplen   int
	rxSlots  int
	txSlots  int
	rxTstamp bool
	weight   int32

	groups map[int32]struct{}
	egress *EgressBinding
	txBind []TxBinding
	txQid  int

	Rx *squeue.RxQueue
	Tx *squeue.TxQueue
}

// ID returns the socket's identifier (GET_ID).
func (s *Socket) ID() int32 { return s.id }

// Control is the per-process control plane: one object fronting the
// shared group table and device map, owning every open socket's
// configuration (spec §6 "Control surface").
type Control struct {
	groups *group.Table
	devmap *devmap.Map
	reg    *symtab.Registry
	logger *logging.Logger

	mu      sync.Mutex
	sockets map[int32]*Socket
	nextSid int32
}

// New returns a control plane bound to a shared group table, device map,
// and symbol registry (the last resolves GROUP_FUNCTION programs).
func New(groups *group.Table, dm *devmap.Map, reg *symtab.Registry, logger *logging.Logger) *Control {
	return &Control{
		groups:  groups,
		devmap:  dm,
		reg:     reg,
		logger:  logger,
		sockets: make(map[int32]*Socket),
	}
}

// OpenSocket allocates a new socket with default options (spec §6's
// DefaultCaplen/DefaultRxSlots/DefaultTxSlots) and registers its owning
// uid with the group table for Restricted-policy checks.
func (c *Control) OpenSocket(uid int32) *Socket {
	c.mu.Lock()
	defer c.mu.Unlock()

	sid := c.nextSid
	c.nextSid++
	s := &Socket{
		id:      sid,
		uid:     uid,
		caplen:  constants.DefaultCaplen,
		rxSlots: constants.DefaultRxSlots,
		txSlots: constants.DefaultTxSlots,
		weight:  1,
		groups:  make(map[int32]struct{}),
	}
	c.sockets[sid] = s
	c.groups.SetUID(sid, uid)
	return s
}

// CloseSocket leaves every group the socket joined and releases its
// queues.
func (c *Control) CloseSocket(sid int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	gids := make([]int32, 0, len(s.groups))
	for gid := range s.groups {
		gids = append(gids, gid)
	}
	s.mu.Unlock()
	for _, gid := range gids {
		_ = c.groups.LeaveGroup(gid, sid)
	}
	_ = c.Disable(sid)

	c.mu.Lock()
	delete(c.sockets, sid)
	c.mu.Unlock()
	return nil
}

func (c *Control) lookup(sid int32) (*Socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sockets[sid]
	if !ok {
		return nil, ErrNoSuchSocket
	}
	return s, nil
}

// SocketByID exposes lookup to callers outside the package, e.g. the
// top-level engine.SocketRegistry adapter.
func (c *Control) SocketByID(sid int32) (*Socket, bool) {
	s, err := c.lookup(sid)
	return s, err == nil
}

// WeightValue and CaplenValue give a Socket's current steering weight and capture
// length without going through Control's mutex-guarded accessors, for
// engine.SocketRegistry adapters that read them once per batch.
func (s *Socket) WeightValue() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

func (s *Socket) CaplenValue() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caplen
}

// Enable allocates the socket's Rx/Tx shared queues at its current
// caplen/slot sizes (ENABLE). shmAddr is accepted for wire compatibility
// with spec §6's payload but unused: queues are Go-heap mmaps, not a
// caller-supplied user address.
func (c *Control) Enable(sid int32, shmAddr uint64) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return ErrAlreadyEnabled
	}
	rx, err := squeue.NewRxQueue(s.rxSlots, s.caplen)
	if err != nil {
		return err
	}
	tx, err := squeue.NewTxQueue(s.txSlots * s.caplen)
	if err != nil {
		rx.Close()
		return err
	}
	s.Rx, s.Tx, s.enabled = rx, tx, true
	return nil
}

// Disable tears down the socket's shared queues (DISABLE). Disabling an
// already-disabled socket is a no-op, matching LeaveGroup's idempotence.
func (c *Control) Disable(sid int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled {
		return nil
	}
	if s.Rx != nil {
		s.Rx.Close()
	}
	if s.Tx != nil {
		s.Tx.Close()
	}
	s.Rx, s.Tx, s.enabled = nil, nil, false
	return nil
}

// Status returns the socket's current option snapshot (GET_STATUS).
func (c *Control) Status(sid int32) (Status, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Enabled:  s.enabled,
		Caplen:   s.caplen,
		RxSlots:  s.rxSlots,
		TxSlots:  s.txSlots,
		Weight:   s.weight,
		RxTstamp: s.rxTstamp,
	}, nil
}

// Stats returns the aggregate recv/drop/frwd/kern counters across every
// group the socket has joined (GET_STATS).
func (c *Control) Stats(sid int32) (group.Stats, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return group.Stats{}, err
	}
	s.mu.Lock()
	gids := make([]int32, 0, len(s.groups))
	for gid := range s.groups {
		gids = append(gids, gid)
	}
	s.mu.Unlock()

	var total group.Stats
	for _, gid := range gids {
		if g := c.groups.Get(gid); g != nil {
			st := g.CPUStats()
			total.Recv += st.Recv
			total.Drop += st.Drop
			total.Frwd += st.Frwd
			total.Kern += st.Kern
		}
	}
	return total, nil
}

// GroupStats returns one group's own stats (GROUP_STATS), independent of
// which sockets have joined it.
func (c *Control) GroupStats(gid int32) (group.Stats, error) {
	g := c.groups.Get(gid)
	if g == nil {
		return group.Stats{}, group.ErrNoSuchGroup
	}
	return g.CPUStats(), nil
}

// GroupCounters returns the 64 user-addressable per-group counters
// (GROUP_COUNTERS).
func (c *Control) GroupCounters(gid int32) ([constants.GroupCounterSlots]uint64, error) {
	g := c.groups.Get(gid)
	if g == nil {
		return [constants.GroupCounterSlots]uint64{}, group.ErrNoSuchGroup
	}
	return g.Counters(), nil
}

// RxTstamp / SetRxTstamp (GET/SET_RX_TSTAMP).
func (c *Control) RxTstamp(sid int32) (bool, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxTstamp, nil
}

func (c *Control) SetRxTstamp(sid int32, on bool) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rxTstamp = on
	return nil
}

// RxCaplen / SetRxCaplen (GET/SET_RX_CAPLEN). Setting caplen on an
// enabled socket is rejected: the Rx arena is already sized, and resizing
// it live would race the engine's writers (spec §7 "configuration
// errors... setter rejects the operation; prior state preserved").
func (c *Control) RxCaplen(sid int32) (int, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.caplen, nil
}

func (c *Control) SetRxCaplen(sid int32, n int) error {
	if n <= 0 {
		return ErrBadArgument
	}
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return ErrAlreadyEnabled
	}
	s.caplen = n
	return nil
}

// RxSlots / SetRxSlots, TxSlots / SetTxSlots (GET/SET_RX_SLOTS, TX_SLOTS).
func (c *Control) RxSlots(sid int32) (int, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rxSlots, nil
}

func (c *Control) SetRxSlots(sid int32, n int) error {
	if n <= 0 {
		return ErrBadArgument
	}
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return ErrAlreadyEnabled
	}
	s.rxSlots = n
	return nil
}

func (c *Control) TxSlots(sid int32) (int, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txSlots, nil
}

func (c *Control) SetTxSlots(sid int32, n int) error {
	if n <= 0 {
		return ErrBadArgument
	}
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		return ErrAlreadyEnabled
	}
	s.txSlots = n
	return nil
}

// Weight / SetWeight (GET/SET_WEIGHT). Weight drives the engine's
// expansion-cache steering (spec §4.5's weighted round-robin).
func (c *Control) Weight(sid int32) (int32, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight, nil
}

func (c *Control) SetWeight(sid int32, w int32) error {
	if w < 1 || w > constants.MaxSockMask {
		return ErrBadArgument
	}
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weight = w
	return nil
}

// GroupJoin / GroupLeave (GROUP_JOIN / GROUP_LEAVE).
func (c *Control) GroupJoin(sid, requestedGid int32, classMask uint64, policy group.Policy) (int32, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return -1, err
	}
	gid, err := c.groups.JoinGroup(requestedGid, sid, classMask, policy)
	if err != nil {
		return -1, err
	}
	s.mu.Lock()
	s.groups[gid] = struct{}{}
	s.mu.Unlock()
	return gid, nil
}

func (c *Control) GroupLeave(sid, gid int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	if err := c.groups.LeaveGroup(gid, sid); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.groups, gid)
	s.mu.Unlock()
	return nil
}

// GroupBind / GroupUnbind (GROUP_BIND / GROUP_UNBIND): wire a group into
// the device->group map at (ifindex, queue).
func (c *Control) GroupBind(gid int32, ifindex, queue int32) error {
	return c.devmap.Update(devmap.Set, int(ifindex), int(queue), int(gid))
}

func (c *Control) GroupUnbind(gid int32, ifindex, queue int32) error {
	return c.devmap.Update(devmap.Clear, int(ifindex), int(queue), int(gid))
}

// EgressBind / EgressUnbind (EGRESS_BIND / EGRESS_UNBIND): the device a
// socket's egress action sends to when no explicit forward target is
// named by the bound program.
func (c *Control) EgressBind(sid int32, ifindex, queue int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.egress = &EgressBinding{IfIndex: ifindex, Queue: queue}
	return nil
}

func (c *Control) EgressUnbind(sid int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.egress = nil
	return nil
}

func (c *Control) Egress(sid int32) (*EgressBinding, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.egress, nil
}

// GroupFprog binds a classic BPF filter to gid from its wire-encoded
// program (GROUP_FPROG). An empty payload clears the filter.
func (c *Control) GroupFprog(gid int32, payload []byte) error {
	if len(payload) == 0 {
		return c.groups.SetFilter(gid, nil)
	}
	insns, err := bpf.DecodeRawProgram(payload)
	if err != nil {
		return err
	}
	f, err := bpf.Compile(insns)
	if err != nil {
		return err
	}
	return c.groups.SetFilter(gid, f)
}

// VlanFiltToggle / VlanFilt (GROUP_VLAN_FILT_TOGGLE / GROUP_VLAN_FILT).
func (c *Control) VlanFiltToggle(gid int32, on bool) error {
	return c.groups.ToggleVlan(gid, on)
}

func (c *Control) VlanFilt(gid int32, vid int32, on bool) error {
	if vid < -1 || int(vid) >= constants.VlanBitmapSlots {
		return ErrBadArgument
	}
	return c.groups.SetVlanFilter(gid, vid, on)
}

// GroupFunction compiles a pfq-lang descriptor array and binds it to gid
// (GROUP_FUNCTION). A nil descrs clears the binding.
func (c *Control) GroupFunction(gid int32, name string, descrs []lang.Descr, entryPoint int) error {
	if descrs == nil {
		return c.groups.SetProgram(gid, nil)
	}
	prog, err := lang.Compile(name, descrs, entryPoint, c.reg)
	if err != nil {
		return err
	}
	return c.groups.SetProgram(gid, prog)
}

// TxBind / TxUnbind / TxQueue (TX_BIND / TX_UNBIND / TX_QUEUE): the async
// Tx thread assignment and the flush-queue selector (0 = sync flush,
// spec §6).
func (c *Control) TxBind(sid int32, threadID int, ifindex, queue int32) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.txBind {
		if b.ThreadID == threadID {
			s.txBind[i] = TxBinding{ThreadID: threadID, IfIndex: ifindex, Queue: queue}
			return nil
		}
	}
	s.txBind = append(s.txBind, TxBinding{ThreadID: threadID, IfIndex: ifindex, Queue: queue})
	return nil
}

func (c *Control) TxUnbind(sid int32, threadID int) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.txBind {
		if b.ThreadID == threadID {
			s.txBind = append(s.txBind[:i], s.txBind[i+1:]...)
			return nil
		}
	}
	return nil
}

func (c *Control) TxBindings(sid int32) ([]TxBinding, error) {
	s, err := c.lookup(sid)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TxBinding, len(s.txBind))
	copy(out, s.txBind)
	return out, nil
}

func (c *Control) SetTxQueue(sid int32, qid int) error {
	s, err := c.lookup(sid)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txQid = qid
	return nil
}
