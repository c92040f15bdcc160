// Package pfq implements a multi-core packet capture and injection
// framework: one shared group table and device map fan batches out
// across per-CPU engines, steered by pfq-lang programs compiled into
// the shared symbol table, with a per-socket control surface and an
// async Tx worker pool per bound egress device that drains sockets' Tx
// queues. Eager forwardIO/bridge sends go straight to the device registry.
package pfq

import (
	"fmt"
	"sync"

	"github.com/pfq-dev/go-pfq/internal/ctrl"
	"github.com/pfq-dev/go-pfq/internal/devmap"
	"github.com/pfq-dev/go-pfq/internal/engine"
	"github.com/pfq-dev/go-pfq/internal/gc"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/logging"
	"github.com/pfq-dev/go-pfq/internal/netdev"
	"github.com/pfq-dev/go-pfq/internal/symtab"
	"github.com/pfq-dev/go-pfq/internal/txworker"
)

// PFQ is the top-level handle a process opens once: it owns the shared
// group table, device map, and symbol registry, a per-CPU set of
// engines, the control plane, and every async Tx worker pool currently
// bound to a device.
type PFQ struct {
	cfg Config

	groups  *group.Table
	devmap  *devmap.Map
	reg     *symtab.Registry
	devices *netdev.Registry
	logger  *logging.Logger
	metrics *Metrics

	control *ctrl.Control
	engines []*engine.Engine

	mu      sync.Mutex
	txPools map[int32]*txworker.Pool // keyed by egress ifindex
}

// Open builds a PFQ instance bound to cfg: one engine per cfg.RxCPUs
// entry (or a single engine with CPU id 0 if empty), a control plane, and an
// empty Tx pool set populated lazily as sockets bind egress devices.
func Open(cfg Config, devices *netdev.Registry, logger *logging.Logger) (*PFQ, error) {
	if devices == nil {
		return nil, NewError("OPEN", ErrCodeInvalid, "nil device registry")
	}
	if logger == nil {
		logger = logging.Default()
	}

	groups := group.NewTable()
	dm := devmap.New()
	reg := symtab.NewRegistry()
	lang.RegisterBuiltins(reg, &lang.Env{Devices: devices})

	p := &PFQ{
		cfg:     cfg,
		groups:  groups,
		devmap:  dm,
		reg:     reg,
		devices: devices,
		logger:  logger,
		metrics: NewMetrics(),
		control: ctrl.New(groups, dm, reg, logger),
		txPools: make(map[int32]*txworker.Pool),
	}

	observer := NewMetricsObserver(p.metrics)
	rxCPUs := cfg.RxCPUs
	if len(rxCPUs) == 0 {
		rxCPUs = []int{0}
	}
	for _, cpu := range rxCPUs {
		p.engines = append(p.engines, engine.New(cpu, dm, groups, &socketRegistry{control: p.control}, devices, observer))
	}
	return p, nil
}

// Control returns the control plane for socket and group lifecycle
// operations (spec §6).
func (p *PFQ) Control() *ctrl.Control { return p.control }

// Metrics returns the process-wide counters every engine and Tx worker
// record into.
func (p *PFQ) Metrics() *Metrics { return p.metrics }

// Groups returns the shared group table, for callers that need direct
// read access (e.g. a status reporter walking every group).
func (p *PFQ) Groups() *group.Table { return p.groups }

// Engine returns the engine bound to the i'th entry of cfg.RxCPUs,
// driving one batch through classify/filter/evaluate/fanout/forward.
func (p *PFQ) Engine(i int) (*engine.Engine, error) {
	if i < 0 || i >= len(p.engines) {
		return nil, NewError("ENGINE", ErrCodeBadArgument, fmt.Sprintf("no engine at index %d", i))
	}
	return p.engines[i], nil
}

// NewBatch returns a freshly allocated GC batch sized per cfg.CaptBatchLen,
// ready to be filled by a capture source and handed to an Engine.
func (p *PFQ) NewBatch() *gc.Batch {
	n := p.cfg.CaptBatchLen
	if n <= 0 {
		n = DefaultCaptBatchLen
	}
	return gc.NewBatch(n)
}

// BindEgress ensures a Tx worker pool exists for ifindex, starting one
// pinned to cfg.TxCPUs the first time ifindex is bound by any socket.
// Subsequent binds to the same device are no-ops.
func (p *PFQ) BindEgress(ifindex int32, targets []txworker.Target) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.txPools[ifindex]; ok {
		return nil
	}
	ep, err := p.devices.Endpoint(ifindex)
	if err != nil {
		return WrapError("TX_BIND", err)
	}
	batchLen := p.cfg.XmitBatchLen
	if batchLen <= 0 {
		batchLen = DefaultXmitBatchLen
	}
	observer := NewMetricsObserver(p.metrics)
	p.txPools[ifindex] = txworker.NewPool(targets, p.cfg.TxCPUs, ep, batchLen, p.logger, observer)
	return nil
}

// UnbindEgress stops and removes the Tx worker pool bound to ifindex, if
// any.
func (p *PFQ) UnbindEgress(ifindex int32) {
	p.mu.Lock()
	pool, ok := p.txPools[ifindex]
	if ok {
		delete(p.txPools, ifindex)
	}
	p.mu.Unlock()
	if ok {
		pool.Stop()
	}
}

// Close stops every Tx worker pool. Engines have no background
// goroutines of their own to stop: ProcessBatch is driven synchronously
// by the caller's capture loop.
func (p *PFQ) Close() error {
	p.mu.Lock()
	pools := make([]*txworker.Pool, 0, len(p.txPools))
	for ifindex, pool := range p.txPools {
		pools = append(pools, pool)
		delete(p.txPools, ifindex)
	}
	p.mu.Unlock()
	for _, pool := range pools {
		pool.Stop()
	}
	return nil
}

// socketRegistry adapts ctrl.Control to internal/engine.SocketRegistry,
// translating a socket's control-plane state into the narrow read-only
// view the hot path needs.
type socketRegistry struct {
	control *ctrl.Control
}

func (r *socketRegistry) Socket(sid int32) (*engine.Socket, bool) {
	s, ok := r.control.SocketByID(sid)
	if !ok {
		return nil, false
	}
	return &engine.Socket{
		ID:     s.ID(),
		Weight: s.WeightValue(),
		Caplen: s.CaplenValue(),
		Rx:     s.Rx,
	}, true
}
