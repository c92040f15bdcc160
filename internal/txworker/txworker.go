// Package txworker implements the async Tx worker pool (spec §4.7): N
// threads, each pinned to a distinct CPU, draining a fixed subset of
// per-socket Tx async arenas to designated NIC device/queue pairs.
package txworker

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pfq-dev/go-pfq/internal/interfaces"
	"github.com/pfq-dev/go-pfq/internal/logging"
	"github.com/pfq-dev/go-pfq/internal/squeue"
)

// Target binds one Tx arena to a destination device/queue.
type Target struct {
	Queue   *squeue.TxQueue
	IfIndex int32
	HwQueue int32
}

// Worker drains a fixed set of Tx arenas, pinned to one CPU. Cancellation
// is cooperative: Stop sets an atomic flag checked at batch boundaries
// (spec §5 "Cancellation").
type Worker struct {
	id          int
	cpuAffinity int // -1 = no pinning
	targets     []Target
	endpoint    interfaces.Endpoint
	batchLen    int
	logger      *logging.Logger
	observer    interfaces.Observer

	stop atomic.Bool
	done chan struct{}
}

// New returns a worker that will drain targets in units of up to
// batchLen requests once started.
func New(id, cpuAffinity int, targets []Target, endpoint interfaces.Endpoint, batchLen int, logger *logging.Logger, observer interfaces.Observer) *Worker {
	if observer == nil {
		observer = interfaces.NoOpObserver{}
	}
	return &Worker{
		id:          id,
		cpuAffinity: cpuAffinity,
		targets:     targets,
		endpoint:    endpoint,
		batchLen:    batchLen,
		logger:      logger,
		observer:    observer,
		done:        make(chan struct{}),
	}
}

// Run pins the calling goroutine to an OS thread (and to cpuAffinity, if
// set), then loops draining targets until Stop is called. Intended to be
// launched with `go w.Run()`.
func (w *Worker) Run() {
	defer close(w.done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cpuAffinity >= 0 {
		var mask unix.CPUSet
		mask.Set(w.cpuAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil && w.logger != nil {
			w.logger.Warnf("txworker %d: set CPU affinity to %d: %v", w.id, w.cpuAffinity, err)
		}
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for !w.stop.Load() {
		drained := w.drainOnce()
		if drained == 0 {
			<-ticker.C
		}
	}
}

// drainOnce drains up to batchLen requests from every target once,
// returning the total requests submitted.
func (w *Worker) drainOnce() int {
	total := 0
	for _, t := range w.targets {
		reqs := t.Queue.Drain(w.batchLen)
		for _, r := range reqs {
			if _, err := w.endpoint.Send(int(t.HwQueue), r.Payload); err != nil {
				w.observer.ObserveDiscard(1)
				continue
			}
			w.observer.ObserveForward(1, 0, true)
		}
		total += len(reqs)
	}
	if total > 0 {
		w.observer.ObserveBatch(total, 0)
	}
	return total
}

// Stop requests the worker to exit at the next batch boundary and blocks
// until it has.
func (w *Worker) Stop() {
	w.stop.Store(true)
	<-w.done
}

// Pool manages a fixed set of async Tx workers, assigning async arenas
// round-robin across tx_thread_nr workers pinned to tx_affinity (spec §6
// "Configuration").
type Pool struct {
	mu      sync.Mutex
	workers []*Worker
}

// NewPool starts workers, one per cpuAffinity entry (or one unpinned
// worker if affinity is empty), distributing targets round-robin.
func NewPool(targets []Target, affinity []int, endpoint interfaces.Endpoint, batchLen int, logger *logging.Logger, observer interfaces.Observer) *Pool {
	n := len(affinity)
	if n == 0 {
		n = 1
	}
	buckets := make([][]Target, n)
	for i, t := range targets {
		buckets[i%n] = append(buckets[i%n], t)
	}

	p := &Pool{}
	for i := 0; i < n; i++ {
		cpu := -1
		if len(affinity) > 0 {
			cpu = affinity[i]
		}
		w := New(i, cpu, buckets[i], endpoint, batchLen, logger, observer)
		p.workers = append(p.workers, w)
		go w.Run()
	}
	return p
}

// Stop stops every worker in the pool, blocking until all have exited.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Stop()
	}
}
