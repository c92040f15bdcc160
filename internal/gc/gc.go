package gc

import (
	"sync/atomic"

	"github.com/pfq-dev/go-pfq/internal/constants"
	"github.com/pfq-dev/go-pfq/internal/packet"
)

// Handle identifies a descriptor within a Batch. It is invalidated by Reset.
type Handle int

// EndpointAggregate is the union of forwarding targets recorded across a
// batch, built by GetLazyEndpoints. Devices preserves per-descriptor
// multiplicity (one entry per packet destined to the target) so the
// engine's flush step can copy each payload exactly once per target.
type EndpointAggregate struct {
	Devices  map[int32][]Handle // ifindex -> descriptor handles destined there
	ToKernel []Handle
}

// Batch is a per-CPU fixed-capacity queue of in-flight packet descriptors.
// It is not safe for concurrent use: exactly one goroutine (the engine loop
// pinned to a CPU) owns a Batch.
type Batch struct {
	descriptors []packet.Descriptor
	count       int
	lost        atomic.Uint64
}

// NewBatch allocates a batch with the given capacity (spec's capt_batch_len,
// clamped to MaxCaptBatchLen).
func NewBatch(capacity int) *Batch {
	if capacity <= 0 {
		capacity = constants.DefaultCaptBatchLen
	}
	if capacity > constants.MaxCaptBatchLen {
		capacity = constants.MaxCaptBatchLen
	}
	return &Batch{descriptors: make([]packet.Descriptor, capacity)}
}

// MakeBuff admits a frame into the batch, copying it into a pooled buffer.
// It returns a handle valid until the next Reset, or ok=false if the batch
// is full (the caller must account the frame as lost and free it).
func (b *Batch) MakeBuff(frame []byte) (h Handle, ok bool) {
	if b.count >= len(b.descriptors) {
		b.lost.Add(1)
		return 0, false
	}
	idx := b.count
	b.count++
	d := &b.descriptors[idx]
	d.Reset()
	buf := GetFrame(len(frame))
	copy(buf, frame)
	d.Frame = buf
	d.Len = len(frame)
	d.CapLen = len(frame)
	return Handle(idx), true
}

// Size returns the current occupancy.
func (b *Batch) Size() int { return b.count }

// Lost returns the cumulative count of admission failures since creation.
func (b *Batch) Lost() uint64 { return b.lost.Load() }

// Descriptor returns a pointer to the descriptor for h. Valid only while
// the batch has not been Reset since h was issued.
func (b *Batch) Descriptor(h Handle) *packet.Descriptor {
	return &b.descriptors[h]
}

// Each calls fn for every live descriptor in admission order.
func (b *Batch) Each(fn func(h Handle, d *packet.Descriptor)) {
	for i := 0; i < b.count; i++ {
		fn(Handle(i), &b.descriptors[i])
	}
}

// Reset empties the batch, recycling every descriptor's frame buffer to the
// pool and invalidating all handles.
func (b *Batch) Reset() {
	for i := 0; i < b.count; i++ {
		d := &b.descriptors[i]
		if d.Frame != nil {
			PutFrame(d.Frame)
		}
		d.Reset()
	}
	b.count = 0
}

// GetLazyEndpoints collects the union of forwarding targets recorded in
// every live descriptor's CB.ForwardLog, deduplicated per target while
// preserving the handle list the engine's flush step uses to copy each
// payload.
func (b *Batch) GetLazyEndpoints() EndpointAggregate {
	agg := EndpointAggregate{Devices: make(map[int32][]Handle)}
	for i := 0; i < b.count; i++ {
		d := &b.descriptors[i]
		for _, t := range d.CB.ForwardLog {
			if t.ToKernel {
				agg.ToKernel = append(agg.ToKernel, Handle(i))
				continue
			}
			agg.Devices[t.IfIndex] = append(agg.Devices[t.IfIndex], Handle(i))
		}
	}
	return agg
}
