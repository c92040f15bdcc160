// Package gc implements the per-CPU garbage-collected packet batch (spec
// §4.1): a fixed-capacity queue of in-flight descriptors plus a lazily
// accumulated forwarding-endpoint aggregate.
package gc

import "sync"

// BufferPool provides pooled frame buffers to avoid hot-path allocations.
// Uses size-bucketed pools with power-of-2 sizes (2KB, 4KB, 8KB, 16KB) since
// captured frames are bounded by caplen (default 1514, jumbo up to ~9KB).
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead,
// mirroring the teacher's I/O buffer pool.
const (
	size2k  = 2 * 1024
	size4k  = 4 * 1024
	size8k  = 8 * 1024
	size16k = 16 * 1024
)

var framePool = struct {
	pool2k  sync.Pool
	pool4k  sync.Pool
	pool8k  sync.Pool
	pool16k sync.Pool
}{
	pool2k:  sync.Pool{New: func() any { b := make([]byte, size2k); return &b }},
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool8k:  sync.Pool{New: func() any { b := make([]byte, size8k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
}

// GetFrame returns a pooled buffer of at least the requested size. Caller
// must call PutFrame when the frame has been recycled by the engine.
func GetFrame(size int) []byte {
	switch {
	case size <= size2k:
		return (*framePool.pool2k.Get().(*[]byte))[:size]
	case size <= size4k:
		return (*framePool.pool4k.Get().(*[]byte))[:size]
	case size <= size8k:
		return (*framePool.pool8k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*framePool.pool16k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutFrame returns a buffer to the pool. The buffer's capacity determines
// which pool it goes to; non-standard capacities (oversize frames) are
// dropped for the GC to collect.
func PutFrame(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size2k:
		framePool.pool2k.Put(&buf)
	case size4k:
		framePool.pool4k.Put(&buf)
	case size8k:
		framePool.pool8k.Put(&buf)
	case size16k:
		framePool.pool16k.Put(&buf)
	}
}
