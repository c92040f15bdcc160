// Package interfaces provides internal interface definitions for go-pfq.
// These are separate from the public interfaces to avoid circular imports
// between the main package and internal packages.
package interfaces

// Endpoint is the sink for frames the engine decides to forward to a network
// device, either lazily (forward, batched through the GC log) or eagerly
// (forwardIO, bridge). Implementations wrap a real NIC queue (netdev) or a
// fake one (tests).
type Endpoint interface {
	// Send transmits a raw frame out the given hardware queue. It returns
	// the number of bytes accepted. The Tx worker counts an error toward
	// the process-wide "disc" metric; it does not check for a short count.
	Send(queue int, frame []byte) (int, error)
	// Name returns the device name this endpoint was resolved from.
	Name() string
	// Close releases any resources (sockets, mmaps) held by the endpoint.
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer interface for metrics collection.
// Implementations must be thread-safe as methods are called from the
// engine's hot path.
type Observer interface {
	ObserveRecv(n uint64)
	ObserveDrop(n uint64)
	ObserveForward(n uint64, latencyNs uint64, success bool)
	ObserveDiscard(n uint64)
	ObserveKernel(n uint64)
	ObserveBatch(size int, latencyNs uint64)
}

// NoOpObserver discards every observation. Used where no metrics sink has
// been wired.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRecv(uint64)                      {}
func (NoOpObserver) ObserveDrop(uint64)                      {}
func (NoOpObserver) ObserveForward(uint64, uint64, bool)     {}
func (NoOpObserver) ObserveDiscard(uint64)                   {}
func (NoOpObserver) ObserveKernel(uint64)                    {}
func (NoOpObserver) ObserveBatch(int, uint64)                {}
