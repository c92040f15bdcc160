// Package netdev resolves device names to kernel ifindexes and forwards
// frames to network devices. It implements internal/lang.Devices and
// internal/interfaces.Endpoint.
package netdev

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/vishvananda/netlink"
)

// Registry resolves device names to ifindexes and forwards frames. The
// netlink-backed implementation is used in production; tests use an
// in-memory fake built with NewFake.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]int32
	byIndex map[int32]string
	fake    bool
	sent    map[int32][][]byte
}

// New returns a Registry backed by the host's netlink device table.
func New() (*Registry, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netdev: list links: %w", err)
	}
	r := &Registry{byName: make(map[string]int32), byIndex: make(map[int32]string)}
	for _, l := range links {
		attrs := l.Attrs()
		r.byName[attrs.Name] = int32(attrs.Index)
		r.byIndex[int32(attrs.Index)] = attrs.Name
	}
	return r, nil
}

// NewFake returns an in-memory Registry for tests, seeded with the given
// name -> ifindex pairs.
func NewFake(seed map[string]int32) *Registry {
	r := &Registry{
		byName:  make(map[string]int32, len(seed)),
		byIndex: make(map[int32]string, len(seed)),
		fake:    true,
		sent:    make(map[int32][][]byte),
	}
	for name, idx := range seed {
		r.byName[name] = idx
		r.byIndex[idx] = name
	}
	return r
}

// IfIndex resolves a device name, satisfying internal/lang.Devices.
func (r *Registry) IfIndex(name string) (int32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[name]
	return idx, ok
}

// Name resolves an ifindex back to a device name.
func (r *Registry) Name(ifindex int32) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byIndex[ifindex]
	return name, ok
}

// SendNow transmits frame out ifindex immediately, satisfying
// internal/lang.Devices' eager forward path (forwardIO/bridge/tee/tap).
func (r *Registry) SendNow(ifindex int32, frame []byte) error {
	if r.fake {
		r.mu.Lock()
		cp := append([]byte(nil), frame...)
		r.sent[ifindex] = append(r.sent[ifindex], cp)
		r.mu.Unlock()
		return nil
	}
	link, err := netlink.LinkByIndex(int(ifindex))
	if err != nil {
		return fmt.Errorf("netdev: resolve ifindex %d: %w", ifindex, err)
	}
	fd, err := syscall.Socket(syscall.AF_PACKET, syscall.SOCK_RAW, 0)
	if err != nil {
		return fmt.Errorf("netdev: open packet socket: %w", err)
	}
	defer syscall.Close(fd)
	addr := &syscall.SockaddrLinklayer{Ifindex: link.Attrs().Index}
	if err := syscall.Sendto(fd, frame, 0, addr); err != nil {
		return fmt.Errorf("netdev: send on ifindex %d: %w", ifindex, err)
	}
	return nil
}

// Sent returns the frames recorded by SendNow on a fake registry, for
// assertions in tests.
func (r *Registry) Sent(ifindex int32) [][]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sent[ifindex]
}

// Endpoint binds a single device for the Tx worker pool, satisfying
// internal/interfaces.Endpoint. Queue addresses a hardware Tx queue on
// the bound device, not a separate device.
type Endpoint struct {
	r       *Registry
	ifindex int32
	name    string
}

// Endpoint returns a bound Endpoint for ifindex, or an error if ifindex
// is not present in the registry.
func (r *Registry) Endpoint(ifindex int32) (*Endpoint, error) {
	name, ok := r.Name(ifindex)
	if !ok {
		return nil, fmt.Errorf("netdev: no such ifindex %d", ifindex)
	}
	return &Endpoint{r: r, ifindex: ifindex, name: name}, nil
}

// Send transmits frame out e's bound device, ignoring queue on the fake
// backend and routing it through AF_PACKET on the real one.
func (e *Endpoint) Send(queue int, frame []byte) (int, error) {
	if err := e.r.SendNow(e.ifindex, frame); err != nil {
		return 0, err
	}
	return len(frame), nil
}

// Name returns the bound device's name.
func (e *Endpoint) Name() string { return e.name }

// Close is a no-op: Registry owns no per-endpoint resources to release.
func (e *Endpoint) Close() error { return nil }
