package engine

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/devmap"
	"github.com/pfq-dev/go-pfq/internal/gc"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/squeue"
	"github.com/pfq-dev/go-pfq/internal/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	sockets map[int32]*Socket
}

func (f *fakeRegistry) Socket(sid int32) (*Socket, bool) {
	s, ok := f.sockets[sid]
	return s, ok
}

type fakeDevices struct{}

func (fakeDevices) IfIndex(string) (int32, bool)         { return 0, false }
func (fakeDevices) SendNow(int32, []byte) error          { return nil }

func ipv4Frame(proto byte) []byte {
	f := make([]byte, 34)
	f[12], f[13] = 0x08, 0x00
	f[14] = 0x45
	f[23] = proto
	return f
}

func arpFrame() []byte {
	f := make([]byte, 34)
	f[12], f[13] = 0x08, 0x06
	return f
}

func TestProcessBatchSimplePassFilter(t *testing.T) {
	dm := devmap.New()
	groups := group.NewTable()
	reg := symtab.NewRegistry()
	lang.RegisterBuiltins(reg, &lang.Env{Devices: fakeDevices{}})

	gid, err := groups.JoinGroup(-1, 1, 0b1, group.Shared)
	require.NoError(t, err)
	require.NoError(t, dm.Update(devmap.Set, 5, 0, int(gid)))

	descrs := []lang.Descr{{Kind: lang.KindMonadic, Symbol: "ip", PIndex: -1, LIndex: -1, RIndex: -1}}
	prog, err := lang.Compile("pass-ip", descrs, 0, reg)
	require.NoError(t, err)
	require.NoError(t, groups.SetProgram(gid, prog))

	rx, err := squeue.NewRxQueue(128, 256)
	require.NoError(t, err)
	defer rx.Close()

	sockets := &fakeRegistry{sockets: map[int32]*Socket{1: {ID: 1, Weight: 1, Caplen: 256, Rx: rx}}}
	e := New(0, dm, groups, sockets, fakeDevices{}, nil)

	// A batch holds at most 64 descriptors, so the 100 frames (60 IPv4,
	// 40 ARP) go through as two batches of 50: 30 IPv4 then 20 ARP each.
	b := gc.NewBatch(50)
	delivered := 0
	for round := 0; round < 2; round++ {
		for i := 0; i < 30; i++ {
			frame := ipv4Frame(6)
			_, ok := b.MakeBuff(frame)
			require.True(t, ok)
			b.Descriptor(gc.Handle(i)).IfIndex = 5
		}
		for i := 30; i < 50; i++ {
			frame := arpFrame()
			_, ok := b.MakeBuff(frame)
			require.True(t, ok)
			b.Descriptor(gc.Handle(i)).IfIndex = 5
		}

		e.ProcessBatch(b)

		arena, n, ok := rx.Poll()
		require.True(t, ok)
		delivered += n
		_ = arena
	}
	assert.Equal(t, 60, delivered)

	stats := groups.Get(gid).CPUStats()
	assert.EqualValues(t, 60, stats.Recv)
	assert.EqualValues(t, 40, stats.Drop)
}

type countingObserver struct {
	kernel uint64
}

func (o *countingObserver) ObserveRecv(uint64)                  {}
func (o *countingObserver) ObserveDrop(uint64)                  {}
func (o *countingObserver) ObserveForward(uint64, uint64, bool) {}
func (o *countingObserver) ObserveDiscard(uint64)               {}
func (o *countingObserver) ObserveKernel(n uint64)              { o.kernel += n }
func (o *countingObserver) ObserveBatch(int, uint64)            {}

func TestProcessBatchCountsKernelCopiesOnce(t *testing.T) {
	dm := devmap.New()
	groups := group.NewTable()
	reg := symtab.NewRegistry()
	lang.RegisterBuiltins(reg, &lang.Env{Devices: fakeDevices{}})

	gid, err := groups.JoinGroup(-1, 1, 0b1, group.Shared)
	require.NoError(t, err)
	require.NoError(t, dm.Update(devmap.Set, 5, 0, int(gid)))

	descrs := []lang.Descr{{Kind: lang.KindMonadic, Symbol: "kernel", PIndex: -1, LIndex: -1, RIndex: -1}}
	prog, err := lang.Compile("to-kernel", descrs, 0, reg)
	require.NoError(t, err)
	require.NoError(t, groups.SetProgram(gid, prog))

	obs := &countingObserver{}
	e := New(0, dm, groups, &fakeRegistry{sockets: map[int32]*Socket{}}, fakeDevices{}, obs)

	b := gc.NewBatch(10)
	h, ok := b.MakeBuff(ipv4Frame(6))
	require.True(t, ok)
	b.Descriptor(h).IfIndex = 5
	b.Descriptor(h).CB.Direct = true

	e.ProcessBatch(b)

	assert.EqualValues(t, 1, obs.kernel)
}

func TestDeliverReinlinesStrippedVLANTag(t *testing.T) {
	dm := devmap.New()
	groups := group.NewTable()
	gid, err := groups.JoinGroup(-1, 1, 0b1, group.Shared)
	require.NoError(t, err)
	require.NoError(t, dm.Update(devmap.Set, 5, 0, int(gid)))

	rx, err := squeue.NewRxQueue(8, 256)
	require.NoError(t, err)
	defer rx.Close()

	sockets := &fakeRegistry{sockets: map[int32]*Socket{1: {ID: 1, Weight: 1, Caplen: 256, Rx: rx}}}
	e := New(0, dm, groups, sockets, fakeDevices{}, nil)

	b := gc.NewBatch(10)
	frame := ipv4Frame(6) // no inline 802.1Q tag
	h, ok := b.MakeBuff(frame)
	require.True(t, ok)
	d := b.Descriptor(h)
	d.VLAN.Present = true
	d.VLAN.TCI = 42

	var sockQueue [64]uint64
	sockQueue[1] = 1
	e.deliver(sockets.sockets[1], sockQueue[1], b)

	arena, n, ok := rx.Poll()
	require.True(t, ok)
	require.Equal(t, 1, n)

	hdr, payload := rx.Slot(arena, 0)
	assert.EqualValues(t, 42, hdr.VlanTCI)
	assert.GreaterOrEqual(t, len(payload), 18)
	assert.Equal(t, byte(0x81), payload[12])
	assert.Equal(t, byte(0x00), payload[13])
}
