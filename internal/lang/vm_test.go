package lang

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/pfq-dev/go-pfq/internal/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevices struct {
	sent map[string][]byte
}

func (f *fakeDevices) IfIndex(name string) (int32, bool) {
	switch name {
	case "veth1":
		return 7, true
	default:
		return 0, false
	}
}

func (f *fakeDevices) SendNow(ifindex int32, frame []byte) error {
	if f.sent == nil {
		f.sent = make(map[string][]byte)
	}
	f.sent["sent"] = frame
	return nil
}

func newTestRegistry() *symtab.Registry {
	reg := symtab.NewRegistry()
	RegisterBuiltins(reg, &Env{Devices: &fakeDevices{}})
	return reg
}

func ipv4Frame(proto byte) []byte {
	f := make([]byte, 34)
	f[12], f[13] = 0x08, 0x00 // EtherType IPv4
	f[14] = 0x45              // version 4, IHL 5
	f[23] = proto
	f[26], f[27], f[28], f[29] = 10, 0, 0, 1
	f[30], f[31], f[32], f[33] = 10, 0, 0, 2
	return f
}

func TestValidateRejectsBadEntryPoint(t *testing.T) {
	descrs := []Descr{{Kind: KindMonadic, Symbol: "unit", LIndex: noIndex, RIndex: noIndex}}
	err := Validate(descrs, 5)
	require.Error(t, err)
}

func TestValidateRejectsNullSymbol(t *testing.T) {
	descrs := []Descr{{Kind: KindMonadic, Symbol: "", LIndex: noIndex, RIndex: noIndex}}
	err := Validate(descrs, 0)
	require.Error(t, err)
}

func TestCompileAndEvalSimplePassFilter(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{
		{Kind: KindMonadic, Symbol: "ip", LIndex: noIndex, RIndex: noIndex},
	}
	prog, err := Compile("pass-ip", descrs, 0, reg)
	require.NoError(t, err)

	d := &packet.Descriptor{Frame: ipv4Frame(6)}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, packet.ActionCopy, out.CB.Action)
}

func TestCompileRejectsUnknownSymbol(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{{Kind: KindMonadic, Symbol: "nonexistent", LIndex: noIndex, RIndex: noIndex}}
	_, err := Compile("bad", descrs, 0, reg)
	assert.Error(t, err)
}

func TestEvalConditionalForward(t *testing.T) {
	reg := newTestRegistry()
	// when(is_udp, forward("veth1")): high-order forward gated on udp predicate.
	descrs := []Descr{
		{Kind: KindHighOrder, Symbol: "tee", Arg: []byte("veth1"), PIndex: 1, LIndex: noIndex, RIndex: noIndex},
		{Kind: KindPredicate, Symbol: "udp"},
	}
	prog, err := Compile("tee-udp", descrs, 0, reg)
	require.NoError(t, err)

	udpFrame := ipv4Frame(17)
	d := &packet.Descriptor{Frame: udpFrame}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	require.Len(t, out.CB.ForwardLog, 1)
	assert.EqualValues(t, 7, out.CB.ForwardLog[0].IfIndex)

	tcpFrame := ipv4Frame(6)
	d2 := &packet.Descriptor{Frame: tcpFrame}
	out2, err := Eval(prog, d2)
	require.NoError(t, err)
	assert.Empty(t, out2.CB.ForwardLog)
}

func TestSteerActionsSetHash(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{{Kind: KindMonadic, Symbol: "steer_flow", LIndex: noIndex, RIndex: noIndex}}
	prog, err := Compile("steer", descrs, 0, reg)
	require.NoError(t, err)

	d := &packet.Descriptor{Frame: ipv4Frame(6)}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	assert.Equal(t, packet.ActionSteer, out.CB.Action)
}

func TestDropStopsWalk(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{
		{Kind: KindMonadic, Symbol: "drop", LIndex: noIndex, RIndex: noIndex},
	}
	prog, err := Compile("drop", descrs, 0, reg)
	require.NoError(t, err)

	d := &packet.Descriptor{Frame: ipv4Frame(6)}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	assert.Equal(t, packet.ActionDrop, out.CB.Action)
}
