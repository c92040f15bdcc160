package lang

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ipv6Frame(nextHeader byte) []byte {
	f := make([]byte, 54)
	f[12], f[13] = 0x86, 0xDD // EtherType IPv6
	f[20] = nextHeader
	for i := 0; i < 16; i++ {
		f[22+i] = byte(i + 1)
		f[38+i] = byte(i + 17)
	}
	return f
}

func TestSteerIP6HashesIPv6Addresses(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{{Kind: KindMonadic, Symbol: "steer_ip6", LIndex: noIndex, RIndex: noIndex}}
	prog, err := Compile("steer-ip6", descrs, 0, reg)
	require.NoError(t, err)

	d := &packet.Descriptor{Frame: ipv6Frame(6)}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	assert.Equal(t, packet.ActionSteer, out.CB.Action)
	assert.NotZero(t, out.CB.Hash)
}

func TestSteerIP6HashesDifferForDifferentFlows(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{{Kind: KindMonadic, Symbol: "steer_ip6", LIndex: noIndex, RIndex: noIndex}}
	prog, err := Compile("steer-ip6", descrs, 0, reg)
	require.NoError(t, err)

	d1 := &packet.Descriptor{Frame: ipv6Frame(6)}
	out1, err := Eval(prog, d1)
	require.NoError(t, err)

	f2 := ipv6Frame(6)
	f2[37] = 0xff // mutate the source address's last byte
	d2 := &packet.Descriptor{Frame: f2}
	out2, err := Eval(prog, d2)
	require.NoError(t, err)

	assert.NotEqual(t, out1.CB.Hash, out2.CB.Hash)
}

func TestSteerIP6ZeroForNonIPv6Frame(t *testing.T) {
	reg := newTestRegistry()
	descrs := []Descr{{Kind: KindMonadic, Symbol: "steer_ip6", LIndex: noIndex, RIndex: noIndex}}
	prog, err := Compile("steer-ip6", descrs, 0, reg)
	require.NoError(t, err)

	d := &packet.Descriptor{Frame: ipv4Frame(6)}
	out, err := Eval(prog, d)
	require.NoError(t, err)
	assert.Zero(t, out.CB.Hash)
}
