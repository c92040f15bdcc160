package packet

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ethHeader(etherType uint16) []byte {
	f := make([]byte, 14)
	binary.BigEndian.PutUint16(f[12:14], etherType)
	return f
}

func TestParseEtherPlain(t *testing.T) {
	f := ethHeader(EtherTypeIPv4)
	et, off, _, hasVLAN := ParseEther(f)
	assert.Equal(t, uint16(EtherTypeIPv4), et)
	assert.Equal(t, 14, off)
	assert.False(t, hasVLAN)
}

func TestParseEtherVLANTagged(t *testing.T) {
	f := make([]byte, 18)
	binary.BigEndian.PutUint16(f[12:14], EtherTypeVLAN)
	binary.BigEndian.PutUint16(f[14:16], 42)
	binary.BigEndian.PutUint16(f[16:18], EtherTypeIPv6)

	et, off, tci, hasVLAN := ParseEther(f)
	assert.Equal(t, uint16(EtherTypeIPv6), et)
	assert.Equal(t, 18, off)
	assert.Equal(t, uint16(42), tci)
	assert.True(t, hasVLAN)
}

func TestParseEtherTruncated(t *testing.T) {
	et, off, _, hasVLAN := ParseEther([]byte{1, 2, 3})
	assert.Equal(t, uint16(0), et)
	assert.Equal(t, 0, off)
	assert.False(t, hasVLAN)
}

func TestParseIPv4(t *testing.T) {
	f := make([]byte, 20)
	f[0] = 0x45 // version 4, IHL 5 (20 bytes)
	f[9] = ProtoUDP
	copy(f[12:16], []byte{10, 0, 0, 1})
	copy(f[16:20], []byte{10, 0, 0, 2})

	h, ok := ParseIPv4(f, 0)
	assert.True(t, ok)
	assert.Equal(t, uint8(ProtoUDP), h.Protocol)
	assert.Equal(t, 20, h.HeaderLen)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, h.Src)
	assert.Equal(t, [4]byte{10, 0, 0, 2}, h.Dst)
}

func TestParseIPv4TruncatedRejected(t *testing.T) {
	_, ok := ParseIPv4(make([]byte, 10), 0)
	assert.False(t, ok)
}

func TestParseIPv4BadIHLRejected(t *testing.T) {
	f := make([]byte, 20)
	f[0] = 0x40 // IHL 0, below the 20-byte minimum
	_, ok := ParseIPv4(f, 0)
	assert.False(t, ok)
}

func TestParseIPv6(t *testing.T) {
	f := make([]byte, 40)
	f[6] = ProtoTCP
	for i := 0; i < 16; i++ {
		f[8+i] = byte(i)
		f[24+i] = byte(i + 16)
	}

	h, ok := ParseIPv6(f, 0)
	assert.True(t, ok)
	assert.Equal(t, uint8(ProtoTCP), h.NextHeader)
	assert.Equal(t, byte(0), h.Src[0])
	assert.Equal(t, byte(16), h.Dst[0])
}

func TestL4Ports(t *testing.T) {
	f := make([]byte, 4)
	binary.BigEndian.PutUint16(f[0:2], 53)
	binary.BigEndian.PutUint16(f[2:4], 12345)

	sport, dport, ok := L4Ports(f, 0)
	assert.True(t, ok)
	assert.Equal(t, uint16(53), sport)
	assert.Equal(t, uint16(12345), dport)
}

func TestL4PortsTruncated(t *testing.T) {
	_, _, ok := L4Ports([]byte{1, 2}, 0)
	assert.False(t, ok)
}
