package netdev

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRegistryResolvesNames(t *testing.T) {
	r := NewFake(map[string]int32{"veth0": 5, "veth1": 6})

	idx, ok := r.IfIndex("veth0")
	require.True(t, ok)
	assert.Equal(t, int32(5), idx)

	name, ok := r.Name(6)
	require.True(t, ok)
	assert.Equal(t, "veth1", name)

	_, ok = r.IfIndex("nope")
	assert.False(t, ok)
}

func TestFakeRegistrySendNowRecordsFrames(t *testing.T) {
	r := NewFake(map[string]int32{"veth0": 5})
	require.NoError(t, r.SendNow(5, []byte{1, 2, 3}))
	require.NoError(t, r.SendNow(5, []byte{4, 5, 6}))

	sent := r.Sent(5)
	require.Len(t, sent, 2)
	assert.Equal(t, []byte{1, 2, 3}, sent[0])
	assert.Equal(t, []byte{4, 5, 6}, sent[1])
}

func TestEndpointRejectsUnknownIfIndex(t *testing.T) {
	r := NewFake(map[string]int32{"veth0": 5})
	_, err := r.Endpoint(999)
	assert.Error(t, err)
}

func TestEndpointSendForwardsThroughRegistry(t *testing.T) {
	r := NewFake(map[string]int32{"veth0": 5})
	ep, err := r.Endpoint(5)
	require.NoError(t, err)
	assert.Equal(t, "veth0", ep.Name())

	n, err := ep.Send(0, []byte{9, 9})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]byte{{9, 9}}, r.Sent(5))
	assert.NoError(t, ep.Close())
}
