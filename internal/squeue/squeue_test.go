package squeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRxQueuePublishAndPoll(t *testing.T) {
	q, err := NewRxQueue(4, 64)
	require.NoError(t, err)
	defer q.Close()

	_, _, ok := q.Poll()
	assert.False(t, ok)

	require.NoError(t, q.WriteSlot(0, SlotHeader{IfIndex: 1}, []byte("hello")))
	require.NoError(t, q.WriteSlot(1, SlotHeader{IfIndex: 2}, []byte("world")))
	q.Publish(2)

	arena, n, ok := q.Poll()
	require.True(t, ok)
	assert.Equal(t, 2, n)

	hdr0, payload0 := q.Slot(arena, 0)
	assert.EqualValues(t, 1, hdr0.IfIndex)
	assert.Equal(t, "hello", string(payload0))

	hdr1, payload1 := q.Slot(arena, 1)
	assert.EqualValues(t, 2, hdr1.IfIndex)
	assert.Equal(t, "world", string(payload1))

	// No new publish yet.
	_, _, ok = q.Poll()
	assert.False(t, ok)
}

func TestRxQueueArenaFlipsEachPublish(t *testing.T) {
	q, err := NewRxQueue(2, 32)
	require.NoError(t, err)
	defer q.Close()

	first := q.ProducerArena()
	q.Publish(0)
	second := q.ProducerArena()
	assert.NotEqual(t, &first[0], &second[0])
}

func TestTxQueueAppendAndDrain(t *testing.T) {
	q, err := NewTxQueue(256)
	require.NoError(t, err)
	defer q.Close()

	ok := q.Append(TxSlotHeader{IfIndex: 9}, []byte("payload-one"))
	require.True(t, ok)
	ok = q.Append(TxSlotHeader{IfIndex: 9}, []byte("payload-two"))
	require.True(t, ok)

	reqs := q.Drain(10)
	require.Len(t, reqs, 2)
	assert.Equal(t, "payload-one", string(reqs[0].Payload))
	assert.Equal(t, "payload-two", string(reqs[1].Payload))

	assert.Empty(t, q.Drain(10))
}

func TestTxQueueFlipsArenaWhenFull(t *testing.T) {
	q, err := NewTxQueue(64)
	require.NoError(t, err)
	defer q.Close()

	payload := make([]byte, 40)
	require.True(t, q.Append(TxSlotHeader{}, payload))
	// Second append should not fit in the same arena and flips.
	require.True(t, q.Append(TxSlotHeader{}, payload))

	reqs := q.Drain(10)
	assert.Len(t, reqs, 1)
}
