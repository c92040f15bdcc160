package gc

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeBuffAdmitsUntilFull(t *testing.T) {
	b := NewBatch(4)
	for i := 0; i < 4; i++ {
		_, ok := b.MakeBuff([]byte{byte(i)})
		require.True(t, ok)
	}
	_, ok := b.MakeBuff([]byte{0xff})
	assert.False(t, ok)
	assert.EqualValues(t, 1, b.Lost())
	assert.Equal(t, 4, b.Size())
}

func TestResetRecyclesAndInvalidates(t *testing.T) {
	b := NewBatch(2)
	h, ok := b.MakeBuff([]byte{1, 2, 3})
	require.True(t, ok)
	assert.Equal(t, 3, b.Descriptor(h).Len)

	b.Reset()
	assert.Equal(t, 0, b.Size())
}

func TestGetLazyEndpointsAggregatesByTarget(t *testing.T) {
	b := NewBatch(4)
	h0, _ := b.MakeBuff([]byte{1})
	h1, _ := b.MakeBuff([]byte{2})
	h2, _ := b.MakeBuff([]byte{3})

	b.Descriptor(h0).CB.ForwardLog = []packet.ForwardTarget{{IfIndex: 7}}
	b.Descriptor(h1).CB.ForwardLog = []packet.ForwardTarget{{IfIndex: 7}, {ToKernel: true}}
	b.Descriptor(h2).CB.ForwardLog = []packet.ForwardTarget{{IfIndex: 9}}

	agg := b.GetLazyEndpoints()
	assert.ElementsMatch(t, []Handle{h0, h1}, agg.Devices[7])
	assert.ElementsMatch(t, []Handle{h2}, agg.Devices[9])
	assert.ElementsMatch(t, []Handle{h1}, agg.ToKernel)
}
