package ctrl

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/devmap"
	"github.com/pfq-dev/go-pfq/internal/group"
	"github.com/pfq-dev/go-pfq/internal/lang"
	"github.com/pfq-dev/go-pfq/internal/symtab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestControl() *Control {
	reg := symtab.NewRegistry()
	lang.RegisterBuiltins(reg, &lang.Env{})
	return New(group.NewTable(), devmap.New(), reg, nil)
}

func TestOpenSocketDefaults(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	status, err := c.Status(s.ID())
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, 1514, status.Caplen)
	assert.EqualValues(t, 1, status.Weight)
}

func TestEnableDisableAllocatesQueues(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)

	require.NoError(t, c.Enable(s.ID(), 0))
	assert.True(t, s.enabled)
	assert.NotNil(t, s.Rx)
	assert.NotNil(t, s.Tx)

	assert.ErrorIs(t, c.Enable(s.ID(), 0), ErrAlreadyEnabled)

	require.NoError(t, c.Disable(s.ID()))
	assert.False(t, s.enabled)
	assert.Nil(t, s.Rx)
}

func TestSetRxCaplenRejectedWhileEnabled(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	require.NoError(t, c.Enable(s.ID(), 0))
	defer c.Disable(s.ID())

	err := c.SetRxCaplen(s.ID(), 2048)
	assert.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestGroupJoinLeaveTracksMembership(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)

	gid, err := c.GroupJoin(s.ID(), -1, 0b1, group.Shared)
	require.NoError(t, err)
	assert.True(t, c.groups.Access(gid, s.ID()))

	require.NoError(t, c.GroupLeave(s.ID(), gid))
	assert.False(t, c.groups.Access(gid, s.ID()))
}

func TestGroupBindUnbindUpdatesDevmap(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	gid, err := c.GroupJoin(s.ID(), -1, 0b1, group.Shared)
	require.NoError(t, err)

	require.NoError(t, c.GroupBind(gid, 3, 0))
	assert.Equal(t, uint64(1)<<uint(gid), c.devmap.Lookup(3, 0))

	require.NoError(t, c.GroupUnbind(gid, 3, 0))
	assert.Equal(t, uint64(0), c.devmap.Lookup(3, 0))
}

func TestGroupFunctionCompilesAndBinds(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	gid, err := c.GroupJoin(s.ID(), -1, 0b1, group.Shared)
	require.NoError(t, err)

	descrs := []lang.Descr{{Kind: lang.KindMonadic, Symbol: "ip"}}
	require.NoError(t, c.GroupFunction(gid, "pass-ip", descrs, 0))
	assert.NotNil(t, c.groups.Get(gid).Program())

	require.NoError(t, c.GroupFunction(gid, "", nil, 0))
	assert.Nil(t, c.groups.Get(gid).Program())
}

func TestVlanFiltWildcardAndWeightValidation(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	gid, err := c.GroupJoin(s.ID(), -1, 0b1, group.Shared)
	require.NoError(t, err)

	require.NoError(t, c.VlanFiltToggle(gid, true))
	require.NoError(t, c.VlanFilt(gid, -1, true))
	enabled, pass := c.groups.Get(gid).VlanFilter(42)
	assert.True(t, enabled)
	assert.True(t, pass)

	assert.ErrorIs(t, c.SetWeight(s.ID(), 0), ErrBadArgument)
	require.NoError(t, c.SetWeight(s.ID(), 5))
	w, err := c.Weight(s.ID())
	require.NoError(t, err)
	assert.EqualValues(t, 5, w)
}

func TestCloseSocketLeavesGroupsAndDisables(t *testing.T) {
	c := newTestControl()
	s := c.OpenSocket(1000)
	gid, err := c.GroupJoin(s.ID(), -1, 0b1, group.Shared)
	require.NoError(t, err)
	require.NoError(t, c.Enable(s.ID(), 0))

	require.NoError(t, c.CloseSocket(s.ID()))
	assert.False(t, c.groups.Access(gid, s.ID()))

	_, err = c.Status(s.ID())
	assert.ErrorIs(t, err, ErrNoSuchSocket)
}
