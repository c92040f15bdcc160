package group

import (
	"testing"

	"github.com/pfq-dev/go-pfq/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinGroupAutoAssignAndEligible(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Shared)
	require.NoError(t, err)
	assert.Zero(t, gid)

	g := tbl.Get(gid)
	require.NotNil(t, g)
	assert.Equal(t, uint64(1<<1), g.EligibleMask(0b1))
	assert.True(t, tbl.Access(gid, 1))
}

func TestJoinGroupPrivatePolicyRejectsOthers(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Private)
	require.NoError(t, err)

	_, err = tbl.JoinGroup(gid, 2, 0b1, Private)
	assert.ErrorIs(t, err, ErrPolicyRejected)
}

func TestJoinGroupRestrictedPolicySameUID(t *testing.T) {
	tbl := NewTable()
	tbl.SetUID(1, 100)
	tbl.SetUID(2, 100)
	tbl.SetUID(3, 200)

	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Restricted)
	require.NoError(t, err)

	_, err = tbl.JoinGroup(gid, 2, 0b1, Restricted)
	assert.NoError(t, err)

	_, err = tbl.JoinGroup(gid, 3, 0b1, Restricted)
	assert.ErrorIs(t, err, ErrPolicyRejected)
}

func TestJoinIsIdempotent(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Shared)
	require.NoError(t, err)

	_, err = tbl.JoinGroup(gid, 1, 0b1, Shared)
	require.NoError(t, err)

	g := tbl.Get(gid)
	assert.Equal(t, uint64(1<<1), g.EligibleMask(0b1))
}

func TestLeaveGroupFreesWhenEmpty(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Shared)
	require.NoError(t, err)

	require.NoError(t, tbl.LeaveGroup(gid, 1))
	assert.Nil(t, tbl.Get(gid))

	// Leave after leave is a no-op.
	assert.NoError(t, tbl.LeaveGroup(gid, 1))
}

func TestSetVlanFilterWildcardFillsAll(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Shared)
	require.NoError(t, err)
	require.NoError(t, tbl.ToggleVlan(gid, true))
	require.NoError(t, tbl.SetVlanFilter(gid, -1, true))

	g := tbl.Get(gid)
	_, pass := g.VlanFilter(100)
	assert.True(t, pass)
	_, pass = g.VlanFilter(4093)
	assert.True(t, pass)
}

func TestSetVlanFilterSingleVID(t *testing.T) {
	tbl := NewTable()
	gid, err := tbl.JoinGroup(constants.AutoAssignGroupID, 1, 0b1, Shared)
	require.NoError(t, err)
	require.NoError(t, tbl.ToggleVlan(gid, true))
	require.NoError(t, tbl.SetVlanFilter(gid, 100, true))

	g := tbl.Get(gid)
	_, pass := g.VlanFilter(100)
	assert.True(t, pass)
	_, pass = g.VlanFilter(200)
	assert.False(t, pass)
}
