package devmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateSetsBitAndMonitor(t *testing.T) {
	m := New()
	require.NoError(t, m.Update(Set, 3, 0, 5))

	assert.Equal(t, uint64(1<<5), m.Lookup(3, 0))
	assert.Equal(t, uint64(1<<5), m.Monitor(3))
	assert.Zero(t, m.Lookup(3, 1))
}

func TestMonitorIsRowUnion(t *testing.T) {
	m := New()
	require.NoError(t, m.Update(Set, 1, 0, 2))
	require.NoError(t, m.Update(Set, 1, 4, 9))

	assert.Equal(t, uint64(1<<2|1<<9), m.Monitor(1))
}

func TestClearRecomputesMonitor(t *testing.T) {
	m := New()
	require.NoError(t, m.Update(Set, 2, 0, 1))
	require.NoError(t, m.Update(Set, 2, 1, 1))
	require.NoError(t, m.Update(Clear, 2, 0, 1))

	assert.Equal(t, uint64(1<<1), m.Monitor(2))
	require.NoError(t, m.Update(Clear, 2, 1, 1))
	assert.Zero(t, m.Monitor(2))
}

func TestUpdateRejectsOutOfRange(t *testing.T) {
	m := New()
	assert.ErrorIs(t, m.Update(Set, -1, 0, 0), ErrOutOfRange)
	assert.ErrorIs(t, m.Update(Set, 0, 0, 999), ErrOutOfRange)
}
