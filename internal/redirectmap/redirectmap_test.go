package redirectmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGetSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects")

	m, err := Create(path, 10)
	require.NoError(t, err)

	_, ok := m.Get(3)
	assert.False(t, ok, "unset entries report no redirect")

	m.Set(3, 7)
	dest, ok := m.Get(3)
	require.True(t, ok)
	assert.Equal(t, uint32(7), dest)

	require.NoError(t, m.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	dest, ok = reopened.Get(3)
	require.True(t, ok)
	assert.Equal(t, uint32(7), dest)
}

func TestSetOutOfBoundsIsDroppedNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects")
	m, err := Create(path, 2)
	require.NoError(t, err)
	defer m.Close()

	m.Set(1000, 1) // should log and return, not panic
	_, ok := m.Get(1)
	assert.False(t, ok)
}

func TestFollowChainsResolvesToFixedPointAndBreaksCycles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects")
	m, err := Create(path, 10)
	require.NoError(t, err)
	defer m.Close()

	// 1 -> 2 -> 3 (fixed point at 3, which has no further redirect)
	m.Set(1, 2)
	m.Set(2, 3)
	assert.Equal(t, uint32(3), followChains(m, 1))

	// 4 -> 5 -> 4 (cycle; breaks at the point of re-encounter)
	m.Set(4, 5)
	m.Set(5, 4)
	result := followChains(m, 4)
	assert.True(t, result == 4 || result == 5)
}
