package vertexstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")

	store, err := Create(path)
	require.NoError(t, err)

	vertices := make(chan Vertex, 3)
	vertices <- Vertex{ID: 1, Title: "Main Page", IsRedirect: false}
	vertices <- Vertex{ID: 2, Title: "Old Name", IsRedirect: true}
	vertices <- Vertex{ID: 3, Title: "Other Page", IsRedirect: false}
	close(vertices)

	count, maxID, err := store.BulkInsert(vertices)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), count)
	assert.Equal(t, uint32(3), maxID)
	require.NoError(t, store.Close())

	return path
}

func TestFindByIDAndTitle(t *testing.T) {
	path := buildFixture(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	v, err := store.FindByID(1)
	require.NoError(t, err)
	assert.Equal(t, "Main Page", v.Title)
	assert.False(t, v.IsRedirect)

	v, err = store.FindByTitle("Old Name")
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v.ID)
	assert.True(t, v.IsRedirect)
}

func TestFindByIDMiss(t *testing.T) {
	path := buildFixture(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.FindByID(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByTitlesBatches(t *testing.T) {
	path := buildFixture(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	found, err := store.FindByTitles([]string{"Main Page", "Other Page", "Missing Page"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, uint32(1), found["Main Page"].ID)
	assert.Equal(t, uint32(3), found["Other Page"].ID)
}
