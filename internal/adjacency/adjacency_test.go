package adjacency

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikipath/wikipath/internal/edgesort"
)

func buildFiles(t *testing.T, edges [][2]uint32, maxVertexID uint32) (alPath, ixPath string) {
	t.Helper()
	root := t.TempDir()

	w, err := edgesort.NewWriter(root)
	require.NoError(t, err)
	for _, e := range edges {
		require.NoError(t, w.Write(e[0], e[1]))
	}
	require.NoError(t, w.Close())
	require.NoError(t, edgesort.MakeSortFiles(root))
	require.NoError(t, edgesort.Sort(root, edgesort.BySource))
	require.NoError(t, edgesort.Sort(root, edgesort.ByDest))

	alPath = filepath.Join(root, "vertex-al")
	ixPath = filepath.Join(root, "vertex-al-ix")
	require.NoError(t, Build(root, maxVertexID, alPath, ixPath))
	return alPath, ixPath
}

func buildGraph(t *testing.T, edges [][2]uint32, maxVertexID uint32) *EdgeDB {
	t.Helper()
	alPath, ixPath := buildFiles(t, edges, maxVertexID)
	db, err := Open(alPath, ixPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildThenReadRoundTrip(t *testing.T) {
	// graph: 1->2, 1->3, 2->3, isolated vertex 4
	edges := [][2]uint32{{1, 2}, {1, 3}, {2, 3}}
	db := buildGraph(t, edges, 4)

	out, in, err := db.ReadEdges(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, out)
	assert.Empty(t, in)

	out, in, err = db.ReadEdges(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{3}, out)
	assert.ElementsMatch(t, []uint32{1}, in)

	out, in, err = db.ReadEdges(3)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.ElementsMatch(t, []uint32{1, 2}, in)
}

func TestReadEdgesIsolatedVertexIsEmpty(t *testing.T) {
	db := buildGraph(t, [][2]uint32{{1, 2}}, 4)

	out, in, err := db.ReadEdges(4)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, in)
}

func TestReadEdgesBeyondIndexRangeIsEmptyNotError(t *testing.T) {
	db := buildGraph(t, [][2]uint32{{1, 2}}, 2)

	out, in, err := db.ReadEdges(999)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, in)
}

func TestReadEdgesRejectsCorruptMagic(t *testing.T) {
	alPath, ixPath := buildFiles(t, [][2]uint32{{1, 2}}, 4)

	al, err := os.OpenFile(alPath, os.O_RDWR, 0644)
	require.NoError(t, err)
	// vertex 1's record is the first one, right after the 4-byte leading pad
	_, err = al.WriteAt([]byte{0, 0, 0, 0}, 4)
	require.NoError(t, err)
	require.NoError(t, al.Close())

	reopened, err := Open(alPath, ixPath)
	require.NoError(t, err) // corruption is only detected on ReadEdges of the affected vertex
	defer reopened.Close()

	_, _, err = reopened.ReadEdges(1)
	assert.Error(t, err)
}
