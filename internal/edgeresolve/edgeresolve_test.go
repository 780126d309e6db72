package edgeresolve

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikipath/wikipath/internal/redirectmap"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

func newFixture(t *testing.T) (*vertexstore.Store, *redirectmap.Map) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "graph.db")
	store, err := vertexstore.Create(dbPath)
	require.NoError(t, err)

	vertices := make(chan vertexstore.Vertex, 4)
	vertices <- vertexstore.Vertex{ID: 1, Title: "Source Page"}
	vertices <- vertexstore.Vertex{ID: 2, Title: "Direct Target"}
	vertices <- vertexstore.Vertex{ID: 3, Title: "Old Redirect Title", IsRedirect: true}
	vertices <- vertexstore.Vertex{ID: 4, Title: "Redirect Destination"}
	close(vertices)
	_, _, err = store.BulkInsert(vertices)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = vertexstore.Open(dbPath)
	require.NoError(t, err)

	redirPath := filepath.Join(t.TempDir(), "redirects")
	rm, err := redirectmap.Create(redirPath, 10)
	require.NoError(t, err)

	return store, rm
}

func TestResolveEmitsDirectAndRedirectedEdgesDropsMissing(t *testing.T) {
	store, rm := newFixture(t)
	defer store.Close()
	defer rm.Close()

	// wire the redirect: vertex 3 ("Old Redirect Title") -> vertex 4
	rmBuildMap(t, rm, 3, 4)

	links := make(chan Link, 3)
	links <- Link{SourceID: 1, DestTitle: "Direct Target"}
	links <- Link{SourceID: 1, DestTitle: "Old Redirect Title"}
	links <- Link{SourceID: 1, DestTitle: "Does Not Exist"}
	close(links)

	var mu sync.Mutex
	var edges []Edge
	resolved, dropped, err := Resolve(context.Background(), links, store, rm, 2, func(e Edge) error {
		mu.Lock()
		defer mu.Unlock()
		edges = append(edges, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), resolved)
	assert.Equal(t, uint32(1), dropped)

	assert.ElementsMatch(t, []Edge{{Source: 1, Dest: 2}, {Source: 1, Dest: 4}}, edges)
}

func rmBuildMap(t *testing.T, rm *redirectmap.Map, from, to uint32) {
	t.Helper()
	rm.Set(from, to)
}
