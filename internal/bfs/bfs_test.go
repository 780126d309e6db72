package bfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEdges struct {
	outgoing map[uint32][]uint32
	incoming map[uint32][]uint32
}

func (f *fakeEdges) ReadEdges(vertexID uint32) ([]uint32, []uint32, error) {
	return f.outgoing[vertexID], f.incoming[vertexID], nil
}

func diamondGraph() *fakeEdges {
	// 1 -> 2 -> 4
	// 1 -> 3 -> 4
	return &fakeEdges{
		outgoing: map[uint32][]uint32{1: {2, 3}, 2: {4}, 3: {4}},
		incoming: map[uint32][]uint32{2: {1}, 3: {1}, 4: {2, 3}},
	}
}

func TestSearchSameSourceAndDest(t *testing.T) {
	paths, err := Search(diamondGraph(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]uint32{{1}}, paths)
}

func TestSearchFindsAllShortestPaths(t *testing.T) {
	paths, err := Search(diamondGraph(), 1, 4)
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]uint32{{1, 2, 4}, {1, 3, 4}}, paths)
}

func TestSearchSinglePath(t *testing.T) {
	g := &fakeEdges{
		outgoing: map[uint32][]uint32{1: {2}, 2: {3}},
		incoming: map[uint32][]uint32{2: {1}, 3: {2}},
	}
	paths, err := Search(g, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, [][]uint32{{1, 2, 3}}, paths)
}

func TestSearchNoPathReturnsEmpty(t *testing.T) {
	g := &fakeEdges{
		outgoing: map[uint32][]uint32{1: {2}},
		incoming: map[uint32][]uint32{2: {1}},
	}
	paths, err := Search(g, 1, 5)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSearchPropagatesReadError(t *testing.T) {
	g := &erroringEdges{}
	_, err := Search(g, 1, 2)
	assert.Error(t, err)
}

type erroringEdges struct{}

func (erroringEdges) ReadEdges(uint32) ([]uint32, []uint32, error) {
	return nil, nil, assert.AnError
}
