// Package bfs implements the bidirectional breadth-first search engine
// (component H): given a source and destination vertex, it finds every
// shortest path between them, growing whichever side of the search has
// fewer edges to expand next.
package bfs

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// EdgeReader is the adjacency lookup the search needs. internal/adjacency's
// EdgeDB satisfies it; tests substitute an in-memory fake.
type EdgeReader interface {
	ReadEdges(vertexID uint32) (outgoing, incoming []uint32, err error)
}

// neighborList maps a vertex id to the parent ids it was first reached
// from during this search (0 is a sentinel meaning "no parent" — the
// start/end vertex of its side).
type neighborList struct {
	data map[uint32][]uint32
}

func newNeighborList() *neighborList {
	return &neighborList{data: map[uint32][]uint32{}}
}

func (n *neighborList) record(vertexID, parentID uint32) {
	n.data[vertexID] = append(n.data[vertexID], parentID)
}

func (n *neighborList) neighbors(vertexID uint32) []uint32 {
	return n.data[vertexID]
}

func (n *neighborList) all() []uint32 {
	ids := make([]uint32, 0, len(n.data))
	for id := range n.data {
		ids = append(ids, id)
	}
	return ids
}

func (n *neighborList) contains(id uint32) bool {
	_, ok := n.data[id]
	return ok
}

func (n *neighborList) hasSome() bool {
	return len(n.data) > 0
}

// moveInto drains from into n, merging parent lists for any vertex present
// in both.
func (n *neighborList) moveInto(from *neighborList) {
	for id, parents := range from.data {
		n.data[id] = append(n.data[id], parents...)
	}
	from.data = map[uint32][]uint32{}
}

func intersection(x, y *neighborList) []uint32 {
	var ids []uint32
	for id := range x.data {
		if _, ok := y.data[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

type edgeDirection int

const (
	directionOutgoing edgeDirection = iota
	directionIncoming
)

func countEdges(vertexIDs []uint32, direction edgeDirection, reader EdgeReader) (int, error) {
	total := 0
	for _, id := range vertexIDs {
		outgoing, incoming, err := reader.ReadEdges(id)
		if err != nil {
			return 0, fmt.Errorf("read edges for vertex %d: %w", id, err)
		}
		if direction == directionOutgoing {
			total += len(outgoing)
		} else {
			total += len(incoming)
		}
	}
	return total, nil
}

// Search runs bidirectional BFS from source to dest and returns every
// shortest path between them, each as an ordered vertex id slice starting
// at source and ending at dest. A source equal to dest yields a single
// length-1 path. No path yields an empty, nil slice.
func Search(reader EdgeReader, source, dest uint32) ([][]uint32, error) {
	var paths [][]uint32
	if source == dest {
		return [][]uint32{{source}}, nil
	}

	unvisitedForward := newNeighborList()
	unvisitedBackward := newNeighborList()
	unvisitedForward.record(source, 0)
	unvisitedBackward.record(dest, 0)

	visitedForward := newNeighborList()
	visitedBackward := newNeighborList()

	for len(paths) == 0 && unvisitedForward.hasSome() && unvisitedBackward.hasSome() {
		forwardEdgeCount, err := countEdges(unvisitedForward.all(), directionOutgoing, reader)
		if err != nil {
			return nil, err
		}
		backwardEdgeCount, err := countEdges(unvisitedBackward.all(), directionIncoming, reader)
		if err != nil {
			return nil, err
		}

		if forwardEdgeCount < backwardEdgeCount {
			logrus.Debug("bfs: expanding forward side")
			visitQueue := unvisitedForward.all()
			visitedForward.moveInto(unvisitedForward)

			for _, currentSourceID := range visitQueue {
				outgoing, _, err := reader.ReadEdges(currentSourceID)
				if err != nil {
					return nil, fmt.Errorf("read outgoing edges for vertex %d: %w", currentSourceID, err)
				}
				for _, targetID := range outgoing {
					if !visitedForward.contains(targetID) {
						unvisitedForward.record(targetID, currentSourceID)
					}
				}
			}
		} else {
			logrus.Debug("bfs: expanding backward side")
			visitQueue := unvisitedBackward.all()
			visitedBackward.moveInto(unvisitedBackward)

			for _, currentTargetID := range visitQueue {
				_, incoming, err := reader.ReadEdges(currentTargetID)
				if err != nil {
					return nil, fmt.Errorf("read incoming edges for vertex %d: %w", currentTargetID, err)
				}
				for _, sourceID := range incoming {
					if !visitedBackward.contains(sourceID) {
						unvisitedBackward.record(sourceID, currentTargetID)
					}
				}
			}
		}

		for _, meetingID := range intersection(unvisitedForward, unvisitedBackward) {
			fromSource := renderPaths(unvisitedForward.neighbors(meetingID), visitedForward)
			fromTarget := renderPaths(unvisitedBackward.neighbors(meetingID), visitedBackward)
			for _, prefix := range fromSource {
				for _, suffix := range fromTarget {
					path := make([]uint32, 0, len(prefix)+1+len(suffix))
					path = append(path, prefix...)
					path = append(path, meetingID)
					for i := len(suffix) - 1; i >= 0; i-- {
						path = append(path, suffix[i])
					}
					if !containsPath(paths, path) {
						paths = append(paths, path)
					}
				}
			}
		}
	}

	return paths, nil
}

// renderPaths recursively expands a list of parent ids into every path
// (in source-to-parent order) that reaches back to a side's root, where a
// parent of 0 marks the root.
func renderPaths(ids []uint32, visited *neighborList) [][]uint32 {
	var paths [][]uint32
	for _, id := range ids {
		if id == 0 {
			return [][]uint32{{}}
		}
		for _, prefix := range renderPaths(visited.neighbors(id), visited) {
			path := append(append([]uint32(nil), prefix...), id)
			paths = append(paths, path)
		}
	}
	return paths
}

func containsPath(paths [][]uint32, candidate []uint32) bool {
	for _, p := range paths {
		if len(p) != len(candidate) {
			continue
		}
		match := true
		for i := range p {
			if p[i] != candidate[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
