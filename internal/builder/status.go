package builder

import (
	"encoding/json"
	"errors"
	"os"
)

// Status is the resumable build-progress ledger persisted as status.json.
// Phases form a linear DAG; any phase whose flag is already set is skipped
// on a rebuild, letting a crashed or interrupted build resume where it left
// off instead of starting over.
type Status struct {
	DumpDate          string `json:"dump_date"`
	VertexesLoaded    bool   `json:"vertexes_loaded"`
	RedirectsResolved bool   `json:"redirects_resolved"`
	EdgesResolved     bool   `json:"edges_resolved"`
	EdgesSorted       bool   `json:"edges_sorted"`
	AdjacencyWritten  bool   `json:"adjacency_written"`
	BuildComplete     bool   `json:"build_complete"`
	VertexCount       uint32 `json:"vertex_count"`
	EdgeCount         uint32 `json:"edge_count"`
	MaxVertexID       uint32 `json:"max_vertex_id"`
}

// loadStatus reads status.json, or returns a zero-value Status if it does
// not exist yet (a fresh build).
func loadStatus(path string) (Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Status{}, nil
		}
		return Status{}, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}

// save persists the status ledger, called after every durably completed
// phase so a later restart never re-does finished work.
func (s Status) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
