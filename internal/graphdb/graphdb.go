// Package graphdb is the query façade (component J): it opens the
// cross-dataset master.db alongside one dataset's vertex store and adjacency
// file, and answers vertex lookups and shortest-path searches against them,
// optionally recording each search in a query log.
package graphdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/wikipath/wikipath/internal/adjacency"
	"github.com/wikipath/wikipath/internal/bfs"
	"github.com/wikipath/wikipath/internal/paths"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

// GraphDB bundles everything a search needs: the current dataset's vertex
// store and adjacency file, plus the cross-dataset master database that
// accumulates the query log regardless of which dataset answered a query.
type GraphDB struct {
	master   *sql.DB
	insert   *sql.Stmt
	vertex   *vertexstore.Store
	edges    *adjacency.EdgeDB
	dumpDate string
}

// Open opens the master query-log database at root, creating it if
// necessary, then opens the vertex store and adjacency file of the dataset
// the root's current symlink points at.
func Open(root paths.Root) (*GraphDB, error) {
	master, err := openMasterDB(root.MasterDB())
	if err != nil {
		return nil, fmt.Errorf("open master db: %w", err)
	}

	dataset, dumpDate, err := root.CurrentDataset()
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("resolve current dataset: %w", err)
	}

	vertex, err := vertexstore.Open(dataset.GraphDB())
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("open vertex store: %w", err)
	}

	edges, err := adjacency.Open(dataset.AdjacencyFile(), dataset.AdjacencyIndex())
	if err != nil {
		master.Close()
		vertex.Close()
		return nil, fmt.Errorf("open adjacency file: %w", err)
	}

	insert, err := master.Prepare(`
		INSERT INTO query_log (source_id, dest_id, dump_date, timestamp, duration_ms, path_count, paths)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		master.Close()
		vertex.Close()
		edges.Close()
		return nil, fmt.Errorf("prepare query log insert: %w", err)
	}

	return &GraphDB{master: master, insert: insert, vertex: vertex, edges: edges, dumpDate: dumpDate}, nil
}

// openMasterDB creates the query_log table on first use, mirroring the
// teacher's openDatabase schema-on-connect pattern in database.go.
func openMasterDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal=MEMORY&_sync=OFF")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS query_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_id INTEGER NOT NULL,
			dest_id INTEGER NOT NULL,
			dump_date TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			path_count INTEGER NOT NULL,
			paths TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close releases every underlying handle.
func (g *GraphDB) Close() error {
	g.insert.Close()
	errEdges := g.edges.Close()
	errVertex := g.vertex.Close()
	errMaster := g.master.Close()
	if errEdges != nil {
		return errEdges
	}
	if errVertex != nil {
		return errVertex
	}
	return errMaster
}

// DumpDate reports which dataset this GraphDB is currently serving.
func (g *GraphDB) DumpDate() string { return g.dumpDate }

// FindVertexByTitle looks up a vertex by its canonical title, normalizing
// underscores to spaces the way MediaWiki titles are stored.
func (g *GraphDB) FindVertexByTitle(title string) (vertexstore.Vertex, error) {
	return g.vertex.FindByTitle(strings.ReplaceAll(title, "_", " "))
}

// FindVertexByID looks up a vertex by id.
func (g *GraphDB) FindVertexByID(id uint32) (vertexstore.Vertex, error) {
	return g.vertex.FindByID(id)
}

// BFSEdges exposes a single vertex's outgoing/incoming adjacency lists, for
// the query subcommand's inspection output.
func (g *GraphDB) BFSEdges(vertexID uint32) (outgoing, incoming []uint32, err error) {
	return g.edges.ReadEdges(vertexID)
}

// BFS finds every shortest path from src to dest. When record is true, the
// search is logged to the master database's query_log table: source, dest,
// dump date, timestamp, duration, and the full path list JSON-encoded into
// the paths column, mirroring the original's
// (src, dst, duration, paths_json) query log row.
func (g *GraphDB) BFS(src, dest uint32, record bool) ([][]uint32, error) {
	start := time.Now()
	paths, err := bfs.Search(g.edges, src, dest)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	elapsed := time.Since(start)

	if record {
		pathsJSON, err := json.Marshal(paths)
		if err != nil {
			return nil, fmt.Errorf("encode paths for query log: %w", err)
		}
		if _, err := g.insert.Exec(
			src, dest, g.dumpDate,
			start.UTC().Format(time.RFC3339Nano),
			float64(elapsed.Microseconds())/1000.0,
			len(paths),
			string(pathsJSON),
		); err != nil {
			return nil, fmt.Errorf("record query log: %w", err)
		}
	}

	return paths, nil
}
