// Package vertexstore is the per-dataset relational table of vertices
// (component B): {id, title, is_redirect} with an index on title.
package vertexstore

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Vertex is one article or redirect page.
type Vertex struct {
	ID         uint32
	Title      string
	IsRedirect bool
}

// Store wraps the vertex table of a dataset's graph.db.
type Store struct {
	db          *sql.DB
	findByID    *sql.Stmt
	findByTitle *sql.Stmt
}

// Create drops and recreates the vertex table at path, ready for bulk
// loading. synchronous=off and journal=memory trade durability for ingest
// throughput, exactly as the teacher's build.go does for its own tables;
// this is safe because a crash mid-build simply restarts the phase (see
// internal/builder).
func Create(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?_journal=MEMORY&_sync=OFF")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`
		DROP TABLE IF EXISTS vertex;
		CREATE TABLE vertex (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			is_redirect INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Open opens an existing, fully-built vertex store read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?immutable=true")
	if err != nil {
		return nil, err
	}
	findByID, err := db.Prepare("SELECT id, title, is_redirect FROM vertex WHERE id = ?")
	if err != nil {
		db.Close()
		return nil, err
	}
	findByTitle, err := db.Prepare("SELECT id, title, is_redirect FROM vertex WHERE title = ?")
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, findByID: findByID, findByTitle: findByTitle}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// BulkInsert loads rows inside a single transaction, as build.go does, and
// builds the title index only after every row is inserted.
func (s *Store) BulkInsert(vertices <-chan Vertex) (count uint32, maxID uint32, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	insert, err := tx.Prepare("INSERT INTO vertex (id, title, is_redirect) VALUES (?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	for v := range vertices {
		isRedir := 0
		if v.IsRedirect {
			isRedir = 1
		}
		if _, err := insert.Exec(v.ID, v.Title, isRedir); err != nil {
			tx.Rollback()
			return 0, 0, err
		}
		count++
		if v.ID > maxID {
			maxID = v.ID
		}
	}
	if _, err := tx.Exec("CREATE INDEX idx_vertex_title ON vertex (title)"); err != nil {
		tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return count, maxID, nil
}

// ErrNotFound is returned by FindByID/FindByTitle on a lookup miss.
var ErrNotFound = errors.New("vertex not found")

// FindByID performs an exact-match id lookup.
func (s *Store) FindByID(id uint32) (Vertex, error) {
	var v Vertex
	var isRedir int
	err := s.findByID.QueryRow(id).Scan(&v.ID, &v.Title, &isRedir)
	if errors.Is(err, sql.ErrNoRows) {
		return Vertex{}, ErrNotFound
	}
	if err != nil {
		return Vertex{}, fmt.Errorf("find vertex by id: %w", err)
	}
	v.IsRedirect = isRedir != 0
	return v, nil
}

// FindByTitle performs an exact-match title lookup.
func (s *Store) FindByTitle(title string) (Vertex, error) {
	var v Vertex
	var isRedir int
	err := s.findByTitle.QueryRow(title).Scan(&v.ID, &v.Title, &isRedir)
	if errors.Is(err, sql.ErrNoRows) {
		return Vertex{}, ErrNotFound
	}
	if err != nil {
		return Vertex{}, fmt.Errorf("find vertex by title: %w", err)
	}
	v.IsRedirect = isRedir != 0
	return v, nil
}

// maxBatchTitles caps a single IN (...) query to stay under sqlite's default
// bound-parameter limit; the redirect map and edge resolver both batch their
// title lookups to this size.
const maxBatchTitles = 32760

// FindByTitles resolves a batch of titles to {id, is_redirect} in as few
// queries as possible, chunking at maxBatchTitles. Missing titles are simply
// absent from the returned map.
func (s *Store) FindByTitles(titles []string) (map[string]Vertex, error) {
	result := make(map[string]Vertex, len(titles))
	for start := 0; start < len(titles); start += maxBatchTitles {
		end := start + maxBatchTitles
		if end > len(titles) {
			end = len(titles)
		}
		batch := titles[start:end]

		placeholders := make([]byte, 0, len(batch)*2)
		args := make([]any, len(batch))
		for i, t := range batch {
			if i > 0 {
				placeholders = append(placeholders, ',')
			}
			placeholders = append(placeholders, '?')
			args[i] = t
		}
		query := "SELECT id, title, is_redirect FROM vertex WHERE title IN (" + string(placeholders) + ")"
		rows, err := s.db.Query(query, args...)
		if err != nil {
			return nil, fmt.Errorf("batch title lookup: %w", err)
		}
		for rows.Next() {
			var v Vertex
			var isRedir int
			if err := rows.Scan(&v.ID, &v.Title, &isRedir); err != nil {
				rows.Close()
				return nil, err
			}
			v.IsRedirect = isRedir != 0
			result[v.Title] = v
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return result, nil
}

// MaxBatchTitles exposes the batching limit to callers (redirectmap,
// edgeresolve) that build their own batches ahead of a FindByTitles call.
func MaxBatchTitles() int { return maxBatchTitles }
