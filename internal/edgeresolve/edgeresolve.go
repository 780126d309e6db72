// Package edgeresolve is the fan-out worker pool (component D) that turns
// (source_page_id, dest_title) page-link rows into resolved
// (source_id, dest_id) edges, following at most one redirect hop on the
// destination side.
package edgeresolve

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wikipath/wikipath/internal/redirectmap"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

// Link is a page-link row with its destination already joined against
// link-targets, i.e. the title the original pagelinks row's target id
// resolves to.
type Link struct {
	SourceID  uint32
	DestTitle string
}

// Edge is a fully resolved directed link between two non-redirect vertices.
type Edge struct {
	Source uint32
	Dest   uint32
}

// batchSize bounds how many links accumulate before a lookup batch fires,
// reusing vertexstore's own bound-parameter ceiling since a batch turns
// directly into a FindByTitles call.
var batchSize = vertexstore.MaxBatchTitles()

// cacheSize bounds the per-worker LRU title->id cache (spec.md §4.D point 3).
const cacheSize = 100000

// Resolve fans links out across workerCount goroutines, each batching its
// input against the vertex store and redirect map, and writes every
// resolved edge to a single dedicated writer goroutine (a mutex-less
// single-producer discipline per spec.md §4.D).
func Resolve(ctx context.Context, links <-chan Link, store *vertexstore.Store, redirects *redirectmap.Map, workerCount int, writeEdge func(Edge) error) (resolved uint32, dropped uint32, err error) {
	if workerCount < 1 {
		workerCount = 1
	}

	edges := make(chan Edge, workerCount*4)
	dropCounts := make(chan uint32, workerCount)

	g, gctx := errgroup.WithContext(ctx)

	// fan the single input channel out to workerCount consumers; each
	// consumer owns its own batch and LRU cache, matching the original's
	// per-task lrumap::LruHashMap.
	for i := 0; i < workerCount; i++ {
		g.Go(func() error {
			cache, err := lru.New(cacheSize)
			if err != nil {
				return err
			}
			var localDropped uint32
			batch := make([]Link, 0, batchSize)

			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				resolvedEdges, failures, err := lookupBatch(batch, store, redirects, cache)
				if err != nil {
					return err
				}
				localDropped += failures
				for _, e := range resolvedEdges {
					select {
					case edges <- e:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				batch = batch[:0]
				return nil
			}

			for {
				select {
				case link, ok := <-links:
					if !ok {
						err := flush()
						dropCounts <- localDropped
						return err
					}
					if id, ok := cache.Get(link.DestTitle); ok {
						select {
						case edges <- Edge{Source: link.SourceID, Dest: id.(uint32)}:
						case <-gctx.Done():
							return gctx.Err()
						}
						continue
					}
					batch = append(batch, link)
					if len(batch) >= batchSize {
						if err := flush(); err != nil {
							return err
						}
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	// single dedicated writer: appends every resolved edge, never shared
	// across goroutines, matching spec.md §4.D's writer discipline.
	writerDone := make(chan error, 1)
	go func() {
		for e := range edges {
			if err := writeEdge(e); err != nil {
				writerDone <- err
				return
			}
			resolved++
		}
		writerDone <- nil
	}()

	err = g.Wait()
	close(edges)
	if writeErr := <-writerDone; writeErr != nil && err == nil {
		err = writeErr
	}
	close(dropCounts)
	for d := range dropCounts {
		dropped += d
	}
	if err != nil {
		return resolved, dropped, fmt.Errorf("resolve edges: %w", err)
	}
	return resolved, dropped, nil
}

// lookupBatch resolves dest titles for one batch against the vertex store,
// following exactly one redirect hop per spec.md §4.D:
//  1. absent title -> drop + log
//  2. present, non-redirect -> emit edge to that vertex's id
//  3. present, redirect -> look up redirects[id]; emit if present, else drop
func lookupBatch(batch []Link, store *vertexstore.Store, redirects *redirectmap.Map, cache *lru.Cache) ([]Edge, uint32, error) {
	titles := make([]string, 0, len(batch))
	seen := make(map[string]bool, len(batch))
	for _, l := range batch {
		if !seen[l.DestTitle] {
			seen[l.DestTitle] = true
			titles = append(titles, l.DestTitle)
		}
	}

	vertices, err := store.FindByTitles(titles)
	if err != nil {
		return nil, 0, err
	}

	titleToID := make(map[string]uint32, len(vertices))
	var dropped uint32
	for title, v := range vertices {
		if !v.IsRedirect {
			titleToID[title] = v.ID
			continue
		}
		if dest, ok := redirects.Get(v.ID); ok {
			titleToID[title] = dest
		} else {
			logrus.WithFields(logrus.Fields{"title": title, "id": v.ID}).
				Debug("redirect marked in page table but missing from redirects table")
			dropped++
		}
	}

	edges := make([]Edge, 0, len(batch))
	for _, l := range batch {
		id, ok := titleToID[l.DestTitle]
		if !ok {
			logrus.WithFields(logrus.Fields{"source": l.SourceID, "title": l.DestTitle}).
				Debug("link destination did not resolve to a vertex, dropping")
			dropped++
			continue
		}
		cache.Add(l.DestTitle, id)
		edges = append(edges, Edge{Source: l.SourceID, Dest: id})
	}
	return edges, dropped, nil
}
