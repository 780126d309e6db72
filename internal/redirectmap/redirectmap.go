// Package redirectmap implements the dense memory-mapped redirect array
// (component C): a fixed-size u32 LE file indexed by source page id, giving
// the destination page id (0 = no redirect).
package redirectmap

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"

	"github.com/wikipath/wikipath/internal/sqldump"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

const entrySize = 4

// Map is a read-write redirect array during build, demoted to read-only
// once the build driver moves past the redirects_resolved phase.
type Map struct {
	file *os.File
	data mmap.MMap
}

// Create allocates a new redirect file sized for maxPageID+1 entries, all
// initialized to 0 ("no redirect").
func Create(path string, maxPageID uint32) (*Map, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(maxPageID+1) * entrySize
	if err := file.Truncate(size); err != nil {
		file.Close()
		return nil, err
	}
	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Map{file: file, data: data}, nil
}

// Open memory-maps an existing redirect file read-only.
func Open(path string) (*Map, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	return &Map{file: file, data: data}, nil
}

// Close unmaps and closes the underlying file.
func (m *Map) Close() error {
	if err := m.data.Unmap(); err != nil {
		return err
	}
	return m.file.Close()
}

// Get returns (dest, true) if from redirects somewhere, else (0, false).
func (m *Map) Get(from uint32) (uint32, bool) {
	offset := int(from) * entrySize
	if offset+entrySize > len(m.data) {
		return 0, false
	}
	dest := binary.LittleEndian.Uint32(m.data[offset : offset+entrySize])
	if dest == 0 {
		return 0, false
	}
	return dest, true
}

// Set writes a single entry, silently dropping out-of-bounds writes with a
// logged error (mirrors the Rust original's bounds check in
// RedirectMapFile::set).
func (m *Map) Set(from uint32, to uint32) {
	offset := int(from) * entrySize
	if offset+entrySize > len(m.data) {
		logrus.WithFields(logrus.Fields{"from": from, "to": to}).Error("redirect out of bounds, dropping")
		return
	}
	binary.LittleEndian.PutUint32(m.data[offset:offset+entrySize], to)
}

// Build parses the redirect dump, resolves each destination title against
// the vertex store in batches, and writes the single-hop redirect map.
// Redirect chains are NOT followed transitively here (only one hop) — this
// is spec-mandated canonical behavior; see SPEC_FULL.md's Open Question
// Decisions for the optional fixed-point variant.
func Build(dumpPath string, store *vertexstore.Store, target *Map) (uint32, error) {
	redirects, err := sqldump.ParseRedirects(dumpPath)
	if err != nil {
		return 0, fmt.Errorf("parse redirects dump: %w", err)
	}

	chunkSize := vertexstore.MaxBatchTitles()
	var count uint32
	batch := make([]sqldump.Redirect, 0, chunkSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		titles := make([]string, len(batch))
		for i, r := range batch {
			titles[i] = r.DestTitle
		}
		resolved, err := store.FindByTitles(titles)
		if err != nil {
			return fmt.Errorf("resolve redirect destinations: %w", err)
		}
		for _, r := range batch {
			dest, ok := resolved[r.DestTitle]
			if !ok {
				logrus.WithFields(logrus.Fields{"source": r.Source, "title": r.DestTitle}).
					Warn("redirect destination title has no vertex entry, dropping")
				continue
			}
			target.Set(uint32(r.Source), dest.ID)
			count++
		}
		batch = batch[:0]
		return nil
	}

	for r := range redirects {
		batch = append(batch, r)
		if len(batch) == chunkSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := flush(); err != nil {
		return 0, err
	}
	return count, nil
}

// followChains iterates the single-hop map to a fixed point for a single
// lookup. Off by default (SPEC_FULL.md Open Question Decisions); exposed
// only for the unit test documenting the difference from single-hop
// behavior — no build-time flag wires it in.
func followChains(m *Map, from uint32) uint32 {
	seen := map[uint32]bool{from: true}
	current := from
	for {
		next, ok := m.Get(current)
		if !ok {
			return current
		}
		if seen[next] {
			return current // break cycles, favor deepest chain before the cycle
		}
		seen[next] = true
		current = next
	}
}
