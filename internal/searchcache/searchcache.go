// Package searchcache holds recently computed shortest-path results in
// memory, bounded by total byte size rather than entry count, so a handful
// of huge result sets can't starve out many small ones.
package searchcache

import (
	"errors"
	"sync"
)

// Key identifies one search: a source/destination vertex pair within one
// language edition, mirroring the teacher's Search{source, target,
// languageCode} key.
type Key struct {
	Source       uint32
	Dest         uint32
	LanguageCode string
}

// Cache stores shortest-path results for repeat run/query invocations. The
// ring-buffer key slice and byte-size eviction are ported from the
// teacher's SearchCache; no pack LRU library supports byte-size-bounded
// eviction, only count-bounded, so this stays hand-rolled.
type Cache struct {
	mutex         sync.Mutex
	curByteSize   int
	maxByteSize   int
	keyStartIndex int
	keyEndIndex   int
	keySlice      []Key
	resultData    map[Key][][]uint32
	sizeOf        map[Key]int
}

// New returns a Cache that evicts its oldest entries once the total
// approximate byte size of stored results exceeds maxByteSize.
func New(maxByteSize int) (*Cache, error) {
	if maxByteSize < 0 {
		return nil, errors.New("invalid search cache size")
	}
	return &Cache{
		maxByteSize: maxByteSize,
		keySlice:    []Key{},
		resultData:  map[Key][][]uint32{},
		sizeOf:      map[Key]int{},
	}, nil
}

// Fetch returns the cached paths for k, or (nil, false) on a miss.
func (c *Cache) Fetch(k Key) ([][]uint32, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	paths, ok := c.resultData[k]
	return paths, ok
}

// pathsByteSize approximates the memory held by a path set: each vertex id
// is 4 bytes.
func pathsByteSize(paths [][]uint32) int {
	size := 0
	for _, p := range paths {
		size += len(p) * 4
	}
	return size
}

// Store records the result of a search, evicting the oldest entries first
// if doing so would exceed maxByteSize. A key already present is left
// untouched rather than refreshed, matching the teacher's behavior.
func (c *Cache) Store(k Key, paths [][]uint32) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	purgeOldest := func() {
		oldest := c.keySlice[c.keyStartIndex]
		c.curByteSize -= c.sizeOf[oldest]
		delete(c.resultData, oldest)
		delete(c.sizeOf, oldest)
		c.keyStartIndex++
		if c.keyStartIndex == len(c.keySlice) {
			c.keyStartIndex = 0
		}
	}

	if _, alreadyStored := c.resultData[k]; alreadyStored {
		return
	}

	size := pathsByteSize(paths)
	c.resultData[k] = paths
	c.sizeOf[k] = size
	c.curByteSize += size
	if c.keyEndIndex < len(c.keySlice) {
		c.keySlice[c.keyEndIndex] = k
	} else {
		c.keySlice = append(c.keySlice, k)
	}
	c.keyEndIndex++
	if c.keyEndIndex == c.keyStartIndex {
		purgeOldest()
	}

	if c.curByteSize > c.maxByteSize {
		for c.curByteSize > c.maxByteSize {
			purgeOldest()
		}
		if c.keyEndIndex == len(c.keySlice) && c.keyStartIndex*2 > c.keyEndIndex {
			c.keyEndIndex = 0
		}
	}
}
