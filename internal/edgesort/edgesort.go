// Package edgesort implements the external edge sorter (component E): raw
// edges are appended to a flat file, then two sorted copies (by source, by
// dest) are produced via in-place parallel sort of a memory-mapped view.
package edgesort

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/pbnjay/memory"
	"github.com/sirupsen/logrus"
)

// recordSize is the byte width of one {source:u32 LE, dest:u32 LE} edge.
const recordSize = 8

// By names which field an edge file is sorted by.
type By int

const (
	// BySource sorts ascending by the edge's source vertex id.
	BySource By = iota
	// ByDest sorts ascending by the edge's dest vertex id.
	ByDest
)

func (b By) filename() string {
	if b == BySource {
		return "edges-outgoing"
	}
	return "edges-incoming"
}

// Writer appends raw edges to a flat file with a buffered, single-writer
// discipline — exactly one goroutine may hold a Writer at a time.
type Writer struct {
	root string
	file *os.File
	buf  *bufio.Writer
	rec  [recordSize]byte
}

// NewWriter creates (or truncates) the raw edge file under root.
func NewWriter(root string) (*Writer, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(rawPath(root), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &Writer{root: root, file: file, buf: bufio.NewWriter(file)}, nil
}

func rawPath(root string) string { return root + "/edges" }

// Write appends one edge record.
func (w *Writer) Write(source, dest uint32) error {
	binary.LittleEndian.PutUint32(w.rec[0:4], source)
	binary.LittleEndian.PutUint32(w.rec[4:8], dest)
	_, err := w.buf.Write(w.rec[:])
	return err
}

// Close flushes and closes the raw edge file.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// MakeSortFiles copies the raw edge file to edges-outgoing and renames it to
// edges-incoming, avoiding a second full copy — the same trick
// edge_db_builder.rs uses, since one of the two result files can simply take
// ownership of the original's bytes.
func MakeSortFiles(root string) error {
	src := rawPath(root)
	outgoing := root + "/" + BySource.filename()
	incoming := root + "/" + ByDest.filename()

	if err := copyFile(src, outgoing); err != nil {
		return fmt.Errorf("copy raw edges to outgoing sort file: %w", err)
	}
	if err := os.Rename(src, incoming); err != nil {
		return fmt.Errorf("rename raw edges to incoming sort file: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	buf := bufio.NewWriter(out)
	if _, err := bufCopy(buf, in); err != nil {
		return err
	}
	return buf.Flush()
}

func bufCopy(dst *bufio.Writer, src *os.File) (int64, error) {
	buffer := make([]byte, 1<<20)
	var total int64
	for {
		n, err := src.Read(buffer)
		if n > 0 {
			if _, werr := dst.Write(buffer[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}

// edgeRecord is the in-memory view of one 8-byte edge record.
type edgeRecord struct {
	source uint32
	dest   uint32
}

// Sort memory-maps root's sort file for `by` read-write and sorts it in
// place: ascending by source for BySource, ascending by dest for ByDest.
// Sorting runs as a parallel chunk-sort followed by repeated pairwise merges
// of adjacent sorted runs — the Go
// analogue of the original's rayon::par_sort_unstable_by, since neither the
// standard library nor the pack offers a parallel in-place sort primitive.
func Sort(root string, by By) error {
	path := root + "/" + by.filename()
	file, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return err
	}
	defer data.Unmap()

	n := len(data) / recordSize
	records := make([]edgeRecord, n)
	for i := 0; i < n; i++ {
		off := i * recordSize
		records[i] = edgeRecord{
			source: binary.LittleEndian.Uint32(data[off : off+4]),
			dest:   binary.LittleEndian.Uint32(data[off+4 : off+8]),
		}
	}

	parallelSort(records, by, workerCountForMemory(int64(len(data))))

	for i, r := range records {
		off := i * recordSize
		binary.LittleEndian.PutUint32(data[off:off+4], r.source)
		binary.LittleEndian.PutUint32(data[off+4:off+8], r.dest)
	}

	return data.Flush()
}

// memoryBudgetFraction is the share of total system memory the sorter may
// assume it can use, set by SetMemoryBudgetFraction from the --memory flag.
var memoryBudgetFraction = 0.5

// SetMemoryBudgetFraction configures the fraction of total system memory
// workerCountForMemory treats as its budget, mirroring the teacher's
// --memory percentage flag (see SPEC_FULL.md DOMAIN STACK). fraction must be
// in (0, 1]; out-of-range values are ignored.
func SetMemoryBudgetFraction(fraction float64) {
	if fraction <= 0 || fraction > 1 {
		return
	}
	memoryBudgetFraction = fraction
}

// workerCountForMemory sizes the sorter's parallelism against the
// configured memory budget, using pbnjay/memory the way the original bounds
// resource usage via its own --memory flag.
func workerCountForMemory(dataBytes int64) int {
	available := int64(memory.TotalMemory())
	if available == 0 {
		return runtime.NumCPU()
	}
	budget := int64(float64(available) * memoryBudgetFraction)
	if dataBytes > budget {
		logrus.Warn("edge sort data exceeds the configured memory budget, reducing parallelism")
		return 1
	}
	return runtime.NumCPU()
}

// parallelSort sorts s by the chosen key, splitting it into chunks of
// roughly equal size, sorting each chunk concurrently, then repeatedly
// merging adjacent sorted runs until one remains.
func parallelSort(s []edgeRecord, by By, workers int) {
	if workers < 1 {
		workers = 1
	}
	n := len(s)
	if n <= 1 || workers == 1 {
		sort.Slice(s, func(i, j int) bool { return less(s[i], s[j], by) })
		return
	}

	chunkSize := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunk := s[start:end]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sort.Slice(chunk, func(i, j int) bool { return less(chunk[i], chunk[j], by) })
		}()
	}
	wg.Wait()

	runSize := chunkSize
	for runSize < n {
		for start := 0; start < n; start += 2 * runSize {
			mid := start + runSize
			if mid > n {
				mid = n
			}
			end := start + 2*runSize
			if end > n {
				end = n
			}
			mergeInPlace(s, start, mid, end, by)
		}
		runSize *= 2
	}
}

func less(a, b edgeRecord, by By) bool {
	if by == BySource {
		return a.source < b.source
	}
	return a.dest < b.dest
}

// mergeInPlace merges two adjacent sorted runs s[start:mid] and s[mid:end]
// using an auxiliary buffer, matching the merge step of a standard bottom-up
// merge sort.
func mergeInPlace(s []edgeRecord, start, mid, end int, by By) {
	if mid >= end {
		return
	}
	left := append([]edgeRecord(nil), s[start:mid]...)
	right := append([]edgeRecord(nil), s[mid:end]...)

	i, j, k := 0, 0, start
	for i < len(left) && j < len(right) {
		if less(left[i], right[j], by) || !less(right[j], left[i], by) {
			s[k] = left[i]
			i++
		} else {
			s[k] = right[j]
			j++
		}
		k++
	}
	for i < len(left) {
		s[k] = left[i]
		i++
		k++
	}
	for j < len(right) {
		s[k] = right[j]
		j++
		k++
	}
}
