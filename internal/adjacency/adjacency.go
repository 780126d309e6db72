// Package adjacency builds and reads the CSR-style adjacency file
// (components F and G): a single memory-mappable file holding, for each
// vertex id, its outgoing and incoming neighbor lists framed by a magic
// number and zero terminators, plus a parallel fixed-width offset index.
package adjacency

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/sirupsen/logrus"
)

// magic marks the start of a vertex's adjacency record in the AL file.
const magic uint32 = 0xCAFECAFE

const indexEntrySize = 8 // u64 LE per vertex

// edgeRecord mirrors the 8-byte {source, dest} layout written by
// internal/edgesort.
type edgeRecord struct {
	a uint32 // source for the outgoing file, dest for the incoming file
	b uint32 // dest for the outgoing file, source for the incoming file
}

const edgeRecordSize = 8

// Build merges the two sorted edge files under root (edges-outgoing, sorted
// by source; edges-incoming, sorted by dest) into a vertex-al adjacency file
// and a vertex-al-ix offset index, covering vertex ids 0..=maxVertexID.
//
// This is a two-cursor linear walk over the vertex id range, one cursor per
// sorted file, grounded on edge_db_builder.rs's AdjacencySetIterator. A
// cursor landing on a key less than the current vertex means an edge was
// written out of order by the sorter — a fatal, unrecoverable condition, so
// it is reported as an error rather than silently dropped.
func Build(root string, maxVertexID uint32, alPath, ixPath string) error {
	outgoing, err := os.Open(root + "/edges-outgoing")
	if err != nil {
		return fmt.Errorf("open outgoing edge file: %w", err)
	}
	defer outgoing.Close()
	incoming, err := os.Open(root + "/edges-incoming")
	if err != nil {
		return fmt.Errorf("open incoming edge file: %w", err)
	}
	defer incoming.Close()

	outStat, err := outgoing.Stat()
	if err != nil {
		return err
	}
	inStat, err := incoming.Stat()
	if err != nil {
		return err
	}

	outReader := bufio.NewReaderSize(outgoing, 1<<20)
	inReader := bufio.NewReaderSize(incoming, 1<<20)

	var outBuf, inBuf [edgeRecordSize]byte
	outRemaining := outStat.Size()
	inRemaining := inStat.Size()

	var outCurrent, inCurrent edgeRecord
	var outValid, inValid bool

	nextOut := func() error {
		if outRemaining < edgeRecordSize {
			outValid = false
			return nil
		}
		if _, err := io.ReadFull(outReader, outBuf[:]); err != nil {
			return err
		}
		outCurrent = edgeRecord{
			a: binary.LittleEndian.Uint32(outBuf[0:4]),
			b: binary.LittleEndian.Uint32(outBuf[4:8]),
		}
		outRemaining -= edgeRecordSize
		outValid = true
		return nil
	}
	nextIn := func() error {
		if inRemaining < edgeRecordSize {
			inValid = false
			return nil
		}
		if _, err := io.ReadFull(inReader, inBuf[:]); err != nil {
			return err
		}
		// incoming file holds the same {source, dest} layout as outgoing but
		// sorted by dest; a is the comparison key (dest), b the neighbor (source).
		inCurrent = edgeRecord{
			a: binary.LittleEndian.Uint32(inBuf[4:8]),
			b: binary.LittleEndian.Uint32(inBuf[0:4]),
		}
		inRemaining -= edgeRecordSize
		inValid = true
		return nil
	}

	if err := nextOut(); err != nil {
		return fmt.Errorf("read first outgoing edge: %w", err)
	}
	if err := nextIn(); err != nil {
		return fmt.Errorf("read first incoming edge: %w", err)
	}

	alFile, err := os.Create(alPath)
	if err != nil {
		return fmt.Errorf("create adjacency file: %w", err)
	}
	defer alFile.Close()
	ixFile, err := os.Create(ixPath)
	if err != nil {
		return fmt.Errorf("create adjacency index file: %w", err)
	}
	defer ixFile.Close()

	alWriter := bufio.NewWriterSize(alFile, 1<<20)
	ixWriter := bufio.NewWriterSize(ixFile, 1<<20)

	var alPosition uint64
	var magicBuf, u32Buf [4]byte
	binary.LittleEndian.PutUint32(magicBuf[:], magic)

	// An index entry of 0 means "no record", so no record may start at
	// offset 0: the file opens with one zero word of padding.
	if _, err := alWriter.Write(u32Buf[:]); err != nil {
		return err
	}
	alPosition += 4

	for v := uint32(0); ; v++ {
		var out, in []uint32

		for outValid && outCurrent.a <= v {
			if outCurrent.a < v {
				return fmt.Errorf("outgoing edge source %d precedes current vertex %d; edge was missed by the sorter", outCurrent.a, v)
			}
			if outCurrent.b > maxVertexID {
				return fmt.Errorf("outgoing edge dest %d exceeds max vertex id %d", outCurrent.b, maxVertexID)
			}
			out = append(out, outCurrent.b)
			if err := nextOut(); err != nil {
				return fmt.Errorf("read outgoing edge: %w", err)
			}
		}
		for inValid && inCurrent.a <= v {
			if inCurrent.a < v {
				return fmt.Errorf("incoming edge dest %d precedes current vertex %d; edge was missed by the sorter", inCurrent.a, v)
			}
			if inCurrent.b > maxVertexID {
				return fmt.Errorf("incoming edge source %d exceeds max vertex id %d", inCurrent.b, maxVertexID)
			}
			in = append(in, inCurrent.b)
			if err := nextIn(); err != nil {
				return fmt.Errorf("read incoming edge: %w", err)
			}
		}

		if len(out) == 0 && len(in) == 0 {
			if err := binaryWriteU64(ixWriter, 0); err != nil {
				return err
			}
		} else {
			if err := binaryWriteU64(ixWriter, alPosition); err != nil {
				return err
			}
			if _, err := alWriter.Write(magicBuf[:]); err != nil {
				return err
			}
			alPosition += 4
			for _, dest := range out {
				binary.LittleEndian.PutUint32(u32Buf[:], dest)
				if _, err := alWriter.Write(u32Buf[:]); err != nil {
					return err
				}
				alPosition += 4
			}
			binary.LittleEndian.PutUint32(u32Buf[:], 0)
			if _, err := alWriter.Write(u32Buf[:]); err != nil {
				return err
			}
			alPosition += 4
			for _, source := range in {
				binary.LittleEndian.PutUint32(u32Buf[:], source)
				if _, err := alWriter.Write(u32Buf[:]); err != nil {
					return err
				}
				alPosition += 4
			}
			if _, err := alWriter.Write(u32Buf[:]); err != nil { // reuses the zeroed u32Buf as terminator
				return err
			}
			alPosition += 4
		}

		if v == maxVertexID {
			break
		}
	}

	if outValid || inValid {
		logrus.Warn("adjacency build: leftover edges past max vertex id, ignoring")
	}

	if err := alWriter.Flush(); err != nil {
		return err
	}
	return ixWriter.Flush()
}

// binaryWriteU64 writes v as 8 raw LE bytes, avoiding encoding/binary.Write's
// reflection-based fallback on the hot path.
func binaryWriteU64(w *bufio.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// EdgeDB is a read-only, memory-mapped view of a built adjacency file and
// its offset index, grounded on wikiwalk/src/edge_db.rs.
type EdgeDB struct {
	alFile *os.File
	ixFile *os.File
	al     mmap.MMap
	ix     mmap.MMap
}

// Open memory-maps the adjacency file and its index, running the same
// integrity checks as the original's EdgeDB::check_db.
func Open(alPath, ixPath string) (*EdgeDB, error) {
	alFile, err := os.Open(alPath)
	if err != nil {
		return nil, err
	}
	al, err := mmap.Map(alFile, mmap.RDONLY, 0)
	if err != nil {
		alFile.Close()
		return nil, err
	}
	ixFile, err := os.Open(ixPath)
	if err != nil {
		al.Unmap()
		alFile.Close()
		return nil, err
	}
	ix, err := mmap.Map(ixFile, mmap.RDONLY, 0)
	if err != nil {
		al.Unmap()
		alFile.Close()
		ixFile.Close()
		return nil, err
	}

	db := &EdgeDB{alFile: alFile, ixFile: ixFile, al: al, ix: ix}
	if err := db.checkDB(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Close unmaps and closes both underlying files.
func (db *EdgeDB) Close() error {
	if err := db.al.Unmap(); err != nil {
		return err
	}
	if err := db.ix.Unmap(); err != nil {
		return err
	}
	if err := db.alFile.Close(); err != nil {
		return err
	}
	return db.ixFile.Close()
}

func (db *EdgeDB) checkDB() error {
	if len(db.al) == 0 {
		return fmt.Errorf("adjacency file is empty")
	}
	if len(db.ix) == 0 {
		return fmt.Errorf("adjacency index file is empty")
	}
	if len(db.al)%4 != 0 {
		return fmt.Errorf("adjacency file size %d is not a multiple of 4", len(db.al))
	}
	if len(db.ix)%indexEntrySize != 0 {
		return fmt.Errorf("adjacency index file size %d is not a multiple of %d", len(db.ix), indexEntrySize)
	}

	maxOffset := uint64(len(db.al) - 4)
	for pos := 0; pos+indexEntrySize <= len(db.ix); pos += indexEntrySize {
		value := binary.LittleEndian.Uint64(db.ix[pos : pos+indexEntrySize])
		if value > maxOffset {
			return fmt.Errorf("adjacency index at byte %d points to offset %d, past adjacency file bound %d", pos, value, maxOffset)
		}
	}
	return nil
}

// VertexCount returns the number of vertex ids the index file covers.
func (db *EdgeDB) VertexCount() uint32 {
	return uint32(len(db.ix) / indexEntrySize)
}

// ReadEdges returns the outgoing and incoming neighbor lists for vertexID.
// A vertex id past the index's range, or one with no edges, yields two nil
// slices rather than an error — only a corrupt adjacency record (a missing
// magic number) is treated as fatal.
func (db *EdgeDB) ReadEdges(vertexID uint32) (outgoing, incoming []uint32, err error) {
	indexOffset := int(vertexID) * indexEntrySize
	if indexOffset+indexEntrySize > len(db.ix) {
		return nil, nil, nil
	}
	offset := binary.LittleEndian.Uint64(db.ix[indexOffset : indexOffset+indexEntrySize])
	if offset == 0 {
		return nil, nil, nil
	}

	data := db.al[offset:]
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("corrupt adjacency record for vertex %d: truncated", vertexID)
	}
	if binary.LittleEndian.Uint32(data[:4]) != magic {
		return nil, nil, fmt.Errorf("corrupt adjacency record for vertex %d: bad magic", vertexID)
	}

	i := 4
	for {
		if i+4 > len(data) {
			return nil, nil, fmt.Errorf("corrupt adjacency record for vertex %d: unterminated outgoing list", vertexID)
		}
		val := binary.LittleEndian.Uint32(data[i : i+4])
		i += 4
		if val == 0 {
			break
		}
		outgoing = append(outgoing, val)
	}
	for {
		if i+4 > len(data) {
			return nil, nil, fmt.Errorf("corrupt adjacency record for vertex %d: unterminated incoming list", vertexID)
		}
		val := binary.LittleEndian.Uint32(data[i : i+4])
		i += 4
		if val == 0 {
			break
		}
		incoming = append(incoming, val)
	}
	return outgoing, incoming, nil
}
