// Package vector provides the dense half of the local retrieval backend.
package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Index stores chunk embeddings and answers nearest-neighbour queries by chunk ID.
type Index interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*Hit, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// Hit is one nearest-neighbour result. Score is the inner product, which is the cosine
// similarity for the unit vectors produced by the embedders.
type Hit struct {
	ID    string
	Score float64
}

var _ Index = (*MemoryIndex)(nil)

// indexMagic prefixes the persisted index file.
var indexMagic = [4]byte{'G', 'V', 'E', 'C'}

const indexVersion uint32 = 1

type entry struct {
	id  string
	vec []float32
}

// MemoryIndex is a brute-force inner product index held in memory and persisted as a
// single binary file. Report collections are small enough that a linear scan is fast.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    []entry
	pos        map[string]int
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{dimensions: dimensions, pos: make(map[string]int)}, nil
}

func (m *MemoryIndex) checkDim(v []float32, what string) error {
	if len(v) != m.dimensions {
		return fmt.Errorf("%s dimension mismatch: got %d, expected %d", what, len(v), m.dimensions)
	}
	return nil
}

// Add inserts vectors; an existing ID has its vector replaced.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("got %d ids for %d vectors", len(ids), len(vectors))
	}
	for _, v := range vectors {
		if err := m.checkDim(v, "vector"); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := append([]float32(nil), vectors[i]...)
		if p, ok := m.pos[id]; ok {
			m.entries[p].vec = vec
			continue
		}
		m.pos[id] = len(m.entries)
		m.entries = append(m.entries, entry{id: id, vec: vec})
	}
	return nil
}

// Search returns the k best hits by inner product; equal scores order by ID.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*Hit, error) {
	if err := m.checkDim(query, "query"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	hits := make([]*Hit, len(m.entries))
	for i, e := range m.entries {
		hits[i] = &Hit{ID: e.id, Score: InnerProduct(query, e.vec)}
	}
	m.mu.RUnlock()
	if k <= 0 || len(hits) == 0 {
		return nil, nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Remove deletes vectors by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		p, ok := m.pos[id]
		if !ok {
			continue
		}
		last := len(m.entries) - 1
		if p != last {
			m.entries[p] = m.entries[last]
			m.pos[m.entries[p].id] = p
		}
		m.entries = m.entries[:last]
		delete(m.pos, id)
	}
	return nil
}

// Save writes the index to path via a temp file and rename. An empty path is a no-op.
//
// Layout, little endian: magic "GVEC", version, dimensions, count, then per entry the
// ID length, ID bytes and the vector as float32s.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	m.mu.RLock()
	err = m.encodeLocked(w)
	m.mu.RUnlock()
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, path)
}

func (m *MemoryIndex) encodeLocked(w *bufio.Writer) error {
	header := []any{indexMagic, indexVersion, uint32(m.dimensions), uint32(len(m.entries))}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	for _, e := range m.entries {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(e.id))); err != nil {
			return err
		}
		if _, err := w.WriteString(e.id); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, e.vec); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the index contents with the file at path. A missing file leaves the
// index unchanged; a file of another dimension is an error.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var hdr struct {
		Magic      [4]byte
		Version    uint32
		Dimensions uint32
		Count      uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("read index header: %w", err)
	}
	if hdr.Magic != indexMagic || hdr.Version != indexVersion {
		return fmt.Errorf("%s is not a version %d vector index", path, indexVersion)
	}
	if int(hdr.Dimensions) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", hdr.Dimensions, m.dimensions)
	}

	entries := make([]entry, hdr.Count)
	pos := make(map[string]int, hdr.Count)
	for i := range entries {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return fmt.Errorf("read entry %d: %w", i, err)
		}
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return fmt.Errorf("read entry %d: %w", i, err)
		}
		vec := make([]float32, m.dimensions)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return fmt.Errorf("read entry %d: %w", i, err)
		}
		entries[i] = entry{id: string(id), vec: vec}
		pos[string(id)] = i
	}

	m.mu.Lock()
	m.entries = entries
	m.pos = pos
	m.mu.Unlock()
	return nil
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error {
	return nil
}
