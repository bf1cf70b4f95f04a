package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/assethub/internal/models"
)

const memoryIndexMagic = "AHV1"

type memEntry struct {
	rec models.VectorRecord
	vec []float32
}

// MemoryIndex is an in-memory vector index using brute-force inner product search.
// Suitable for tests and single-node deployments with modest catalogs.
type MemoryIndex struct {
	dimensions int
	entries    map[string]*memEntry
	// dirty is set by writes and cleared by Save and Load.
	dirty bool
	mu    sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		entries:    make(map[string]*memEntry),
	}, nil
}

// Insert stores records, replacing any with the same ID.
func (m *MemoryIndex) Insert(ctx context.Context, records []*models.VectorRecord) error {
	for _, r := range records {
		if len(r.Embedding) != m.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(r.Embedding), m.dimensions)
		}
		if r.ID == "" {
			return fmt.Errorf("vector record has no id")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		vec := make([]float32, m.dimensions)
		copy(vec, r.Embedding)
		rec := *r
		rec.Embedding = nil
		m.entries[r.ID] = &memEntry{rec: rec, vec: vec}
	}
	m.dirty = m.dirty || len(records) > 0
	return nil
}

// Search returns the top-k records by inner product.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, topK int, typeFilter models.AssetType) ([]*Hit, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if topK <= 0 || len(m.entries) == 0 {
		return nil, nil
	}

	hits := make([]*Hit, 0, len(m.entries))
	for _, e := range m.entries {
		if typeFilter != "" && e.rec.AssetType != typeFilter {
			continue
		}
		hits = append(hits, &Hit{
			ID:         e.rec.ID,
			AssetID:    e.rec.AssetID,
			AssetType:  e.rec.AssetType,
			FrameIndex: e.rec.FrameIndex,
			Score:      InnerProduct(query, e.vec),
		})
	}
	// ties broken by id so results are stable across map iteration order
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Delete removes records by ID. Unknown IDs are ignored.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if _, ok := m.entries[id]; ok {
			delete(m.entries, id)
			m.dirty = true
		}
	}
	return nil
}

// DeleteByAsset removes every record that belongs to assetID.
func (m *MemoryIndex) DeleteByAsset(ctx context.Context, assetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.rec.AssetID == assetID {
			delete(m.entries, id)
			m.dirty = true
		}
	}
	return nil
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// Dirty reports whether the index changed since it was last saved or loaded.
func (m *MemoryIndex) Dirty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirty
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}

// Save persists the index to path. Directory is created if needed. Format: magic (4),
// dimension (4), n (4), then per record: id, asset id, asset type as length-prefixed
// strings, frame index (4), vector (dimension*4 bytes). All integers little-endian.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.writeTo(w); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	m.dirty = false
	return nil
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	if _, err := io.WriteString(w, memoryIndexMagic); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(m.dimensions), uint32(len(m.entries))}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		e := m.entries[id]
		for _, s := range []string{e.rec.ID, e.rec.AssetID, string(e.rec.AssetType)} {
			if err := writeString(w, s); err != nil {
				return err
			}
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(e.rec.FrameIndex)); err != nil {
			return fmt.Errorf("write frame index: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(e.vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	magic := make([]byte, len(memoryIndexMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != memoryIndexMagic {
		return fmt.Errorf("not a vector index file: %s", path)
	}
	var header [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if int(header[0]) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", header[0], m.dimensions)
	}

	entries := make(map[string]*memEntry, header[1])
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < header[1]; i++ {
		var fields [3]string
		for j := range fields {
			if fields[j], err = readString(r); err != nil {
				return err
			}
		}
		var frame uint32
		if err := binary.Read(r, binary.LittleEndian, &frame); err != nil {
			return fmt.Errorf("read frame index: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		entries[fields[0]] = &memEntry{
			rec: models.VectorRecord{
				ID:         fields[0],
				AssetID:    fields[1],
				AssetType:  models.AssetType(fields[2]),
				FrameIndex: int(frame),
			},
			vec: bytesToFloat32Slice(buf),
		}
	}

	m.mu.Lock()
	m.entries = entries
	m.dirty = false
	m.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string len: %w", err)
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("read string len: %w", err)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
