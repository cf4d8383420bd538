// Package memstore is the persistent memory/experience store: atomic
// per-entity files on disk, three in-memory indices over memories (by
// type, by tag, by (timestamp,id)), and an optional shared vector index
// for semantic recall.
package memstore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/vector"
)

// MemoryType classifies a Memory per the cognitive graph's type system.
type MemoryType string

const (
	Episodic   MemoryType = "episodic"
	Semantic   MemoryType = "semantic"
	Procedural MemoryType = "procedural"
)

// Memory is the value-copy shape persisted and indexed by this package.
// The cognitive graph owns the authoritative, mutable instance; memstore
// only ever holds and persists copies of it.
type Memory struct {
	ID           int64
	MemoryType   MemoryType
	Content      string
	Tags         []string
	Strength     float64
	AccessCount  int64
	LastAccessed time.Time
	CreatedAt    time.Time
	Associations []int64
	Embedding    []float32 // nil when the memory has no embedding
}

// Experience is the value-copy shape persisted for experiences.
type Experience struct {
	ID          int64
	EventType   string
	Observation string
	Action      string // empty when absent
	Outcome     string // empty when absent
	HasReward   bool
	Reward      float64
	Embedding   []float32
	Complexity  float64
	HasEntropy  bool
	Entropy     float64
	Modality    string
}

type temporalKey struct {
	ts time.Time
	id int64
}

type onDiskTemporalEntry struct {
	ID int64     `msgpack:"id"`
	Ts time.Time `msgpack:"ts"`
}

type onDiskIndex struct {
	ByType   map[MemoryType][]int64 `msgpack:"by_type"`
	ByTag    map[string][]int64     `msgpack:"by_tag"`
	Temporal []onDiskTemporalEntry  `msgpack:"temporal_index"` // ordered by (timestamp,id)
}

// Store persists memories and experiences under basePath and maintains the
// by-type/by-tag/temporal indices described for the persistent memory
// store. When a vector index is attached, memories with an embedding are
// added to it under their id; the {memory_id, memory_type} metadata for
// each indexed embedding is kept in the store's own map.
type Store struct {
	basePath string
	index    *vector.Flat // shared semantic index; nil disables embedding search

	mu           sync.RWMutex
	byType       map[MemoryType][]int64
	byTag        map[string][]int64
	temporal     []temporalKey
	cache        map[int64]*Memory
	embedMeta    map[int64]embedMetadata
	experienceMu sync.RWMutex
	experiences  map[int64]*Experience
}

type embedMetadata struct {
	MemoryID   int64
	MemoryType MemoryType
}

// NewStore creates or opens a memory store rooted at basePath. If an
// index.bin file exists it is loaded; memories themselves are lazy-loaded
// on first access (Get), with per-item load failures logged and skipped.
func NewStore(basePath string, index *vector.Flat) (*Store, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, cdberr.Wrap(cdberr.Storage, "create memstore base path", err)
	}

	s := &Store{
		basePath:  basePath,
		index:     index,
		byType:    make(map[MemoryType][]int64),
		byTag:     make(map[string][]int64),
		cache:     make(map[int64]*Memory),
		embedMeta: make(map[int64]embedMetadata),
		experiences: make(map[int64]*Experience),
	}

	if err := s.loadIndexFile(); err != nil && !os.IsNotExist(err) {
		return nil, cdberr.Wrap(cdberr.Storage, "load memstore index", err)
	}
	return s, nil
}

func (s *Store) memoryPath(id int64) string {
	return filepath.Join(s.basePath, fmt.Sprintf("memory_%d.bin", id))
}

func (s *Store) experiencePath(id int64) string {
	return filepath.Join(s.basePath, fmt.Sprintf("experience_%d.bin", id))
}

func (s *Store) indexPath() string {
	return filepath.Join(s.basePath, "index.bin")
}

// StoreMemory serializes m to an atomic temp+rename file, updates the
// in-memory indices and cache, and (if m has an embedding) adds it to the
// shared vector index under m's id, recording {memory_id, memory_type}
// metadata for it in the store.
func (s *Store) StoreMemory(m *Memory) error {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return cdberr.Wrap(cdberr.Serialization, "encode memory", err)
	}
	if err := writeAtomically(s.memoryPath(m.ID), data); err != nil {
		return cdberr.Wrap(cdberr.Storage, "write memory file", err)
	}

	s.mu.Lock()
	s.cache[m.ID] = m
	s.byType[m.MemoryType] = appendUnique(s.byType[m.MemoryType], m.ID)
	for _, tag := range m.Tags {
		s.byTag[tag] = appendUnique(s.byTag[tag], m.ID)
	}
	indexed := false
	for _, k := range s.temporal {
		if k.id == m.ID {
			indexed = true
			break
		}
	}
	if !indexed {
		s.temporal = append(s.temporal, temporalKey{ts: m.CreatedAt, id: m.ID})
		sort.Slice(s.temporal, func(i, j int) bool {
			if !s.temporal[i].ts.Equal(s.temporal[j].ts) {
				return s.temporal[i].ts.Before(s.temporal[j].ts)
			}
			return s.temporal[i].id < s.temporal[j].id
		})
	}
	if len(m.Embedding) > 0 {
		s.embedMeta[m.ID] = embedMetadata{MemoryID: m.ID, MemoryType: m.MemoryType}
	}
	s.mu.Unlock()

	if s.index != nil && len(m.Embedding) > 0 {
		if err := s.index.Add(m.ID, m.Embedding); err != nil {
			return err
		}
	}

	return s.saveIndexFile()
}

// StoreExperience serializes e to an atomic temp+rename file. Experiences
// are not part of the by-type/by-tag/temporal indices (those are
// memory-specific); they are looked up only by id.
func (s *Store) StoreExperience(e *Experience) error {
	data, err := msgpack.Marshal(e)
	if err != nil {
		return cdberr.Wrap(cdberr.Serialization, "encode experience", err)
	}
	if err := writeAtomically(s.experiencePath(e.ID), data); err != nil {
		return cdberr.Wrap(cdberr.Storage, "write experience file", err)
	}
	s.experienceMu.Lock()
	s.experiences[e.ID] = e
	s.experienceMu.Unlock()
	return nil
}

// GetMemory returns the memory by id, lazily loading it from disk on a
// cache miss. A load failure is logged and reported as NotFound, matching
// the store's log-and-continue policy for individual item failures.
func (s *Store) GetMemory(id int64) (*Memory, error) {
	s.mu.RLock()
	if m, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return m, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.memoryPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cdberr.ErrNotFound
		}
		log.Printf("memstore: failed to read memory %d: %v", id, err)
		return nil, cdberr.ErrNotFound
	}

	var m Memory
	if err := msgpack.Unmarshal(data, &m); err != nil {
		log.Printf("memstore: failed to decode memory %d: %v", id, err)
		return nil, cdberr.ErrNotFound
	}

	s.mu.Lock()
	s.cache[id] = &m
	s.mu.Unlock()
	return &m, nil
}

// GetExperience returns the experience by id from cache or disk.
func (s *Store) GetExperience(id int64) (*Experience, error) {
	s.experienceMu.RLock()
	if e, ok := s.experiences[id]; ok {
		s.experienceMu.RUnlock()
		return e, nil
	}
	s.experienceMu.RUnlock()

	data, err := os.ReadFile(s.experiencePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cdberr.ErrNotFound
		}
		log.Printf("memstore: failed to read experience %d: %v", id, err)
		return nil, cdberr.ErrNotFound
	}
	var e Experience
	if err := msgpack.Unmarshal(data, &e); err != nil {
		log.Printf("memstore: failed to decode experience %d: %v", id, err)
		return nil, cdberr.ErrNotFound
	}
	s.experienceMu.Lock()
	s.experiences[id] = &e
	s.experienceMu.Unlock()
	return &e, nil
}

// ByType returns all memory ids of the given type.
func (s *Store) ByType(t MemoryType) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.byType[t]))
	copy(out, s.byType[t])
	return out
}

// ByTag returns all memory ids carrying the given tag.
func (s *Store) ByTag(tag string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.byTag[tag]))
	copy(out, s.byTag[tag])
	return out
}

// Temporal returns all memory ids ordered by (created_at, id) ascending.
func (s *Store) Temporal() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, len(s.temporal))
	for i, k := range s.temporal {
		out[i] = k.id
	}
	return out
}

// SemanticSearch runs the shared vector index's search for query and
// hydrates each hit into a Memory, skipping (and logging) any hit whose
// backing memory cannot be loaded.
func (s *Store) SemanticSearch(query []float32, k int) ([]*Memory, error) {
	if s.index == nil {
		return nil, cdberr.New(cdberr.Query, "memstore has no attached vector index")
	}
	hits, err := s.index.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]*Memory, 0, len(hits))
	for _, h := range hits {
		m, err := s.GetMemory(h.ID)
		if err != nil {
			log.Printf("memstore: semantic search hit %d could not be hydrated: %v", h.ID, err)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (s *Store) saveIndexFile() error {
	s.mu.RLock()
	idx := onDiskIndex{
		ByType:   copyTypeIndex(s.byType),
		ByTag:    copyTagIndex(s.byTag),
		Temporal: make([]onDiskTemporalEntry, len(s.temporal)),
	}
	for i, k := range s.temporal {
		idx.Temporal[i] = onDiskTemporalEntry{ID: k.id, Ts: k.ts}
	}
	s.mu.RUnlock()

	data, err := msgpack.Marshal(idx)
	if err != nil {
		return cdberr.Wrap(cdberr.Serialization, "encode memstore index", err)
	}
	return writeAtomically(s.indexPath(), data)
}

func copyTypeIndex(m map[MemoryType][]int64) map[MemoryType][]int64 {
	out := make(map[MemoryType][]int64, len(m))
	for k, v := range m {
		cp := make([]int64, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

func copyTagIndex(m map[string][]int64) map[string][]int64 {
	out := make(map[string][]int64, len(m))
	for k, v := range m {
		cp := make([]int64, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// loadIndexFile loads index.bin at startup. Memories themselves are not
// read here; GetMemory lazy-loads on first access per entity.
func (s *Store) loadIndexFile() error {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		return err
	}
	var idx onDiskIndex
	if err := msgpack.Unmarshal(data, &idx); err != nil {
		return cdberr.Wrap(cdberr.Deserialization, "decode memstore index", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idx.ByType != nil {
		s.byType = idx.ByType
	}
	if idx.ByTag != nil {
		s.byTag = idx.ByTag
	}
	s.temporal = make([]temporalKey, 0, len(idx.Temporal))
	for _, entry := range idx.Temporal {
		s.temporal = append(s.temporal, temporalKey{id: entry.ID, ts: entry.Ts})
	}
	return nil
}

func writeAtomically(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
