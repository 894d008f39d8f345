// Package vectorstore implements C3: a unified hybrid search over dense
// embeddings (embedding.Provider) and lexical scores (sparseindex.Index)
// with a metadata catalog, grounded on repository/legal_chunk_repository.go's
// SearchByCriterion shape and original_source/backend/vector_store.py's
// hybrid-combination and filter semantics.
package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/euria/council-engine/embedding"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/sparseindex"
)

// Mode selects which signal(s) contribute to a search's score.
type Mode string

const (
	ModeDense  Mode = "dense"
	ModeSparse Mode = "sparse"
	ModeHybrid Mode = "hybrid"
)

// Weights controls the hybrid combination; DenseWeight+SparseWeight should
// sum to 1 in the default configuration (spec §8).
type Weights struct {
	DenseWeight  float64
	SparseWeight float64
}

func DefaultWeights() Weights {
	return Weights{DenseWeight: 0.7, SparseWeight: 0.3}
}

// clamp enforces non-negative weights and the mode-forces-zero rule from
// spec §8 ("mode dense => sparse_weight=0 internally and vice versa").
func (w Weights) clamp(mode Mode) Weights {
	if w.DenseWeight < 0 {
		w.DenseWeight = 0
	}
	if w.SparseWeight < 0 {
		w.SparseWeight = 0
	}
	switch mode {
	case ModeDense:
		w.SparseWeight = 0
	case ModeSparse:
		w.DenseWeight = 0
	}
	return w
}

// Filter is a conjunction over metadata keys; list values mean "any of"
// (spec §4.3).
type Filter struct {
	Jurisdiction string
	DocumentType string
	YearMin      int
	YearMax      int
	Categories   []models.PolicyCategory // any-of
}

func (f Filter) empty() bool {
	return f.Jurisdiction == "" && f.DocumentType == "" && f.YearMin == 0 && f.YearMax == 0 && len(f.Categories) == 0
}

func (f Filter) matches(c *models.Chunk) bool {
	if f.Jurisdiction != "" && !strings.EqualFold(c.Metadata.Jurisdiction, f.Jurisdiction) {
		return false
	}
	if f.DocumentType != "" && !strings.EqualFold(c.Metadata.DocumentType, f.DocumentType) {
		return false
	}
	if f.YearMin != 0 && c.Metadata.Year < f.YearMin {
		return false
	}
	if f.YearMax != 0 && c.Metadata.Year > f.YearMax {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, want := range f.Categories {
			if c.HasCategory(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Hit is one scored search result.
type Hit struct {
	Chunk       *models.Chunk
	Score       float64
	DenseScore  float64
	SparseScore float64
}

// Store unifies C1+C2 with a metadata catalog over an in-process entry set.
// A pluggable Backend handles dense-vector persistence/search; the BM25
// index and metadata catalog live in-process regardless of backend.
type Store struct {
	embedder embedding.Provider
	bm25     *sparseindex.Index
	backend  Backend
	entries  map[string]*models.Chunk
	order    []string // insertion order, for deterministic iteration
}

// Backend is the pluggable dense-vector layer: in-memory for tests and
// small deployments, Postgres/pgvector for production (see postgres.go and
// memory.go).
type Backend interface {
	Upsert(ctx context.Context, id string, vec embedding.Vector) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query embedding.Vector, candidateIDs []string, topM int) ([]DenseResult, error)
}

// DenseResult is a backend's raw dense-similarity result, pre-hybrid-merge.
type DenseResult struct {
	ID    string
	Score float64
}

func New(embedder embedding.Provider, backend Backend) *Store {
	return &Store{
		embedder: embedder,
		bm25:     sparseindex.New(),
		backend:  backend,
		entries:  make(map[string]*models.Chunk),
	}
}

// Add embeds, tokenizes, and records metadata for each chunk; idempotent by
// id (spec §4.3). Embedding failures roll back the whole batch so the
// store is never left half-updated.
func (s *Store) Add(ctx context.Context, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid chunk %s: %w", c.ID, err)
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch during add: %w", err)
	}

	for i, c := range chunks {
		id := c.ID.String()
		if err := s.backend.Upsert(ctx, id, vecs[i]); err != nil {
			return fmt.Errorf("dense upsert for chunk %s: %w", id, err)
		}
		s.bm25.Add(id, sparseindex.Tokenize(c.Content))
		if _, exists := s.entries[id]; !exists {
			s.order = append(s.order, id)
		}
		s.entries[id] = c
	}
	return nil
}

// Search implements spec §4.3's search(query, top_k, mode, weights, filter).
func (s *Store) Search(ctx context.Context, query string, topK int, mode Mode, weights Weights, filter Filter) ([]Hit, error) {
	if len(s.entries) == 0 {
		return []Hit{}, nil
	}
	if mode == "" {
		mode = ModeHybrid
	}
	weights = weights.clamp(mode)

	queryTokens := sparseindex.Tokenize(query)
	var queryVec embedding.Vector
	if mode != ModeSparse {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, fmt.Errorf("embedding query: %w", err)
		}
		queryVec = vecs[0]
	}

	m := 5 * topK
	if m < topK {
		m = topK
	}

	candidateIDs := s.order
	var scored []Hit
	attempts := 0
	for {
		attempts++
		scored = s.scoreCandidates(ctx, queryVec, queryTokens, candidateIDs, mode, weights, filter, m)
		if len(scored) >= topK || attempts > 1 || len(candidateIDs) >= len(s.order) {
			break
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].DenseScore != scored[j].DenseScore {
			return scored[i].DenseScore > scored[j].DenseScore
		}
		return scored[i].Chunk.ID.String() < scored[j].Chunk.ID.String()
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (s *Store) scoreCandidates(ctx context.Context, queryVec embedding.Vector, queryTokens []string, candidateIDs []string, mode Mode, weights Weights, filter Filter, topM int) []Hit {
	var dense []DenseResult
	if mode != ModeSparse {
		dense, _ = s.backend.Search(ctx, queryVec, candidateIDs, topM)
	}

	denseByID := make(map[string]float64, len(dense))
	var order []string
	for _, d := range dense {
		denseByID[d.ID] = d.Score
		order = append(order, d.ID)
	}
	if mode == ModeSparse || len(order) == 0 {
		order = candidateIDs
	}

	hits := make([]Hit, 0, len(order))
	for _, id := range order {
		c, ok := s.entries[id]
		if !ok {
			continue
		}
		if !filter.empty() && !filter.matches(c) {
			continue
		}
		denseScore := denseByID[id]
		sparseScore := 0.0
		if mode != ModeDense {
			sparseScore = s.bm25.ScoreOne(id, queryTokens)
		}
		score := weights.DenseWeight*denseScore + weights.SparseWeight*sparseScore
		hits = append(hits, Hit{Chunk: c, Score: score, DenseScore: denseScore, SparseScore: sparseScore})
		if len(hits) >= topM {
			break
		}
	}
	return hits
}

// persistedStore is the on-disk snapshot shape for spec §6's vector store
// artifacts: metadata and entries. Dense vectors and the BM25 index are
// written to sibling files so each can be atomically swapped independently
// (spec §5: "the new combined state is written to a staging blob and the
// pointer is swapped").
type persistedStore struct {
	Entries []*models.Chunk `json:"entries"`
	Order   []string        `json:"order"`
}

// backendPersister is implemented by backends that hold vectors in-process
// and therefore need an explicit snapshot (MemoryBackend); PostgresBackend
// is already durable and does not implement it.
type backendPersister interface {
	Persist(path string) error
}

// Persist atomically writes the store's metadata, entry set, and BM25 index
// (write-new-then-rename), plus the dense backend's own vectors when the
// backend is itself snapshot-able (spec §4.3, §6).
func (s *Store) Persist(path string) error {
	p := persistedStore{Entries: make([]*models.Chunk, 0, len(s.order)), Order: s.order}
	for _, id := range s.order {
		p.Entries = append(p.Entries, s.entries[id])
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal vector store snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write vector store snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename vector store snapshot: %w", err)
	}
	if err := s.bm25.Persist(path + ".bm25"); err != nil {
		return fmt.Errorf("persist bm25 index: %w", err)
	}
	if bp, ok := s.backend.(backendPersister); ok {
		if err := bp.Persist(path + ".vectors"); err != nil {
			return fmt.Errorf("persist dense backend: %w", err)
		}
	}
	return nil
}

// Load reconstructs a Store previously written by Persist. The caller
// supplies the embedder and backend exactly as with New; when backend is a
// *MemoryBackend its vectors are reloaded from path+".vectors", mirroring
// graph.Load's own-reconstruct shape.
func Load(path string, embedder embedding.Provider, backend Backend) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vector store snapshot: %w", err)
	}
	var p persistedStore
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal vector store snapshot: %w", err)
	}
	bm25, err := sparseindex.Load(path + ".bm25")
	if err != nil {
		return nil, fmt.Errorf("load bm25 index: %w", err)
	}
	if mb, ok := backend.(*MemoryBackend); ok {
		loaded, err := LoadMemoryBackend(path + ".vectors")
		if err != nil {
			return nil, fmt.Errorf("load dense backend: %w", err)
		}
		*mb = *loaded
	}
	s := &Store{
		embedder: embedder,
		bm25:     bm25,
		backend:  backend,
		entries:  make(map[string]*models.Chunk, len(p.Entries)),
		order:    p.Order,
	}
	for _, c := range p.Entries {
		s.entries[c.ID.String()] = c
	}
	return s, nil
}

// Get returns a stored chunk by id, for citation validation (spec §8:
// "every emitted source citation refers to a chunk present in the corpus").
func (s *Store) Get(id string) (*models.Chunk, bool) {
	c, ok := s.entries[id]
	return c, ok
}

// Len reports the number of distinct chunks held by the store.
func (s *Store) Len() int { return len(s.entries) }
