package vectorstore

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/euria/council-engine/embedding"
)

// MemoryBackend is a brute-force cosine-similarity dense backend, grounded
// on kxddry-rag-text-search/internal/vectorstore/memory/memory.go's
// in-memory store (same technique: linear scan + sort, reused here for
// determinism in tests and small deployments).
type MemoryBackend struct {
	vectors map[string]embedding.Vector
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{vectors: make(map[string]embedding.Vector)}
}

func (m *MemoryBackend) Upsert(ctx context.Context, id string, vec embedding.Vector) error {
	m.vectors[id] = vec
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, id string) error {
	delete(m.vectors, id)
	return nil
}

func (m *MemoryBackend) Search(ctx context.Context, query embedding.Vector, candidateIDs []string, topM int) ([]DenseResult, error) {
	results := make([]DenseResult, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		v, ok := m.vectors[id]
		if !ok {
			continue
		}
		results = append(results, DenseResult{ID: id, Score: embedding.CosineSimilarity(query, v)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topM {
		results = results[:topM]
	}
	return results, nil
}

type persistedMemoryBackend struct {
	Vectors map[string]embedding.Vector `json:"vectors"`
}

// Persist atomically writes the backend's vectors (write-new-then-rename,
// spec §4.3).
func (m *MemoryBackend) Persist(path string) error {
	data, err := json.Marshal(persistedMemoryBackend{Vectors: m.vectors})
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadMemoryBackend reconstructs a MemoryBackend from a blob written by
// Persist.
func LoadMemoryBackend(path string) (*MemoryBackend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p persistedMemoryBackend
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Vectors == nil {
		p.Vectors = make(map[string]embedding.Vector)
	}
	return &MemoryBackend{vectors: p.Vectors}, nil
}
