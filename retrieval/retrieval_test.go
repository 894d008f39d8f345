package retrieval

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/euria/council-engine/embedding"
	"github.com/euria/council-engine/graph"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/vectorstore"
)

// fakeEmbedder produces a 2-dim vector per text: [digital signal,
// environment signal], letting tests assert on ranking without a live
// embedding backend.
type fakeEmbedder struct{}

func (fakeEmbedder) Name() string   { return "fake" }
func (fakeEmbedder) Dimension() int { return 2 }

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		digital := 0.0
		env := 0.0
		for _, kw := range []string{"ai", "governance", "data", "protection", "regulation"} {
			if strings.Contains(lower, kw) {
				digital++
			}
		}
		for _, kw := range []string{"biodiversity", "restoration", "environment"} {
			if strings.Contains(lower, kw) {
				env++
			}
		}
		v := embedding.Vector{digital, env}
		embedding.Normalize(v)
		out[i] = v
	}
	return out, nil
}

func mkChunk(content string, cat models.PolicyCategory) *models.Chunk {
	return &models.Chunk{
		ID:      uuid.New(),
		Kind:    models.ChunkCategory,
		Content: content,
		Metadata: models.ChunkMetadata{
			Categories: []models.PolicyCategory{cat},
		},
	}
}

func TestSmallHybridRetrievalScenario(t *testing.T) {
	store := vectorstore.New(fakeEmbedder{}, vectorstore.NewMemoryBackend())
	a := mkChunk("AI governance framework", models.CategoryDigital)
	b := mkChunk("biodiversity restoration", models.CategoryEnvironment)
	c := mkChunk("data protection", models.CategoryDigital)

	if err := store.Add(context.Background(), []*models.Chunk{a, b, c}); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := store.Search(context.Background(), "AI regulation", 2, vectorstore.ModeHybrid, vectorstore.DefaultWeights(), vectorstore.Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected top_k=2 hits, got %d", len(hits))
	}
	ids := map[string]bool{hits[0].Chunk.ID.String(): true, hits[1].Chunk.ID.String(): true}
	if !ids[a.ID.String()] || !ids[c.ID.String()] {
		t.Fatalf("expected A and C in top 2, got %v", hits)
	}
	if ids[b.ID.String()] {
		t.Fatalf("expected B (unrelated) absent from top 2, got %v", hits)
	}
}

func TestChooseStrategyGraphFirstForSpecialistCategory(t *testing.T) {
	g := graph.New()
	var chunks []*models.Chunk
	for i := 0; i < 51; i++ {
		chunks = append(chunks, mkChunk("digital policy text", models.CategoryDigital))
	}
	if err := g.BuildFromChunks(chunks); err != nil {
		t.Fatalf("build: %v", err)
	}
	features := QueryFeatures{CategoryTags: []models.PolicyCategory{models.CategoryDigital}}
	strategy := ChooseStrategy(features, true, true, g, "")
	if strategy != StrategyGraphFirst {
		t.Fatalf("expected graph_first for a >=50-chunk specialist category, got %s", strategy)
	}
}

func TestChooseStrategyVectorOnlyWithoutGraph(t *testing.T) {
	features := QueryFeatures{CategoryTags: []models.PolicyCategory{models.CategoryDigital}}
	strategy := ChooseStrategy(features, true, false, nil, "")
	if strategy != StrategyVectorOnly {
		t.Fatalf("expected vector_only without a graph, got %s", strategy)
	}
}

func TestQualityGateExpansionScenario(t *testing.T) {
	store := vectorstore.New(fakeEmbedder{}, vectorstore.NewMemoryBackend())
	var chunks []*models.Chunk
	for i := 0; i < 2; i++ {
		chunks = append(chunks, mkChunk("unrelated filler text", models.CategoryHealth))
	}
	if err := store.Add(context.Background(), chunks); err != nil {
		t.Fatalf("add: %v", err)
	}

	orch := DefaultOrchestrator(store, nil)
	bundle, err := orch.Retrieve(context.Background(), "AI governance regulation proposal", vectorstore.Filter{})
	if err == nil {
		t.Fatalf("expected insufficient-context error with only 2 unrelated chunks, got bundle %+v", bundle)
	}
	var insufficient *ErrInsufficientContext
	if e, ok := err.(*ErrInsufficientContext); ok {
		insufficient = e
	}
	if insufficient == nil {
		t.Fatalf("expected ErrInsufficientContext, got %v", err)
	}
	if !insufficient.Bundle.Expanded {
		t.Fatalf("expected the orchestrator to have attempted expansion")
	}
}
