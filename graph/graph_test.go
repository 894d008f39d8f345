package graph

import (
	"testing"

	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
)

func mkChunk(kind models.ChunkKind, content, docID string, cats ...models.PolicyCategory) *models.Chunk {
	return &models.Chunk{
		ID:               uuid.New(),
		Kind:             kind,
		Content:          content,
		SourceDocumentID: docID,
		Metadata: models.ChunkMetadata{
			Categories: cats,
		},
	}
}

func TestBuildFromChunksLinksCategoryAndDocument(t *testing.T) {
	g := New()
	a := mkChunk(models.ChunkCategory, "AI governance framework", "doc1", models.CategoryDigital)
	b := mkChunk(models.ChunkAnalysis, "cost benefit analysis of the regulation", "doc1", models.CategoryDigital)

	if err := g.BuildFromChunks([]*models.Chunk{a, b}); err != nil {
		t.Fatalf("build: %v", err)
	}

	ids := g.ChunksByCategory(models.CategoryDigital, 10)
	if len(ids) != 2 {
		t.Fatalf("expected 2 chunks under Digital, got %v", ids)
	}
}

func TestChunksByCategoryOrdersByOverlapThenID(t *testing.T) {
	g := New()
	a := mkChunk(models.ChunkCategory, "alpha", "doc1", models.CategoryDigital)
	b := mkChunk(models.ChunkCategory, "beta", "doc1", models.CategoryDigital, models.CategoryHealth)
	if err := g.BuildFromChunks([]*models.Chunk{a, b}); err != nil {
		t.Fatalf("build: %v", err)
	}
	ids := g.ChunksByCategory(models.CategoryDigital, 10)
	if len(ids) != 2 || ids[0] != b.ID.String() {
		t.Fatalf("expected b (higher overlap) first, got %v", ids)
	}
}

func TestRelatedTerminatesAndExcludesSelf(t *testing.T) {
	g := New()
	a := mkChunk(models.ChunkEvidence, "evidence text", "doc1", models.CategoryDigital)
	b := mkChunk(models.ChunkAnalysis, "cost benefit analysis", "doc1", models.CategoryDigital)
	a.SourceDocumentID = "doc1"
	b.SourceDocumentID = "doc1"
	if err := g.BuildFromChunks([]*models.Chunk{a, b}); err != nil {
		t.Fatalf("build: %v", err)
	}

	related := g.Related(a.ID.String(), 2)
	for _, id := range related {
		if id == a.ID.String() {
			t.Fatalf("related set must not include the seed itself: %v", related)
		}
	}
	found := false
	for _, id := range related {
		if id == b.ID.String() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected evidence->analysis edge to surface b, got %v", related)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	g := New()
	a := mkChunk(models.ChunkCategory, "alpha", "doc1", models.CategoryDigital)
	if err := g.BuildFromChunks([]*models.Chunk{a}); err != nil {
		t.Fatalf("build: %v", err)
	}
	path := t.TempDir() + "/graph.json"
	if err := g.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.HasChunk(a.ID.String()) {
		t.Fatalf("expected loaded graph to retain chunk %s", a.ID)
	}
}

func TestCategoryChunkCountForSpecialistCheck(t *testing.T) {
	g := New()
	var chunks []*models.Chunk
	for i := 0; i < 3; i++ {
		chunks = append(chunks, mkChunk(models.ChunkCategory, "text", "doc1", models.CategoryDigital))
	}
	if err := g.BuildFromChunks(chunks); err != nil {
		t.Fatalf("build: %v", err)
	}
	if n := g.CategoryChunkCount(models.CategoryDigital); n != 3 {
		t.Fatalf("expected 3 chunks under Digital, got %d", n)
	}
}
