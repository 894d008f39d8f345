// Command build-index runs C1/C3/C4's offline ingestion path: it reads a
// directory of plain-text legal/regulatory source documents, splits each
// into chunks, tags them against the closed policy-category set by
// keyword signature, embeds them, and writes the resulting vector store,
// BM25 index, and knowledge graph to disk (optionally uploading the
// snapshot to durable storage). Grounded on cmd/build-embeddings's
// chunk -> embed -> store pipeline shape, restructured onto the embedding
// (C1), sparseindex (C2), vectorstore (C3), and graph (C4) packages
// instead of raw Gemini REST calls and direct pgx inserts.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/euria/council-engine/config"
	"github.com/euria/council-engine/embedding"
	"github.com/euria/council-engine/graph"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/storage"
	"github.com/euria/council-engine/vectorstore"
)

func main() {
	corpusDir := flag.String("corpus", "./corpus", "directory of .txt source documents to ingest")
	indexPath := flag.String("out", "./data/index", "path prefix for the persisted vector store/graph/BM25 snapshot")
	configPath := flag.String("config", "", "path to config.yaml (defaults to config.LoadDefault search path)")
	flag.Parse()

	cfg, source, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("build-index: load config: %v", err)
	}
	log.Printf("build-index: loaded configuration from %s", source)

	apiKey := cfg.GeminiAPIKey
	if apiKey == "" {
		log.Fatal("build-index: GEMINI_API_KEY is required")
	}

	embedder := embedding.NewRetryingProvider(
		embedding.NewGeminiProvider(apiKey, cfg.Embedding.Model, cfg.Embedding.Dimension),
		embedding.DefaultRetryConfig(),
	)

	backend := vectorstore.NewMemoryBackend()
	store := vectorstore.New(embedder, backend)
	g := graph.New()

	chunks, err := ingestDirectory(*corpusDir)
	if err != nil {
		log.Fatalf("build-index: ingest %s: %v", *corpusDir, err)
	}
	log.Printf("build-index: chunked %d documents into %d chunks", countDocuments(chunks), len(chunks))

	ctx := context.Background()
	const batchSize = 32
	for i := 0; i < len(chunks); i += batchSize {
		end := i + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		if err := store.Add(ctx, batch); err != nil {
			log.Fatalf("build-index: embed batch %d-%d: %v", i, end, err)
		}
		log.Printf("build-index: embedded %d/%d chunks", end, len(chunks))
	}

	if err := g.BuildFromChunks(chunks); err != nil {
		log.Fatalf("build-index: build graph: %v", err)
	}
	stats := g.Statistics()
	log.Printf("build-index: graph built with %d nodes, %d edges", stats.TotalNodes, stats.TotalEdges)

	if err := os.MkdirAll(filepath.Dir(*indexPath), 0o755); err != nil {
		log.Fatalf("build-index: create output directory: %v", err)
	}
	if err := store.Persist(*indexPath); err != nil {
		log.Fatalf("build-index: persist vector store: %v", err)
	}
	if err := g.Persist(*indexPath + ".graph"); err != nil {
		log.Fatalf("build-index: persist graph: %v", err)
	}
	log.Printf("build-index: wrote snapshot to %s{,.bm25,.vectors,.graph}", *indexPath)

	if err := backupSnapshot(cfg, *indexPath); err != nil {
		log.Printf("build-index: warning: snapshot backup failed: %v", err)
	}
}

// backupSnapshot uploads the local snapshot files to S3 when the
// configured storage type is "s3", so a fresh server instance can recover
// the index without re-running ingestion; for any other storage type it
// does nothing and the snapshot exists only on local disk (spec
// §4.3/§4.4's persistence requirement, generalized from
// storage.Storage's per-file upload interface to whole-snapshot backup).
func backupSnapshot(cfg *config.Config, indexPath string) error {
	if cfg.Storage.Type != "s3" {
		return nil
	}
	backend, err := storage.NewStorage(storage.StorageConfig{
		Type:     storage.StorageTypeS3,
		S3Bucket: cfg.Storage.S3Bucket,
		S3Region: cfg.Storage.S3Region,
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, suffix := range []string{"", ".bm25", ".vectors", ".graph"} {
		path := indexPath + suffix
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		storagePath, err := backend.Upload(ctx, uuid.New(), filepath.Base(path), f)
		f.Close()
		if err != nil {
			return err
		}
		log.Printf("build-index: backed up %s to %s", path, storagePath)
	}
	return nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg.ApplyEnvOverrides()
		return cfg, path, nil
	}
	cfg, source, err := config.LoadDefault()
	if err != nil {
		return nil, "", err
	}
	cfg.ApplyEnvOverrides()
	return cfg, source, nil
}

// ingestDirectory walks corpusDir for .txt files and chunks each one.
func ingestDirectory(dir string) ([]*models.Chunk, error) {
	var out []*models.Chunk
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		chunks := chunkDocument(entry.Name(), string(data))
		out = append(out, chunks...)
	}
	return out, nil
}

// chunkDocument splits a document on blank lines into paragraph-sized
// chunks, tagging each with the policy categories whose keyword
// signatures (models.EUDomainKeywords) it matches — the same
// domain-keyword approach the chunking pipeline's prompt-based
// categorization approximates without requiring a model round trip per
// chunk during ingestion.
func chunkDocument(filename, content string) []*models.Chunk {
	docID := strings.TrimSuffix(filename, filepath.Ext(filename))
	docType := determineDocumentType(filename)

	var chunks []*models.Chunk
	paragraphs := strings.Split(content, "\n\n")
	position := 0
	for _, p := range paragraphs {
		text := models.NormalizeContent(p)
		if text == "" || len(strings.Fields(text)) < 20 {
			continue
		}
		position++
		c := &models.Chunk{
			ID:               uuid.New(),
			Kind:             models.ChunkEvidence,
			Content:          text,
			SourceDocumentID: docID,
			Position:         docID + "#" + strconv.Itoa(position),
			Metadata: models.ChunkMetadata{
				DocumentType: docType,
				Categories:   categorize(text),
			},
			TokenCount: len(strings.Fields(text)),
		}
		if err := c.Validate(); err != nil {
			continue
		}
		chunks = append(chunks, c)
	}
	return chunks
}

func determineDocumentType(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.Contains(lower, "regulation"):
		return "regulation"
	case strings.Contains(lower, "precedent"), strings.Contains(lower, "case"):
		return "precedent"
	case strings.Contains(lower, "appeal"):
		return "appeal"
	default:
		return "general"
	}
}

// categorize scores text against every category's keyword list and keeps
// every category with at least one hit, capped to the three strongest
// matches so a generic document doesn't get tagged against the entire
// closed set.
func categorize(text string) []models.PolicyCategory {
	lower := strings.ToLower(text)
	type scored struct {
		cat   models.PolicyCategory
		score int
	}
	var hits []scored
	for _, cat := range models.PolicyCategories {
		count := 0
		for _, kw := range models.EUDomainKeywords[cat] {
			count += strings.Count(lower, kw)
		}
		if count > 0 {
			hits = append(hits, scored{cat, count})
		}
	}
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].score > hits[i].score {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if len(hits) > 3 {
		hits = hits[:3]
	}
	cats := make([]models.PolicyCategory, len(hits))
	for i, h := range hits {
		cats[i] = h.cat
	}
	return cats
}

func countDocuments(chunks []*models.Chunk) int {
	seen := make(map[string]struct{})
	for _, c := range chunks {
		seen[c.SourceDocumentID] = struct{}{}
	}
	return len(seen)
}
