package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ChunkKind distinguishes the three retrievable content shapes (spec §3).
type ChunkKind string

const (
	ChunkCategory ChunkKind = "category"
	ChunkAnalysis ChunkKind = "analysis"
	ChunkEvidence ChunkKind = "evidence"
)

// ChunkMetadata carries the typed tags a Chunk is indexed and filtered by.
type ChunkMetadata struct {
	Jurisdiction string           `json:"jurisdiction"`
	DocumentType string           `json:"document_type"`
	Year         int              `json:"year"`
	Categories   []PolicyCategory `json:"categories"`
	AnalysisType string           `json:"analysis_type,omitempty"`
	EvidenceType string           `json:"evidence_type,omitempty"`
	ImpactType   string           `json:"impact_type,omitempty"`
}

// Chunk is the atomic unit of retrievable content (spec §3).
type Chunk struct {
	ID               uuid.UUID     `json:"id"`
	Kind             ChunkKind     `json:"kind"`
	Content          string        `json:"content"`
	Metadata         ChunkMetadata `json:"metadata"`
	Position         string        `json:"position"`
	SourceDocumentID string        `json:"source_document_id"`
	TokenCount       int           `json:"token_count"`
}

var (
	ErrEmptyChunkContent       = errors.New("chunk content is empty after normalization")
	ErrInvalidChunkCategory    = errors.New("chunk category outside closed set")
	ErrEvidenceMissingDocument = errors.New("evidence chunk missing source document id")
)

// NormalizeContent trims and collapses internal whitespace the way the
// teacher's prompt-assembly helpers in service/draft_service.go do before
// ever persisting or embedding text.
func NormalizeContent(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// Validate enforces the chunk invariants from spec §3: non-empty content,
// categories drawn from the closed set, and evidence chunks carrying a
// source document reference.
func (c *Chunk) Validate() error {
	c.Content = NormalizeContent(c.Content)
	if c.Content == "" {
		return ErrEmptyChunkContent
	}
	for _, cat := range c.Metadata.Categories {
		if !IsValidCategory(cat) {
			return ErrInvalidChunkCategory
		}
	}
	if c.Kind == ChunkEvidence && c.SourceDocumentID == "" {
		return ErrEvidenceMissingDocument
	}
	return nil
}

// ContentHash is the normalized-content hash used for idempotent adds and
// knowledge-base update deduplication (spec §3, §9).
func (c *Chunk) ContentHash() string {
	sum := sha256.Sum256([]byte(NormalizeContent(c.Content)))
	return hex.EncodeToString(sum[:])
}

// HasCategory reports whether the chunk is tagged with cat.
func (c *Chunk) HasCategory(cat PolicyCategory) bool {
	for _, v := range c.Metadata.Categories {
		if v == cat {
			return true
		}
	}
	return false
}

// CategoryOverlap counts how many categories two chunks share — used by
// C4's centrality proxy (spec §4.4) and by related-chunk ordering.
func (c *Chunk) CategoryOverlap(other *Chunk) int {
	n := 0
	for _, cat := range c.Metadata.Categories {
		if other.HasCategory(cat) {
			n++
		}
	}
	return n
}
