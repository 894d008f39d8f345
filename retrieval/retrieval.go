// Package retrieval implements C5: strategy selection, concurrent
// vector/graph retrieval, merge+dedupe, a quality gate with expansion,
// and context synthesis. Grounded on
// original_source/backend/services/02_route_retrieval.py's strategy
// dispatch and service/draft_service.go's retrieveContext
// embed-then-typed-search orchestration shape.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/euria/council-engine/graph"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/vectorstore"
)

// Strategy is the closed set of retrieval routes spec §4.5 describes.
type Strategy string

const (
	StrategyVectorOnly Strategy = "vector_only"
	StrategyGraphOnly  Strategy = "graph_only"
	StrategyHybrid     Strategy = "hybrid"
	StrategyGraphFirst Strategy = "graph_first"
)

// Complexity buckets a proposal's query complexity.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// QueryFeatures is the output of feature extraction (spec §4.5.1).
type QueryFeatures struct {
	QueryText    string
	CategoryTags []models.PolicyCategory
	Complexity   Complexity
}

// synonymTable is the small synonym table spec §4.5 gestures at, made
// concrete via chunking_engine.py's EU_DOMAIN_KEYWORDS
// (models.EUDomainKeywords) plus a handful of short aliases.
var synonymTable = map[string]models.PolicyCategory{
	"ai":        models.CategoryDigital,
	"ecosystem": models.CategoryEnvironment,
	"gdpr":      models.CategoryDigital,
	"jobs":      models.CategoryEmployment,
	"climate":   models.CategoryEnvironment,
}

// ExtractFeatures classifies category tags by case-insensitive substring
// scan against the closed category set plus EUDomainKeywords and the
// synonym table, and buckets complexity by word count, per spec §4.5.1.
func ExtractFeatures(proposalText string) QueryFeatures {
	lower := strings.ToLower(proposalText)
	seen := make(map[models.PolicyCategory]bool)
	var tags []models.PolicyCategory

	add := func(c models.PolicyCategory) {
		if !seen[c] {
			seen[c] = true
			tags = append(tags, c)
		}
	}

	for _, cat := range models.PolicyCategories {
		if strings.Contains(lower, strings.ToLower(string(cat))) {
			add(cat)
		}
	}
	for cat, keywords := range models.EUDomainKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				add(cat)
				break
			}
		}
	}
	for alias, cat := range synonymTable {
		if strings.Contains(lower, alias) {
			add(cat)
		}
	}

	wordCount := len(strings.Fields(proposalText))
	complexity := ComplexityLow
	switch {
	case wordCount > 400:
		complexity = ComplexityHigh
	case wordCount > 150:
		complexity = ComplexityMedium
	}

	return QueryFeatures{QueryText: proposalText, CategoryTags: tags, Complexity: complexity}
}

// ChooseStrategy implements spec §4.5's four-way dispatch, following
// 02_route_retrieval.py's decision order (graph-first specialist check
// before falling back to hybrid).
func ChooseStrategy(features QueryFeatures, hasVectorIndex, hasGraph bool, g *graph.Graph, filterCategory models.PolicyCategory) Strategy {
	if !hasVectorIndex && hasGraph {
		return StrategyGraphOnly
	}
	if !hasGraph {
		return StrategyVectorOnly
	}

	classified := filterCategory
	if classified == "" && len(features.CategoryTags) > 0 {
		classified = features.CategoryTags[0]
	}
	if classified != "" && g != nil && g.CategoryChunkCount(classified) >= 50 {
		return StrategyGraphFirst
	}
	if len(features.CategoryTags) > 0 || filterCategory != "" {
		return StrategyHybrid
	}
	return StrategyHybrid
}

// ContextBundle is the labeled structured bundle §4.5.5 emits: hits
// grouped by kind, deduplicated, and truncated to a token budget.
type ContextBundle struct {
	Strategy     Strategy
	Groups       map[models.ChunkKind][]*models.Chunk
	Sources      []string // chunk ids cited, for §8's citation-validity property
	HitCount     int
	TopMeanScore float64
	Expanded     bool
}

// Sufficient reports whether the bundle passes the quality gate (spec
// §4.5.4): at least 5 hits and a top-5 mean score >= 0.35.
func (b *ContextBundle) Sufficient() bool {
	return b.HitCount >= 5 && b.TopMeanScore >= 0.35
}

// SynthesizedText flattens the bundle into the single excerpt string the
// council (C7) and section extractor (C8) consume as "synthesized
// context", grouped by chunk kind in a fixed order so the same bundle
// always serializes identically.
func (b *ContextBundle) SynthesizedText() string {
	var sb strings.Builder
	for _, kind := range []models.ChunkKind{models.ChunkCategory, models.ChunkAnalysis, models.ChunkEvidence} {
		chunks := b.Groups[kind]
		if len(chunks) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "== %s ==\n", kind)
		for _, c := range chunks {
			fmt.Fprintf(&sb, "[%s] %s\n", c.ID.String(), c.Content)
		}
	}
	return sb.String()
}

// mergedHit is one deduplicated candidate with normalized per-source
// scores, prior to grouping and truncation.
type mergedHit struct {
	chunk      *models.Chunk
	denseScore float64
	graphScore float64
}

func (m mergedHit) finalScore() float64 {
	if m.denseScore > m.graphScore {
		return m.denseScore
	}
	return m.graphScore
}

// Orchestrator executes the retrieval pipeline over a shared store+graph
// (spec §4.5), with a hard time budget on search per spec §5.
type Orchestrator struct {
	Store          *vectorstore.Store
	Graph          *graph.Graph
	TopK           int
	Weights        vectorstore.Weights
	TokenBudget    int
	SearchDeadline time.Duration
}

// DefaultOrchestrator wires spec §6's retrieval_defaults
// (top_k=10, dense_weight=0.7, sparse_weight=0.3) and §4.5's 8192-token
// context budget and §5's 5s search deadline.
func DefaultOrchestrator(store *vectorstore.Store, g *graph.Graph) *Orchestrator {
	return &Orchestrator{
		Store:          store,
		Graph:          g,
		TopK:           10,
		Weights:        vectorstore.DefaultWeights(),
		TokenBudget:    8192,
		SearchDeadline: 5 * time.Second,
	}
}

// ErrInsufficientContext surfaces a second consecutive quality-gate
// failure (spec §7: RetrievalInsufficient, second failure surfaces to the
// workflow).
type ErrInsufficientContext struct {
	Bundle *ContextBundle
}

func (e *ErrInsufficientContext) Error() string {
	return fmt.Sprintf("retrieval: insufficient context after expansion (%d hits, top-mean %.3f)", e.Bundle.HitCount, e.Bundle.TopMeanScore)
}

// Retrieve runs feature extraction, strategy dispatch, retrieval,
// merge+dedupe, the quality gate (with one expansion retry), and context
// synthesis (spec §4.5 steps 1-5).
func (o *Orchestrator) Retrieve(ctx context.Context, proposalText string, filter vectorstore.Filter) (*ContextBundle, error) {
	features := ExtractFeatures(proposalText)

	hasVectorIndex := o.Store != nil && o.Store.Len() > 0
	hasGraph := o.Graph != nil

	var filterCategory models.PolicyCategory
	if len(filter.Categories) > 0 {
		filterCategory = filter.Categories[0]
	}
	strategy := ChooseStrategy(features, hasVectorIndex, hasGraph, o.Graph, filterCategory)

	topK := o.TopK
	attemptFilter := filter
	var bundle *ContextBundle
	var err error

	for attempt := 0; attempt < 2; attempt++ {
		searchCtx, cancel := context.WithTimeout(ctx, o.SearchDeadline)
		bundle, err = o.retrieveOnce(searchCtx, strategy, features, topK, attemptFilter)
		cancel()
		if err != nil {
			return nil, err
		}
		if bundle.Sufficient() || attempt == 1 {
			bundle.Expanded = attempt == 1
			break
		}
		topK *= 2
		if attemptFilter.YearMin != 0 {
			attemptFilter.YearMin -= 2
		}
		if attemptFilter.YearMax != 0 {
			attemptFilter.YearMax += 2
		}
	}

	if !bundle.Sufficient() {
		return bundle, &ErrInsufficientContext{Bundle: bundle}
	}
	return bundle, nil
}

func (o *Orchestrator) retrieveOnce(ctx context.Context, strategy Strategy, features QueryFeatures, topK int, filter vectorstore.Filter) (*ContextBundle, error) {
	var vecHits []vectorstore.Hit
	var graphIDs []string
	var vecErr error

	runVector := strategy == StrategyVectorOnly || strategy == StrategyHybrid || strategy == StrategyGraphFirst
	runGraph := strategy == StrategyGraphOnly || strategy == StrategyHybrid || strategy == StrategyGraphFirst

	if runVector && runGraph && strategy == StrategyHybrid {
		done := make(chan struct{})
		go func() {
			defer close(done)
			vecHits, vecErr = o.Store.Search(ctx, features.QueryText, topK, vectorstore.ModeHybrid, o.Weights, filter)
		}()
		graphIDs = o.graphSearch(features, topK)
		<-done
	} else {
		if runGraph {
			graphIDs = o.graphSearch(features, topK)
		}
		if runVector {
			vecHits, vecErr = o.Store.Search(ctx, features.QueryText, topK, vectorstore.ModeHybrid, o.Weights, filter)
		}
	}
	if vecErr != nil {
		return nil, fmt.Errorf("vector search: %w", vecErr)
	}

	merged := o.mergeAndDedupe(vecHits, graphIDs)
	return o.synthesize(strategy, merged), nil
}

// graphSearch collects chunk ids category by category over the query's
// classified tags (up to topK per category), stopping once topK ids are
// gathered; it does not expand through related() for any strategy. The
// graph has no native similarity metric, so mergeAndDedupe gives these ids
// rank-based pseudo-scores (spec §4.4/§4.5).
func (o *Orchestrator) graphSearch(features QueryFeatures, topK int) []string {
	if o.Graph == nil || len(features.CategoryTags) == 0 {
		return nil
	}
	var ids []string
	for _, cat := range features.CategoryTags {
		ids = append(ids, o.Graph.ChunksByCategory(cat, topK)...)
		if len(ids) >= topK {
			break
		}
	}
	return ids
}

func graphRankScore(rank, total int) float64 {
	if total <= 1 {
		return 1.0
	}
	return 1.0 - float64(rank)/float64(total)
}

// mergeAndDedupe unions hits by chunk id; each hit's final score is the
// max of its dense-hybrid score (min-max normalized over the vector hits)
// and its graph rank score (1 - rank/total) (spec §4.5.3).
func (o *Orchestrator) mergeAndDedupe(vecHits []vectorstore.Hit, graphIDs []string) []mergedHit {
	byID := make(map[string]*mergedHit)
	order := make([]string, 0, len(vecHits)+len(graphIDs))

	denseMin, denseMax := minMax(scoresOf(vecHits))
	for _, h := range vecHits {
		id := h.Chunk.ID.String()
		if _, exists := byID[id]; !exists {
			order = append(order, id)
		}
		byID[id] = &mergedHit{chunk: h.Chunk, denseScore: normalize(h.Score, denseMin, denseMax)}
	}

	for i, id := range graphIDs {
		score := graphRankScore(i, len(graphIDs))
		if m, exists := byID[id]; exists {
			if score > m.graphScore {
				m.graphScore = score
			}
			continue
		}
		chunk, ok := o.Store.Get(id)
		if !ok {
			continue
		}
		byID[id] = &mergedHit{chunk: chunk, graphScore: score}
		order = append(order, id)
	}

	out := make([]mergedHit, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out
}

func scoresOf(hits []vectorstore.Hit) []float64 {
	out := make([]float64, len(hits))
	for i, h := range hits {
		out[i] = h.Score
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func normalize(v, min, max float64) float64 {
	if max-min < 1e-9 {
		if max == 0 {
			return 0
		}
		return 1
	}
	return (v - min) / (max - min)
}

// synthesize groups deduplicated hits by kind (category -> analysis ->
// evidence), deduplicates by normalized content hash, truncates to the
// token budget preserving the highest-scoring per group, and computes the
// quality-gate statistics (spec §4.5.5, §4.5.4).
func (o *Orchestrator) synthesize(strategy Strategy, merged []mergedHit) *ContextBundle {
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].finalScore() != merged[j].finalScore() {
			return merged[i].finalScore() > merged[j].finalScore()
		}
		return merged[i].chunk.ID.String() < merged[j].chunk.ID.String()
	})

	seenHashes := make(map[string]bool)
	var deduped []mergedHit
	for _, m := range merged {
		h := contentHash(m.chunk.Content)
		if seenHashes[h] {
			continue
		}
		seenHashes[h] = true
		deduped = append(deduped, m)
	}

	hitCount := len(deduped)
	topMean := topKMeanScore(deduped, 5)

	budget := o.TokenBudget
	groups := map[models.ChunkKind][]*models.Chunk{
		models.ChunkCategory: {},
		models.ChunkAnalysis: {},
		models.ChunkEvidence: {},
	}
	var sources []string
	for _, kind := range []models.ChunkKind{models.ChunkCategory, models.ChunkAnalysis, models.ChunkEvidence} {
		for _, m := range deduped {
			if m.chunk.Kind != kind {
				continue
			}
			cost := m.chunk.TokenCount
			if cost == 0 {
				cost = len(strings.Fields(m.chunk.Content))
			}
			if cost > budget {
				continue
			}
			budget -= cost
			groups[kind] = append(groups[kind], m.chunk)
			sources = append(sources, m.chunk.ID.String())
		}
	}

	return &ContextBundle{
		Strategy:     strategy,
		Groups:       groups,
		Sources:      sources,
		HitCount:     hitCount,
		TopMeanScore: topMean,
	}
}

func topKMeanScore(hits []mergedHit, k int) float64 {
	if len(hits) == 0 {
		return 0
	}
	if len(hits) < k {
		k = len(hits)
	}
	var sum float64
	for i := 0; i < k; i++ {
		sum += hits[i].finalScore()
	}
	return sum / float64(k)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(models.NormalizeContent(content)))
	return hex.EncodeToString(sum[:])
}
