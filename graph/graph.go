// Package graph implements C4: a typed directed multigraph over
// categories, domains, analysis patterns, documents, and chunks, with
// bounded multi-hop traversal. Grounded on
// original_source/backend/knowledge_graph.py's KnowledgeGraphBuilder
// (node/edge construction, query_related_chunks BFS,
// get_chunks_by_category). Per spec §9 "graph library independence" this
// is a plain adjacency-list multigraph, not a graph library — none of the
// pack's Go examples pull one in either.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/euria/council-engine/models"
)

// NodeType is the closed set of node kinds spec §3 describes.
type NodeType string

const (
	NodeCategory NodeType = "category"
	NodeDomain   NodeType = "domain"
	NodePattern  NodeType = "analysis_pattern"
	NodeDocument NodeType = "document"
	NodeChunk    NodeType = "chunk"
)

// EdgeType is the closed set of relationship labels spec §3 enumerates.
// Each bidirectional pair in the spec is stored as two directed edges
// under distinct EdgeTypes so traversal in either direction is O(1).
type EdgeType string

const (
	EdgeHasDomain           EdgeType = "has_domain"
	EdgeBelongsToCategory   EdgeType = "belongs_to_category"
	EdgeUsesPattern         EdgeType = "uses_pattern"
	EdgeAppliesToDomain     EdgeType = "applies_to_domain"
	EdgeContainsChunk       EdgeType = "contains_chunk"
	EdgeBelongsToDocument   EdgeType = "belongs_to_document"
	EdgeReferencesCategory  EdgeType = "references_category"
	EdgeAnalyzesCategory    EdgeType = "analyzes_category"
	EdgeHasChunk            EdgeType = "has_chunk"
	EdgeSupportsAnalysis    EdgeType = "supports_analysis"
	EdgeSupportedByEvidence EdgeType = "supported_by_evidence"
	EdgeInstantiatedBy      EdgeType = "instantiated_by"
)

// NodeID is a namespaced string identifying a node, e.g. "category:Digital"
// or "chunk:<uuid>", matching knowledge_graph.py's node-id scheme.
type NodeID string

func categoryNode(c models.PolicyCategory) NodeID { return NodeID("category:" + string(c)) }
func domainNode(d models.Domain) NodeID           { return NodeID("domain:" + string(d)) }
func patternNode(p models.AnalysisPattern) NodeID { return NodeID("pattern:" + string(p)) }
func documentNode(docID string) NodeID            { return NodeID("document:" + docID) }
func chunkNode(chunkID string) NodeID             { return NodeID("chunk:" + chunkID) }

// Node is a minimal record: the graph stores ids rather than owning
// chunk/document content directly (spec §9's "arena of chunks" note —
// graph nodes hold chunk ids, the vector store's entry map is the arena).
type Node struct {
	ID         NodeID                  `json:"id"`
	Type       NodeType                `json:"type"`
	Categories []models.PolicyCategory `json:"categories,omitempty"` // chunk nodes only, for overlap ordering
}

// Graph is a typed adjacency-list multigraph with per-edge-type successor
// indices.
type Graph struct {
	nodes     map[NodeID]*Node
	out       map[NodeID]map[EdgeType][]NodeID
	chunkByID map[string]NodeID // chunk_id -> node id, for lookups by the bare id
}

func New() *Graph {
	return &Graph{
		nodes:     make(map[NodeID]*Node),
		out:       make(map[NodeID]map[EdgeType][]NodeID),
		chunkByID: make(map[string]NodeID),
	}
}

func (g *Graph) addNode(n *Node) {
	if _, exists := g.nodes[n.ID]; exists {
		return
	}
	g.nodes[n.ID] = n
	g.out[n.ID] = make(map[EdgeType][]NodeID)
}

// addEdge enforces "typed edges only connect permitted node-type pairs"
// and "no self-loops" (spec §3 invariants).
func (g *Graph) addEdge(from, to NodeID, et EdgeType) error {
	if from == to {
		return fmt.Errorf("graph: self-loop rejected for %s", from)
	}
	fn, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("graph: unknown source node %s", from)
	}
	tn, ok := g.nodes[to]
	if !ok {
		return fmt.Errorf("graph: unknown target node %s", to)
	}
	if !permittedEdge(fn.Type, tn.Type, et) {
		return fmt.Errorf("graph: edge type %s not permitted between %s and %s", et, fn.Type, tn.Type)
	}
	for _, existing := range g.out[from][et] {
		if existing == to {
			return nil
		}
	}
	g.out[from][et] = append(g.out[from][et], to)
	return nil
}

func permittedEdge(from, to NodeType, et EdgeType) bool {
	switch et {
	case EdgeHasDomain:
		return from == NodeCategory && to == NodeDomain
	case EdgeBelongsToCategory:
		return from == NodeDomain && to == NodeCategory
	case EdgeUsesPattern:
		return (from == NodeDomain && to == NodePattern) || (from == NodeChunk && to == NodePattern)
	case EdgeAppliesToDomain:
		return from == NodePattern && to == NodeDomain
	case EdgeInstantiatedBy:
		return from == NodePattern && to == NodeChunk
	case EdgeContainsChunk:
		return from == NodeDocument && to == NodeChunk
	case EdgeBelongsToDocument:
		return from == NodeChunk && to == NodeDocument
	case EdgeReferencesCategory, EdgeAnalyzesCategory:
		return from == NodeChunk && to == NodeCategory
	case EdgeHasChunk:
		return from == NodeCategory && to == NodeChunk
	case EdgeSupportsAnalysis, EdgeSupportedByEvidence:
		return from == NodeChunk && to == NodeChunk
	default:
		return false
	}
}

// patternKeywords backs the "keyword signatures from a fixed rule table"
// inference spec §4.4 calls for, used when a chunk's analysis_type
// metadata doesn't resolve via models.AnalysisTypeToPatterns.
var patternKeywords = map[models.AnalysisPattern][]string{
	models.PatternCostBenefit:        {"cost", "benefit", "budget", "expenditure"},
	models.PatternRiskBased:          {"risk", "hazard", "likelihood", "precaution"},
	models.PatternMarketFailure:      {"market failure", "externality", "monopoly", "information asymmetry"},
	models.PatternStakeholder:        {"stakeholder", "consultation", "public opinion", "interest group"},
	models.PatternImpactAssessment:   {"impact assessment", "ex-ante", "ex ante", "evaluation"},
	models.PatternBaselineComparison: {"baseline", "counterfactual", "status quo", "business as usual"},
	models.PatternSubsidiarity:       {"subsidiarity", "proportionality", "eu competence", "member state"},
}

// inferPatterns maps a chunk to the analysis patterns it signals, per
// spec §4.4: analysis_type lookup first (knowledge_graph.py's
// ANALYSIS_TYPE_TO_PATTERNS), keyword scan second, and a generic
// impact-assessment fallback so every analysis chunk links to at least
// one pattern.
func inferPatterns(c *models.Chunk) []models.AnalysisPattern {
	if ps, ok := models.AnalysisTypeToPatterns[c.Metadata.AnalysisType]; ok && len(ps) > 0 {
		return ps
	}
	lower := strings.ToLower(c.Content)
	seen := make(map[models.AnalysisPattern]bool)
	var out []models.AnalysisPattern
	for _, p := range models.AnalysisPatterns {
		for _, kw := range patternKeywords[p] {
			if strings.Contains(lower, kw) {
				if !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
				break
			}
		}
	}
	if len(out) == 0 {
		out = append(out, models.PatternImpactAssessment)
	}
	return out
}

// BuildFromChunks constructs Category/Domain/Pattern nodes from the closed
// sets, Document nodes from unique source_document_ids, and links every
// chunk per spec §4.4.
func (g *Graph) BuildFromChunks(chunks []*models.Chunk) error {
	for _, c := range models.PolicyCategories {
		g.addNode(&Node{ID: categoryNode(c), Type: NodeCategory})
	}
	for _, d := range models.Domains {
		g.addNode(&Node{ID: domainNode(d), Type: NodeDomain})
	}
	for _, p := range models.AnalysisPatterns {
		g.addNode(&Node{ID: patternNode(p), Type: NodePattern})
	}
	for cat, domains := range models.CategoryToDomains {
		for _, d := range domains {
			_ = g.addEdge(categoryNode(cat), domainNode(d), EdgeHasDomain)
			_ = g.addEdge(domainNode(d), categoryNode(cat), EdgeBelongsToCategory)
		}
	}
	for p, domains := range models.PatternToDomains {
		for _, d := range domains {
			_ = g.addEdge(domainNode(d), patternNode(p), EdgeUsesPattern)
			_ = g.addEdge(patternNode(p), domainNode(d), EdgeAppliesToDomain)
		}
	}

	seenDocs := make(map[string]bool)
	for _, c := range chunks {
		if c.SourceDocumentID != "" && !seenDocs[c.SourceDocumentID] {
			seenDocs[c.SourceDocumentID] = true
			g.addNode(&Node{ID: documentNode(c.SourceDocumentID), Type: NodeDocument})
		}
	}

	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("graph: invalid chunk %s: %w", c.ID, err)
		}
		cid := c.ID.String()
		cn := chunkNode(cid)
		g.addNode(&Node{ID: cn, Type: NodeChunk, Categories: append([]models.PolicyCategory{}, c.Metadata.Categories...)})
		g.chunkByID[cid] = cn

		if c.SourceDocumentID != "" {
			dn := documentNode(c.SourceDocumentID)
			_ = g.addEdge(dn, cn, EdgeContainsChunk)
			_ = g.addEdge(cn, dn, EdgeBelongsToDocument)
		}

		refEdge, invRefEdge := EdgeReferencesCategory, EdgeHasChunk
		if c.Kind == models.ChunkAnalysis {
			refEdge, invRefEdge = EdgeAnalyzesCategory, EdgeHasChunk
		}
		for _, cat := range c.Metadata.Categories {
			catNode := categoryNode(cat)
			_ = g.addEdge(cn, catNode, refEdge)
			_ = g.addEdge(catNode, cn, invRefEdge)
		}

		if c.Kind == models.ChunkAnalysis {
			for _, p := range inferPatterns(c) {
				pn := patternNode(p)
				_ = g.addEdge(cn, pn, EdgeUsesPattern)
				_ = g.addEdge(pn, cn, EdgeInstantiatedBy)
			}
		}
	}

	for _, c := range chunks {
		if c.Kind != models.ChunkEvidence {
			continue
		}
		evidenceNode := chunkNode(c.ID.String())
		for _, other := range chunks {
			if other.Kind != models.ChunkAnalysis || other.SourceDocumentID != c.SourceDocumentID {
				continue
			}
			analysisNode := chunkNode(other.ID.String())
			_ = g.addEdge(evidenceNode, analysisNode, EdgeSupportsAnalysis)
			_ = g.addEdge(analysisNode, evidenceNode, EdgeSupportedByEvidence)
		}
	}

	return nil
}

// ChunkPatterns returns the analysis patterns inferred for a chunk, for
// callers (e.g. the retrieval orchestrator) that need a chunk's own
// pattern tags rather than a graph traversal.
func ChunkPatterns(c *models.Chunk) []models.AnalysisPattern {
	if c.Kind != models.ChunkAnalysis {
		return nil
	}
	return inferPatterns(c)
}

// ChunksByCategory returns the first k chunk ids reachable from category
// via references_category/analyzes_category edges, ordered by descending
// distinct-category overlap (centrality proxy) then ascending chunk id,
// per spec §4.4.
func (g *Graph) ChunksByCategory(category models.PolicyCategory, k int) []string {
	catNode := categoryNode(category)
	node, ok := g.nodes[catNode]
	if !ok {
		return nil
	}
	_ = node
	successors := g.out[catNode][EdgeHasChunk]
	type scored struct {
		id      string
		overlap int
	}
	var candidates []scored
	for _, s := range successors {
		n := g.nodes[s]
		if n == nil || n.Type != NodeChunk {
			continue
		}
		candidates = append(candidates, scored{id: chunkIDOf(s), overlap: len(n.Categories)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].id < candidates[j].id
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

func chunkIDOf(n NodeID) string {
	s := string(n)
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// Related performs a bounded BFS from chunkID, visiting each node at most
// once and returning only chunk nodes, ordered by path length ascending,
// then category overlap with the seed descending, then id ascending
// (spec §4.4). Terminates even on highly connected graphs because the
// visited set is checked before enqueueing.
func (g *Graph) Related(chunkID string, maxDepth int) []string {
	seedNode, ok := g.chunkByID[chunkID]
	if !ok {
		return nil
	}
	seed := g.nodes[seedNode]

	type queued struct {
		id    NodeID
		depth int
	}
	visited := map[NodeID]bool{seedNode: true}
	queue := []queued{{id: seedNode, depth: 0}}

	type found struct {
		id      string
		depth   int
		overlap int
	}
	var results []found

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, edges := range g.out[cur.id] {
			for _, nb := range edges {
				if visited[nb] {
					continue
				}
				visited[nb] = true
				n := g.nodes[nb]
				if n == nil {
					continue
				}
				nextDepth := cur.depth + 1
				if n.Type == NodeChunk {
					results = append(results, found{
						id:      chunkIDOf(nb),
						depth:   nextDepth,
						overlap: categoryOverlap(seed.Categories, n.Categories),
					})
				}
				queue = append(queue, queued{id: nb, depth: nextDepth})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].depth != results[j].depth {
			return results[i].depth < results[j].depth
		}
		if results[i].overlap != results[j].overlap {
			return results[i].overlap > results[j].overlap
		}
		return results[i].id < results[j].id
	})
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.id
	}
	return out
}

func categoryOverlap(a, b []models.PolicyCategory) int {
	set := make(map[models.PolicyCategory]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	n := 0
	for _, c := range b {
		if set[c] {
			n++
		}
	}
	return n
}

// Statistics mirrors knowledge_graph.py's get_statistics, used by
// cmd/build-index's summary log and by operational diagnostics. The
// retrieval orchestrator's specialist-domain check (>= 50 chunks in a
// category) uses CategoryChunkCount, not Statistics.
type Statistics struct {
	TotalNodes int              `json:"total_nodes"`
	TotalEdges int              `json:"total_edges"`
	NodeTypes  map[NodeType]int `json:"node_types"`
	EdgeTypes  map[EdgeType]int `json:"edge_types"`
}

func (g *Graph) Statistics() Statistics {
	stats := Statistics{NodeTypes: make(map[NodeType]int), EdgeTypes: make(map[EdgeType]int)}
	for _, n := range g.nodes {
		stats.NodeTypes[n.Type]++
		stats.TotalNodes++
	}
	for _, byType := range g.out {
		for et, targets := range byType {
			stats.EdgeTypes[et] += len(targets)
			stats.TotalEdges += len(targets)
		}
	}
	return stats
}

// CategoryChunkCount reports how many chunks reference or analyze
// category — the specialist-domain signal the retrieval orchestrator uses
// to pick the graph_first strategy (spec §4.5).
func (g *Graph) CategoryChunkCount(category models.PolicyCategory) int {
	return len(g.out[categoryNode(category)][EdgeHasChunk])
}

// HasChunk reports whether chunkID is present as a node.
func (g *Graph) HasChunk(chunkID string) bool {
	_, ok := g.chunkByID[chunkID]
	return ok
}

type persistedGraph struct {
	Nodes []*Node         `json:"nodes"`
	Edges []persistedEdge `json:"edges"`
}

type persistedEdge struct {
	From NodeID   `json:"from"`
	To   NodeID   `json:"to"`
	Type EdgeType `json:"type"`
}

// Persist atomically serializes the graph (write-new-then-rename), per
// spec §4.4/§5's durable-blob requirement.
func (g *Graph) Persist(path string) error {
	p := persistedGraph{}
	for _, n := range g.nodes {
		p.Nodes = append(p.Nodes, n)
	}
	sort.Slice(p.Nodes, func(i, j int) bool { return p.Nodes[i].ID < p.Nodes[j].ID })
	for from, byType := range g.out {
		for et, targets := range byType {
			for _, to := range targets {
				p.Edges = append(p.Edges, persistedEdge{From: from, To: to, Type: et})
			}
		}
	}
	sort.Slice(p.Edges, func(i, j int) bool {
		if p.Edges[i].From != p.Edges[j].From {
			return p.Edges[i].From < p.Edges[j].From
		}
		if p.Edges[i].Type != p.Edges[j].Type {
			return p.Edges[i].Type < p.Edges[j].Type
		}
		return p.Edges[i].To < p.Edges[j].To
	})
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reconstructs a Graph from a blob written by Persist.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p persistedGraph
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	g := New()
	for _, n := range p.Nodes {
		g.addNode(n)
		if n.Type == NodeChunk {
			g.chunkByID[chunkIDOf(n.ID)] = n.ID
		}
	}
	for _, e := range p.Edges {
		g.out[e.From][e.Type] = append(g.out[e.From][e.Type], e.To)
	}
	return g, nil
}
