// Package sparseindex implements C2: BM25 lexical scoring over a tokenized
// corpus. No example in the retrieval pack wires a lexical-scoring library
// (only kxddry's dense in-memory store); BM25 is plain tokenization and
// arithmetic, so this package is the justified standard-library exception
// recorded in DESIGN.md.
package sparseindex

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
	"unicode"
)

const (
	k1 = 1.5
	b  = 0.75
)

// stopwords mirrors the small closed set typically dropped before lexical
// scoring; kept short and unexported since it is an implementation detail
// of tokenization, not a tunable.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true,
}

// Tokenize lowercases, splits on whitespace and punctuation, and drops
// stopwords, matching spec §4.2's "whitespace+punctuation tokenization with
// lowercasing and stopword filtering".
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Hit is a (document id, raw BM25 score) pair returned by Score.
type Hit struct {
	ID    string
	Score float64
}

// Index is a BM25 scorer over a growable corpus of tokenized documents.
type Index struct {
	K1 float64
	B  float64

	docTokens  map[string][]string
	docFreq    map[string]int // document frequency per term
	termFreq   map[string]map[string]int
	totalTerms int
	order      []string // insertion order, for deterministic persistence
}

func New() *Index {
	return &Index{
		K1:        k1,
		B:         b,
		docTokens: make(map[string][]string),
		docFreq:   make(map[string]int),
		termFreq:  make(map[string]map[string]int),
	}
}

// Add indexes (or re-indexes) the document id under the given tokens.
// Idempotent: re-adding an id first removes its prior contribution.
func (idx *Index) Add(id string, tokens []string) {
	if _, exists := idx.docTokens[id]; exists {
		idx.remove(id)
	} else {
		idx.order = append(idx.order, id)
	}

	idx.docTokens[id] = tokens
	idx.totalTerms += len(tokens)

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	for t, c := range counts {
		if idx.termFreq[t] == nil {
			idx.termFreq[t] = make(map[string]int)
		}
		idx.termFreq[t][id] = c
		idx.docFreq[t]++
	}
}

func (idx *Index) remove(id string) {
	old := idx.docTokens[id]
	idx.totalTerms -= len(old)
	counts := make(map[string]int)
	for _, t := range old {
		counts[t]++
	}
	for t := range counts {
		delete(idx.termFreq[t], id)
		idx.docFreq[t]--
		if idx.docFreq[t] <= 0 {
			delete(idx.docFreq, t)
			delete(idx.termFreq, t)
		}
	}
}

func (idx *Index) docCount() int { return len(idx.docTokens) }

func (idx *Index) avgDocLen() float64 {
	n := idx.docCount()
	if n == 0 {
		return 0
	}
	return float64(idx.totalTerms) / float64(n)
}

// Score computes raw BM25 scores for queryTokens against every indexed
// document that shares at least one term, per spec §4.2's
// score(query_tokens) -> list[(id, raw_score)] contract.
func (idx *Index) Score(queryTokens []string) []Hit {
	n := idx.docCount()
	if n == 0 {
		return nil
	}
	avgLen := idx.avgDocLen()

	queryCounts := make(map[string]int)
	for _, t := range queryTokens {
		queryCounts[t]++
	}

	scores := make(map[string]float64)
	for term := range queryCounts {
		postings, ok := idx.termFreq[term]
		if !ok {
			continue
		}
		df := idx.docFreq[term]
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for id, tf := range postings {
			docLen := float64(len(idx.docTokens[id]))
			denom := float64(tf) + idx.K1*(1-idx.B+idx.B*docLen/avgLen)
			scores[id] += idf * (float64(tf) * (idx.K1 + 1) / denom)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{ID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

// NormalizedScore runs Score and rescales every hit by the top observed
// score for this query, per spec §4.2's "normalized by the top observed
// score per query so hybrid combination is meaningful".
func (idx *Index) NormalizedScore(queryTokens []string) []Hit {
	hits := idx.Score(queryTokens)
	if len(hits) == 0 {
		return hits
	}
	top := hits[0].Score
	if top <= 0 {
		return hits
	}
	for i := range hits {
		hits[i].Score = hits[i].Score / top
	}
	return hits
}

// ScoreOne returns the normalized BM25 score of a single document against
// a query, or 0 if the document is unindexed — used by vectorstore's
// hybrid combination.
func (idx *Index) ScoreOne(id string, queryTokens []string) float64 {
	for _, h := range idx.NormalizedScore(queryTokens) {
		if h.ID == id {
			return h.Score
		}
	}
	return 0
}

type persistedIndex struct {
	K1    float64             `json:"k1"`
	B     float64             `json:"b"`
	Order []string            `json:"order"`
	Docs  map[string][]string `json:"docs"`
}

// Persist serializes the index to path via write-new-then-rename, matching
// spec §4.2/§4.3's atomic-persistence requirement.
func (idx *Index) Persist(path string) error {
	p := persistedIndex{K1: idx.K1, B: idx.B, Order: idx.order, Docs: idx.docTokens}
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

// Load reconstructs an Index from a blob written by Persist.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p persistedIndex
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	idx := New()
	idx.K1 = p.K1
	idx.B = p.B
	for _, id := range p.Order {
		idx.Add(id, p.Docs[id])
	}
	return idx, nil
}
