package sparseindex

import "testing"

func TestTokenize(t *testing.T) {
	got := Tokenize("The AI Governance Framework, and the future.")
	want := []string{"ai", "governance", "framework", "future"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestIndexScoreRanksRelevantDocHigher(t *testing.T) {
	idx := New()
	idx.Add("a", Tokenize("AI governance framework"))
	idx.Add("b", Tokenize("biodiversity restoration"))
	idx.Add("c", Tokenize("data protection regulation"))

	hits := idx.NormalizedScore(Tokenize("AI regulation"))
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if hits[0].Score != 1.0 {
		t.Fatalf("expected top hit normalized to 1.0, got %v", hits[0].Score)
	}
	for _, h := range hits {
		if h.ID == "b" {
			t.Fatalf("doc b shares no terms with the query and should not score: %v", hits)
		}
	}
}

func TestIndexAddIsIdempotentByID(t *testing.T) {
	idx := New()
	idx.Add("a", Tokenize("alpha beta gamma"))
	idx.Add("a", Tokenize("delta epsilon"))

	if idx.docCount() != 1 {
		t.Fatalf("expected 1 document after re-add, got %d", idx.docCount())
	}
	hits := idx.Score(Tokenize("alpha"))
	if len(hits) != 0 {
		t.Fatalf("expected no hits for a term replaced by re-add, got %v", hits)
	}
}

func TestScoreEmptyIndexReturnsNoHits(t *testing.T) {
	idx := New()
	if hits := idx.Score(Tokenize("anything")); hits != nil {
		t.Fatalf("expected nil hits on empty index, got %v", hits)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	idx := New()
	idx.Add("a", Tokenize("AI governance framework"))
	idx.Add("c", Tokenize("data protection regulation"))

	path := t.TempDir() + "/bm25.json"
	if err := idx.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := loaded.NormalizedScore(Tokenize("AI regulation"))
	want := idx.NormalizedScore(Tokenize("AI regulation"))
	if len(got) != len(want) {
		t.Fatalf("round trip mismatch: got %v want %v", got, want)
	}
}
