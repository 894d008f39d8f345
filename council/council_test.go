package council

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/euria/council-engine/modelclient"
)

type fakeBackend struct {
	mu   sync.Mutex
	plan map[string][]string // modelID -> successive responses
	fail map[string]bool     // modelID -> always returns a permanent error
	call map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{plan: make(map[string][]string), fail: make(map[string]bool), call: make(map[string]int)}
}

func (f *fakeBackend) Invoke(ctx context.Context, modelID string, messages []modelclient.Message, params modelclient.Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[modelID] {
		return "", modelclient.PermanentError(modelID, errors.New("simulated permanent failure"))
	}
	i := f.call[modelID]
	f.call[modelID]++
	plan := f.plan[modelID]
	if i >= len(plan) {
		return plan[len(plan)-1], nil
	}
	return plan[i], nil
}

func newTestEngine(t *testing.T, backend modelclient.Backend, cfg Config) *Engine {
	t.Helper()
	client := modelclient.New(backend, modelclient.RetryConfig{MaxRetries: 0, BaseDelay: 0})
	engine, err := New(client, cfg)
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	return engine
}

func TestNewRejectsChairmanInCouncilModels(t *testing.T) {
	backend := newFakeBackend()
	client := modelclient.New(backend, modelclient.DefaultRetryConfig())
	_, err := New(client, Config{CouncilModels: []string{"model-a", "model-b"}, ChairmanModel: "model-a"})
	if err == nil {
		t.Fatal("expected an error when the chairman model is also a council model")
	}
}

func TestSeededPermutationIsDeterministic(t *testing.T) {
	p1 := seededPermutation("assessment-1", 2, 5)
	p2 := seededPermutation("assessment-1", 2, 5)
	if len(p1) != 5 || len(p2) != 5 {
		t.Fatalf("expected permutations of length 5, got %v %v", p1, p2)
	}
	for i := range p1 {
		if p1[i] != p2[i] {
			t.Fatalf("expected identical permutations for the same (assessment_id, iteration) seed, got %v vs %v", p1, p2)
		}
	}

	p3 := seededPermutation("assessment-1", 3, 5)
	same := true
	for i := range p1 {
		if p1[i] != p3[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected a different iteration to yield a different permutation")
	}
}

func TestParseRankingNumberedFormat(t *testing.T) {
	text := "Response A provides good detail.\nResponse B is weaker.\n\nFINAL RANKING:\n1. Response A\n2. Response B"
	labels, err := parseRanking(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 2 || labels[0] != "Response A" || labels[1] != "Response B" {
		t.Fatalf("unexpected parse: %v", labels)
	}
}

func TestParseRankingFallbackWithoutNumbering(t *testing.T) {
	text := "FINAL RANKING:\nResponse C, then Response A, then Response B"
	labels, err := parseRanking(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 3 || labels[0] != "Response C" {
		t.Fatalf("unexpected parse: %v", labels)
	}
}

func TestParseRankingFailsWithoutAnyResponseLabel(t *testing.T) {
	if _, err := parseRanking("I cannot produce a ranking for this."); err == nil {
		t.Fatal("expected a parse error when no response label is present")
	}
}

// TestBordaAggregationScenario reproduces the seeded end-to-end scenario:
// three responses, three iterations yielding rankings
// [A,B,C], [B,A,C], [A,C,B] from one evaluator, expecting Borda scores
// A=8, B=6, C=4 and consensus ranking [A,B,C].
func TestBordaAggregationScenario(t *testing.T) {
	iterations := map[string][]RankingIteration{
		"evaluator-1": {
			{Iteration: 0, Criterion: "accuracy", Ranking: []string{"Response A", "Response B", "Response C"}, ParseOK: true},
			{Iteration: 1, Criterion: "completeness", Ranking: []string{"Response B", "Response A", "Response C"}, ParseOK: true},
			{Iteration: 2, Criterion: "clarity", Ranking: []string{"Response A", "Response C", "Response B"}, ParseOK: true},
		},
	}

	aggregated := aggregate(iterations, 3, AggregationBorda, nil)
	consensus, ok := aggregated["evaluator-1"]
	if !ok || consensus.Omitted {
		t.Fatalf("expected a non-omitted consensus ranking, got %+v", consensus)
	}
	if consensus.Scores["Response A"] != 8 || consensus.Scores["Response B"] != 6 || consensus.Scores["Response C"] != 4 {
		t.Fatalf("unexpected Borda scores: %+v", consensus.Scores)
	}
	want := []string{"Response A", "Response B", "Response C"}
	if !equalStrings(consensus.Ranking, want) {
		t.Fatalf("expected consensus ranking %v, got %v", want, consensus.Ranking)
	}
}

func TestAggregationOmitsEvaluatorsBelowMinimumValidIterations(t *testing.T) {
	iterations := map[string][]RankingIteration{
		"evaluator-1": {
			{Iteration: 0, ParseOK: true, Ranking: []string{"Response A", "Response B"}},
			{Iteration: 1, ParseOK: false},
			{Iteration: 2, ParseOK: false},
		},
	}
	aggregated := aggregate(iterations, 2, AggregationBorda, nil)
	consensus := aggregated["evaluator-1"]
	if !consensus.Omitted {
		t.Fatalf("expected evaluator with 1/3 valid iterations to be omitted, got %+v", consensus)
	}
}

// TestDeliberateChairmanFallback reproduces the "Chairman fallback" seeded
// scenario: a council of three models returns first opinions, the
// chairman call fails permanently, and with ChairmanFallback enabled the
// highest-Borda-scored Stage-1 response becomes the chairman output.
func TestDeliberateChairmanFallback(t *testing.T) {
	backend := newFakeBackend()
	backend.plan["model-a"] = []string{"Model A's first opinion on the proposal."}
	backend.plan["model-b"] = []string{"Model B's first opinion on the proposal."}
	backend.plan["model-c"] = []string{"Model C's first opinion on the proposal."}
	backend.fail["chairman-model"] = true

	// Every evaluator ranks Response A first across the single iteration
	// run (bootstrap disabled keeps this deterministic and single-pass).
	rankingText := "Response A is best.\nResponse B is next.\nResponse C is last.\n\nFINAL RANKING:\n1. Response A\n2. Response B\n3. Response C"
	backend.plan["model-a"] = append(backend.plan["model-a"], rankingText)
	backend.plan["model-b"] = append(backend.plan["model-b"], rankingText)
	backend.plan["model-c"] = append(backend.plan["model-c"], rankingText)

	engine := newTestEngine(t, backend, Config{
		CouncilModels:    []string{"model-a", "model-b", "model-c"},
		ChairmanModel:    "chairman-model",
		EnableBootstrap:  false,
		ChairmanFallback: true,
	})

	run, err := engine.Deliberate(context.Background(), "assessment-xyz", "Proposal text", "some context")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !run.ChairmanFallback {
		t.Fatal("expected chairman_fallback=true when the chairman call fails permanently")
	}
	if !strings.Contains(run.Stage3Text, "Model A's first opinion") {
		t.Fatalf("expected the fallback output to be Model A's stage-1 text (highest Borda score), got: %s", run.Stage3Text)
	}
}

func TestStage1InsufficientResponsesRaisesError(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["model-a"] = true
	backend.fail["model-b"] = true
	backend.plan["model-c"] = []string{"Only model C answers."}

	engine := newTestEngine(t, backend, Config{
		CouncilModels: []string{"model-a", "model-b", "model-c"},
		ChairmanModel: "chairman-model",
	})

	_, err := engine.Deliberate(context.Background(), "assessment-1", "proposal", "")
	if err == nil {
		t.Fatal("expected InsufficientResponses when only one of three models answers")
	}
	var councilErr *Error
	if e, ok := err.(*Error); ok {
		councilErr = e
	}
	if councilErr == nil || councilErr.Kind != ErrInsufficientResponses {
		t.Fatalf("expected a council.Error with ErrInsufficientResponses, got %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
