package workflow

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/euria/council-engine/council"
	"github.com/euria/council-engine/embedding"
	"github.com/euria/council-engine/modelclient"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/retrieval"
	"github.com/euria/council-engine/vectorstore"
)

// fakeStore is an in-memory AssessmentStore, in the teacher's no-mocking-
// library testing style (hand-written fakes, not a generated mock).
type fakeStore struct {
	mu   sync.Mutex
	data map[uuid.UUID]*models.Assessment
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[uuid.UUID]*models.Assessment)}
}

func (s *fakeStore) Create(ctx context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.ID] = a
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data[id]
	if !ok {
		return nil, ErrAssessmentNotFound
	}
	return a, nil
}

func (s *fakeStore) Save(ctx context.Context, a *models.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[a.ID] = a
	return nil
}

func (s *fakeStore) List(ctx context.Context, status models.AssessmentState) ([]*models.Assessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Assessment
	for _, a := range s.data {
		if status == "" || a.State == status {
			out = append(out, a)
		}
	}
	return out, nil
}

// fakeEmbedder gives every text the same unit vector, so cosine similarity
// is always 1.0 without depending on any particular embedding geometry.
// seedChunks gives every chunk the same content, so retrieval's content-hash
// dedupe leaves a single hit and the quality gate (spec §4.5.4) fails; the
// workflow then continues with degraded context.
type fakeEmbedder struct{}

func (fakeEmbedder) Name() string   { return "fake" }
func (fakeEmbedder) Dimension() int { return 1 }
func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(texts))
	for i := range texts {
		out[i] = embedding.Vector{1.0}
	}
	return out, nil
}

// chairmanReportText is a plausible Stage-3 synthesis shaped so extract.Extract
// (C8) recognizes its section headings.
const chairmanReportText = `Background and Problem Definition
This proposal addresses energy efficiency gaps in commercial buildings.

Executive Summary
Overall the proposal improves transparency and drives efficiency investment.

Proposal Overview
Mandatory disclosure and public registry listing for buildings above 1000 sqm.

21 Belgian Impact Themes Assessment
[4] Health: positive. Improves indoor air quality awareness.
[12] Energy: positive. Drives efficiency investment and lowers consumption.

Overall Assessment Summary
The proposal is net positive with manageable compliance costs.
`

// fakeCouncilBackend distinguishes Stage1 first-opinion calls from Stage2
// ranking calls (by the literal "FINAL RANKING" instruction text every
// buildRankingPrompt carries, per council/prompts.go) and Stage3 chairman
// calls (by model id), so a single Backend can drive all three stages.
type fakeCouncilBackend struct {
	chairmanModel string
}

func (f fakeCouncilBackend) Invoke(ctx context.Context, modelID string, messages []modelclient.Message, params modelclient.Params) (string, error) {
	var content string
	for _, m := range messages {
		content += m.Content + "\n"
	}

	if modelID == f.chairmanModel {
		return chairmanReportText, nil
	}
	if strings.Contains(content, "FINAL RANKING") {
		return "Response A is strongest.\nResponse B is close behind.\n\nFINAL RANKING:\n1. Response A\n2. Response B", nil
	}
	return "This proposal would require mandatory disclosure and a public registry, with a net positive impact on energy efficiency and health outcomes.", nil
}

func seedChunks(n int) []*models.Chunk {
	chunks := make([]*models.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, &models.Chunk{
			ID:      uuid.New(),
			Kind:    models.ChunkEvidence,
			Content: "Prior Belgian regulatory impact assessments on building energy efficiency disclosure requirements.",
			Metadata: models.ChunkMetadata{
				Jurisdiction: "BE",
				DocumentType: "ria",
				Year:         2022,
				Categories:   []models.PolicyCategory{models.CategoryEnergy},
			},
			SourceDocumentID: "doc-" + uuid.New().String(),
		})
	}
	return chunks
}

func newTestWorkflowEngine(t *testing.T) (*Engine, *fakeStore) {
	t.Helper()

	store := vectorstore.New(fakeEmbedder{}, vectorstore.NewMemoryBackend())
	if err := store.Add(context.Background(), seedChunks(6)); err != nil {
		t.Fatalf("seeding vector store: %v", err)
	}
	orchestrator := retrieval.DefaultOrchestrator(store, nil)

	const chairman = "chairman-model"
	backend := fakeCouncilBackend{chairmanModel: chairman}
	client := modelclient.New(backend, modelclient.RetryConfig{MaxRetries: 0})
	councilEngine, err := council.New(client, council.Config{
		CouncilModels:       []string{"model-a", "model-b"},
		ChairmanModel:       chairman,
		BootstrapIterations: 3,
		EnableBootstrap:     true,
		Criteria:            council.DefaultCriteria,
		Aggregation:         models.AggregationBorda,
	})
	if err != nil {
		t.Fatalf("unexpected council config error: %v", err)
	}

	fs := newFakeStore()
	return New(fs, orchestrator, councilEngine, WithRevisionLimit(2)), fs
}

const longProposal = `A proposal establishing mandatory energy efficiency disclosure for
commercial buildings above one thousand square meters, requiring annual
certification and public registry listing. The measure would apply to
office buildings, retail centers, and industrial warehouses across all
Belgian regions, with phased compliance deadlines over three years and
financial support for small and medium enterprises undertaking the
required efficiency audits and certification process before the
applicable deadlines expire for each building category and size class.`

func TestCreateAssessmentRejectsShortProposal(t *testing.T) {
	e, _ := newTestWorkflowEngine(t)
	_, err := e.CreateAssessment(context.Background(), "too short", models.ContextMetadata{})
	if err == nil {
		t.Fatal("expected a validation error for a proposal under the minimum word count")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestHappyPathReachesCompleted(t *testing.T) {
	e, _ := newTestWorkflowEngine(t)
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, longProposal, models.ContextMetadata{})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	if err := e.Run(ctx, a.ID); err != nil {
		t.Fatalf("Run (to synthesis review): %v", err)
	}
	a, err = e.store.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.State != models.StateSynthesisReviewPending {
		t.Fatalf("expected SynthesisReviewPending, got %s", a.State)
	}

	if _, err := e.Review(ctx, a.ID, models.ReviewSynthesis, models.ActionApprove, "reviewer-1", "looks good"); err != nil {
		t.Fatalf("Review synthesis: %v", err)
	}
	if err := e.Run(ctx, a.ID); err != nil {
		t.Fatalf("Run (to report review): %v", err)
	}
	a, _ = e.store.Get(ctx, a.ID)
	if a.State != models.StateReportReviewPending {
		t.Fatalf("expected ReportReviewPending, got %s", a.State)
	}
	if len(a.ReportSections.Themes) == 0 {
		t.Fatal("expected extracted report sections to be populated")
	}

	if _, err := e.Review(ctx, a.ID, models.ReviewReport, models.ActionApprove, "reviewer-1", "approved"); err != nil {
		t.Fatalf("Review report: %v", err)
	}
	if err := e.Run(ctx, a.ID); err != nil {
		t.Fatalf("Run (to completion): %v", err)
	}
	a, _ = e.store.Get(ctx, a.ID)
	if a.State != models.StateCompleted {
		t.Fatalf("expected Completed, got %s", a.State)
	}
	if a.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set on completion")
	}
}

func TestRevisionLoopExceedsLimitFails(t *testing.T) {
	e, _ := newTestWorkflowEngine(t)
	ctx := context.Background()

	a, err := e.CreateAssessment(ctx, longProposal, models.ContextMetadata{})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}
	if err := e.Run(ctx, a.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// revisionLimit is 2 (WithRevisionLimit(2) in newTestWorkflowEngine):
	// the first two revision requests loop back through Stage3, the third
	// must fail the assessment outright.
	for i := 0; i < 2; i++ {
		if _, err := e.Review(ctx, a.ID, models.ReviewSynthesis, models.ActionRequestRevision, "reviewer-1", "needs more detail on health impacts"); err != nil {
			t.Fatalf("Review (revision %d): %v", i, err)
		}
		if err := e.Run(ctx, a.ID); err != nil {
			t.Fatalf("Run after revision %d: %v", i, err)
		}
		a, _ = e.store.Get(ctx, a.ID)
		if a.State != models.StateSynthesisReviewPending {
			t.Fatalf("revision %d: expected back at SynthesisReviewPending, got %s", i, a.State)
		}
	}

	a, err = e.Review(ctx, a.ID, models.ReviewSynthesis, models.ActionRequestRevision, "reviewer-1", "still not enough")
	if err != nil {
		t.Fatalf("final Review: %v", err)
	}
	if a.State != models.StateFailed {
		t.Fatalf("expected Failed after exceeding the revision limit, got %s", a.State)
	}
	if a.FailureReason != "revision_limit_exceeded" {
		t.Fatalf("expected failure reason revision_limit_exceeded, got %q", a.FailureReason)
	}
}
