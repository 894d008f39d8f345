// Package service is the orchestration layer wiring C1-C10 behind the
// narrow external contract spec §6 describes (create_assessment,
// stream_assessment, review, get_assessment, get_status, get_report,
// list). Grounded on service/petition_service.go's functional-options
// constructor and thin-wrapper-over-a-lower-layer shape, generalized from
// wrapping a single PetitionRepository to wrapping workflow.Engine.
package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/workflow"
)

// EngineService adapts workflow.Engine's synchronous
// CreateAssessment/Review calls plus background Run driving into the
// request/response + streaming shape an HTTP (or any other) inbound
// surface needs.
type EngineService struct {
	engine *workflow.Engine
}

// Option configures optional EngineService behavior, in
// service/petition_service.go's WithPetitionRepository style.
type Option func(*EngineService)

func NewEngineService(engine *workflow.Engine, opts ...Option) *EngineService {
	s := &EngineService{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAssessment validates and persists a new assessment, then hands off
// to a background Run exactly as service/draft_service.go's GenerateDraft
// handed off to ProcessDraft. It returns as soon as the Draft record
// exists; the caller should stream_assessment to observe progress.
func (s *EngineService) CreateAssessment(ctx context.Context, proposalText string, ctxMeta models.ContextMetadata) (*models.Assessment, error) {
	a, err := s.engine.CreateAssessment(ctx, proposalText, ctxMeta)
	if err != nil {
		return nil, err
	}
	s.runInBackground(a.ID)
	return a, nil
}

// Review submits a human-review decision and, when it unblocks further
// automatic work (e.g. SynthesisApproved -> ExtractingData), resumes
// Run in the background.
func (s *EngineService) Review(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType, action models.ReviewAction, reviewerID, comments string) (*models.Assessment, error) {
	a, err := s.engine.Review(ctx, assessmentID, reviewType, action, reviewerID, comments)
	if err != nil {
		return nil, err
	}
	s.runInBackground(assessmentID)
	return a, nil
}

// runInBackground drives the workflow's cooperative state machine forward
// off the request goroutine (spec §4.9: the engine is single-threaded per
// assessment but many assessments run concurrently).
func (s *EngineService) runInBackground(assessmentID uuid.UUID) {
	go func() {
		if err := s.engine.Run(context.Background(), assessmentID); err != nil {
			log.Printf("service: assessment %s run error: %v", assessmentID, err)
		}
	}()
}

// StreamAssessment exposes spec §6's stream_assessment(assessment_id) ->
// stream<Event>.
func (s *EngineService) StreamAssessment(assessmentID uuid.UUID) (<-chan workflow.Event, func()) {
	return s.engine.Subscribe(assessmentID)
}

// GetAssessment returns the full persisted assessment record.
func (s *EngineService) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	return s.engine.Get(ctx, id)
}

// Status is the trimmed response shape for spec §6's get_status(id).
type Status struct {
	AssessmentID   uuid.UUID              `json:"assessment_id"`
	State          models.AssessmentState `json:"state"`
	QualityMetrics models.QualityMetrics  `json:"quality_metrics"`
	FailureReason  string                 `json:"failure_reason,omitempty"`
}

// GetStatus returns a lightweight progress summary, cheaper for pollers
// than the full record GetAssessment returns.
func (s *EngineService) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	a, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Status{
		AssessmentID:   a.ID,
		State:          a.State,
		QualityMetrics: a.QualityMetrics,
		FailureReason:  a.FailureReason,
	}, nil
}

// ErrReportNotReady means the assessment hasn't reached an extraction
// milestone yet.
var ErrReportNotReady = fmt.Errorf("service: report not yet available for this assessment")

// GetReport returns the structured 21-theme assessment, once extraction
// (C8) has populated it.
func (s *EngineService) GetReport(ctx context.Context, id uuid.UUID) (*models.StructuredAssessment, error) {
	a, err := s.engine.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.ReportSections == nil {
		return nil, ErrReportNotReady
	}
	return a.ReportSections, nil
}

// List returns every assessment matching status, or all assessments when
// status is empty (spec §6 list(status?)).
func (s *EngineService) List(ctx context.Context, status models.AssessmentState) ([]*models.Assessment, error) {
	return s.engine.List(ctx, status)
}

// Cancel requests cooperative cancellation of an in-flight assessment
// (spec §4.9/§5).
func (s *EngineService) Cancel(assessmentID uuid.UUID) {
	s.engine.Cancel(assessmentID)
}
