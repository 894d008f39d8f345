// Package workflow implements C9: the per-assessment state machine
// driving retrieval (C5), council deliberation (C7), and section
// extraction (C8) through to a reviewed, knowledge-base-updating
// completion. Grounded on original_source/backend/state/ria_state.py's
// state field list and original_source/backend/workflows/ria_workflow.py's
// node graph, realized with service/draft_service.go's
// fast-return-then-background-ProcessDraft idiom: CreateAssessment
// validates and persists a Draft record and returns immediately; Run
// performs the actual sequential, suspend-at-I/O-boundaries work.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/euria/council-engine/council"
	"github.com/euria/council-engine/internal/logging"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/retrieval"
	"github.com/euria/council-engine/reviewstore"
)

// ValidationError is spec §6's create_assessment input-rejection payload.
type ValidationError struct {
	InputReceived string
	Guidance      string
	Examples      []string
}

func (e *ValidationError) Error() string { return "workflow: " + e.Guidance }

// AssessmentStore persists Assessment records. Grounded on the
// Embedder/Chunker/VectorStore "accept interfaces" shape the retrieval
// pack uses throughout (kxddry-rag-text-search/internal/domain/interfaces.go);
// repository.AssessmentRepository implements this against Postgres, and
// tests use a hand-written in-memory fake in the teacher's no-mocking-
// library style.
type AssessmentStore interface {
	Create(ctx context.Context, a *models.Assessment) error
	Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error)
	Save(ctx context.Context, a *models.Assessment) error
	List(ctx context.Context, status models.AssessmentState) ([]*models.Assessment, error)
}

var (
	ErrAssessmentNotFound  = errors.New("workflow: assessment not found")
	ErrNotAwaitingReview   = errors.New("workflow: assessment is not awaiting the requested review")
	ErrUnknownReviewAction = errors.New("workflow: unrecognized review action")
)

const minProposalWords = 50

// defaultRevisionLimit is spec §6's revision_limit default.
const defaultRevisionLimit = 3

// Engine drives the workflow state machine for many assessments
// concurrently; each assessment's own execution is single-threaded and
// cooperative (spec §5).
type Engine struct {
	store         AssessmentStore
	retrieval     *retrieval.Orchestrator
	council       *council.Engine
	revisionLimit int
	reviews       reviewstore.Store

	bus *eventBus
	log *logging.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// Option configures optional Engine behavior.
type Option func(*Engine)

// WithRevisionLimit overrides spec §6's revision_limit default of 3.
func WithRevisionLimit(n int) Option {
	return func(e *Engine) { e.revisionLimit = n }
}

// WithReviewStore wires C10: entering a review-pending state enqueues an
// SLA-tracked queue entry, and Review resolves it and records the decision
// in the review store's history (spec §4.9/§4.10). Engines built without
// this option still run the full state machine; they just skip C10's
// bookkeeping, matching spec §4.10's framing of the review store as an
// auxiliary tracking layer rather than a workflow dependency.
func WithReviewStore(s reviewstore.Store) Option {
	return func(e *Engine) { e.reviews = s }
}

// New wires the workflow engine over its three suspension-point
// dependencies: a persisted assessment store, the retrieval orchestrator
// (C5), and a configured council engine (C7).
func New(store AssessmentStore, orchestrator *retrieval.Orchestrator, councilEngine *council.Engine, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		retrieval:     orchestrator,
		council:       councilEngine,
		revisionLimit: defaultRevisionLimit,
		bus:           newEventBus(),
		log:           logging.New("workflow"),
		cancels:       make(map[uuid.UUID]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateAssessment validates and persists a new Draft assessment (spec
// §6). It returns immediately; the caller is responsible for driving
// Run(ctx, assessment.ID) in the background, exactly as
// DraftService.GenerateDraft hands off to ProcessDraft.
func (e *Engine) CreateAssessment(ctx context.Context, proposalText string, ctxMeta models.ContextMetadata) (*models.Assessment, error) {
	words := strings.Fields(proposalText)
	if len(words) < minProposalWords {
		return nil, &ValidationError{
			InputReceived: proposalText,
			Guidance:      fmt.Sprintf("proposal_text must contain at least %d words (received %d)", minProposalWords, len(words)),
			Examples: []string{
				"A proposal establishing mandatory energy efficiency disclosure for commercial buildings above 1000 square meters, requiring annual certification and public registry listing...",
			},
		}
	}

	a := models.NewAssessment(proposalText, ctxMeta)
	if err := e.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("workflow: failed to create assessment: %w", err)
	}
	return a, nil
}

// Get returns the persisted assessment record (spec §6 get_assessment/
// get_status).
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	a, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("workflow: %w", ErrAssessmentNotFound)
	}
	return a, nil
}

// List returns assessments filtered by state, or every assessment when
// status is the zero value (spec §6 list(status?)).
func (e *Engine) List(ctx context.Context, status models.AssessmentState) ([]*models.Assessment, error) {
	return e.store.List(ctx, status)
}

// Subscribe returns a channel of progress events for assessmentID (spec
// §4.9/§6 stream_assessment).
func (e *Engine) Subscribe(assessmentID uuid.UUID) (<-chan Event, func()) {
	return e.bus.Subscribe(assessmentID)
}

// Cancel requests cooperative cancellation (spec §4.9, §5): the
// transition to Cancelled happens after the in-flight I/O resolves, no
// new I/O is started.
func (e *Engine) Cancel(assessmentID uuid.UUID) {
	e.mu.Lock()
	cancel, ok := e.cancels[assessmentID]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

func (e *Engine) registerCancel(id uuid.UUID, cancel context.CancelFunc) {
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()
}

func (e *Engine) clearCancel(id uuid.UUID) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

// transition validates and applies a state change, persisting the
// (from, to, timestamp, metadata) audit record and publishing a stage
// event (spec §4.9).
func (e *Engine) transition(ctx context.Context, a *models.Assessment, to models.AssessmentState, node string, data map[string]interface{}) error {
	from := a.State
	if err := validateTransition(from, to); err != nil {
		return err
	}
	now := time.Now()
	a.Transitions = append(a.Transitions, models.Transition{From: from, To: to, At: now, Metadata: data})
	a.State = to
	a.UpdatedAt = now
	if to.IsTerminal() {
		a.CompletedAt = &now
	}
	if err := e.store.Save(ctx, a); err != nil {
		return fmt.Errorf("workflow: failed to persist transition %s -> %s: %w", from, to, err)
	}
	e.bus.publish(a.ID, Event{Type: EventStage, Stage: to, Node: node, Data: data})
	if to == models.StateCompleted {
		e.bus.publish(a.ID, Event{Type: EventWorkflowComplete, Stage: to})
	}
	return nil
}

// fail transitions the assessment to Failed (or Cancelled), records the
// reason, and streams an error event.
func (e *Engine) fail(ctx context.Context, a *models.Assessment, to models.AssessmentState, reason string) error {
	a.FailureReason = reason
	if err := e.transition(ctx, a, to, "failure", map[string]interface{}{"reason": reason}); err != nil {
		return err
	}
	e.bus.publish(a.ID, Event{Type: EventError, Stage: a.State, Data: map[string]interface{}{"message": reason}})
	return nil
}
