package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/euria/council-engine/extract"
	"github.com/euria/council-engine/models"
	"github.com/euria/council-engine/retrieval"
	"github.com/euria/council-engine/vectorstore"
)

// Run drives an assessment's state machine forward until it either
// completes, fails, is cancelled, or suspends at a human-review
// checkpoint. It is safe to call again after a suspension (spec §4.9
// resume: the engine reads the latest persisted state and restarts from
// the last milestone) — each call is itself single-threaded per
// assessment, though many assessments may be run concurrently.
func (e *Engine) Run(ctx context.Context, assessmentID uuid.UUID) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.registerCancel(assessmentID, cancel)
	defer func() {
		cancel()
		e.clearCancel(assessmentID)
	}()

	a, err := e.store.Get(runCtx, assessmentID)
	if err != nil {
		return fmt.Errorf("workflow: %w", ErrAssessmentNotFound)
	}
	e.bus.publish(a.ID, Event{Type: EventWorkflowStart, Stage: a.State})

	for {
		if a.State.IsTerminal() {
			return nil
		}
		if runCtx.Err() != nil {
			return e.fail(context.Background(), a, models.StateCancelled, "cancellation requested")
		}

		suspend, err := e.advance(runCtx, a)
		if err != nil {
			e.log.Printf("assessment %s: %v", a.ID, err)
			return err
		}
		if suspend {
			return nil
		}
	}
}

// advance executes exactly one state's work and applies the resulting
// transition. suspend=true means the loop should stop without error
// (either a human-review wait or a terminal state was reached).
func (e *Engine) advance(ctx context.Context, a *models.Assessment) (suspend bool, err error) {
	switch a.State {
	case models.StateDraft:
		return false, e.transition(ctx, a, models.StatePreprocessing, "preprocessing", nil)

	case models.StatePreprocessing:
		bundle, err := e.retrieveContext(ctx, a)
		if err != nil {
			if _, insufficient := err.(*retrieval.ErrInsufficientContext); !insufficient {
				return true, e.fail(ctx, a, models.StateFailed, err.Error())
			}
			// Spec §7: a second consecutive quality-gate failure routes to
			// human review rather than aborting — the degraded metrics
			// already recorded on a.QualityMetrics travel with the
			// assessment into SynthesisReviewPending for the reviewer to see.
			e.log.Printf("assessment %s: retrieval quality gate failed after expansion, continuing with degraded context", a.ID)
		}
		run := models.NewCouncilRun(toModelsBootstrapConfig(e.council.Config))
		a.CouncilHistory = append(a.CouncilHistory, *run)
		return false, e.transition(ctx, a, models.StateStage1Running, "stage1", map[string]interface{}{
			"hit_count": bundle.HitCount, "expanded": bundle.Expanded,
		})

	case models.StateStage1Running:
		if err := e.runStage1(ctx, a); err != nil {
			return true, e.fail(ctx, a, models.StateFailed, err.Error())
		}
		return false, e.transition(ctx, a, models.StateStage1Complete, "stage1", nil)

	case models.StateStage1Complete:
		return false, e.transition(ctx, a, models.StateStage2Running, "stage2", nil)

	case models.StateStage2Running:
		// Stage 2 degrades gracefully (spec §7 ParseError: downgraded to a
		// recorded warning, never stops the workflow).
		e.runStage2(ctx, a)
		return false, e.transition(ctx, a, models.StateStage2Complete, "stage2", nil)

	case models.StateStage2Complete:
		return false, e.transition(ctx, a, models.StateStage3Running, "stage3", nil)

	case models.StateStage3Running:
		if err := e.runStage3(ctx, a); err != nil {
			return true, e.fail(ctx, a, models.StateFailed, err.Error())
		}
		return false, e.transition(ctx, a, models.StateStage3Complete, "stage3", nil)

	case models.StateStage3Complete:
		return false, e.transition(ctx, a, models.StateSynthesisReviewPending, "synthesis_review", nil)

	case models.StateSynthesisReviewPending:
		e.enqueueReview(ctx, a, models.ReviewSynthesis)
		e.bus.publish(a.ID, Event{Type: EventReviewRequired, Stage: a.State, Data: map[string]interface{}{
			"review_type": models.ReviewSynthesis, "assessment_id": a.ID.String(),
		}})
		return true, nil

	case models.StateSynthesisRevisionRequested:
		return false, e.transition(ctx, a, models.StateStage3Running, "stage3", nil)

	case models.StateSynthesisRejected:
		return true, e.fail(ctx, a, models.StateFailed, "synthesis_rejected")

	case models.StateSynthesisApproved:
		return false, e.transition(ctx, a, models.StateExtractingData, "extract", nil)

	case models.StateExtractingData:
		return false, e.transition(ctx, a, models.StateGeneratingReport, "report", nil)

	case models.StateGeneratingReport:
		if err := e.runExtraction(ctx, a); err != nil {
			return true, e.fail(ctx, a, models.StateFailed, err.Error())
		}
		return false, e.transition(ctx, a, models.StateReportReviewPending, "report_review", nil)

	case models.StateReportReviewPending:
		e.enqueueReview(ctx, a, models.ReviewReport)
		e.bus.publish(a.ID, Event{Type: EventReviewRequired, Stage: a.State, Data: map[string]interface{}{
			"review_type": models.ReviewReport, "assessment_id": a.ID.String(),
		}})
		return true, nil

	case models.StateReportApproved, models.StateReportEditRequested:
		return false, e.transition(ctx, a, models.StateUpdatingKnowledge, "update_knowledge", nil)

	case models.StateReportRegenerationRequested:
		return false, e.transition(ctx, a, models.StateGeneratingReport, "report", nil)

	case models.StateUpdatingKnowledge:
		e.bus.publish(a.ID, Event{Type: EventReport, Stage: a.State, Data: map[string]interface{}{"assessment_id": a.ID.String()}})
		return false, e.transition(ctx, a, models.StateCompleted, "update_knowledge", nil)

	default:
		// ReportRejected, Failed, Cancelled, Completed: nothing left to do.
		return true, nil
	}
}

// retrieveContext runs C5 and records the quality-gate signals on the
// assessment (spec §4.9 Preprocessing node).
func (e *Engine) retrieveContext(ctx context.Context, a *models.Assessment) (*retrieval.ContextBundle, error) {
	bundle, err := e.retrieval.Retrieve(ctx, a.ProposalText, vectorstore.Filter{})
	if bundle != nil {
		a.Sources = bundle.Sources
		a.QualityMetrics.RetrievalHitCount = bundle.HitCount
		a.QualityMetrics.RetrievalTopMeanScore = bundle.TopMeanScore
		a.QualityMetrics.RetrievalExpanded = bundle.Expanded
	}
	if err != nil {
		return bundle, err
	}
	return bundle, nil
}

// synthesizedContext re-derives C5's flattened context text. Retrieval
// against the shared read-many vector store/graph is deterministic and
// cheap, so rather than persist the full excerpt on the assessment record
// (spec §3 names no such field) Stage 1/2/3 simply recompute it — unlike
// the council stages themselves, retrieval is never re-run as a skip-if-
// complete optimization because it is not the resume boundary spec §4.9
// describes ("Stage1/2/3 outputs are content-addressed").
func (e *Engine) synthesizedContext(ctx context.Context, a *models.Assessment) (string, error) {
	bundle, err := e.retrieval.Retrieve(ctx, a.ProposalText, vectorstore.Filter{})
	if err != nil && bundle == nil {
		return "", err
	}
	return bundle.SynthesizedText(), nil
}

func (e *Engine) runStage1(ctx context.Context, a *models.Assessment) error {
	current := a.CurrentCouncilRun()

	ctxText, err := e.synthesizedContext(ctx, a)
	if err != nil {
		return fmt.Errorf("stage1: %w", err)
	}

	results, err := e.council.Stage1(ctx, a.ProposalText, ctxText)
	if err != nil {
		return fmt.Errorf("stage1: %w", err)
	}
	recordStage1(current, results)
	return nil
}

func (e *Engine) runStage2(ctx context.Context, a *models.Assessment) {
	run := a.CurrentCouncilRun()
	stage1 := stage1ResultsFromRun(run)
	if len(stage1) < 2 {
		return
	}

	iterations, errs := e.council.Stage2(ctx, a.ID.String(), a.ProposalText, stage1)
	aggregated := e.council.Aggregate(iterations, len(stage1))
	recordStage2(run, iterations, aggregated)
	run.Errors = append(run.Errors, errs...)
}

func (e *Engine) runStage3(ctx context.Context, a *models.Assessment) error {
	run := a.CurrentCouncilRun()
	workingRun := reconstructCouncilRun(run)

	ctxText, err := e.synthesizedContext(ctx, a)
	if err != nil {
		return fmt.Errorf("stage3: %w", err)
	}
	if run.RevisionFeedback != "" {
		ctxText = ctxText + "\n\nReviewer feedback on the prior synthesis: " + run.RevisionFeedback
	}

	text, fallback, err := e.council.Stage3(ctx, a.ProposalText, ctxText, workingRun)
	if err != nil {
		return fmt.Errorf("stage3: %w", err)
	}
	run.Stage3Text = text
	run.ChairmanFallback = fallback
	return nil
}

// enqueueReview pushes a queue entry into C10 when a review store is wired
// (spec §4.10). Failures are logged, not fatal: the review store is
// auxiliary tracking, and a reviewer can still act via workflow.Review
// even if the queue entry never landed.
func (e *Engine) enqueueReview(ctx context.Context, a *models.Assessment, reviewType models.ReviewType) {
	if e.reviews == nil {
		return
	}
	if _, err := e.reviews.Enqueue(ctx, a.ID, reviewType, reviewPriority(a)); err != nil {
		e.log.Printf("assessment %s: failed to enqueue %s review: %v", a.ID, reviewType, err)
	}
}

// reviewPriority reads an optional "priority" key out of a submission's
// context_metadata (spec §3), defaulting to Normal.
func reviewPriority(a *models.Assessment) models.Priority {
	if v, ok := a.ContextMetadata["priority"]; ok {
		if s, ok := v.(string); ok {
			switch models.Priority(s) {
			case models.PriorityLow, models.PriorityNormal, models.PriorityHigh, models.PriorityUrgent:
				return models.Priority(s)
			}
		}
	}
	return models.PriorityNormal
}

func (e *Engine) runExtraction(ctx context.Context, a *models.Assessment) error {
	run := a.CurrentCouncilRun()
	structured := extract.Extract(run.Stage3Text)
	run.Stage3Structured = structured
	a.ReportSections = structured

	missing := 0
	for _, t := range structured.Themes {
		if t.Impact == models.ImpactUnknown {
			missing++
		}
	}
	a.QualityMetrics.MissingThemeCount = missing
	return nil
}
