package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
)

// Review applies a human reviewer's decision (spec §6 review, §4.9's
// review-branch transitions) and persists it. It returns as soon as the
// resulting transition is applied; like CreateAssessment, the caller is
// responsible for invoking Run(ctx, assessmentID) again afterward to
// drive any further automatic steps (Stage 3 re-synthesis, extraction,
// knowledge-base update, ...).
func (e *Engine) Review(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType, action models.ReviewAction, reviewerID, comments string) (*models.Assessment, error) {
	a, err := e.store.Get(ctx, assessmentID)
	if err != nil {
		return nil, ErrAssessmentNotFound
	}

	pending, inProgress := reviewStates(reviewType)
	if a.State != pending && a.State != inProgress {
		return nil, ErrNotAwaitingReview
	}
	if a.State == pending {
		if err := e.transition(ctx, a, inProgress, "review", nil); err != nil {
			return nil, err
		}
	}

	target, err := reviewTargetState(reviewType, action)
	if err != nil {
		return nil, err
	}

	decision := models.ReviewDecision{
		ID:           uuid.New(),
		AssessmentID: a.ID,
		ReviewType:   reviewType,
		Decision:     action,
		Comments:     comments,
		ReviewerID:   reviewerID,
		ReviewedAt:   time.Now(),
	}
	if target == models.StateSynthesisRevisionRequested || target == models.StateReportRegenerationRequested {
		decision.RevisionFeedback = comments
	}
	a.ReviewDecisions = append(a.ReviewDecisions, decision)
	if e.reviews != nil {
		if err := e.reviews.RecordDecision(ctx, decision); err != nil {
			e.log.Printf("assessment %s: failed to record review decision: %v", a.ID, err)
		}
		if err := e.reviews.Resolve(ctx, a.ID, reviewType); err != nil {
			e.log.Printf("assessment %s: failed to resolve %s review queue entry: %v", a.ID, reviewType, err)
		}
	}

	if isRevisionTarget(target) {
		key := string(reviewType)
		a.RevisionCounts[key]++
		if a.RevisionCounts[key] > e.revisionLimit {
			return a, e.fail(ctx, a, models.StateFailed, "revision_limit_exceeded")
		}
	}

	if target == models.StateSynthesisRevisionRequested {
		prev := a.CurrentCouncilRun()
		next := cloneCouncilRunForRevision(prev, comments)
		a.CouncilHistory = append(a.CouncilHistory, *next)
	}

	if err := e.transition(ctx, a, target, "review_decision", map[string]interface{}{"action": action}); err != nil {
		return nil, err
	}
	return a, nil
}

func reviewStates(t models.ReviewType) (pending, inProgress models.AssessmentState) {
	if t == models.ReviewReport {
		return models.StateReportReviewPending, models.StateReportReviewInProgress
	}
	return models.StateSynthesisReviewPending, models.StateSynthesisReviewInProgress
}

func isRevisionTarget(s models.AssessmentState) bool {
	return s == models.StateSynthesisRevisionRequested || s == models.StateReportRegenerationRequested
}

// reviewTargetState maps a review action onto the destination state for
// the review type it was taken against (spec §4.9's two review-branch
// tables).
func reviewTargetState(t models.ReviewType, action models.ReviewAction) (models.AssessmentState, error) {
	switch t {
	case models.ReviewSynthesis:
		switch action {
		case models.ActionApprove:
			return models.StateSynthesisApproved, nil
		case models.ActionRequestRevision:
			return models.StateSynthesisRevisionRequested, nil
		case models.ActionReject:
			return models.StateSynthesisRejected, nil
		}
	case models.ReviewReport:
		switch action {
		case models.ActionApprove:
			return models.StateReportApproved, nil
		case models.ActionEdit:
			return models.StateReportEditRequested, nil
		case models.ActionRequestRevision:
			return models.StateReportRegenerationRequested, nil
		case models.ActionReject:
			return models.StateReportRejected, nil
		}
	}
	return "", fmt.Errorf("workflow: %w: action %q is not valid for review type %q", ErrUnknownReviewAction, action, t)
}
