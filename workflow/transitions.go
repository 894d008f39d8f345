package workflow

import "github.com/euria/council-engine/models"

// StateError is a programmer error: an attempted transition not present in
// the static table (spec §4.9, §7 — "propagated as 500-class to caller;
// not retried").
type StateError struct {
	From models.AssessmentState
	To   models.AssessmentState
}

func (e *StateError) Error() string {
	return "workflow: illegal transition " + string(e.From) + " -> " + string(e.To)
}

// forwardEdges is the hand-enumerated happy-path and review-branch table
// of spec §4.9's state diagram. Failed and Cancelled are reachable from
// any non-terminal state and are added programmatically in init rather
// than repeated on every line here.
var forwardEdges = map[models.AssessmentState][]models.AssessmentState{
	models.StateDraft:                       {models.StatePreprocessing},
	models.StatePreprocessing:               {models.StateStage1Running},
	models.StateStage1Running:               {models.StateStage1Complete},
	models.StateStage1Complete:              {models.StateStage2Running},
	models.StateStage2Running:               {models.StateStage2Complete},
	models.StateStage2Complete:              {models.StateStage3Running},
	models.StateStage3Running:               {models.StateStage3Complete},
	models.StateStage3Complete:              {models.StateSynthesisReviewPending},
	models.StateSynthesisReviewPending:      {models.StateSynthesisReviewInProgress},
	models.StateSynthesisReviewInProgress:   {models.StateSynthesisApproved, models.StateSynthesisRevisionRequested, models.StateSynthesisRejected},
	models.StateSynthesisApproved:           {models.StateExtractingData},
	models.StateSynthesisRevisionRequested:  {models.StateStage3Running},
	models.StateSynthesisRejected:           {models.StateFailed},
	models.StateExtractingData:              {models.StateGeneratingReport},
	models.StateGeneratingReport:            {models.StateReportReviewPending},
	models.StateReportReviewPending:         {models.StateReportReviewInProgress},
	models.StateReportReviewInProgress:      {models.StateReportApproved, models.StateReportEditRequested, models.StateReportRegenerationRequested, models.StateReportRejected},
	models.StateReportApproved:              {models.StateUpdatingKnowledge},
	models.StateReportEditRequested:         {models.StateUpdatingKnowledge},
	models.StateReportRegenerationRequested: {models.StateGeneratingReport},
	models.StateUpdatingKnowledge:           {models.StateCompleted},
}

// transitionTable is forwardEdges plus the universal Failed/Cancelled
// escape edges, built once at package init.
var transitionTable map[models.AssessmentState]map[models.AssessmentState]bool

func init() {
	allStates := []models.AssessmentState{
		models.StateDraft, models.StatePreprocessing,
		models.StateStage1Running, models.StateStage1Complete,
		models.StateStage2Running, models.StateStage2Complete,
		models.StateStage3Running, models.StateStage3Complete,
		models.StateSynthesisReviewPending, models.StateSynthesisReviewInProgress,
		models.StateSynthesisApproved, models.StateSynthesisRevisionRequested, models.StateSynthesisRejected,
		models.StateExtractingData, models.StateGeneratingReport,
		models.StateReportReviewPending, models.StateReportReviewInProgress,
		models.StateReportApproved, models.StateReportEditRequested,
		models.StateReportRegenerationRequested, models.StateReportRejected,
		models.StateUpdatingKnowledge, models.StateCompleted,
		models.StateFailed, models.StateCancelled,
	}

	transitionTable = make(map[models.AssessmentState]map[models.AssessmentState]bool, len(allStates))
	for _, s := range allStates {
		transitionTable[s] = make(map[models.AssessmentState]bool)
	}
	for from, tos := range forwardEdges {
		for _, to := range tos {
			transitionTable[from][to] = true
		}
	}
	for _, s := range allStates {
		if s.IsTerminal() {
			continue
		}
		transitionTable[s][models.StateFailed] = true
		transitionTable[s][models.StateCancelled] = true
	}
}

// validateTransition enforces spec §4.9's "validated against a static
// table" rule.
func validateTransition(from, to models.AssessmentState) error {
	if transitionTable[from][to] {
		return nil
	}
	return &StateError{From: from, To: to}
}
