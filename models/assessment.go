package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssessmentState is the workflow state machine's node set (spec §4.9).
type AssessmentState string

const (
	StateDraft                       AssessmentState = "Draft"
	StatePreprocessing               AssessmentState = "Preprocessing"
	StateStage1Running               AssessmentState = "Stage1Running"
	StateStage1Complete              AssessmentState = "Stage1Complete"
	StateStage2Running               AssessmentState = "Stage2Running"
	StateStage2Complete              AssessmentState = "Stage2Complete"
	StateStage3Running               AssessmentState = "Stage3Running"
	StateStage3Complete              AssessmentState = "Stage3Complete"
	StateSynthesisReviewPending      AssessmentState = "SynthesisReviewPending"
	StateSynthesisReviewInProgress   AssessmentState = "SynthesisReviewInProgress"
	StateSynthesisApproved           AssessmentState = "SynthesisApproved"
	StateSynthesisRevisionRequested  AssessmentState = "SynthesisRevisionRequested"
	StateSynthesisRejected           AssessmentState = "SynthesisRejected"
	StateExtractingData              AssessmentState = "ExtractingData"
	StateGeneratingReport            AssessmentState = "GeneratingReport"
	StateReportReviewPending         AssessmentState = "ReportReviewPending"
	StateReportReviewInProgress      AssessmentState = "ReportReviewInProgress"
	StateReportApproved              AssessmentState = "ReportApproved"
	StateReportEditRequested         AssessmentState = "ReportEditRequested"
	StateReportRegenerationRequested AssessmentState = "ReportRegenerationRequested"
	StateReportRejected              AssessmentState = "ReportRejected"
	StateUpdatingKnowledge           AssessmentState = "UpdatingKnowledge"
	StateCompleted                   AssessmentState = "Completed"
	StateFailed                      AssessmentState = "Failed"
	StateCancelled                   AssessmentState = "Cancelled"
)

// IsTerminal reports whether s is one of the assessment's terminal states
// (spec §3: Approved, Rejected, Failed, Cancelled — realized here as the
// four states that end the workflow).
func (s AssessmentState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateReportRejected, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Transition is one persisted (from, to, timestamp, metadata) audit record
// (spec §4.9).
type Transition struct {
	From     AssessmentState        `json:"from"`
	To       AssessmentState        `json:"to"`
	At       time.Time              `json:"at"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// TransitionLog is a JSONB-backed append-only transition history.
type TransitionLog []Transition

func (t TransitionLog) Value() (driver.Value, error) { return json.Marshal(t) }

func (t *TransitionLog) Scan(value interface{}) error {
	if value == nil {
		*t = make(TransitionLog, 0)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		*t = make(TransitionLog, 0)
		return nil
	}
	if len(raw) == 0 {
		*t = make(TransitionLog, 0)
		return nil
	}
	return json.Unmarshal(raw, t)
}

// CouncilHistory is a JSONB-backed append-only list of council runs
// (spec §3: "a new run appended to a history list").
type CouncilHistory []CouncilRun

func (c CouncilHistory) Value() (driver.Value, error) { return json.Marshal(c) }

func (c *CouncilHistory) Scan(value interface{}) error {
	if value == nil {
		*c = make(CouncilHistory, 0)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		*c = make(CouncilHistory, 0)
		return nil
	}
	if len(raw) == 0 {
		*c = make(CouncilHistory, 0)
		return nil
	}
	return json.Unmarshal(raw, c)
}

// ContextMetadata is the free-form request-scoped metadata attached at
// submission (jurisdiction hints, requested filters, priority, ...).
type ContextMetadata map[string]interface{}

func (c ContextMetadata) Value() (driver.Value, error) { return json.Marshal(c) }

func (c *ContextMetadata) Scan(value interface{}) error {
	if value == nil {
		*c = make(ContextMetadata)
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		*c = make(ContextMetadata)
		return nil
	}
	if len(raw) == 0 {
		*c = make(ContextMetadata)
		return nil
	}
	return json.Unmarshal(raw, c)
}

// QualityMetrics tracks retrieval/extraction degradation signals used by
// the quality gate (spec §4.5, §4.8).
type QualityMetrics struct {
	RetrievalHitCount     int      `json:"retrieval_hit_count"`
	RetrievalTopMeanScore float64  `json:"retrieval_top_mean_score"`
	RetrievalExpanded     bool     `json:"retrieval_expanded"`
	MissingThemeCount     int      `json:"missing_theme_count"`
	ParseWarnings         []string `json:"parse_warnings,omitempty"`
}

func (q QualityMetrics) Value() (driver.Value, error) { return json.Marshal(q) }

func (q *QualityMetrics) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, q)
}

// Assessment is the top-level workflow-owned entity (spec §3).
type Assessment struct {
	ID              uuid.UUID             `json:"assessment_id"`
	ProposalText    string                `json:"proposal_text"`
	ContextMetadata ContextMetadata       `json:"context_metadata"`
	State           AssessmentState       `json:"state"`
	CouncilHistory  CouncilHistory        `json:"council_history"`
	ReportSections  *StructuredAssessment `json:"report_sections,omitempty"`
	Sources         []string              `json:"sources"`
	QualityMetrics  QualityMetrics        `json:"quality_metrics"`
	ReviewDecisions []ReviewDecision      `json:"review_decisions"`
	Transitions     TransitionLog         `json:"transitions"`
	RevisionCounts  map[string]int        `json:"revision_counts"`
	FailureReason   string                `json:"failure_reason,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// NewAssessment creates a fresh Draft assessment for a validated proposal.
func NewAssessment(proposalText string, ctxMeta ContextMetadata) *Assessment {
	now := time.Now()
	return &Assessment{
		ID:              uuid.New(),
		ProposalText:    proposalText,
		ContextMetadata: ctxMeta,
		State:           StateDraft,
		CouncilHistory:  make(CouncilHistory, 0),
		Sources:         make([]string, 0),
		ReviewDecisions: make([]ReviewDecision, 0),
		Transitions:     make(TransitionLog, 0),
		RevisionCounts:  make(map[string]int),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CurrentCouncilRun returns the most recently appended council run, or nil
// if none exists yet.
func (a *Assessment) CurrentCouncilRun() *CouncilRun {
	if len(a.CouncilHistory) == 0 {
		return nil
	}
	return &a.CouncilHistory[len(a.CouncilHistory)-1]
}
