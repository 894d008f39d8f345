package models

import (
	"time"

	"github.com/google/uuid"
)

// ReviewType distinguishes the two human-review checkpoints (spec §3, §4.9).
type ReviewType string

const (
	ReviewSynthesis ReviewType = "synthesis"
	ReviewReport    ReviewType = "report"
)

// ReviewAction is the closed set of decisions a reviewer may take
// (spec §6).
type ReviewAction string

const (
	ActionApprove         ReviewAction = "approve"
	ActionRequestRevision ReviewAction = "request_revision"
	ActionReject          ReviewAction = "reject"
	ActionEdit            ReviewAction = "edit"
)

// ReviewDecision records a single human-review outcome (spec §3).
type ReviewDecision struct {
	ID               uuid.UUID    `json:"id"`
	AssessmentID     uuid.UUID    `json:"assessment_id"`
	ReviewType       ReviewType   `json:"review_type"`
	Decision         ReviewAction `json:"decision"`
	Comments         string       `json:"comments"`
	ReviewerID       string       `json:"reviewer_id"`
	ReviewedAt       time.Time    `json:"reviewed_at"`
	RevisionFeedback string       `json:"revision_feedback,omitempty"`
}

// Priority drives SLA deadline computation in the review store (spec §4.10).
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ReviewQueueItem is a pending review awaiting a decision, with its
// computed SLA deadline.
type ReviewQueueItem struct {
	AssessmentID uuid.UUID  `json:"assessment_id"`
	ReviewType   ReviewType `json:"review_type"`
	Priority     Priority   `json:"priority"`
	QueuedAt     time.Time  `json:"queued_at"`
	SLADeadline  time.Time  `json:"sla_deadline"`
}
