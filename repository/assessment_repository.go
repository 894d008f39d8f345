// Package repository persists the engine's own entities — Assessment
// records with their embedded council history, review decisions, and
// transition log — to Postgres. Grounded on petition_repository.go's
// Create/GetByID/parameterized-query shape, generalized from one flat
// petition row to Assessment's richer JSONB-backed fields.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/euria/council-engine/models"
)

// AssessmentRepository implements workflow.AssessmentStore against
// Postgres.
type AssessmentRepository struct {
	db *pgxpool.Pool
}

func NewAssessmentRepository(db *pgxpool.Pool) *AssessmentRepository {
	return &AssessmentRepository{db: db}
}

// reportSectionsJSON, together with the inline json.Marshal calls for
// ReviewDecisions and RevisionCounts, marshals the fields models.Assessment
// doesn't itself give a driver.Valuer/sql.Scanner (unlike ContextMetadata,
// CouncilHistory, TransitionLog, QualityMetrics, which already implement
// both; Sources is passed to the driver as a plain string slice): a nil
// *StructuredAssessment can't safely get a value-receiver Value() method
// called through the database/sql/driver interface, so this repository
// marshals those fields by hand instead of adding brittle nil-guarded
// methods to models just for this one caller.
func reportSectionsJSON(s *models.StructuredAssessment) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func (r *AssessmentRepository) Create(ctx context.Context, a *models.Assessment) error {
	reportSections, err := reportSectionsJSON(a.ReportSections)
	if err != nil {
		return fmt.Errorf("repository: marshal report sections: %w", err)
	}
	reviewDecisions, err := json.Marshal(a.ReviewDecisions)
	if err != nil {
		return fmt.Errorf("repository: marshal review decisions: %w", err)
	}
	revisionCounts, err := json.Marshal(a.RevisionCounts)
	if err != nil {
		return fmt.Errorf("repository: marshal revision counts: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, proposal_text, context_metadata, state, council_history,
			report_sections, sources, quality_metrics, review_decisions,
			transitions, revision_counts, failure_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`
	_, err = r.db.Exec(ctx, query,
		a.ID, a.ProposalText, a.ContextMetadata, a.State, a.CouncilHistory,
		reportSections, a.Sources, a.QualityMetrics, reviewDecisions,
		a.Transitions, revisionCounts, a.FailureReason, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: create assessment %s: %w", a.ID, err)
	}
	return nil
}

func (r *AssessmentRepository) Save(ctx context.Context, a *models.Assessment) error {
	reportSections, err := reportSectionsJSON(a.ReportSections)
	if err != nil {
		return fmt.Errorf("repository: marshal report sections: %w", err)
	}
	reviewDecisions, err := json.Marshal(a.ReviewDecisions)
	if err != nil {
		return fmt.Errorf("repository: marshal review decisions: %w", err)
	}
	revisionCounts, err := json.Marshal(a.RevisionCounts)
	if err != nil {
		return fmt.Errorf("repository: marshal revision counts: %w", err)
	}

	query := `
		UPDATE assessments SET
			state = $2, council_history = $3, report_sections = $4, sources = $5,
			quality_metrics = $6, review_decisions = $7, transitions = $8,
			revision_counts = $9, failure_reason = $10, updated_at = $11, completed_at = $12
		WHERE id = $1`
	_, err = r.db.Exec(ctx, query,
		a.ID, a.State, a.CouncilHistory, reportSections, a.Sources,
		a.QualityMetrics, reviewDecisions, a.Transitions,
		revisionCounts, a.FailureReason, a.UpdatedAt, a.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("repository: save assessment %s: %w", a.ID, err)
	}
	return nil
}

func (r *AssessmentRepository) Get(ctx context.Context, id uuid.UUID) (*models.Assessment, error) {
	a := &models.Assessment{}
	var reportSections, reviewDecisions, revisionCounts []byte

	query := `
		SELECT id, proposal_text, context_metadata, state, council_history,
			report_sections, sources, quality_metrics, review_decisions,
			transitions, revision_counts, failure_reason, created_at, updated_at, completed_at
		FROM assessments WHERE id = $1`
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.ProposalText, &a.ContextMetadata, &a.State, &a.CouncilHistory,
		&reportSections, &a.Sources, &a.QualityMetrics, &reviewDecisions,
		&a.Transitions, &revisionCounts, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("repository: assessment %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get assessment %s: %w", id, err)
	}
	if err := unmarshalAssessmentJSON(a, reportSections, reviewDecisions, revisionCounts); err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AssessmentRepository) List(ctx context.Context, status models.AssessmentState) ([]*models.Assessment, error) {
	query := `
		SELECT id, proposal_text, context_metadata, state, council_history,
			report_sections, sources, quality_metrics, review_decisions,
			transitions, revision_counts, failure_reason, created_at, updated_at, completed_at
		FROM assessments`
	args := []interface{}{}
	if status != "" {
		query += " WHERE state = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: list assessments: %w", err)
	}
	defer rows.Close()

	var out []*models.Assessment
	for rows.Next() {
		a := &models.Assessment{}
		var reportSections, reviewDecisions, revisionCounts []byte
		if err := rows.Scan(
			&a.ID, &a.ProposalText, &a.ContextMetadata, &a.State, &a.CouncilHistory,
			&reportSections, &a.Sources, &a.QualityMetrics, &reviewDecisions,
			&a.Transitions, &revisionCounts, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt, &a.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("repository: scan assessment row: %w", err)
		}
		if err := unmarshalAssessmentJSON(a, reportSections, reviewDecisions, revisionCounts); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func unmarshalAssessmentJSON(a *models.Assessment, reportSections, reviewDecisions, revisionCounts []byte) error {
	if len(reportSections) > 0 {
		a.ReportSections = &models.StructuredAssessment{}
		if err := json.Unmarshal(reportSections, a.ReportSections); err != nil {
			return fmt.Errorf("repository: unmarshal report sections for %s: %w", a.ID, err)
		}
	}
	if len(reviewDecisions) > 0 {
		if err := json.Unmarshal(reviewDecisions, &a.ReviewDecisions); err != nil {
			return fmt.Errorf("repository: unmarshal review decisions for %s: %w", a.ID, err)
		}
	}
	if len(revisionCounts) > 0 {
		if err := json.Unmarshal(revisionCounts, &a.RevisionCounts); err != nil {
			return fmt.Errorf("repository: unmarshal revision counts for %s: %w", a.ID, err)
		}
	}
	if a.RevisionCounts == nil {
		a.RevisionCounts = make(map[string]int)
	}
	return nil
}
