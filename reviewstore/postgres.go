package reviewstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/euria/council-engine/models"
)

// PostgresStore persists the review queue and decision history to Postgres,
// grounded on repository/generation_job_repository.go's
// Create/GetByID/UpdateStatus/Complete/Fail CRUD shape.
type PostgresStore struct {
	pool *pgxpool.Pool
	sla  SLATable
}

func NewPostgresStore(pool *pgxpool.Pool, sla SLATable) *PostgresStore {
	return &PostgresStore{pool: pool, sla: sla}
}

func (p *PostgresStore) Enqueue(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType, priority models.Priority) (*QueueEntry, error) {
	now := time.Now()
	e := &QueueEntry{
		AssessmentID: assessmentID,
		ReviewType:   reviewType,
		Priority:     priority,
		Status:       StatusPending,
		QueuedAt:     now,
		SLADeadline:  p.sla.Deadline(reviewType, priority, now),
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO review_queue (assessment_id, review_type, priority, status, queued_at, sla_deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (assessment_id, review_type) DO UPDATE SET
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			queued_at = EXCLUDED.queued_at,
			sla_deadline = EXCLUDED.sla_deadline,
			resolved_at = NULL
	`, e.AssessmentID, e.ReviewType, e.Priority, e.Status, e.QueuedAt, e.SLADeadline)
	if err != nil {
		return nil, fmt.Errorf("reviewstore: enqueue %s/%s: %w", assessmentID, reviewType, err)
	}
	return e, nil
}

func (p *PostgresStore) Get(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) (*QueueEntry, error) {
	e := &QueueEntry{}
	err := p.pool.QueryRow(ctx, `
		SELECT assessment_id, review_type, priority, status, queued_at, sla_deadline, resolved_at
		FROM review_queue WHERE assessment_id = $1 AND review_type = $2
	`, assessmentID, reviewType).Scan(&e.AssessmentID, &e.ReviewType, &e.Priority, &e.Status, &e.QueuedAt, &e.SLADeadline, &e.ResolvedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reviewstore: get %s/%s: %w", assessmentID, reviewType, err)
	}
	return e, nil
}

func (p *PostgresStore) Resolve(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE review_queue SET status = $3, resolved_at = $4
		WHERE assessment_id = $1 AND review_type = $2 AND status = $5
	`, assessmentID, reviewType, StatusResolved, time.Now(), StatusPending)
	if err != nil {
		return fmt.Errorf("reviewstore: resolve %s/%s: %w", assessmentID, reviewType, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := p.Get(ctx, assessmentID, reviewType); err != nil {
			return err
		}
		return ErrAlreadyResolved
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, filter ListFilter) ([]QueueEntry, error) {
	query := `SELECT assessment_id, review_type, priority, status, queued_at, sla_deadline, resolved_at FROM review_queue WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.ReviewType != "" {
		args = append(args, filter.ReviewType)
		query += fmt.Sprintf(" AND review_type = $%d", len(args))
	}
	query += " ORDER BY sla_deadline ASC"

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reviewstore: list: %w", err)
	}
	defer rows.Close()

	var out []QueueEntry
	for rows.Next() {
		var e QueueEntry
		if err := rows.Scan(&e.AssessmentID, &e.ReviewType, &e.Priority, &e.Status, &e.QueuedAt, &e.SLADeadline, &e.ResolvedAt); err != nil {
			return nil, fmt.Errorf("reviewstore: scan list row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *PostgresStore) RecordDecision(ctx context.Context, decision models.ReviewDecision) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO review_decisions (id, assessment_id, review_type, decision, comments, reviewer_id, reviewed_at, revision_feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, decision.ID, decision.AssessmentID, decision.ReviewType, decision.Decision, decision.Comments, decision.ReviewerID, decision.ReviewedAt, decision.RevisionFeedback)
	if err != nil {
		return fmt.Errorf("reviewstore: record decision for %s: %w", decision.AssessmentID, err)
	}
	return nil
}

func (p *PostgresStore) History(ctx context.Context, assessmentID uuid.UUID) ([]models.ReviewDecision, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, assessment_id, review_type, decision, comments, reviewer_id, reviewed_at, revision_feedback
		FROM review_decisions WHERE assessment_id = $1 ORDER BY reviewed_at ASC
	`, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("reviewstore: history %s: %w", assessmentID, err)
	}
	defer rows.Close()

	var out []models.ReviewDecision
	for rows.Next() {
		var d models.ReviewDecision
		if err := rows.Scan(&d.ID, &d.AssessmentID, &d.ReviewType, &d.Decision, &d.Comments, &d.ReviewerID, &d.ReviewedAt, &d.RevisionFeedback); err != nil {
			return nil, fmt.Errorf("reviewstore: scan history row: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
