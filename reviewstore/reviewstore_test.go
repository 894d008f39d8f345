package reviewstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
)

func TestMemoryStoreEnqueueAndResolve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultSLATable())
	assessmentID := uuid.New()

	entry, err := store.Enqueue(ctx, assessmentID, models.ReviewSynthesis, models.PriorityNormal)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if entry.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", entry.Status)
	}
	wantDeadline := entry.QueuedAt.Add(24 * time.Hour)
	if !entry.SLADeadline.Equal(wantDeadline) {
		t.Fatalf("expected synthesis SLA of 24h, got deadline %s vs queued %s", entry.SLADeadline, entry.QueuedAt)
	}

	list, err := store.List(ctx, ListFilter{Status: StatusPending})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 pending entry, got %d", len(list))
	}

	if err := store.Resolve(ctx, assessmentID, models.ReviewSynthesis); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := store.Resolve(ctx, assessmentID, models.ReviewSynthesis); err != ErrAlreadyResolved {
		t.Fatalf("expected ErrAlreadyResolved on double-resolve, got %v", err)
	}

	resolved, err := store.Get(ctx, assessmentID, models.ReviewSynthesis)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.ResolvedAt == nil {
		t.Fatalf("expected resolved entry with a ResolvedAt, got %+v", resolved)
	}
}

func TestMemoryStoreRecordDecisionHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(DefaultSLATable())
	assessmentID := uuid.New()

	d1 := models.ReviewDecision{ID: uuid.New(), AssessmentID: assessmentID, ReviewType: models.ReviewSynthesis, Decision: models.ActionRequestRevision, ReviewerID: "reviewer-1", ReviewedAt: time.Now()}
	d2 := models.ReviewDecision{ID: uuid.New(), AssessmentID: assessmentID, ReviewType: models.ReviewSynthesis, Decision: models.ActionApprove, ReviewerID: "reviewer-1", ReviewedAt: time.Now()}
	if err := store.RecordDecision(ctx, d1); err != nil {
		t.Fatalf("RecordDecision 1: %v", err)
	}
	if err := store.RecordDecision(ctx, d2); err != nil {
		t.Fatalf("RecordDecision 2: %v", err)
	}

	history, err := store.History(ctx, assessmentID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(history))
	}
	if history[0].Decision != models.ActionRequestRevision || history[1].Decision != models.ActionApprove {
		t.Fatalf("expected decisions in insertion order, got %+v", history)
	}
}

func TestSLATablePerPriorityOverride(t *testing.T) {
	sla := NewSLATable(
		map[models.ReviewType]time.Duration{models.ReviewSynthesis: 24 * time.Hour, models.ReviewReport: 48 * time.Hour},
		map[models.Priority]map[models.ReviewType]time.Duration{
			models.PriorityUrgent: {models.ReviewSynthesis: 2 * time.Hour},
		},
	)
	queuedAt := time.Now()

	urgent := sla.Deadline(models.ReviewSynthesis, models.PriorityUrgent, queuedAt)
	if !urgent.Equal(queuedAt.Add(2 * time.Hour)) {
		t.Fatalf("expected urgent override of 2h, got deadline %s vs queued %s", urgent, queuedAt)
	}

	normal := sla.Deadline(models.ReviewSynthesis, models.PriorityNormal, queuedAt)
	if !normal.Equal(queuedAt.Add(24 * time.Hour)) {
		t.Fatalf("expected default 24h for normal priority, got deadline %s vs queued %s", normal, queuedAt)
	}

	report := sla.Deadline(models.ReviewReport, models.PriorityUrgent, queuedAt)
	if !report.Equal(queuedAt.Add(48 * time.Hour)) {
		t.Fatalf("expected report default 48h (no override configured), got %s vs queued %s", report, queuedAt)
	}
}

func TestHashAndVerifyReviewerPassword(t *testing.T) {
	hash, err := HashReviewerPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashReviewerPassword: %v", err)
	}
	if !VerifyReviewerPassword(hash, "correct horse battery staple") {
		t.Fatal("expected correct password to verify")
	}
	if VerifyReviewerPassword(hash, "wrong password") {
		t.Fatal("expected wrong password to fail verification")
	}
}
