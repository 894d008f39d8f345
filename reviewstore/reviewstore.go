// Package reviewstore implements C10: the queue of pending human-review
// checkpoints, their resolved decisions, and SLA-deadline tracking (spec
// §4.10). Grounded on repository/generation_job_repository.go's CRUD/
// status shape (Create/GetByID/UpdateStatus/Complete/Fail), generalized
// from one petition's generation job to many assessments' two review
// checkpoints (synthesis, report).
package reviewstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/euria/council-engine/models"
)

// Status is the queue entry's own lifecycle, distinct from the workflow's
// AssessmentState: a queue entry starts Pending and becomes Resolved the
// moment workflow.Engine.Review records a decision against it.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// QueueEntry is a persisted review-queue record: the spec §4.10 queue item
// plus the store's own resolution bookkeeping.
type QueueEntry struct {
	AssessmentID uuid.UUID         `json:"assessment_id"`
	ReviewType   models.ReviewType `json:"review_type"`
	Priority     models.Priority   `json:"priority"`
	Status       Status            `json:"status"`
	QueuedAt     time.Time         `json:"queued_at"`
	SLADeadline  time.Time         `json:"sla_deadline"`
	ResolvedAt   *time.Time        `json:"resolved_at,omitempty"`
}

// Item returns the spec §4.10 wire shape (sans store-internal Status).
func (e QueueEntry) Item() models.ReviewQueueItem {
	return models.ReviewQueueItem{
		AssessmentID: e.AssessmentID,
		ReviewType:   e.ReviewType,
		Priority:     e.Priority,
		QueuedAt:     e.QueuedAt,
		SLADeadline:  e.SLADeadline,
	}
}

// ListFilter narrows List's queue listing (spec §4.10's "queue listing
// filter"). Zero values mean "don't filter on this field".
type ListFilter struct {
	Status     Status
	ReviewType models.ReviewType
}

var (
	ErrNotFound        = errors.New("reviewstore: queue entry not found")
	ErrAlreadyResolved = errors.New("reviewstore: queue entry already resolved")
)

// Store is C10's persistence contract: queue CRUD, decision history, and
// SLA-aware enqueue. Grounded on the same small-verb-named-interface shape
// workflow.AssessmentStore and vectorstore.Backend already use.
type Store interface {
	Enqueue(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType, priority models.Priority) (*QueueEntry, error)
	Get(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) (*QueueEntry, error)
	Resolve(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) error
	List(ctx context.Context, filter ListFilter) ([]QueueEntry, error)
	RecordDecision(ctx context.Context, decision models.ReviewDecision) error
	History(ctx context.Context, assessmentID uuid.UUID) ([]models.ReviewDecision, error)
}

// SLATable computes a review's deadline from spec §6's review_slas,
// with per-priority overrides.
type SLATable struct {
	defaults   map[models.ReviewType]time.Duration
	byPriority map[models.Priority]map[models.ReviewType]time.Duration
}

// DefaultSLATable is spec §6's review_slas default: synthesis=24h,
// report=48h, no per-priority overrides.
func DefaultSLATable() SLATable {
	return NewSLATable(map[models.ReviewType]time.Duration{
		models.ReviewSynthesis: 24 * time.Hour,
		models.ReviewReport:    48 * time.Hour,
	}, nil)
}

// NewSLATable builds a table from explicit defaults and optional
// per-priority overrides (spec §6 "with per-priority overrides").
func NewSLATable(defaults map[models.ReviewType]time.Duration, byPriority map[models.Priority]map[models.ReviewType]time.Duration) SLATable {
	if byPriority == nil {
		byPriority = make(map[models.Priority]map[models.ReviewType]time.Duration)
	}
	return SLATable{defaults: defaults, byPriority: byPriority}
}

// Deadline computes the SLA deadline for a review queued at queuedAt, using
// the priority-specific duration when one is configured and falling back
// to the review type's default otherwise.
func (t SLATable) Deadline(reviewType models.ReviewType, priority models.Priority, queuedAt time.Time) time.Time {
	if overrides, ok := t.byPriority[priority]; ok {
		if d, ok := overrides[reviewType]; ok {
			return queuedAt.Add(d)
		}
	}
	return queuedAt.Add(t.defaults[reviewType])
}

// HashReviewerPassword hashes a reviewer credential the way
// cmd/create-test-user hashes petition-platform user passwords — the
// reviewer identity a ReviewDecision's ReviewerID names needs the same
// provisioning idiom even though a full auth model is out of scope (spec
// §4.10: "no advanced auth model is specified at the core layer").
func HashReviewerPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyReviewerPassword reports whether password matches hash produced by
// HashReviewerPassword.
func VerifyReviewerPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// MemoryStore is an in-process Store, in vectorstore.MemoryBackend's
// mutex-guarded-map idiom — used by tests and small deployments without a
// live Postgres.
type MemoryStore struct {
	mu        sync.Mutex
	sla       SLATable
	queue     map[string]*QueueEntry
	decisions map[uuid.UUID][]models.ReviewDecision
}

func NewMemoryStore(sla SLATable) *MemoryStore {
	return &MemoryStore{
		sla:       sla,
		queue:     make(map[string]*QueueEntry),
		decisions: make(map[uuid.UUID][]models.ReviewDecision),
	}
}

func queueKey(assessmentID uuid.UUID, reviewType models.ReviewType) string {
	return assessmentID.String() + ":" + string(reviewType)
}

func (m *MemoryStore) Enqueue(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType, priority models.Priority) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	e := &QueueEntry{
		AssessmentID: assessmentID,
		ReviewType:   reviewType,
		Priority:     priority,
		Status:       StatusPending,
		QueuedAt:     now,
		SLADeadline:  m.sla.Deadline(reviewType, priority, now),
	}
	m.queue[queueKey(assessmentID, reviewType)] = e
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Get(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) (*QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.queue[queueKey(assessmentID, reviewType)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MemoryStore) Resolve(ctx context.Context, assessmentID uuid.UUID, reviewType models.ReviewType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.queue[queueKey(assessmentID, reviewType)]
	if !ok {
		return ErrNotFound
	}
	if e.Status == StatusResolved {
		return ErrAlreadyResolved
	}
	now := time.Now()
	e.Status = StatusResolved
	e.ResolvedAt = &now
	return nil
}

func (m *MemoryStore) List(ctx context.Context, filter ListFilter) ([]QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []QueueEntry
	for _, e := range m.queue {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.ReviewType != "" && e.ReviewType != filter.ReviewType {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SLADeadline.Before(out[j].SLADeadline) })
	return out, nil
}

func (m *MemoryStore) RecordDecision(ctx context.Context, decision models.ReviewDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions[decision.AssessmentID] = append(m.decisions[decision.AssessmentID], decision)
	return nil
}

func (m *MemoryStore) History(ctx context.Context, assessmentID uuid.UUID) ([]models.ReviewDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ReviewDecision, len(m.decisions[assessmentID]))
	copy(out, m.decisions[assessmentID])
	return out, nil
}
