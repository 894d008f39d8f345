package workflow

import (
	"sync"

	"github.com/google/uuid"

	"github.com/euria/council-engine/models"
)

// EventType is the closed set of streamed event kinds (spec §6).
type EventType string

const (
	EventWorkflowStart    EventType = "workflow_start"
	EventStage            EventType = "stage"
	EventWorkflowComplete EventType = "workflow_complete"
	EventReviewRequired   EventType = "review_required"
	EventReport           EventType = "report"
	EventValidationError  EventType = "validation_error"
	EventError            EventType = "error"
)

// Event is the node-transition progress event spec §4.9 requires every
// transition to emit: {type, stage, node, data?}.
type Event struct {
	Type  EventType              `json:"type"`
	Stage models.AssessmentState `json:"stage"`
	Node  string                 `json:"node,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// eventBus is a minimal per-assessment pub-sub, one buffered channel per
// subscriber. A slow or absent subscriber never blocks the workflow: a
// full channel drops the event rather than stalling the single-threaded
// execution loop (spec §4.9, §5 — I/O-boundary suspension must not be
// held up by an external consumer).
type eventBus struct {
	mu   sync.Mutex
	subs map[uuid.UUID][]chan Event
}

func newEventBus() *eventBus {
	return &eventBus{subs: make(map[uuid.UUID][]chan Event)}
}

// Subscribe returns a channel receiving every event published for id.
// The caller must call the returned unsubscribe function when done.
func (b *eventBus) Subscribe(id uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[id] = append(b.subs[id], ch)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[id]
		for i, c := range subs {
			if c == ch {
				b.subs[id] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe
}

func (b *eventBus) publish(id uuid.UUID, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}
