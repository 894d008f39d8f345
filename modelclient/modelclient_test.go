package modelclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int
	plan  map[string][]callResult
}

type callResult struct {
	text string
	err  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: make(map[string]int), plan: make(map[string][]callResult)}
}

func (f *fakeBackend) Invoke(ctx context.Context, modelID string, messages []Message, params Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls[modelID]
	f.calls[modelID]++
	plan := f.plan[modelID]
	if i >= len(plan) {
		return "", errors.New("fakeBackend exhausted for " + modelID)
	}
	return plan[i].text, plan[i].err
}

func newTestClient(backend Backend) *Client {
	c := New(backend, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})
	c.sleep = func(time.Duration) {}
	c.jitter = func() float64 { return 0 }
	c.rateSpec = 1e6 // effectively unlimited for tests
	return c
}

func TestQuerySucceedsAfterTransientRetries(t *testing.T) {
	fb := newFakeBackend()
	fb.plan["model-a"] = []callResult{
		{err: TransientError("model-a", errors.New("429"))},
		{err: TransientError("model-a", errors.New("503"))},
		{text: "final answer"},
	}
	c := newTestClient(fb)

	resp, err := c.Query(context.Background(), "model-a", []Message{{Role: RoleUser, Content: "hi"}}, Params{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "final answer" {
		t.Fatalf("unexpected content: %v", resp.Content)
	}
	if fb.calls["model-a"] != 3 {
		t.Fatalf("expected 3 calls, got %d", fb.calls["model-a"])
	}
}

func TestQueryPermanentErrorStopsImmediately(t *testing.T) {
	fb := newFakeBackend()
	fb.plan["model-a"] = []callResult{{err: PermanentError("model-a", errors.New("bad request"))}}
	c := newTestClient(fb)

	_, err := c.Query(context.Background(), "model-a", nil, Params{})
	if err == nil {
		t.Fatal("expected error")
	}
	if fb.calls["model-a"] != 1 {
		t.Fatalf("expected exactly 1 call, got %d", fb.calls["model-a"])
	}
}

func TestQueryParallelReturnsPartialResults(t *testing.T) {
	fb := newFakeBackend()
	fb.plan["a"] = []callResult{{text: "A's answer"}}
	fb.plan["b"] = []callResult{{err: PermanentError("b", errors.New("quota exhausted"))}}
	fb.plan["c"] = []callResult{{text: "C's answer"}}
	c := newTestClient(fb)

	results := c.QueryParallel(context.Background(), []string{"a", "b", "c"}, nil, Params{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["a"].Err != nil || results["a"].Response.Content != "A's answer" {
		t.Fatalf("unexpected result for a: %+v", results["a"])
	}
	if results["b"].Err == nil {
		t.Fatalf("expected error for b")
	}
	if results["c"].Err != nil || results["c"].Response.Content != "C's answer" {
		t.Fatalf("unexpected result for c: %+v", results["c"])
	}
}
