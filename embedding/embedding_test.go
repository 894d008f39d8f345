package embedding

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	calls   int
	results [][]Vector
	errs    []error
}

func (f *fakeProvider) Name() string   { return "fake" }
func (f *fakeProvider) Dimension() int { return 3 }

func (f *fakeProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, errors.New("fakeProvider exhausted")
}

func TestRetryingProvider_SucceedsAfterTransientErrors(t *testing.T) {
	fp := &fakeProvider{
		errs:    []error{TransientError(errors.New("429")), TransientError(errors.New("503")), nil},
		results: [][]Vector{nil, nil, {{1, 0, 0}}},
	}
	p := NewRetryingProvider(fp, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})
	p.sleep = func(time.Duration) {}
	p.jitter = func() float64 { return 0 }

	vecs, err := p.Embed(context.Background(), []string{"x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 1 || vecs[0][0] != 1 {
		t.Fatalf("unexpected result: %v", vecs)
	}
	if fp.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", fp.calls)
	}
}

func TestRetryingProvider_PermanentErrorStopsImmediately(t *testing.T) {
	fp := &fakeProvider{errs: []error{PermanentError(errors.New("bad request"))}}
	p := NewRetryingProvider(fp, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})
	p.sleep = func(time.Duration) {}

	_, err := p.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if fp.calls != 1 {
		t.Fatalf("expected exactly 1 call on permanent error, got %d", fp.calls)
	}
}

func TestRetryingProvider_ExhaustsRetries(t *testing.T) {
	fp := &fakeProvider{errs: []error{
		TransientError(errors.New("1")),
		TransientError(errors.New("2")),
		TransientError(errors.New("3")),
		TransientError(errors.New("4")),
	}}
	p := NewRetryingProvider(fp, RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond})
	p.sleep = func(time.Duration) {}
	p.jitter = func() float64 { return 0 }

	_, err := p.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fp.calls != 4 {
		t.Fatalf("expected 4 calls (1 + 3 retries), got %d", fp.calls)
	}
}

func TestNormalizeAndCosineSimilarity(t *testing.T) {
	v := Vector{3, 4, 0}
	Normalize(v)
	if got := v[0]*v[0] + v[1]*v[1] + v[2]*v[2]; got < 0.999 || got > 1.001 {
		t.Fatalf("expected unit vector, got squared norm %v", got)
	}

	a := Vector{1, 0, 0}
	b := Vector{1, 0, 0}
	if sim := CosineSimilarity(a, b); sim < 0.999 {
		t.Fatalf("expected similarity ~1, got %v", sim)
	}

	c := Vector{0, 1, 0}
	if sim := CosineSimilarity(a, c); sim > 0.001 {
		t.Fatalf("expected similarity ~0, got %v", sim)
	}
}

func TestNormalizeZeroVectorNoPanic(t *testing.T) {
	v := Vector{0, 0, 0}
	Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector to stay zero, got %v", v)
		}
	}
}
