// Package modelclient implements C6: a uniform async request/response
// client to an external model gateway, with retries+backoff, parallel
// fan-out, and per-model rate limiting. Grounded on
// service/draft_service.go's callGenerationAPI (direct Gemini REST call,
// retry/backoff, finishReason/blockReason checks) generalized to a
// uniform multi-backend client.
package modelclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Role is the closed set of message roles spec §4.6 describes.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered entry in a model call's conversation.
type Message struct {
	Role    Role
	Content string
}

// Params controls a single call's sampling and budget.
type Params struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Response is a model call's result.
type Response struct {
	ModelID string
	Content string
}

// ErrKind distinguishes retryable from permanent model failures (spec
// §4.6, §7).
type ErrKind int

const (
	Transient ErrKind = iota
	Permanent
)

// Error wraps a model failure with its retry classification.
type Error struct {
	ModelID string
	Kind    ErrKind
	Err     error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Kind == Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("model %s error (%s): %v", e.ModelID, kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func TransientError(modelID string, err error) *Error {
	return &Error{ModelID: modelID, Kind: Transient, Err: err}
}
func PermanentError(modelID string, err error) *Error {
	return &Error{ModelID: modelID, Kind: Permanent, Err: err}
}

// Backend performs a single request against one model id. Implementations
// classify their own failures into Transient/Permanent via *Error.
type Backend interface {
	Invoke(ctx context.Context, modelID string, messages []Message, params Params) (string, error)
}

// RetryConfig controls the exponential backoff+jitter applied around a
// Backend's transient failures (spec §4.6: R=3, base*2^attempt with
// jitter).
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Second}
}

// Client is the uniform gateway client. Each model id gets its own
// token-bucket rate limiter (promoted from the teacher's transitive
// golang.org/x/time closure — a real multi-model council fan-out needs
// one even though the teacher's single-model calls fire uncapped).
type Client struct {
	backend Backend
	retry   RetryConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rateSpec rate.Limit
	burst    int

	sleep  func(time.Duration)
	jitter func() float64
}

func New(backend Backend, retry RetryConfig) *Client {
	return &Client{
		backend:  backend,
		retry:    retry,
		limiters: make(map[string]*rate.Limiter),
		rateSpec: rate.Limit(2), // 2 req/s per model id by default
		burst:    4,
		sleep:    time.Sleep,
		jitter:   rand.Float64,
	}
}

func (c *Client) limiterFor(modelID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[modelID]
	if !ok {
		l = rate.NewLimiter(c.rateSpec, c.burst)
		c.limiters[modelID] = l
	}
	return l
}

// Query implements spec §4.6's query(model_id, messages, params) ->
// Response: up to R retries on transient errors with exponential
// backoff+jitter; permanent errors surface immediately. Cancellable via
// ctx, which is the cancellation token the workflow inherits (spec §5).
func (c *Client) Query(ctx context.Context, modelID string, messages []Message, params Params) (*Response, error) {
	if err := c.limiterFor(modelID).Wait(ctx); err != nil {
		return nil, err
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if params.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		text, err := c.backend.Invoke(callCtx, modelID, messages, params)
		if err == nil {
			return &Response{ModelID: modelID, Content: text}, nil
		}

		var modelErr *Error
		if errors.As(err, &modelErr) && modelErr.Kind == Permanent {
			return nil, err
		}
		lastErr = err
		if attempt == c.retry.MaxRetries {
			break
		}
		backoff := time.Duration(float64(c.retry.BaseDelay) * math.Pow(2, float64(attempt)) * (1 + c.jitter()*0.25))
		select {
		case <-callCtx.Done():
			return nil, callCtx.Err()
		default:
			c.sleep(backoff)
		}
	}
	return nil, fmt.Errorf("model %s failed after %d retries: %w", modelID, c.retry.MaxRetries, lastErr)
}

// Result is one entry of QueryParallel's fan-out, carrying either a
// Response or an Error but never both.
type Result struct {
	Response *Response
	Err      error
}

// QueryParallel implements spec §4.6's query_parallel(model_ids, messages)
// -> {model_id: Response|Error}: structured concurrency with partial
// results, never raising itself.
func (c *Client) QueryParallel(ctx context.Context, modelIDs []string, messages []Message, params Params) map[string]Result {
	results := make(map[string]Result, len(modelIDs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range modelIDs {
		wg.Add(1)
		go func(modelID string) {
			defer wg.Done()
			resp, err := c.Query(ctx, modelID, messages, params)
			mu.Lock()
			results[modelID] = Result{Response: resp, Err: err}
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return results
}
