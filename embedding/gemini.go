package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// GeminiProvider calls the Gemini embedding REST endpoints directly,
// grounded on service/draft_service.go's generateQueryEmbedding and
// cmd/build-embeddings/main.go's generateBatchEmbeddings/
// generateSingleEmbeddings. The SDK client (genai.Client) is used
// elsewhere for chat; embeddings here follow the teacher's choice to hit
// the REST surface directly, since the genai SDK version vendored by the
// teacher does not expose batch embedding.
type GeminiProvider struct {
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	baseURL    string
}

const (
	geminiEmbedURL = "https://generativelanguage.googleapis.com/v1beta/models/%s:embedContent"
	geminiBatchURL = "https://generativelanguage.googleapis.com/v1beta/models/%s:batchEmbedContents"
	geminiBatchMax = 100
)

func NewGeminiProvider(apiKey, model string, dimension int) *GeminiProvider {
	if model == "" {
		model = "gemini-embedding-001"
	}
	if dimension == 0 {
		dimension = 768
	}
	return &GeminiProvider{
		apiKey:     apiKey,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    "https://generativelanguage.googleapis.com/v1beta/models",
	}
}

func (p *GeminiProvider) Name() string   { return "gemini:" + p.model }
func (p *GeminiProvider) Dimension() int { return p.dimension }

type geminiEmbedRequest struct {
	Model                string             `json:"model"`
	Content              geminiContentInput `json:"content"`
	TaskType             string             `json:"task_type,omitempty"`
	OutputDimensionality int                `json:"output_dimensionality,omitempty"`
}

type geminiContentInput struct {
	Parts []geminiPartInput `json:"parts"`
}

type geminiPartInput struct {
	Text string `json:"text"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float64 `json:"values"`
	} `json:"embedding"`
}

type geminiBatchRequest struct {
	Requests []geminiEmbedRequest `json:"requests"`
}

type geminiBatchResponse struct {
	Embeddings []struct {
		Values []float64 `json:"values"`
	} `json:"embeddings"`
}

// Embed preserves input order (spec §4.1) and batches internally, splitting
// into chunks of geminiBatchMax just as generateBatchEmbeddings does.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([]Vector, len(texts))
	for start := 0; start < len(texts); start += geminiBatchMax {
		end := start + geminiBatchMax
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], vecs)
	}
	for _, v := range out {
		Normalize(v)
	}
	return out, nil
}

func (p *GeminiProvider) embedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	reqs := make([]geminiEmbedRequest, len(texts))
	for i, t := range texts {
		reqs[i] = geminiEmbedRequest{
			Model:                "models/" + p.model,
			Content:              geminiContentInput{Parts: []geminiPartInput{{Text: t}}},
			TaskType:             "RETRIEVAL_DOCUMENT",
			OutputDimensionality: p.dimension,
		}
	}
	body, err := json.Marshal(geminiBatchRequest{Requests: reqs})
	if err != nil {
		return nil, PermanentError(fmt.Errorf("marshal batch request: %w", err))
	}

	url := fmt.Sprintf(geminiBatchURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, PermanentError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, TransientError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransientError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, TransientError(fmt.Errorf("embedding API transient error %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, PermanentError(fmt.Errorf("embedding API error %d: %s", resp.StatusCode, respBody))
	}

	var apiResp geminiBatchResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, PermanentError(fmt.Errorf("decode batch response: %w", err))
	}
	if len(apiResp.Embeddings) != len(texts) {
		return nil, PermanentError(fmt.Errorf("batch size mismatch: got %d embeddings for %d inputs", len(apiResp.Embeddings), len(texts)))
	}

	vecs := make([]Vector, len(texts))
	for i, e := range apiResp.Embeddings {
		if len(e.Values) == 0 {
			return nil, PermanentError(fmt.Errorf("empty embedding for input %d", i))
		}
		vecs[i] = Vector(e.Values)
	}
	return vecs, nil
}
