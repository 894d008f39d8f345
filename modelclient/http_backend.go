package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPBackend calls the Gemini generateContent REST endpoint directly,
// grounded on service/draft_service.go's callGenerationAPI: manual JSON
// request assembly, finishReason/blockReason checks, transient
// classification on 429/5xx. One Backend instance serves every model id
// passed to Query — the model id selects the endpoint path.
type HTTPBackend struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

func NewHTTPBackend(apiKey string) *HTTPBackend {
	return &HTTPBackend{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    defaultGeminiBaseURL,
	}
}

type geminiGenerateRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// Invoke translates the uniform Message list into Gemini's
// contents/systemInstruction shape and classifies failures per spec §7:
// malformed request / auth / blocked prompt are permanent; timeouts,
// 429, and 5xx are transient.
func (b *HTTPBackend) Invoke(ctx context.Context, modelID string, messages []Message, params Params) (string, error) {
	var sys *geminiContent
	var contents []geminiContent
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			sys = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: m.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: m.Content}}})
		}
	}

	reqBody := geminiGenerateRequest{
		Contents:          contents,
		SystemInstruction: sys,
		GenerationConfig: geminiGenerationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", PermanentError(modelID, fmt.Errorf("marshal request: %w", err))
	}

	url := fmt.Sprintf("%s/%s:generateContent", b.baseURL, modelID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", PermanentError(modelID, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", b.apiKey)

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", TransientError(modelID, err)
		}
		return "", TransientError(modelID, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", TransientError(modelID, fmt.Errorf("API transient error %d: %s", resp.StatusCode, bodyBytes))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return "", PermanentError(modelID, fmt.Errorf("API error %d: %s", resp.StatusCode, bodyBytes))
	}
	if resp.StatusCode != http.StatusOK {
		return "", PermanentError(modelID, fmt.Errorf("API error %d: %s", resp.StatusCode, bodyBytes))
	}

	var apiResp geminiGenerateResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return "", PermanentError(modelID, fmt.Errorf("decode response: %w", err))
	}
	if apiResp.Error.Message != "" {
		return "", PermanentError(modelID, fmt.Errorf("API error: %s (code %d)", apiResp.Error.Message, apiResp.Error.Code))
	}
	if apiResp.PromptFeedback.BlockReason != "" {
		return "", PermanentError(modelID, fmt.Errorf("prompt blocked: %s", apiResp.PromptFeedback.BlockReason))
	}
	if len(apiResp.Candidates) == 0 {
		return "", PermanentError(modelID, fmt.Errorf("API returned no candidates"))
	}

	var out bytes.Buffer
	for _, cand := range apiResp.Candidates {
		for _, part := range cand.Content.Parts {
			out.WriteString(part.Text)
		}
	}
	if out.Len() == 0 {
		return "", PermanentError(modelID, fmt.Errorf("API returned empty content"))
	}
	return out.String(), nil
}
