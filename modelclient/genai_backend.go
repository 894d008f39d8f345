package modelclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// GenaiBackend calls the Gemini gateway through the vendored SDK client
// rather than raw REST, grounded on main.go's initGemini/genai.NewClient
// bootstrap. HTTPBackend stays the default for generateContent (matching
// the teacher's own choice of direct REST over the SDK call path); this
// backend is the SDK-backed alternative the DOMAIN STACK wires in.
type GenaiBackend struct {
	client *genai.Client
}

func NewGenaiBackend(client *genai.Client) *GenaiBackend {
	return &GenaiBackend{client: client}
}

func (b *GenaiBackend) Invoke(ctx context.Context, modelID string, messages []Message, params Params) (string, error) {
	model := b.client.GenerativeModel(modelID)
	model.SetTemperature(float32(params.Temperature))
	if params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(params.MaxTokens))
	}

	var history []*genai.Content
	var systemPrompt string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemPrompt = m.Content
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	cs := model.StartChat()
	if len(history) > 1 {
		cs.History = history[:len(history)-1]
	}
	var last genai.Part = genai.Text("")
	if len(history) > 0 {
		last = history[len(history)-1].Parts[0]
	}

	resp, err := cs.SendMessage(ctx, last)
	if err != nil {
		if ctx.Err() != nil {
			return "", TransientError(modelID, err)
		}
		return "", classifyGenaiError(modelID, err)
	}
	if len(resp.Candidates) == 0 {
		return "", PermanentError(modelID, fmt.Errorf("genai: no candidates returned"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", PermanentError(modelID, fmt.Errorf("genai: empty response content"))
	}
	return sb.String(), nil
}

// classifyGenaiError treats quota/rate-limit-shaped errors as transient
// and everything else (malformed request, auth) as permanent, matching
// spec §7's error taxonomy since the SDK does not expose a structured
// status code the way the REST path does.
func classifyGenaiError(modelID string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "rate") || strings.Contains(msg, "quota") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "deadline") {
		return TransientError(modelID, err)
	}
	return PermanentError(modelID, err)
}
