package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// AnthropicAdapter is a minimal Messages-API client. Grounded in the
// teacher's internal/providers/anthropic.go request/response shape,
// trimmed to what the contract needs — streaming and the full set of
// content-block variants are not reproduced here (concrete provider wire
// implementations beyond the adapter contract are a non-goal; this exists
// to exercise failover, not to be a complete Anthropic client).
type AnthropicAdapter struct {
	HTTPClient *http.Client
	APIKey     string
}

func NewAnthropicAdapter(apiKey string) *AnthropicAdapter {
	return &AnthropicAdapter{HTTPClient: &http.Client{Timeout: 60 * time.Second}, APIKey: apiKey}
}

func (a *AnthropicAdapter) ID() string                     { return "anthropic" }
func (a *AnthropicAdapter) SupportsNativeToolCalls() bool { return true }

func (a *AnthropicAdapter) Probe(ctx context.Context, profile Profile) ProbeResult {
	if profile.AuthProfileID == "" && a.APIKey == "" {
		return ProbeResult{Code: ProbeMissingAuth, Message: "no API key configured"}
	}
	return ProbeResult{Code: ProbeOK}
}

type anthropicRequestBody struct {
	Model     string              `json:"model"`
	Messages  []anthropicMessage  `json:"messages"`
	System    string              `json:"system,omitempty"`
	MaxTokens int                 `json:"max_tokens"`
	Tools     []anthropicToolSpec `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponseBody struct {
	Content []anthropicContentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

func (a *AnthropicAdapter) RunTurn(ctx context.Context, profile Profile, req TurnRequest) (*TurnResult, error) {
	body := anthropicRequestBody{Model: req.Model, MaxTokens: 4096}
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			body.System += m.Content + "\n"
			continue
		}
		role := "user"
		if m.Role == RoleAssistant {
			role = "assistant"
		}
		body.Messages = append(body.Messages, anthropicMessage{Role: role, Content: m.Content})
	}
	for _, ts := range req.Tools {
		body.Tools = append(body.Tools, anthropicToolSpec{Name: ts.Name, Description: ts.Description, InputSchema: ts.Parameters})
	}

	baseURL := profile.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "marshal anthropic request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "build anthropic request", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-api-key", a.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "read anthropic response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, gwerr.New(gwerr.KindProviderAuth, fmt.Sprintf("anthropic auth failed: HTTP %d", resp.StatusCode))
	}
	if isRetryableStatus(resp.StatusCode) {
		return nil, gwerr.New(gwerr.KindProviderTransport, fmt.Sprintf("anthropic transient failure: HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, gwerr.New(gwerr.KindProviderTransport, fmt.Sprintf("anthropic error: HTTP %d: %s", resp.StatusCode, string(data)))
	}

	var out anthropicResponseBody
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "parse anthropic response", err)
	}

	result := &TurnResult{Usage: Usage{PromptTokens: out.Usage.InputTokens, CompletionTokens: out.Usage.OutputTokens}}
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			result.NativeToolCalls = append(result.NativeToolCalls, ToolCall{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	return result, nil
}

// isRetryableStatus implements the failover classification from
// spec.md §7 / DESIGN.md open-question decision #2: 408, 425, 429, and
// 5xx are retryable.
func isRetryableStatus(code int) bool {
	switch code {
	case 408, 425, 429:
		return true
	}
	return code >= 500
}

func classifyTransportErr(err error) error {
	return gwerr.Wrap(gwerr.KindProviderTransport, "transport error", err)
}
