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

// OpenAIAdapter is a minimal Chat Completions client, grounded in the
// teacher's internal/providers/openai.go request/response shape and
// trimmed the same way as AnthropicAdapter.
type OpenAIAdapter struct {
	HTTPClient *http.Client
	APIKey     string
}

func NewOpenAIAdapter(apiKey string) *OpenAIAdapter {
	return &OpenAIAdapter{HTTPClient: &http.Client{Timeout: 60 * time.Second}, APIKey: apiKey}
}

func (a *OpenAIAdapter) ID() string                     { return "openai" }
func (a *OpenAIAdapter) SupportsNativeToolCalls() bool { return true }

func (a *OpenAIAdapter) Probe(ctx context.Context, profile Profile) ProbeResult {
	if profile.AuthProfileID == "" && a.APIKey == "" {
		return ProbeResult{Code: ProbeMissingAuth, Message: "no API key configured"}
	}
	return ProbeResult{Code: ProbeOK}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIFunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIToolSpec struct {
	Type     string             `json:"type"`
	Function openAIFunctionSpec `json:"function"`
}

type openAIRequestBody struct {
	Model    string           `json:"model"`
	Messages []openAIMessage  `json:"messages"`
	Tools    []openAIToolSpec `json:"tools,omitempty"`
}

type openAIResponseBody struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *OpenAIAdapter) RunTurn(ctx context.Context, profile Profile, req TurnRequest) (*TurnResult, error) {
	body := openAIRequestBody{Model: req.Model}
	for _, m := range req.Messages {
		role := string(m.Role)
		body.Messages = append(body.Messages, openAIMessage{Role: role, Content: m.Content})
	}
	for _, ts := range req.Tools {
		body.Tools = append(body.Tools, openAIToolSpec{Type: "function", Function: openAIFunctionSpec{Name: ts.Name, Description: ts.Description, Parameters: ts.Parameters}})
	}

	baseURL := profile.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "marshal openai request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "build openai request", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("authorization", "Bearer "+a.APIKey)

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "read openai response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, gwerr.New(gwerr.KindProviderAuth, fmt.Sprintf("openai auth failed: HTTP %d", resp.StatusCode))
	}
	if isRetryableStatus(resp.StatusCode) {
		return nil, gwerr.New(gwerr.KindProviderTransport, fmt.Sprintf("openai transient failure: HTTP %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, gwerr.New(gwerr.KindProviderTransport, fmt.Sprintf("openai error: HTTP %d: %s", resp.StatusCode, string(data)))
	}

	var out openAIResponseBody
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, gwerr.Wrap(gwerr.KindProviderTransport, "parse openai response", err)
	}
	if len(out.Choices) == 0 {
		return nil, gwerr.New(gwerr.KindProviderTransport, "openai response had no choices")
	}

	result := &TurnResult{
		Text:  out.Choices[0].Message.Content,
		Usage: Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens},
	}
	for _, tc := range out.Choices[0].Message.ToolCalls {
		var input map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		result.NativeToolCalls = append(result.NativeToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Input: input})
	}
	return result, nil
}
