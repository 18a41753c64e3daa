package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func TestAnthropicAdapter_Probe(t *testing.T) {
	a := NewAnthropicAdapter("")
	if res := a.Probe(context.Background(), Profile{}); res.Code != ProbeMissingAuth {
		t.Fatalf("expected ProbeMissingAuth with no API key, got %v", res.Code)
	}

	a2 := NewAnthropicAdapter("sk-test")
	if res := a2.Probe(context.Background(), Profile{}); res.Code != ProbeOK {
		t.Fatalf("expected ProbeOK with an API key configured, got %v", res.Code)
	}
}

func TestAnthropicAdapter_RunTurn_ParsesTextAndToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "sk-test" {
			t.Errorf("expected x-api-key header to be set")
		}
		var body anthropicRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body.System != "be helpful\n" {
			t.Errorf("expected system message folded into System field, got %q", body.System)
		}

		resp := anthropicResponseBody{
			Content: []anthropicContentBlock{
				{Type: "text", Text: "hello"},
				{Type: "tool_use", ID: "call_1", Name: "shell.exec", Input: map[string]any{"command": "ls"}},
			},
		}
		resp.Usage.InputTokens = 10
		resp.Usage.OutputTokens = 5
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("sk-test")
	result, err := a.RunTurn(context.Background(), Profile{BaseURL: srv.URL, Model: "claude-test"}, TurnRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be helpful"},
			{Role: RoleUser, Content: "list files"},
		},
	})
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if result.Text != "hello" {
		t.Fatalf("expected text %q, got %q", "hello", result.Text)
	}
	if len(result.NativeToolCalls) != 1 || result.NativeToolCalls[0].ID != "call_1" || result.NativeToolCalls[0].Name != "shell.exec" {
		t.Fatalf("unexpected tool calls: %+v", result.NativeToolCalls)
	}
	if result.Usage.PromptTokens != 10 || result.Usage.CompletionTokens != 5 {
		t.Fatalf("unexpected usage: %+v", result.Usage)
	}
}

func TestAnthropicAdapter_RunTurn_ClassifiesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("bad-key")
	_, err := a.RunTurn(context.Background(), Profile{BaseURL: srv.URL}, TurnRequest{})
	if gwerr.KindOf(err) != gwerr.KindProviderAuth {
		t.Fatalf("expected KindProviderAuth for HTTP 401, got %v", err)
	}
}

func TestAnthropicAdapter_RunTurn_ClassifiesRetryableStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("sk-test")
	_, err := a.RunTurn(context.Background(), Profile{BaseURL: srv.URL}, TurnRequest{})
	if gwerr.KindOf(err) != gwerr.KindProviderTransport {
		t.Fatalf("expected KindProviderTransport for HTTP 429, got %v", err)
	}
	if !gwerr.KindOf(err).Retryable() {
		t.Fatal("HTTP 429 should classify as a retryable kind")
	}
}

func TestIsRetryableStatus(t *testing.T) {
	cases := map[int]bool{200: false, 400: false, 408: true, 425: true, 429: true, 500: true, 503: true, 401: false}
	for status, want := range cases {
		if got := isRetryableStatus(status); got != want {
			t.Errorf("isRetryableStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
