package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebTool_FetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page body"))
	}))
	defer srv.Close()

	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "fetch", "url": srv.URL})
	if !res.Ok() || res.ForLLM != "page body" {
		t.Fatalf("unexpected fetch result: %+v", res)
	}
}

func TestWebTool_FetchRejectsInvalidURL(t *testing.T) {
	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "fetch", "url": "not a url"})
	if res.Ok() {
		t.Fatal("expected an invalid URL to be rejected")
	}
}

func TestWebTool_FetchSurfacesHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "fetch", "url": srv.URL})
	if res.Ok() {
		t.Fatal("expected a 404 response to be surfaced as an error")
	}
}

func TestWebTool_FetchTruncatesAtMaxBodyBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	tool := NewWebTool()
	tool.MaxBodyBytes = 4
	res := tool.Execute(context.Background(), map[string]any{"action": "fetch", "url": srv.URL})
	if !res.Ok() || res.ForLLM != "0123" {
		t.Fatalf("expected body truncated to 4 bytes, got %+v", res)
	}
}

func TestWebTool_SearchRequiresQuery(t *testing.T) {
	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "search"})
	if res.Ok() {
		t.Fatal("expected a missing query to be an error")
	}
}

func TestWebTool_SearchWithNoBackendIsAnError(t *testing.T) {
	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "search", "query": "weather"})
	if res.Ok() {
		t.Fatal("expected search with no SearchFunc configured to be an error")
	}
}

func TestWebTool_SearchDelegatesToSearchFunc(t *testing.T) {
	tool := NewWebTool()
	tool.SearchFunc = func(ctx context.Context, query string) (string, error) {
		if query == "fail" {
			return "", errors.New("backend down")
		}
		return "results for " + query, nil
	}

	ok := tool.Execute(context.Background(), map[string]any{"action": "search", "query": "weather"})
	if !ok.Ok() || ok.ForLLM != "results for weather" {
		t.Fatalf("unexpected search result: %+v", ok)
	}

	failed := tool.Execute(context.Background(), map[string]any{"action": "search", "query": "fail"})
	if failed.Ok() {
		t.Fatal("expected SearchFunc's error to surface as a failed result")
	}
}

func TestWebTool_UnknownActionIsAnError(t *testing.T) {
	tool := NewWebTool()
	res := tool.Execute(context.Background(), map[string]any{"action": "bogus"})
	if res.Ok() {
		t.Fatal("expected an unknown action to be an error")
	}
}
