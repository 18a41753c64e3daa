package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// WebTool implements the required `web` built-in with `fetch` and
// `search` actions. Grounded in the teacher's internal/tools/web_fetch.go
// and web_search.go, merged into one multi-action tool per spec.md §4.5;
// the teacher's provider-specific search backends (Brave, DuckDuckGo) are
// collapsed behind a single SearchFunc so the tool itself stays
// provider-agnostic, with go-rod wired as an optional JS-render fetch mode
// (SPEC_FULL.md §B).
type WebTool struct {
	HTTPClient  *http.Client
	RenderJS    bool
	SearchFunc  func(ctx context.Context, query string) (string, error)
	MaxBodyBytes int64
}

func NewWebTool() *WebTool {
	return &WebTool{
		HTTPClient:   &http.Client{Timeout: 20 * time.Second},
		MaxBodyBytes: 512 * 1024,
	}
}

func (t *WebTool) Name() string        { return "web" }
func (t *WebTool) Description() string { return "Fetch a URL or search the web" }

func (t *WebTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"fetch", "search"}},
			"url":    map[string]any{"type": "string"},
			"query":  map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *WebTool) Execute(ctx context.Context, args map[string]any) *Result {
	action, _ := args["action"].(string)
	switch action {
	case "fetch":
		rawURL, _ := args["url"].(string)
		if rawURL == "" {
			return ErrorResult("url is required for action=fetch")
		}
		return t.fetch(ctx, rawURL)
	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			return ErrorResult("query is required for action=search")
		}
		return t.search(ctx, query)
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (t *WebTool) fetch(ctx context.Context, rawURL string) *Result {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return ErrorResult(fmt.Sprintf("invalid url: %v", err))
	}

	if t.RenderJS {
		return t.fetchRendered(ctx, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ErrorResult(err.Error())
	}
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return ErrorResult(err.Error())
	}
	defer resp.Body.Close()

	limit := t.MaxBodyBytes
	if limit <= 0 {
		limit = 512 * 1024
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return ErrorResult(err.Error())
	}
	if resp.StatusCode >= 400 {
		return ErrorResult(fmt.Sprintf("fetch failed: HTTP %d", resp.StatusCode))
	}
	return NewResult(string(body))
}

// fetchRendered uses go-rod to load rawURL in a headless browser and
// return the rendered page text, for JS-heavy pages a plain GET would
// return empty for.
func (t *WebTool) fetchRendered(ctx context.Context, rawURL string) *Result {
	browser := rod.New()
	if err := browser.Connect(); err != nil {
		return ErrorResult(fmt.Sprintf("headless render unavailable: %v", err))
	}
	defer browser.Close()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return ErrorResult(fmt.Sprintf("render fetch failed: %v", err))
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return ErrorResult(fmt.Sprintf("render fetch failed waiting for load: %v", err))
	}
	text, err := page.Element("body")
	if err != nil {
		return ErrorResult(fmt.Sprintf("render fetch could not locate body: %v", err))
	}
	content, err := text.Text()
	if err != nil {
		return ErrorResult(fmt.Sprintf("render fetch could not extract text: %v", err))
	}
	return NewResult(content)
}

func (t *WebTool) search(ctx context.Context, query string) *Result {
	if t.SearchFunc == nil {
		return ErrorResult("no search backend configured")
	}
	out, err := t.SearchFunc(ctx, query)
	if err != nil {
		return ErrorResult(err.Error())
	}
	return NewResult(out)
}
