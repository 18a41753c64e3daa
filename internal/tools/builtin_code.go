package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CodeTool implements the required git-backed `code.*` built-ins: status,
// diff, patch, search, read_context. New package grounded in the
// teacher's internal/tools/shell.go exec idiom (shelling out via
// exec.CommandContext) applied to git rather than an arbitrary command —
// no VCS library appears anywhere in the retrieved pack, so shelling out
// to the git binary is the only available approach and is consistent with
// how the teacher already runs host subprocesses.
type CodeTool struct{}

func NewCodeTool() *CodeTool { return &CodeTool{} }

func (t *CodeTool) Name() string { return "code" }
func (t *CodeTool) Description() string {
	return "Inspect and modify the mutable-root git working tree: status, diff, patch, search, read_context"
}

func (t *CodeTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"status", "diff", "patch", "search", "read_context"}},
			"path":   map[string]any{"type": "string"},
			"query":  map[string]any{"type": "string"},
			"patch":  map[string]any{"type": "string"},
			"expectedBase": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"git_head": map[string]any{"type": "string"},
				},
			},
		},
		"required": []string{"action"},
	}
}

func (t *CodeTool) Execute(ctx context.Context, args map[string]any) *Result {
	ec, ok := ExecContextFrom(ctx)
	if !ok {
		return ErrorResult("code tool requires an execution context")
	}

	action, _ := args["action"].(string)
	switch action {
	case "status":
		return t.runGit(ctx, ec.WorkspaceDir, "status", "--short")
	case "diff":
		path, _ := args["path"].(string)
		if path == "" {
			return t.runGit(ctx, ec.WorkspaceDir, "diff")
		}
		resolved, err := ec.Policy.AssertInMutableRoots(path)
		if err != nil {
			return ErrorResult(fmt.Sprintf("path %q rejected: %v", path, err))
		}
		return t.runGit(ctx, ec.WorkspaceDir, "diff", "--", resolved)
	case "search":
		query, _ := args["query"].(string)
		if query == "" {
			return ErrorResult("query is required for action=search")
		}
		return t.runGit(ctx, ec.WorkspaceDir, "grep", "-n", query)
	case "read_context":
		path, _ := args["path"].(string)
		if path == "" {
			return ErrorResult("path is required for action=read_context")
		}
		resolved, err := ec.Policy.AssertInMutableRoots(path)
		if err != nil {
			return ErrorResult(fmt.Sprintf("path %q rejected: %v", path, err))
		}
		return t.runGit(ctx, ec.WorkspaceDir, "log", "-p", "-n", "1", "--", resolved)
	case "patch":
		return t.patch(ctx, ec, args)
	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func (t *CodeTool) patch(ctx context.Context, ec ExecContext, args map[string]any) *Result {
	patchText, _ := args["patch"].(string)
	if patchText == "" {
		return ErrorResult("patch is required for action=patch")
	}

	if expectedBase, ok := args["expectedBase"].(map[string]any); ok {
		if wantHead, ok := expectedBase["git_head"].(string); ok && wantHead != "" {
			headResult := t.runGit(ctx, ec.WorkspaceDir, "rev-parse", "HEAD")
			if !headResult.Ok() {
				return headResult
			}
			currentHead := strings.TrimSpace(headResult.ForLLM)
			if currentHead != wantHead {
				return ErrorResult(fmt.Sprintf("stale_revision: expected HEAD %s, got %s", wantHead, currentHead))
			}
		}
	}

	// git apply refuses to touch paths outside the repository root by
	// construction; the mutable-root check on WorkspaceDir itself is the
	// remaining guard (the patch's target paths are relative to it).
	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=nowarn", "-")
	cmd.Dir = ec.WorkspaceDir
	cmd.Stdin = strings.NewReader(patchText)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return ErrorResult(fmt.Sprintf("patch failed: %s", msg))
	}
	return NewResult("patch applied")
}

func (t *CodeTool) runGit(ctx context.Context, dir string, args ...string) *Result {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := stderr.String()
		if msg == "" {
			msg = err.Error()
		}
		return ErrorResult(msg)
	}
	out := stdout.String()
	if out == "" {
		out = "(no output)"
	}
	return NewResult(out)
}
