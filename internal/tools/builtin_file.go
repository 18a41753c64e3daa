package tools

import (
	"context"
	"fmt"
	"os"
)

// FileTool implements the required `file` built-in: read/write/append/
// list/edit, grounded in the teacher's internal/tools/filesystem.go
// ReadFileTool, generalized into one multi-action tool and routed through
// pathpolicy instead of the teacher's sandbox/interceptor layers (which
// have no SPEC_FULL.md component).
type FileTool struct{}

func NewFileTool() *FileTool { return &FileTool{} }

func (t *FileTool) Name() string        { return "file" }
func (t *FileTool) Description() string { return "Read, write, append, list, or edit files inside the session's mutable roots" }

func (t *FileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"read", "write", "append", "list", "edit"}},
			"path":   map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
			"old_text": map[string]any{"type": "string"},
			"new_text": map[string]any{"type": "string"},
		},
		"required": []string{"action", "path"},
	}
}

func (t *FileTool) Execute(ctx context.Context, args map[string]any) *Result {
	ec, ok := ExecContextFrom(ctx)
	if !ok {
		return ErrorResult("file tool requires an execution context")
	}

	action, _ := args["action"].(string)
	rawPath, _ := args["path"].(string)
	if rawPath == "" {
		return ErrorResult("path is required")
	}

	resolved, err := ec.Policy.AssertInMutableRoots(rawPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("path %q rejected: %v", rawPath, err))
	}

	switch action {
	case "read":
		data, err := os.ReadFile(resolved)
		if err != nil {
			return ErrorResult(err.Error())
		}
		return NewResult(string(data))

	case "write":
		content, _ := args["content"].(string)
		if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
			return ErrorResult(err.Error())
		}
		return NewResult(fmt.Sprintf("wrote %d bytes to %s", len(content), rawPath))

	case "append":
		content, _ := args["content"].(string)
		f, err := os.OpenFile(resolved, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return ErrorResult(err.Error())
		}
		defer f.Close()
		if _, err := f.WriteString(content); err != nil {
			return ErrorResult(err.Error())
		}
		return NewResult(fmt.Sprintf("appended %d bytes to %s", len(content), rawPath))

	case "list":
		entries, err := os.ReadDir(resolved)
		if err != nil {
			return ErrorResult(err.Error())
		}
		out := ""
		for _, e := range entries {
			suffix := ""
			if e.IsDir() {
				suffix = "/"
			}
			out += e.Name() + suffix + "\n"
		}
		return NewResult(out)

	case "edit":
		oldText, _ := args["old_text"].(string)
		newText, _ := args["new_text"].(string)
		data, err := os.ReadFile(resolved)
		if err != nil {
			return ErrorResult(err.Error())
		}
		content := string(data)
		replaced := replaceFirst(content, oldText, newText)
		if replaced == content {
			return ErrorResult("old_text not found in file")
		}
		if err := os.WriteFile(resolved, []byte(replaced), 0o644); err != nil {
			return ErrorResult(err.Error())
		}
		return NewResult(fmt.Sprintf("edited %s", rawPath))

	default:
		return ErrorResult(fmt.Sprintf("unknown action %q", action))
	}
}

func replaceFirst(s, old, new string) string {
	if old == "" {
		return s
	}
	idx := indexOf(s, old)
	if idx < 0 {
		return s
	}
	return s[:idx] + new + s[idx+len(old):]
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 || m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
