package sessionmgr

import (
	"encoding/json"
	"strings"
)

// ParsedToolCall is one text-mode tool call extracted from a provider's
// raw text output.
type ParsedToolCall struct {
	ID    string // set for native tool calls; empty for text-mode TOOL_CALL
	Name  string
	Input map[string]any
}

// parseToolCall scans text for a TOOL_CALL directive: it finds the first
// occurrence of the literal token, then parses the brace-balanced JSON
// object that follows. Code fences are not treated specially, so bare,
// prefixed and Markdown-fenced forms all match; the first match wins.
func parseToolCall(text string) (*ParsedToolCall, bool) {
	idx := strings.Index(text, "TOOL_CALL")
	if idx < 0 {
		return nil, false
	}
	rest := text[idx+len("TOOL_CALL"):]

	braceStart := strings.IndexByte(rest, '{')
	if braceStart < 0 {
		return nil, false
	}
	jsonText, ok := extractBalancedJSON(rest[braceStart:])
	if !ok {
		return nil, false
	}

	var envelope struct {
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		return nil, false
	}
	if envelope.Name == "" {
		return nil, false
	}
	return &ParsedToolCall{Name: envelope.Name, Input: envelope.Input}, true
}

// extractBalancedJSON returns the shortest brace-balanced JSON object
// starting at s[0] (which must be '{').
func extractBalancedJSON(s string) (string, bool) {
	if len(s) == 0 || s[0] != '{' {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i, c := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// toolResultEnvelope is the line-protocol payload appended as a `tool`
// message after executing a parsed or native tool call.
type toolResultEnvelope struct {
	Name   string `json:"name"`
	CallID string `json:"callId,omitempty"`
	OK     bool   `json:"ok"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

func encodeToolResult(e toolResultEnvelope) string {
	data, _ := json.Marshal(e)
	return "TOOL_RESULT " + string(data)
}

func encodeNativeCalls(calls []ParsedToolCall) string {
	type nativeCall struct {
		ID    string         `json:"id,omitempty"`
		Name  string         `json:"name"`
		Input map[string]any `json:"input"`
	}
	out := make([]nativeCall, len(calls))
	for i, c := range calls {
		out[i] = nativeCall{ID: c.ID, Name: c.Name, Input: c.Input}
	}
	data, _ := json.Marshal(out)
	return "TOOL_NATIVE_CALLS " + string(data)
}
