package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// defaultDenyPatterns is a regex floor that cannot be disabled by policy,
// complementing the spec's allow/deny prefix lists (supplemented feature
// §C.3). Trimmed from the teacher's internal/tools/shell.go
// defaultDenyPatterns to the categories that matter outside a container
// sandbox: destructive ops, exfiltration, reverse shells, privilege
// escalation, and persistence.
var defaultDenyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`),
	regexp.MustCompile(`\bcurl\b.*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`\bwget\b.*-O\s*-\s*\|\s*(ba)?sh\b`),
	regexp.MustCompile(`/dev/tcp/`),
	regexp.MustCompile(`\b(nc|ncat|netcat)\b.*-[el]\b`),
	regexp.MustCompile(`\bsocat\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bnsenter\b|\bunshare\b`),
	regexp.MustCompile(`/var/run/docker\.sock|docker\.(sock|socket)`),
	regexp.MustCompile(`\bcrontab\b`),
	regexp.MustCompile(`>\s*~/?\.(bashrc|bash_profile|profile|zshrc)`),
}

// ShellTool implements the required `shell` built-in. Grounded in the
// teacher's internal/tools/shell.go ExecTool, generalized to the spec's
// allowCommandPrefixes/denyCommandPrefixes model (sandbox-container
// routing, which the teacher also supports, has no SPEC_FULL.md
// component — this runs directly on the host process).
type ShellTool struct {
	AllowCommandPrefixes []string
	DenyCommandPrefixes  []string
	Timeout              time.Duration
	MaxBufferBytes        int
}

func NewShellTool() *ShellTool {
	return &ShellTool{Timeout: 60 * time.Second, MaxBufferBytes: 1 << 20}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Execute a shell command inside the session's working directory" }

func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{"type": "string"},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) *Result {
	ec, ok := ExecContextFrom(ctx)
	if !ok {
		return ErrorResult("shell tool requires an execution context")
	}

	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	for _, pattern := range defaultDenyPatterns {
		if pattern.MatchString(command) {
			return ErrorResult(fmt.Sprintf("command denied by safety policy: matches %s", pattern.String()))
		}
	}

	if !prefixAllowed(command, t.AllowCommandPrefixes, t.DenyCommandPrefixes) {
		return ErrorResult("command denied by allow/deny prefix policy")
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = ec.WorkspaceDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	maxBuf := t.MaxBufferBytes
	if maxBuf <= 0 {
		maxBuf = 1 << 20
	}
	out := truncateBuf(stdout.String(), maxBuf)
	errOut := truncateBuf(stderr.String(), maxBuf)

	combined := out
	if errOut != "" {
		if combined != "" {
			combined += "\n"
		}
		combined += "STDERR:\n" + errOut
	}

	if err != nil {
		if runCtx.Err() != nil {
			return ErrorResult(fmt.Sprintf("command timed out after %s", timeout))
		}
		if combined == "" {
			combined = err.Error()
		}
		return ErrorResult(combined)
	}

	if combined == "" {
		combined = "(command completed with no output)"
	}
	return NewResult(combined)
}

func prefixAllowed(command string, allow, deny []string) bool {
	for _, d := range deny {
		if strings.HasPrefix(strings.TrimSpace(command), d) {
			return false
		}
	}
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if strings.HasPrefix(strings.TrimSpace(command), a) {
			return true
		}
	}
	return false
}

func truncateBuf(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n...[truncated]"
}
