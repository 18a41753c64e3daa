// Package tools implements the gateway's tool runtime: a registry of
// built-in and scanned custom tools, a policy pipeline, JSON-schema
// validation, path-policy-sandboxed execution, and lifecycle event
// emission with secret redaction. Grounded in the teacher's
// internal/tools package (policy.go, filesystem.go, shell.go,
// context_keys.go, result.go), generalized per spec.md §4.5.
package tools

import (
	"context"

	"github.com/trinity-cloud/drost/internal/pathpolicy"
)

// Definition is a single invocable tool. Names are reserved by built-ins;
// custom tools cannot shadow built-ins or each other (collisions are
// skipped with a diagnostic at registry build time, never fatal).
type Definition interface {
	Name() string
	Description() string
	// Parameters returns a JSON-schema-like object describing the tool's
	// input shape, or nil if the tool accepts arbitrary input.
	Parameters() map[string]any
	Execute(ctx context.Context, input map[string]any) *Result
}

// ExecContext carries the per-call execution environment a built-in tool
// needs to honor path policy and emit scoped diagnostics. Stored in the
// context passed to Execute via the ctx key helpers below — never as
// mutable fields on the tool value itself, so one Definition instance is
// safe to invoke concurrently across sessions (teacher's
// internal/tools/context_keys.go pattern).
type ExecContext struct {
	WorkspaceDir string
	Policy       *pathpolicy.Policy
	SessionID    string
	ProviderID   string
}

type ctxKey int

const execContextKey ctxKey = iota

// WithExecContext attaches an ExecContext to ctx.
func WithExecContext(ctx context.Context, ec ExecContext) context.Context {
	return context.WithValue(ctx, execContextKey, ec)
}

// ExecContextFrom recovers the ExecContext attached to ctx, if any.
func ExecContextFrom(ctx context.Context) (ExecContext, bool) {
	ec, ok := ctx.Value(execContextKey).(ExecContext)
	return ec, ok
}
