package tools

// Result is the outcome of one tool execution. Grounded in the teacher's
// internal/tools/result.go, trimmed of the managed-mode Usage/Provider/
// Model fields (those belonged to teacher tools that called back into an
// LLM themselves; no built-in here does that).
type Result struct {
	ForLLM  string `json:"output,omitempty"`
	IsError bool   `json:"-"`
	Err     string `json:"error,omitempty"`
}

// NewResult builds a successful result.
func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

// ErrorResult builds a failed result carrying a human-readable message.
func ErrorResult(message string) *Result {
	return &Result{IsError: true, Err: message}
}

// Ok reports whether the result represents success.
func (r *Result) Ok() bool { return !r.IsError }
