package tools

import (
	"testing"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

func TestValidateInput_NilSchemaAlwaysPasses(t *testing.T) {
	c := newSchemaCache()
	if err := c.validateInput("t", nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("expected nil schema to always pass, got %v", err)
	}
}

func TestValidateInput_MissingRequiredFieldFails(t *testing.T) {
	c := newSchemaCache()
	schema := map[string]any{"type": "object", "required": []any{"q"}}
	err := c.validateInput("lookup", schema, map[string]any{})
	if gwerr.KindOf(err) != gwerr.KindValidationError {
		t.Fatalf("expected KindValidationError, got %v", err)
	}
}

func TestValidateInput_SatisfyingRequiredFieldPasses(t *testing.T) {
	c := newSchemaCache()
	schema := map[string]any{"type": "object", "required": []any{"q"}}
	if err := c.validateInput("lookup", schema, map[string]any{"q": "hi"}); err != nil {
		t.Fatalf("expected a satisfying input to pass validation, got %v", err)
	}
}

func TestValidateInput_SchemaIsCompiledOncePerToolName(t *testing.T) {
	c := newSchemaCache()
	schema := map[string]any{"type": "object"}
	_ = c.validateInput("t", schema, map[string]any{})
	if _, ok := c.schemas["t"]; !ok {
		t.Fatal("expected the compiled schema to be cached under the tool name")
	}
}
