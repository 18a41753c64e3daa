package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/trinity-cloud/drost/internal/gwerr"
)

// schemaCache compiles each tool's declared Parameters schema once and
// reuses it across calls.
type schemaCache struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{schemas: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) compile(toolName string, schema map[string]any) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sch, ok := c.schemas[toolName]; ok {
		return sch, nil
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}

	resourceURL := "mem://tool/" + toolName + ".json"
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, err
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, err
	}
	c.schemas[toolName] = sch
	return sch, nil
}

// validateInput validates input against the tool's declared schema (if
// any), returning a gwerr.Error of KindValidationError with a structured
// issue list on failure.
func (c *schemaCache) validateInput(toolName string, schema map[string]any, input map[string]any) error {
	if schema == nil {
		return nil
	}
	sch, err := c.compile(toolName, schema)
	if err != nil {
		// A malformed declared schema is a tool registration bug, not a
		// caller input error — treat as always-valid rather than block
		// every call to a misconfigured tool.
		return nil
	}

	if err := sch.Validate(toAny(input)); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return gwerr.Validation("tool input failed schema validation", flattenIssues(verr)...)
		}
		return gwerr.Validation(fmt.Sprintf("tool input failed schema validation: %v", err))
	}
	return nil
}

func flattenIssues(verr *jsonschema.ValidationError) []gwerr.Issue {
	var issues []gwerr.Issue
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		issues = append(issues, gwerr.Issue{Field: "input", Message: e.Error()})
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(verr)
	return issues
}

// toAny round-trips v through JSON so map[string]any values match the
// concrete types jsonschema.Schema.Validate expects (json.Number, etc.).
func toAny(v map[string]any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
