package tools

import "testing"

func TestRedact_RedactsSecretKeyNamesRegardlessOfCase(t *testing.T) {
	in := map[string]any{"Password": "hunter2", "note": "hello"}
	out := Redact(in).(map[string]any)
	if out["Password"] != redactedPlaceholder {
		t.Fatalf("expected Password to be redacted, got %v", out["Password"])
	}
	if out["note"] != "hello" {
		t.Fatalf("expected unrelated key to survive untouched, got %v", out["note"])
	}
}

func TestRedact_RedactsValuesByShapeRegardlessOfKey(t *testing.T) {
	in := map[string]any{"config": "sk-abcdefghijklmnopqrstuvwxyz"}
	out := Redact(in).(map[string]any)
	if out["config"] != redactedPlaceholder {
		t.Fatalf("expected a credential-shaped value to be redacted regardless of key name, got %v", out["config"])
	}
}

func TestRedact_RecursesIntoNestedMapsAndSlices(t *testing.T) {
	in := map[string]any{
		"nested": map[string]any{"token": "abc"},
		"list":   []any{map[string]any{"secret": "xyz"}},
	}
	out := Redact(in).(map[string]any)
	if out["nested"].(map[string]any)["token"] != redactedPlaceholder {
		t.Fatal("expected nested map secret to be redacted")
	}
	if out["list"].([]any)[0].(map[string]any)["secret"] != redactedPlaceholder {
		t.Fatal("expected secret nested in a list to be redacted")
	}
}

func TestRedact_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"password": "hunter2"}
	Redact(in)
	if in["password"] != "hunter2" {
		t.Fatal("Redact must not mutate its input")
	}
}

func TestRedact_ShortStringsAreNotTreatedAsSecretsByShape(t *testing.T) {
	in := map[string]any{"note": "sk-short"}
	out := Redact(in).(map[string]any)
	if out["note"] != "sk-short" {
		t.Fatalf("expected a too-short sk- prefixed string to survive, got %v", out["note"])
	}
}
