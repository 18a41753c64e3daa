package tools

import "regexp"

// secretKeyNames denylist of JSON key names that always redact their value.
var secretKeyNames = map[string]bool{
	"token": true, "password": true, "authorization": true, "api_key": true,
	"apikey": true, "secret": true, "access_token": true, "refresh_token": true,
	"bearer": true, "private_key": true, "client_secret": true,
}

// secretShape matches values that look like a credential regardless of the
// key they are stored under (spec.md §9).
var secretShape = regexp.MustCompile(`^(sk-|Bearer |eyJ|xox[pbar]-|ghp_)`)

const redactedPlaceholder = "[REDACTED]"

// Redact walks v recursively, replacing any string value whose key matches
// secretKeyNames or whose shape matches secretShape with a placeholder.
// Pure and side-effect free; returns a new value, v is never mutated.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			if secretKeyNames[lower(k)] {
				out[k] = redactedPlaceholder
				continue
			}
			out[k] = Redact(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = Redact(vv)
		}
		return out
	case string:
		if len(val) >= 20 && secretShape.MatchString(val) {
			return redactedPlaceholder
		}
		return val
	default:
		return val
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
