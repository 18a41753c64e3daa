package protocol

import "testing"

// TestEventNamesAreUnique guards against a copy-paste duplicate constant
// value silently merging two distinct event kinds.
func TestEventNamesAreUnique(t *testing.T) {
	all := []string{
		EventResponseDelta, EventResponseCompleted, EventUsageUpdated,
		EventToolCallStarted, EventToolCallCompleted, EventToolPolicyDenied,
		EventProviderError,
		EventGatewayStarting, EventGatewayRunning, EventGatewayDegraded,
		EventGatewayStopping, EventGatewayRestarted,
		EventEvolutionStarted, EventEvolutionStepDone, EventEvolutionCompleted,
	}
	seen := make(map[string]bool, len(all))
	for _, name := range all {
		if seen[name] {
			t.Fatalf("duplicate event name: %q", name)
		}
		seen[name] = true
	}
}

func TestProtocolVersion(t *testing.T) {
	if ProtocolVersion != 1 {
		t.Fatalf("ProtocolVersion = %d, want 1", ProtocolVersion)
	}
}
