// Package protocol names the wire-level constants shared between the
// gateway's internal packages and its Control API surface: the turn
// stream's event kinds and the protocol version the CLI reports.
//
// Grounded in the teacher's pkg/protocol/events.go (a flat file of
// server-to-client event-name constants); the teacher's WebSocket/channel
// event names (team activity, device pairing, Zalo QR login, talk mode)
// describe a transport and feature surface this spec does not expose, so
// they are replaced wholesale with the turn/tool/lifecycle event-kind
// vocabulary spec.md §4.1 and §6 actually define.
package protocol

// ProtocolVersion is bumped whenever the Control API's JSON envelopes or
// the SSE event vocabulary below change in a way a client must know
// about.
const ProtocolVersion = 1

// Turn stream event kinds (spec.md §4.1), mirrored from sessionmgr.EventKind
// so that external consumers (CLI, Control API SSE clients) have a single
// place to read the vocabulary without importing internal/sessionmgr.
const (
	EventResponseDelta     = "response.delta"
	EventResponseCompleted = "response.completed"
	EventUsageUpdated      = "usage.updated"
	EventToolCallStarted   = "tool.call.started"
	EventToolCallCompleted = "tool.call.completed"
	EventToolPolicyDenied  = "tool.policy.denied"
	EventProviderError     = "provider.error"
)

// Gateway lifecycle event kinds (spec.md §4.7). The Control API's /events
// stream carries session turn/tool events only; these kinds are not
// published on it.
const (
	EventGatewayStarting  = "gateway.starting"
	EventGatewayRunning   = "gateway.running"
	EventGatewayDegraded  = "gateway.degraded"
	EventGatewayStopping  = "gateway.stopping"
	EventGatewayRestarted = "gateway.restart.requested"
)

// Evolution transaction event kinds (spec.md §4.5).
const (
	EventEvolutionStarted   = "evolution.started"
	EventEvolutionStepDone  = "evolution.step.completed"
	EventEvolutionCompleted = "evolution.completed"
)
