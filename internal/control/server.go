// Package control implements the Control API: a bearer-token-authenticated
// HTTP surface over the gateway's sessions, providers, orchestration
// lanes, and lifecycle, plus an SSE event stream. Grounded in the
// teacher's internal/gateway/server.go mux-building and bearer-token-
// check idiom; the WebSocket transport and managed-mode CRUD handlers it
// wires have no equivalent surface in this spec and are not carried
// forward (see DESIGN.md).
package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/trinity-cloud/drost/internal/auditlog"
	"github.com/trinity-cloud/drost/internal/evolution"
	"github.com/trinity-cloud/drost/internal/gatewaylifecycle"
	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/orchestration"
	"github.com/trinity-cloud/drost/internal/providers"
	"github.com/trinity-cloud/drost/internal/sessionmgr"
	"github.com/trinity-cloud/drost/internal/tools"
)

// Config configures the Control API listener.
type Config struct {
	Addr              string
	AdminTokens       []string
	ReadOnlyTokens    []string
	AllowLoopback     bool
	MutationsPerMinute int
}

// Server wires the Control API's dependencies into an http.Handler.
type Server struct {
	cfg        Config
	auth       *Auth
	buckets    *TokenBuckets
	events     *Broadcaster
	httpServer *http.Server

	sessions     *sessionmgr.Manager
	lanes        *orchestration.Scheduler
	lifecycle    *gatewaylifecycle.Gateway
	restarter    *gatewaylifecycle.ToolRestarter
	evolutionRun *evolution.Runner
	toolRuntime  *tools.Runtime
	adapters     map[string]providers.Adapter
	audit        auditlog.Sink
}

func New(cfg Config, sessions *sessionmgr.Manager, lanes *orchestration.Scheduler, lifecycle *gatewaylifecycle.Gateway, restarter *gatewaylifecycle.ToolRestarter, evo *evolution.Runner, toolRuntime *tools.Runtime, adapters map[string]providers.Adapter, audit auditlog.Sink) *Server {
	s := &Server{
		cfg:          cfg,
		auth:         NewAuth(cfg.AdminTokens, cfg.ReadOnlyTokens, cfg.AllowLoopback),
		buckets:      NewTokenBuckets(cfg.MutationsPerMinute),
		events:       NewBroadcaster(),
		sessions:     sessions,
		lanes:        lanes,
		lifecycle:    lifecycle,
		restarter:    restarter,
		evolutionRun: evo,
		toolRuntime:  toolRuntime,
		adapters:     adapters,
		audit:        audit,
	}
	return s
}

// Events returns the broadcaster so other components (the session
// manager's turn loop, the tool runtime) can publish runtime events.
func (s *Server) Events() *Broadcaster { return s.events }

// TurnFunc adapts sessionmgr.Manager.RunTurn to orchestration.TurnFunc so a
// Lane can drive turns without knowing about sessions internals. Every
// sessionmgr.Event the turn produces is both published to the SSE
// broadcaster (so GET /events has a real producer, spec.md §4.9/§6) and
// relayed to the lane's per-submitter onEvent (so collect-mode fan-out,
// spec.md §4.4, reaches every contributing caller). Exported so
// cmd/gateway.go can wire it into Scheduler.Restore.
func (s *Server) TurnFunc() orchestration.TurnFunc {
	return func(ctx context.Context, sessionID, input string, images []string, onEvent func(orchestration.Event)) (string, error) {
		rec, err := s.sessions.RunTurn(sessionmgr.RunRequest{
			Ctx:         ctx,
			SessionID:   sessionID,
			Input:       input,
			InputImages: images,
			OnEvent: func(e sessionmgr.Event) {
				s.events.Publish(RuntimeEvent{Kind: string(e.Kind), SessionID: e.SessionID, Data: e})
				if onEvent != nil {
					onEvent(orchestration.Event{
						Kind:             string(e.Kind),
						Text:             e.Text,
						ProviderID:       e.ProviderID,
						ToolName:         e.ToolName,
						PromptTokens:     e.Usage.PromptTokens,
						CompletionTokens: e.Usage.CompletionTokens,
						Error:            e.Error,
					})
				}
			},
		})
		if err != nil {
			return "", err
		}
		if len(rec.History) == 0 {
			return "", nil
		}
		return rec.History[len(rec.History)-1].Content, nil
	}
}

func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	prefix := "/control/v1"

	mux.HandleFunc(prefix+"/status", s.wrap(tokenReadOnly, s.handleStatus))
	mux.HandleFunc(prefix+"/sessions", s.wrap(tokenReadOnly, s.handleSessionsCollection))
	mux.HandleFunc(prefix+"/sessions/", s.wrap(tokenReadOnly, s.handleSessionItem))
	mux.HandleFunc(prefix+"/orchestration/lanes", s.wrap(tokenReadOnly, s.handleLanes))
	mux.HandleFunc(prefix+"/providers", s.wrap(tokenReadOnly, s.handleProviders))
	mux.HandleFunc(prefix+"/events", s.wrap(tokenReadOnly, s.handleEvents))
	mux.HandleFunc(prefix+"/chat/send", s.wrap(tokenAdmin, s.handleChatSend))
	mux.HandleFunc(prefix+"/tools/run", s.wrap(tokenAdmin, s.handleToolsRun))
	mux.HandleFunc(prefix+"/evolution/run", s.wrap(tokenAdmin, s.handleEvolutionRun))
	mux.HandleFunc(prefix+"/restart", s.wrap(tokenAdmin, s.handleRestart))
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start begins serving on cfg.Addr. Blocks until ctx is cancelled or the
// listener errors.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{Addr: s.cfg.Addr, Handler: s.Mux()}
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// wrap enforces auth (minKind required), mutation rate-limiting, records
// every mutation and every failed request in the audit sink, and writes
// the shared error envelope on handler failure.
func (s *Server) wrap(minKind tokenKind, h func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind, token := s.auth.Resolve(r)
		if kind == tokenNone || kind < minKind {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if isMutating(r.Method) {
			if kind != tokenAdmin {
				writeError(w, http.StatusUnauthorized, "unauthorized", "admin token required for mutations")
				return
			}
			if !s.buckets.Allow(token) {
				writeError(w, http.StatusTooManyRequests, "mutation_rate_limited", "rate limit exceeded")
				return
			}
		}

		err := h(w, r)
		if s.audit != nil && (err != nil || isMutating(r.Method)) {
			status, detail := http.StatusOK, ""
			if err != nil {
				status, detail = statusFor(err), err.Error()
			}
			s.audit.Record(r.Context(), auditlog.Entry{
				OccurredAt: time.Now().UTC(), TokenLabel: token, Method: r.Method, Route: r.URL.Path,
				StatusCode: status, Detail: detail,
			})
		}
		if err != nil {
			writeGwerr(w, err)
		}
	}
}

func statusFor(err error) int {
	if e, ok := gwerr.As(err); ok {
		return e.Kind.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func writeGwerr(w http.ResponseWriter, err error) {
	if e, ok := gwerr.As(err); ok {
		resp := map[string]any{"ok": false, "code": e.Kind.Code(), "message": e.Message}
		if len(e.Issues) > 0 {
			resp["issues"] = e.Issues
		}
		writeJSON(w, e.Kind.HTTPStatus(), resp)
		return
	}
	slog.Error("control.internal_error", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"ok": false, "code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "state": s.lifecycle.State()})
}
