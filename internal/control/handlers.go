package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/trinity-cloud/drost/internal/evolution"
	"github.com/trinity-cloud/drost/internal/gwerr"
	"github.com/trinity-cloud/drost/internal/orchestration"
	"github.com/trinity-cloud/drost/internal/store"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gwerr.New(gwerr.KindValidationError, fmt.Sprintf("invalid JSON body: %v", err))
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           s.lifecycle.State(),
		"degradedReasons": s.lifecycle.DegradedReasons(),
		"uptime":          s.lifecycle.Uptime().String(),
		"restartHistory":  s.lifecycle.RestartHistory(),
	})
	return nil
}

func (s *Server) handleSessionsCollection(w http.ResponseWriter, r *http.Request) error {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.sessions.ListSessions()
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, entries)
		return nil

	case http.MethodPost:
		var req struct {
			Channel       string `json:"channel"`
			Title         string `json:"title"`
			FromSessionID string `json:"fromSessionId"`
			ProviderID    string `json:"providerId"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		sessionID := "sess_" + uuid.NewString()
		if _, err := s.sessions.EnsureSession(sessionID, req.ProviderID); err != nil {
			return err
		}
		if req.Title != "" {
			if _, err := s.sessions.UpdateSessionMetadata(sessionID, func(m *store.Metadata) {
				m.Title = req.Title
			}); err != nil {
				return err
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID})
		return nil

	default:
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return nil
	}
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) error {
	rest := strings.TrimPrefix(r.URL.Path, "/control/v1/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	sessionID := parts[0]
	if sessionID == "" {
		writeError(w, http.StatusNotFound, "not_found", "missing session id")
		return nil
	}
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		rec, err := s.sessions.HydrateSession(sessionID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rec)
		return nil

	case sub == "" && r.Method == http.MethodDelete:
		if err := s.sessions.DeleteSession(sessionID); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return nil

	case sub == "provider" && r.Method == http.MethodPost:
		var req struct {
			ProviderID string `json:"providerId"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		if err := s.sessions.QueueProviderSwitch(sessionID, req.ProviderID); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return nil

	case sub == "rename" && r.Method == http.MethodPost:
		var req struct {
			ToSessionID string `json:"toSessionId"`
		}
		if err := decodeJSON(r, &req); err != nil {
			return err
		}
		rec, err := s.sessions.RenameSession(sessionID, req.ToSessionID)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rec)
		return nil

	case sub == "export" && r.Method == http.MethodGet:
		data, err := s.sessions.Store.Export(sessionID)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return nil

	case sub == "import" && r.Method == http.MethodPost:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return gwerr.Wrap(gwerr.KindValidationError, "failed to read import body", err)
		}
		overwrite := r.URL.Query().Get("overwrite") == "true"
		rec, err := s.sessions.Store.Import(sessionID, data, overwrite)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rec)
		return nil

	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown session route")
		return nil
	}
}

// handleToolsRun executes a single tool outside any turn, under the same
// policy and path-sandbox a turn's tool calls get (spec.md §4.9 "run
// tools"). Useful for operator diagnostics and evolution tooling outside
// the transaction log.
func (s *Server) handleToolsRun(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return nil
	}
	var req struct {
		SessionID  string         `json:"sessionId"`
		ToolName   string         `json:"toolName"`
		Input      map[string]any `json:"input"`
		ProviderID string         `json:"providerId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.SessionID == "" || req.ToolName == "" {
		return gwerr.New(gwerr.KindValidationError, "sessionId and toolName are required")
	}

	result, err := s.toolRuntime.RunTool(r.Context(), req.SessionID, req.ToolName, req.Input,
		s.sessions.ToolPolicy(), s.sessions.ToolExecContext(req.ProviderID), nil)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, result)
	return nil
}

func (s *Server) handleLanes(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, s.lanes.Lanes())
	return nil
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) error {
	ids := make([]string, 0, len(s.adapters))
	for id := range s.adapters {
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": ids})
	return nil
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return nil
	}
	var req struct {
		SessionID   string   `json:"sessionId"`
		Input       string   `json:"input"`
		InputImages []string `json:"inputImages"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if req.SessionID == "" || req.Input == "" {
		return gwerr.New(gwerr.KindValidationError, "sessionId and input are required")
	}

	lane := s.lanes.Lane(req.SessionID, orchestration.DefaultConfig(), s.TurnFunc())
	outcome := <-lane.Submit(req.Input, req.InputImages, nil)
	if outcome.Err != nil {
		return outcome.Err
	}
	rec, err := s.sessions.HydrateSession(req.SessionID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId":  req.SessionID,
		"providerId": rec.ActiveProviderID,
		"response":   outcome.Text,
	})
	return nil
}

func (s *Server) handleEvolutionRun(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return nil
	}
	var req struct {
		SessionID string `json:"sessionId"`
		Steps     []struct {
			ToolName string         `json:"toolName"`
			Input    map[string]any `json:"input"`
		} `json:"steps"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	steps := make([]evolution.Step, len(req.Steps))
	for i, st := range req.Steps {
		steps[i] = evolution.Step{ToolName: st.ToolName, Input: st.Input}
	}
	tx, err := s.evolutionRun.Begin(req.SessionID, steps)
	if err != nil {
		return err
	}
	tx, runErr := s.evolutionRun.Run(r.Context(), tx, steps)
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx, "error": errString(runErr)})
	return nil
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return nil
	}
	var req struct {
		Intent string `json:"intent"`
		Reason string `json:"reason"`
		DryRun bool   `json:"dryRun"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := s.restarter.RequestRestart(r.Context(), req.Reason, req.DryRun); err != nil {
		return gwerr.Wrap(gwerr.KindConflict, "restart denied", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
