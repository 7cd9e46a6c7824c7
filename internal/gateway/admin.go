package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/pkg/message"
)

// handleListModules returns every known module with its lifecycle state.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, g.host.ModuleStatuses())
	}
}

// handleReload triggers a hot reload. With ?module=<id> it reloads one
// module; without it, every non-core module. The response carries the
// per-module outcomes; a rollback is still a 200, the outcome says so.
func (g *Gateway) handleReload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var outcomes []core.Outcome
		if id := r.URL.Query().Get("module"); id != "" {
			outcomes = []core.Outcome{g.host.ReloadModule(core.ModuleID(id))}
		} else {
			outcomes = g.host.ReloadAll()
		}
		writeJSON(w, http.StatusOK, outcomes)
	}
}

// injectRequest is the JSON body for POST /api/events.
type injectRequest struct {
	Text      string `json:"text"`
	SenderID  string `json:"sender_id"`
	ScopeID   string `json:"scope_id"`
	ScopeType string `json:"scope_type"`
}

// handleInjectEvent feeds a synthetic inbound event through the host, as if
// the platform had delivered it. Useful for driving the dispatcher and
// pipeline from external tooling.
func (g *Gateway) handleInjectEvent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req injectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if req.Text == "" || req.SenderID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text and sender_id are required"})
			return
		}

		scopeType := message.ScopeType(req.ScopeType)
		if scopeType == "" {
			scopeType = message.ScopeGuild
		}
		if scopeType != message.ScopeGuild && scopeType != message.ScopeDirect {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scope_type must be guild or direct"})
			return
		}

		ev := message.NewInboundEvent(req.Text,
			message.Sender{ID: req.SenderID},
			message.Scope{Type: scopeType, ID: req.ScopeID},
			message.SurfaceChat,
		)
		g.host.HandleInbound(r.Context(), ev)

		writeJSON(w, http.StatusAccepted, map[string]string{"event_id": ev.ID})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
