package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Platform bool   `json:"platform_connected"`
	Modules  int    `json:"modules_active"`
}

// handleHealth returns an http.HandlerFunc for GET /health.
// Returns 200 when every module is serving, 503 if any is unloaded or
// rolled back.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Platform: g.host.Platform() != nil,
		}

		for _, s := range g.host.ModuleStatuses() {
			switch s.State {
			case "active":
				resp.Modules++
			case "unloaded", "rolled_back":
				resp.Status = "degraded"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
