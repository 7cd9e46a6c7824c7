package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mgrall/skald/internal/core"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   float64             `json:"uptime_seconds"`
	Platform bool                `json:"platform_connected"`
	Commands []string            `json:"commands"`
	Modules  []core.ModuleStatus `json:"modules"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Platform: g.host.Platform() != nil,
			Modules:  g.host.ModuleStatuses(),
		}
		for _, desc := range g.host.CommandTable().All() {
			resp.Commands = append(resp.Commands, desc.Name)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
