// Package gateway is the HTTP control-plane module. It exposes health,
// status, Prometheus metrics, module administration, and the operator
// console WebSocket. It is a core module: config reload sweeps leave it
// running, and nothing imports it.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mgrall/skald/internal/core"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config    Config
	host      *core.ModuleHost
	logger    *slog.Logger
	server    *http.Server
	addr      string
	startedAt time.Time
}

// Addr returns the bound listen address, useful when Bind requested an
// ephemeral port.
func (g *Gateway) Addr() string {
	return g.addr
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:   "gateway.http",
		Core: true,
		New:  func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	return node.Decode(&g.config)
}

// Init implements core.Initializer. It validates the bind address and
// starts the HTTP server.
func (g *Gateway) Init(h *core.ModuleHost, _ bool) error {
	g.config.defaults()
	g.host = h
	g.logger = h.Logger()

	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}
	g.addr = ln.Addr().String()
	h.RegisterService("gateway.http", g)

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Destroy implements core.Destroyer. Graceful shutdown with configured
// timeout.
func (g *Gateway) Destroy() {
	if g.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	if err := g.server.Shutdown(ctx); err != nil {
		g.logger.Warn("gateway shutdown", "error", err)
	}
}
