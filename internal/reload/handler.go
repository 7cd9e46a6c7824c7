package reload

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/core"
)

// Handler applies a configuration reload: it re-reads the file, validates
// it, swaps it into the store (announcing config-loaded to listeners), and
// then sweeps every non-core module through a hot reload so new instances
// pick up the fresh configuration.
type Handler struct {
	store   *config.Store
	runtime *core.Runtime
	logger  *slog.Logger
}

// NewHandler creates a reload handler.
func NewHandler(store *config.Store, runtime *core.Runtime, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:   store,
		runtime: runtime,
		logger:  logger.With("component", "reload"),
	}
}

// HandleReload loads a fresh config from disk, validates it, and applies it.
// A config that fails to load or validate is discarded; the running
// configuration and all modules are untouched.
func (h *Handler) HandleReload(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := config.Validate(cfg, core.HasModule); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return h.HandleReloadFromConfig(ctx, cfg)
}

// HandleReloadFromConfig applies a pre-loaded, already-validated config.
func (h *Handler) HandleReloadFromConfig(ctx context.Context, cfg *config.Config) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before reload: %w", err)
	}

	h.store.Replace(cfg)

	rolledBack := 0
	for _, out := range h.runtime.ReloadAll() {
		if out.Status == core.OutcomeRolledBack {
			rolledBack++
			h.logger.Warn("module rolled back during config reload",
				"module", out.Module,
				"reason", out.Reason,
			)
		}
	}
	if rolledBack > 0 {
		h.logger.Warn("configuration reloaded with rollbacks", "rolled_back", rolledBack)
	} else {
		h.logger.Info("configuration reloaded successfully")
	}
	return nil
}
