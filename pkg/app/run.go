// Package app provides the shared entry point for the skald binary.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mgrall/skald/internal/bus"
	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/internal/cron"
	"github.com/mgrall/skald/internal/metrics"
	"github.com/mgrall/skald/internal/pipeline"
	"github.com/mgrall/skald/internal/reload"
	"github.com/mgrall/skald/internal/report"
	"github.com/mgrall/skald/internal/telemetry"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Shutdown, when non-nil, stops the loop when closed. Used by the
	// service wrapper, which has no signal to send.
	Shutdown <-chan struct{}
}

// Run loads configuration, starts every registered module, and blocks until
// a shutdown signal is received. SIGHUP and config file changes trigger a
// live reload sweep over the non-core modules.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg, core.HasModule); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: params.LogLevel,
	}))
	logger.Info("starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
	)

	lifecycle := bus.New(logger)
	store := config.NewStore(cfg, cfgPath, lifecycle)
	m := metrics.New()
	table := command.NewTable()
	scheduler := cron.NewScheduler(logger)

	// The sink needs the host to deliver batches and the host needs the
	// reporter; the host field is filled in right after construction,
	// before any event can flow.
	sink := &platformSink{}
	reporter := report.New(report.Config{
		Sink:     sink,
		Logger:   logger,
		Metrics:  m,
		Settings: reporterSettings(store),
	})

	pipe := pipeline.New(pipeline.Config{
		Logger:         logger,
		Metrics:        m,
		OperatingScope: cfg.Host.OperatingScope,
	})

	host := core.NewHost(core.HostConfig{
		Logger:    logger,
		Lifecycle: lifecycle,
		Store:     store,
		Table:     table,
		Pipeline:  pipe,
		Reporter:  reporter,
		Metrics:   m,
		Scheduler: scheduler,
	})
	sink.host = host

	dispatcher := command.NewDispatcher(command.DispatcherConfig{
		Table:    table,
		Settings: store,
		Replies:  host,
		Logger:   logger,
		Metrics:  m,
		Failures: func(scopeID, cmd string, err error) {
			reporter.Enqueue(scopeID, "errors", fmt.Sprintf("%s: %v", cmd, err))
		},
	})
	host.SetDispatcher(dispatcher)

	// Prefix, master, and operating-scope changes take effect on the next
	// event, not after the cache TTL or a restart.
	lifecycle.Subscribe(bus.EventConfigLoaded, func(...any) {
		dispatcher.InvalidateSettings()
		pipe.SetOperatingScope(store.Snapshot().Host.OperatingScope)
	})

	runtime := core.NewRuntime(host)
	if err := runtime.LoadAll(); err != nil {
		return err
	}

	wirePlatform(host, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTraces, err := telemetry.Setup(ctx, store.Snapshot().Telemetry, logger)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}

	reporter.Start(ctx)
	scheduler.Start()
	store.Announce()

	handler := reload.NewHandler(store, runtime, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{
		ConfigPath: cfgPath,
		Logger:     logger,
	})
	watcher.Start(ctx)
	defer watcher.Stop()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGHUP:
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.HandleReload(ctx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
			default:
				logger.Info("shutdown signal received", "signal", sig.String())
				shutdown(ctx, host, scheduler, reporter, shutdownTraces, logger)
				return nil
			}
		case <-params.Shutdown:
			logger.Info("shutdown requested")
			shutdown(ctx, host, scheduler, reporter, shutdownTraces, logger)
			return nil
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.HandleReload(ctx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// shutdown tears the host down in dependency order: no new job ticks, no
// new events, then a forced flush of whatever the reporter still buffers.
func shutdown(ctx context.Context, host *core.Host, scheduler *cron.Scheduler, reporter *report.Reporter, shutdownTraces func(context.Context) error, logger *slog.Logger) {
	if err := scheduler.Stop(ctx); err != nil {
		logger.Warn("scheduler stop", "error", err)
	}
	host.Shutdown()
	reporter.Sweep(ctx, true)
	reporter.Stop()
	if err := shutdownTraces(ctx); err != nil {
		logger.Warn("trace exporter shutdown", "error", err)
	}
	logger.Info("shutdown complete")
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/skald/skald.yaml →
// ~/.config/skald/skald.yaml → ./skald.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "skald", "skald.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "skald", "skald.yaml"))
	}

	candidates = append(candidates, "skald.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
