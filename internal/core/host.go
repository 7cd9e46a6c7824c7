package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mgrall/skald/internal/bus"
	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/cron"
	"github.com/mgrall/skald/internal/metrics"
	"github.com/mgrall/skald/internal/pipeline"
	"github.com/mgrall/skald/internal/platform"
	"github.com/mgrall/skald/internal/report"
	"github.com/mgrall/skald/pkg/message"
)

// Source identifies an event source for tracked listener subscriptions.
type Source string

// Subscribable event sources.
const (
	// SourceLifecycle is the process-wide lifecycle bus.
	SourceLifecycle Source = "lifecycle"
	// SourcePlatform is the inbound platform event stream.
	SourcePlatform Source = "platform"
)

// EventMessage is published on the platform source for every inbound event.
const EventMessage = "message"

// HostConfig carries the shared components a Host wires together.
type HostConfig struct {
	Logger    *slog.Logger
	Lifecycle *bus.Bus
	Store     *config.Store
	Table     *command.Table
	Pipeline  *pipeline.Pipeline
	Reporter  *report.Reporter
	Metrics   *metrics.Metrics
	Scheduler *cron.Scheduler
}

// Host is the surface the core exposes to command and processor authors,
// and the junction where inbound events meet the dispatcher and pipeline.
type Host struct {
	logger      *slog.Logger
	lifecycle   *bus.Bus
	platformBus *bus.Bus
	store       *config.Store
	table       *command.Table
	pipeline    *pipeline.Pipeline
	reporter    *report.Reporter
	metrics     *metrics.Metrics
	scheduler   *cron.Scheduler

	dispatcher *command.Dispatcher
	runtime    *Runtime

	clientMu sync.RWMutex
	client   platform.Client

	servicesMu sync.RWMutex
	services   map[string]any
}

// NewHost creates a Host over the given components.
func NewHost(cfg HostConfig) *Host {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		logger:      logger,
		lifecycle:   cfg.Lifecycle,
		platformBus: bus.New(logger),
		store:       cfg.Store,
		table:       cfg.Table,
		pipeline:    cfg.Pipeline,
		reporter:    cfg.Reporter,
		metrics:     cfg.Metrics,
		scheduler:   cfg.Scheduler,
		services:    make(map[string]any),
	}
}

// SetDispatcher wires the command dispatcher. Called once during assembly.
func (h *Host) SetDispatcher(d *command.Dispatcher) {
	h.dispatcher = d
}

// Dispatcher returns the command dispatcher.
func (h *Host) Dispatcher() *command.Dispatcher {
	return h.dispatcher
}

// Lifecycle returns the lifecycle bus.
func (h *Host) Lifecycle() *bus.Bus {
	return h.lifecycle
}

// Store returns the configuration store.
func (h *Host) Store() *config.Store {
	return h.store
}

// Reporter returns the batched reporter.
func (h *Host) Reporter() *report.Reporter {
	return h.reporter
}

// Metrics returns the host metrics.
func (h *Host) Metrics() *metrics.Metrics {
	return h.metrics
}

// Runtime returns the module runtime.
func (h *Host) Runtime() *Runtime {
	return h.runtime
}

// Platform returns the connected platform client, or nil before connection.
func (h *Host) Platform() platform.Client {
	h.clientMu.RLock()
	defer h.clientMu.RUnlock()
	return h.client
}

// PlatformConnected records the client and publishes the lifecycle event.
func (h *Host) PlatformConnected(client platform.Client) {
	h.clientMu.Lock()
	h.client = client
	h.clientMu.Unlock()
	h.lifecycle.Publish(bus.EventPlatformConnected, client)
}

// Send delivers a reply through the platform client.
func (h *Host) Send(ctx context.Context, reply message.Reply) error {
	client := h.Platform()
	if client == nil {
		return platform.ErrNotConnected
	}
	return client.Send(ctx, reply)
}

// HandleInbound offers one inbound event to the dispatcher, then to the
// processor pipeline, then to module listeners on the platform source.
// Events are offered in arrival order; the caller is the platform client's
// single delivery goroutine.
func (h *Host) HandleInbound(ctx context.Context, ev message.InboundEvent) {
	result := h.dispatcher.Dispatch(ctx, ev)
	h.pipeline.Offer(ctx, ev, result.Recognized())
	h.platformBus.Publish(EventMessage, ev)
}

// Shutdown publishes the shutdown lifecycle event and destroys all modules.
func (h *Host) Shutdown() {
	h.lifecycle.Publish(bus.EventShutdown)
	if h.runtime != nil {
		h.runtime.Shutdown()
	}
	h.dispatcher.Quiesce()
	h.pipeline.Quiesce()
}

// RegisterService exposes a component under a name for cross-module
// discovery.
func (h *Host) RegisterService(name string, svc any) {
	h.servicesMu.Lock()
	defer h.servicesMu.Unlock()
	h.services[name] = svc
}

// Service returns a registered component, or false if absent.
func (h *Host) Service(name string) (any, bool) {
	h.servicesMu.RLock()
	defer h.servicesMu.RUnlock()
	svc, ok := h.services[name]
	return svc, ok
}

// busFor maps a listener source to its bus.
func (h *Host) busFor(source Source) (*bus.Bus, error) {
	switch source {
	case SourceLifecycle:
		return h.lifecycle, nil
	case SourcePlatform:
		return h.platformBus, nil
	default:
		return nil, fmt.Errorf("core: unknown event source %q", source)
	}
}

// ModuleHost is a module-scoped view of the Host handed to lifecycle
// hooks. Subscribe calls are tracked per module so the runtime can swap
// them atomically across a reload.
type ModuleHost struct {
	host    *Host
	module  ModuleID
	logger  *slog.Logger
	staging *listenerStaging
}

// Logger returns a logger scoped to the module.
func (mh *ModuleHost) Logger() *slog.Logger {
	return mh.logger
}

// Config returns the configuration store.
func (mh *ModuleHost) Config() *config.Store {
	return mh.host.store
}

// Platform returns the platform client, or nil before connection.
func (mh *ModuleHost) Platform() platform.Client {
	return mh.host.Platform()
}

// Reporter returns the batched reporter.
func (mh *ModuleHost) Reporter() *report.Reporter {
	return mh.host.reporter
}

// Send delivers a reply through the platform client.
func (mh *ModuleHost) Send(ctx context.Context, reply message.Reply) error {
	return mh.host.Send(ctx, reply)
}

// Service returns a host-registered component, or false if absent.
func (mh *ModuleHost) Service(name string) (any, bool) {
	return mh.host.Service(name)
}

// RegisterService exposes a component for cross-module discovery.
func (mh *ModuleHost) RegisterService(name string, svc any) {
	mh.host.RegisterService(name, svc)
}

// Metrics returns the host metrics.
func (mh *ModuleHost) Metrics() *metrics.Metrics {
	return mh.host.metrics
}

// Dispatcher returns the command dispatcher.
func (mh *ModuleHost) Dispatcher() *command.Dispatcher {
	return mh.host.dispatcher
}

// ModuleStatuses returns a snapshot of every known module.
func (mh *ModuleHost) ModuleStatuses() []ModuleStatus {
	return mh.host.runtime.Statuses()
}

// HandleInbound feeds an inbound event through the host exactly as if the
// platform client had delivered it.
func (mh *ModuleHost) HandleInbound(ctx context.Context, ev message.InboundEvent) {
	mh.host.HandleInbound(ctx, ev)
}

// CommandTable returns the command table for read-only inspection (help
// listings and similar).
func (mh *ModuleHost) CommandTable() *command.Table {
	return mh.host.table
}

// ReloadModule triggers a reload of one module and reports the outcome.
func (mh *ModuleHost) ReloadModule(id ModuleID) Outcome {
	return mh.host.runtime.ReloadModule(id)
}

// ReloadAll triggers a reload sweep over every non-core module.
func (mh *ModuleHost) ReloadAll() []Outcome {
	return mh.host.runtime.ReloadAll()
}

var errNotLoading = fmt.Errorf("core: Subscribe is only valid during Init")

// Subscribe registers a tracked listener for an event on a source. Valid
// only during Init; the runtime commits the registration when the load or
// reload succeeds, guaranteeing at most one active listener per
// (module, source, event) and no observation gap across a reload.
func (mh *ModuleHost) Subscribe(source Source, event string, fn bus.Handler) error {
	if mh.staging == nil {
		return errNotLoading
	}
	if _, err := mh.host.busFor(source); err != nil {
		return err
	}
	return mh.staging.add(listenerKey{source: source, event: event}, fn)
}
