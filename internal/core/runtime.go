package core

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mgrall/skald/internal/bus"
	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/cron"
)

// listenerKey identifies one tracked subscription slot per module.
type listenerKey struct {
	source Source
	event  string
}

// listenerStaging accumulates the subscriptions a module instance requests
// during Init. Nothing touches a bus until the load or reload commits.
type listenerStaging struct {
	handlers map[listenerKey]bus.Handler
	order    []listenerKey
}

func newListenerStaging() *listenerStaging {
	return &listenerStaging{handlers: make(map[listenerKey]bus.Handler)}
}

func (ls *listenerStaging) add(key listenerKey, fn bus.Handler) error {
	if fn == nil {
		return fmt.Errorf("core: nil handler for %s/%s", key.source, key.event)
	}
	if _, dup := ls.handlers[key]; dup {
		return fmt.Errorf("core: duplicate listener for %s/%s", key.source, key.event)
	}
	ls.handlers[key] = fn
	ls.order = append(ls.order, key)
	return nil
}

// descriptor tracks one module's live instance, lifecycle state, and the
// bus handles behind its tracked listeners.
type descriptor struct {
	info       ModuleInfo
	instance   Module
	mh         *ModuleHost
	state      State
	generation uint64
	reason     string
	listeners  map[listenerKey]*bus.Handle
}

// ModuleStatus is a point-in-time view of one module for status surfaces.
type ModuleStatus struct {
	ID         ModuleID `json:"id"`
	Core       bool     `json:"core"`
	State      string   `json:"state"`
	Generation uint64   `json:"generation"`
	Reason     string   `json:"reason,omitempty"`
}

// Reload outcome statuses.
const (
	OutcomeSucceeded  = "succeeded"
	OutcomeRolledBack = "rolled_back"
	OutcomeSkipped    = "skipped"
)

// Outcome reports the result of one module reload attempt.
type Outcome struct {
	Module ModuleID `json:"module"`
	Status string   `json:"status"`
	Reason string   `json:"reason,omitempty"`
}

// Runtime drives registered modules through load, reload, and destroy. All
// state transitions are serialized on one mutex; event delivery never waits
// on it because the dispatcher, pipeline, and buses hold their own copies
// of whatever a committed generation registered.
type Runtime struct {
	host   *Host
	logger *slog.Logger

	mu          sync.Mutex
	descriptors map[ModuleID]*descriptor
}

// NewRuntime creates the runtime and attaches it to the host.
func NewRuntime(host *Host) *Runtime {
	r := &Runtime{
		host:        host,
		logger:      host.logger.With("component", "runtime"),
		descriptors: make(map[ModuleID]*descriptor),
	}
	host.runtime = r
	return r
}

// LoadAll loads every registered module in ID order. A module that fails to
// load is left unloaded and does not stop the others; the joined error
// reports every failure.
func (r *Runtime) LoadAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, info := range GetModules() {
		if err := r.loadLocked(info); err != nil {
			r.logger.Error("module load failed", "module", info.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", info.ID, err))
			continue
		}
		r.logger.Info("module loaded", "module", info.ID, "core", info.Core)
	}
	return errors.Join(errs...)
}

func (r *Runtime) loadLocked(info ModuleInfo) error {
	desc, ok := r.descriptors[info.ID]
	if !ok {
		desc = &descriptor{info: info, listeners: make(map[listenerKey]*bus.Handle)}
		r.descriptors[info.ID] = desc
	}
	desc.state = StateLoading
	desc.reason = ""

	inst, mh, staging, err := r.provision(info, false)
	if err != nil {
		desc.state = StateUnloaded
		desc.reason = err.Error()
		return err
	}

	if err := r.register(info.ID, inst); err != nil {
		module := string(info.ID)
		r.host.table.RemoveModule(module)
		r.host.pipeline.RemoveModule(module)
		r.host.scheduler.Remove(module)
		desc.state = StateUnloaded
		desc.reason = err.Error()
		return err
	}

	r.commitListeners(desc, mh, staging)
	desc.instance = inst
	desc.mh = mh
	desc.state = StateActive
	desc.generation = 1
	return nil
}

// provision instantiates, configures, and initializes a fresh module
// instance, collecting its listener registrations into staging. No shared
// structure is mutated; a provision failure is free to discard.
func (r *Runtime) provision(info ModuleInfo, isReload bool) (Module, *ModuleHost, *listenerStaging, error) {
	inst := info.New()
	if inst == nil {
		return nil, nil, nil, fmt.Errorf("module constructor returned nil")
	}

	if c, ok := inst.(Configurable); ok {
		cfg := r.host.store.Snapshot()
		if node, present := cfg.Modules[string(info.ID)]; present {
			n := node
			if err := c.Configure(&n); err != nil {
				return nil, nil, nil, fmt.Errorf("configure: %w", err)
			}
		}
	}

	staging := newListenerStaging()
	mh := &ModuleHost{
		host:    r.host,
		module:  info.ID,
		logger:  r.host.logger.With("module", string(info.ID)),
		staging: staging,
	}

	if init, ok := inst.(Initializer); ok {
		if err := init.Init(mh, isReload); err != nil {
			return nil, nil, nil, fmt.Errorf("init: %w", err)
		}
	}

	// Lifecycle hook interfaces ride the same tracked-listener machinery
	// as manual subscriptions, so they survive reloads gap-free too.
	if cl, ok := inst.(ConfigListener); ok {
		err := staging.add(listenerKey{SourceLifecycle, bus.EventConfigLoaded}, func(payload ...any) {
			if len(payload) > 0 {
				if cfg, ok := payload[0].(*config.Config); ok {
					cl.ConfigLoaded(mh, cfg)
				}
			}
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if pl, ok := inst.(PlatformListener); ok {
		err := staging.add(listenerKey{SourceLifecycle, bus.EventPlatformConnected}, func(...any) {
			pl.PlatformConnected(mh)
		})
		if err != nil {
			return nil, nil, nil, err
		}
	}

	// Subscribe is an Init-only affordance.
	mh.staging = nil
	return inst, mh, staging, nil
}

// register installs the instance's commands, jobs, and processors. The
// command table swap and the job swap both validate before mutating; jobs
// are additionally pre-validated so a failure after the table swap cannot
// occur for a reason the table swap could not have caught.
func (r *Runtime) register(id ModuleID, inst Module) error {
	var jobs []cron.Job
	if jp, ok := inst.(JobProvider); ok {
		jobs = jp.Jobs()
		if err := cron.ValidateJobs(jobs); err != nil {
			return err
		}
	}

	module := string(id)
	if cp, ok := inst.(CommandProvider); ok {
		if err := r.host.table.SetModule(module, cp.Commands()); err != nil {
			return err
		}
	} else {
		r.host.table.RemoveModule(module)
	}

	if err := r.host.scheduler.Replace(module, jobs); err != nil {
		// Only a job name collision with another module reaches here.
		return err
	}

	if pp, ok := inst.(ProcessorProvider); ok {
		r.host.pipeline.SetModule(module, pp.Processors())
	} else {
		r.host.pipeline.RemoveModule(module)
	}
	return nil
}

// commitListeners reconciles the descriptor's live handles with the staged
// set. Keys present in both are swapped in place, preserving fan-out
// position with no instant of zero or double observation. New keys are
// subscribed; keys the new instance no longer wants are unsubscribed.
func (r *Runtime) commitListeners(desc *descriptor, mh *ModuleHost, staging *listenerStaging) {
	for _, key := range staging.order {
		fn := staging.handlers[key]
		if handle, live := desc.listeners[key]; live {
			handle.Swap(fn)
			continue
		}
		b, err := r.host.busFor(key.source)
		if err != nil {
			// Sources were validated at Subscribe time.
			continue
		}
		desc.listeners[key] = b.Subscribe(key.event, fn)
	}
	for key, handle := range desc.listeners {
		if _, wanted := staging.handlers[key]; wanted {
			continue
		}
		if b, err := r.host.busFor(key.source); err == nil {
			b.Unsubscribe(handle)
			r.logger.Debug("listener dropped",
				"module", desc.info.ID,
				"event", handle.Event(),
			)
		}
		delete(desc.listeners, key)
	}
}

// ReloadModule replaces one module's live instance with a freshly built
// one. The swap is all-or-nothing: if the new instance fails to configure,
// initialize, or register, the old instance keeps serving and the module is
// marked rolled back with the failure reason. In-flight command invocations
// started against the old instance run to completion on it either way.
func (r *Runtime) ReloadModule(id ModuleID) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.reloadLocked(id)
	r.host.metrics.ReloadsTotal.WithLabelValues(out.Status).Inc()
	switch out.Status {
	case OutcomeSucceeded:
		r.logger.Info("module reloaded", "module", id)
	case OutcomeRolledBack:
		r.logger.Warn("module reload rolled back", "module", id, "reason", out.Reason)
	default:
		r.logger.Info("module reload skipped", "module", id, "reason", out.Reason)
	}
	return out
}

func (r *Runtime) reloadLocked(id ModuleID) Outcome {
	desc, ok := r.descriptors[id]
	if !ok {
		if info, registered := GetModule(string(id)); registered {
			// Never loaded in this process; treat as a first load.
			if err := r.loadLocked(info); err != nil {
				return Outcome{Module: id, Status: OutcomeSkipped, Reason: err.Error()}
			}
			return Outcome{Module: id, Status: OutcomeSucceeded}
		}
		return Outcome{Module: id, Status: OutcomeSkipped, Reason: "unknown module"}
	}

	if !desc.state.active() {
		if err := r.loadLocked(desc.info); err != nil {
			return Outcome{Module: id, Status: OutcomeSkipped, Reason: err.Error()}
		}
		return Outcome{Module: id, Status: OutcomeSucceeded}
	}

	desc.state = StateReloading

	inst, mh, staging, err := r.provision(desc.info, true)
	if err != nil {
		desc.state = StateRolledBack
		desc.reason = err.Error()
		return Outcome{Module: id, Status: OutcomeRolledBack, Reason: err.Error()}
	}

	if err := r.register(id, inst); err != nil {
		// register validates before mutating shared tables, but a job
		// name collision surfaces after the command swap. Restore the
		// old instance's registrations so the rolled-back module keeps
		// serving exactly what it served before.
		if restoreErr := r.register(id, desc.instance); restoreErr != nil {
			r.logger.Error("restore after failed reload", "module", id, "error", restoreErr)
		}
		desc.state = StateRolledBack
		desc.reason = err.Error()
		return Outcome{Module: id, Status: OutcomeRolledBack, Reason: err.Error()}
	}

	r.commitListeners(desc, mh, staging)

	old := desc.instance
	desc.instance = inst
	desc.mh = mh
	desc.state = StateActive
	desc.generation++
	desc.reason = ""

	if d, ok := old.(Destroyer); ok {
		d.Destroy()
	}
	return Outcome{Module: id, Status: OutcomeSucceeded}
}

// ReloadAll reloads every known non-core module in ID order. Core modules
// are reported as skipped.
func (r *Runtime) ReloadAll() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	var outcomes []Outcome
	for _, info := range GetModules() {
		if info.Core {
			outcomes = append(outcomes, Outcome{Module: info.ID, Status: OutcomeSkipped, Reason: "core module"})
			continue
		}
		out := r.reloadLocked(info.ID)
		r.host.metrics.ReloadsTotal.WithLabelValues(out.Status).Inc()
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// Statuses returns a snapshot of every known module sorted by ID.
func (r *Runtime) Statuses() []ModuleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]ModuleStatus, 0, len(r.descriptors))
	for _, info := range GetModules() {
		desc, ok := r.descriptors[info.ID]
		if !ok {
			statuses = append(statuses, ModuleStatus{ID: info.ID, Core: info.Core, State: StateUnloaded.String()})
			continue
		}
		statuses = append(statuses, ModuleStatus{
			ID:         info.ID,
			Core:       info.Core,
			State:      desc.state.String(),
			Generation: desc.generation,
			Reason:     desc.reason,
		})
	}
	return statuses
}

// Shutdown revokes every module's registrations and destroys live
// instances. Modules are torn down in ID order.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, info := range GetModules() {
		desc, ok := r.descriptors[info.ID]
		if !ok || !desc.state.active() {
			continue
		}
		for key, handle := range desc.listeners {
			if b, err := r.host.busFor(key.source); err == nil {
				b.Unsubscribe(handle)
			}
			delete(desc.listeners, key)
		}
		module := string(info.ID)
		r.host.table.RemoveModule(module)
		r.host.pipeline.RemoveModule(module)
		r.host.scheduler.Remove(module)
		if d, ok := desc.instance.(Destroyer); ok {
			d.Destroy()
		}
		desc.instance = nil
		desc.state = StateDestroyed
		r.logger.Info("module destroyed", "module", info.ID)
	}
}
