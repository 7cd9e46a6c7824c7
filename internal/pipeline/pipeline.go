// Package pipeline fans inbound text events out to registered processors in
// registration order. Each processor owns a serial queue, so a processor
// never sees event N+1 before it has handled event N, while distinct
// processors run concurrently. A failing processor is isolated: its error is
// logged with its name and the remaining processors still receive the event.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrall/skald/internal/metrics"
	"github.com/mgrall/skald/pkg/message"
)

// Processor observes qualifying inbound events. Processors are a stateless
// contract: any private state is lost when the owning module reloads.
type Processor interface {
	// Name identifies the processor in logs and failure reports.
	Name() string
	// IgnoresCommands reports whether events already resolved to a known
	// command should be skipped for this processor.
	IgnoresCommands() bool
	// Handle observes one event. Errors are reported, never propagated.
	Handle(ctx context.Context, ev message.InboundEvent) error
}

const queueDepth = 64

// entry is one registered processor plus its serial queue.
type entry struct {
	module string
	proc   Processor
	queue  chan queuedEvent
}

type queuedEvent struct {
	ctx context.Context
	ev  message.InboundEvent
}

// Config configures a Pipeline.
type Config struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// OperatingScope, when non-empty, restricts the pipeline to events
	// from that scope. Direct messages always qualify.
	OperatingScope string
}

// Pipeline is the ordered fan-out of inbound events to processors.
type Pipeline struct {
	mu      sync.RWMutex
	wg      sync.WaitGroup
	entries []*entry
	scope   string
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New creates an empty Pipeline.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scope:   cfg.OperatingScope,
		logger:  logger.With("component", "pipeline"),
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("skald/pipeline"),
	}
}

// SetModule replaces the module's processors. If the module already holds a
// slot in the registration order, the new processors take exactly that slot;
// otherwise they are appended. The replaced processors' queues are drained
// and closed, so an in-flight Handle finishes on the old instance while new
// events go to the new one.
func (p *Pipeline) SetModule(module string, procs []Processor) {
	fresh := make([]*entry, len(procs))
	for i, proc := range procs {
		fresh[i] = p.newEntry(module, proc)
	}

	p.mu.Lock()
	var old []*entry
	var next []*entry
	inserted := false
	for _, e := range p.entries {
		if e.module != module {
			next = append(next, e)
			continue
		}
		old = append(old, e)
		if !inserted {
			next = append(next, fresh...)
			inserted = true
		}
	}
	if !inserted {
		next = append(next, fresh...)
	}
	p.entries = next
	p.mu.Unlock()

	for _, e := range old {
		close(e.queue)
	}
}

// RemoveModule drops the module's processors, draining their queues.
func (p *Pipeline) RemoveModule(module string) {
	p.SetModule(module, nil)
}

// SetOperatingScope replaces the scope restriction. Wired to config-loaded
// so a hot reload of the host scope takes effect without a restart.
func (p *Pipeline) SetOperatingScope(scope string) {
	p.mu.Lock()
	p.scope = scope
	p.mu.Unlock()
}

func (p *Pipeline) newEntry(module string, proc Processor) *entry {
	e := &entry{
		module: module,
		proc:   proc,
		queue:  make(chan queuedEvent, queueDepth),
	}
	p.wg.Add(1)
	go p.run(e)
	return e
}

// run consumes one processor's queue serially until the queue closes.
func (p *Pipeline) run(e *entry) {
	defer p.wg.Done()
	for qe := range e.queue {
		p.handle(e, qe)
	}
}

func (p *Pipeline) handle(e *entry, qe queuedEvent) {
	ctx, span := p.tracer.Start(qe.ctx, "pipeline.process")
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("processor %s panicked: %v", e.proc.Name(), r)
			}
		}()
		return e.proc.Handle(ctx, qe.ev)
	}()
	if err == nil {
		return
	}

	span.RecordError(err)
	if p.metrics != nil {
		p.metrics.ProcessorFailures.WithLabelValues(e.proc.Name()).Inc()
	}
	p.logger.Error("processor failed",
		"processor", e.proc.Name(),
		"module", e.module,
		"event", qe.ev.ID,
		"error", err,
	)
}

// Offer presents one event to every registered processor in registration
// order. commandSeen marks events the dispatcher resolved to a known
// command; processors that ignore commands are skipped for those. The
// host's own messages and events outside the operating scope never qualify.
func (p *Pipeline) Offer(ctx context.Context, ev message.InboundEvent, commandSeen bool) {
	if ev.IsSelf {
		return
	}

	// The read lock is held across the sends so a concurrent SetModule
	// cannot close a queue this pass is still offering to. Sends may block
	// briefly when a processor falls behind; its own goroutine keeps
	// draining, so the lock is never held indefinitely.
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.scope != "" && !ev.IsDirectMessage() && ev.Scope.ID != p.scope {
		return
	}
	if p.metrics != nil {
		p.metrics.EventsObserved.Inc()
	}

	for _, e := range p.entries {
		if commandSeen && e.proc.IgnoresCommands() {
			continue
		}
		e.queue <- queuedEvent{ctx: ctx, ev: ev}
	}
}

// Quiesce closes every queue and waits for processors to finish their
// backlog. The pipeline is unusable afterward; used at shutdown.
func (p *Pipeline) Quiesce() {
	p.mu.Lock()
	entries := p.entries
	p.entries = nil
	p.mu.Unlock()

	for _, e := range entries {
		close(e.queue)
	}
	// Waits for queues closed here and for queues closed by earlier
	// SetModule replacements that may still be draining.
	p.wg.Wait()
}

// Processors returns the names of registered processors in order.
func (p *Pipeline) Processors() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.entries))
	for i, e := range p.entries {
		names[i] = e.proc.Name()
	}
	return names
}
