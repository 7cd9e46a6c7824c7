package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mgrall/skald/internal/metrics"
	"github.com/mgrall/skald/pkg/message"
)

// Result classifies the outcome of offering an event to the dispatcher.
type Result int

const (
	// ResultIgnored: the event did not start with the effective prefix.
	ResultIgnored Result = iota
	// ResultUnknown: prefixed, but no command matched (or wrong surface).
	ResultUnknown
	// ResultDenied: a permission gate rejected the author.
	ResultDenied
	// ResultDispatched: a handler invocation was started.
	ResultDispatched
)

// Recognized reports whether the event resolved to a known command,
// regardless of whether the gate let it through. Used by the pipeline to
// skip processors that ignore commands.
func (r Result) Recognized() bool {
	return r == ResultDenied || r == ResultDispatched
}

// ReplySender delivers replies into a scope. The platform dispatcher and
// the console session both implement it.
type ReplySender interface {
	Send(ctx context.Context, reply message.Reply) error
}

// FailureSink receives handler failures for operator-facing reporting.
type FailureSink func(scopeID, command string, err error)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Table    *Table
	Settings SettingsSource
	Replies  ReplySender
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Failures, if non-nil, receives every handler failure in addition to
	// the log record and the generic reply to the requester.
	Failures FailureSink
}

// Dispatcher consumes inbound text events and resolves them against the
// command table. Handler bodies run concurrently; resolution itself happens
// on the caller's goroutine in event-arrival order.
type Dispatcher struct {
	table    *Table
	cache    *settingsCache
	replies  ReplySender
	logger   *slog.Logger
	metrics  *metrics.Metrics
	failures FailureSink
	tracer   trace.Tracer
	inflight sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		table:    cfg.Table,
		cache:    newSettingsCache(cfg.Settings),
		replies:  cfg.Replies,
		logger:   logger.With("component", "dispatcher"),
		metrics:  cfg.Metrics,
		failures: cfg.Failures,
		tracer:   otel.Tracer("skald/command"),
	}
}

// InvalidateSettings drops the dispatcher's cached settings view. Wired to
// the config-loaded lifecycle event so prefix and master changes take
// effect without waiting out the cache TTL.
func (d *Dispatcher) InvalidateSettings() {
	d.cache.Invalidate()
}

// Dispatch offers one inbound event to the dispatcher. It returns once the
// command is resolved and gated; the handler itself runs on its own
// goroutine. Unknown tokens and unprefixed text are silently ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, ev message.InboundEvent) Result {
	return d.DispatchTo(ctx, ev, d.replies)
}

// DispatchTo is Dispatch with replies routed to the given sender instead of
// the configured one. The console surface uses it to answer on the session
// that issued the command.
func (d *Dispatcher) DispatchTo(ctx context.Context, ev message.InboundEvent, replies ReplySender) Result {
	if ev.IsSelf {
		return ResultIgnored
	}

	direct := ev.IsDirectMessage()

	// Direct messages and the control surface use the global default
	// prefix only; guild scopes may override it.
	var prefix string
	if direct || ev.Surface == message.SurfaceControl {
		prefix = d.cache.defaultPrefix()
	} else {
		prefix = d.cache.prefixFor(ev.Scope)
	}

	if !strings.HasPrefix(ev.Text, prefix) {
		return ResultIgnored
	}

	tokens := SplitArgs(ev.Text[len(prefix):])
	if len(tokens) == 0 {
		return ResultIgnored
	}

	desc, ok := d.table.Resolve(tokens[0])
	if !ok {
		if d.metrics != nil {
			d.metrics.CommandsUnknown.Inc()
		}
		return ResultUnknown
	}

	if !desc.runsOn(ev.Surface, direct) {
		// Deliberately as silent as an unknown token toward the user.
		d.logger.Debug("command not available on surface",
			"command", desc.Name,
			"surface", string(ev.Surface),
			"direct", direct,
		)
		if d.metrics != nil {
			d.metrics.CommandsUnknown.Inc()
		}
		return ResultUnknown
	}

	inv := &Invocation{
		Command: desc.Name,
		Args:    tokens[1:],
		Event:   ev,
		Replier: &scopedReplier{sender: replies, event: ev},
	}

	if denied := d.gate(ctx, desc, inv); denied {
		return ResultDenied
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.invoke(ctx, desc, inv)
	}()

	if d.metrics != nil {
		d.metrics.CommandsDispatched.WithLabelValues(desc.Name).Inc()
	}
	return ResultDispatched
}

// gate enforces masterOnly and requiredPermissions. Master status overrides
// any declared permission set.
func (d *Dispatcher) gate(ctx context.Context, desc Descriptor, inv *Invocation) bool {
	master := d.cache.isMaster(inv.Event.Sender.ID)

	if desc.MasterOnly && !master {
		d.deny(ctx, desc, inv)
		return true
	}
	if len(desc.Permissions) > 0 && !master && !inv.Event.Sender.HasAll(desc.Permissions) {
		d.deny(ctx, desc, inv)
		return true
	}
	return false
}

func (d *Dispatcher) deny(ctx context.Context, desc Descriptor, inv *Invocation) {
	if d.metrics != nil {
		d.metrics.CommandsDenied.Inc()
	}
	d.logger.Info("command denied",
		"command", desc.Name,
		"sender", inv.Event.Sender.ID,
	)
	if err := inv.Reply(ctx, fmt.Sprintf("You don't have permission to run %s.", desc.Name)); err != nil {
		d.logger.Warn("denied reply failed", "command", desc.Name, "error", err)
	}
}

// invoke runs the handler with panic and error containment. A failure is
// logged with the command name, counted, routed to the failure sink, and
// answered with a generic acknowledgment; it never escapes the dispatcher.
func (d *Dispatcher) invoke(ctx context.Context, desc Descriptor, inv *Invocation) {
	ctx, span := d.tracer.Start(ctx, "command.dispatch",
		trace.WithAttributes(
			attribute.String("command", desc.Name),
			attribute.String("scope", inv.Event.Scope.ID),
		),
	)
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("command %s panicked: %v", desc.Name, r)
			}
		}()
		return desc.Handler(ctx, inv)
	}()
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if d.metrics != nil {
		d.metrics.HandlerFailures.WithLabelValues(desc.Name).Inc()
	}
	d.logger.Error("command handler failed",
		"command", desc.Name,
		"scope", inv.Event.Scope.ID,
		"error", err,
	)
	if d.failures != nil {
		d.failures(inv.Event.Scope.ID, desc.Name, err)
	}
	if rerr := inv.Reply(ctx, "Something went wrong running that command."); rerr != nil {
		d.logger.Warn("failure reply failed", "command", desc.Name, "error", rerr)
	}
}

// Quiesce blocks until every in-flight handler has returned. Used during
// shutdown and by tests.
func (d *Dispatcher) Quiesce() {
	d.inflight.Wait()
}

// scopedReplier binds the reply sender to one event's scope.
type scopedReplier struct {
	sender ReplySender
	event  message.InboundEvent
}

func (r *scopedReplier) Reply(ctx context.Context, text string) error {
	if r.sender == nil {
		return ErrNoReplier
	}
	return r.sender.Send(ctx, message.NewReply(r.event, text))
}
