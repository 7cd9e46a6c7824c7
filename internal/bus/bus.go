// Package bus provides the process-wide publish/subscribe point for coarse
// lifecycle events and for the platform event stream. It is pure fan-out:
// handlers are invoked in subscription order and a failing handler never
// blocks the remaining ones.
package bus

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Lifecycle event names published by the host.
const (
	EventConfigLoaded      = "config-loaded"
	EventPlatformConnected = "platform-connected"
	EventShutdown          = "shutdown"
)

// Handler receives the payload published with an event. Handlers are invoked
// on the publisher's goroutine and should not block; a handler that needs to
// do slow work spawns its own goroutine.
type Handler func(payload ...any)

// Handle represents one active subscription. The zero value is invalid;
// handles are created by Subscribe.
type Handle struct {
	bus   *Bus
	event string
	seq   uint64
	fn    atomic.Pointer[Handler]
}

// Event returns the event name this handle is subscribed to.
func (h *Handle) Event() string { return h.event }

// Swap atomically replaces the handler function behind this subscription.
// The subscription itself (its position in fan-out order) is preserved, so
// there is no instant at which the event is unobserved or observed twice.
func (h *Handle) Swap(fn Handler) {
	h.fn.Store(&fn)
}

// Bus is a synchronous-initiation publish/subscribe fan-out.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*Handle
	seq    uint64
	logger *slog.Logger
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs:   make(map[string][]*Handle),
		logger: logger.With("component", "bus"),
	}
}

// Subscribe registers fn for the given event and returns its handle.
// Handlers for the same event run in subscription order.
func (b *Bus) Subscribe(event string, fn Handler) *Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	h := &Handle{bus: b, event: event, seq: b.seq}
	h.fn.Store(&fn)
	b.subs[event] = append(b.subs[event], h)
	return h
}

// Unsubscribe removes the subscription behind the handle. Unsubscribing an
// already-removed or foreign handle is a no-op.
func (b *Bus) Unsubscribe(h *Handle) {
	if h == nil || h.bus != b {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	handles := b.subs[h.event]
	for i, sub := range handles {
		if sub == h {
			b.subs[h.event] = append(handles[:i:i], handles[i+1:]...)
			break
		}
	}
	if len(b.subs[h.event]) == 0 {
		delete(b.subs, h.event)
	}
}

// Publish invokes every handler subscribed to event, in subscription order.
// A panicking handler is recovered and logged; it never propagates to the
// publisher and never prevents later handlers from running.
func (b *Bus) Publish(event string, payload ...any) {
	b.mu.RLock()
	handles := make([]*Handle, len(b.subs[event]))
	copy(handles, b.subs[event])
	b.mu.RUnlock()

	for _, h := range handles {
		fn := h.fn.Load()
		if fn == nil {
			continue
		}
		b.invoke(event, *fn, payload)
	}
}

func (b *Bus) invoke(event string, fn Handler, payload []any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: handler panic",
				"event", event,
				"panic", r,
			)
		}
	}()
	fn(payload...)
}

// SubscriberCount returns the number of active subscriptions for event.
func (b *Bus) SubscriberCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}
