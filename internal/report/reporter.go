// Package report implements the batched activity/log reporter: a bounded
// per-(scope, category) buffer that accumulates entries and flushes them as
// ordered batches on a time-or-size trigger, respecting the external sink's
// rate ceiling. Failed deliveries are requeued at the front and retried on
// the next tick; entries are never silently dropped.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mgrall/skald/internal/metrics"
)

// Entry is one buffered report line.
type Entry struct {
	Scope      string
	Category   string
	Payload    string
	EnqueuedAt time.Time
}

// Batch is an ordered group of entries for one (scope, category) pair,
// delivered to the sink as a unit.
type Batch struct {
	ID       string
	Scope    string
	Category string
	Entries  []Entry
}

// Sink receives flushed batches. Implementations deliver to the platform
// client or an operator-facing channel.
type Sink interface {
	Deliver(ctx context.Context, batch Batch) error
}

// Settings are the flush parameters read from configuration. Values outside
// the safe range are clamped, not rejected.
type Settings struct {
	FlushInterval time.Duration
	MaxBufferSize int
}

// Clamp bounds for the sink's rate ceiling.
const (
	minFlushInterval = 2 * time.Second
	maxFlushInterval = 60 * time.Second
	minBufferSize    = 1
	maxBufferSize    = 25

	defaultFlushInterval = 10 * time.Second
	defaultBufferSize    = 10

	tickInterval = time.Second
	settingsTTL  = 5 * time.Second
)

func (s Settings) clamped() Settings {
	if s.FlushInterval <= 0 {
		s.FlushInterval = defaultFlushInterval
	}
	s.FlushInterval = min(max(s.FlushInterval, minFlushInterval), maxFlushInterval)

	if s.MaxBufferSize <= 0 {
		s.MaxBufferSize = defaultBufferSize
	}
	s.MaxBufferSize = min(max(s.MaxBufferSize, minBufferSize), maxBufferSize)
	return s
}

type pairKey struct {
	scope    string
	category string
}

// buffer holds the unflushed entries of one pair. Appends and drains are
// mutually exclusive per pair and independent across pairs.
type buffer struct {
	mu      sync.Mutex
	entries []Entry
	firstAt time.Time
}

// Config configures a Reporter.
type Config struct {
	Sink    Sink
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// Settings returns the current flush parameters; consulted through a
	// short-lived cache so enqueues don't hit the config store every time.
	Settings func() Settings
}

// Reporter is the batched reporter.
type Reporter struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	buffers map[pairKey]*buffer

	settingsFn func() Settings
	settingsMu sync.Mutex
	settings   Settings
	settingsAt time.Time

	now       func() time.Time
	stop      chan struct{}
	stopped   chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a Reporter. Call Start to begin the flush ticker.
func New(cfg Config) *Reporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = func() Settings { return Settings{} }
	}
	return &Reporter{
		sink:       cfg.Sink,
		logger:     logger.With("component", "reporter"),
		metrics:    cfg.Metrics,
		buffers:    make(map[pairKey]*buffer),
		settingsFn: settings,
		now:        time.Now,
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Enqueue appends one entry to the pair's buffer.
func (r *Reporter) Enqueue(scope, category, payload string) {
	entry := Entry{
		Scope:      scope,
		Category:   category,
		Payload:    payload,
		EnqueuedAt: r.now(),
	}

	b := r.pair(pairKey{scope: scope, category: category})
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		b.firstAt = entry.EnqueuedAt
	}
	b.entries = append(b.entries, entry)
}

func (r *Reporter) pair(key pairKey) *buffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.buffers[key]
	if !ok {
		b = &buffer{}
		r.buffers[key] = b
	}
	return b
}

// Start launches the global flush ticker.
func (r *Reporter) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		go r.loop(ctx)
	})
}

// Stop flushes what can be flushed and stops the ticker.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
	<-r.stopped
}

func (r *Reporter) loop(ctx context.Context) {
	defer close(r.stopped)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			// Final best-effort sweep so shutdown doesn't strand entries.
			r.Sweep(context.Background(), true)
			return
		case <-ticker.C:
			r.Sweep(ctx, false)
		}
	}
}

// Sweep evaluates every non-empty pair and flushes those whose buffer age
// or size crossed the configured trigger. force flushes every non-empty
// pair regardless of trigger.
func (r *Reporter) Sweep(ctx context.Context, force bool) {
	settings := r.currentSettings()

	r.mu.Lock()
	pairs := make(map[pairKey]*buffer, len(r.buffers))
	for k, b := range r.buffers {
		pairs[k] = b
	}
	r.mu.Unlock()

	for key, b := range pairs {
		r.flushIfDue(ctx, key, b, settings, force)
	}
}

func (r *Reporter) flushIfDue(ctx context.Context, key pairKey, b *buffer, s Settings, force bool) {
	b.mu.Lock()
	if len(b.entries) == 0 {
		b.mu.Unlock()
		return
	}
	due := force ||
		r.now().Sub(b.firstAt) >= s.FlushInterval ||
		len(b.entries) >= s.MaxBufferSize

	if !due {
		b.mu.Unlock()
		return
	}

	batch := Batch{
		ID:       uuid.NewString(),
		Scope:    key.scope,
		Category: key.category,
		Entries:  b.entries,
	}
	b.entries = nil
	b.mu.Unlock()

	if err := r.sink.Deliver(ctx, batch); err != nil {
		// Requeue at the front, ahead of anything enqueued meanwhile,
		// preserving order for the retry on the next tick.
		b.mu.Lock()
		b.entries = append(batch.Entries, b.entries...)
		b.firstAt = batch.Entries[0].EnqueuedAt
		b.mu.Unlock()

		if r.metrics != nil {
			r.metrics.ReporterRetries.Inc()
		}
		r.logger.Warn("reporter delivery failed, batch requeued",
			"scope", key.scope,
			"category", key.category,
			"entries", len(batch.Entries),
			"error", err,
		)
		return
	}

	if r.metrics != nil {
		r.metrics.ReporterFlushes.Inc()
	}
	r.logger.Debug("reporter batch delivered",
		"scope", key.scope,
		"category", key.category,
		"entries", len(batch.Entries),
	)
}

// currentSettings returns the clamped settings via a short TTL cache.
func (r *Reporter) currentSettings() Settings {
	r.settingsMu.Lock()
	defer r.settingsMu.Unlock()

	if !r.settingsAt.IsZero() && r.now().Sub(r.settingsAt) < settingsTTL {
		return r.settings
	}
	r.settings = r.settingsFn().clamped()
	r.settingsAt = r.now()
	return r.settings
}

// Pending returns the number of unflushed entries for a pair. Test hook.
func (r *Reporter) Pending(scope, category string) int {
	b := r.pair(pairKey{scope: scope, category: category})
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
