// Package activity observes inbound chat traffic and reports per-scope
// message counts through the batched reporter on a cron schedule. It
// registers itself as "watch.activity" via init().
package activity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/internal/cron"
	"github.com/mgrall/skald/internal/pipeline"
	"github.com/mgrall/skald/pkg/message"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable      = (*Module)(nil)
	_ core.Initializer       = (*Module)(nil)
	_ core.CommandProvider   = (*Module)(nil)
	_ core.ProcessorProvider = (*Module)(nil)
	_ core.JobProvider       = (*Module)(nil)
	_ pipeline.Processor     = (*counter)(nil)
)

// Config holds the activity module configuration.
type Config struct {
	// Category tags the reporter entries this module enqueues.
	Category string `yaml:"category"`
	// ReportSchedule is the cron expression for the summary job.
	ReportSchedule string `yaml:"report_schedule"`
}

func (c *Config) defaults() {
	if c.Category == "" {
		c.Category = "activity"
	}
	if c.ReportSchedule == "" {
		c.ReportSchedule = "0 * * * *"
	}
}

// sink is the slice of the reporter the summary job needs.
type sink interface {
	Enqueue(scope, category, payload string)
}

// Module counts observed events per scope. Counts are private processor
// state: a reload starts them over.
type Module struct {
	config   Config
	reporter sink

	mu     sync.Mutex
	counts map[string]int
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "watch.activity",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Init implements core.Initializer.
func (m *Module) Init(h *core.ModuleHost, _ bool) error {
	m.config.defaults()
	m.reporter = h.Reporter()
	m.counts = make(map[string]int)
	return nil
}

// Processors implements core.ProcessorProvider.
func (m *Module) Processors() []pipeline.Processor {
	return []pipeline.Processor{&counter{module: m}}
}

// Jobs implements core.JobProvider.
func (m *Module) Jobs() []cron.Job {
	return []cron.Job{
		cron.NewJob("activity.report", m.config.ReportSchedule, m.report),
	}
}

// Commands implements core.CommandProvider.
func (m *Module) Commands() []command.Descriptor {
	return []command.Descriptor{{
		Name:    "activity",
		RunsOn:  command.Surfaces{Chat: true, Control: true},
		Help:    command.Surfaces{Chat: true, Control: true},
		Direct:  true,
		Handler: m.handleActivity,
	}}
}

// record counts one observed event for its scope.
func (m *Module) record(scopeID string) {
	if scopeID == "" {
		scopeID = "direct"
	}
	m.mu.Lock()
	m.counts[scopeID]++
	m.mu.Unlock()
}

// snapshot returns the current counts, optionally resetting them.
func (m *Module) snapshot(reset bool) map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.counts))
	for scope, n := range m.counts {
		out[scope] = n
	}
	if reset {
		m.counts = make(map[string]int)
	}
	return out
}

// report enqueues one reporter entry per active scope and resets counts.
func (m *Module) report(_ context.Context) error {
	for scope, n := range m.snapshot(true) {
		m.reporter.Enqueue(scope, m.config.Category,
			fmt.Sprintf("%d messages observed", n))
	}
	return nil
}

func (m *Module) handleActivity(ctx context.Context, inv *command.Invocation) error {
	counts := m.snapshot(false)
	if len(counts) == 0 {
		return inv.Reply(ctx, "No activity observed yet.")
	}

	scopes := make([]string, 0, len(counts))
	for scope := range counts {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	var b strings.Builder
	for i, scope := range scopes {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %d", scope, counts[scope])
	}
	return inv.Reply(ctx, "Messages since last report: "+b.String())
}

// counter is the pipeline processor counting qualifying events.
type counter struct {
	module *Module
}

func (c *counter) Name() string { return "activity.counter" }

// IgnoresCommands keeps command invocations out of the counts.
func (c *counter) IgnoresCommands() bool { return true }

func (c *counter) Handle(_ context.Context, ev message.InboundEvent) error {
	c.module.record(ev.Scope.ID)
	return nil
}
