package command

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/mgrall/skald/internal/metrics"
	"github.com/mgrall/skald/pkg/message"
)

// fakeSettings is an in-memory SettingsSource.
type fakeSettings struct {
	mu      sync.Mutex
	values  map[string]string
	masters []string
}

func (f *fakeSettings) GetString(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeSettings) Masters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.masters
}

func (f *fakeSettings) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]string{}
	}
	f.values[key] = value
}

// recordingSender collects outbound replies.
type recordingSender struct {
	mu      sync.Mutex
	replies []message.Reply
}

func (r *recordingSender) Send(_ context.Context, reply message.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.replies)
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	table      *Table
	settings   *fakeSettings
	sender     *recordingSender
}

func newFixture(t *testing.T) *dispatchFixture {
	t.Helper()
	settings := &fakeSettings{}
	sender := &recordingSender{}
	table := NewTable()
	d := NewDispatcher(DispatcherConfig{
		Table:    table,
		Settings: settings,
		Replies:  sender,
		Logger:   slog.Default(),
		Metrics:  metrics.New(),
	})
	return &dispatchFixture{dispatcher: d, table: table, settings: settings, sender: sender}
}

func chatEvent(text, senderID string, perms ...message.Permission) message.InboundEvent {
	return message.NewInboundEvent(text,
		message.Sender{ID: senderID, Permissions: perms},
		message.Scope{ID: "G1", Type: message.ScopeGuild},
		message.SurfaceChat,
	)
}

func TestDispatch_PingScenario(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	var (
		mu      sync.Mutex
		invoked bool
		args    []string
	)
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:   "ping",
		RunsOn: Surfaces{Chat: true},
		Handler: func(_ context.Context, inv *Invocation) error {
			mu.Lock()
			defer mu.Unlock()
			invoked = true
			args = inv.Args
			return nil
		},
	}}); err != nil {
		t.Fatal(err)
	}

	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!ping", "u1")); got != ResultDispatched {
		t.Fatalf("result = %v, want ResultDispatched", got)
	}
	fix.dispatcher.Quiesce()

	mu.Lock()
	defer mu.Unlock()
	if !invoked {
		t.Fatal("handler not invoked")
	}
	if len(args) != 0 {
		t.Errorf("args = %v, want empty", args)
	}
}

func TestDispatch_TextWithoutPrefixIgnored(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:    "ping",
		RunsOn:  Surfaces{Chat: true},
		Handler: noopHandler,
	}}); err != nil {
		t.Fatal(err)
	}

	// The prefix must be at the very start of the text.
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("hello !ping", "u1")); got != ResultIgnored {
		t.Errorf("result = %v, want ResultIgnored", got)
	}
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("ping", "u1")); got != ResultIgnored {
		t.Errorf("result = %v, want ResultIgnored", got)
	}
}

func TestDispatch_UnknownCommandSilent(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!nonesuch", "u1")); got != ResultUnknown {
		t.Errorf("result = %v, want ResultUnknown", got)
	}
	fix.dispatcher.Quiesce()
	if fix.sender.count() != 0 {
		t.Error("unknown command must not produce a reply")
	}
}

func TestDispatch_ScopePrefixOverride(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.settings.set("prefix.G1", "?")
	var invoked bool
	var mu sync.Mutex
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:   "ping",
		RunsOn: Surfaces{Chat: true},
		Handler: func(context.Context, *Invocation) error {
			mu.Lock()
			invoked = true
			mu.Unlock()
			return nil
		},
	}}); err != nil {
		t.Fatal(err)
	}

	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!ping", "u1")); got != ResultIgnored {
		t.Errorf("old prefix dispatched: %v", got)
	}
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("?ping", "u1")); got != ResultDispatched {
		t.Errorf("scope prefix not honored: %v", got)
	}
	fix.dispatcher.Quiesce()
	mu.Lock()
	defer mu.Unlock()
	if !invoked {
		t.Error("handler not invoked via scope prefix")
	}
}

func TestDispatch_SettingsInvalidation(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if err := fix.table.SetModule("m", []Descriptor{{
		Name: "ping", RunsOn: Surfaces{Chat: true}, Handler: noopHandler,
	}}); err != nil {
		t.Fatal(err)
	}

	// Populate the cache with the default prefix, then change the scope
	// prefix and invalidate (as the config-loaded hook does).
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!ping", "u1")); got != ResultDispatched {
		t.Fatalf("initial dispatch: %v", got)
	}
	fix.settings.set("prefix.G1", "~")
	fix.dispatcher.InvalidateSettings()

	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!ping", "u1")); got != ResultIgnored {
		t.Errorf("stale prefix still effective after invalidation: %v", got)
	}
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("~ping", "u1")); got != ResultDispatched {
		t.Errorf("new prefix not effective: %v", got)
	}
	fix.dispatcher.Quiesce()
}

func TestDispatch_MasterOnlyGate(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.settings.masters = []string{"u-master"}
	var invoked int
	var mu sync.Mutex
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:       "eval",
		RunsOn:     Surfaces{Chat: true},
		MasterOnly: true,
		Handler: func(context.Context, *Invocation) error {
			mu.Lock()
			invoked++
			mu.Unlock()
			return nil
		},
	}}); err != nil {
		t.Fatal(err)
	}

	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!eval 1+1", "u1")); got != ResultDenied {
		t.Fatalf("non-master result = %v, want ResultDenied", got)
	}
	fix.dispatcher.Quiesce()
	mu.Lock()
	if invoked != 0 {
		t.Fatal("handler invoked despite masterOnly denial")
	}
	mu.Unlock()
	if fix.sender.count() != 1 {
		t.Error("denied invocation should produce a reply")
	}

	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!eval 1+1", "u-master")); got != ResultDispatched {
		t.Fatalf("master result = %v, want ResultDispatched", got)
	}
	fix.dispatcher.Quiesce()
	mu.Lock()
	defer mu.Unlock()
	if invoked != 1 {
		t.Error("handler not invoked for master")
	}
}

func TestDispatch_PermissionGate(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.settings.masters = []string{"u-master"}
	var invoked int
	var mu sync.Mutex
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:        "ban",
		RunsOn:      Surfaces{Chat: true},
		Permissions: []message.Permission{"BAN"},
		Handler: func(context.Context, *Invocation) error {
			mu.Lock()
			invoked++
			mu.Unlock()
			return nil
		},
	}}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!ban spammer", "u1")); got != ResultDenied {
		t.Errorf("missing permission: result = %v, want ResultDenied", got)
	}
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!ban spammer", "u2", "BAN")); got != ResultDispatched {
		t.Errorf("holder: result = %v, want ResultDispatched", got)
	}
	// Master status overrides the missing permission.
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!ban spammer", "u-master")); got != ResultDispatched {
		t.Errorf("master: result = %v, want ResultDispatched", got)
	}
	fix.dispatcher.Quiesce()

	mu.Lock()
	defer mu.Unlock()
	if invoked != 2 {
		t.Errorf("invoked = %d, want 2", invoked)
	}
}

func TestDispatch_SurfaceFiltering(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if err := fix.table.SetModule("m", []Descriptor{{
		Name:    "shutdown",
		RunsOn:  Surfaces{Control: true},
		Handler: noopHandler,
	}}); err != nil {
		t.Fatal(err)
	}

	// Control-only command from chat resolves as unknown, silently.
	if got := fix.dispatcher.Dispatch(context.Background(), chatEvent("!shutdown", "u1")); got != ResultUnknown {
		t.Errorf("chat surface: result = %v, want ResultUnknown", got)
	}
	if fix.sender.count() != 0 {
		t.Error("wrong-surface resolution must stay silent")
	}

	control := message.NewInboundEvent("!shutdown",
		message.Sender{ID: "op"},
		message.Scope{ID: "console", Type: message.ScopeGuild},
		message.SurfaceControl,
	)
	if got := fix.dispatcher.Dispatch(context.Background(), control); got != ResultDispatched {
		t.Errorf("control surface: result = %v, want ResultDispatched", got)
	}
	fix.dispatcher.Quiesce()
}

func TestDispatch_ConsoleSurface(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if err := fix.table.SetModule("m", []Descriptor{
		{Name: "status", RunsOn: Surfaces{Control: true}, Handler: noopHandler},
		{Name: "whoami", RunsOn: Surfaces{Chat: true}, Direct: true, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}

	// Console sessions have no scope, so their events look like direct
	// messages; the control flag must still decide, not the Direct mark.
	console := func(text string) message.InboundEvent {
		return message.NewInboundEvent(text,
			message.Sender{ID: "op"},
			message.Scope{Type: message.ScopeDirect},
			message.SurfaceControl,
		)
	}

	if got := fix.dispatcher.Dispatch(context.Background(), console("!status")); got != ResultDispatched {
		t.Errorf("control-flagged command from console: %v, want ResultDispatched", got)
	}
	// Direct-eligible but not control-flagged stays unknown on the console.
	if got := fix.dispatcher.Dispatch(context.Background(), console("!whoami")); got != ResultUnknown {
		t.Errorf("chat-and-DM command from console: %v, want ResultUnknown", got)
	}
	fix.dispatcher.Quiesce()
}

func TestDispatch_DirectMessagePath(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	// A scope prefix must not apply to direct messages.
	fix.settings.set("prefix.", "?")
	if err := fix.table.SetModule("m", []Descriptor{
		{Name: "ping", RunsOn: Surfaces{Chat: true}, Direct: true, Handler: noopHandler},
		{Name: "stats", RunsOn: Surfaces{Chat: true}, Handler: noopHandler},
	}); err != nil {
		t.Fatal(err)
	}

	dm := func(text string) message.InboundEvent {
		return message.NewInboundEvent(text,
			message.Sender{ID: "u1"},
			message.Scope{Type: message.ScopeDirect},
			message.SurfaceChat,
		)
	}

	if got := fix.dispatcher.Dispatch(context.Background(), dm("!ping")); got != ResultDispatched {
		t.Errorf("direct-eligible command: %v, want ResultDispatched", got)
	}
	// Not marked Direct → unknown on the DM path even though it exists.
	if got := fix.dispatcher.Dispatch(context.Background(), dm("!stats")); got != ResultUnknown {
		t.Errorf("non-direct command via DM: %v, want ResultUnknown", got)
	}
	fix.dispatcher.Quiesce()
}

func TestDispatch_SelfEventsIgnored(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	if err := fix.table.SetModule("m", []Descriptor{{
		Name: "ping", RunsOn: Surfaces{Chat: true}, Handler: noopHandler,
	}}); err != nil {
		t.Fatal(err)
	}

	ev := chatEvent("!ping", "bot")
	ev.IsSelf = true
	if got := fix.dispatcher.Dispatch(context.Background(), ev); got != ResultIgnored {
		t.Errorf("self event: %v, want ResultIgnored", got)
	}
}

func TestDispatch_HandlerFailureContained(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	var sunk error
	var sunkMu sync.Mutex
	fix.dispatcher.failures = func(_, _ string, err error) {
		sunkMu.Lock()
		sunk = err
		sunkMu.Unlock()
	}

	if err := fix.table.SetModule("m", []Descriptor{
		{Name: "bad", RunsOn: Surfaces{Chat: true}, Handler: func(context.Context, *Invocation) error {
			return errors.New("db gone")
		}},
		{Name: "panics", RunsOn: Surfaces{Chat: true}, Handler: func(context.Context, *Invocation) error {
			panic("boom")
		}},
	}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!bad", "u1")); got != ResultDispatched {
		t.Fatalf("result = %v", got)
	}
	fix.dispatcher.Quiesce()
	if fix.sender.count() != 1 {
		t.Error("failure should produce a generic acknowledgment reply")
	}
	sunkMu.Lock()
	if sunk == nil {
		t.Error("failure sink not notified")
	}
	sunkMu.Unlock()

	// A panicking handler must not bring the dispatcher down either.
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!panics", "u1")); got != ResultDispatched {
		t.Fatalf("result = %v", got)
	}
	fix.dispatcher.Quiesce()

	// Dispatcher still works afterward.
	if got := fix.dispatcher.Dispatch(ctx, chatEvent("!bad", "u1")); got != ResultDispatched {
		t.Errorf("dispatcher unusable after failures: %v", got)
	}
	fix.dispatcher.Quiesce()
}

func TestResultRecognized(t *testing.T) {
	t.Parallel()

	if ResultIgnored.Recognized() || ResultUnknown.Recognized() {
		t.Error("ignored/unknown must not count as recognized")
	}
	if !ResultDenied.Recognized() || !ResultDispatched.Recognized() {
		t.Error("denied/dispatched must count as recognized")
	}
}
