// Package corecmd provides the built-in operator commands: ping, help,
// modules, reload, and prefix. It registers itself as "cmd.core" via
// init().
package corecmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/pkg/message"
)

func init() {
	core.RegisterModule(&Module{})
}

// Compile-time interface guards.
var (
	_ core.Configurable    = (*Module)(nil)
	_ core.Initializer     = (*Module)(nil)
	_ core.CommandProvider = (*Module)(nil)
)

// Module is the built-in command module.
type Module struct {
	config Config
	host   *core.ModuleHost
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "cmd.core",
		New: func() core.Module { return &Module{} },
	}
}

// Init implements core.Initializer.
func (m *Module) Init(h *core.ModuleHost, _ bool) error {
	m.config.defaults()
	m.host = h
	return nil
}

// Commands implements core.CommandProvider.
func (m *Module) Commands() []command.Descriptor {
	all := command.Surfaces{Chat: true, Control: true}
	return []command.Descriptor{
		{
			Name:    "ping",
			RunsOn:  all,
			Help:    all,
			Direct:  true,
			Handler: m.handlePing,
		},
		{
			Name:    "help",
			Aliases: []string{"commands"},
			RunsOn:  all,
			Help:    all,
			Direct:  true,
			Handler: m.handleHelp,
		},
		{
			Name:    "modules",
			RunsOn:  all,
			Help:    command.Surfaces{Control: true},
			Direct:  true,
			Handler: m.handleModules,
		},
		{
			Name:       "reload",
			RunsOn:     all,
			Help:       command.Surfaces{Control: true},
			Direct:     true,
			MasterOnly: true,
			Handler:    m.handleReload,
		},
		{
			Name:       "prefix",
			RunsOn:     all,
			Help:       command.Surfaces{Control: true},
			Direct:     true,
			MasterOnly: true,
			Handler:    m.handlePrefix,
		},
	}
}

func (m *Module) handlePing(ctx context.Context, inv *command.Invocation) error {
	return inv.Reply(ctx, m.config.PingReply)
}

// handleHelp lists the commands whose help listing covers the invoking
// surface, prefixed with the effective default prefix.
func (m *Module) handleHelp(ctx context.Context, inv *command.Invocation) error {
	prefix, _ := m.host.Config().GetString(command.SettingDefaultPrefix)
	if prefix == "" {
		prefix = command.FallbackPrefix
	}

	control := inv.Event.Surface == message.SurfaceControl
	var names []string
	for _, desc := range m.host.CommandTable().All() {
		if control && !desc.Help.Control {
			continue
		}
		if !control && !desc.Help.Chat {
			continue
		}
		names = append(names, prefix+desc.Name)
	}
	if len(names) == 0 {
		return inv.Reply(ctx, "No commands available here.")
	}
	sort.Strings(names)
	return inv.Reply(ctx, "Available commands: "+strings.Join(names, ", "))
}

func (m *Module) handleModules(ctx context.Context, inv *command.Invocation) error {
	var b strings.Builder
	for i, s := range m.host.ModuleStatuses() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s (gen %d)", s.ID, s.State, s.Generation)
		if s.Reason != "" {
			fmt.Fprintf(&b, " [%s]", s.Reason)
		}
	}
	return inv.Reply(ctx, b.String())
}

// handleReload hot-reloads one module, or every non-core module when called
// without arguments.
func (m *Module) handleReload(ctx context.Context, inv *command.Invocation) error {
	var outcomes []core.Outcome
	if len(inv.Args) > 0 {
		outcomes = []core.Outcome{m.host.ReloadModule(core.ModuleID(inv.Args[0]))}
	} else {
		outcomes = m.host.ReloadAll()
	}

	var b strings.Builder
	for i, out := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", out.Module, out.Status)
		if out.Reason != "" {
			fmt.Fprintf(&b, " (%s)", out.Reason)
		}
	}
	return inv.Reply(ctx, b.String())
}

// handlePrefix shows or changes command prefixes.
//
//	prefix                   show the effective default
//	prefix default <value>   set the global default
//	prefix here <value>      set an override for the current scope
//	prefix clear             drop the current scope's override
func (m *Module) handlePrefix(ctx context.Context, inv *command.Invocation) error {
	store := m.host.Config()

	if len(inv.Args) == 0 {
		prefix, _ := store.GetString(command.SettingDefaultPrefix)
		if prefix == "" {
			prefix = command.FallbackPrefix
		}
		return inv.Reply(ctx, "Current default prefix: "+prefix)
	}

	scopeKey := command.SettingScopePrefix + inv.Event.Scope.ID

	switch inv.Args[0] {
	case "default":
		if len(inv.Args) < 2 || inv.Args[1] == "" {
			return inv.Reply(ctx, "Usage: prefix default <value>")
		}
		store.Set(command.SettingDefaultPrefix, inv.Args[1])
	case "here":
		if inv.Event.IsDirectMessage() {
			return inv.Reply(ctx, "Direct messages always use the default prefix.")
		}
		if len(inv.Args) < 2 || inv.Args[1] == "" {
			return inv.Reply(ctx, "Usage: prefix here <value>")
		}
		store.Set(scopeKey, inv.Args[1])
	case "clear":
		if inv.Event.IsDirectMessage() {
			return inv.Reply(ctx, "Direct messages always use the default prefix.")
		}
		store.Delete(scopeKey)
	default:
		return inv.Reply(ctx, "Usage: prefix [default <value> | here <value> | clear]")
	}

	if err := store.Save(); err != nil {
		return fmt.Errorf("saving prefix change: %w", err)
	}
	return inv.Reply(ctx, "Prefix updated.")
}
