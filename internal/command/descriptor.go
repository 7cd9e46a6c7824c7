// Package command implements the declarative command table and the
// dispatcher that resolves inbound text events against it: prefix handling,
// argument parsing, permission gates, and fault-isolated handler invocation.
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mgrall/skald/pkg/message"
)

// Sentinel errors for descriptor registration.
var (
	ErrNoName    = errors.New("command: descriptor has no name")
	ErrNoHandler = errors.New("command: descriptor has no handler")
	ErrNoSurface = errors.New("command: descriptor runs on no surface")
	ErrDuplicate = errors.New("command: name or alias already registered")
	ErrBadName   = errors.New("command: name must not contain whitespace")
	ErrNoReplier = errors.New("command: invocation has no replier")
)

// Replier sends a textual reply into the scope the invocation came from.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// Invocation carries everything a handler needs for one command execution.
// The module's handler closes over its host; author and scope travel with
// the event.
type Invocation struct {
	// Command is the canonical (non-alias) name the event resolved to.
	Command string
	// Args is the parsed argument list; a quoted segment is one argument.
	Args []string
	// Event is the inbound event that triggered the invocation.
	Event message.InboundEvent
	// Replier answers into the originating scope.
	Replier Replier
}

// Reply is shorthand for Invocation.Replier.Reply.
func (inv *Invocation) Reply(ctx context.Context, text string) error {
	if inv.Replier == nil {
		return ErrNoReplier
	}
	return inv.Replier.Reply(ctx, text)
}

// Handler executes a command. Errors are caught at the dispatch boundary,
// logged with the command name, and answered with a generic failure reply.
type Handler func(ctx context.Context, inv *Invocation) error

// Surfaces flags the surfaces a command runs on or is listed on.
type Surfaces struct {
	Chat    bool
	Control bool
}

// Descriptor declares one command. Descriptors are immutable once
// registered for a load generation and replaced wholesale on module reload.
type Descriptor struct {
	// Name is the canonical command token. Matched case-sensitively.
	Name string
	// Aliases are alternative tokens resolving to this command.
	Aliases []string
	// RunsOn flags the surfaces the command may be invoked from. A command
	// invoked from a surface it does not run on resolves as unknown.
	RunsOn Surfaces
	// Help flags the surfaces whose help listing shows this command.
	Help Surfaces
	// Direct marks the command eligible for the direct-message path.
	Direct bool
	// Permissions the author must all hold. Master users bypass this.
	Permissions []message.Permission
	// MasterOnly restricts the command to the master-user set.
	MasterOnly bool
	// Handler runs the command.
	Handler Handler
}

// Validate rejects malformed descriptors at registration time.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return ErrNoName
	}
	if strings.ContainsAny(d.Name, " \t\n") {
		return fmt.Errorf("%w: %q", ErrBadName, d.Name)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, d.Name)
	}
	if !d.RunsOn.Chat && !d.RunsOn.Control && !d.Direct {
		return fmt.Errorf("%w: %s", ErrNoSurface, d.Name)
	}
	for _, a := range d.Aliases {
		if a == "" || strings.ContainsAny(a, " \t\n") {
			return fmt.Errorf("%w: alias %q of %s", ErrBadName, a, d.Name)
		}
	}
	return nil
}

// runsOn reports whether the descriptor may be invoked from the given
// surface. The surface flag decides first; the Direct mark gates only
// platform direct messages, which arrive on the chat surface.
func (d Descriptor) runsOn(surface message.Surface, direct bool) bool {
	if surface == message.SurfaceControl {
		return d.RunsOn.Control
	}
	if direct {
		return d.Direct
	}
	return d.RunsOn.Chat
}
