// Package platform defines the bridge between the remote chat platform and
// the host core. The core never inspects transport details; a concrete
// client receives events from its platform and pushes them into the inbox,
// and delivers replies back into a scope.
package platform

import (
	"context"
	"errors"

	"github.com/mgrall/skald/pkg/message"
)

// Sentinel errors shared by client implementations.
var (
	// ErrNoInbox is returned when events arrive before wiring.
	ErrNoInbox = errors.New("platform: inbox not set")
	// ErrNotConnected is returned when sending without a connection.
	ErrNotConnected = errors.New("platform: not connected")
)

// Inbox receives inbound events in arrival order.
type Inbox func(ev message.InboundEvent) error

// Client is the platform collaborator consumed by the core.
type Client interface {
	// SetInbox gives the client a function to push inbound events to the
	// host. Called during wiring, before Start.
	SetInbox(fn Inbox)

	// Send delivers a reply into a scope on the platform.
	Send(ctx context.Context, reply message.Reply) error
}
