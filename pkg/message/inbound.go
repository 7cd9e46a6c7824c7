package message

import (
	"time"

	"github.com/google/uuid"
)

// InboundEvent represents a text event received from the platform or the
// operator console.
type InboundEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Scope     Scope     `json:"scope"`
	Surface   Surface   `json:"surface"`
	// IsSelf is true when the event was produced by the host's own identity.
	IsSelf bool `json:"is_self,omitempty"`
}

// NewInboundEvent creates an event with a fresh ID and the current time.
func NewInboundEvent(text string, sender Sender, scope Scope, surface Surface) InboundEvent {
	return InboundEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Text:      text,
		Sender:    sender,
		Scope:     scope,
		Surface:   surface,
	}
}

// IsDirectMessage reports whether the event arrived in a direct conversation.
func (e *InboundEvent) IsDirectMessage() bool {
	return e.Scope.IsDirect()
}
