// Package message defines the platform-agnostic data contract between the
// platform client and the dispatcher/pipeline core. Events carry plain text,
// the sender identity with its permission set, and the scope they arrived in.
package message

// ScopeType indicates the kind of conversation a scope represents.
type ScopeType string

const (
	// ScopeDirect is a direct (one-to-one) conversation with the host.
	ScopeDirect ScopeType = "direct"
	// ScopeGuild is a multi-participant community scope.
	ScopeGuild ScopeType = "guild"
)

// Surface identifies which command surface an event arrived on.
type Surface string

const (
	// SurfaceChat is the ordinary chat surface served by the platform client.
	SurfaceChat Surface = "chat"
	// SurfaceControl is the operator console surface served by the gateway.
	SurfaceControl Surface = "control"
)

// Permission is a named capability the platform grants a sender.
type Permission string

// Scope identifies the configuration/isolation boundary a message belongs to.
// A direct message has an empty ID and type ScopeDirect.
type Scope struct {
	ID   string    `json:"id,omitempty"`
	Type ScopeType `json:"type"`
}

// IsDirect reports whether the scope is a direct conversation.
func (s Scope) IsDirect() bool {
	return s.Type == ScopeDirect
}

// Sender identifies the author of an inbound event.
type Sender struct {
	ID          string       `json:"id"`
	Username    string       `json:"username,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Has reports whether the sender carries the given permission.
func (s Sender) Has(p Permission) bool {
	for _, have := range s.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// HasAll reports whether the sender carries every permission in perms.
func (s Sender) HasAll(perms []Permission) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}
