package message

// Reply represents a message to be sent back into a scope.
type Reply struct {
	Scope     Scope  `json:"scope"`
	Text      string `json:"text"`
	ReplyToID string `json:"reply_to_id,omitempty"`
}

// NewReply creates a reply addressed to the scope of the given event,
// referencing the event it answers.
func NewReply(ev InboundEvent, text string) Reply {
	return Reply{
		Scope:     ev.Scope,
		Text:      text,
		ReplyToID: ev.ID,
	}
}
