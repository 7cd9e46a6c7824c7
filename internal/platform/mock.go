package platform

import (
	"context"
	"sync"

	"github.com/mgrall/skald/pkg/message"
)

// MockClient is a test double that implements Client. It records sent
// replies and allows simulating inbound events via SimulateEvent.
type MockClient struct {
	mu    sync.Mutex
	inbox Inbox
	sent  []message.Reply

	// SendFunc, if set, is called instead of the default recording behavior.
	SendFunc func(ctx context.Context, reply message.Reply) error
}

// Compile-time interface guard.
var _ Client = (*MockClient)(nil)

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// SetInbox implements Client.
func (m *MockClient) SetInbox(fn Inbox) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox = fn
}

// Send records the reply. If SendFunc is set, it delegates to it.
func (m *MockClient) Send(ctx context.Context, reply message.Reply) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, reply)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, reply)
	return nil
}

// SimulateEvent pushes an inbound event into the inbox as if the platform
// had delivered it. Returns ErrNoInbox before wiring.
func (m *MockClient) SimulateEvent(ev message.InboundEvent) error {
	m.mu.Lock()
	inbox := m.inbox
	m.mu.Unlock()

	if inbox == nil {
		return ErrNoInbox
	}
	return inbox(ev)
}

// Sent returns a copy of the replies recorded so far.
func (m *MockClient) Sent() []message.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message.Reply(nil), m.sent...)
}
