// Package mockplatform provides an in-process platform client for local
// development and tests. It registers itself as "platform.mock" via init()
// and publishes its client in the service registry under "platform.client",
// where the application wiring discovers it.
package mockplatform

import (
	"github.com/mgrall/skald/internal/core"
	"github.com/mgrall/skald/internal/platform"
)

func init() {
	core.RegisterModule(&Module{})
}

var _ core.Initializer = (*Module)(nil)

// Module owns the mock client. The platform connection is host identity,
// so the module is core and survives reload sweeps.
type Module struct {
	client *platform.MockClient
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:   "platform.mock",
		Core: true,
		New:  func() core.Module { return &Module{} },
	}
}

// Init implements core.Initializer.
func (m *Module) Init(h *core.ModuleHost, _ bool) error {
	m.client = platform.NewMockClient()
	h.RegisterService("platform.client", m.client)
	return nil
}

// Client returns the mock client for direct use in tests.
func (m *Module) Client() *platform.MockClient {
	return m.client
}
