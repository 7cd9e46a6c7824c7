package core

import (
	"gopkg.in/yaml.v3"

	"github.com/mgrall/skald/internal/command"
	"github.com/mgrall/skald/internal/config"
	"github.com/mgrall/skald/internal/cron"
	"github.com/mgrall/skald/internal/pipeline"
)

// Configurable is implemented by modules that accept YAML configuration.
// Called after instantiation and before Init. The node contains the raw
// YAML for this module's config section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Initializer is implemented by modules that need setup. isReload is true
// when the instance replaces a previous version of the same module; the new
// instance starts with fresh private state either way. Listener
// registrations (ModuleHost.Subscribe) are only valid during Init.
type Initializer interface {
	Init(h *ModuleHost, isReload bool) error
}

// ConfigListener is implemented by modules that react to configuration
// loads and saves. The runtime subscribes it to the config-loaded lifecycle
// event through the tracked-listener machinery, so the subscription
// survives reloads without gaps or duplicates.
type ConfigListener interface {
	ConfigLoaded(h *ModuleHost, cfg *config.Config)
}

// PlatformListener is implemented by modules that react to the platform
// connection becoming available.
type PlatformListener interface {
	PlatformConnected(h *ModuleHost)
}

// Destroyer is implemented by modules that clean up resources on unload,
// replacement, or host shutdown. Listener revocation is the runtime's job;
// Destroy only releases what the module itself acquired.
type Destroyer interface {
	Destroy()
}

// CommandProvider is implemented by modules contributing commands. The
// returned descriptors are registered as one generation and replaced
// wholesale when the module reloads.
type CommandProvider interface {
	Commands() []command.Descriptor
}

// ProcessorProvider is implemented by modules contributing passive
// observers to the processor pipeline.
type ProcessorProvider interface {
	Processors() []pipeline.Processor
}

// JobProvider is implemented by modules contributing scheduled jobs.
type JobProvider interface {
	Jobs() []cron.Job
}
