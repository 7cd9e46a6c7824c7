// Package core provides the module system foundation for skald: the
// compile-time module registry, the lifecycle hook contracts, the host
// surface exposed to module authors, and the runtime that drives every
// module through its hot-reload state machine.
package core

// ModuleID uniquely identifies a module (e.g. "corecmd", "gateway.http").
type ModuleID string

// ModuleInfo describes a registered module. New is the module's source
// reference: hot reload re-instantiates the module from it, so a reloaded
// module starts from a fresh object graph.
type ModuleInfo struct {
	// ID is the unique module identifier.
	ID ModuleID

	// Core marks host infrastructure modules that an all-non-core reload
	// sweep leaves alone.
	Core bool

	// New returns a fresh, unprovisioned instance of the module.
	New func() Module
}

// Module is the minimal interface every extension unit implements.
type Module interface {
	ModuleInfo() ModuleInfo
}

// State is a module's position in the hot-reload state machine.
type State int

// Module lifecycle states.
const (
	StateUnloaded State = iota
	StateLoading
	StateActive
	StateReloading
	StateRolledBack
	StateDestroyed
)

var stateNames = map[State]string{
	StateUnloaded:   "unloaded",
	StateLoading:    "loading",
	StateActive:     "active",
	StateReloading:  "reloading",
	StateRolledBack: "rolled_back",
	StateDestroyed:  "destroyed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// active reports whether the module currently has live code serving events.
// A rolled-back module is still running its previous version.
func (s State) active() bool {
	return s == StateActive || s == StateReloading || s == StateRolledBack
}
