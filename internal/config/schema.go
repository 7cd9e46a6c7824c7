// Package config handles YAML configuration loading, environment variable
// expansion, structural validation, and the runtime settings store consumed
// by the dispatcher and configuration commands.
package config

import "gopkg.in/yaml.v3"

// DefaultPrefix is the global fallback command prefix when no setting exists.
const DefaultPrefix = "!"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Host holds host-wide identity and authority settings.
	Host HostConfig `yaml:"host"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "platform.mock").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Reporter configures the batched activity/log reporter.
	Reporter ReporterConfig `yaml:"reporter,omitempty"`

	// Telemetry configures the optional OTLP trace exporter.
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`

	// Settings holds runtime-writable keys (per-scope prefixes and similar).
	// Accessed through the Store; commands mutate it via Set/Save.
	Settings map[string]any `yaml:"settings,omitempty"`
}

// HostConfig holds host-wide settings.
type HostConfig struct {
	// Masters lists sender IDs granted blanket command authority.
	Masters []string `yaml:"masters,omitempty"`

	// OperatingScope, when non-empty, restricts the processor pipeline to
	// events from this scope. Empty means all scopes.
	OperatingScope string `yaml:"operating_scope,omitempty"`
}

// IsMaster reports whether the sender ID is in the master-user set.
func (h HostConfig) IsMaster(senderID string) bool {
	for _, id := range h.Masters {
		if id == senderID {
			return true
		}
	}
	return false
}

// ReporterConfig configures flush behavior of the batched reporter.
// Out-of-range values are clamped at use, not rejected here.
type ReporterConfig struct {
	// FlushInterval is the maximum age of a buffer before it flushes,
	// in seconds.
	FlushInterval int `yaml:"flush_interval,omitempty"`

	// MaxBufferSize is the entry count that forces an immediate flush.
	MaxBufferSize int `yaml:"max_buffer_size,omitempty"`
}

// TelemetryConfig configures trace export. An empty endpoint disables export.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`
}
