package corecmd

import "gopkg.in/yaml.v3"

// Config holds the built-in command module configuration.
type Config struct {
	// PingReply is the text the ping command answers with.
	PingReply string `yaml:"ping_reply"`
}

func (c *Config) defaults() {
	if c.PingReply == "" {
		c.PingReply = "pong"
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}
