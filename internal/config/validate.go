package config

import (
	"errors"
	"fmt"
)

// Validate checks the structural validity of a Config. knownModule reports
// whether a module ID exists in the compile-time registry; it is passed in
// as a function so this package stays independent of the registry.
func Validate(cfg *Config, knownModule func(id string) bool) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if knownModule != nil {
		for id := range cfg.Modules {
			if !knownModule(id) {
				errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			}
		}
	}

	for _, id := range cfg.Host.Masters {
		if id == "" {
			errs = append(errs, errors.New("config: host.masters entries must not be empty"))
			break
		}
	}

	if cfg.Reporter.FlushInterval < 0 {
		errs = append(errs, errors.New("config: reporter.flush_interval must not be negative"))
	}
	if cfg.Reporter.MaxBufferSize < 0 {
		errs = append(errs, errors.New("config: reporter.max_buffer_size must not be negative"))
	}

	return errors.Join(errs...)
}
