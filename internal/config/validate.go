package config

import (
	"fmt"
)

var (
	backends = map[string]bool{"auto": true, "helper": true, "pactl": true, "osascript": true, "memory": true}
	policies = map[string]bool{"exclusive": true, "takeover": true}
)

// Validate rejects settings the monitor cannot start with.
func Validate(s Settings) error {
	if err := s.Monitor.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.Monitor.ReadTimeout <= 0 || s.Monitor.WriteTimeout <= 0 {
		return fmt.Errorf("invalid config: helper timeouts must be positive")
	}
	if !backends[s.Backend] {
		return fmt.Errorf("invalid config: unknown backend %q", s.Backend)
	}
	if !policies[s.InstancePolicy] {
		return fmt.Errorf("invalid config: unknown instance policy %q", s.InstancePolicy)
	}
	return nil
}
