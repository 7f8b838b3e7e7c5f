// Package agent defines agent configurations and the filesystem registry
// that loads them from a project's agents directory.
package agent

import (
	"fmt"
	"regexp"
)

// nameRe restricts agent names to filesystem- and wire-safe characters.
var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether name is a legal agent name.
func ValidName(name string) bool {
	return nameRe.MatchString(name)
}

// Config is an immutable agent definition: a persona made of a system prompt,
// a description, and the whitelist of callables (tools or other agents) it
// may invoke.
type Config struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	SystemPrompt     string   `json:"system_prompt"`
	AllowedCallables []string `json:"allowed_callables"`
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if !ValidName(c.Name) {
		return fmt.Errorf("invalid agent name %q: only letters, digits, underscore, and hyphen are allowed", c.Name)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("agent %q has an empty system prompt", c.Name)
	}
	for _, callable := range c.AllowedCallables {
		if !nameRe.MatchString(callable) {
			return fmt.Errorf("agent %q: invalid callable name %q", c.Name, callable)
		}
	}
	return nil
}

// Allowed reports whether the agent may invoke the named callable.
func (c *Config) Allowed(name string) bool {
	for _, callable := range c.AllowedCallables {
		if callable == name {
			return true
		}
	}
	return false
}
