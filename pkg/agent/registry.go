package agent

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrAgentNotFound is returned when a name resolves to no agent directory.
var ErrAgentNotFound = errors.New("agent not found")

// Registry loads agent configurations from a project's agents directory.
// Layout: <agentsDir>/<name>/{description.txt, system_prompt.txt, tools.txt}.
// tools.txt lists one callable name per line; blank lines and lines starting
// with '#' are ignored.
type Registry struct {
	agentsDir string
}

// NewRegistry creates a Registry over the given agents directory.
func NewRegistry(agentsDir string) *Registry {
	return &Registry{agentsDir: agentsDir}
}

// Get loads a single agent configuration by name.
func (r *Registry) Get(name string) (*Config, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: invalid name %q", ErrAgentNotFound, name)
	}
	dir := filepath.Join(r.agentsDir, name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return r.load(name, dir)
}

// List loads every agent configuration in the directory, sorted by name.
// Directories with invalid names or unreadable prompts are skipped.
func (r *Registry) List() ([]*Config, error) {
	entries, err := os.ReadDir(r.agentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents directory: %w", err)
	}

	var configs []*Config
	for _, entry := range entries {
		if !entry.IsDir() || !ValidName(entry.Name()) {
			continue
		}
		cfg, err := r.load(entry.Name(), filepath.Join(r.agentsDir, entry.Name()))
		if err != nil {
			continue
		}
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

// Save writes an agent configuration to disk, creating or replacing its
// directory contents.
func (r *Registry) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	dir := filepath.Join(r.agentsDir, cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create agent directory: %w", err)
	}

	files := map[string]string{
		"description.txt":   cfg.Description,
		"system_prompt.txt": cfg.SystemPrompt,
		"tools.txt":         strings.Join(cfg.AllowedCallables, "\n"),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// Delete removes an agent's directory.
func (r *Registry) Delete(name string) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(r.agentsDir, name))
}

func (r *Registry) load(name, dir string) (*Config, error) {
	systemPrompt, err := os.ReadFile(filepath.Join(dir, "system_prompt.txt"))
	if err != nil {
		return nil, fmt.Errorf("agent %s: read system prompt: %w", name, err)
	}

	// description and tools are optional.
	description, _ := os.ReadFile(filepath.Join(dir, "description.txt"))
	toolsRaw, _ := os.ReadFile(filepath.Join(dir, "tools.txt"))

	var callables []string
	for _, line := range strings.Split(string(toolsRaw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		callables = append(callables, line)
	}

	return &Config{
		Name:             name,
		Description:      strings.TrimSpace(string(description)),
		SystemPrompt:     strings.TrimSpace(string(systemPrompt)),
		AllowedCallables: callables,
	}, nil
}
