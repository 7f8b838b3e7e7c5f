package prompt

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the override file name looked up in a project's prompts
// directory.
const DefaultFile = "default.yaml"

// Templates holds every template the runtime renders, keyed by category.
type Templates struct {
	SystemPrompts   map[string]string `yaml:"system_prompts"`
	RuntimeMessages map[string]string `yaml:"runtime_messages"`
	ErrorMessages   map[string]string `yaml:"error_messages"`
}

// Loader resolves templates against built-in defaults with optional YAML
// overrides. Immutable after construction. Thread-safe.
type Loader struct {
	templates Templates
}

// NewLoader builds a Loader from the defaults overlaid with default.yaml
// from promptsDir, if present. A missing, empty, or malformed override file
// falls back to the defaults rather than failing.
func NewLoader(promptsDir string) *Loader {
	templates := defaultTemplates()

	path := filepath.Join(promptsDir, DefaultFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read prompt overrides, using defaults", "path", path, "error", err)
		}
		return &Loader{templates: templates}
	}

	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		slog.Warn("failed to parse prompt overrides, using defaults", "path", path, "error", err)
		return &Loader{templates: templates}
	}

	// Override keys win; defaults fill everything the file leaves out.
	if err := mergo.Merge(&templates, override, mergo.WithOverride); err != nil {
		slog.Warn("failed to merge prompt overrides, using defaults", "path", path, "error", err)
		return &Loader{templates: defaultTemplates()}
	}

	slog.Debug("loaded prompt overrides", "path", path)
	return &Loader{templates: templates}
}

// Get renders the template at category/key, substituting `{name}` placeholders
// from vars. Unknown keys render as the empty string. Placeholders without a
// matching var are left untouched.
func (l *Loader) Get(category, key string, vars map[string]string) string {
	var m map[string]string
	switch category {
	case categorySystemPrompts:
		m = l.templates.SystemPrompts
	case categoryRuntimeMessages:
		m = l.templates.RuntimeMessages
	case categoryErrorMessages:
		m = l.templates.ErrorMessages
	}

	tmpl, ok := m[key]
	if !ok {
		slog.Warn("prompt template not found", "category", category, "key", key)
		return ""
	}
	return render(tmpl, vars)
}

// System is a convenience accessor for system_prompts templates.
func (l *Loader) System(key string, vars map[string]string) string {
	return l.Get(categorySystemPrompts, key, vars)
}

// Runtime is a convenience accessor for runtime_messages templates.
func (l *Loader) Runtime(key string, vars map[string]string) string {
	return l.Get(categoryRuntimeMessages, key, vars)
}

// Error is a convenience accessor for error_messages templates.
func (l *Loader) Error(key string, vars map[string]string) string {
	return l.Get(categoryErrorMessages, key, vars)
}

func render(tmpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// FormatTaskList renders task IDs as an indented bullet list for warnings
// and launch notifications.
func FormatTaskList(taskIDs []string) string {
	lines := make([]string, len(taskIDs))
	for i, id := range taskIDs {
		lines[i] = "  - " + id
	}
	return strings.Join(lines, "\n")
}
