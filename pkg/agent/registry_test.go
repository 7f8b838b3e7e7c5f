package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgent(t *testing.T, agentsDir, name, prompt, description, tools string) {
	t.Helper()
	dir := filepath.Join(agentsDir, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "system_prompt.txt"), []byte(prompt), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "description.txt"), []byte(description), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tools.txt"), []byte(tools), 0o644))
}

func TestRegistryGet(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "researcher", "You research things.", "A researcher.",
		"calculator\n\n# comment\nweb_search\n")

	cfg, err := NewRegistry(dir).Get("researcher")
	require.NoError(t, err)
	assert.Equal(t, "researcher", cfg.Name)
	assert.Equal(t, "You research things.", cfg.SystemPrompt)
	assert.Equal(t, "A researcher.", cfg.Description)
	assert.Equal(t, []string{"calculator", "web_search"}, cfg.AllowedCallables)
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	_, err := reg.Get("missing")
	assert.ErrorIs(t, err, ErrAgentNotFound)

	// Path traversal attempts are rejected as invalid names.
	_, err = reg.Get("../evil")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRegistryList(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "zeta", "z prompt", "", "")
	writeAgent(t, dir, "alpha", "a prompt", "", "")
	// Missing system prompt — skipped.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o755))

	configs, err := NewRegistry(dir).List()
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "alpha", configs[0].Name)
	assert.Equal(t, "zeta", configs[1].Name)
}

func TestRegistryListMissingDir(t *testing.T) {
	configs, err := NewRegistry(filepath.Join(t.TempDir(), "nope")).List()
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestRegistrySaveAndDelete(t *testing.T) {
	reg := NewRegistry(t.TempDir())

	cfg := &Config{
		Name:             "writer",
		Description:      "Writes prose.",
		SystemPrompt:     "You write.",
		AllowedCallables: []string{"calculator"},
	}
	require.NoError(t, reg.Save(cfg))

	got, err := reg.Get("writer")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.NoError(t, reg.Delete("writer"))
	_, err = reg.Get("writer")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{Name: "bad name", SystemPrompt: "p"}).Validate())
	assert.Error(t, (&Config{Name: "ok", SystemPrompt: ""}).Validate())
	assert.Error(t, (&Config{Name: "ok", SystemPrompt: "p", AllowedCallables: []string{"no/slash"}}).Validate())
	assert.NoError(t, (&Config{Name: "ok-1_x", SystemPrompt: "p", AllowedCallables: []string{"calc"}}).Validate())
}

func TestConfigAllowed(t *testing.T) {
	cfg := &Config{Name: "a", SystemPrompt: "p", AllowedCallables: []string{"calc", "web"}}
	assert.True(t, cfg.Allowed("calc"))
	assert.False(t, cfg.Allowed("shell"))
}
