// Package tools defines the Tool plug-in contract, the per-project registry,
// and JSON-Schema validation of call parameters.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrToolNotFound is returned when a name resolves to no registered tool.
var ErrToolNotFound = errors.New("tool not found")

// Tool is a callable exposed to agents. Execute is treated as blocking and is
// always dispatched off the orchestration path.
type Tool interface {
	Name() string
	Description() string
	// ParametersSchema returns the JSON-Schema fragment describing the
	// tool's parameters, as opaque JSON.
	ParametersSchema() string
	Execute(ctx context.Context, params map[string]any) (string, error)
}

// Registry holds the tools available to one project. It is loaded once and
// read-only afterwards, so lookups need no locking; schema compilation is
// cached lazily.
type Registry struct {
	tools map[string]Tool

	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

// NewRegistry creates a registry over the given tools. Duplicate names are
// rejected.
func NewRegistry(toolList ...Tool) (*Registry, error) {
	r := &Registry{
		tools:    make(map[string]Tool, len(toolList)),
		compiled: make(map[string]*jsonschema.Schema),
	}
	for _, t := range toolList {
		if _, exists := r.tools[t.Name()]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateParams checks params against the tool's parameter schema. Tools
// with an empty schema accept anything. A schema that fails to compile is
// treated as absent; broken plug-in metadata must not block dispatch.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	raw := strings.TrimSpace(t.ParametersSchema())
	if raw == "" {
		return nil
	}

	sch, err := r.schemaFor(name, raw)
	if err != nil || sch == nil {
		return nil
	}

	// Round-trip through JSON so numbers and nested values take the forms
	// the validator expects.
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}

	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("parameters for tool '%s': %w", name, err)
	}
	return nil
}

func (r *Registry) schemaFor(name, raw string) (*jsonschema.Schema, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sch, ok := r.compiled[name]; ok {
		return sch, nil
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".schema.json"
	if err := compiler.AddResource(resource, strings.NewReader(raw)); err != nil {
		r.compiled[name] = nil
		return nil, err
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		r.compiled[name] = nil
		return nil, err
	}
	r.compiled[name] = sch
	return sch, nil
}
