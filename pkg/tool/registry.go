package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Registry holds tool definitions and their compiled input schemas.
// Registration happens once at startup; lookups are concurrent.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	mu      sync.RWMutex
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool definition, compiling its input schema. Tool names
// are unique; re-registering a name is an error.
func (r *Registry) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s has no handler", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	if def.InputSchema != nil {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema))
		if err != nil {
			return fmt.Errorf("invalid input schema for tool %s: %w", def.Name, err)
		}
		r.schemas[def.Name] = schema
	}

	r.tools[def.Name] = &def

	log.Debug().Str("tool", def.Name).Str("risk", string(def.Risk)).Msg("Tool registered")
	return nil
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// List returns all registered definitions in no particular order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, *def)
	}
	return defs
}

// Execute validates rawArgs against the tool's schema and runs its handler
// with the execution context attached. Output longer than the context's
// MaxToolOutputChars is truncated with a marker.
func (r *Registry) Execute(ctx context.Context, name, rawArgs string, tc *Context) (string, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	if strings.TrimSpace(rawArgs) == "" {
		rawArgs = "{}"
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("tool %s: arguments are not valid JSON: %w", name, err)
	}

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(args))
		if err != nil {
			return "", fmt.Errorf("tool %s: schema validation failed: %w", name, err)
		}
		if !result.Valid() {
			var reasons []string
			for _, desc := range result.Errors() {
				reasons = append(reasons, desc.String())
			}
			return "", fmt.Errorf("tool %s: invalid arguments: %s", name, strings.Join(reasons, "; "))
		}
	}

	out, err := def.Handler(ContextWith(ctx, tc), args)
	if err != nil {
		return "", err
	}

	if tc != nil && tc.MaxToolOutputChars > 0 && len(out) > tc.MaxToolOutputChars {
		out = out[:tc.MaxToolOutputChars] + "\n[output truncated]"
	}
	return out, nil
}
