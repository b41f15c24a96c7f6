// Package tool implements the canister-side tool registry: a process-wide
// slice that annotated tool functions self-register into via init(), plus
// the list_tools/invoke surface a canister exposes to the bridge.
package tool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/icarus-mcp/icarus/internal/schema"
)

// Spec is what a generated `<file>_icarus.go` companion registers for one
// annotated function: a metadata constructor and a JSON-driven invocation
// wrapper.
type Spec struct {
	// Build constructs this tool's schema.Tool. Called lazily so that
	// construction order across init() calls never matters.
	Build func() *schema.Tool

	// Invoke deserializes raw JSON arguments, calls the original function
	// and serializes its result (or error) back to JSON. The dispatcher
	// already runs each invocation on its own goroutine, so synchronous and
	// long-running tool functions are served uniformly.
	Invoke func(raw json.RawMessage) (json.RawMessage, error)
}

var (
	mu       sync.Mutex
	registry []Spec
)

// Register appends spec to the process-wide registry. Called from a
// generated file's init(), so adding a tool requires no edit to any
// central manifest, only a new annotated function plus its generated
// companion file.
func Register(spec Spec) {
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, spec)
}

// Reset clears the registry. Exists only for test isolation between
// package-level test files that register fixture tools.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
}

// Catalog returns a snapshot of all registered Specs in insertion order.
// Iterating it twice yields identical sequences; the
// slice returned is a copy so callers cannot mutate the live registry.
func Catalog() []Spec {
	mu.Lock()
	defer mu.Unlock()
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// toolDescriptor is the wire shape of one entry in the list_tools() JSON
// blob the bridge's canister client parses at startup.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListToolsJSON builds every registered tool's schema.Tool, enforces the
// case-sensitive name uniqueness invariant, and serializes the
// result as the JSON blob the canister's query `list_tools()` endpoint
// returns.
func ListToolsJSON() (json.RawMessage, error) {
	specs := Catalog()
	seen := make(map[string]struct{}, len(specs))
	descriptors := make([]toolDescriptor, 0, len(specs))
	for _, spec := range specs {
		built := spec.Build()
		name := built.Name.String()
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("tool registry: duplicate tool name %q", name)
		}
		seen[name] = struct{}{}
		descriptors = append(descriptors, toolDescriptor{
			Name:        name,
			Description: built.Description,
			InputSchema: built.ToJSONSchema(),
		})
	}
	return json.Marshal(struct {
		Tools []toolDescriptor `json:"tools"`
	}{Tools: descriptors})
}

// Invoke dispatches a JSON tool-call to the registered Spec whose built
// Tool's name matches: one dispatcher standing in for per-tool canister
// entry points, since Go has no per-symbol export mechanism to generate
// against.
func Invoke(name string, raw json.RawMessage) (json.RawMessage, error) {
	for _, spec := range Catalog() {
		built := spec.Build()
		if built.Name.String() == name {
			return spec.Invoke(raw)
		}
	}
	return nil, fmt.Errorf("tool registry: unknown tool %q", name)
}
