package schema

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/icarus-mcp/icarus/internal/ids"
)

// Builder assembles a Tool, enforcing the Tool invariants at Build
// time. Builders are idempotent: calling Build twice on the same Builder
// state (no further mutation in between) yields structurally identical
// Tools, since construction is deterministic given the same inputs.
type Builder struct {
	id           ids.ToolId
	name         ids.ToolName
	description  string
	params       ParamList
	style        *ParamStyle
	capabilities []string
}

// NewBuilder starts building a Tool with the given identity.
func NewBuilder(id ids.ToolId, name ids.ToolName, description string) *Builder {
	return &Builder{id: id, name: name, description: description}
}

// AddParam appends one parameter to the tool's declared list.
func (b *Builder) AddParam(p ToolParameter) *Builder {
	b.params.Append(p)
	return b
}

// WithStyle sets the explicit ParamStyle hint. If never called, Build
// infers a style from the declared parameter list.
func (b *Builder) WithStyle(style ParamStyle) *Builder {
	b.style = &style
	return b
}

// WithCapabilities attaches opaque capability tags surfaced in tools/list.
func (b *Builder) WithCapabilities(caps ...string) *Builder {
	b.capabilities = append([]string(nil), caps...)
	return b
}

// Build finalizes the Tool, enforcing invariants and falling back to style
// inference when no explicit style was set.
func (b *Builder) Build() (*Tool, error) {
	style := b.style
	if style == nil {
		inferred := InferStyle(b.params.Slice())
		style = &inferred
	}

	if err := validateStyle(*style, b.params.Slice()); err != nil {
		return nil, err
	}

	t := &Tool{
		Id:           b.id,
		Name:         b.name,
		Description:  b.description,
		Params:       b.params,
		Style:        *style,
		Capabilities: b.capabilities,
	}

	compiled, err := compileInputSchema(t.ToJSONSchema())
	if err != nil {
		return nil, &ValidationError{Rule: fmt.Sprintf("schema fragment is not valid JSON Schema: %v", err)}
	}
	t.compiled = compiled

	return t, nil
}

// InferStyle derives a style from the declared parameter list: arity 0 ->
// Empty; arity 1 with an object-typed parameter -> Record; otherwise ->
// Positional in declared order.
func InferStyle(params []ToolParameter) ParamStyle {
	switch {
	case len(params) == 0:
		return ParamStyle{Kind: StyleEmpty}
	case len(params) == 1 && params[0].Type == TypeObject:
		return ParamStyle{Kind: StyleRecord, RecordField: params[0].Name}
	default:
		order := make([]string, len(params))
		types := make([]string, len(params))
		for i, p := range params {
			order[i] = p.Name
			types[i] = p.WireType
		}
		return ParamStyle{Kind: StylePositional, Order: order, Types: types}
	}
}

func validateStyle(style ParamStyle, params []ToolParameter) error {
	switch style.Kind {
	case StyleEmpty:
		return nil
	case StylePositional:
		if len(style.Order) != len(params) {
			return &ValidationError{Rule: fmt.Sprintf("positional order has %d names, expected %d parameters", len(style.Order), len(params))}
		}
		seen := make(map[string]int, len(style.Order))
		for _, name := range style.Order {
			seen[name]++
		}
		for name, count := range seen {
			if count != 1 {
				return &ValidationError{Rule: fmt.Sprintf("positional order names %q %d times, must appear exactly once", name, count)}
			}
		}
		for _, name := range style.Order {
			found := false
			for _, p := range params {
				if p.Name == name {
					found = true
					break
				}
			}
			if !found {
				return &ValidationError{Rule: fmt.Sprintf("positional order references undeclared parameter %q", name)}
			}
		}
		return nil
	case StyleRecord:
		objectCount := 0
		var recordName string
		for _, p := range params {
			if p.Type == TypeObject {
				objectCount++
				recordName = p.Name
			}
		}
		if objectCount != 1 {
			return &ValidationError{Rule: fmt.Sprintf("record style requires exactly one object-typed parameter, found %d", objectCount)}
		}
		if style.RecordField != "" && style.RecordField != recordName {
			return &ValidationError{Rule: fmt.Sprintf("record style field %q does not match the declared object parameter %q", style.RecordField, recordName)}
		}
		return nil
	default:
		return &ValidationError{Rule: "unknown param style"}
	}
}

// compileInputSchema compiles the rendered inputSchema fragment so Build
// rejects malformed schemas immediately and the mapper can validate each
// call's arguments against the compiled form. Pattern keywords outside Go's
// regexp dialect are stripped before compiling; the mapper enforces those
// with its own matcher, which accepts the broader syntax.
func compileInputSchema(frag map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(frag)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	stripForeignPatterns(doc)

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, err
	}
	return c.Compile("tool.json")
}

func stripForeignPatterns(doc any) {
	switch x := doc.(type) {
	case map[string]any:
		if pat, ok := x["pattern"].(string); ok {
			if _, err := regexp.Compile(pat); err != nil {
				delete(x, "pattern")
			}
		}
		for _, v := range x {
			stripForeignPatterns(v)
		}
	case []any:
		for _, v := range x {
			stripForeignPatterns(v)
		}
	}
}
