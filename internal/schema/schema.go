// Package schema holds the in-memory description of an MCP tool: its
// identity, parameter list and JSON-Schema-subset constraints, and the
// argument-passing style (Empty, Positional or Record) the parameter
// mapper uses to translate JSON into a canister call.
package schema

import (
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/icarus-mcp/icarus/internal/ids"
)

// ParamType enumerates the JSON-Schema subset the mapper understands.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeArray   ParamType = "array"
	TypeObject  ParamType = "object"
	TypeNull    ParamType = "null"
)

// ToolParameter describes one named argument: its JSON key, human
// description, declared type and optional constraints.
type ToolParameter struct {
	Name        string
	Description string
	Type        ParamType
	Required    bool

	// WireType names the declared wire type for Positional style (e.g.
	// "int", "nat", "text"); empty when not applicable.
	WireType string

	MinLength *int
	MaxLength *int
	Pattern   *string

	Minimum *float64
	Maximum *float64

	// VariantTags lists the tags accepted for a WireType "variant"
	// parameter. Unused for any other WireType.
	VariantTags []string

	// Items describes the element schema for TypeArray.
	Items *ToolParameter

	// Properties and RequiredProps describe TypeObject's named fields.
	Properties    []ToolParameter
	RequiredProps []string
}

// StyleKind tags a ParamStyle variant.
type StyleKind int

const (
	StyleEmpty StyleKind = iota
	StylePositional
	StyleRecord
)

// ParamStyle is the argument-passing shape hint for a tool.
type ParamStyle struct {
	Kind StyleKind

	// Order and Types apply to StylePositional.
	Order []string
	Types []string

	// RecordField names the sole object-typed parameter for StyleRecord.
	RecordField string
}

// Tool is the immutable, builder-produced description of one MCP tool.
type Tool struct {
	Id          ids.ToolId
	Name        ids.ToolName
	Description string
	Params      ParamList
	Style       ParamStyle

	// Capabilities optionally declares out-of-scope canister-side SDK
	// features this tool touches (e.g. "storage", "timers"). Never
	// interpreted by the bridge; surfaced verbatim in tools/list.
	Capabilities []string

	// compiled is the tool's inputSchema compiled at Build time, used to
	// validate each call's arguments before wire conversion.
	compiled *jsonschema.Schema
}

// ValidateArgs checks a decoded JSON arguments object against the tool's
// compiled input schema. The mapper runs this before any wire conversion;
// wire-specific rules the schema cannot express (nat sign, variant tags,
// patterns outside the compiled dialect) stay with the mapper.
func (t *Tool) ValidateArgs(args map[string]any) error {
	if t.compiled == nil {
		return nil
	}
	return t.compiled.Validate(args)
}

// ToJSONSchema renders the tool's parameter list as a JSON Schema object
// fragment suitable for the MCP "inputSchema" field, including the
// "x-icarus-params" extension key.
func (t *Tool) ToJSONSchema() map[string]any {
	properties := make(map[string]any, t.Params.Len())
	var required []string
	if t.Style.Kind == StyleRecord {
		// Callers pass the record's fields directly as the arguments
		// object, so the advertised schema lists those fields at top
		// level rather than a single wrapper property.
		if rec, ok := t.Params.ByName(t.Style.RecordField); ok {
			for _, sub := range rec.Properties {
				properties[sub.Name] = paramToJSONSchema(sub)
			}
			required = append([]string(nil), rec.RequiredProps...)
		}
	} else {
		for _, p := range t.Params.Slice() {
			properties[p.Name] = paramToJSONSchema(p)
			if p.Required {
				required = append(required, p.Name)
			}
		}
	}
	sort.Strings(required)

	out := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}

	ext := map[string]any{"style": styleName(t.Style.Kind)}
	switch t.Style.Kind {
	case StylePositional:
		ext["order"] = append([]string(nil), t.Style.Order...)
		ext["types"] = append([]string(nil), t.Style.Types...)
	case StyleRecord:
		ext["order"] = []string{t.Style.RecordField}
	}
	out["x-icarus-params"] = ext

	if len(t.Capabilities) > 0 {
		out["x-icarus-capabilities"] = append([]string(nil), t.Capabilities...)
	}
	return out
}

func styleName(k StyleKind) string {
	switch k {
	case StyleEmpty:
		return "empty"
	case StylePositional:
		return "positional"
	case StyleRecord:
		return "record"
	default:
		return "unknown"
	}
}

func paramToJSONSchema(p ToolParameter) map[string]any {
	m := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		m["description"] = p.Description
	}
	switch p.Type {
	case TypeString:
		if p.MinLength != nil {
			m["minLength"] = *p.MinLength
		}
		if p.MaxLength != nil {
			m["maxLength"] = *p.MaxLength
		}
		if p.Pattern != nil {
			m["pattern"] = *p.Pattern
		}
		if len(p.VariantTags) > 0 {
			m["enum"] = append([]string(nil), p.VariantTags...)
		}
	case TypeInteger, TypeNumber:
		if p.Minimum != nil {
			m["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			m["maximum"] = *p.Maximum
		}
	case TypeArray:
		if p.Items != nil {
			m["items"] = paramToJSONSchema(*p.Items)
		}
	case TypeObject:
		props := make(map[string]any, len(p.Properties))
		for _, sub := range p.Properties {
			props[sub.Name] = paramToJSONSchema(sub)
		}
		m["properties"] = props
		if len(p.RequiredProps) > 0 {
			req := append([]string(nil), p.RequiredProps...)
			sort.Strings(req)
			m["required"] = req
		}
	}
	return m
}

// ValidationError names which builder invariant was violated.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool schema: %s", e.Rule)
}
