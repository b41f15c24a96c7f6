package schema

import (
	"fmt"
	"sort"

	"github.com/icarus-mcp/icarus/internal/ids"
)

// FromJSONSchema is the inverse of (*Tool).ToJSONSchema: it rebuilds a Tool
// from the "inputSchema" JSON-Schema-subset fragment (plus the
// "x-icarus-params" extension key) a canister's list_tools() response
// carries for one tool.
//
// When the fragment carries no "x-icarus-params" extension (the canister
// was built with a toolchain that predates it), style is derived from the
// declared parameter list via InferStyle.
func FromJSONSchema(id ids.ToolId, name ids.ToolName, description string, inputSchema map[string]any) (*Tool, error) {
	properties, _ := inputSchema["properties"].(map[string]any)
	required := stringSet(inputSchema["required"])

	order, types, explicitStyle := extensionStyle(inputSchema)

	b := NewBuilder(id, name, description)

	if explicitStyle == "record" {
		// Record tools advertise their field set at the top level of the
		// schema; rebuild the single object-typed parameter from it. The
		// extension's order carries the parameter's internal name.
		field := "input"
		if len(order) > 0 {
			field = order[0]
		}
		rec := ToolParameter{Name: field, Type: TypeObject, Required: true}
		for _, subName := range sortedPropertyNames(properties) {
			subMap, ok := properties[subName].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("schema: property %q is not an object", subName)
			}
			sub, err := parseParam(subName, subMap, required[subName], "")
			if err != nil {
				return nil, err
			}
			rec.Properties = append(rec.Properties, sub)
			if required[subName] {
				rec.RequiredProps = append(rec.RequiredProps, subName)
			}
		}
		b.AddParam(rec)
		b.WithStyle(ParamStyle{Kind: StyleRecord, RecordField: field})
		applyCapabilities(b, inputSchema)
		return b.Build()
	}

	// Preserve declared order: if the extension named an order, follow it
	// (matching each name back to its property); otherwise property
	// iteration order is unspecified by encoding/json, so callers that
	// care about order should always supply an extension (toolgen always
	// does; see internal/toolgen).
	names := order
	if len(names) == 0 {
		for k := range properties {
			names = append(names, k)
		}
	}

	for i, propName := range names {
		raw, ok := properties[propName]
		if !ok {
			return nil, fmt.Errorf("schema: x-icarus-params order references undeclared property %q", propName)
		}
		propMap, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: property %q is not an object", propName)
		}
		wireType := ""
		if i < len(types) {
			wireType = types[i]
		}
		param, err := parseParam(propName, propMap, required[propName], wireType)
		if err != nil {
			return nil, err
		}
		b.AddParam(param)
	}

	if explicitStyle != "" {
		style, err := rebuildStyle(explicitStyle, order, types)
		if err != nil {
			return nil, err
		}
		b.WithStyle(style)
	}

	applyCapabilities(b, inputSchema)

	return b.Build()
}

func applyCapabilities(b *Builder, inputSchema map[string]any) {
	strs := stringSlice(inputSchema["x-icarus-capabilities"])
	if len(strs) == 0 {
		return
	}
	b.WithCapabilities(strs...)
}

func sortedPropertyNames(properties map[string]any) []string {
	out := make([]string, 0, len(properties))
	for k := range properties {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func extensionStyle(inputSchema map[string]any) (order, types []string, style string) {
	ext, ok := inputSchema["x-icarus-params"].(map[string]any)
	if !ok {
		return nil, nil, ""
	}
	if s, ok := ext["style"].(string); ok {
		style = s
	}
	order = stringSlice(ext["order"])
	types = stringSlice(ext["types"])
	return order, types, style
}

func rebuildStyle(style string, order, types []string) (ParamStyle, error) {
	switch style {
	case "empty":
		return ParamStyle{Kind: StyleEmpty}, nil
	case "positional":
		return ParamStyle{Kind: StylePositional, Order: order, Types: types}, nil
	default:
		return ParamStyle{}, fmt.Errorf("schema: unrecognized x-icarus-params style %q", style)
	}
}

func parseParam(name string, m map[string]any, required bool, wireType string) (ToolParameter, error) {
	typeName, _ := m["type"].(string)
	p := ToolParameter{
		Name:        name,
		Description: stringOr(m["description"], ""),
		Type:        ParamType(typeName),
		Required:    required,
		WireType:    wireType,
	}

	switch p.Type {
	case TypeString:
		p.MinLength = intPtr(m["minLength"])
		p.MaxLength = intPtr(m["maxLength"])
		if pat, ok := m["pattern"].(string); ok {
			p.Pattern = &pat
		}
		if wireType == "variant" {
			p.VariantTags = stringSlice(m["enum"])
		}
	case TypeInteger, TypeNumber:
		p.Minimum = floatPtr(m["minimum"])
		p.Maximum = floatPtr(m["maximum"])
	case TypeArray:
		if itemsRaw, ok := m["items"].(map[string]any); ok {
			item, err := parseParam(name+"[]", itemsRaw, true, "")
			if err != nil {
				return ToolParameter{}, err
			}
			p.Items = &item
		}
	case TypeObject:
		propsRaw, _ := m["properties"].(map[string]any)
		reqSet := stringSet(m["required"])
		for subName, subRaw := range propsRaw {
			subMap, ok := subRaw.(map[string]any)
			if !ok {
				return ToolParameter{}, fmt.Errorf("schema: nested property %q is not an object", subName)
			}
			sub, err := parseParam(subName, subMap, reqSet[subName], "")
			if err != nil {
				return ToolParameter{}, err
			}
			p.Properties = append(p.Properties, sub)
			if reqSet[subName] {
				p.RequiredProps = append(p.RequiredProps, subName)
			}
		}
	}

	return p, nil
}

func stringSet(raw any) map[string]bool {
	out := map[string]bool{}
	for _, s := range stringSlice(raw) {
		out[s] = true
	}
	return out
}

func stringSlice(raw any) []string {
	if ss, ok := raw.([]string); ok {
		return append([]string(nil), ss...)
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringOr(raw any, fallback string) string {
	if s, ok := raw.(string); ok {
		return s
	}
	return fallback
}

func intPtr(raw any) *int {
	if n, ok := raw.(int); ok {
		return &n
	}
	f, ok := raw.(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func floatPtr(raw any) *float64 {
	f, ok := raw.(float64)
	if !ok {
		return nil
	}
	return &f
}
