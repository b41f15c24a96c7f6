package toolgen

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"
)

// wireType maps a builtin Go type name to the declared wire-type name used
// in the "x-icarus-params" extension and to the JSON-Schema type it
// corresponds to. A type not in this table is treated as a struct/object
// type, which only a single-parameter Record-style tool may use.
func wireType(goType string) (wire, schemaType string, isScalar bool) {
	switch goType {
	case "int", "int8", "int16", "int32", "int64":
		return "int", "schema.TypeInteger", true
	case "uint", "uint8", "uint16", "uint32", "uint64":
		return "nat", "schema.TypeInteger", true
	case "float32", "float64":
		return "float", "schema.TypeNumber", true
	case "string":
		return "text", "schema.TypeString", true
	case "bool":
		return "bool", "schema.TypeBoolean", true
	default:
		return "", "schema.TypeObject", false
	}
}

type templateParam struct {
	Name       string
	JSONName   string
	GoType     string
	SchemaType string
	WireType   string
	Required   bool
}

type templateData struct {
	Package     string
	FuncName    string
	ToolName    string
	Description string
	Style       string // "empty", "positional", "record"
	Params      []templateParam
	Order       []string
	Types       []string
	RecordField string

	// RecordProps and RecordRequired describe the record parameter's
	// declared field set, read from the struct type's AST.
	RecordProps    []templateParam
	RecordRequired []string

	// ArgsType is the Go type of the local "args" variable the invoke
	// wrapper decodes JSON into: the generated *IcarusArgs struct for
	// Empty/Positional, or the parameter's own struct type for Record.
	ArgsType string
	// CallArgs are the Go expressions passed to FuncName, in order.
	CallArgs []string

	ReturnsError bool
	HasResult    bool
}

const fileTemplate = `// Code generated by icarusgen from a //icarus:tool directive. DO NOT EDIT.

package {{.Package}}

import (
	"encoding/json"

	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/schema"
	"github.com/icarus-mcp/icarus/internal/tool"
)

func {{.FuncName}}IcarusTool() *schema.Tool {
	id, err := ids.NewToolId("{{.ToolName}}")
	if err != nil {
		panic(err)
	}
	name, err := ids.NewToolName("{{.ToolName}}")
	if err != nil {
		panic(err)
	}
	b := schema.NewBuilder(id, name, {{printf "%q" .Description}})
{{if eq .Style "record"}}	b.AddParam(schema.ToolParameter{
		Name: {{printf "%q" .RecordField}}, Type: schema.TypeObject, Required: true,
		Properties: []schema.ToolParameter{
{{range .RecordProps}}			{Name: {{printf "%q" .JSONName}}, Type: {{.SchemaType}}, WireType: {{printf "%q" .WireType}}, Required: {{.Required}}},
{{end}}		},
		RequiredProps: []string{ {{range .RecordRequired}}{{printf "%q" .}}, {{end}} },
	})
{{else}}{{range .Params}}	b.AddParam(schema.ToolParameter{Name: {{printf "%q" .JSONName}}, Type: {{.SchemaType}}, WireType: {{printf "%q" .WireType}}, Required: {{.Required}}})
{{end}}{{end}}{{if eq .Style "positional"}}	b.WithStyle(schema.ParamStyle{Kind: schema.StylePositional, Order: []string{ {{range .Order}}{{printf "%q" .}}, {{end}} }, Types: []string{ {{range .Types}}{{printf "%q" .}}, {{end}} }})
{{else if eq .Style "record"}}	b.WithStyle(schema.ParamStyle{Kind: schema.StyleRecord, RecordField: {{printf "%q" .RecordField}}})
{{else}}	b.WithStyle(schema.ParamStyle{Kind: schema.StyleEmpty})
{{end}}	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

{{if ne .Style "record"}}type {{.FuncName}}IcarusArgs struct {
{{range .Params}}	{{.Name}} {{.GoType}} ` + "`json:\"{{.JSONName}}\"`" + `
{{end}}}
{{end}}
func {{.FuncName}}IcarusInvoke(raw json.RawMessage) (json.RawMessage, error) {
	var args {{.ArgsType}}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
	}
{{if .HasResult}}{{if .ReturnsError}}	result, err := {{.FuncName}}({{range $i, $a := .CallArgs}}{{if $i}}, {{end}}{{$a}}{{end}})
	if err != nil {
		return nil, err
	}
{{else}}	result := {{.FuncName}}({{range $i, $a := .CallArgs}}{{if $i}}, {{end}}{{$a}}{{end}})
{{end}}	return json.Marshal(result)
{{else}}{{if .ReturnsError}}	err := {{.FuncName}}({{range $i, $a := .CallArgs}}{{if $i}}, {{end}}{{$a}}{{end}})
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct{}{})
{{else}}	{{.FuncName}}({{range $i, $a := .CallArgs}}{{if $i}}, {{end}}{{$a}}{{end}})
	return json.Marshal(struct{}{})
{{end}}{{end}}}

func init() {
	tool.Register(tool.Spec{Build: {{.FuncName}}IcarusTool, Invoke: {{.FuncName}}IcarusInvoke})
}
`

var tmpl = template.Must(template.New("icarus_tool").Parse(fileTemplate))

// Generate renders the companion source for one annotated function. structs
// maps the package's struct type names to their field sets (CollectStructs),
// consulted when the function's sole parameter is a struct. The output is
// gofmt-ed before being returned; callers write it to "<file>_icarus.go"
// next to the original.
func Generate(pkg string, spec FuncSpec, structs map[string][]StructField) ([]byte, error) {
	data := templateData{
		Package:      pkg,
		FuncName:     spec.FuncName,
		ToolName:     spec.ToolName,
		Description:  spec.Description,
		ReturnsError: spec.ReturnsError,
		HasResult:    spec.ResultGoType != "",
	}

	if len(spec.Params) == 1 {
		_, _, scalar := wireType(spec.Params[0].GoType)
		if !scalar {
			p := spec.Params[0]
			typeName := strings.TrimPrefix(p.GoType, "*")
			fields, ok := structs[typeName]
			if !ok {
				return nil, fmt.Errorf("%s: record parameter type %s is not a struct declared in this package", spec.FuncName, typeName)
			}
			data.Style = "record"
			data.RecordField = p.Name
			if strings.HasPrefix(p.GoType, "*") {
				data.ArgsType = typeName
				data.CallArgs = []string{"&args"}
			} else {
				data.ArgsType = p.GoType
				data.CallArgs = []string{"args"}
			}
			for _, f := range fields {
				w, schemaType, scalar := wireType(strings.TrimPrefix(f.GoType, "*"))
				if !scalar {
					return nil, fmt.Errorf("%s: record field %s has non-scalar type %s; nested objects are not supported", spec.FuncName, f.Name, f.GoType)
				}
				data.RecordProps = append(data.RecordProps, templateParam{
					Name:       f.Name,
					JSONName:   f.JSONName,
					GoType:     f.GoType,
					SchemaType: schemaType,
					WireType:   w,
					Required:   !f.Optional,
				})
				if !f.Optional {
					data.RecordRequired = append(data.RecordRequired, f.JSONName)
				}
			}
			return renderAndFormat(data)
		}
	}

	for _, p := range spec.Params {
		wire, schemaType, scalar := wireType(p.GoType)
		if !scalar {
			return nil, fmt.Errorf("%s: non-scalar parameter %q only supported as the sole Record-style parameter", spec.FuncName, p.Name)
		}
		fieldName := exportedFieldName(p.Name)
		data.Params = append(data.Params, templateParam{
			Name:       fieldName,
			JSONName:   p.Name,
			GoType:     p.GoType,
			SchemaType: schemaType,
			WireType:   wire,
			Required:   true,
		})
		data.Order = append(data.Order, p.Name)
		data.Types = append(data.Types, wire)
		data.CallArgs = append(data.CallArgs, "args."+fieldName)
	}

	data.ArgsType = data.FuncName + "IcarusArgs"
	if len(data.Params) == 0 {
		data.Style = "empty"
	} else {
		data.Style = "positional"
	}

	return renderAndFormat(data)
}

func renderAndFormat(data templateData) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering template: %w", err)
	}
	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("gofmt generated source: %w\n%s", err, buf.String())
	}
	return formatted, nil
}

// exportedFieldName turns a lowerCamel parameter name into an exported Go
// struct field name (json tag carries the original JSON key).
func exportedFieldName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
