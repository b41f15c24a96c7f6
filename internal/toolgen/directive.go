// Package toolgen implements the tool registration source transformation:
// parsing `//icarus:tool` directive comments with go/ast (never runtime
// reflection) and emitting companion files that register each annotated
// function as an MCP tool.
package toolgen

import (
	"fmt"
	"go/ast"
	"go/token"
	"reflect"
	"strconv"
	"strings"
)

// Param describes one parameter of an annotated function, as read from the
// function's AST parameter list.
type Param struct {
	Name   string
	GoType string // e.g. "int64", "string", "float64", "bool", a struct name
}

// FuncSpec is one annotated function discovered in a package.
type FuncSpec struct {
	FuncName    string
	ToolName    string
	Description string
	Params      []Param
	// ResultGoType is the success-branch Go type name; empty if the
	// function returns only an error.
	ResultGoType string
	// ReturnsError is true if the function's last return value is `error`.
	ReturnsError bool
}

// StructField describes one exported field of a struct type used as a
// record-style tool parameter, as read from the type declaration's AST.
type StructField struct {
	Name     string // Go field name
	JSONName string // json tag name, or the field name with its first letter lower-cased
	GoType   string
	Optional bool // pointer type or ",omitempty" json tag
}

// directivePrefix is the comment directive this package recognizes.
const directivePrefix = "//icarus:tool"

// ParseFile walks every top-level function declaration in file looking for
// a `//icarus:tool` directive in its doc comment, and returns one FuncSpec
// per annotated function. Functions without the directive are ignored, and
// annotated functions are never rewritten: toolgen only emits new companion
// declarations alongside them, so the original body stays directly callable
// with its native signature.
func ParseFile(fset *token.FileSet, file *ast.File) ([]FuncSpec, error) {
	var specs []FuncSpec
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Doc == nil {
			continue
		}
		directive, ok := findDirective(fn.Doc)
		if !ok {
			continue
		}
		spec, err := buildSpec(fn, directive)
		if err != nil {
			return nil, fmt.Errorf("icarus:tool on %s: %w", fn.Name.Name, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func findDirective(doc *ast.CommentGroup) (string, bool) {
	for _, c := range doc.List {
		if strings.HasPrefix(c.Text, directivePrefix) {
			return strings.TrimSpace(strings.TrimPrefix(c.Text, directivePrefix)), true
		}
	}
	return "", false
}

// buildSpec enforces the annotation constraints: no bound
// receiver, no generic/type parameters, and extracts the function's
// declared parameter names/types directly from the AST.
func buildSpec(fn *ast.FuncDecl, directive string) (FuncSpec, error) {
	if fn.Recv != nil {
		return FuncSpec{}, fmt.Errorf("tool functions must not take a bound receiver (no methods)")
	}
	if fn.Type.TypeParams != nil && len(fn.Type.TypeParams.List) > 0 {
		return FuncSpec{}, fmt.Errorf("tool functions must not declare generic type parameters")
	}

	attrs, err := parseAttributes(directive)
	if err != nil {
		return FuncSpec{}, err
	}
	name := attrs["name"]
	if name == "" {
		name = fn.Name.Name
	}

	spec := FuncSpec{
		FuncName:    fn.Name.Name,
		ToolName:    name,
		Description: attrs["description"],
	}

	for _, field := range fn.Type.Params.List {
		goType, err := exprTypeName(field.Type)
		if err != nil {
			return FuncSpec{}, err
		}
		if len(field.Names) == 0 {
			spec.Params = append(spec.Params, Param{Name: fmt.Sprintf("arg%d", len(spec.Params)), GoType: goType})
			continue
		}
		for _, n := range field.Names {
			spec.Params = append(spec.Params, Param{Name: n.Name, GoType: goType})
		}
	}

	if fn.Type.Results != nil {
		results := fn.Type.Results.List
		n := len(results)
		if n > 0 {
			last := results[n-1]
			typeName, err := exprTypeName(last.Type)
			if err != nil {
				return FuncSpec{}, err
			}
			if typeName == "error" {
				spec.ReturnsError = true
				if n > 1 {
					valType, err := exprTypeName(results[0].Type)
					if err != nil {
						return FuncSpec{}, err
					}
					spec.ResultGoType = valType
				}
			} else {
				spec.ResultGoType = typeName
			}
		}
	}

	return spec, nil
}

// exprTypeName renders a parameter/result type expression as source text,
// supporting the builtin scalar types, slices and plain identifiers
// (struct names) the parameter mapper understands; anything else is
// rejected since parameter and result types must be serializable.
func exprTypeName(expr ast.Expr) (string, error) {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name, nil
	case *ast.ArrayType:
		elem, err := exprTypeName(t.Elt)
		if err != nil {
			return "", err
		}
		return "[]" + elem, nil
	case *ast.StarExpr:
		inner, err := exprTypeName(t.X)
		if err != nil {
			return "", err
		}
		return "*" + inner, nil
	case *ast.SelectorExpr:
		pkgIdent, ok := t.X.(*ast.Ident)
		if !ok {
			return "", fmt.Errorf("unsupported qualified type")
		}
		return pkgIdent.Name + "." + t.Sel.Name, nil
	default:
		return "", fmt.Errorf("unsupported parameter/result type expression")
	}
}

// CollectStructs gathers the exported fields of every struct type declared
// in file, keyed by type name. A tool function whose sole parameter is a
// struct needs this so its generated metadata can declare the record's
// field set rather than an opaque object.
func CollectStructs(file *ast.File) (map[string][]StructField, error) {
	out := map[string][]StructField{}
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, s := range gd.Specs {
			ts, ok := s.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			fields, err := structFields(st)
			if err != nil {
				return nil, fmt.Errorf("type %s: %w", ts.Name.Name, err)
			}
			out[ts.Name.Name] = fields
		}
	}
	return out, nil
}

func structFields(st *ast.StructType) ([]StructField, error) {
	var out []StructField
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			return nil, fmt.Errorf("embedded fields are not supported in record parameters")
		}
		goType, err := exprTypeName(field.Type)
		if err != nil {
			return nil, err
		}
		optional := strings.HasPrefix(goType, "*")
		for _, n := range field.Names {
			if !n.IsExported() {
				continue
			}
			jsonName, omitempty := jsonTagName(field)
			if jsonName == "-" {
				continue
			}
			if jsonName == "" {
				jsonName = strings.ToLower(n.Name[:1]) + n.Name[1:]
			}
			out = append(out, StructField{
				Name:     n.Name,
				JSONName: jsonName,
				GoType:   goType,
				Optional: optional || omitempty,
			})
		}
	}
	return out, nil
}

func jsonTagName(field *ast.Field) (name string, omitempty bool) {
	if field.Tag == nil {
		return "", false
	}
	raw, err := strconv.Unquote(field.Tag.Value)
	if err != nil {
		return "", false
	}
	tag := reflect.StructTag(raw).Get("json")
	if tag == "" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return parts[0], omitempty
}

// parseAttributes parses `name="add" description="adds two numbers"` into
// a map. It is a minimal key="value" scanner, not a
// general expression parser, since the directive grammar is intentionally
// small.
func parseAttributes(s string) (map[string]string, error) {
	out := map[string]string{}
	i := 0
	for i < len(s) {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && s[i] != '=' {
			i++
		}
		if i >= len(s) {
			return nil, fmt.Errorf("malformed directive: expected '=' after %q", s[start:])
		}
		key := strings.TrimSpace(s[start:i])
		i++ // skip '='
		if i >= len(s) || s[i] != '"' {
			return nil, fmt.Errorf("malformed directive: expected quoted value for %q", key)
		}
		i++
		valStart := i
		for i < len(s) && s[i] != '"' {
			i++
		}
		if i >= len(s) {
			return nil, fmt.Errorf("malformed directive: unterminated string for %q", key)
		}
		value, err := strconv.Unquote(`"` + s[valStart:i] + `"`)
		if err != nil {
			value = s[valStart:i]
		}
		out[key] = value
		i++ // skip closing quote
	}
	return out, nil
}
