package toolgen

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_PositionalProducesValidGoSource(t *testing.T) {
	spec := FuncSpec{
		FuncName:     "add",
		ToolName:     "add",
		Description:  "adds two numbers",
		Params:       []Param{{Name: "a", GoType: "int64"}, {Name: "b", GoType: "int64"}},
		ResultGoType: "int64",
		ReturnsError: true,
	}
	out, err := Generate("sample", spec, nil)
	require.NoError(t, err)

	fset := token.NewFileSet()
	_, parseErr := parser.ParseFile(fset, "add_icarus.go", out, parser.AllErrors)
	require.NoError(t, parseErr, string(out))
	assert.True(t, strings.Contains(string(out), "tool.Register"))
	assert.True(t, strings.Contains(string(out), "schema.StylePositional"))
}

func TestGenerate_EmptyStyleForNoParams(t *testing.T) {
	spec := FuncSpec{FuncName: "ping", ToolName: "ping", Description: "pings"}
	out, err := Generate("sample", spec, nil)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(out), "schema.StyleEmpty"))
}

func TestGenerate_RecordStyleForStructParam(t *testing.T) {
	spec := FuncSpec{
		FuncName:     "createUser",
		ToolName:     "create_user",
		Description:  "creates a user",
		Params:       []Param{{Name: "req", GoType: "CreateUserRequest"}},
		ResultGoType: "string",
		ReturnsError: true,
	}
	structs := map[string][]StructField{
		"CreateUserRequest": {
			{Name: "Name", JSONName: "name", GoType: "string"},
			{Name: "Age", JSONName: "age", GoType: "uint64"},
		},
	}
	out, err := Generate("sample", spec, structs)
	require.NoError(t, err)
	fset := token.NewFileSet()
	_, parseErr := parser.ParseFile(fset, "create_user_icarus.go", out, parser.AllErrors)
	require.NoError(t, parseErr, string(out))
	assert.True(t, strings.Contains(string(out), "schema.StyleRecord"))
	assert.True(t, strings.Contains(string(out), `Name: "age"`))
	assert.True(t, strings.Contains(string(out), `WireType: "nat"`))
}

func TestGenerate_RecordStyleRequiresDeclaredStruct(t *testing.T) {
	spec := FuncSpec{
		FuncName: "createUser",
		ToolName: "create_user",
		Params:   []Param{{Name: "req", GoType: "Undeclared"}},
	}
	_, err := Generate("sample", spec, nil)
	require.Error(t, err)
}
