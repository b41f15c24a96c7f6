package schema

import (
	"testing"

	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTool(t *testing.T, b *Builder) *Tool {
	t.Helper()
	tool, err := b.Build()
	require.NoError(t, err)
	return tool
}

func TestInferStyle_Empty(t *testing.T) {
	assert.Equal(t, StyleEmpty, InferStyle(nil).Kind)
}

func TestInferStyle_Record(t *testing.T) {
	params := []ToolParameter{{Name: "user", Type: TypeObject}}
	style := InferStyle(params)
	assert.Equal(t, StyleRecord, style.Kind)
	assert.Equal(t, "user", style.RecordField)
}

func TestInferStyle_Positional(t *testing.T) {
	params := []ToolParameter{{Name: "a", Type: TypeInteger, WireType: "int"}, {Name: "b", Type: TypeInteger, WireType: "int"}}
	style := InferStyle(params)
	assert.Equal(t, StylePositional, style.Kind)
	assert.Equal(t, []string{"a", "b"}, style.Order)
}

func TestBuilder_PositionalHappyPath(t *testing.T) {
	id, _ := ids.NewToolId("add")
	name, _ := ids.NewToolName("add")
	b := NewBuilder(id, name, "adds two numbers").
		AddParam(ToolParameter{Name: "a", Type: TypeInteger, WireType: "int", Required: true}).
		AddParam(ToolParameter{Name: "b", Type: TypeInteger, WireType: "int", Required: true})
	tool := mustTool(t, b)
	assert.Equal(t, StylePositional, tool.Style.Kind)
	assert.Equal(t, []string{"a", "b"}, tool.Style.Order)
}

func TestBuilder_PositionalOrderMismatchRejected(t *testing.T) {
	id, _ := ids.NewToolId("add")
	name, _ := ids.NewToolName("add")
	b := NewBuilder(id, name, "adds").
		AddParam(ToolParameter{Name: "a", Type: TypeInteger}).
		WithStyle(ParamStyle{Kind: StylePositional, Order: []string{"a", "b"}})
	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilder_RecordRequiresExactlyOneObjectParam(t *testing.T) {
	id, _ := ids.NewToolId("create_user")
	name, _ := ids.NewToolName("create_user")
	b := NewBuilder(id, name, "creates a user").
		AddParam(ToolParameter{Name: "name", Type: TypeString}).
		WithStyle(ParamStyle{Kind: StyleRecord, RecordField: "name"})
	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilder_Idempotent(t *testing.T) {
	id, _ := ids.NewToolId("greet")
	name, _ := ids.NewToolName("greet")
	build := func() *Tool {
		b := NewBuilder(id, name, "says hello").
			AddParam(ToolParameter{Name: "name", Type: TypeString, Required: true})
		return mustTool(t, b)
	}
	a := build()
	c := build()
	assert.Equal(t, a.ToJSONSchema(), c.ToJSONSchema())
}

func TestToJSONSchema_IncludesExtensionKey(t *testing.T) {
	id, _ := ids.NewToolId("add")
	name, _ := ids.NewToolName("add")
	b := NewBuilder(id, name, "adds").
		AddParam(ToolParameter{Name: "a", Type: TypeInteger, WireType: "int", Required: true}).
		AddParam(ToolParameter{Name: "b", Type: TypeInteger, WireType: "int", Required: true})
	tool := mustTool(t, b)
	frag := tool.ToJSONSchema()
	ext, ok := frag["x-icarus-params"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "positional", ext["style"])
	assert.Equal(t, []string{"a", "b"}, ext["order"])
}

func TestValidateArgs_EnforcesCompiledConstraints(t *testing.T) {
	minLen := 3
	id, _ := ids.NewToolId("tagged")
	name, _ := ids.NewToolName("tagged")
	b := NewBuilder(id, name, "tags a value").
		AddParam(ToolParameter{Name: "tag", Type: TypeString, WireType: "text", Required: true, MinLength: &minLen})
	tool := mustTool(t, b)

	require.NoError(t, tool.ValidateArgs(map[string]any{"tag": "abcd"}))
	require.Error(t, tool.ValidateArgs(map[string]any{"tag": "ab"}))
	require.Error(t, tool.ValidateArgs(map[string]any{}))
	require.Error(t, tool.ValidateArgs(map[string]any{"tag": float64(7)}))
}

func TestBuild_ToleratesPatternOutsideGoDialect(t *testing.T) {
	pat := `^(\d{4})-\1$` // backreference, not expressible in RE2
	id, _ := ids.NewToolId("dated")
	name, _ := ids.NewToolName("dated")
	b := NewBuilder(id, name, "matches repeated years").
		AddParam(ToolParameter{Name: "d", Type: TypeString, WireType: "text", Required: true, Pattern: &pat})
	tool := mustTool(t, b)
	// The compiled schema skips the foreign pattern; the mapper's own
	// matcher still enforces it at conversion time.
	require.NoError(t, tool.ValidateArgs(map[string]any{"d": "anything"}))
}

func TestParamList_SmallBufferAndOverflow(t *testing.T) {
	var l ParamList
	for i := 0; i < 10; i++ {
		l.Append(ToolParameter{Name: string(rune('a' + i))})
	}
	assert.Equal(t, 10, l.Len())
	assert.Equal(t, "a", l.Get(0).Name)
	assert.Equal(t, "j", l.Get(9).Name)
}
