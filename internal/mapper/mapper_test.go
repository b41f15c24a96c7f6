package mapper

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/schema"
	"github.com/icarus-mcp/icarus/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTool(t *testing.T) *schema.Tool {
	t.Helper()
	id, _ := ids.NewToolId("add")
	name, _ := ids.NewToolName("add")
	b := schema.NewBuilder(id, name, "adds two numbers").
		AddParam(schema.ToolParameter{Name: "a", Type: schema.TypeInteger, WireType: "int", Required: true}).
		AddParam(schema.ToolParameter{Name: "b", Type: schema.TypeInteger, WireType: "int", Required: true})
	tool, err := b.Build()
	require.NoError(t, err)
	return tool
}

func greetTool(t *testing.T) *schema.Tool {
	t.Helper()
	id, _ := ids.NewToolId("greet")
	name, _ := ids.NewToolName("greet")
	b := schema.NewBuilder(id, name, "says hello").
		AddParam(schema.ToolParameter{Name: "name", Type: schema.TypeString, WireType: "text", Required: true})
	tool, err := b.Build()
	require.NoError(t, err)
	return tool
}

func createUserTool(t *testing.T) *schema.Tool {
	t.Helper()
	id, _ := ids.NewToolId("create_user")
	name, _ := ids.NewToolName("create_user")
	b := schema.NewBuilder(id, name, "creates a user").
		AddParam(schema.ToolParameter{
			Name: "user", Type: schema.TypeObject, Required: true,
			Properties: []schema.ToolParameter{
				{Name: "name", Type: schema.TypeString, WireType: "text", Required: true},
				{Name: "age", Type: schema.TypeInteger, WireType: "nat", Required: true},
			},
			RequiredProps: []string{"name", "age"},
		})
	tool, err := b.Build()
	require.NoError(t, err)
	return tool
}

func TestToCallArg_PositionalHappyPath(t *testing.T) {
	v, err := ToCallArg(addTool(t), json.RawMessage(`{"a":2,"b":3}`))
	require.NoError(t, err)
	items, ok := v.AsVec()
	require.True(t, ok)
	require.Len(t, items, 2)
	a, _ := items[0].AsInt()
	b, _ := items[1].AsInt()
	assert.Equal(t, int64(2), a)
	assert.Equal(t, int64(3), b)
}

func TestToCallArg_PositionalWrongType(t *testing.T) {
	_, err := ToCallArg(addTool(t), json.RawMessage(`{"a":"two","b":3}`))
	require.Error(t, err)
	ierr, ok := icaruserr.As(err)
	require.True(t, ok)
	assert.Equal(t, icaruserr.TagValidationSchema, ierr.Tag)
}

func TestToCallArg_PositionalMissingRequired(t *testing.T) {
	_, err := ToCallArg(addTool(t), json.RawMessage(`{"a":2}`))
	require.Error(t, err)
	ierr, ok := icaruserr.As(err)
	require.True(t, ok)
	assert.Equal(t, icaruserr.TagValidationSchema, ierr.Tag)
}

func TestToCallArg_PositionalExtraField(t *testing.T) {
	_, err := ToCallArg(addTool(t), json.RawMessage(`{"a":2,"b":3,"c":1}`))
	require.Error(t, err)
}

func TestToCallArg_EmptyStyleRejectsAnyKey(t *testing.T) {
	id, _ := ids.NewToolId("ping")
	name, _ := ids.NewToolName("ping")
	b := schema.NewBuilder(id, name, "pings")
	tool, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, schema.StyleEmpty, tool.Style.Kind)

	_, err = ToCallArg(tool, json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = ToCallArg(tool, json.RawMessage(`{"x":1}`))
	require.Error(t, err)
}

func TestToCallArg_RecordHappyPath(t *testing.T) {
	v, err := ToCallArg(createUserTool(t), json.RawMessage(`{"name":"Ada","age":36}`))
	require.NoError(t, err)
	name, ok := v.RecordGet("name")
	require.True(t, ok)
	s, _ := name.AsText()
	assert.Equal(t, "Ada", s)
	age, ok := v.RecordGet("age")
	require.True(t, ok)
	n, _ := age.AsNat()
	assert.Equal(t, uint64(36), n)
}

func TestToCallArg_RecordUnknownField(t *testing.T) {
	_, err := ToCallArg(createUserTool(t), json.RawMessage(`{"name":"Ada","age":36,"extra":true}`))
	require.Error(t, err)
}

func TestToCallArg_NatRejectsNegative(t *testing.T) {
	_, err := ToCallArg(createUserTool(t), json.RawMessage(`{"name":"Ada","age":-1}`))
	require.Error(t, err)
	ierr, ok := icaruserr.As(err)
	require.True(t, ok)
	assert.Equal(t, icaruserr.TagValidationRange, ierr.Tag)
}

func TestToCallArg_StringConstraints(t *testing.T) {
	minLen := 2
	maxLen := 5
	pattern := "^[a-z]+$"
	id, _ := ids.NewToolId("tagged")
	name, _ := ids.NewToolName("tagged")
	b := schema.NewBuilder(id, name, "tags a value").
		AddParam(schema.ToolParameter{Name: "tag", Type: schema.TypeString, WireType: "text", Required: true, MinLength: &minLen, MaxLength: &maxLen, Pattern: &pattern})
	tool, err := b.Build()
	require.NoError(t, err)

	_, err = ToCallArg(tool, json.RawMessage(`{"tag":"ok"}`))
	require.NoError(t, err)

	_, err = ToCallArg(tool, json.RawMessage(`{"tag":"a"}`))
	require.Error(t, err)

	_, err = ToCallArg(tool, json.RawMessage(`{"tag":"toolongvalue"}`))
	require.Error(t, err)

	_, err = ToCallArg(tool, json.RawMessage(`{"tag":"AB"}`))
	require.Error(t, err)
}

func TestToCallArg_GreetSingleScalarInferredPositional(t *testing.T) {
	v, err := ToCallArg(greetTool(t), json.RawMessage(`{"name":"Ada"}`))
	require.NoError(t, err)
	items, ok := v.AsVec()
	require.True(t, ok)
	require.Len(t, items, 1)
	s, _ := items[0].AsText()
	assert.Equal(t, "Ada", s)
}

func TestFromCallResult_RoundTrips(t *testing.T) {
	raw, err := FromCallResult(wire.Text("hello"))
	require.NoError(t, err)
	var decoded string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "hello", decoded)
}

// Seeded pseudo-random sweeps over the schema subset. The generators are
// hand-written and deterministic, so failures reproduce, while covering far
// more of the input space than the fixed examples above.

func sweepTool(t *testing.T) *schema.Tool {
	t.Helper()
	id, _ := ids.NewToolId("sweep")
	name, _ := ids.NewToolName("sweep")
	b := schema.NewBuilder(id, name, "exercises every scalar shape").
		AddParam(schema.ToolParameter{Name: "n", Type: schema.TypeInteger, WireType: "int", Required: true}).
		AddParam(schema.ToolParameter{Name: "s", Type: schema.TypeString, WireType: "text", Required: true}).
		AddParam(schema.ToolParameter{Name: "flag", Type: schema.TypeBoolean, WireType: "bool", Required: true}).
		AddParam(schema.ToolParameter{Name: "xs", Type: schema.TypeArray, WireType: "vec", Required: true,
			Items: &schema.ToolParameter{Name: "xs[]", Type: schema.TypeInteger, WireType: "int", Required: true}})
	tool, err := b.Build()
	require.NoError(t, err)
	return tool
}

func sweepArgs(rng *rand.Rand) map[string]any {
	xs := make([]any, rng.Intn(4))
	for i := range xs {
		xs[i] = float64(rng.Intn(200) - 100)
	}
	const letters = "abcdefghij"
	s := make([]byte, rng.Intn(8))
	for i := range s {
		s[i] = letters[rng.Intn(len(letters))]
	}
	return map[string]any{
		"n":    float64(rng.Intn(1<<30) - 1<<29),
		"s":    string(s),
		"flag": rng.Intn(2) == 0,
		"xs":   xs,
	}
}

func TestToCallArg_SweptValidInputsRoundTrip(t *testing.T) {
	tool := sweepTool(t)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 300; i++ {
		args := sweepArgs(rng)
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		v, err := ToCallArg(tool, raw)
		require.NoError(t, err)
		items, ok := v.AsVec()
		require.True(t, ok)
		require.Len(t, items, len(tool.Style.Order))
		for idx, name := range tool.Style.Order {
			back, err := wire.ToJSON(items[idx])
			require.NoError(t, err)
			assert.Equal(t, args[name], back, name)
		}
	}
}

func TestToCallArg_SweptInvalidInputsRejected(t *testing.T) {
	tool := sweepTool(t)
	rng := rand.New(rand.NewSource(2))
	wrongByField := map[string][]any{
		"n":    {"ten", true, 1.5, []any{float64(1)}, map[string]any{"v": float64(1)}},
		"s":    {float64(3), true, []any{"x"}, map[string]any{"v": "x"}},
		"flag": {"yes", float64(1), []any{true}, map[string]any{"v": true}},
		"xs":   {"list", float64(1), true, map[string]any{"v": float64(1)}},
	}
	names := tool.Style.Order
	for i := 0; i < 300; i++ {
		args := sweepArgs(rng)
		victim := names[rng.Intn(len(names))]
		switch rng.Intn(3) {
		case 0:
			pool := wrongByField[victim]
			args[victim] = pool[rng.Intn(len(pool))]
		case 1:
			delete(args, victim)
		default:
			args["unexpected"] = float64(1)
		}
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		_, err = ToCallArg(tool, raw)
		require.Error(t, err)
		ierr, ok := icaruserr.As(err)
		require.True(t, ok)
		assert.Equal(t, icaruserr.KindValidation, ierr.Kind)
	}
}
