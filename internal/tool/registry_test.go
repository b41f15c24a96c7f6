package tool

import (
	"encoding/json"
	"testing"

	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTool(t *testing.T, name string) *schema.Tool {
	t.Helper()
	id, err := ids.NewToolId(name)
	require.NoError(t, err)
	n, err := ids.NewToolName(name)
	require.NoError(t, err)
	tool, err := schema.NewBuilder(id, n, "test tool "+name).Build()
	require.NoError(t, err)
	return tool
}

func TestRegisterAndCatalogOrder(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	Register(Spec{Build: func() *schema.Tool { return buildTool(t, "alpha") }})
	Register(Spec{Build: func() *schema.Tool { return buildTool(t, "beta") }})

	a := Catalog()
	b := Catalog()
	require.Len(t, a, 2)
	require.Len(t, b, 2)
	assert.Equal(t, "alpha", a[0].Build().Name.String())
	assert.Equal(t, "beta", a[1].Build().Name.String())
	assert.Equal(t, a[0].Build().Name, b[0].Build().Name)
}

func TestListToolsJSONRejectsDuplicateNames(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	Register(Spec{Build: func() *schema.Tool { return buildTool(t, "dup") }})
	Register(Spec{Build: func() *schema.Tool { return buildTool(t, "dup") }})

	_, err := ListToolsJSON()
	require.Error(t, err)
}

func TestInvokeDispatchesByName(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	Register(Spec{
		Build: func() *schema.Tool { return buildTool(t, "echo") },
		Invoke: func(raw json.RawMessage) (json.RawMessage, error) {
			return raw, nil
		},
	})

	out, err := Invoke("echo", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(out))

	_, err = Invoke("missing", nil)
	require.Error(t, err)
}
