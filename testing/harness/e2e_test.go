package harness_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-mcp/icarus/internal/bridge"
	"github.com/icarus-mcp/icarus/internal/canister"
	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/ids"
	"github.com/icarus-mcp/icarus/internal/mcpserver"
	"github.com/icarus-mcp/icarus/internal/telemetry"
	"github.com/icarus-mcp/icarus/internal/wire"
	"github.com/icarus-mcp/icarus/testing/harness"
)

const fullCatalog = `{"tools":[
{"name":"add","description":"adds two numbers","inputSchema":{"type":"object","properties":{"a":{"type":"integer"},"b":{"type":"integer"}},"required":["a","b"],"x-icarus-params":{"style":"positional","order":["a","b"],"types":["int","int"]}}},
{"name":"greet","description":"greets by name","inputSchema":{"type":"object","properties":{"name":{"type":"string"}},"required":["name"],"x-icarus-params":{"style":"positional","order":["name"],"types":["text"]}}},
{"name":"create_user","description":"creates a user","inputSchema":{"type":"object","properties":{"name":{"type":"string"},"age":{"type":"integer","minimum":0}},"required":["age","name"],"x-icarus-params":{"style":"record","order":["req"]}}},
{"name":"divide","description":"divides a by b","inputSchema":{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"],"x-icarus-params":{"style":"positional","order":["a","b"],"types":["float","float"]}}},
{"name":"slow","description":"sleeps","inputSchema":{"type":"object","properties":{},"x-icarus-params":{"style":"empty"}}},
{"name":"busy","description":"burns a slot","inputSchema":{"type":"object","properties":{},"x-icarus-params":{"style":"empty"}}}
]}`

func sumMethod(_ context.Context, arg wire.Value) (wire.Value, error) {
	items, _ := arg.AsVec()
	a, _ := items[0].AsInt()
	b, _ := items[1].AsInt()
	return wire.Int(a + b), nil
}

func greetMethod(_ context.Context, arg wire.Value) (wire.Value, error) {
	items, _ := arg.AsVec()
	name, _ := items[0].AsText()
	return wire.Text("Hello, " + name + "!"), nil
}

func createUserMethod(_ context.Context, arg wire.Value) (wire.Value, error) {
	if _, ok := arg.RecordGet("name"); !ok {
		return wire.Value{}, icaruserr.New(icaruserr.KindInternal, icaruserr.TagCanisterUserError, icaruserr.SeverityUser, "name missing")
	}
	return wire.Text("user-1"), nil
}

// divideMethod replies with a result variant the way a canister tool
// returning a result-like type does: the failure branch is an "Err" variant
// inside a successful reply, not a transport-level reject.
func divideMethod(_ context.Context, arg wire.Value) (wire.Value, error) {
	items, _ := arg.AsVec()
	a, _ := items[0].AsFloat()
	b, _ := items[1].AsFloat()
	if b == 0 {
		return wire.Variant("Err", wire.Text("Cannot divide by zero")), nil
	}
	return wire.Variant("Ok", wire.Float(a/b)), nil
}

type fixture struct {
	canister *harness.Canister
	bridge   *bridge.Bridge
	server   *mcpserver.Server
	out      *bytes.Buffer
}

func newFixture(t *testing.T, catalog string, methods map[string]harness.MethodFunc, timeout time.Duration, maxInflight int) *fixture {
	t.Helper()
	stub := harness.NewCanister(json.RawMessage(catalog), methods)
	id, err := ids.NewCanisterId("rrkah-fqaaa-aaaaa-aaaaq-cai")
	require.NoError(t, err)
	client := canister.NewClient(stub, id, timeout, maxInflight)
	b := bridge.New(client, id, telemetry.Noop{})
	require.NoError(t, b.Start(context.Background()))

	out := &bytes.Buffer{}
	srv := mcpserver.New(b, out, telemetry.Noop{}, mcpserver.Options{
		ServerName:    "icarus-bridge",
		ServerVersion: "0.1.0",
		DrainGrace:    5 * time.Second,
	})
	return &fixture{canister: stub, bridge: b, server: srv, out: out}
}

func (f *fixture) run(t *testing.T, input string) []mcpserver.Response {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	code, err := f.server.Run(ctx, strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, mcpserver.ExitGraceful, code)
	return parseResponses(t, f.out.String())
}

func parseResponses(t *testing.T, raw string) []mcpserver.Response {
	t.Helper()
	var out []mcpserver.Response
	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		if line == "" {
			continue
		}
		var resp mcpserver.Response
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		out = append(out, resp)
	}
	return out
}

func byID(responses []mcpserver.Response) map[string]mcpserver.Response {
	out := make(map[string]mcpserver.Response, len(responses))
	for _, r := range responses {
		out[string(r.ID)] = r
	}
	return out
}

func callResult(t *testing.T, resp mcpserver.Response) mcpserver.ToolsCallResult {
	t.Helper()
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result mcpserver.ToolsCallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	return result
}

func defaultMethods() map[string]harness.MethodFunc {
	return map[string]harness.MethodFunc{
		"add":         sumMethod,
		"greet":       greetMethod,
		"create_user": createUserMethod,
		"divide":      divideMethod,
	}
}

func TestInitializeAndListMatchesGoldenTranscript(t *testing.T) {
	catalog := `{"tools":[
{"name":"add","description":"adds two numbers","inputSchema":{"type":"object","properties":{"a":{"type":"integer"},"b":{"type":"integer"}},"required":["a","b"],"x-icarus-params":{"style":"positional","order":["a","b"],"types":["int","int"]}}},
{"name":"greet","description":"greets by name","inputSchema":{"type":"object","properties":{"name":{"type":"string"}},"required":["name"],"x-icarus-params":{"style":"positional","order":["name"],"types":["text"]}}}
]}`
	f := newFixture(t, catalog, defaultMethods(), 2*time.Second, 4)
	input := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"method":"tools/list","params":{}}` + "\n"
	_ = f.run(t, input)

	golden, err := os.ReadFile(filepath.Join("testdata", "initialize_list.golden"))
	require.NoError(t, err)
	// Responses to separate requests may be written in either order; each
	// line must still match its golden line byte for byte.
	wantLines := strings.Split(strings.TrimSuffix(string(golden), "\n"), "\n")
	gotLines := strings.Split(strings.TrimSuffix(f.out.String(), "\n"), "\n")
	sort.Strings(wantLines)
	sort.Strings(gotLines)
	assert.Equal(t, wantLines, gotLines)
}

func TestPositionalCallHappyPath(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	responses := f.run(t, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"add","arguments":{"a":2,"b":3}}}`+"\n")
	require.Len(t, responses, 1)
	result := callResult(t, responses[0])
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "5", result.Content[0].Text)
}

func TestRecordCallHappyPath(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	responses := f.run(t, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"create_user","arguments":{"name":"Ada","age":36}}}`+"\n")
	require.Len(t, responses, 1)
	result := callResult(t, responses[0])
	assert.False(t, result.IsError)
	assert.Equal(t, `"user-1"`, result.Content[0].Text)
}

func TestValidationRejectionNeverReachesCanister(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	responses := f.run(t, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"add","arguments":{"a":"two","b":3}}}`+"\n")
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32602, responses[0].Error.Code)
	assert.Equal(t, "Validation.Schema", responses[0].Error.Data["tag"])
	assert.Empty(t, f.canister.Calls())
}

func TestTimeoutSurfacesRetryHintWithinBudget(t *testing.T) {
	methods := defaultMethods()
	methods["slow"] = harness.Delay(60*time.Second, func(context.Context, wire.Value) (wire.Value, error) {
		return wire.Null(), nil
	})
	f := newFixture(t, fullCatalog, methods, 1*time.Second, 4)

	start := time.Now()
	responses := f.run(t, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"slow","arguments":{}}}`+"\n")
	elapsed := time.Since(start)

	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, -32003, responses[0].Error.Code)
	assert.Equal(t, "Transport.Timeout", responses[0].Error.Data["tag"])
	retry, ok := responses[0].Error.Data["retry_after_ms"].(float64)
	require.True(t, ok)
	assert.Greater(t, retry, float64(0))
	assert.Less(t, elapsed, 2*time.Second)
}

func TestErrVariantReplySurfacesAsUserError(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	responses := f.run(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"divide","arguments":{"a":1,"b":0}}}`+"\n")
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	result := callResult(t, responses[0])
	assert.True(t, result.IsError)
	assert.Equal(t, "Cannot divide by zero", result.Content[0].Text)
}

func TestOkVariantReplyUnwrapsToValue(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	responses := f.run(t, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"divide","arguments":{"a":4,"b":2}}}`+"\n")
	require.Len(t, responses, 1)
	result := callResult(t, responses[0])
	assert.False(t, result.IsError)
	assert.Equal(t, "2", result.Content[0].Text)
}

func TestInflightBoundHoldsUnderConcurrentLoad(t *testing.T) {
	var mu sync.Mutex
	current, peak := 0, 0
	methods := defaultMethods()
	methods["busy"] = func(ctx context.Context, _ wire.Value) (wire.Value, error) {
		mu.Lock()
		current++
		if current > peak {
			peak = current
		}
		mu.Unlock()
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
		}
		mu.Lock()
		current--
		mu.Unlock()
		return wire.Null(), nil
	}
	f := newFixture(t, fullCatalog, methods, 5*time.Second, 2)

	var input strings.Builder
	for i := 1; i <= 6; i++ {
		input.WriteString(`{"jsonrpc":"2.0","id":`)
		input.WriteString(strconv.Itoa(i))
		input.WriteString(`,"method":"tools/call","params":{"name":"busy","arguments":{}}}`)
		input.WriteByte('\n')
	}
	responses := f.run(t, input.String())
	require.Len(t, responses, 6)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}

func TestConcurrentResponsesEachCarryTheirOwnID(t *testing.T) {
	f := newFixture(t, fullCatalog, defaultMethods(), 2*time.Second, 4)
	var input strings.Builder
	for i := 1; i <= 5; i++ {
		input.WriteString(`{"jsonrpc":"2.0","id":`)
		input.WriteString(strconv.Itoa(i))
		input.WriteString(`,"method":"tools/call","params":{"name":"add","arguments":{"a":`)
		input.WriteString(strconv.Itoa(i))
		input.WriteString(`,"b":1}}}`)
		input.WriteByte('\n')
	}
	responses := f.run(t, input.String())
	require.Len(t, responses, 5)

	seen := byID(responses)
	require.Len(t, seen, 5)
	for i := 1; i <= 5; i++ {
		resp, ok := seen[strconv.Itoa(i)]
		require.True(t, ok, "missing response id %d", i)
		result := callResult(t, resp)
		assert.Equal(t, strconv.Itoa(i+1), result.Content[0].Text)
	}
}

func TestClosingInputCancelsInflightCalls(t *testing.T) {
	methods := defaultMethods()
	released := make(chan struct{})
	methods["slow"] = func(ctx context.Context, _ wire.Value) (wire.Value, error) {
		defer close(released)
		<-ctx.Done()
		return wire.Value{}, ctx.Err()
	}
	f := newFixture(t, fullCatalog, methods, 30*time.Second, 4)

	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _ = pw.Write([]byte(`{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"slow","arguments":{}}}` + "\n"))
		time.Sleep(100 * time.Millisecond)
		cancel()
		_ = pw.Close()
	}()

	start := time.Now()
	code, err := f.server.Run(ctx, pr)
	require.NoError(t, err)
	assert.Equal(t, mcpserver.ExitGraceful, code)
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("in-flight call never observed cancellation")
	}

	responses := parseResponses(t, f.out.String())
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, "Transport.Cancelled", responses[0].Error.Data["tag"])
}
