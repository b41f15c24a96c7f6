package canister

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/icarus-mcp/icarus/internal/wire"
)

// Network selects which Internet Computer HTTP gateway the client talks
// to.
type Network string

const (
	NetworkLocal Network = "local"
	NetworkIC    Network = "ic"
)

func gatewayBaseURL(n Network) string {
	switch n {
	case NetworkIC:
		return "https://ic0.app/api/v2"
	default:
		return "http://127.0.0.1:4943/api/v2"
	}
}

// Transport performs one RPC against the canister host. HTTPTransport is
// the production implementation; testing/harness supplies an in-memory
// stub implementing the same interface.
type Transport interface {
	Query(ctx context.Context, canisterID, method string, arg wire.Value) (wire.Value, error)
	Call(ctx context.Context, canisterID, method string, arg wire.Value) (wire.Value, error)
}

// envelope is the request/response body shape posted to the gateway. The
// real Candid wire encoding is binary; this envelope carries the same
// WireValue model JSON-encoded, matching the rest of the bridge's JSON
// plumbing, while still exercising the documented HTTP gateway surface
// (POST {base}/canister/{id}/query|call).
type envelope struct {
	Method    string          `json:"method_name"`
	Principal string          `json:"sender"`
	Signature string          `json:"sender_sig,omitempty"`
	Arg       json.RawMessage `json:"arg"`
}

type replyEnvelope struct {
	Status string          `json:"status"` // "replied" | "rejected"
	Reply  json.RawMessage `json:"reply,omitempty"`

	RejectCode int    `json:"reject_code,omitempty"`
	RejectMsg  string `json:"reject_message,omitempty"`
}

// Reject codes per the IC gateway API; CanisterError is the only code
// checked for "method not found" style rejects that trigger re-discovery.
const (
	rejectCanisterError = 5
)

// HTTPTransport talks to a real (or locally running) Internet Computer HTTP
// gateway using net/http with a shared client/transport for connection
// reuse; the connection is owned exclusively by this transport.
type HTTPTransport struct {
	baseURL  string
	client   *http.Client
	identity IdentityResolver
}

// NewHTTPTransport constructs a transport against the given network,
// reusing one *http.Client/Transport across all calls.
func NewHTTPTransport(network Network, identity IdentityResolver) *HTTPTransport {
	return &HTTPTransport{
		baseURL:  gatewayBaseURL(network),
		client:   &http.Client{},
		identity: identity,
	}
}

func (t *HTTPTransport) Query(ctx context.Context, canisterID, method string, arg wire.Value) (wire.Value, error) {
	return t.do(ctx, "query", canisterID, method, arg)
}

func (t *HTTPTransport) Call(ctx context.Context, canisterID, method string, arg wire.Value) (wire.Value, error) {
	return t.do(ctx, "call", canisterID, method, arg)
}

func (t *HTTPTransport) do(ctx context.Context, kind, canisterID, method string, arg wire.Value) (wire.Value, error) {
	principal, err := t.identity.Principal(ctx)
	if err != nil {
		return wire.Value{}, transportUnreachable(fmt.Errorf("resolving identity: %w", err))
	}

	argJSON, err := wire.ToJSON(arg)
	if err != nil {
		return wire.Value{}, internalDecode(fmt.Errorf("encoding argument: %w", err))
	}
	argRaw, err := json.Marshal(argJSON)
	if err != nil {
		return wire.Value{}, internalDecode(err)
	}

	digest := sha256.Sum256(argRaw)
	sig, err := t.identity.Sign(ctx, digest[:])
	if err != nil {
		return wire.Value{}, transportUnreachable(fmt.Errorf("signing request: %w", err))
	}

	body, err := json.Marshal(envelope{
		Method:    method,
		Principal: string(principal),
		Signature: hex.EncodeToString(sig),
		Arg:       argRaw,
	})
	if err != nil {
		return wire.Value{}, internalDecode(err)
	}

	url := fmt.Sprintf("%s/canister/%s/%s", t.baseURL, canisterID, kind)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return wire.Value{}, transportUnreachable(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return wire.Value{}, transportUnreachable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return wire.Value{}, transportUnreachable(err)
	}
	if resp.StatusCode != http.StatusOK {
		return wire.Value{}, transportUnreachable(fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var rep replyEnvelope
	if err := json.Unmarshal(raw, &rep); err != nil {
		return wire.Value{}, internalDecode(fmt.Errorf("decoding reply envelope: %w", err))
	}

	if rep.Status == "rejected" {
		return wire.Value{}, rejectToError(rep)
	}

	var replyJSON any
	if err := json.Unmarshal(rep.Reply, &replyJSON); err != nil {
		return wire.Value{}, internalDecode(fmt.Errorf("decoding reply value: %w", err))
	}
	v, err := wire.FromJSON(replyJSON)
	if err != nil {
		return wire.Value{}, internalDecode(err)
	}
	return v, nil
}
