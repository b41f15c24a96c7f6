// Package mcpserver implements the MCP server frame: a line-delimited
// JSON-RPC 2.0 dispatcher for initialize/tools/list/tools/call, with batch
// fan-out/join and error-envelope construction.
package mcpserver

import "encoding/json"

// ProtocolVersion is the MCP protocol version the bridge declares in
// initialize responses.
const ProtocolVersion = "2024-11-05"

// Request is one JSON-RPC 2.0 request or notification (ID is nil for a
// notification).
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this message carries no id.
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is one JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func newResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, code int, message string, data map[string]any) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}}
}

// InitializeResult is the payload returned for the "initialize" method.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ServerInfo names the bridge in the initialize handshake.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolDescriptor is one entry of a tools/list response.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsListResult is the payload returned for "tools/list".
type ToolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ToolsCallParams is the params object of a "tools/call" request.
type ToolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ContentItem is one block of a tool call's result content.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolsCallResult is the payload returned for "tools/call".
type ToolsCallResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError"`
}
