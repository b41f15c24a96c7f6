package mcpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
	"github.com/icarus-mcp/icarus/internal/telemetry"
)

// maxLineBytes bounds one JSON-RPC line; tool arguments are small in
// practice but a generous ceiling avoids surprising truncation.
const maxLineBytes = 16 * 1024 * 1024

// Handler is what the bridge orchestration layer implements to answer
// tools/list and tools/call; mcpserver itself knows nothing about
// canisters or parameter mapping.
type Handler interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (ToolsCallResult, error)
}

// Options configures a Server.
type Options struct {
	ServerName    string
	ServerVersion string
	// DrainGrace bounds how long in-flight tools/call tasks are given to
	// finish once the input stream ends.
	DrainGrace time.Duration
}

// Server is the MCP server frame: one cooperative input-reading loop, one
// short-lived goroutine per request, one mutex-guarded outbound writer.
type Server struct {
	opts    Options
	handler Handler
	log     telemetry.Logger

	writeMu sync.Mutex
	writer  io.Writer

	wg sync.WaitGroup
}

// New constructs a Server bound to handler, writing framed responses to w.
func New(handler Handler, w io.Writer, log telemetry.Logger, opts Options) *Server {
	if opts.DrainGrace <= 0 {
		opts.DrainGrace = 5 * time.Second
	}
	return &Server{opts: opts, handler: handler, log: log, writer: w}
}

// ExitCode communicates how Run concluded: 0 graceful, 2 forced
// termination after the drain grace elapsed.
type ExitCode int

const (
	ExitGraceful ExitCode = 0
	ExitForced   ExitCode = 2
)

// Run reads line-delimited JSON-RPC messages from r until EOF or ctx is
// canceled, dispatching each to the handler, and returns once all in-flight
// work has been drained (or the grace period elapses).
func (s *Server) Run(ctx context.Context, r io.Reader) (ExitCode, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()

	lines := make(chan []byte)
	scanErrCh := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-readCtx.Done():
				return
			}
		}
		scanErrCh <- scanner.Err()
	}()

readLoop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break readLoop
			}
			if len(trimSpace(line)) == 0 {
				continue
			}
			s.dispatchLine(ctx, line)
		case <-ctx.Done():
			break readLoop
		}
	}

	select {
	case err := <-scanErrCh:
		if err != nil {
			s.log.Warn(ctx, "input stream scan failed", "error", err)
		}
	default:
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return ExitGraceful, nil
	case <-time.After(s.opts.DrainGrace):
		return ExitForced, nil
	}
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\r' || c == '\n' }

// dispatchLine parses one input line as a single request or a batch and
// spawns the handling goroutine(s), preserving batch index order in the
// joined output.
func (s *Server) dispatchLine(ctx context.Context, line []byte) {
	trimmed := trimSpace(line)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			s.writeOne(errorResponse(nil, icaruserr.ErrProtocolBadRequest))
			return
		}
		s.wg.Add(1)
		go s.handleBatch(ctx, batch)
		return
	}

	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		s.writeOne(errorResponse(nil, icaruserr.ErrProtocolBadRequest))
		return
	}
	s.wg.Add(1)
	go s.handleRequest(ctx, req)
}

func (s *Server) handleBatch(ctx context.Context, batch []json.RawMessage) {
	defer s.wg.Done()
	results := make([]*Response, len(batch))
	var inner sync.WaitGroup
	for i, raw := range batch {
		var req Request
		if err := json.Unmarshal(raw, &req); err != nil {
			resp := errorResponse(nil, icaruserr.ErrProtocolBadRequest)
			results[i] = &resp
			continue
		}
		inner.Add(1)
		go func(i int, req Request) {
			defer inner.Done()
			resp := s.process(ctx, req)
			if !req.IsNotification() {
				results[i] = &resp
			}
		}(i, req)
	}
	inner.Wait()

	out := make([]Response, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		return
	}
	s.writeBatch(out)
}

func (s *Server) handleRequest(ctx context.Context, req Request) {
	defer s.wg.Done()
	resp := s.process(ctx, req)
	if req.IsNotification() {
		return
	}
	s.writeOne(resp)
}

// process runs one request through the appropriate handler method and
// builds a Response, mapping icaruserr.Error tags to JSON-RPC error codes.
func (s *Server) process(ctx context.Context, req Request) Response {
	switch req.Method {
	case "initialize":
		return newResponse(req.ID, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities: map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
			ServerInfo: ServerInfo{Name: s.opts.ServerName, Version: s.opts.ServerVersion},
		})
	case "tools/list":
		tools, err := s.handler.ListTools(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return newResponse(req.ID, ToolsListResult{Tools: tools})
	case "tools/call":
		var params ToolsCallParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				return errorResponse(req.ID, icaruserr.New(icaruserr.KindValidation, icaruserr.TagValidationSchema, icaruserr.SeverityUser, "malformed tools/call params"))
			}
		}
		result, err := s.handler.CallTool(ctx, params.Name, params.Arguments)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return newResponse(req.ID, result)
	default:
		return errorResponse(req.ID, icaruserr.ErrProtocolUnknownMethod.WithContext("method", req.Method))
	}
}

func errorResponse(id json.RawMessage, err error) Response {
	ierr, ok := icaruserr.As(err)
	if !ok {
		ierr = icaruserr.Wrap(icaruserr.KindInternal, icaruserr.TagInternalDecode, icaruserr.SeverityFatal, err.Error(), err)
	}
	data := map[string]any{"tag": string(ierr.Tag)}
	for k, v := range ierr.Context {
		data[k] = v
	}
	if ierr.RetryAfterMs > 0 {
		data["retry_after_ms"] = ierr.RetryAfterMs
	}
	message := "invalid params"
	switch ierr.Kind {
	case icaruserr.KindProtocol:
		message = ierr.Message
	case icaruserr.KindTransport:
		message = "canister unreachable"
	case icaruserr.KindInternal:
		message = "internal error"
	}
	return newErrorResponse(id, ierr.JSONRPCCode(), message, data)
}

func (s *Server) writeOne(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writeLocked(resp)
}

func (s *Server) writeBatch(resps []Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	raw, err := json.Marshal(resps)
	if err != nil {
		s.log.Error(context.Background(), "failed to marshal batch response", "error", err)
		return
	}
	if _, err := s.writer.Write(append(raw, '\n')); err != nil {
		s.log.Error(context.Background(), "failed to write batch response", "error", err)
	}
}

func (s *Server) writeLocked(resp Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		s.log.Error(context.Background(), "failed to marshal response", "error", err)
		return
	}
	if _, err := s.writer.Write(append(raw, '\n')); err != nil {
		s.log.Error(context.Background(), "failed to write response", "error", err)
	}
}
