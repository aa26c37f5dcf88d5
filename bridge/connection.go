// Package bridge implements the downstream side of the LSP bridge: one
// Connection per spawned language server process, a Pool that manages
// the set of running servers, a Response Router for request/response
// correlation, a Virtual Document Tracker for injection-region content
// mirrored to downstream servers, request Forwarders that translate
// coordinates across the host/region boundary, and a Synthetic
// Diagnostics Manager that debounces background re-analysis.
//
// Grounded throughout on the teacher's single-writer connection
// discipline and debounce-with-pointer-identity cleanup
// (simon-lentz/yammm's lsp/server.go and lsp/workspace.go
// ScheduleAnalysis), and on the process-per-server JSON-RPC framing
// used by the pack's opencode lsp-client example.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// State is a Connection's lifecycle stage. Transitions only ever move
// forward: a reader/writer error moves Initializing or Ready to Failed,
// Close moves any other state to Closing and then Closed, and Failed
// and Closed are terminal.
type State int

const (
	StateInitializing State = iota
	StateReady
	StateClosing
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// request is a queued outbound JSON-RPC message awaiting the single
// writer goroutine.
type request struct {
	payload []byte
}

// pendingCall is an in-flight request awaiting its response.
type pendingCall struct {
	result chan rpcResponse
}

type rpcResponse struct {
	Result json.RawMessage
	Err    *rpcError
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServerRequestHandler answers a request the downstream server
// initiates (e.g. workspace/configuration, window/workDoneProgress/
// create), returning the result to send back.
type ServerRequestHandler func(ctx context.Context, method string, params json.RawMessage) (any, *rpcError)

// NotificationHandler observes a notification the downstream server
// sent (e.g. textDocument/publishDiagnostics).
type NotificationHandler func(method string, params json.RawMessage)

// Connection manages one downstream language server process: a single
// writer goroutine serializes all outbound frames (requests,
// responses, notifications) so concurrent callers never interleave
// partial writes, and a reader goroutine classifies every inbound
// frame as a response (routed to the waiting caller), a server-
// initiated request (dispatched to OnServerRequest), or a notification
// (dispatched to OnNotification).
type Connection struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	log *slog.Logger

	state atomic.Int32

	writeCh chan request
	done    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]*pendingCall

	OnServerRequest ServerRequestHandler
	OnNotification  NotificationHandler

	// failures counts the read/write failures fail() has observed. The
	// first one already marks the connection Failed; nothing is retried
	// here, and respawning is left to the owning Pool.
	failures atomic.Int32
}

// Spawn starts cmd as a downstream language server and begins its
// reader/writer goroutines. The returned Connection is in
// StateInitializing until Handshake completes.
func Spawn(name string, cmd *exec.Cmd, log *slog.Logger) (*Connection, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe for %s: %w", name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	c := &Connection{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewReader(stdout),
		log:     log,
		writeCh: make(chan request, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingCall),
	}
	c.state.Store(int32(StateInitializing))

	go c.writeLoop()
	go c.readLoop()
	return c, nil
}

// State returns the connection's current lifecycle stage.
func (c *Connection) State() State { return State(c.state.Load()) }

// Name returns the identifier this connection was spawned under (the
// configured language-server key, not the process name).
func (c *Connection) Name() string { return c.name }

func (c *Connection) setState(s State) { c.state.Store(int32(s)) }

func (c *Connection) writeLoop() {
	for {
		select {
		case req := <-c.writeCh:
			frame := encodeFrame(req.payload)
			if _, err := c.stdin.Write(frame); err != nil {
				c.log.Error("write failed", "server", c.name, "error", err)
				c.fail()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Connection) readLoop() {
	defer c.fail()
	for {
		payload, err := readFrame(c.stdout)
		if err != nil {
			if err != io.EOF {
				c.log.Error("read failed", "server", c.name, "error", err)
			}
			return
		}
		var env rpcEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			c.log.Warn("malformed frame", "server", c.name, "error", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Connection) dispatch(env rpcEnvelope) {
	switch {
	case env.Method == "" && env.ID != nil:
		// Response to one of our requests.
		key := string(env.ID)
		c.mu.Lock()
		call, ok := c.pending[key]
		if ok {
			delete(c.pending, key)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		call.result <- rpcResponse{Result: env.Result, Err: env.Error}

	case env.Method != "" && env.ID != nil:
		// Server-initiated request.
		if c.OnServerRequest == nil {
			if env.Method == "workspace/applyEdit" {
				c.respondResult(env.ID, map[string]bool{"applied": false})
				return
			}
			c.respondError(env.ID, &rpcError{Code: -32601, Message: "method not supported by bridge"})
			return
		}
		go func() {
			result, rpcErr := c.OnServerRequest(context.Background(), env.Method, env.Params)
			if rpcErr != nil {
				c.respondError(env.ID, rpcErr)
				return
			}
			c.respondResult(env.ID, result)
		}()

	case env.Method != "":
		// Notification.
		if c.OnNotification != nil {
			c.OnNotification(env.Method, env.Params)
		}
	}
}

// Call sends a request and blocks until its response arrives or ctx is
// done.
func (c *Connection) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	idJSON, _ := json.Marshal(id)

	call := &pendingCall{result: make(chan rpcResponse, 1)}
	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	env := rpcEnvelope{JSONRPC: "2.0", ID: idJSON, Method: method, Params: paramsJSON}
	body, err := json.Marshal(env)
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("marshal envelope for %s: %w", method, err)
	}

	select {
	case c.writeCh <- request{payload: body}:
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection %s closed", c.name)
	}

	select {
	case resp := <-call.result:
		if resp.Err != nil {
			return nil, resp.Err
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("connection %s closed", c.name)
	}
}

// Notify sends a one-way notification, fire-and-forget.
func (c *Connection) Notify(method string, params any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params for %s: %w", method, err)
	}
	env := rpcEnvelope{JSONRPC: "2.0", Method: method, Params: paramsJSON}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", method, err)
	}
	select {
	case c.writeCh <- request{payload: body}:
		return nil
	case <-c.done:
		return fmt.Errorf("connection %s closed", c.name)
	}
}

func (c *Connection) respondResult(id json.RawMessage, result any) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		c.respondError(id, &rpcError{Code: -32603, Message: err.Error()})
		return
	}
	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Result: resultJSON}
	body, _ := json.Marshal(env)
	select {
	case c.writeCh <- request{payload: body}:
	case <-c.done:
	}
}

func (c *Connection) respondError(id json.RawMessage, rpcErr *rpcError) {
	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Error: rpcErr}
	body, _ := json.Marshal(env)
	select {
	case c.writeCh <- request{payload: body}:
	case <-c.done:
	}
}

func (c *Connection) fail() {
	c.failures.Add(1)
	// A read/write error that arrives after an orderly Close (the
	// stdout pipe closing in response to our own stdin.Close) must not
	// clobber the Closed state with Failed.
	if s := c.State(); s == StateInitializing || s == StateReady {
		c.setState(StateFailed)
	}
	c.closeOnce.Do(func() { close(c.done) })
}

// Close requests an orderly shutdown: no new calls are accepted, the
// writer stops (frames still queued are not written), and the process
// is signaled to exit. A connection that already Failed stays Failed.
// Callers that need the standard shutdown/exit LSP handshake should
// send those requests before calling Close.
func (c *Connection) Close() error {
	failed := c.State() == StateFailed
	if !failed {
		c.setState(StateClosing)
	}
	c.closeOnce.Do(func() { close(c.done) })
	_ = c.stdin.Close()
	err := c.cmd.Wait()
	if !failed {
		c.setState(StateClosed)
	}
	return err
}

// Failed reports whether the connection has entered StateFailed.
func (c *Connection) Failed() bool { return c.State() == StateFailed }
