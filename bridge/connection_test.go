package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pipeConn wires a Connection's stdin/stdout to in-memory pipes so
// tests can play the role of the downstream server without spawning a
// real process.
type pipeConn struct {
	conn *Connection

	serverIn  *bufio.Reader // what the "server" reads (our stdin)
	serverOut io.WriteCloser // what the "server" writes (our stdout)
}

func newPipeConn(t *testing.T) *pipeConn {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	c := &Connection{
		name:    "test",
		stdin:   inW,
		stdout:  bufio.NewReader(outR),
		log:     slog.Default(),
		writeCh: make(chan request, 64),
		done:    make(chan struct{}),
		pending: make(map[string]*pendingCall),
	}
	c.state.Store(int32(StateInitializing))
	go c.writeLoop()
	go c.readLoop()

	return &pipeConn{conn: c, serverIn: bufio.NewReader(inR), serverOut: outW}
}

// serveOnce reads one frame the Connection wrote (as the "server"
// would) and returns its decoded envelope.
func (p *pipeConn) serveOnce(t *testing.T) rpcEnvelope {
	t.Helper()
	payload, err := readFrame(p.serverIn)
	require.NoError(t, err)
	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(payload, &env))
	return env
}

func (p *pipeConn) respond(t *testing.T, id json.RawMessage, result any) {
	t.Helper()
	resultJSON, err := json.Marshal(result)
	require.NoError(t, err)
	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Result: resultJSON}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = p.serverOut.Write(encodeFrame(body))
	require.NoError(t, err)
}

func TestConnection_CallRoundTrip(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)

	var got rpcEnvelope
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		got = p.serveOnce(t)
		p.respond(t, got.ID, map[string]string{"status": "ok"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := p.conn.Call(ctx, "textDocument/hover", map[string]int{"line": 1})
	require.NoError(t, err)
	wg.Wait()

	require.Equal(t, "textDocument/hover", got.Method)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(result, &decoded))
	require.Equal(t, "ok", decoded["status"])
}

func TestConnection_ConcurrentCallsWriteWholeFrames(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)

	const n = 20
	seen := make(chan string, n)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			env := p.serveOnce(t)
			seen <- env.Method
			p.respond(t, env.ID, nil)
		}
	}()

	var callWG sync.WaitGroup
	order := make([]string, 0, n)
	for i := 0; i < n; i++ {
		callWG.Add(1)
		go func(i int) {
			defer callWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, err := p.conn.Call(ctx, "method", map[string]int{"i": i})
			require.NoError(t, err)
		}(i)
	}
	callWG.Wait()
	wg.Wait()
	close(seen)
	for m := range seen {
		order = append(order, m)
	}
	// Every concurrently-issued call must still have been written as a
	// single complete frame: the server must have seen exactly n
	// well-formed "method" frames, never an interleaved/corrupted one.
	count := 0
	for _, m := range order {
		require.Equal(t, "method", m)
		count++
	}
	require.Equal(t, n, count)
}

func TestConnection_ServerRequestHandled(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	p.conn.OnServerRequest = func(ctx context.Context, method string, params json.RawMessage) (any, *rpcError) {
		require.Equal(t, "workspace/configuration", method)
		return []string{"value"}, nil
	}

	id, _ := json.Marshal("server-1")
	env := rpcEnvelope{JSONRPC: "2.0", ID: id, Method: "workspace/configuration"}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = p.serverOut.Write(encodeFrame(body))
	require.NoError(t, err)

	reply := p.serveOnce(t)
	require.Nil(t, reply.Error)
	var decoded []string
	require.NoError(t, json.Unmarshal(reply.Result, &decoded))
	require.Equal(t, []string{"value"}, decoded)
}

func TestConnection_NotificationDispatched(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	received := make(chan string, 1)
	p.conn.OnNotification = func(method string, params json.RawMessage) {
		received <- method
	}

	env := rpcEnvelope{JSONRPC: "2.0", Method: "textDocument/publishDiagnostics"}
	body, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = p.serverOut.Write(encodeFrame(body))
	require.NoError(t, err)

	select {
	case m := <-received:
		require.Equal(t, "textDocument/publishDiagnostics", m)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched")
	}
}

func TestConnection_ClosedConnectionRejectsCalls(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	p.conn.setState(StateReady)
	p.conn.closeOnce.Do(func() { close(p.conn.done) })

	_, err := p.conn.Call(context.Background(), "x", nil)
	require.Error(t, err)
}
