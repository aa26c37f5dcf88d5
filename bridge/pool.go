package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

// ServerSpec describes how to launch one named downstream language
// server.
type ServerSpec struct {
	Name    string
	Command string
	Args    []string
	Env     []string
}

// maxConsecutiveFailures bounds how many times the Pool will respawn a
// server that fails its handshake or crashes immediately after before
// giving up on it for the rest of the session — a panic budget against
// a misconfigured command looping a crash-restart cycle forever.
const maxConsecutiveFailures = 3

// retryBackoff is the delay between respawn attempts.
const retryBackoff = 500 * time.Millisecond

// errInitializing is returned by Acquire when another caller is
// already creating the named connection. §4.9/§4.10 treat Initializing
// (like Closing) as a fail-fast state: a concurrent request arriving
// mid-handshake fails immediately rather than queuing behind it, a
// deliberate choice favoring responsiveness over always eventually
// succeeding.
type errInitializing string

func (e errInitializing) Error() string {
	return fmt.Sprintf("language server %q is still initializing", string(e))
}

// Pool manages the set of running downstream language server
// connections, one per configured ServerSpec, gating concurrent
// creation so two callers racing to acquire the same not-yet-running
// server don't spawn it twice.
type Pool struct {
	log   *slog.Logger
	specs map[string]ServerSpec

	mu               sync.Mutex
	conns            map[string]*Connection
	inflight         map[string]chan struct{} // name -> closed when creation finishes
	failCount        map[string]int
	initParams       InitializeParams
	handshakeTimeout time.Duration
}

// defaultHandshakeTimeout is used when NewPool is given a non-positive
// timeout.
const defaultHandshakeTimeout = 5 * time.Second

// NewPool creates a Pool from the given server specs, keyed by
// ServerSpec.Name. handshakeTimeout bounds how long Acquire will wait
// for a freshly spawned server to answer initialize/initialized before
// failing the connection; a non-positive value falls back to
// defaultHandshakeTimeout.
func NewPool(specs []ServerSpec, initParams InitializeParams, handshakeTimeout time.Duration, log *slog.Logger) *Pool {
	byName := make(map[string]ServerSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Pool{
		log:              log,
		specs:            byName,
		conns:            make(map[string]*Connection),
		inflight:         make(map[string]chan struct{}),
		failCount:        make(map[string]int),
		initParams:       initParams,
		handshakeTimeout: handshakeTimeout,
	}
}

// Acquire returns a ready Connection for name, spawning and
// handshaking it if this is the first request. A server that has
// exhausted its failure budget returns an error immediately without
// retrying; a server another caller is already creating also fails
// fast (see errInitializing) rather than making this caller wait.
func (p *Pool) Acquire(ctx context.Context, name string) (*Connection, error) {
	p.mu.Lock()
	if c, ok := p.conns[name]; ok && c.State() == StateReady {
		p.mu.Unlock()
		return c, nil
	}
	if p.failCount[name] >= maxConsecutiveFailures {
		p.mu.Unlock()
		return nil, fmt.Errorf("language server %q exceeded its restart budget", name)
	}
	if _, creating := p.inflight[name]; creating {
		p.mu.Unlock()
		return nil, errInitializing(name)
	}

	attempt := p.failCount[name]
	ch := make(chan struct{})
	p.inflight[name] = ch
	p.mu.Unlock()

	if attempt > 0 {
		select {
		case <-time.After(retryBackoff):
		case <-ctx.Done():
			p.mu.Lock()
			delete(p.inflight, name)
			p.mu.Unlock()
			close(ch)
			return nil, ctx.Err()
		}
	}

	conn, err := p.create(ctx, name)

	p.mu.Lock()
	delete(p.inflight, name)
	if err != nil {
		p.failCount[name]++
		p.mu.Unlock()
		close(ch)
		return nil, err
	}
	p.conns[name] = conn
	p.failCount[name] = 0
	p.mu.Unlock()
	close(ch)
	return conn, nil
}

func (p *Pool) create(ctx context.Context, name string) (*Connection, error) {
	spec, ok := p.specs[name]
	if !ok {
		return nil, fmt.Errorf("no language server configured for %q", name)
	}
	cmd := exec.Command(spec.Command, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(cmd.Environ(), spec.Env...)
	}

	conn, err := Spawn(name, cmd, p.log.With("server", name))
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, p.handshakeTimeout)
	defer cancel()
	if _, err := Handshake(hctx, conn, p.initParams); err != nil {
		// Handshake already transitions conn to StateFailed on any error,
		// including hctx's deadline tripping Call's context check.
		conn.Close()
		if hctx.Err() != nil {
			return nil, fmt.Errorf("handshake %s: timed out after %s", name, p.handshakeTimeout)
		}
		return nil, err
	}
	return conn, nil
}

// Return marks a connection that the caller observed as failed so the
// next Acquire respawns it instead of handing back the same dead
// connection. It does not itself respawn; Acquire does that lazily on
// demand, bounded by the failure budget.
func (p *Pool) Return(name string, c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.conns[name]; ok && cur == c {
		delete(p.conns, name)
	}
}

// Snapshot returns every currently-tracked connection, ready or not,
// keyed by name; used for fan-out requests (workspace/symbol) and
// shutdown.
func (p *Pool) Snapshot() map[string]*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]*Connection, len(p.conns))
	for name, c := range p.conns {
		out[name] = c
	}
	return out
}

// CloseAll shuts down every running connection, collecting the first
// error encountered but attempting every connection regardless.
func (p *Pool) CloseAll(ctx context.Context) error {
	p.mu.Lock()
	conns := make(map[string]*Connection, len(p.conns))
	for name, c := range p.conns {
		conns[name] = c
	}
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	var firstErr error
	for name, c := range conns {
		if err := Shutdown(ctx, c); err != nil {
			p.log.Warn("shutdown request failed", "server", name, "error", err)
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
