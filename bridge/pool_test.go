package bridge

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoServerScript is a minimal shell-based stand-in for a downstream
// language server: it answers the first request it receives (assumed
// to be initialize) with a canned result, then echoes every
// Content-Length-framed request it reads back as that request's
// response with an empty result, forever. Good enough to exercise the
// Pool's spawn/handshake/reuse logic without a real LSP binary.
const echoServerScript = `
read_frame() {
  local len=0
  while IFS= read -r line; do
    line="${line%$'\r'}"
    [ -z "$line" ] && break
    case "$line" in
      Content-Length:*) len="${line#Content-Length: }" ;;
    esac
  done
  dd bs=1 count="$len" 2>/dev/null
}
write_frame() {
  printf 'Content-Length: %d\r\n\r\n%s' "${#1}" "$1"
}
while body=$(read_frame); [ -n "$body" ]; do
  id=$(echo "$body" | sed -n 's/.*"id":\("[^"]*"\|[0-9]*\).*/\1/p')
  write_frame "{\"jsonrpc\":\"2.0\",\"id\":${id},\"result\":{}}"
done
`

func TestPool_AcquireSpawnsAndReuses(t *testing.T) {
	t.Parallel()
	pool := NewPool([]ServerSpec{
		{Name: "lua", Command: "sh", Args: []string{"-c", echoServerScript}},
	}, InitializeParams{}, 5*time.Second, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn1, err := pool.Acquire(ctx, "lua")
	require.NoError(t, err)
	require.Equal(t, StateReady, conn1.State())

	conn2, err := pool.Acquire(ctx, "lua")
	require.NoError(t, err)
	require.Same(t, conn1, conn2, "a ready connection must be reused rather than respawned")

	require.NoError(t, pool.CloseAll(ctx))
}

func TestPool_AcquireFailsFastWhileInitializing(t *testing.T) {
	t.Parallel()
	// sleeps before answering initialize, long enough that a concurrent
	// Acquire is certain to observe the in-flight creation rather than
	// race past it.
	slowServerScript := `sleep 2
` + echoServerScript
	pool := NewPool([]ServerSpec{
		{Name: "lua", Command: "sh", Args: []string{"-c", slowServerScript}},
	}, InitializeParams{}, 5*time.Second, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = pool.Acquire(ctx, "lua")
	}()

	require.Eventually(t, func() bool {
		p := pool
		p.mu.Lock()
		_, creating := p.inflight["lua"]
		p.mu.Unlock()
		return creating
	}, time.Second, 10*time.Millisecond, "first Acquire should mark the server in-flight")

	_, err := pool.Acquire(ctx, "lua")
	require.Error(t, err)
	require.ErrorAs(t, err, new(errInitializing))

	<-done
	require.NoError(t, pool.CloseAll(ctx))
}

func TestPool_HandshakeTimeout(t *testing.T) {
	t.Parallel()
	// never answers initialize.
	pool := NewPool([]ServerSpec{
		{Name: "lua", Command: "sh", Args: []string{"-c", "sleep 5"}},
	}, InitializeParams{}, 50*time.Millisecond, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := pool.Acquire(ctx, "lua")
	require.Error(t, err)
}

func TestPool_UnknownServer(t *testing.T) {
	t.Parallel()
	pool := NewPool(nil, InitializeParams{}, 5*time.Second, slog.Default())
	_, err := pool.Acquire(context.Background(), "missing")
	require.Error(t, err)
}

func TestPool_RespawnAfterReturn(t *testing.T) {
	t.Parallel()
	pool := NewPool([]ServerSpec{
		{Name: "lua", Command: "sh", Args: []string{"-c", echoServerScript}},
	}, InitializeParams{}, 5*time.Second, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn1, err := pool.Acquire(ctx, "lua")
	require.NoError(t, err)

	pool.Return("lua", conn1)
	conn2, err := pool.Acquire(ctx, "lua")
	require.NoError(t, err)
	require.NotSame(t, conn1, conn2, "Return must force the next Acquire to respawn")

	require.NoError(t, pool.CloseAll(ctx))
}
