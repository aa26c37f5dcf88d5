package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDocumentTracker_OpenThenChange(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	tracker := NewDocumentTracker()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uri := VirtualURI("file:///a.md", "r1", "lua")

	done := make(chan rpcEnvelope, 1)
	go func() { done <- p.serveOnce(t) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r1", uri, "lua", "print(1)"))
	env := <-done
	require.Equal(t, "textDocument/didOpen", env.Method)

	doc, ok := tracker.Lookup("r1")
	require.True(t, ok)
	require.Equal(t, 1, doc.Version, "first sync for a region must open at version 1")

	go func() { done <- p.serveOnce(t) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r1", uri, "lua", "print(2)"))
	env = <-done
	require.Equal(t, "textDocument/didChange", env.Method)

	doc, ok = tracker.Lookup("r1")
	require.True(t, ok)
	require.Equal(t, 2, doc.Version)
}

func TestDocumentTracker_Close(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	tracker := NewDocumentTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uri := VirtualURI("file:///a.md", "r1", "lua")
	done := make(chan rpcEnvelope, 1)
	go func() { done <- p.serveOnce(t) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r1", uri, "lua", "x"))
	<-done

	go func() { done <- p.serveOnce(t) }()
	require.NoError(t, tracker.Close(p.conn, "r1"))
	env := <-done
	require.Equal(t, "textDocument/didClose", env.Method)

	_, ok := tracker.Lookup("r1")
	require.False(t, ok)

	// Closing an untracked region is a no-op, not an error.
	require.NoError(t, tracker.Close(p.conn, "never-opened"))
}

func TestDocumentTracker_RegionIDs(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	tracker := NewDocumentTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, id := range []string{"r1", "r2"} {
		done := make(chan struct{})
		go func() {
			p.serveOnce(t)
			close(done)
		}()
		require.NoError(t, tracker.Sync(ctx, p.conn, "lua", id, VirtualURI("file:///a.md", id, "lua"), "lua", "x"))
		<-done
	}
	require.ElementsMatch(t, []string{"r1", "r2"}, tracker.RegionIDs())
}

func TestDocumentTracker_VersionsAreIndependentPerRegion(t *testing.T) {
	t.Parallel()
	p := newPipeConn(t)
	tracker := NewDocumentTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// r1 gets a second sync (didChange) before r2 is ever opened; r2's
	// first sync must still open at version 1, not continue r1's count.
	uri1 := VirtualURI("file:///a.md", "r1", "lua")
	done := make(chan struct{})
	go func() { p.serveOnce(t); close(done) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r1", uri1, "lua", "x"))
	<-done

	done = make(chan struct{})
	go func() { p.serveOnce(t); close(done) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r1", uri1, "lua", "y"))
	<-done

	uri2 := VirtualURI("file:///a.md", "r2", "lua")
	done = make(chan struct{})
	go func() { p.serveOnce(t); close(done) }()
	require.NoError(t, tracker.Sync(ctx, p.conn, "lua", "r2", uri2, "lua", "z"))
	<-done

	doc1, ok := tracker.Lookup("r1")
	require.True(t, ok)
	require.Equal(t, 2, doc1.Version)

	doc2, ok := tracker.Lookup("r2")
	require.True(t, ok)
	require.Equal(t, 1, doc2.Version)
}
