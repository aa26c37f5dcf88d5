package bridge

import (
	"context"
	"sync"
	"time"
)

// debounceDelay is the quiet period after the last edit before a
// region's diagnostics are recomputed, matching the teacher's
// workspace-analysis debounce window.
const debounceDelay = 150 * time.Millisecond

// debounceEntry tracks one region's pending re-analysis timer and its
// cancellation handle; the entry pointer itself is the identity token
// used to detect whether a newer schedule call has replaced this one
// by the time the timer fires.
type debounceEntry struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// PublishFunc delivers a region's computed diagnostics notification to
// whichever transport the caller is using to talk back to the editor
// (forwarded as-is from the downstream server's own diagnostics, so no
// coordinate translation is performed here — callers pass an already-
// translated notify function if needed).
type PublishFunc func(regionID string, diagnostics []byte)

// AnalyzeFunc performs the actual downstream publishDiagnostics-
// equivalent work for one region: typically requesting
// textDocument/diagnostic (pull model) from the connection backing
// that region's virtual document, since most embedded-language servers
// don't proactively push diagnostics for documents opened this way.
type AnalyzeFunc func(ctx context.Context, regionID string) ([]byte, error)

// DiagnosticsManager debounces per-region re-analysis so a burst of
// keystrokes inside one embedded region triggers at most one downstream
// request per quiet period, and cancels/supersedes any in-flight
// analysis for a region that changes again before its timer fires.
//
// Grounded directly on the teacher's ScheduleAnalysis /
// AnalyzeAndPublish pair (simon-lentz/yammm's lsp/workspace.go),
// generalized from one entry per document URI to one entry per region
// ID.
type DiagnosticsManager struct {
	mu      sync.Mutex
	entries map[string]*debounceEntry

	analyze AnalyzeFunc
	publish PublishFunc
}

// NewDiagnosticsManager creates a DiagnosticsManager that calls analyze
// to produce a region's diagnostics and publish to deliver them.
func NewDiagnosticsManager(analyze AnalyzeFunc, publish PublishFunc) *DiagnosticsManager {
	return &DiagnosticsManager{
		entries: make(map[string]*debounceEntry),
		analyze: analyze,
		publish: publish,
	}
}

// Schedule debounces a re-analysis of regionID. Calling Schedule again
// for the same region before the delay elapses cancels the previous
// timer and restarts the wait.
func (m *DiagnosticsManager) Schedule(regionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[regionID]; ok {
		existing.timer.Stop()
		existing.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &debounceEntry{cancel: cancel}

	entry.timer = time.AfterFunc(debounceDelay, func() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		data, err := m.analyze(ctx, regionID)
		if err == nil {
			m.publish(regionID, data)
		}
		m.mu.Lock()
		if m.entries[regionID] == entry {
			delete(m.entries, regionID)
		}
		m.mu.Unlock()
	})

	m.entries[regionID] = entry
}

// Cancel aborts any pending analysis for regionID without scheduling a
// replacement, used when a region's virtual document closes.
func (m *DiagnosticsManager) Cancel(regionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[regionID]; ok {
		entry.timer.Stop()
		entry.cancel()
		delete(m.entries, regionID)
	}
}

// CancelAll aborts every pending analysis, used on shutdown so no
// timer fires against a connection that is about to be closed.
func (m *DiagnosticsManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for regionID, entry := range m.entries {
		entry.timer.Stop()
		entry.cancel()
		delete(m.entries, regionID)
	}
}
