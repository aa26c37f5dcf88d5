package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// VirtualDoc is one injection region mirrored to a downstream server as
// a synthetic open document so that server can analyze it in isolation.
type VirtualDoc struct {
	URI      string // synthetic URI, e.g. "tendril-virtual://r3/file:///a.md.lua"
	Language string
	Version  int
}

// virtualState tracks the lifecycle of one virtual document: (a) not
// yet opened, (b) open at some version, (c) updated in place via
// didChange as its content changes without its identity changing, or
// (d) closed and its URI released once its backing region disappears.
type virtualState struct {
	doc     VirtualDoc
	server  string
}

// DocumentTracker manages virtual document lifecycles, keyed by the
// stable region ID the injection package assigns, so that re-detecting
// the "same" region after an edit updates the existing virtual document
// instead of opening a duplicate.
//
// Grounded on the teacher's per-URI document map discipline
// (simon-lentz/yammm's lsp/workspace.go Documents map): a single map
// keyed by region ID, where each entry records the one downstream
// server its region is mirrored to.
type DocumentTracker struct {
	mu    sync.Mutex
	byID  map[string]*virtualState // regionID -> state
}

// NewDocumentTracker creates an empty DocumentTracker.
func NewDocumentTracker() *DocumentTracker {
	return &DocumentTracker{byID: make(map[string]*virtualState)}
}

// Sync opens or updates the virtual document for regionID on server,
// based on whether it already exists. The first
// Sync for a regionID opens it at version 1; every subsequent Sync
// increments that region's own version counter and sends a didChange —
// each (virtual URI, server) pair owns its version sequence
// independently of every other region's. The caller supplies text each
// time; Sync does not itself diff against sent content, so passing
// identical text on every call is the caller's responsibility to avoid
// redundant didChange notifications (not incorrect, just wasteful).
func (t *DocumentTracker) Sync(ctx context.Context, conn *Connection, server, regionID, uri, language, text string) error {
	t.mu.Lock()
	st, existed := t.byID[regionID]
	if !existed {
		st = &virtualState{doc: VirtualDoc{URI: uri, Language: language, Version: 1}, server: server}
		t.byID[regionID] = st
		t.mu.Unlock()
		return conn.Notify("textDocument/didOpen", didOpenParams{
			TextDocument: textDocumentItem{URI: uri, LanguageID: language, Version: 1, Text: text},
		})
	}
	st.doc.Version++
	version := st.doc.Version
	t.mu.Unlock()

	return conn.Notify("textDocument/didChange", didChangeParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: uri, Version: version},
		ContentChanges: []rawChangeEvent{{Text: text}},
	})
}

// Close closes the virtual document backing regionID, if one exists,
// notifying its server and dropping the tracked state.
func (t *DocumentTracker) Close(conn *Connection, regionID string) error {
	t.mu.Lock()
	st, ok := t.byID[regionID]
	if ok {
		delete(t.byID, regionID)
	}
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Notify("textDocument/didClose", didCloseParams{
		TextDocument: textDocumentIdentifier{URI: st.doc.URI},
	})
}

// Lookup returns the virtual document tracked for regionID, if any.
func (t *DocumentTracker) Lookup(regionID string) (VirtualDoc, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byID[regionID]
	if !ok {
		return VirtualDoc{}, false
	}
	return st.doc, true
}

// ServerFor returns the downstream server name backing regionID's
// virtual document, if one is open.
func (t *DocumentTracker) ServerFor(regionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.byID[regionID]
	if !ok {
		return "", false
	}
	return st.server, true
}

// RegionIDs returns every region ID currently backed by an open virtual
// document.
func (t *DocumentTracker) RegionIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byID))
	for id := range t.byID {
		out = append(out, id)
	}
	return out
}

// virtualScheme is the URI scheme every synthetic virtual document uses.
const virtualScheme = "tendril-virtual://"

// VirtualURI derives a synthetic URI for a region, stable for the life
// of that region ID so downstream server caches keyed by URI stay
// valid across edits that don't change the region's identity.
func VirtualURI(hostURI, regionID, language string) string {
	return fmt.Sprintf("%s%s/%s.%s", virtualScheme, regionID, hostURI, language)
}

// isVirtualURI reports whether uri is one of our own synthetic virtual
// document URIs rather than a real file the client or a downstream
// server can resolve on its own.
func isVirtualURI(uri string) bool {
	return strings.HasPrefix(uri, virtualScheme)
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type rawChangeEvent struct {
	Text string `json:"text"`
}

type didOpenParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeParams struct {
	TextDocument   versionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []rawChangeEvent                `json:"contentChanges"`
}

type didCloseParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}
