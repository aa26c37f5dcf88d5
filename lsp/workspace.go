package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/bridge"
	"github.com/tendril-lsp/tendril/config"
	"github.com/tendril-lsp/tendril/document"
	"github.com/tendril-lsp/tendril/injection"
	"github.com/tendril-lsp/tendril/parser"
	"github.com/tendril-lsp/tendril/parserpool"
	"github.com/tendril-lsp/tendril/position"
	"github.com/tendril-lsp/tendril/tokens"
)

// regionState holds the host-URI-scoped analysis artifacts for one
// detected injection region: its own parsed tree (when a grammar for
// its language is available) and the content bytes that tree was
// parsed from.
type regionState struct {
	region injection.Region
	tree   *tree_sitter.Tree
	text   []byte
}

// regionMeta records the host URI and coordinate frame a region
// belongs to, so the diagnostics debounce callbacks (which only carry
// a region ID) can translate and address their published notification.
type regionMeta struct {
	hostURI string
	frame   bridge.RegionFrame
}

// Workspace owns every open document's syntax analysis state and the
// downstream language-server connections that back cross-language
// requests. One Workspace serves the whole process; documents across
// different URIs never block each other beyond the document pool's
// single parsing mutex.
//
// Grounded on the teacher's Workspace (simon-lentz/yammm's
// lsp/workspace.go), keeping its root-set/document-map/notify-hook
// shape but replacing its YAMMM-schema analysis pipeline with
// tree-sitter parsing, injection detection, and bridge forwarding.
type Workspace struct {
	log *slog.Logger
	cfg config.Config

	loader  *parser.Loader
	queries *parser.Store
	docs    *document.Store

	parseMu sync.Mutex
	docPool *parserpool.DocumentPool

	concurrency *parserpool.ConcurrentPool
	tokenEngine *tokens.Engine

	regionsMu sync.RWMutex
	regions   map[string][]regionState // host URI -> current regions
	regionMap map[string]regionMeta    // region ID -> host URI and coordinate frame

	injections *injection.Tracker
	virtual    *bridge.DocumentTracker
	servers    *bridge.Pool
	diagnosed  *bridge.DiagnosticsManager

	rootsMu sync.Mutex
	roots   map[string]struct{}

	genMu sync.Mutex
	gen   map[string]uint64

	notifyMu sync.RWMutex
	notify   func(method string, params any)

	closeOnce sync.Once
}

// NewWorkspace creates a Workspace backed by cfg.
func NewWorkspace(logger *slog.Logger, cfg config.Config) *Workspace {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("component", "workspace"))

	searchPaths := make([]parser.SearchPath, 0, len(cfg.GrammarSearchPaths))
	for _, dir := range cfg.GrammarSearchPaths {
		searchPaths = append(searchPaths, parser.SearchPath{Dir: dir})
	}
	loader := parser.NewLoader(searchPaths)
	queries := parser.NewStore()
	for _, err := range parser.LoadBuiltins(queries, loader) {
		log.Warn("builtin query load failed", slog.Any("error", err))
	}

	legends := make(map[string]tokens.Legend)
	legend := tokens.NewDefaultLegend()
	for _, lang := range []string{"json", "yaml", "lua", "go", "markdown", "rust"} {
		legends[lang] = legend
	}

	concurrency := parserpool.NewConcurrentPool(cfg.Bridge.MaxConcurrentRegions)

	w := &Workspace{
		log:         log,
		cfg:         cfg,
		loader:      loader,
		queries:     queries,
		docs:        document.NewStore(),
		docPool:     parserpool.NewDocumentPool(loader),
		concurrency: concurrency,
		tokenEngine: tokens.NewEngine(queries, concurrency, legends),
		regions:     make(map[string][]regionState),
		regionMap:   make(map[string]regionMeta),
		injections:  injection.NewTracker(),
		virtual:     bridge.NewDocumentTracker(),
		servers:     bridge.NewPool(buildServerSpecs(cfg), bridge.InitializeParams{}, time.Duration(cfg.Bridge.HandshakeTimeoutSeconds)*time.Second, log),
		roots:       make(map[string]struct{}),
		gen:         make(map[string]uint64),
	}
	w.diagnosed = bridge.NewDiagnosticsManager(w.analyzeRegion, w.publishRegionDiagnostics)
	return w
}

func buildServerSpecs(cfg config.Config) []bridge.ServerSpec {
	specs := make([]bridge.ServerSpec, 0, len(cfg.LanguageServers))
	for name, sc := range cfg.LanguageServers {
		specs = append(specs, bridge.ServerSpec{Name: name, Command: sc.Command, Args: sc.Args, Env: sc.Env})
	}
	return specs
}

// SetNotifier installs the function the workspace uses to push
// asynchronous notifications (diagnostics) back to the client. The
// glsp connection's Notify closure remains valid for the connection's
// whole lifetime, so the server installs it once, from the first
// request it handles, rather than threading a *glsp.Context through
// every background task.
func (w *Workspace) SetNotifier(fn func(method string, params any)) {
	w.notifyMu.Lock()
	w.notify = fn
	w.notifyMu.Unlock()
}

func (w *Workspace) emit(method string, params any) {
	w.notifyMu.RLock()
	fn := w.notify
	w.notifyMu.RUnlock()
	if fn != nil {
		fn(method, params)
	}
}

// AddRoot registers a workspace folder root.
func (w *Workspace) AddRoot(uri string) {
	w.rootsMu.Lock()
	w.roots[uri] = struct{}{}
	w.rootsMu.Unlock()
}

// RemoveRoot unregisters a workspace folder root.
func (w *Workspace) RemoveRoot(uri string) {
	w.rootsMu.Lock()
	delete(w.roots, uri)
	w.rootsMu.Unlock()
}

// DocumentOpened records uri's initial text and runs the first parse.
func (w *Workspace) DocumentOpened(uri string, version int, languageID string, text string) {
	language := languageFromExtension(uri, languageID)
	w.docs.Insert(uri, version, language, []byte(text))
	w.reparseFull(context.Background(), uri)
}

// DocumentChanged applies a batch of range edits (LSP incremental sync)
// to uri, reparsing incrementally from the previously edited tree when
// one exists, and falling back to a full parse otherwise (first change
// after open, or a prior parse failure).
func (w *Workspace) DocumentChanged(ctx context.Context, uri string, version int, changes []document.RangeChange) {
	snap, ok := w.docs.Get(uri)
	if !ok {
		w.log.Warn("didChange for unknown document", slog.String("uri", uri))
		return
	}

	newText, edits, ok := document.ApplyRangeEdits(snap.Text, changes)
	if !ok {
		w.log.Warn("incremental edit application failed, dropping changes", slog.String("uri", uri))
		return
	}

	w.parseMu.Lock()
	ps, err := w.docPool.Acquire(snap.Language)
	if err != nil {
		w.parseMu.Unlock()
		w.log.Warn("no grammar for language", slog.String("uri", uri), slog.String("language", snap.Language), slog.Any("error", err))
		w.docs.UpdateText(uri, version, newText)
		return
	}
	edited := w.docs.GetEditedTree(uri, edits)
	newTree := ps.Parse(newText, edited)
	w.docPool.Release(snap.Language, ps)
	w.parseMu.Unlock()

	w.docs.UpdateTree(uri, newText, version, newTree)
	w.reanalyze(ctx, uri, newTree, newText, snap.Language)
}

// DocumentClosed tears down every resource the closed document's
// regions held: virtual documents on downstream servers, pending
// diagnostics, and cached region trees.
func (w *Workspace) DocumentClosed(uri string) {
	w.regionsMu.Lock()
	states := w.regions[uri]
	delete(w.regions, uri)
	w.regionsMu.Unlock()

	for _, rs := range states {
		if rs.tree != nil {
			rs.tree.Close()
		}
	}

	for _, id := range w.injections.Forget(uri) {
		w.diagnosed.Cancel(id)
		w.regionsMu.Lock()
		delete(w.regionMap, id)
		w.regionsMu.Unlock()
		if name, ok := w.virtual.ServerFor(id); ok {
			if conn, err := w.servers.Acquire(context.Background(), name); err == nil {
				w.virtual.Close(conn, id)
			}
		}
	}

	w.tokenEngine.Forget(uri)
	w.docs.Remove(uri)
}

func (w *Workspace) reparseFull(ctx context.Context, uri string) {
	snap, ok := w.docs.Get(uri)
	if !ok {
		return
	}
	w.parseMu.Lock()
	ps, err := w.docPool.Acquire(snap.Language)
	if err != nil {
		w.parseMu.Unlock()
		w.log.Warn("no grammar for language", slog.String("uri", uri), slog.String("language", snap.Language), slog.Any("error", err))
		return
	}
	tree := ps.Parse(snap.Text, nil)
	w.docPool.Release(snap.Language, ps)
	w.parseMu.Unlock()

	w.docs.UpdateTree(uri, snap.Text, snap.Version, tree)
	w.reanalyze(ctx, uri, tree, snap.Text, snap.Language)
}

// reanalyze re-detects injection regions against the freshly (re)parsed
// host tree, pairs them against the tracker for stable IDs, mirrors
// live regions to their downstream servers, and schedules debounced
// diagnostics for each.
func (w *Workspace) reanalyze(ctx context.Context, uri string, tree *tree_sitter.Tree, text []byte, language string) {
	if tree == nil {
		return
	}
	root := tree.RootNode()
	mapper := position.NewMapper(text)

	injQuery := w.queries.Get(language, parser.Injections)
	preds := w.queries.Predicates(language)
	detected := injection.Detect(injQuery, preds, *root, text, mapper)

	pairing := w.injections.Pair(uri, detected)

	states := make([]regionState, 0, len(pairing.Regions))
	metas := make(map[string]regionMeta, len(pairing.Regions))
	for _, r := range pairing.Regions {
		rs := regionState{region: r, text: text[r.ContentStartByte:r.ContentEndByte]}
		if w.loader.Available(r.Language) {
			w.parseMu.Lock()
			if ps, err := w.docPool.Acquire(r.Language); err == nil {
				rs.tree = ps.Parse(rs.text, nil)
				w.docPool.Release(r.Language, ps)
			}
			w.parseMu.Unlock()
		}
		states = append(states, rs)

		startCol := 0
		if p, ok := mapper.ByteToPosition(int(r.ContentStartByte)); ok {
			startCol = p.Character
		}
		metas[r.ID] = regionMeta{
			hostURI: uri,
			frame: bridge.RegionFrame{
				RegionID:   r.ID,
				VirtualURI: bridge.VirtualURI(uri, r.ID, r.Language),
				StartLine:  r.StartLine,
				StartCol:   startCol,
			},
		}
	}

	w.regionsMu.Lock()
	old := w.regions[uri]
	w.regions[uri] = states
	for id, m := range metas {
		w.regionMap[id] = m
	}
	for _, id := range pairing.Invalidated {
		delete(w.regionMap, id)
	}
	w.regionsMu.Unlock()
	for _, rs := range old {
		if rs.tree != nil {
			rs.tree.Close()
		}
	}

	for _, id := range pairing.Invalidated {
		w.diagnosed.Cancel(id)
		if name, ok := w.virtual.ServerFor(id); ok {
			if conn, err := w.servers.Acquire(ctx, name); err == nil {
				w.virtual.Close(conn, id)
			}
		}
	}

	for _, rs := range states {
		w.syncRegion(ctx, uri, rs.region)
	}
}

// syncRegion mirrors one region's content to its configured downstream
// server as a virtual document and schedules a debounced diagnostics
// pass, if any server is configured for its language.
func (w *Workspace) syncRegion(ctx context.Context, hostURI string, r injection.Region) {
	name, ok := w.serverNameFor(r.Language)
	if !ok {
		return
	}
	conn, err := w.servers.Acquire(ctx, name)
	if err != nil {
		w.log.Debug("downstream server unavailable", slog.String("server", name), slog.Any("error", err))
		return
	}

	snap, ok := w.docs.Get(hostURI)
	if !ok {
		return
	}
	content := string(snap.Text[r.ContentStartByte:r.ContentEndByte])
	virtualURI := bridge.VirtualURI(hostURI, r.ID, r.Language)

	if err := w.virtual.Sync(ctx, conn, name, r.ID, virtualURI, r.Language, content); err != nil {
		w.log.Warn("virtual document sync failed", slog.String("region", r.ID), slog.Any("error", err))
		return
	}
	w.diagnosed.Schedule(r.ID)
}

// serverNameFor resolves the pool spec name backing language, honoring
// the "_" wildcard fallback the same way config.ServerFor does.
func (w *Workspace) serverNameFor(language string) (string, bool) {
	if _, ok := w.cfg.LanguageServers[language]; ok {
		return language, true
	}
	if _, ok := w.cfg.LanguageServers["_"]; ok {
		return "_", true
	}
	return "", false
}

// ServerNameFor exposes serverNameFor for feature handlers that need to
// acquire a downstream connection directly (completion merging,
// analyzeRegion-adjacent forwarding).
func (w *Workspace) ServerNameFor(language string) (string, bool) {
	return w.serverNameFor(language)
}

func (w *Workspace) analyzeRegion(ctx context.Context, regionID string) ([]byte, error) {
	name, ok := w.virtual.ServerFor(regionID)
	if !ok {
		return nil, fmt.Errorf("no virtual document open for region %s", regionID)
	}
	doc, ok := w.virtual.Lookup(regionID)
	if !ok {
		return nil, fmt.Errorf("no virtual document open for region %s", regionID)
	}
	conn, err := w.servers.Acquire(ctx, name)
	if err != nil {
		return nil, err
	}
	return conn.Call(ctx, "textDocument/diagnostic", map[string]any{
		"textDocument": map[string]string{"uri": doc.URI},
	})
}

// publishRegionDiagnostics rewrites a region's downstream diagnostic
// ranges into host-document coordinates and forwards them as a
// standard textDocument/publishDiagnostics notification against the
// host URI, since the client never opened the virtual document the
// downstream server actually diagnosed.
func (w *Workspace) publishRegionDiagnostics(regionID string, diagnostics []byte) {
	w.regionsMu.RLock()
	meta, ok := w.regionMap[regionID]
	w.regionsMu.RUnlock()
	if !ok {
		return
	}

	var report struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(diagnostics, &report); err != nil {
		w.log.Warn("decode region diagnostics failed", slog.String("region", regionID), slog.Any("error", err))
		return
	}

	translated := make([]json.RawMessage, 0, len(report.Items))
	for _, raw := range report.Items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			continue
		}
		var rng position.Range
		if rawRange, ok := fields["range"]; ok {
			if err := json.Unmarshal(rawRange, &rng); err == nil {
				rng.Start = meta.frame.ToHost(rng.Start)
				rng.End = meta.frame.ToHost(rng.End)
				if b, err := json.Marshal(rng); err == nil {
					fields["range"] = b
				}
			}
		}
		if b, err := json.Marshal(fields); err == nil {
			translated = append(translated, b)
		}
	}

	w.emit("textDocument/publishDiagnostics", map[string]any{
		"uri":         meta.hostURI,
		"diagnostics": translated,
	})
}

// Snapshot returns the current document snapshot for uri.
func (w *Workspace) Snapshot(uri string) (document.Snapshot, bool) {
	return w.docs.Get(uri)
}

// Regions returns the currently detected injection regions for uri.
func (w *Workspace) Regions(uri string) []injection.Region {
	w.regionsMu.RLock()
	defer w.regionsMu.RUnlock()
	states := w.regions[uri]
	out := make([]injection.Region, 0, len(states))
	for _, rs := range states {
		out = append(out, rs.region)
	}
	return out
}

// RegionTree returns the parsed tree and content bytes for regionID
// within uri, if one is cached.
func (w *Workspace) RegionTree(uri, regionID string) (*tree_sitter.Tree, []byte, bool) {
	w.regionsMu.RLock()
	defer w.regionsMu.RUnlock()
	for _, rs := range w.regions[uri] {
		if rs.region.ID == regionID {
			return rs.tree, rs.text, rs.tree != nil
		}
	}
	return nil, nil, false
}

// FrameFor returns the coordinate frame for regionID, if it is
// currently tracked.
func (w *Workspace) FrameFor(regionID string) (bridge.RegionFrame, bool) {
	w.regionsMu.RLock()
	defer w.regionsMu.RUnlock()
	meta, ok := w.regionMap[regionID]
	if !ok {
		return bridge.RegionFrame{}, false
	}
	return meta.frame, true
}

// RegionAt returns the region covering pos in uri's current region set,
// and its coordinate frame, if pos falls within one. Regions never
// overlap, so at most one can match.
func (w *Workspace) RegionAt(uri string, pos position.Position) (injection.Region, bridge.RegionFrame, bool) {
	w.regionsMu.RLock()
	defer w.regionsMu.RUnlock()
	for _, rs := range w.regions[uri] {
		if pos.Line < rs.region.StartLine || pos.Line > rs.region.EndLine {
			continue
		}
		meta, ok := w.regionMap[rs.region.ID]
		if !ok {
			continue
		}
		if _, inside := meta.frame.ToRegion(pos); inside {
			return rs.region, meta.frame, true
		}
	}
	return injection.Region{}, bridge.RegionFrame{}, false
}

// TokenSources assembles the semantic-token engine's input for uri: the
// host document's own tree plus one Source per region whose content was
// parsed with an available grammar, each carrying the line/column
// offset needed to translate its tokens back into host coordinates.
func (w *Workspace) TokenSources(uri string) ([]tokens.Source, bool) {
	snap, ok := w.docs.Get(uri)
	if !ok || snap.Tree == nil {
		return nil, false
	}
	sources := []tokens.Source{{Tree: snap.Tree, Text: snap.Text, Language: snap.Language}}

	w.regionsMu.RLock()
	defer w.regionsMu.RUnlock()
	for _, rs := range w.regions[uri] {
		if rs.tree == nil {
			continue
		}
		meta, ok := w.regionMap[rs.region.ID]
		if !ok {
			continue
		}
		sources = append(sources, tokens.Source{
			Tree:         rs.tree,
			Text:         rs.text,
			Language:     rs.region.Language,
			LineOffset:   meta.frame.StartLine,
			ColumnOffset: meta.frame.StartCol,
		})
	}
	return sources, true
}

// Queries exposes the compiled query store for provider files that need
// direct access (locals, selection, folding).
func (w *Workspace) Queries() *parser.Store { return w.queries }

// Servers exposes the downstream language-server pool for forwarders.
func (w *Workspace) Servers() *bridge.Pool { return w.servers }

// Virtual exposes the virtual document tracker for forwarders.
func (w *Workspace) Virtual() *bridge.DocumentTracker { return w.virtual }

// NextTokenGeneration hands out the next semantic-token request
// generation for uri, for supersession tracking.
func (w *Workspace) NextTokenGeneration(uri string) uint64 {
	w.genMu.Lock()
	defer w.genMu.Unlock()
	w.gen[uri]++
	return w.gen[uri]
}

// TokenEngine exposes the semantic token engine for the
// semanticTokens provider.
func (w *Workspace) TokenEngine() *tokens.Engine { return w.tokenEngine }

// Shutdown cancels all pending background work without closing
// downstream connections, so in-flight requests can still complete
// before Close tears everything down.
func (w *Workspace) Shutdown() {
	w.diagnosed.CancelAll()
}

// Close releases every resource the workspace owns: downstream server
// connections, cached parsers, and region trees. Idempotent.
func (w *Workspace) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.diagnosed.CancelAll()
		err = w.servers.CloseAll(context.Background())
		w.docPool.Close()

		w.regionsMu.Lock()
		for _, states := range w.regions {
			for _, rs := range states {
				if rs.tree != nil {
					rs.tree.Close()
				}
			}
		}
		w.regions = nil
		w.regionsMu.Unlock()
	})
	return err
}
