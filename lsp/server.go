package lsp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	// commonlog is a required dependency of github.com/tliron/glsp.
	// We silence it in NewServer() via commonlog.Configure(0, nil) because
	// this server uses slog for all logging. The blank import of the "simple"
	// backend is required by glsp at runtime.
	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"github.com/tliron/glsp/server"

	_ "github.com/tliron/commonlog/simple" // required backend for glsp

	"github.com/tendril-lsp/tendril/config"
	"github.com/tendril-lsp/tendril/document"
	"github.com/tendril-lsp/tendril/position"
	"github.com/tendril-lsp/tendril/tokens"
)

const serverName = "tendril-lsp"

// Server is the bridge's own LSP front end: protocol lifecycle and
// request routing, backed by a Workspace.
type Server struct {
	logger    *slog.Logger
	handler   protocol.Handler
	server    *server.Server
	workspace *Workspace

	shutdownCalled bool

	closeOnce sync.Once
	closeErr  error
}

// NewServer creates a Server backed by cfg. If logger is nil,
// slog.Default() is used.
func NewServer(logger *slog.Logger, cfg config.Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		logger:    logger.With(slog.String("component", "server")),
		workspace: NewWorkspace(logger, cfg),
	}

	// Silence commonlog - glsp uses it internally but we use slog for all logging.
	commonlog.Configure(0, nil)

	s.handler = protocol.Handler{
		Initialize:    s.initialize,
		Initialized:   s.initialized,
		Shutdown:      s.shutdown,
		Exit:          s.exit,
		SetTrace:      s.setTrace,
		CancelRequest: s.cancelRequest,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentDefinition:              s.textDocumentDefinition,
		TextDocumentReferences:              s.textDocumentReferences,
		TextDocumentHover:                   s.textDocumentHover,
		TextDocumentCompletion:              s.textDocumentCompletion,
		TextDocumentDocumentSymbol:          s.textDocumentDocumentSymbol,
		TextDocumentSemanticTokensFull:      s.textDocumentSemanticTokensFull,
		TextDocumentSemanticTokensFullDelta: s.textDocumentSemanticTokensFullDelta,
		TextDocumentFoldingRange:            s.textDocumentFoldingRange,
		TextDocumentSelectionRange:          s.textDocumentSelectionRange,

		WorkspaceDidChangeWatchedFiles:     s.workspaceDidChangeWatchedFiles,
		WorkspaceDidChangeWorkspaceFolders: s.workspaceDidChangeWorkspaceFolders,
	}

	s.server = server.NewServer(&s.handler, serverName, false)

	return s
}

// Handler returns the protocol handler for testing purposes.
func (s *Server) Handler() *protocol.Handler {
	return &s.handler
}

// RunStdio runs the server using stdio transport.
func (s *Server) RunStdio() error {
	if err := s.server.RunStdio(); err != nil {
		return fmt.Errorf("run stdio: %w", err)
	}
	return nil
}

// Shutdown initiates graceful server shutdown, cancelling pending
// background workspace operations.
func (s *Server) Shutdown() {
	s.logger.Info("initiating shutdown")
	s.workspace.Shutdown()
}

// Close closes the JSON-RPC connection, causing RunStdio to return, and
// releases every downstream connection the workspace owns.
//
// Close is idempotent: multiple calls return the same result and do not
// panic. It is safe to call before RunStdio (returns nil if the
// connection is not yet initialized).
func (s *Server) Close() error {
	conn := s.server.GetStdio()
	s.closeOnce.Do(func() {
		if conn != nil {
			if err := conn.Close(); err != nil {
				s.closeErr = fmt.Errorf("close connection: %w", err)
			}
		}
		if err := s.workspace.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// initialize handles the initialize request.
func (s *Server) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.logger.Info("initialize request received",
		slog.String("client_name", s.clientName(params)),
		slog.String("root_uri", s.rootURI(params)),
	)
	s.logClientCapabilities(params.Capabilities)

	if ctx != nil {
		s.workspace.SetNotifier(func(method string, notifyParams any) { ctx.Notify(method, notifyParams) })
	}

	switch {
	case params.WorkspaceFolders != nil:
		for _, folder := range params.WorkspaceFolders {
			s.workspace.AddRoot(folder.URI)
			s.logger.Debug("workspace folder", slog.String("uri", folder.URI))
		}
	case params.RootURI != nil:
		s.workspace.AddRoot(*params.RootURI)
	case params.RootPath != nil:
		s.workspace.AddRoot(PathToURI(*params.RootPath))
	}

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	if syncOpts, ok := capabilities.TextDocumentSync.(*protocol.TextDocumentSyncOptions); ok {
		syncOpts.Change = &syncKind
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{".", "/"},
	}

	deltaSupported := true
	capabilities.SemanticTokensProvider = &protocol.SemanticTokensOptions{
		Legend: protocol.SemanticTokensLegend{
			TokenTypes:     tokens.DefaultCaptureTypes,
			TokenModifiers: []string{},
		},
		Full: protocol.SemanticTokensOptionsFull{Delta: &deltaSupported},
	}

	version := "dev"
	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    serverName,
			Version: &version,
		},
	}, nil
}

// initialized handles the initialized notification.
func (s *Server) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	s.logger.Info("server initialized")
	return nil
}

// shutdown handles the shutdown request.
func (s *Server) shutdown(ctx *glsp.Context) error {
	s.logger.Info("shutdown request received")
	s.shutdownCalled = true
	s.workspace.Shutdown()
	protocol.SetTraceValue(protocol.TraceValueOff)
	return nil
}

// exit handles the exit notification per LSP spec. Exit code is 0 if
// shutdown was called first, 1 otherwise.
func (s *Server) exit(_ *glsp.Context) error {
	exitCode := 0
	if !s.shutdownCalled {
		s.logger.Warn("exit called without shutdown")
		exitCode = 1
	}
	s.logger.Info("exit notification received", slog.Int("exit_code", exitCode))
	os.Exit(exitCode)
	return nil // unreachable
}

// setTrace handles the $/setTrace notification.
func (s *Server) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	s.logger.Debug("setTrace", slog.String("value", string(params.Value)))
	protocol.SetTraceValue(params.Value)
	return nil
}

// cancelRequest handles the $/cancelRequest notification. The glsp
// library handles JSON-RPC level cancellation; this hook exists for
// additional bookkeeping should it become necessary.
func (s *Server) cancelRequest(ctx *glsp.Context, params *protocol.CancelParams) error {
	s.logger.Debug("cancelRequest", slog.Any("id", params.ID))
	return nil
}

// textDocumentDidOpen handles textDocument/didOpen.
func (s *Server) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.logger.Debug("textDocument/didOpen",
		slog.String("uri", uri),
		slog.Int("version", int(params.TextDocument.Version)),
	)
	s.workspace.DocumentOpened(uri, int(params.TextDocument.Version), params.TextDocument.LanguageID, params.TextDocument.Text)
	return nil
}

// textDocumentDidChange handles textDocument/didChange.
func (s *Server) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.logger.Debug("textDocument/didChange",
		slog.String("uri", uri),
		slog.Int("version", int(params.TextDocument.Version)),
	)

	changes := make([]document.RangeChange, 0, len(params.ContentChanges))
	for _, raw := range params.ContentChanges {
		if change, ok := raw.(protocol.TextDocumentContentChangeEvent); ok && change.Range != nil {
			changes = append(changes, document.RangeChange{
				Range: toPositionRange(*change.Range),
				Text:  change.Text,
			})
			continue
		}
		if whole, ok := raw.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.workspace.DocumentOpened(uri, int(params.TextDocument.Version), "", whole.Text)
			return nil
		}
	}
	if len(changes) == 0 {
		return nil
	}

	bg := context.Background()
	s.workspace.DocumentChanged(bg, uri, int(params.TextDocument.Version), changes)
	return nil
}

// textDocumentDidClose handles textDocument/didClose.
func (s *Server) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.logger.Debug("textDocument/didClose", slog.String("uri", uri))
	s.workspace.DocumentClosed(uri)
	return nil
}

// workspaceDidChangeWatchedFiles handles workspace/didChangeWatchedFiles.
func (s *Server) workspaceDidChangeWatchedFiles(ctx *glsp.Context, params *protocol.DidChangeWatchedFilesParams) error {
	for _, change := range params.Changes {
		s.logger.Debug("watched file changed",
			slog.String("uri", change.URI),
			slog.Int("type", int(change.Type)),
		)
	}
	return nil
}

// workspaceDidChangeWorkspaceFolders handles
// workspace/didChangeWorkspaceFolders.
func (s *Server) workspaceDidChangeWorkspaceFolders(ctx *glsp.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	for _, folder := range params.Event.Removed {
		s.logger.Debug("workspace folder removed", slog.String("uri", folder.URI))
		s.workspace.RemoveRoot(folder.URI)
	}
	for _, folder := range params.Event.Added {
		s.logger.Debug("workspace folder added", slog.String("uri", folder.URI))
		s.workspace.AddRoot(folder.URI)
	}
	return nil
}

// toPositionRange converts a glsp protocol Range into the bridge's own
// position.Range, the coordinate type every internal package shares.
func toPositionRange(r protocol.Range) position.Range {
	return position.Range{
		Start: position.Position{Line: int(r.Start.Line), Character: int(r.Start.Character)},
		End:   position.Position{Line: int(r.End.Line), Character: int(r.End.Character)},
	}
}

func fromPositionRange(r position.Range) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(r.Start.Line), Character: uint32(r.Start.Character)},
		End:   protocol.Position{Line: uint32(r.End.Line), Character: uint32(r.End.Character)},
	}
}

func fromPosition(p position.Position) protocol.Position {
	return protocol.Position{Line: uint32(p.Line), Character: uint32(p.Character)}
}

func toPosition(p protocol.Position) position.Position {
	return position.Position{Line: int(p.Line), Character: int(p.Character)}
}

// Helper functions

func (s *Server) clientName(params *protocol.InitializeParams) string {
	if params.ClientInfo != nil {
		if params.ClientInfo.Version != nil {
			return params.ClientInfo.Name + " " + *params.ClientInfo.Version
		}
		return params.ClientInfo.Name
	}
	return "unknown"
}

func (s *Server) rootURI(params *protocol.InitializeParams) string {
	if params.RootURI != nil {
		return *params.RootURI
	}
	return ""
}

func (s *Server) logClientCapabilities(caps protocol.ClientCapabilities) {
	var features []string

	if caps.TextDocument != nil {
		if caps.TextDocument.Completion != nil {
			features = append(features, "completion")
		}
		if caps.TextDocument.Hover != nil {
			features = append(features, "hover")
			if caps.TextDocument.Hover.ContentFormat != nil &&
				slices.Contains(caps.TextDocument.Hover.ContentFormat, protocol.MarkupKindMarkdown) {
				features = append(features, "hover-markdown")
			}
		}
		if caps.TextDocument.Definition != nil {
			features = append(features, "definition")
		}
		if caps.TextDocument.DocumentSymbol != nil {
			features = append(features, "document-symbol")
		}
		if caps.TextDocument.SemanticTokens != nil {
			features = append(features, "semantic-tokens")
		}
	}

	s.logger.Info("client capabilities", slog.Any("features", features))
}
