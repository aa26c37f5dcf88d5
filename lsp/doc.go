// Package lsp implements the bridge's own Language Server Protocol
// front end: the surface a client editor talks to, backed by
// tree-sitter syntax analysis (packages parser, position, document,
// injection, tokens, local) and forwarding to downstream per-language
// servers (package bridge) for anything syntax alone can't answer.
//
// # Architecture
//
//   - Server: protocol lifecycle (initialize/shutdown/exit) and request
//     routing.
//   - Workspace: open-document state, parsing, and dispatch between
//     purely-local analyses and bridge forwarding.
//   - Feature handlers (definition.go, hover.go, completion.go,
//     semantictokens.go, selection.go, folding.go, references.go,
//     symbols.go): one file per LSP request family.
//
// The server communicates via JSON-RPC 2.0 over stdio and implements
// LSP 3.16, assuming UTF-16 position encoding (negotiated encoding was
// introduced in LSP 3.17, which the underlying glsp library does not
// yet support).
package lsp
