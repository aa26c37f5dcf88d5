// Package tendril implements a Language Server Protocol bridge: a
// tree-sitter-backed front end (syntax highlighting, local goto,
// folding, selection) that multiplexes requests targeting embedded
// injection regions (e.g. a fenced Lua block inside Markdown) out to
// per-language downstream LSP servers, translating coordinates between
// the host document and each region's virtual document.
//
// # Subpackages
//
//   - position: byte/UTF-16/point coordinate conversion
//   - parser: grammar loading and compiled query storage
//   - parserpool: reusable per-language parser instances and a bounded
//     concurrent fan-out pool
//   - document: the concurrent URI -> document state map
//   - injection: embedded-region detection and stable region-id tracking
//   - tokens: the semantic token engine
//   - local: selection range, local goto-definition, and folding
//   - bridge: downstream connection lifecycle, pooling, virtual document
//     mirroring, request forwarding, and diagnostics
//   - config: TOML workspace configuration
//   - lsp: the server's own protocol front end, composing every package
//     above into request handlers
package tendril
