package tokens

// DefaultCaptureTypes lists every highlight capture name the bundled
// query set (parser/queries) emits, in publication order: its index in
// this slice is the semantic token type index advertised in the
// server's capabilities. Unlike the predefined LSP SemanticTokenTypes
// enum, these names are published verbatim as the legend's
// tokenTypes array, so a dotted capture like "function.call" is its
// own type rather than "function" plus a modifier — simpler to keep
// correct than inventing a modifier scheme this bridge has no use for
// yet.
var DefaultCaptureTypes = []string{
	"function", "function.call", "function.method",
	"variable", "variable.parameter",
	"keyword", "keyword.function",
	"string", "number",
	"constant.builtin",
	"comment",
	"property",
	"type",
	"operator",
	"punctuation.bracket", "punctuation.delimiter", "punctuation.special",
	"markup.heading", "markup.raw.block", "markup.raw.inline",
	"markup.italic", "markup.bold", "markup.link", "markup.link.url",
}

// NewDefaultLegend builds the Legend every bundled language shares,
// indexing DefaultCaptureTypes in order and defining no modifiers.
func NewDefaultLegend() Legend {
	idx := make(map[string]uint32, len(DefaultCaptureTypes))
	for i, name := range DefaultCaptureTypes {
		idx[name] = uint32(i)
	}
	return Legend{TypeIndex: idx, ModifierBits: map[string]uint32{}}
}
