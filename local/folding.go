package local

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/tendril-lsp/tendril/position"
)

// FoldKind classifies a folding range for clients that render different
// affordances per kind (comment blocks collapse differently than code
// blocks, for instance).
type FoldKind string

const (
	FoldRegion  FoldKind = "region"
	FoldComment FoldKind = "comment"
	FoldImports FoldKind = "imports"
)

// Fold is one folding range, in host-document line coordinates.
type Fold struct {
	StartLine int
	EndLine   int
	Kind      FoldKind
}

// foldableKinds maps a node's grammar-specific kind string to the fold
// affordance it should produce. Node kinds vary per grammar, so this is
// intentionally small and extended per language rather than attempting
// a universal table; entries absent here simply don't fold.
var foldableKinds = map[string]FoldKind{
	"block":              FoldRegion,
	"function_body":      FoldRegion,
	"compound_statement": FoldRegion,
	"object":             FoldRegion,
	"array":               FoldRegion,
	"comment":            FoldComment,
	"import_declaration":  FoldImports,
}

// FoldingRanges walks the tree and emits a Fold for every multi-line
// node whose kind appears in foldableKinds. Nested foldable nodes both
// produce ranges; LSP clients are expected to render nested folds
// independently.
func FoldingRanges(root tree_sitter.Node, mapper *position.Mapper) []Fold {
	var out []Fold
	walkFold(root, mapper, &out)
	return out
}

func walkFold(n tree_sitter.Node, mapper *position.Mapper, out *[]Fold) {
	start := n.StartPosition()
	end := n.EndPosition()
	if kind, ok := foldableKinds[n.Kind()]; ok && end.Row > start.Row {
		*out = append(*out, Fold{StartLine: int(start.Row), EndLine: int(end.Row), Kind: kind})
	}
	childCount := n.ChildCount()
	for i := uint(0); i < childCount; i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		walkFold(*child, mapper, out)
	}
}
