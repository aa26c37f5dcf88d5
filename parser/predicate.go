package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// PredicateArg is one argument to a query predicate: either a capture
// reference (resolved against a match's captures at evaluation time) or a
// string literal.
type PredicateArg struct {
	Capture string
	Literal string
	IsCapture bool
}

// Predicate is a single `(#name? ...)` annotation attached to a query
// pattern, e.g. `(#eq? @a @b)` or `(#match? @str "^[A-Z]")`.
type Predicate struct {
	Name string
	Args []PredicateArg
}

// PatternPredicates maps a query's pattern index to the predicates
// attached to that pattern. Offset directives (`#offset!`) are captured
// here too, pattern-scoped — the historic bug this guards against is
// returning the first #offset! found anywhere in the query rather than
// the one attached to the matching pattern.
type PatternPredicates struct {
	ByPattern map[int][]Predicate
}

// ExtractPredicates parses the predicate/directive annotations out of
// raw tree-sitter query source, grouped per top-level pattern index.
//
// This is implemented as a small paren-balanced scanner over the query
// source rather than via the compiled Query's predicate API: the pack
// contains no worked Go example of tree-sitter query-predicate
// extraction, so scanning the source text directly is the safest
// grounded approach (see DESIGN.md).
func ExtractPredicates(source string) *PatternPredicates {
	pp := &PatternPredicates{ByPattern: make(map[int][]Predicate)}
	patterns := splitTopLevelForms(source)
	for i, pat := range patterns {
		pp.ByPattern[i] = extractFormPredicates(pat)
	}
	return pp
}

// splitTopLevelForms splits query source into its top-level s-expression
// forms (each top-level form is one query pattern, possibly followed by
// its own predicate/directive forms which tree-sitter treats as part of
// the same pattern when directly adjacent — but in practice directives
// are written as separate sibling forms immediately after the pattern
// they apply to, so we instead use a grouping pass below).
func splitTopLevelForms(source string) []string {
	var forms []string
	depth := 0
	start := -1
	inString := false
	inComment := false
	for i, r := range source {
		switch {
		case inComment:
			inComment = r != '\n'
		case r == '"' && (i == 0 || source[i-1] != '\\'):
			inString = !inString
		case inString:
			continue
		case r == ';':
			// line comment: skip to end of line
			inComment = true
		case r == '(':
			if depth == 0 {
				start = i
			}
			depth++
		case r == ')':
			depth--
			if depth == 0 && start >= 0 {
				forms = append(forms, source[start:i+1])
				start = -1
			}
		}
	}
	return groupPatternsWithDirectives(forms)
}

// groupPatternsWithDirectives merges a leading pattern form with any
// immediately following predicate/directive forms (`(#eq? ...)`,
// `(#offset! ...)`, etc.) into one logical pattern group, matching how
// tree-sitter attaches trailing predicate statements to the preceding
// pattern. A form whose first non-paren token starts with '#' is a
// directive/predicate and attaches to the current group; anything else
// starts a new group.
func groupPatternsWithDirectives(forms []string) []string {
	var grouped []string
	var current strings.Builder
	for _, f := range forms {
		trimmed := strings.TrimPrefix(strings.TrimSpace(f), "(")
		if strings.HasPrefix(trimmed, "#") {
			if current.Len() > 0 {
				current.WriteString(" ")
				current.WriteString(f)
			}
			continue
		}
		if current.Len() > 0 {
			grouped = append(grouped, current.String())
			current.Reset()
		}
		current.WriteString(f)
	}
	if current.Len() > 0 {
		grouped = append(grouped, current.String())
	}
	return grouped
}

var directiveRe = regexp.MustCompile(`\(#([a-zA-Z0-9_-]+[!?])\s*((?:[^()"]|"(?:[^"\\]|\\.)*")*)\)`)
var tokenRe = regexp.MustCompile(`@[\w.-]+|"(?:[^"\\]|\\.)*"|[+-]?\d+`)

func extractFormPredicates(form string) []Predicate {
	var preds []Predicate
	for _, m := range directiveRe.FindAllStringSubmatch(form, -1) {
		name := m[1]
		argsStr := m[2]
		var args []PredicateArg
		for _, tok := range tokenRe.FindAllString(argsStr, -1) {
			switch {
			case strings.HasPrefix(tok, "@"):
				args = append(args, PredicateArg{Capture: tok[1:], IsCapture: true})
			case strings.HasPrefix(tok, `"`):
				unquoted := strings.TrimSuffix(strings.TrimPrefix(tok, `"`), `"`)
				unquoted = strings.ReplaceAll(unquoted, `\"`, `"`)
				args = append(args, PredicateArg{Literal: unquoted})
			default:
				args = append(args, PredicateArg{Literal: tok})
			}
		}
		preds = append(preds, Predicate{Name: name, Args: args})
	}
	return preds
}

// Offset is a parsed `#offset!` directive: adjust the content range of
// the capture named Capture by (StartRowDelta, StartColDelta) at the
// start and (EndRowDelta, EndColDelta) at the end.
type Offset struct {
	Capture                        string
	StartRowDelta, StartColDelta   int
	EndRowDelta, EndColDelta       int
}

// OffsetFor returns the #offset! directive attached to pattern index
// patternIndex, if any. Returns (Offset{}, false) when that pattern has
// no offset directive — callers must not fall back to a directive from a
// different pattern (the pattern-scoping invariant spec.md §4.5/§8
// requires).
func (pp *PatternPredicates) OffsetFor(patternIndex int) (Offset, bool) {
	for _, p := range pp.ByPattern[patternIndex] {
		if p.Name != "offset!" || len(p.Args) < 5 {
			continue
		}
		nums := make([]int, 0, 4)
		for _, a := range p.Args[1:] {
			var n int
			if _, err := fmt.Sscanf(a.Literal, "%d", &n); err != nil {
				continue
			}
			nums = append(nums, n)
		}
		if len(nums) != 4 {
			continue
		}
		capture := ""
		if p.Args[0].IsCapture {
			capture = p.Args[0].Capture
		}
		return Offset{
			Capture:       capture,
			StartRowDelta: nums[0], StartColDelta: nums[1],
			EndRowDelta: nums[2], EndColDelta: nums[3],
		}, true
	}
	return Offset{}, false
}

// Predicates returns the non-directive predicates (eq?, not-eq?, match?,
// lua-match?, any-of?, ...) attached to patternIndex.
func (pp *PatternPredicates) Predicates(patternIndex int) []Predicate {
	all := pp.ByPattern[patternIndex]
	out := make([]Predicate, 0, len(all))
	for _, p := range all {
		if p.Name == "offset!" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// CaptureTextFunc resolves a capture name to its matched bytes. Evaluate uses this to
// compare capture text in eq?/match?/lua-match? predicates.
type CaptureTextFunc func(name string) ([]byte, bool)

var luaPatternCache sync.Map // map[string]*regexp.Regexp

// Evaluate reports whether every predicate in preds holds for the given
// match, using captureText to resolve capture arguments to their
// matched bytes.
func Evaluate(preds []Predicate, captureText CaptureTextFunc) bool {
	for _, p := range preds {
		if !evaluateOne(p, captureText) {
			return false
		}
	}
	return true
}

func evaluateOne(p Predicate, captureText CaptureTextFunc) bool {
	resolve := func(a PredicateArg) ([]byte, bool) {
		if a.IsCapture {
			return captureText(a.Capture)
		}
		return []byte(a.Literal), true
	}

	switch p.Name {
	case "eq?":
		if len(p.Args) != 2 {
			return true
		}
		a, aok := resolve(p.Args[0])
		b, bok := resolve(p.Args[1])
		return aok && bok && bytes.Equal(a, b)

	case "not-eq?":
		if len(p.Args) != 2 {
			return true
		}
		a, aok := resolve(p.Args[0])
		b, bok := resolve(p.Args[1])
		return !(aok && bok && bytes.Equal(a, b))

	case "match?":
		if len(p.Args) != 2 {
			return true
		}
		text, ok := resolve(p.Args[0])
		if !ok {
			return false
		}
		re, err := regexp.Compile(p.Args[1].Literal)
		if err != nil {
			return false
		}
		return re.Match(text)

	case "not-match?":
		if len(p.Args) != 2 {
			return true
		}
		text, ok := resolve(p.Args[0])
		if !ok {
			return false
		}
		re, err := regexp.Compile(p.Args[1].Literal)
		if err != nil {
			return false
		}
		return !re.Match(text)

	case "lua-match?":
		if len(p.Args) != 2 {
			return true
		}
		text, ok := resolve(p.Args[0])
		if !ok {
			return false
		}
		re, err := compileLuaPattern(p.Args[1].Literal)
		if err != nil {
			return false
		}
		return re.Match(text)

	case "any-of?":
		if len(p.Args) < 2 {
			return true
		}
		text, ok := resolve(p.Args[0])
		if !ok {
			return false
		}
		for _, a := range p.Args[1:] {
			if v, ok := resolve(a); ok && bytes.Equal(v, text) {
				return true
			}
		}
		return false

	default:
		// Unknown predicates are not filters we understand; treat as
		// satisfied rather than silently dropping every match.
		return true
	}
}

// compileLuaPattern translates a (small, commonly-used subset of) a Lua
// pattern into an equivalent Go regexp, caching the translation per
// pattern string so repeated matches against the same query predicate
// don't re-translate on every call.
func compileLuaPattern(lua string) (*regexp.Regexp, error) {
	if cached, ok := luaPatternCache.Load(lua); ok {
		return cached.(*regexp.Regexp), nil
	}
	translated := luaPatternToRegexp(lua)
	re, err := regexp.Compile(translated)
	if err != nil {
		return nil, err
	}
	luaPatternCache.Store(lua, re)
	return re, nil
}

// luaPatternToRegexp converts Lua's pattern character classes to their
// PCRE-ish equivalents. This covers the subset actually used by
// highlight queries in practice (%a, %d, %w, %s, %p, %u, %l, anchors,
// and magic character escaping) rather than Lua's full pattern language.
func luaPatternToRegexp(lua string) string {
	var b strings.Builder
	for i := 0; i < len(lua); i++ {
		c := lua[i]
		if c == '%' && i+1 < len(lua) {
			i++
			switch lua[i] {
			case 'a':
				b.WriteString(`[A-Za-z]`)
			case 'A':
				b.WriteString(`[^A-Za-z]`)
			case 'd':
				b.WriteString(`[0-9]`)
			case 'D':
				b.WriteString(`[^0-9]`)
			case 'w':
				b.WriteString(`[0-9A-Za-z]`)
			case 'W':
				b.WriteString(`[^0-9A-Za-z]`)
			case 's':
				b.WriteString(`[ \t\n\r\f\v]`)
			case 'S':
				b.WriteString(`[^ \t\n\r\f\v]`)
			case 'u':
				b.WriteString(`[A-Z]`)
			case 'l':
				b.WriteString(`[a-z]`)
			case 'p':
				b.WriteString(`[[:punct:]]`)
			default:
				b.WriteByte('\\')
				b.WriteByte(lua[i])
			}
			continue
		}
		switch c {
		case '.', '+', '*', '?', '(', ')', '[', ']', '{', '}', '|', '^', '$', '\\':
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
