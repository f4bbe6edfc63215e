// Package selector turns a clicked element into a short, readable CSS
// selector and resolves such selectors back to elements.
//
// Generation walks from the element towards the document root, stopping below
// body. An element id anchors the path and ends the walk. Other levels are
// the tag name, up to two meaningful classes and, when the parent holds more
// than one element of the same tag, an :nth-of-type qualifier. Segments are
// joined with the child combinator:
//
//	#pricing > div.PlanCard:nth-of-type(2) > button.cta
//
// A selector that no longer resolves is an expected outcome, not an error.
package selector

import (
	"strconv"
	"strings"
)

// Element is the minimal view of a DOM element the generator needs. It is
// implemented over x/net/html nodes (FromHTML) and over live browser DOM.
type Element interface {
	// Tag returns the lower-case tag name.
	Tag() string
	ID() string
	Classes() []string
	// Parent returns the parent element, or nil at the top of the tree.
	Parent() Element
	// TypeIndex returns the 1-based position of the element among its
	// parent's element children with the same tag, and how many there are.
	TypeIndex() (pos, count int)
}

// DefaultMaxClasses is the number of meaningful classes kept per level.
const DefaultMaxClasses = 2

// Generator builds selectors with a given class policy.
type Generator struct {
	Policy     ClassPolicy // nil means UtilityDenylist
	MaxClasses int         // <= 0 means DefaultMaxClasses
}

// Default is the generator used by Generate.
var Default = Generator{}

// Generate builds a selector for el with the default generator.
func Generate(el Element) string { return Default.Generate(el) }

// Generate builds a selector for el. It returns "" for nil, body and html.
func (g Generator) Generate(el Element) string {
	var path []string
	for cur := el; cur != nil && !isRoot(cur.Tag()); cur = cur.Parent() {
		if id := cur.ID(); id != "" {
			path = append(path, "#"+Escape(id))
			break
		}
		path = append(path, g.segment(cur))
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return strings.Join(path, " > ")
}

func (g Generator) segment(el Element) string {
	var b strings.Builder
	b.WriteString(el.Tag())
	for _, c := range g.meaningful(el.Classes()) {
		b.WriteByte('.')
		b.WriteString(Escape(c))
	}
	if pos, count := el.TypeIndex(); count > 1 {
		b.WriteString(":nth-of-type(")
		b.WriteString(strconv.Itoa(pos))
		b.WriteByte(')')
	}
	return b.String()
}

func (g Generator) meaningful(classes []string) []string {
	policy := g.Policy
	if policy == nil {
		policy = UtilityDenylist
	}
	limit := g.MaxClasses
	if limit <= 0 {
		limit = DefaultMaxClasses
	}
	var out []string
	for _, c := range classes {
		if len(out) == limit {
			break
		}
		if c == "" || policy.IsUtility(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func isRoot(tag string) bool {
	return tag == "body" || tag == "html"
}
