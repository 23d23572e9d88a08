package clean

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cognicore/refine/pkg/refine/record"
)

// skippedElements never contribute visible text.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
}

// blockElements separate the words on either side of them.
var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Aside: true, atom.Blockquote: true,
	atom.Br: true, atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Footer: true, atom.Form: true, atom.H1: true,
	atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Header: true, atom.Hr: true, atom.Li: true, atom.Main: true, atom.Nav: true,
	atom.Ol: true, atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Td: true, atom.Th: true, atom.Tr: true, atom.Ul: true,
}

// MarkupStripper replaces HTML in the text field with its visible text.
// Text that fails to parse is left as is.
type MarkupStripper struct{}

// NewMarkupStripper creates a markup stripper.
func NewMarkupStripper() *MarkupStripper { return &MarkupStripper{} }

// Name implements Step.
func (s *MarkupStripper) Name() string { return "MarkupStripper" }

// Process implements Step.
func (s *MarkupStripper) Process(rec record.Record) (record.Record, bool) {
	if !record.Valid(rec) {
		return nil, false
	}
	if !rec.Has(record.FieldText) {
		return rec, true
	}
	return rec.Set(record.FieldText, StripHTML(record.Text(rec, ""))), true
}

// Config implements Step.
func (s *MarkupStripper) Config() map[string]any { return map[string]any{} }

// StripHTML extracts the visible text of an HTML fragment.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skippedElements[n.DataAtom] {
			return
		}
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			buf.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteByte(' ')
		}
	}
	walk(doc)

	return strings.TrimSpace(collapseRuns(buf.String(), unicode.IsSpace, ' '))
}
