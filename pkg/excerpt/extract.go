// Package excerpt pulls the narration text out of a rendered article.
package excerpt

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxChars is the largest excerpt sent for synthesis, in characters.
const MaxChars = 1200

// Attributes marking a short summary region.
const (
	SummaryAttr = "data-tts-summary" // element whose text is the summary
	TLDRAttr    = "data-tldr-text"   // attribute whose value is the summary
)

// Excerpt is the text chosen for narration.
type Excerpt struct {
	Text        string
	Truncated   bool
	FromSummary bool
	Length      int // characters before truncation
}

// Empty reports whether there is nothing to narrate.
func (e Excerpt) Empty() bool {
	return e.Text == ""
}

// Extract returns the summary region's text when the document marks one,
// otherwise the article's full visible text. Whitespace runs collapse to a
// single space and the result is cut to max characters (MaxChars when max <= 0).
func Extract(doc *html.Node, max int) Excerpt {
	if max <= 0 {
		max = MaxChars
	}
	if doc == nil {
		return Excerpt{}
	}

	text, fromSummary := findSummary(doc)
	if text == "" {
		fromSummary = false
		text = collapse(visibleText(contentRoot(doc)))
	}

	ex := Excerpt{Text: text, FromSummary: fromSummary, Length: utf8.RuneCountInString(text)}
	if ex.Length > max {
		ex.Text = strings.TrimSpace(truncateRunes(text, max))
		ex.Truncated = true
	}
	return ex
}

func findSummary(n *html.Node) (string, bool) {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			switch a.Key {
			case SummaryAttr:
				if t := collapse(visibleText(n)); t != "" {
					return t, true
				}
			case TLDRAttr:
				if t := collapse(a.Val); t != "" {
					return t, true
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t, ok := findSummary(c); ok {
			return t, true
		}
	}
	return "", false
}

// contentRoot prefers <article>, then <main>, then <body>.
func contentRoot(doc *html.Node) *html.Node {
	for _, a := range []atom.Atom{atom.Article, atom.Main, atom.Body} {
		if n := findElement(doc, a); n != nil {
			return n
		}
	}
	return doc
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if res := findElement(c, a); res != nil {
			return res
		}
	}
	return nil
}

func visibleText(n *html.Node) string {
	var b strings.Builder
	traverse(n, &b)
	return b.String()
}

func traverse(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
			return
		}
		if hidden(n) {
			return
		}
		if !inline[n.DataAtom] {
			b.WriteByte(' ')
			defer b.WriteByte(' ')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		traverse(c, b)
	}
}

var inline = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Cite: true, atom.Code: true,
	atom.Em: true, atom.I: true, atom.Kbd: true, atom.Mark: true, atom.Q: true,
	atom.S: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true, atom.Var: true,
}

func hidden(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "hidden" || (a.Key == "aria-hidden" && a.Val == "true") {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, max int) string {
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
