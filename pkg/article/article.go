// Package article loads the rendered document narration is read from.
package article

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"readaloud/pkg/endpoint"
	"readaloud/pkg/excerpt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Fetcher retrieves remote documents.
type Fetcher interface {
	Get(ctx context.Context, u string) ([]byte, error)
}

// Document is a parsed article.
type Document struct {
	Ref    string // file path or URL it was loaded from
	Origin string // scheme://host for URLs, "" for files
	Title  string
	Slug   string
	root   *html.Node
	max    int
}

// Load reads ref, which is either an http(s) URL fetched through f or a local file path.
func Load(ctx context.Context, ref string, f Fetcher) (*Document, error) {
	var (
		data   []byte
		origin string
		err    error
	)
	if isURL(ref) {
		if f == nil {
			return nil, fmt.Errorf("no fetcher for %s", ref)
		}
		data, err = f.Get(ctx, ref)
		origin = endpoint.OriginOf(ref)
	} else {
		data, err = os.ReadFile(ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %s: %w", ref, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Ref = ref
	doc.Origin = origin
	if doc.Slug == "" {
		doc.Slug = slugFromRef(ref)
	}
	return doc, nil
}

// Parse parses an HTML document. Ref and Origin are left empty.
func Parse(data []byte) (*Document, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse article: %w", err)
	}
	d := &Document{root: root}
	d.Title, d.Slug = scanHead(root)
	return d, nil
}

// SetMaxChars overrides the excerpt cap.
func (d *Document) SetMaxChars(n int) {
	d.max = n
}

// Excerpt returns the narration text for the document.
func (d *Document) Excerpt(ctx context.Context) (excerpt.Excerpt, error) {
	if err := ctx.Err(); err != nil {
		return excerpt.Excerpt{}, err
	}
	return excerpt.Extract(d.root, d.max), nil
}

// scanHead returns the <title> text and a slug declared by
// <meta name="slug"> or a data-slug attribute, whichever comes first.
func scanHead(root *html.Node) (title, slug string) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Title && title == "" && n.FirstChild != nil:
				title = strings.TrimSpace(n.FirstChild.Data)
			case n.DataAtom == atom.Meta && slug == "" && attr(n, "name") == "slug":
				slug = strings.TrimSpace(attr(n, "content"))
			case slug == "" && attr(n, "data-slug") != "":
				slug = strings.TrimSpace(attr(n, "data-slug"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return title, slug
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func slugFromRef(ref string) string {
	var name string
	if isURL(ref) {
		u, err := url.Parse(ref)
		if err != nil {
			return ""
		}
		name = path.Base(strings.TrimSuffix(u.Path, "/"))
		if name == "/" || name == "." {
			return ""
		}
	} else {
		name = filepath.Base(ref)
	}
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "index" {
		return ""
	}
	return name
}
