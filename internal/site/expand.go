// internal/site/expand.go
package site

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/jen-cli/internal/content"
	"github.com/xkilldash9x/jen-cli/internal/refs"
)

const (
	snippetTag  = "x-jen-snippet"
	templateTag = "x-jen-template"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}\s]+)\s*\}\}`)

// Expander rewrites jen directives inside a fetched HTML document:
//
//   - <x-jen-snippet src="..."> is replaced by the referenced document's body
//     children;
//   - <x-jen-template src="data.csv"> repeats its children once per CSV
//     record, substituting {{column}} placeholders in text and attributes.
//
// Lookup resolves a reference to content the walker already fetched; the
// expander never fetches on its own, so every expanded path is guaranteed to
// be a registered dependency.
type Expander struct {
	Lookup func(*refs.Reference) (*content.Content, bool)
	Logger *zap.Logger

	expanding map[string]bool
}

// Expand rewrites all directives in c (which must be HTML) in place.
func (x *Expander) Expand(c *content.Content) error {
	if x.Logger == nil {
		x.Logger = zap.NewNop()
	}
	if x.expanding == nil {
		x.expanding = make(map[string]bool)
	}
	return x.expandDoc(c)
}

func (x *Expander) expandDoc(c *content.Content) error {
	key := c.Ref.String()
	if x.expanding[key] {
		// A snippet including itself; the walker already pruned the fetch, so
		// just refuse to loop here too.
		x.Logger.Warn("Snippet expansion cycle, skipping", zap.String("ref", c.Ref.Display()))
		return nil
	}
	x.expanding[key] = true
	defer delete(x.expanding, key)

	if err := x.expandSnippets(c); err != nil {
		return err
	}
	return x.expandTemplates(c)
}

func (x *Expander) expandSnippets(c *content.Content) error {
	for _, el := range content.Elements(c.HTML, snippetTag) {
		src := content.Attr(el, "src")
		if src == "" {
			detach(el)
			continue
		}
		ref, err := c.Ref.Resolve(src)
		if err != nil {
			return err
		}
		sc, ok := x.Lookup(ref)
		if !ok || sc.Kind != content.KindHTML {
			x.Logger.Warn("Snippet content unavailable, dropping directive",
				zap.String("src", src), zap.String("page", c.Ref.Display()))
			detach(el)
			continue
		}
		// Snippets may contain further directives of their own.
		if err := x.expandDoc(sc); err != nil {
			return err
		}
		if body := content.Body(sc.HTML); body != nil {
			for child := body.FirstChild; child != nil; child = child.NextSibling {
				el.Parent.InsertBefore(cloneNode(child), el)
			}
		}
		detach(el)
	}
	return nil
}

func (x *Expander) expandTemplates(c *content.Content) error {
	for _, el := range content.Elements(c.HTML, templateTag) {
		src := content.Attr(el, "src")
		if src == "" {
			detach(el)
			continue
		}
		ref, err := c.Ref.Resolve(src)
		if err != nil {
			return err
		}
		tc, ok := x.Lookup(ref)
		if !ok || tc.Kind != content.KindCSV {
			x.Logger.Warn("Template data unavailable, dropping directive",
				zap.String("src", src), zap.String("page", c.Ref.Display()))
			detach(el)
			continue
		}

		for i := range tc.CSV.Rows {
			record := tc.CSV.Record(i)
			for child := el.FirstChild; child != nil; child = child.NextSibling {
				clone := cloneNode(child)
				substitute(clone, record)
				el.Parent.InsertBefore(clone, el)
			}
		}
		detach(el)
	}
	return nil
}

// substitute replaces {{column}} placeholders in n's subtree with record
// values. Unknown columns substitute to the empty string.
func substitute(n *html.Node, record map[string]string) {
	replace := func(s string) string {
		return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
			name := strings.TrimSpace(strings.Trim(m, "{}"))
			return record[name]
		})
	}

	if n.Type == html.TextNode {
		n.Data = replace(n.Data)
	}
	for i := range n.Attr {
		n.Attr[i].Val = replace(n.Attr[i].Val)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		substitute(c, record)
	}
}

// cloneNode deep-copies a node subtree. Snippet bodies get inserted into
// multiple places, so moving the original nodes is not an option.
func cloneNode(n *html.Node) *html.Node {
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		clone.AppendChild(cloneNode(c))
	}
	return clone
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
