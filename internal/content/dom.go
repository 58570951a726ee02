// internal/content/dom.go
package content

import (
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
)

// RawRef is an externally-referencing attribute discovered in a document,
// before resolution: the attribute value plus enough context to infer a media
// type and report a source position.
type RawRef struct {
	Value    string
	Tag      string
	Attr     string
	TypeAttr string // explicit type="" attribute on the element, if any
}

// htmlRefAttrs lists, per tag, the attributes whose values reference external
// resources a build depends on. Navigation anchors are deliberately absent;
// following every <a href> would turn one page's build into a whole-site walk.
var htmlRefAttrs = map[string][]string{
	"link":           {"href"},
	"script":         {"src"},
	"img":            {"src"},
	"iframe":         {"src"},
	"embed":          {"src"},
	"source":         {"src"},
	"track":          {"src"},
	"input":          {"src"},
	"audio":          {"src"},
	"video":          {"src", "poster"},
	"object":         {"data"},
	"x-jen-snippet":  {"src"},
	"x-jen-template": {"src"},
}

// svgRefAttrs is the SVG equivalent; href appears both plain and in the xlink
// namespace depending on SVG version.
var svgRefAttrs = map[string]bool{
	"image":   true,
	"use":     true,
	"script":  true,
	"feImage": true,
}

// HTMLRefs walks doc depth-first in document order and returns every
// externally-referencing attribute value it finds.
func HTMLRefs(doc *html.Node) []RawRef {
	var out []RawRef
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if attrs, ok := htmlRefAttrs[n.Data]; ok {
				for _, name := range attrs {
					if v := Attr(n, name); v != "" {
						out = append(out, RawRef{
							Value:    v,
							Tag:      n.Data,
							Attr:     name,
							TypeAttr: Attr(n, "type"),
						})
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return out
}

// SVGRefs does the same for an SVG document, honoring xlink:href.
func SVGRefs(doc *etree.Document) []RawRef {
	var out []RawRef
	var visit func(e *etree.Element)
	visit = func(e *etree.Element) {
		if svgRefAttrs[e.Tag] {
			v := e.SelectAttrValue("href", "")
			attrName := "href"
			if v == "" {
				v = e.SelectAttrValue("xlink:href", "")
				attrName = "xlink:href"
			}
			// Fragment-only refs ("#gradient") point inside the same document.
			if v != "" && !strings.HasPrefix(v, "#") {
				out = append(out, RawRef{Value: v, Tag: e.Tag, Attr: attrName})
			}
		}
		for _, child := range e.ChildElements() {
			visit(child)
		}
	}
	if root := doc.Root(); root != nil {
		visit(root)
	}
	return out
}

// Attr returns the value of the named attribute on n, or "".
func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// SetAttr overwrites (or appends) the named attribute on n.
func SetAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

// Elements collects every element named tag under root, depth-first.
func Elements(root *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}

// Body returns the <body> element of a parsed document, or nil.
func Body(doc *html.Node) *html.Node {
	if els := Elements(doc, "body"); len(els) > 0 {
		return els[0]
	}
	return nil
}
