// internal/content/content.go
package content

import (
	"bytes"
	"fmt"

	"github.com/beevik/etree"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/jen-cli/internal/refs"
)

// Kind discriminates the closed set of content payloads the engine handles.
type Kind int

const (
	KindHTML Kind = iota
	KindSVG
	KindCSV
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindSVG:
		return "svg"
	case KindCSV:
		return "csv"
	case KindUnknown:
		return "unknown"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Content is the tagged union of everything a fetch can produce. Exactly one
// payload field matching Kind is populated; the others stay nil. Raw always
// holds the original bytes so callers can copy assets verbatim and map nodes
// back to source positions.
//
// Content is immutable once yielded, except that the HTML/SVG tree may be
// mutated in place by directive expansion.
type Content struct {
	Kind      Kind
	MediaType string
	Ref       *refs.Reference

	HTML *html.Node
	SVG  *etree.Document
	CSV  *Table
	Raw  []byte
}

// Table is a parsed CSV payload: the header row plus every data row.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Record returns row i as a header->value map. Short rows leave the trailing
// columns empty rather than panicking.
func (t *Table) Record(i int) map[string]string {
	rec := make(map[string]string, len(t.Headers))
	for c, h := range t.Headers {
		if c < len(t.Rows[i]) {
			rec[h] = t.Rows[i][c]
		} else {
			rec[h] = ""
		}
	}
	return rec
}

// Location is a 1-based line/column position in a source document.
type Location struct {
	Line int
	Col  int
}

func (l Location) String() string { return fmt.Sprintf("%d:%d", l.Line, l.Col) }

// Locate finds the first occurrence of needle at or after off in raw and
// returns its position plus the byte offset of the match (-1 when absent).
// This is how the engine attributes a discovered reference back to the
// attribute that declared it without a position-tracking parser.
func Locate(raw []byte, needle string, off int) (Location, int) {
	if off < 0 || off > len(raw) {
		off = 0
	}
	i := bytes.Index(raw[off:], []byte(needle))
	if i < 0 {
		return Location{}, -1
	}
	i += off

	line := 1 + bytes.Count(raw[:i], []byte{'\n'})
	col := i + 1
	if nl := bytes.LastIndexByte(raw[:i], '\n'); nl >= 0 {
		col = i - nl
	}
	return Location{Line: line, Col: col}, i
}
