// internal/media/media.go
package media

import (
	"path"
	"strings"
)

// Well-known media types the build engine dispatches on.
const (
	TypeHTML   = "text/html"
	TypeSVG    = "image/svg+xml"
	TypeCSV    = "text/csv"
	TypeJS     = "application/javascript"
	TypeCSS    = "text/css"
	TypeBinary = "application/octet-stream"
)

// Table maps file extensions to media types. It is an explicit value handed to
// whoever needs sniffing, not a process-global; callers may extend a copy
// without affecting anyone else.
type Table struct {
	byExt map[string]string
}

// NewTable returns a table seeded with the types the generator cares about.
func NewTable() *Table {
	return &Table{byExt: map[string]string{
		".html":  TypeHTML,
		".htm":   TypeHTML,
		".svg":   TypeSVG,
		".csv":   TypeCSV,
		".js":    TypeJS,
		".mjs":   TypeJS,
		".css":   TypeCSS,
		".json":  "application/json",
		".txt":   "text/plain",
		".md":    "text/markdown",
		".png":   "image/png",
		".jpg":   "image/jpeg",
		".jpeg":  "image/jpeg",
		".gif":   "image/gif",
		".webp":  "image/webp",
		".ico":   "image/x-icon",
		".mp4":   "video/mp4",
		".webm":  "video/webm",
		".mp3":   "audio/mpeg",
		".ogg":   "audio/ogg",
		".woff":  "font/woff",
		".woff2": "font/woff2",
		".ttf":   "font/ttf",
		".pdf":   "application/pdf",
		".xml":   "application/xml",
	}}
}

// Register adds or overrides an extension mapping. Extensions are stored
// lowercase with their leading dot.
func (t *Table) Register(ext, mediaType string) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	t.byExt[strings.ToLower(ext)] = mediaType
}

// Sniff derives a media type from the extension of a URL path. Unknown
// extensions sniff to application/octet-stream.
func (t *Table) Sniff(urlPath string) string {
	if mt, ok := t.byExt[strings.ToLower(path.Ext(urlPath))]; ok {
		return mt
	}
	return TypeBinary
}

// Lookup is like Sniff but reports whether the extension was known.
func (t *Table) Lookup(urlPath string) (string, bool) {
	mt, ok := t.byExt[strings.ToLower(path.Ext(urlPath))]
	return mt, ok
}

// Base strips any parameters from a media type value ("text/html; charset=utf-8").
func Base(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(strings.ToLower(mediaType))
}
