// internal/media/media_test.go
package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTable_Sniff(t *testing.T) {
	table := NewTable()

	testCases := []struct {
		path string
		want string
	}{
		{"/site/index.html", TypeHTML},
		{"/site/logo.SVG", TypeSVG}, // extension match is case-insensitive
		{"/site/data.csv", TypeCSV},
		{"/site/app.mjs", TypeJS},
		{"/site/style.css", TypeCSS},
		{"/site/archive.xyz", TypeBinary}, // unknown falls back to octet-stream
		{"/site/noext", TypeBinary},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, table.Sniff(tc.path), tc.path)
	}
}

func TestTable_Lookup(t *testing.T) {
	table := NewTable()

	mt, ok := table.Lookup("/a/b.png")
	assert.True(t, ok)
	assert.Equal(t, "image/png", mt)

	_, ok = table.Lookup("/a/b.unknown")
	assert.False(t, ok)
}

func TestTable_Register(t *testing.T) {
	table := NewTable()

	// The leading dot is optional and extensions normalize to lowercase.
	table.Register("tmpl", TypeHTML)
	assert.Equal(t, TypeHTML, table.Sniff("/site/page.TMPL"))

	// Registration overrides the seeded mapping.
	table.Register(".csv", "application/x-custom")
	assert.Equal(t, "application/x-custom", table.Sniff("/site/data.csv"))
}

func TestBase(t *testing.T) {
	assert.Equal(t, "text/html", Base("text/html; charset=utf-8"))
	assert.Equal(t, "text/html", Base("TEXT/HTML"))
	assert.Equal(t, "image/svg+xml", Base(" image/svg+xml "))
	assert.Equal(t, "", Base(""))
}
