// internal/site/builder_test.go
package site

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/jen-cli/internal/config"
	"github.com/xkilldash9x/jen-cli/internal/taskgraph"
)

func siteFixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/site/index.html": `<html><head><link rel="stylesheet" href="/style.css"></head><body>
<x-jen-snippet src="header.html"></x-jen-snippet>
<x-jen-template src="data.csv"><p>{{name}}: {{price}}</p></x-jen-template>
<img src="img/logo.png">
</body></html>`,
		"/site/header.html":  `<html><body><h1>Jen Site</h1></body></html>`,
		"/site/data.csv":     "name,price\nWidget,9.99\nGadget,19.99\n",
		"/site/style.css":    "body { margin: 0 }",
		"/site/img/logo.png": "png-bytes",
	}
	for path, body := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(body), 0o644))
	}
	return fs
}

func siteConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	cfg.Site.Root = "/site"
	cfg.Site.Out = "/out"
	cfg.Site.Entries = []string{"index.html"}
	return cfg
}

func readOut(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return string(data)
}

func TestBuilder_FullBuild(t *testing.T) {
	fs := siteFixture(t)
	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)

	require.NoError(t, b.Build(context.Background()))

	page := readOut(t, fs, "/out/index.html")
	assert.Contains(t, page, "<h1>Jen Site</h1>")
	assert.Contains(t, page, "<p>Widget: 9.99</p>")
	assert.Contains(t, page, "<p>Gadget: 19.99</p>")
	assert.NotContains(t, page, "x-jen-snippet")
	assert.NotContains(t, page, "x-jen-template")

	assert.Equal(t, "body { margin: 0 }", readOut(t, fs, "/out/style.css"))
	assert.Equal(t, "png-bytes", readOut(t, fs, "/out/img/logo.png"))

	stats := b.Stats()
	assert.Equal(t, 1, stats.Pages)
	assert.Equal(t, 2, stats.Assets)
	// index.html + header.html + data.csv + style.css + img/logo.png
	assert.Equal(t, 5, stats.TrackedPaths)
	assert.False(t, b.Runner().NeedsUpdate())
}

func TestBuilder_NoopRebuild(t *testing.T) {
	fs := siteFixture(t)
	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	// Nothing changed, so a second pass must not rebuild anything.
	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, 0, b.Stats().Pages)
	assert.Equal(t, 0, b.Stats().Assets)
}

func TestBuilder_IncrementalDataChange(t *testing.T) {
	fs := siteFixture(t)
	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	// The CSV feeds the rendered page, so changing it re-runs the page task.
	require.NoError(t, afero.WriteFile(fs, "/site/data.csv",
		[]byte("name,price\nWidget,9.99\nGadget,19.99\nSprocket,4.99\n"), 0o644))
	b.Runner().InvalidatePath("/site/data.csv", taskgraph.ChangeModify)

	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, 1, b.Stats().Pages)
	assert.Contains(t, readOut(t, fs, "/out/index.html"), "<p>Sprocket: 4.99</p>")
}

func TestBuilder_IncrementalAssetChange(t *testing.T) {
	fs := siteFixture(t)
	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	// An asset is copied by its own sub-task, so changing it re-runs just the
	// copy, not the page.
	require.NoError(t, afero.WriteFile(fs, "/site/style.css", []byte("body { margin: 1em }"), 0o644))
	b.Runner().InvalidatePath("/site/style.css", taskgraph.ChangeModify)

	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, 0, b.Stats().Pages)
	assert.Equal(t, 1, b.Stats().Assets)
	assert.Equal(t, "body { margin: 1em }", readOut(t, fs, "/out/style.css"))
}

func TestBuilder_IrrelevantChangeIsNoop(t *testing.T) {
	fs := siteFixture(t)
	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	b.Runner().InvalidatePath("/site/notes.txt", taskgraph.ChangeModify)
	assert.False(t, b.Runner().NeedsUpdate())
}

func TestBuilder_FailedBuildRetries(t *testing.T) {
	fs := siteFixture(t)
	require.NoError(t, fs.Remove("/site/header.html"))

	b, err := NewBuilder(siteConfig(), fs, nil)
	require.NoError(t, err)

	// The snippet target is missing and the walker is strict by default.
	require.Error(t, b.Build(context.Background()))
	assert.True(t, b.Runner().NeedsUpdate(), "the failed page stays pending")

	// Restoring the file and building again succeeds without any explicit
	// invalidation.
	require.NoError(t, afero.WriteFile(fs, "/site/header.html",
		[]byte(`<html><body><h1>Jen Site</h1></body></html>`), 0o644))
	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, 1, b.Stats().Pages)
	assert.Contains(t, readOut(t, fs, "/out/index.html"), "<h1>Jen Site</h1>")
}

func TestBuilder_LenientMissingAssets(t *testing.T) {
	fs := siteFixture(t)
	require.NoError(t, fs.Remove("/site/img/logo.png"))

	cfg := siteConfig()
	cfg.Walker.IgnoreNotFound = true
	b, err := NewBuilder(cfg, fs, nil)
	require.NoError(t, err)

	require.NoError(t, b.Build(context.Background()))
	assert.Equal(t, 1, b.Stats().Pages)
	assert.Equal(t, 1, b.Stats().Assets, "only the stylesheet is copied")
}

func TestBuilder_NonHTMLEntry(t *testing.T) {
	fs := siteFixture(t)
	cfg := siteConfig()
	cfg.Site.Entries = []string{"data.csv"}

	b, err := NewBuilder(cfg, fs, nil)
	require.NoError(t, err)

	err = b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want html")
}
