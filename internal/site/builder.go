// internal/site/builder.go
package site

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/jen-cli/internal/config"
	"github.com/xkilldash9x/jen-cli/internal/content"
	"github.com/xkilldash9x/jen-cli/internal/media"
	"github.com/xkilldash9x/jen-cli/internal/refs"
	"github.com/xkilldash9x/jen-cli/internal/taskgraph"
	"github.com/xkilldash9x/jen-cli/internal/walker"
)

// Builder wires the task runner, walker, and fetchers into the site build
// pipeline: one top-level task per entry page, asset copies as inline
// sub-tasks, directive expansion, and rendering into the output directory.
type Builder struct {
	fs     afero.Fs
	root   string // absolute site root (OS path)
	out    string // absolute output dir (OS path)
	opts   walker.Options
	media  *media.Table
	walk   *walker.Walker
	runner *taskgraph.Runner
	logger *zap.Logger

	stats Stats
}

// NewBuilder constructs the pipeline and registers one task per configured
// entry page. A nil fs means the real OS filesystem.
func NewBuilder(cfg *config.Config, fs afero.Fs, logger *zap.Logger) (*Builder, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	root, err := filepath.Abs(cfg.Site.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid site root %q: %w", cfg.Site.Root, err)
	}
	out, err := filepath.Abs(cfg.Site.Out)
	if err != nil {
		return nil, fmt.Errorf("invalid output dir %q: %w", cfg.Site.Out, err)
	}

	table := media.NewTable()
	for ext, mt := range cfg.Site.MediaTypes {
		table.Register(ext, mt)
	}

	var remote content.Fetcher
	if cfg.Walker.FollowRemote {
		remote = content.NewHTTPFetcher(nil, cfg.Walker.RemoteRPS, table, logger)
	}
	fetch := &content.Dispatcher{
		Local:  content.NewFileFetcher(fs, table, logger),
		Remote: remote,
	}

	b := &Builder{
		fs:    fs,
		root:  root,
		out:   out,
		media: table,
		opts: walker.Options{
			Cycle:          cyclePolicy(cfg.Walker.CyclePolicy),
			FollowRemote:   cfg.Walker.FollowRemote,
			IgnoreNotFound: cfg.Walker.IgnoreNotFound,
		},
		walk:   walker.New(fetch, table, logger),
		runner: taskgraph.NewRunner(logger),
		logger: logger.Named("site"),
	}

	for _, entry := range cfg.Site.Entries {
		page := filepath.Join(root, filepath.FromSlash(entry))
		b.runner.Add("page:"+entry, b.pageTask, []string{page})
	}

	return b, nil
}

// Runner exposes the underlying task runner so watch mode can feed
// invalidations into it.
func (b *Builder) Runner() *taskgraph.Runner { return b.runner }

// Build runs one update pass over everything currently pending and refreshes
// the build stats.
func (b *Builder) Build(ctx context.Context) error {
	start := time.Now()
	b.stats = Stats{}

	if err := b.runner.Update(ctx); err != nil {
		return err
	}

	b.stats.Duration = time.Since(start)
	b.stats.TrackedPaths = b.runner.TrackedPaths()
	b.logger.Info("Build pass complete",
		zap.Int("pages", b.stats.Pages),
		zap.Int("assets", b.stats.Assets),
		zap.Int("trackedPaths", b.stats.TrackedPaths),
		zap.Duration("duration", b.stats.Duration))
	return nil
}

// Stats returns the counters from the most recent Build call.
func (b *Builder) Stats() Stats { return b.stats }

// pageTask builds every page in inputs: walk its content graph to collect
// dependencies and assets, expand directives, render to the output dir.
func (b *Builder) pageTask(ctx context.Context, tc *taskgraph.Context, inputs []string) error {
	for _, page := range inputs {
		if err := b.buildPage(ctx, tc, page); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) buildPage(ctx context.Context, tc *taskgraph.Context, page string) error {
	log := b.logger.With(zap.String("page", page))
	log.Debug("Building page")

	entry, err := refs.New(page, b.root)
	if err != nil {
		return err
	}

	// fetched caches everything the walk visits, keyed by absolute target,
	// so directive expansion does not fetch twice.
	fetched := make(map[string]*content.Content)
	var pageContent *content.Content

	err = b.walk.Walk(ctx, entry, b.opts, func(e *walker.Entry) error {
		c := e.Content
		fetched[c.Ref.String()] = c

		if e.Origin == nil {
			pageContent = c
			return nil
		}
		if !c.Ref.IsLocal() {
			return nil
		}

		switch c.Kind {
		case content.KindHTML, content.KindCSV:
			// Feeds the rendered page; the page task itself depends on it.
			tc.DependOn(c.Ref.Path())
		case content.KindSVG, content.KindUnknown:
			// Copied verbatim. The copy is its own sub-task keyed by the
			// asset path, so a changed asset re-runs just the copy, not the
			// whole page.
			src := c.Ref.Path()
			name := "asset:" + b.relToRoot(src)
			if err := tc.Do(ctx, name, b.copyAssetTask, []string{src}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if pageContent == nil {
		log.Warn("Entry page yielded no content")
		return nil
	}
	if pageContent.Kind != content.KindHTML {
		return fmt.Errorf("entry %s is %s, want html", page, pageContent.Kind)
	}

	x := &Expander{
		Lookup: func(r *refs.Reference) (*content.Content, bool) {
			c, ok := fetched[r.String()]
			return c, ok
		},
		Logger: b.logger,
	}
	if err := x.Expand(pageContent); err != nil {
		return err
	}

	outPath := filepath.Join(b.out, b.relToRoot(page))
	if err := renderPage(b.fs, outPath, pageContent.HTML); err != nil {
		return err
	}
	b.stats.Pages++
	log.Debug("Rendered page", zap.String("out", outPath))
	return nil
}

// copyAssetTask copies each input file verbatim into the output directory,
// preserving its path relative to the site root.
func (b *Builder) copyAssetTask(ctx context.Context, tc *taskgraph.Context, inputs []string) error {
	for _, src := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := b.relToRoot(src)
		if strings.HasPrefix(rel, "..") {
			b.logger.Warn("Asset outside site root, not copied", zap.String("asset", src))
			continue
		}
		if err := copyFile(b.fs, src, filepath.Join(b.out, rel)); err != nil {
			return err
		}
		b.stats.Assets++
	}
	return nil
}

func (b *Builder) relToRoot(p string) string {
	rel, err := filepath.Rel(b.root, p)
	if err != nil {
		return filepath.Base(p)
	}
	return rel
}

func cyclePolicy(name string) walker.CyclePolicy {
	switch name {
	case "fail":
		return walker.CycleFail
	case "allow":
		return walker.CycleAllow
	default:
		return walker.CyclePrune
	}
}
