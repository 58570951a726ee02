// internal/walker/walker.go
package walker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/jen-cli/internal/content"
	"github.com/xkilldash9x/jen-cli/internal/media"
	"github.com/xkilldash9x/jen-cli/internal/refs"
)

// CyclePolicy selects how a traversal reacts when the reference chain
// revisits a target it already passed through.
type CyclePolicy int

const (
	// CyclePrune silently stops the revisiting branch.
	CyclePrune CyclePolicy = iota
	// CycleFail aborts the traversal with a CycleError.
	CycleFail
	// CycleAllow keeps going. Bounding the recursion is the caller's problem.
	CycleAllow
)

// CycleError reports a reference chain that looped back on itself. Chain is in
// resolution order, entry point first, offending reference last.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("reference cycle: %s", strings.Join(e.Chain, " -> "))
}

// ErrStop tells Walk to end the traversal early. Walk swallows it and returns
// nil, mirroring filepath.SkipAll.
var ErrStop = errors.New("walker: stop traversal")

// Options tune one traversal.
type Options struct {
	Cycle          CyclePolicy
	FollowRemote   bool   // fetch http(s) references instead of skipping them
	IgnoreNotFound bool   // missing/forbidden resources end the branch quietly
	MediaType      string // declared type of the entry document; "" sniffs
}

// Origin says which attribute of which document produced a reference.
type Origin struct {
	Ref  *refs.Reference // the referring document
	Tag  string
	Attr string
	Loc  content.Location
}

// Entry is one visited content node: the content itself plus the source
// location that referenced it (nil for the traversal's entry point).
type Entry struct {
	Content *content.Content
	Origin  *Origin
}

// VisitFunc receives entries in depth-first discovery order. Returning ErrStop
// ends the walk cleanly; any other error aborts it.
type VisitFunc func(*Entry) error

// Walker performs depth-first traversals of content graphs. It owns no global
// state; the media table and fetcher are injected at construction.
type Walker struct {
	fetch  content.Fetcher
	media  *media.Table
	logger *zap.Logger
}

func New(fetch content.Fetcher, table *media.Table, logger *zap.Logger) *Walker {
	if table == nil {
		table = media.NewTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{fetch: fetch, media: table, logger: logger.Named("walker")}
}

// Walk traverses the content graph rooted at entry, invoking visit for every
// node exactly as encountered. Each call performs a fresh traversal; nothing
// is cached between calls.
func (w *Walker) Walk(ctx context.Context, entry *refs.Reference, opts Options, visit VisitFunc) error {
	err := w.walk(ctx, entry, opts.MediaType, nil, opts, visit)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func (w *Walker) walk(ctx context.Context, ref *refs.Reference, mediaType string, origin *Origin, opts Options, visit VisitFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Cycle probe: has this target already appeared among its own ancestors?
	// Comparison is by resolved target value, so two distinct Reference objects
	// reaching the same document still count as a cycle.
	if ref.InChain(ref.String()) {
		switch opts.Cycle {
		case CyclePrune:
			w.logger.Debug("Pruning cyclic reference", zap.String("ref", ref.Display()))
			return nil
		case CycleFail:
			chain := ref.Chain()
			// Chain() is nearest-first; diagnostics read better entry-first.
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return &CycleError{Chain: chain}
		case CycleAllow:
			// fall through, caller asked for it
		}
	}

	if !ref.IsLocal() && !opts.FollowRemote {
		w.logger.Debug("Skipping remote reference", zap.String("ref", ref.String()))
		return nil
	}

	c, err := w.fetch.Fetch(ctx, ref, mediaType)
	if err != nil {
		if opts.IgnoreNotFound && content.Ignorable(err) {
			w.logger.Debug("Ignoring missing resource", zap.String("ref", ref.Display()), zap.Error(err))
			return nil
		}
		return err
	}

	if err := visit(&Entry{Content: c, Origin: origin}); err != nil {
		return err
	}

	return w.descend(ctx, c, opts, visit)
}

// descend extracts the outgoing references of c and walks each in document
// order. CSV and unknown content are leaves.
func (w *Walker) descend(ctx context.Context, c *content.Content, opts Options, visit VisitFunc) error {
	var raws []content.RawRef
	switch c.Kind {
	case content.KindHTML:
		raws = content.HTMLRefs(c.HTML)
	case content.KindSVG:
		raws = content.SVGRefs(c.SVG)
	case content.KindCSV, content.KindUnknown:
		return nil
	}

	// One forward-moving cursor per document keeps repeated attribute values
	// attributed to successive occurrences.
	cursor := 0
	for _, raw := range raws {
		child, err := c.Ref.Resolve(raw.Value)
		if err != nil {
			return err
		}

		origin := &Origin{Ref: c.Ref, Tag: raw.Tag, Attr: raw.Attr}
		if loc, off := content.Locate(c.Raw, raw.Value, cursor); off >= 0 {
			origin.Loc = loc
			cursor = off + len(raw.Value)
		}

		if err := w.walk(ctx, child, w.inferMediaType(raw, child), origin, opts, visit); err != nil {
			return err
		}
	}
	return nil
}

// inferMediaType picks the child's media type: an explicit type attribute
// wins, script tags default to javascript, everything else sniffs by
// extension (falling back to octet-stream).
func (w *Walker) inferMediaType(raw content.RawRef, ref *refs.Reference) string {
	if raw.TypeAttr != "" {
		return media.Base(raw.TypeAttr)
	}
	if raw.Tag == "script" {
		return media.TypeJS
	}
	if mt, ok := w.media.Lookup(ref.Target().Path); ok {
		return mt
	}
	return media.TypeBinary
}
