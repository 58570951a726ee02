// internal/content/fetch.go
package content

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/beevik/etree"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/jen-cli/internal/media"
	"github.com/xkilldash9x/jen-cli/internal/refs"
)

// FailureKind classifies fetch failures so callers can decide which ones are
// ignorable. NotFound and PermissionDenied are the recoverable kinds; Generic
// covers everything else (I/O, transport, decode).
type FailureKind int

const (
	FailureGeneric FailureKind = iota
	FailureNotFound
	FailurePermission
)

// FetchError wraps a failed fetch with its classification and the reference
// that was being fetched.
type FetchError struct {
	Kind FailureKind
	Ref  string
	Err  error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FailureNotFound:
		return fmt.Sprintf("fetch %s: not found: %v", e.Ref, e.Err)
	case FailurePermission:
		return fmt.Sprintf("fetch %s: permission denied: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Ignorable reports whether the error is a not-found or permission failure,
// the two kinds a lenient traversal may skip.
func Ignorable(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == FailureNotFound || fe.Kind == FailurePermission
}

// Fetcher turns a Reference into typed Content. mediaType may be empty, in
// which case the fetcher sniffs from the target's extension.
type Fetcher interface {
	Fetch(ctx context.Context, ref *refs.Reference, mediaType string) (*Content, error)
}

// FileFetcher reads local references from an afero filesystem.
type FileFetcher struct {
	fs     afero.Fs
	media  *media.Table
	logger *zap.Logger
}

// NewFileFetcher builds a fetcher over fs. A nil fs means the real OS
// filesystem.
func NewFileFetcher(fs afero.Fs, table *media.Table, logger *zap.Logger) *FileFetcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if table == nil {
		table = media.NewTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileFetcher{fs: fs, media: table, logger: logger.Named("fetch-file")}
}

func (f *FileFetcher) Fetch(ctx context.Context, ref *refs.Reference, mediaType string) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ref.IsLocal() {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("not a local reference")}
	}

	raw, err := afero.ReadFile(f.fs, ref.Path())
	if err != nil {
		return nil, classifyFSError(ref, err)
	}

	if mediaType == "" {
		mediaType = f.media.Sniff(ref.Target().Path)
	}
	f.logger.Debug("Fetched local content",
		zap.String("ref", ref.Display()),
		zap.String("mediaType", mediaType),
		zap.Int("bytes", len(raw)))

	return Decode(ref, mediaType, raw)
}

// HTTPFetcher fetches remote references, politely rate limited.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	media   *media.Table
	logger  *zap.Logger
}

// NewHTTPFetcher builds a remote fetcher. rps <= 0 disables rate limiting.
func NewHTTPFetcher(client *http.Client, rps float64, table *media.Table, logger *zap.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if table == nil {
		table = media.NewTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &HTTPFetcher{
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		media:   table,
		logger:  logger.Named("fetch-http"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, ref *refs.Reference, mediaType string) (*Content, error) {
	if ref.IsLocal() {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("not a remote reference")}
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: err}
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusGone:
		return nil, &FetchError{Kind: FailureNotFound, Ref: ref.String(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return nil, &FetchError{Kind: FailurePermission, Ref: ref.String(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: err}
	}

	if mediaType == "" {
		if ct := resp.Header.Get("Content-Type"); ct != "" {
			mediaType = media.Base(ct)
		} else {
			mediaType = f.media.Sniff(ref.Target().Path)
		}
	}
	f.logger.Debug("Fetched remote content", zap.String("ref", ref.String()), zap.String("mediaType", mediaType))

	return Decode(ref, mediaType, raw)
}

// Dispatcher routes a fetch to the local or remote fetcher based on the
// reference's scheme.
type Dispatcher struct {
	Local  Fetcher
	Remote Fetcher
}

func (d *Dispatcher) Fetch(ctx context.Context, ref *refs.Reference, mediaType string) (*Content, error) {
	if ref.IsLocal() {
		return d.Local.Fetch(ctx, ref, mediaType)
	}
	if d.Remote == nil {
		return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("no remote fetcher configured")}
	}
	return d.Remote.Fetch(ctx, ref, mediaType)
}

// Decode parses raw bytes into the payload variant selected by mediaType.
// Types outside the known set become KindUnknown leaves.
func Decode(ref *refs.Reference, mediaType string, raw []byte) (*Content, error) {
	c := &Content{MediaType: mediaType, Ref: ref, Raw: raw}

	switch media.Base(mediaType) {
	case media.TypeHTML:
		doc, err := html.Parse(bytes.NewReader(raw))
		if err != nil {
			return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("parse html: %w", err)}
		}
		c.Kind = KindHTML
		c.HTML = doc

	case media.TypeSVG:
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(raw); err != nil {
			return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("parse svg: %w", err)}
		}
		c.Kind = KindSVG
		c.SVG = doc

	case media.TypeCSV:
		table, err := decodeCSV(raw)
		if err != nil {
			return nil, &FetchError{Kind: FailureGeneric, Ref: ref.String(), Err: fmt.Errorf("parse csv: %w", err)}
		}
		c.Kind = KindCSV
		c.CSV = table

	default:
		c.Kind = KindUnknown
	}

	return c, nil
}

func decodeCSV(raw []byte) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1 // ragged rows are the data's problem, not a fatal error
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Table{}, nil
	}
	return &Table{Headers: records[0], Rows: records[1:]}, nil
}

func classifyFSError(ref *refs.Reference, err error) error {
	kind := FailureGeneric
	switch {
	case os.IsNotExist(err):
		kind = FailureNotFound
	case os.IsPermission(err):
		kind = FailurePermission
	}
	return &FetchError{Kind: kind, Ref: ref.String(), Err: err}
}
