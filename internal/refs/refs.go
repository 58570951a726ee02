// internal/refs/refs.go
package refs

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Reference is a resolved, absolute location plus the chain of references it
// was derived from. Local filesystem paths are normalized to file: URLs so
// that one resolution algorithm serves both local documents and remote assets.
//
// The referrer chain is strictly backward (child -> parent) and is never
// mutated after construction. It exists for cycle detection and for rendering
// useful error locations, nothing else.
type Reference struct {
	target   *url.URL
	root     *url.URL // site root directory as a file: URL, nil when unrooted
	referrer *Reference
}

// ResolutionError reports genuinely malformed reference syntax. Filesystem
// oddities (backslashes, missing schemes) are normalized, never rejected, so
// seeing this error means the value could not be parsed as a URL at all.
type ResolutionError struct {
	Value string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve reference %q: %v", e.Value, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// New creates a root Reference (no referrer) for the given target. The target
// may be a URL or a filesystem path; paths are made absolute and converted to
// file: form. rootDir, when non-empty, configures the site root that
// root-relative values ("/style.css") resolve against for any reference inside
// that subtree. Pass "" for no root context.
func New(target, rootDir string) (*Reference, error) {
	t, err := parseTarget(target)
	if err != nil {
		return nil, err
	}

	var root *url.URL
	if rootDir != "" {
		root, err = parseTarget(rootDir)
		if err != nil {
			return nil, err
		}
		// The root is a directory; a trailing slash keeps prefix checks honest
		// ("/site" must not match "/sitemap").
		if !strings.HasSuffix(root.Path, "/") {
			root.Path += "/"
		}
	}

	return &Reference{target: t, root: root}, nil
}

// Resolve combines value with the receiver and returns a new Reference whose
// referrer is the receiver. Resolution rules, in priority order:
//
//  1. A fully qualified absolute URL is taken as-is.
//  2. A leading path separator means "site root" when the receiver sits inside
//     the configured root subtree, and "filesystem root" otherwise.
//  3. Anything else resolves as a standard relative URL against the receiver,
//     except that references inside the root subtree cannot climb above the
//     root with dot-segments; escapes clamp at the root.
func (r *Reference) Resolve(value string) (*Reference, error) {
	if value == "" {
		return nil, &ResolutionError{Value: value, Err: fmt.Errorf("empty reference")}
	}

	// Rule 1: absolute URLs pass through untouched (modulo file path cleanup).
	if u, err := url.Parse(value); err == nil && u.IsAbs() && len(u.Scheme) > 1 {
		if u.Scheme == "file" {
			u.Path = path.Clean(filepath.ToSlash(u.Path))
		}
		return &Reference{target: u, root: r.root, referrer: r}, nil
	}

	norm := filepath.ToSlash(value)

	// Rule 2: leading separator.
	if strings.HasPrefix(norm, "/") && r.IsLocal() {
		var p string
		if r.inRoot() {
			p = r.root.Path + strings.TrimPrefix(path.Clean(norm), "/")
		} else {
			p = path.Clean(norm)
		}
		return &Reference{
			target:   &url.URL{Scheme: "file", Path: p},
			root:     r.root,
			referrer: r,
		}, nil
	}

	// Rule 3: relative resolution.
	rel, err := url.Parse(norm)
	if err != nil {
		return nil, &ResolutionError{Value: value, Err: err}
	}

	if r.IsLocal() && r.inRoot() {
		// Resolve in root-relative path space so dot-segments collapse at the
		// site root instead of wandering up the real filesystem.
		base := &url.URL{Scheme: "file", Path: "/" + strings.TrimPrefix(r.target.Path, r.root.Path)}
		res := base.ResolveReference(rel)
		res.Path = r.root.Path + strings.TrimPrefix(res.Path, "/")
		return &Reference{target: res, root: r.root, referrer: r}, nil
	}

	return &Reference{
		target:   r.target.ResolveReference(rel),
		root:     r.root,
		referrer: r,
	}, nil
}

// inRoot reports whether the reference's target lies inside the configured
// root subtree. Unrooted and remote references are never "in root".
func (r *Reference) inRoot() bool {
	if r.root == nil || !r.IsLocal() {
		return false
	}
	return r.target.Path == strings.TrimSuffix(r.root.Path, "/") ||
		strings.HasPrefix(r.target.Path, r.root.Path)
}

// IsLocal reports whether the target is a local file.
func (r *Reference) IsLocal() bool { return r.target.Scheme == "file" }

// Target returns the absolute resolved target.
func (r *Reference) Target() *url.URL {
	u := *r.target
	return &u
}

// String returns the canonical absolute form of the target.
func (r *Reference) String() string { return r.target.String() }

// Path returns the operating-system filesystem path for a local reference and
// the full URL otherwise.
func (r *Reference) Path() string {
	if r.IsLocal() {
		return filepath.FromSlash(r.target.Path)
	}
	return r.target.String()
}

// Referrer returns the Reference this one was resolved from, or nil for an
// entry point.
func (r *Reference) Referrer() *Reference { return r.referrer }

// Root returns the configured root context, or nil.
func (r *Reference) Root() *url.URL {
	if r.root == nil {
		return nil
	}
	u := *r.root
	return &u
}

// Display renders the reference for humans: relative to the site root when the
// target sits inside it, the bare filesystem path for other local targets, and
// the full URL for remote ones.
func (r *Reference) Display() string {
	if r.inRoot() {
		if rel := strings.TrimPrefix(r.target.Path, r.root.Path); rel != "" {
			return rel
		}
		return "."
	}
	if r.IsLocal() {
		return r.target.Path
	}
	return r.target.String()
}

// RelativeTo computes the value that, resolved against base, reproduces r's
// target. Falls back to the absolute form when the two references do not share
// a scheme and authority.
func (r *Reference) RelativeTo(base *Reference) string {
	if r.target.Scheme != base.target.Scheme || r.target.Host != base.target.Host {
		return r.target.String()
	}

	baseDir := path.Dir(base.target.Path)
	rel, err := filepath.Rel(filepath.FromSlash(baseDir), filepath.FromSlash(r.target.Path))
	if err != nil {
		return r.target.String()
	}

	out := filepath.ToSlash(rel)
	if r.target.RawQuery != "" {
		out += "?" + r.target.RawQuery
	}
	if r.target.Fragment != "" {
		out += "#" + r.target.Fragment
	}
	return out
}

// Chain returns the resolution ancestry from this reference back to its entry
// point, nearest first. Useful for cycle diagnostics.
func (r *Reference) Chain() []string {
	var out []string
	for cur := r; cur != nil; cur = cur.referrer {
		out = append(out, cur.target.String())
	}
	return out
}

// InChain reports whether target (compared by resolved target value, not
// object identity) already appears among the receiver's ancestors. This is the
// walker's cycle probe.
func (r *Reference) InChain(target string) bool {
	for cur := r.referrer; cur != nil; cur = cur.referrer {
		if cur.target.String() == target {
			return true
		}
	}
	return false
}

// parseTarget normalizes a URL-or-path into an absolute URL.
func parseTarget(target string) (*url.URL, error) {
	if u, err := url.Parse(target); err == nil && u.IsAbs() && len(u.Scheme) > 1 {
		if u.Scheme == "file" {
			u.Path = path.Clean(filepath.ToSlash(u.Path))
		}
		return u, nil
	}

	p := filepath.ToSlash(target)
	if !strings.HasPrefix(p, "/") {
		abs, err := filepath.Abs(filepath.FromSlash(p))
		if err != nil {
			return nil, &ResolutionError{Value: target, Err: err}
		}
		p = filepath.ToSlash(abs)
	}
	return &url.URL{Scheme: "file", Path: path.Clean(p)}, nil
}
