// internal/site/render.go
package site

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/net/html"
)

// renderPage serializes doc to outPath, creating parent directories as needed.
func renderPage(fs afero.Fs, outPath string, doc *html.Node) error {
	if err := fs.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := fs.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()

	if err := html.Render(f, doc); err != nil {
		return fmt.Errorf("render %s: %w", outPath, err)
	}
	return nil
}

// copyFile copies src to dst verbatim.
func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return fmt.Errorf("read asset %s: %w", src, err)
	}
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}
	if err := afero.WriteFile(fs, dst, data, 0o644); err != nil {
		return fmt.Errorf("write asset %s: %w", dst, err)
	}
	return nil
}
