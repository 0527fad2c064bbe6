package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Rasterizer renders PDF pages to PNG files with pdftoppm.
type Rasterizer struct {
	Bin      string
	DPI      int
	MaxPages int // 0 renders every page
	Runner   Runner
}

// Pages holds rendered page images in order. Cleanup removes them.
type Pages struct {
	dir   string
	Paths []string
}

func (p *Pages) Cleanup() error {
	if p == nil || p.dir == "" {
		return nil
	}
	return os.RemoveAll(p.dir)
}

func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string) (*Pages, error) {
	dir, err := os.MkdirTemp("", "ocr-pages-*")
	if err != nil {
		return nil, fmt.Errorf("create page dir: %w", err)
	}
	pages := &Pages{dir: dir}

	bin := r.Bin
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 150
	}
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	args := []string{"-r", strconv.Itoa(dpi), "-png"}
	if r.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(r.MaxPages))
	}
	args = append(args, pdfPath, filepath.Join(dir, "page"))

	if _, err := runner.Run(ctx, bin, args...); err != nil {
		_ = pages.Cleanup()
		return nil, fmt.Errorf("%w: rasterize: %v", ErrEngineFailed, err)
	}

	paths, err := pagePaths(dir)
	if err != nil {
		_ = pages.Cleanup()
		return nil, err
	}
	if len(paths) == 0 {
		_ = pages.Cleanup()
		return nil, fmt.Errorf("%w: rasterize produced no pages", ErrEngineFailed)
	}
	pages.Paths = paths
	return pages, nil
}

// pagePaths lists page-N.png files ordered by N. pdftoppm zero-pads N to the
// width of the page count, so lexical order is not enough.
func pagePaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read page dir: %w", err)
	}
	type page struct {
		n    int
		path string
	}
	var found []page
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".png") {
			continue
		}
		i := strings.LastIndexByte(name, '-')
		if i < 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name[i+1:], ".png"))
		if err != nil {
			continue
		}
		found = append(found, page{n: n, path: filepath.Join(dir, name)})
	}
	sort.Slice(found, func(a, b int) bool { return found[a].n < found[b].n })

	out := make([]string, len(found))
	for i, p := range found {
		out[i] = p.path
	}
	return out, nil
}
