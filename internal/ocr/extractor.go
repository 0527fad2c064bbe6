package ocr

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"doc-intake-service/internal/entity"
	"doc-intake-service/internal/logger"
)

// PageHeight is the vertical offset applied per page when merging blocks of
// a multi-page document.
const PageHeight = 1000

type PageResult struct {
	Number int
	Result *Result
}

// Document is the merged extraction of a file plus its per-page results.
type Document struct {
	Result
	Engine string
	Pages  []PageResult
}

// PageRasterizer splits a PDF into page images.
type PageRasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) (*Pages, error)
}

type Extractor struct {
	engine Engine
	raster PageRasterizer
	log    *logger.Logger
}

func NewExtractorWith(engine Engine, raster PageRasterizer, log *logger.Logger) *Extractor {
	return &Extractor{engine: engine, raster: raster, log: log}
}

func (x *Extractor) EngineName() string { return x.engine.Name() }

// Close releases engine clients that hold connections.
func (x *Extractor) Close() error {
	if c, ok := x.engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Extract runs OCR on an image directly, or on every rasterized page of a
// PDF. Any page failure aborts the whole extraction.
func (x *Extractor) Extract(ctx context.Context, path, mimeType, language string) (*Document, error) {
	if mimeType != "application/pdf" {
		res, err := x.engine.ExtractText(ctx, path, language)
		if err != nil {
			return nil, err
		}
		return &Document{
			Result: *res,
			Engine: x.engine.Name(),
			Pages:  []PageResult{{Number: 1, Result: res}},
		}, nil
	}

	pages, err := x.raster.Rasterize(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pages.Cleanup(); err != nil {
			x.log.Warn("page cleanup failed", "error", err)
		}
	}()

	results := make([]PageResult, 0, len(pages.Paths))
	for i, p := range pages.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := x.engine.ExtractText(ctx, p, language)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}
		results = append(results, PageResult{Number: i + 1, Result: res})
	}

	doc := merge(results)
	doc.Engine = x.engine.Name()
	return doc, nil
}

// merge joins page texts with the page-break marker, shifts block Y by the
// page offset and weights average confidence by block count.
func merge(pages []PageResult) *Document {
	doc := &Document{Pages: pages}
	doc.Blocks = []Block{}

	texts := make([]string, 0, len(pages))
	var weighted float64
	var elapsed time.Duration
	for i, p := range pages {
		texts = append(texts, p.Result.FullText)
		for _, b := range p.Result.Blocks {
			b.BBox.Y += i * PageHeight
			doc.Blocks = append(doc.Blocks, b)
		}
		weighted += p.Result.AverageConfidence * float64(len(p.Result.Blocks))
		elapsed += p.Result.ProcessingTime
		if doc.Language == "" {
			doc.Language = p.Result.Language
		}
	}

	doc.FullText = strings.Join(texts, entity.PageBreak)
	if n := len(doc.Blocks); n > 0 {
		doc.AverageConfidence = weighted / float64(n)
	}
	doc.ProcessingTime = elapsed
	return doc
}
