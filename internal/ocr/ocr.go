package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"doc-intake-service/internal/config"
	"doc-intake-service/internal/logger"
)

var ErrEngineFailed = errors.New("ocr engine failed")

type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Block struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Result is the output of one OCR pass. Confidences are in 0..1.
type Result struct {
	FullText          string        `json:"full_text"`
	Blocks            []Block       `json:"blocks"`
	AverageConfidence float64       `json:"average_confidence"`
	Language          string        `json:"language"`
	ProcessingTime    time.Duration `json:"processing_time"`
}

type Engine interface {
	Name() string
	ExtractText(ctx context.Context, path, language string) (*Result, error)
}

// Runner executes an external program and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

var tesseractLanguages = map[string]string{
	"auto": "eng",
	"en":   "eng",
	"hi":   "hin",
	"ta":   "tam",
	"te":   "tel",
}

// TesseractLanguage maps a request language to a tesseract traineddata name.
func TesseractLanguage(lang string) string {
	if code, ok := tesseractLanguages[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return code
	}
	return "eng"
}

// NewExtractor wires the engine chosen by cfg.OCRBackend with a pdftoppm
// rasterizer.
func NewExtractor(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Extractor, error) {
	var engine Engine
	switch cfg.OCRBackend {
	case "", "tesseract":
		engine = NewTesseract(cfg.TesseractBin, ExecRunner{})
	case "vision":
		v, err := NewVision(ctx, cfg.VisionCredentials)
		if err != nil {
			return nil, err
		}
		engine = v
	default:
		return nil, &config.Error{Key: "OCR_BACKEND", Reason: fmt.Sprintf("unknown backend %q", cfg.OCRBackend)}
	}
	raster := &Rasterizer{Bin: cfg.PdftoppmBin, DPI: cfg.OCRDPI, MaxPages: cfg.OCRMaxPages, Runner: ExecRunner{}}
	return NewExtractorWith(engine, raster, log), nil
}
