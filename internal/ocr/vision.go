package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"

	"doc-intake-service/internal/storage"
)

// VisionEngine calls Google Cloud Vision DOCUMENT_TEXT_DETECTION.
type VisionEngine struct {
	client *vision.ImageAnnotatorClient
}

func NewVision(ctx context.Context, creds string) (*VisionEngine, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, storage.GoogleClientOptions(creds)...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &VisionEngine{client: client}, nil
}

func (e *VisionEngine) Name() string { return "vision" }

func (e *VisionEngine) Close() error { return e.client.Close() }

func (e *VisionEngine) ExtractText(ctx context.Context, path, language string) (*Result, error) {
	start := time.Now()
	img, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.AnnotateImageRequest{
		Image:    &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
	}
	if hint := visionLanguageHint(language); hint != "" {
		req.ImageContext = &visionpb.ImageContext{LanguageHints: []string{hint}}
	}

	resp, err := e.client.BatchAnnotateImages(ctx, &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{req},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vision BatchAnnotateImages: %v", ErrEngineFailed, err)
	}

	res := &Result{Blocks: []Block{}, Language: language}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		res.ProcessingTime = time.Since(start)
		return res, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("%w: vision annotate: %s", ErrEngineFailed, r0.Error.Message)
	}

	fromAnnotation(res, r0.FullTextAnnotation)
	res.ProcessingTime = time.Since(start)
	return res, nil
}

func fromAnnotation(res *Result, fta *visionpb.TextAnnotation) {
	if fta == nil {
		return
	}
	res.FullText = strings.TrimSpace(fta.Text)

	var sum float64
	for _, pg := range fta.Pages {
		if pg == nil {
			continue
		}
		if res.Language == "" || res.Language == "auto" {
			if p := pg.GetProperty(); p != nil && len(p.DetectedLanguages) > 0 {
				res.Language = p.DetectedLanguages[0].LanguageCode
			}
		}
		for _, b := range pg.Blocks {
			if b == nil {
				continue
			}
			res.Blocks = append(res.Blocks, Block{
				Text:       blockText(b),
				Confidence: float64(b.Confidence),
				BBox:       boxFromPoly(b.BoundingBox),
			})
			sum += float64(b.Confidence)
		}
	}
	if n := len(res.Blocks); n > 0 {
		res.AverageConfidence = sum / float64(n)
	}
}

func blockText(b *visionpb.Block) string {
	var sb strings.Builder
	for _, p := range b.GetParagraphs() {
		for _, w := range p.GetWords() {
			for _, s := range w.GetSymbols() {
				sb.WriteString(s.GetText())
				if br := s.GetProperty().GetDetectedBreak(); br != nil {
					switch br.Type {
					case visionpb.TextAnnotation_DetectedBreak_SPACE, visionpb.TextAnnotation_DetectedBreak_SURE_SPACE:
						sb.WriteByte(' ')
					case visionpb.TextAnnotation_DetectedBreak_EOL_SURE_SPACE, visionpb.TextAnnotation_DetectedBreak_LINE_BREAK:
						sb.WriteByte('\n')
					}
				}
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func boxFromPoly(bp *visionpb.BoundingPoly) BBox {
	if bp == nil {
		return BBox{}
	}
	var minX, minY, maxX, maxY int32
	seen := false
	for _, v := range bp.Vertices {
		if v == nil {
			continue
		}
		if !seen {
			minX, maxX, minY, maxY = v.X, v.X, v.Y, v.Y
			seen = true
			continue
		}
		minX, maxX = min(minX, v.X), max(maxX, v.X)
		minY, maxY = min(minY, v.Y), max(maxY, v.Y)
	}
	return BBox{X: int(minX), Y: int(minY), Width: int(maxX - minX), Height: int(maxY - minY)}
}

func visionLanguageHint(lang string) string {
	switch l := strings.ToLower(strings.TrimSpace(lang)); l {
	case "", "auto":
		return ""
	default:
		return l
	}
}
