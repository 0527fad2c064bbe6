package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// tsv columns emitted by `tesseract ... tsv`
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

const wordLevel = "5"

type TesseractEngine struct {
	bin    string
	runner Runner
}

func NewTesseract(bin string, runner Runner) *TesseractEngine {
	if bin == "" {
		bin = "tesseract"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &TesseractEngine{bin: bin, runner: runner}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) ExtractText(ctx context.Context, path, language string) (*Result, error) {
	start := time.Now()
	lang := TesseractLanguage(language)

	out, err := e.runner.Run(ctx, e.bin, path, "stdout", "-l", lang, "tsv")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}

	res := parseTSV(out)
	res.Language = lang
	res.ProcessingTime = time.Since(start)
	return res, nil
}

// parseTSV turns word rows into blocks. Malformed rows are skipped; output
// without the expected header yields an empty result.
func parseTSV(data []byte) *Result {
	res := &Result{Blocks: []Block{}}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	if !sc.Scan() || !strings.HasPrefix(sc.Text(), "level\t") {
		return res
	}

	var (
		lines   []string
		current []string
		lineKey string
		confSum float64
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = nil
		}
	}

	for sc.Scan() {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) < tsvColumns || fields[colLevel] != wordLevel {
			continue
		}
		text := strings.TrimSpace(fields[colText])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(fields[colConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		box, ok := parseBox(fields)
		if !ok {
			continue
		}

		key := fields[colPage] + "." + fields[colBlock] + "." + fields[colPar] + "." + fields[colLine]
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, text)

		res.Blocks = append(res.Blocks, Block{Text: text, Confidence: conf / 100, BBox: box})
		confSum += conf / 100
	}
	flush()

	res.FullText = strings.Join(lines, "\n")
	if n := len(res.Blocks); n > 0 {
		res.AverageConfidence = confSum / float64(n)
	}
	return res
}

func parseBox(fields []string) (BBox, bool) {
	var v [4]int
	for i, col := range []int{colLeft, colTop, colWidth, colHeight} {
		n, err := strconv.Atoi(fields[col])
		if err != nil {
			return BBox{}, false
		}
		v[i] = n
	}
	return BBox{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, true
}
