package service

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"
)

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

var allowedContentTypes = map[string]string{
	"application/pdf": "application/pdf",
	"image/png":       "image/png",
	"image/jpeg":      "image/jpeg",
	"image/jpg":       "image/jpeg",
	"image/tiff":      "image/tiff",
}

// sniffType identifies the document type from its leading bytes.
func sniffType(data []byte) (string, bool) {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return "application/pdf", true
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", false
	}
	switch format {
	case "png":
		return "image/png", true
	case "jpeg":
		return "image/jpeg", true
	case "tiff":
		return "image/tiff", true
	}
	return "", false
}

// detectFileType validates extension, declared type and content agree and
// returns the canonical MIME type with the lower-cased extension.
func detectFileType(filename, declared string, data []byte) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	byExt, ok := allowedExtensions[ext]
	if !ok {
		return "", "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}

	if declared != "" {
		mt, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", "", fmt.Errorf("%w: content type %q", ErrUnsupportedType, declared)
		}
		if mt != "application/octet-stream" {
			canon, ok := allowedContentTypes[mt]
			if !ok {
				return "", "", fmt.Errorf("%w: content type %q", ErrUnsupportedType, mt)
			}
			if canon != byExt {
				return "", "", fmt.Errorf("%w: content type %q does not match extension %q", ErrUnsupportedType, mt, ext)
			}
		}
	}

	sniffed, ok := sniffType(data)
	if !ok || sniffed != byExt {
		return "", "", fmt.Errorf("%w: file content is not %s", ErrUnsupportedType, byExt)
	}
	return sniffed, ext, nil
}
