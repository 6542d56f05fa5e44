// Package extract turns uploaded file bytes into plain text, one extractor
// per accepted file type.
package extract

import (
	"context"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type FileType string

const (
	TypePDF  FileType = "pdf"
	TypeTXT  FileType = "txt"
	TypeDOC  FileType = "doc"
	TypeDOCX FileType = "docx"
)

// Extractor pulls plain text out of a complete file.
type Extractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

var (
	byExtension = map[string]FileType{
		".pdf":  TypePDF,
		".txt":  TypeTXT,
		".doc":  TypeDOC,
		".docx": TypeDOCX,
	}
	byMIME = map[string]FileType{
		"application/pdf":    TypePDF,
		"text/plain":         TypeTXT,
		"application/msword": TypeDOC,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": TypeDOCX,
	}
	contentTypes = map[FileType]string{
		TypePDF:  "application/pdf",
		TypeTXT:  "text/plain",
		TypeDOC:  "application/msword",
		TypeDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
)

// Resolve picks the file type from the filename extension. Files without an
// extension fall back to the declared MIME type, then to content sniffing.
// ok is false for anything outside the accepted set.
func Resolve(filename, declaredType string, data []byte) (FileType, bool) {
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		t, ok := byExtension[ext]
		return t, ok
	}
	if declaredType != "" {
		if mediaType, _, err := mime.ParseMediaType(declaredType); err == nil {
			if t, ok := byMIME[mediaType]; ok {
				return t, true
			}
		}
	}
	if len(data) == 0 {
		return "", false
	}
	detected := mimetype.Detect(data)
	for mt, t := range byMIME {
		if detected.Is(mt) {
			return t, true
		}
	}
	return "", false
}

// ContentType returns the canonical MIME type for t.
func ContentType(t FileType) string {
	return contentTypes[t]
}

// Registry maps each accepted type to its extractor.
type Registry struct {
	extractors map[FileType]Extractor
}

// NewRegistry returns a registry holding the built-in extractors.
func NewRegistry() *Registry {
	return &Registry{extractors: map[FileType]Extractor{
		TypePDF:  PDF{},
		TypeTXT:  Text{},
		TypeDOC:  Doc{},
		TypeDOCX: Docx{},
	}}
}

// Register replaces the extractor for t.
func (r *Registry) Register(t FileType, e Extractor) {
	r.extractors[t] = e
}

func (r *Registry) For(t FileType) (Extractor, bool) {
	e, ok := r.extractors[t]
	return e, ok
}

// Normalize unifies line endings and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}
