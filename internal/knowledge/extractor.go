package knowledge

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Extractor converts uploaded file bytes into indexable text.
//
// Real parsing of binary formats (PDF, DOCX) is an external collaborator's
// job; the default extractor emits a placeholder marker for those so the
// document still exists in the index and can be re-extracted later.
type Extractor interface {
	Extract(filename string, data []byte, mimeType string) (string, error)
}

// textMIMEPrefixes and textMIMETypes identify content decoded as plain text.
var textMIMETypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/javascript": true,
	"application/x-yaml":     true,
}

// placeholderLabels maps known binary types to their marker label.
var placeholderLabels = map[string]string{
	"application/pdf": "PDF Document",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "Word Document",
	"application/msword": "Word Document",
}

// DefaultExtractor decodes text MIME types and emits placeholders for
// binary ones.
type DefaultExtractor struct{}

// NewDefaultExtractor creates the default extractor.
func NewDefaultExtractor() *DefaultExtractor {
	return &DefaultExtractor{}
}

// Extract returns the decoded text for text-like MIME types, or a
// placeholder marker for binary types.
func (e *DefaultExtractor) Extract(filename string, data []byte, mimeType string) (string, error) {
	mime := normalizeMIME(mimeType)

	if strings.HasPrefix(mime, "text/") || textMIMETypes[mime] {
		if !utf8.Valid(data) {
			return "", fmt.Errorf("file %s claims %s but is not valid UTF-8", filename, mime)
		}
		return string(data), nil
	}

	label, ok := placeholderLabels[mime]
	if !ok {
		label = "Binary File"
	}
	return fmt.Sprintf("[%s] %s", label, filename), nil
}

// normalizeMIME strips parameters ("text/plain; charset=utf-8") and lowercases.
func normalizeMIME(mimeType string) string {
	mime := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
