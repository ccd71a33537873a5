// Package extract converts uploaded resource bytes into plain text for
// chunking.
package extract

import (
	"fmt"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/covelabs/docdex/internal/apperr"
)

// Extractor converts one media type's bytes into plain text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// Registry resolves extractors by content type.
type Registry struct {
	byType map[string]Extractor
}

// NewRegistry creates a registry with the built-in extractors.
func NewRegistry() *Registry {
	plain := plainText{}
	return &Registry{byType: map[string]Extractor{
		"text/plain":       plain,
		"text/markdown":    plain,
		"text/csv":         plain,
		"application/json": plain,
		"text/html":        htmlText{},
	}}
}

// Register adds or replaces the extractor for a content type.
func (r *Registry) Register(contentType string, e Extractor) {
	r.byType[contentType] = e
}

// Supported reports whether the content type has an extractor.
func (r *Registry) Supported(contentType string) bool {
	_, err := r.resolve(contentType)
	return err == nil
}

// Extract converts data of the given content type into text.
func (r *Registry) Extract(contentType string, data []byte) (string, error) {
	e, err := r.resolve(contentType)
	if err != nil {
		return "", err
	}
	return e.Extract(data)
}

func (r *Registry) resolve(contentType string) (Extractor, error) {
	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if e, ok := r.byType[mediaType]; ok {
		return e, nil
	}
	// Any unregistered text subtype falls back to plain extraction.
	if strings.HasPrefix(mediaType, "text/") {
		return plainText{}, nil
	}
	return nil, fmt.Errorf("%w: unsupported content type %q", apperr.ErrInvalidInput, contentType)
}

// plainText passes valid UTF-8 through unchanged.
type plainText struct{}

func (plainText) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid utf-8", apperr.ErrInvalidInput)
	}
	return string(data), nil
}

var (
	htmlScript = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	htmlSpace  = regexp.MustCompile(`[ \t]+`)
	htmlBlank  = regexp.MustCompile(`\n{3,}`)
)

// htmlText strips markup, scripts and styles, keeping the visible text.
type htmlText struct{}

func (htmlText) Extract(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: content is not valid utf-8", apperr.ErrInvalidInput)
	}
	text := htmlScript.ReplaceAllString(string(data), " ")
	text = htmlTag.ReplaceAllString(text, "\n")
	text = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(text)
	text = htmlSpace.ReplaceAllString(text, " ")
	text = htmlBlank.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text), nil
}
