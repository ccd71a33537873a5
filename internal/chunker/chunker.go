// Package chunker splits extracted document text into overlapping windows
// sized for the embedding model.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/covelabs/docdex/internal/apperr"
)

const (
	// DefaultChunkSize is the target window size in characters.
	DefaultChunkSize = 2048
	// DefaultChunkOverlap is the number of characters shared between
	// adjacent windows.
	DefaultChunkOverlap = 100
)

// Chunk is one contiguous window of a document's text. Order is the
// zero-based position of the window within the document.
type Chunk struct {
	Order int
	Text  string
}

// Chunker produces ordered, overlapping text windows. Safe for
// concurrent use.
type Chunker struct {
	splitter textsplitter.RecursiveCharacter
}

// New creates a Chunker. size and overlap of zero select the defaults.
func New(size, overlap int) (*Chunker, error) {
	if size == 0 {
		size = DefaultChunkSize
	}
	if overlap == 0 {
		overlap = DefaultChunkOverlap
	}
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", apperr.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", apperr.ErrInvalidInput, overlap, size)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

// Split breaks text into ordered chunks. Whitespace-only input yields no
// chunks. Order values are contiguous starting at zero and every chunk is
// non-empty.
func (c *Chunker) Split(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	chunks := make([]Chunk, 0, len(parts))
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, Chunk{Order: len(chunks), Text: part})
	}
	return chunks, nil
}
