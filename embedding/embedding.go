// Package embedding provides embedder interfaces and cached batch processing
// for turning text into vectors.
package embedding

import (
	"context"
	"fmt"
)

// Embedder converts text into fixed-dimension vectors.
type Embedder interface {
	// Encode embeds a single text.
	Encode(ctx context.Context, text string) ([]float32, error)

	// EncodeBatch embeds multiple texts, preserving input order.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimensionality.
	Dimension() int

	// ModelName identifies the underlying model. It namespaces cache keys,
	// so two embedders with different outputs must report different names.
	ModelName() string
}

// EncodingError wraps a failure from the underlying embedder.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type EncodingError struct {
	Texts    int      // Number of texts in the failed request
	Previews []string // Truncated previews of the failed texts
	cause    error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encoding %d text(s) failed: %v", e.Texts, e.cause)
}

func (e *EncodingError) Unwrap() error { return e.cause }

// errPreviewLimit caps how much of each failed text is kept for diagnosis.
const errPreviewLimit = 80

// NewEncodingError creates an EncodingError wrapping cause, keeping a
// truncated preview of each failed text.
func NewEncodingError(texts []string, cause error) *EncodingError {
	previews := make([]string, len(texts))
	for i, text := range texts {
		if len(text) > errPreviewLimit {
			text = text[:errPreviewLimit]
		}
		previews[i] = text
	}

	return &EncodingError{Texts: len(texts), Previews: previews, cause: cause}
}
