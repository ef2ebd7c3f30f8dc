package semdex

import (
	"fmt"
)

// ValidationError indicates an invalid argument to a retriever operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ErrDimensionMismatch indicates that the embedder and the store disagree on
// vector dimensionality.
type ErrDimensionMismatch struct {
	Embedder int
	Store    int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: embedder produces %d, store expects %d", e.Embedder, e.Store)
}
