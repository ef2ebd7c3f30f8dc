// Package store provides interfaces and types for vector stores.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/semdex/metadata"
)

var (
	// ErrInvalidK is returned when k is negative.
	ErrInvalidK = errors.New("k must not be negative")

	// ErrLengthMismatch is returned when the vectors, ids and metadata slices
	// passed to Add disagree in length.
	ErrLengthMismatch = errors.New("vectors, ids and metadata must have equal length")

	// ErrEmptyID is returned when an empty string is used as an ID.
	ErrEmptyID = errors.New("id must not be empty")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrDuplicateID is a named error type for an ID that already exists.
type ErrDuplicateID struct {
	ID string
}

// Error returns the error message for a duplicate ID
func (e *ErrDuplicateID) Error() string {
	return fmt.Sprintf("duplicate id: %q", e.ID)
}

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the identifier of the search result.
	ID string

	// Score is the similarity score in (0, 1], derived from the distance
	// as 1 / (1 + distance). Higher is more similar.
	Score float32

	// Distance is the squared L2 distance between the query vector and the
	// result vector.
	Distance float32

	// Metadata is the document attached to the vector, if any.
	Metadata metadata.Document
}

// Stats describes the current contents of a store.
type Stats struct {
	Count     int `json:"count"`
	Dimension int `json:"dimension"`
}

// Store represents a vector store with typed IDs and metadata filtering.
type Store interface {
	// Add inserts vectors with their IDs and optional metadata. The call is
	// all-or-nothing: on any validation error no vector is inserted.
	Add(ctx context.Context, vectors [][]float32, ids []string, metas []metadata.Document) error

	// Search performs an exact nearest neighbor search, returning up to k
	// results ordered by ascending distance. A nil filter matches everything.
	Search(ctx context.Context, query []float32, k int, filters *metadata.FilterSet) ([]SearchResult, error)

	// Delete removes the given IDs and returns how many were present.
	Delete(ctx context.Context, ids []string) (int, error)

	// Vector returns a copy of the stored vector for the given ID.
	Vector(id string) ([]float32, bool)

	// Persist writes a snapshot of the store into dir.
	Persist(ctx context.Context, dir string) error

	// Load replaces the store contents from a snapshot in dir.
	Load(ctx context.Context, dir string) error

	// Stats returns the current contents summary.
	Stats() Stats

	// Len returns the number of stored vectors.
	Len() int

	// Dimension returns the vector dimensionality the store enforces.
	Dimension() int

	// Clear removes all vectors and metadata.
	Clear()
}
