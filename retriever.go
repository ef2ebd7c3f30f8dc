package semdex

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/semdex/embedding"
	"github.com/hupe1980/semdex/embedding/embcache"
	"github.com/hupe1980/semdex/metadata"
	"github.com/hupe1980/semdex/store"
)

// TextMetadataKey is the reserved metadata key holding a document's text.
// User metadata under this key is overwritten on add.
const TextMetadataKey = "text"

// Result is a retrieved document.
type Result struct {
	// ID is the document identifier.
	ID string

	// Text is the original document text.
	Text string

	// Score is the similarity score in (0, 1]. Higher is more similar.
	Score float32

	// Distance is the squared L2 distance to the query vector.
	Distance float32

	// Metadata is the user metadata attached to the document.
	Metadata metadata.Document

	// Embedding is the stored vector, populated only when
	// RetrieveOptions.IncludeEmbeddings is set.
	Embedding []float32
}

// BatchQueryResult holds the outcome for one query of a RetrieveBatch call.
type BatchQueryResult struct {
	Query   string
	Results []Result
	Err     error
}

// EmbedderStats describes the embedder behind a retriever.
type EmbedderStats struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// RetrieverStats reports the retriever's effective query defaults.
type RetrieverStats struct {
	TopK     int     `json:"top_k"`
	MinScore float32 `json:"min_score"`
}

// Stats summarizes the state of a retriever.
type Stats struct {
	Store     store.Stats          `json:"store"`
	Embedder  EmbedderStats        `json:"embedder"`
	Embedding embedding.BatchStats `json:"embedding"`
	Retriever RetrieverStats       `json:"retriever"`
	Cache     *embcache.Stats      `json:"cache,omitempty"`
}

// Retriever indexes text documents and answers semantic queries against
// them. It ties an embedder, an optional embedding cache and a vector store
// together.
type Retriever struct {
	embedder  embedding.Embedder
	store     store.Store
	processor *embedding.BatchProcessor
	opts      options
	logger    *Logger
}

// New creates a retriever. The embedder's dimensionality must match the
// store's.
func New(embedder embedding.Embedder, st store.Store, opts ...Option) (*Retriever, error) {
	o := defaultOptions()

	for _, fn := range opts {
		fn(&o)
	}

	if embedder.Dimension() != st.Dimension() {
		return nil, &ErrDimensionMismatch{
			Embedder: embedder.Dimension(),
			Store:    st.Dimension(),
		}
	}

	logger := o.logger.WithModel(embedder.ModelName())

	processor := embedding.NewBatchProcessor(embedder, o.cache, func(bo *embedding.BatchOptions) {
		bo.BatchSize = o.batchSize
		bo.Logger = logger.Logger
	})

	return &Retriever{
		embedder:  embedder,
		store:     st,
		processor: processor,
		opts:      o,
		logger:    logger,
	}, nil
}

// AddDocuments embeds the texts and stores them, returning the document IDs
// in input order. The call is all-or-nothing: on error no document is stored.
func (r *Retriever) AddDocuments(ctx context.Context, texts []string, optFns ...func(o *AddOptions)) ([]string, error) {
	var opts AddOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if len(texts) == 0 {
		return []string{}, nil
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &ValidationError{Field: "texts", Reason: fmt.Sprintf("text at position %d is empty", i)}
		}
	}

	if opts.IDs != nil && len(opts.IDs) != len(texts) {
		return nil, &ValidationError{Field: "ids", Reason: "length does not match texts"}
	}

	if opts.Metadatas != nil && len(opts.Metadatas) != len(texts) {
		return nil, &ValidationError{Field: "metadatas", Reason: "length does not match texts"}
	}

	ids := opts.IDs
	if ids == nil {
		ids = make([]string, len(texts))
		for i := range ids {
			ids[i] = uuid.NewString()
		}
	}

	// User metadata travels into the embedding cache entries too.
	var cacheMetas []map[string]any
	if opts.Metadatas != nil {
		cacheMetas = make([]map[string]any, len(texts))
		for i := range opts.Metadatas {
			cacheMetas[i] = opts.Metadatas[i].ToMap()
		}
	}

	vectors, stats, err := r.processor.ProcessBatch(ctx, texts, func(po *embedding.ProcessOptions) {
		po.Metadatas = cacheMetas
	})
	if err != nil {
		return nil, err
	}

	docs := make([]metadata.Document, len(texts))
	for i, text := range texts {
		var doc metadata.Document
		if opts.Metadatas != nil {
			doc = opts.Metadatas[i].Clone()
		}
		if doc == nil {
			doc = metadata.Document{}
		}
		doc[TextMetadataKey] = metadata.String(text)
		docs[i] = doc
	}

	if err := r.store.Add(ctx, vectors, ids, docs); err != nil {
		return nil, err
	}

	r.logger.Info("documents added",
		"count", len(texts),
		"cached", stats.Cached,
		"computed", stats.Computed,
	)

	return ids, nil
}

// Retrieve embeds the query and returns the most similar documents, best
// first. Results scoring below the minimum score are dropped.
func (r *Retriever) Retrieve(ctx context.Context, query string, optFns ...func(o *RetrieveOptions)) ([]Result, error) {
	opts := RetrieveOptions{
		TopK:     r.opts.topK,
		MinScore: r.opts.minScore,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "query", Reason: "must not be empty"}
	}

	if opts.TopK <= 0 {
		return nil, &ValidationError{Field: "top_k", Reason: "must be positive"}
	}

	vec, fromCache, err := r.processor.ProcessSingle(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Search(ctx, vec, opts.TopK, opts.Filters)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))

	for _, hit := range hits {
		if hit.Score < opts.MinScore {
			continue
		}

		result := Result{
			ID:       hit.ID,
			Score:    hit.Score,
			Distance: hit.Distance,
		}

		if doc := hit.Metadata; doc != nil {
			if text, ok := doc[TextMetadataKey]; ok && text.Kind == metadata.KindString {
				result.Text = text.S
			}

			user := doc.Clone()
			delete(user, TextMetadataKey)
			if len(user) > 0 {
				result.Metadata = user
			}
		}

		if opts.IncludeEmbeddings {
			if stored, ok := r.store.Vector(hit.ID); ok {
				result.Embedding = stored
			}
		}

		results = append(results, result)
	}

	r.logger.WithTopK(opts.TopK).Debug("query served",
		"results", len(results),
		"query_cached", fromCache,
	)

	return results, nil
}

// RetrieveBatch answers multiple queries concurrently. Each query gets its
// own slot in the returned slice, in input order; one failing query never
// aborts the others.
func (r *Retriever) RetrieveBatch(ctx context.Context, queries []string, optFns ...func(o *RetrieveOptions)) []BatchQueryResult {
	out := make([]BatchQueryResult, len(queries))

	var g errgroup.Group
	g.SetLimit(r.opts.concurrency)

	for i, query := range queries {
		i, query := i, query
		g.Go(func() error {
			results, err := r.Retrieve(ctx, query, optFns...)
			out[i] = BatchQueryResult{Query: query, Results: results, Err: err}
			return nil
		})
	}

	_ = g.Wait()

	return out
}

// DeleteDocuments removes documents by ID, returning how many existed.
func (r *Retriever) DeleteDocuments(ctx context.Context, ids []string) (int, error) {
	return r.store.Delete(ctx, ids)
}

// Persist writes a snapshot of the underlying store into dir.
func (r *Retriever) Persist(ctx context.Context, dir string) error {
	return r.store.Persist(ctx, dir)
}

// Load replaces the underlying store contents from a snapshot in dir.
func (r *Retriever) Load(ctx context.Context, dir string) error {
	return r.store.Load(ctx, dir)
}

// Stats reports store, embedding and cache statistics.
func (r *Retriever) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Store: r.store.Stats(),
		Embedder: EmbedderStats{
			Model:     r.embedder.ModelName(),
			Dimension: r.embedder.Dimension(),
		},
		Embedding: r.processor.Stats(),
		Retriever: RetrieverStats{
			TopK:     r.opts.topK,
			MinScore: r.opts.minScore,
		},
	}

	if r.opts.cache != nil {
		cacheStats, err := r.opts.cache.Stats(ctx)
		if err != nil {
			return Stats{}, err
		}
		stats.Cache = &cacheStats
	}

	return stats, nil
}

// Close releases the embedding cache, if any.
func (r *Retriever) Close() error {
	if r.opts.cache != nil {
		return r.opts.cache.Close()
	}
	return nil
}
