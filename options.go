package semdex

import (
	"github.com/hupe1980/semdex/embedding/embcache"
	"github.com/hupe1980/semdex/metadata"
)

type options struct {
	topK        int
	minScore    float32
	batchSize   int
	concurrency int
	cache       embcache.Cache
	logger      *Logger
}

func defaultOptions() options {
	return options{
		topK:        5,
		minScore:    0,
		batchSize:   32,
		concurrency: 4,
		logger:      NoopLogger(),
	}
}

// Option configures Retriever constructor behavior.
type Option func(*options)

// WithTopK sets the default number of results per query. Individual Retrieve
// calls can override it.
func WithTopK(k int) Option {
	return func(o *options) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinScore sets the default minimum similarity score. Results scoring
// below it are dropped after the search.
func WithMinScore(score float32) Option {
	return func(o *options) {
		o.minScore = score
	}
}

// WithBatchSize caps how many uncached texts are embedded per request.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithConcurrency bounds how many queries RetrieveBatch runs in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithCache enables embedding caching with the given backend.
func WithCache(c embcache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithLogger configures structured logging.
//
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// AddOptions configures a single AddDocuments call.
type AddOptions struct {
	// IDs assigns explicit document IDs. When empty, random IDs are
	// generated. When set, it must match the number of texts.
	IDs []string

	// Metadatas attaches a metadata document per text. When set, it must
	// match the number of texts.
	Metadatas []metadata.Document
}

// RetrieveOptions configures a single Retrieve call.
type RetrieveOptions struct {
	// TopK overrides the retriever's default result count.
	TopK int

	// MinScore overrides the retriever's default score floor.
	MinScore float32

	// Filters restricts results to documents matching all filters.
	Filters *metadata.FilterSet

	// IncludeEmbeddings attaches each result's stored vector.
	IncludeEmbeddings bool
}
