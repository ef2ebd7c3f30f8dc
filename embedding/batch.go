package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/hupe1980/semdex/embedding/embcache"
)

// ErrMetadataLength is returned when the number of metadatas passed to a
// processing call does not match the number of texts.
var ErrMetadataLength = errors.New("metadatas length does not match texts")

// BatchOptions contains configuration options for the batch processor.
type BatchOptions struct {
	// BatchSize caps how many uncached texts are sent to the embedder per
	// request.
	BatchSize int

	// Logger receives warnings about degraded cache behavior. Nil disables
	// logging.
	Logger *slog.Logger
}

// DefaultBatchOptions contains the default configuration options for the
// batch processor.
var DefaultBatchOptions = BatchOptions{
	BatchSize: 32,
}

// BatchStats describes one ProcessBatch call, or the running totals of a
// processor.
type BatchStats struct {
	Cached   int `json:"cached"`
	Computed int `json:"computed"`
	Total    int `json:"total"`
}

// HitRate returns the fraction of texts served from cache.
func (s BatchStats) HitRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Cached) / float64(s.Total)
}

// BatchProcessor embeds texts through an optional cache. Cache failures are
// soft: a broken cache degrades to recomputing, never to a failed request.
type BatchProcessor struct {
	embedder Embedder
	cache    embcache.Cache
	opts     BatchOptions
	group    singleflight.Group

	cached   atomic.Int64
	computed atomic.Int64
}

// NewBatchProcessor creates a batch processor. A nil cache disables caching.
func NewBatchProcessor(embedder Embedder, cache embcache.Cache, optFns ...func(o *BatchOptions)) *BatchProcessor {
	opts := DefaultBatchOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchOptions.BatchSize
	}

	return &BatchProcessor{
		embedder: embedder,
		cache:    cache,
		opts:     opts,
	}
}

// ProcessOptions configures a single processing call.
type ProcessOptions struct {
	// Metadatas attaches user metadata to the cache entry written for each
	// text. When set, it must match the number of texts.
	Metadatas []map[string]any
}

// ProcessSingle embeds one text, serving it from cache when possible. The
// second return reports whether the vector came from cache. Concurrent calls
// for the same text share a single embedder request.
func (p *BatchProcessor) ProcessSingle(ctx context.Context, text string, optFns ...func(o *ProcessOptions)) ([]float32, bool, error) {
	var opts ProcessOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Metadatas != nil && len(opts.Metadatas) != 1 {
		return nil, false, ErrMetadataLength
	}

	key := embcache.Key(p.embedder.ModelName(), text)

	if vec, ok := p.cacheGet(ctx, key); ok {
		p.cached.Add(1)
		return vec, true, nil
	}

	result, err, _ := p.group.Do(key, func() (any, error) {
		vec, err := p.embedder.Encode(ctx, text)
		if err != nil {
			return nil, NewEncodingError([]string{text}, err)
		}

		p.cachePut(ctx, key, text, vec, metadataAt(opts.Metadatas, 0))

		return vec, nil
	})
	if err != nil {
		return nil, false, err
	}

	p.computed.Add(1)

	return result.([]float32), false, nil
}

// ProcessBatch embeds texts in input order. Cached texts are served directly;
// the rest are embedded in chunks of at most BatchSize. Duplicate texts
// within the batch are embedded once, carrying the metadata of their first
// occurrence.
func (p *BatchProcessor) ProcessBatch(ctx context.Context, texts []string, optFns ...func(o *ProcessOptions)) ([][]float32, BatchStats, error) {
	var opts ProcessOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Metadatas != nil && len(opts.Metadatas) != len(texts) {
		return nil, BatchStats{}, ErrMetadataLength
	}

	stats := BatchStats{Total: len(texts)}

	if len(texts) == 0 {
		return [][]float32{}, stats, nil
	}

	vectors := make([][]float32, len(texts))

	// missing maps each uncached key to the input positions that need it.
	missing := make(map[string][]int)
	var order []string

	for i, text := range texts {
		key := embcache.Key(p.embedder.ModelName(), text)

		if positions, seen := missing[key]; seen {
			missing[key] = append(positions, i)
			continue
		}

		if vec, ok := p.cacheGet(ctx, key); ok {
			vectors[i] = vec
			continue
		}

		missing[key] = []int{i}
		order = append(order, key)
	}

	for start := 0; start < len(order); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(order) {
			end = len(order)
		}

		chunkKeys := order[start:end]
		chunkTexts := make([]string, len(chunkKeys))
		for i, key := range chunkKeys {
			chunkTexts[i] = texts[missing[key][0]]
		}

		encoded, err := p.embedder.EncodeBatch(ctx, chunkTexts)
		if err != nil {
			return nil, stats, NewEncodingError(chunkTexts, err)
		}

		if len(encoded) != len(chunkTexts) {
			return nil, stats, NewEncodingError(chunkTexts,
				fmt.Errorf("embedder returned %d vectors for %d texts", len(encoded), len(chunkTexts)))
		}

		for i, key := range chunkKeys {
			for _, pos := range missing[key] {
				vectors[pos] = encoded[i]
			}

			p.cachePut(ctx, key, chunkTexts[i], encoded[i], metadataAt(opts.Metadatas, missing[key][0]))
		}
	}

	computed := 0
	for _, positions := range missing {
		computed += len(positions)
	}

	stats.Computed = computed
	stats.Cached = stats.Total - computed

	p.cached.Add(int64(stats.Cached))
	p.computed.Add(int64(stats.Computed))

	return vectors, stats, nil
}

// Stats returns the running totals across all calls on this processor.
func (p *BatchProcessor) Stats() BatchStats {
	cached := int(p.cached.Load())
	computed := int(p.computed.Load())

	return BatchStats{
		Cached:   cached,
		Computed: computed,
		Total:    cached + computed,
	}
}

func (p *BatchProcessor) cacheGet(ctx context.Context, key string) ([]float32, bool) {
	if p.cache == nil {
		return nil, false
	}

	vec, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.warn("cache get failed", key, err)
		return nil, false
	}

	return vec, ok
}

func (p *BatchProcessor) cachePut(ctx context.Context, key, text string, vec []float32, extra map[string]any) {
	if p.cache == nil {
		return
	}

	meta := embcache.NewEntryMeta(p.embedder.ModelName(), text, len(vec))
	meta.Extra = extra

	if err := p.cache.Put(ctx, key, vec, meta); err != nil {
		p.warn("cache put failed", key, err)
	}
}

// metadataAt returns metadatas[i], tolerating a nil slice.
func metadataAt(metadatas []map[string]any, i int) map[string]any {
	if metadatas == nil {
		return nil
	}
	return metadatas[i]
}

func (p *BatchProcessor) warn(msg, key string, err error) {
	if p.opts.Logger == nil {
		return
	}

	p.opts.Logger.Warn(msg, "key", key, "error", err)
}
