package semdex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/semdex/embedding/embcache"
	"github.com/hupe1980/semdex/metadata"
	"github.com/hupe1980/semdex/store/flat"
	"github.com/hupe1980/semdex/testutil"
)

const testDim = 16

func newTestRetriever(t *testing.T, opts ...Option) (*Retriever, *testutil.FakeEmbedder) {
	t.Helper()

	embedder := testutil.NewFakeEmbedder(testDim)

	st, err := flat.New(func(o *flat.Options) {
		o.Dimension = testDim
	})
	require.NoError(t, err)

	rt, err := New(embedder, st, opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, rt.Close())
	})

	return rt, embedder
}

func TestNew(t *testing.T) {
	t.Run("DimensionMismatch", func(t *testing.T) {
		embedder := testutil.NewFakeEmbedder(8)

		st, err := flat.New(func(o *flat.Options) {
			o.Dimension = 16
		})
		require.NoError(t, err)

		_, err = New(embedder, st)
		require.Error(t, err)

		var dimErr *ErrDimensionMismatch
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 8, dimErr.Embedder)
		assert.Equal(t, 16, dimErr.Store)
	})

	t.Run("Defaults", func(t *testing.T) {
		rt, _ := newTestRetriever(t)
		assert.Equal(t, 5, rt.opts.topK)
		assert.Equal(t, 4, rt.opts.concurrency)
	})
}

func TestAddDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("GeneratedIDs", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		ids, err := rt.AddDocuments(ctx, []string{"first document", "second document"})
		require.NoError(t, err)
		require.Len(t, ids, 2)
		assert.NotEqual(t, ids[0], ids[1])
		assert.NotEmpty(t, ids[0])

		stats, err := rt.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Store.Count)
	})

	t.Run("ExplicitIDs", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		ids, err := rt.AddDocuments(ctx, []string{"alpha", "beta"}, func(o *AddOptions) {
			o.IDs = []string{"doc-1", "doc-2"}
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"doc-1", "doc-2"}, ids)
	})

	t.Run("IDLengthMismatch", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"alpha", "beta"}, func(o *AddOptions) {
			o.IDs = []string{"doc-1"}
		})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "ids", vErr.Field)
	})

	t.Run("MetadataLengthMismatch", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"alpha", "beta"}, func(o *AddOptions) {
			o.Metadatas = []metadata.Document{{"lang": metadata.String("en")}}
		})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "metadatas", vErr.Field)
	})

	t.Run("EmptyText", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"alpha", "   "})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "texts", vErr.Field)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		ids, err := rt.AddDocuments(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("EmbedderError", func(t *testing.T) {
		rt, embedder := newTestRetriever(t)
		embedder.Err = errors.New("model offline")

		_, err := rt.AddDocuments(ctx, []string{"alpha"})
		require.ErrorContains(t, err, "model offline")

		stats, statsErr := rt.Stats(ctx)
		require.NoError(t, statsErr)
		assert.Equal(t, 0, stats.Store.Count)
	})
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("ExactMatchRanksFirst", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"apples and oranges", "compilers and linkers", "tide charts"})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "compilers and linkers")
		require.NoError(t, err)
		require.NotEmpty(t, results)

		assert.Equal(t, "compilers and linkers", results[0].Text)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.InDelta(t, 0.0, results[0].Distance, 1e-6)
	})

	t.Run("TopKLimitsResults", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"one", "two", "three", "four"})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "one", func(o *RetrieveOptions) {
			o.TopK = 2
		})
		require.NoError(t, err)
		assert.Len(t, results, 2)
	})

	t.Run("MinScoreFiltersResults", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"needle", "haystack"})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "needle", func(o *RetrieveOptions) {
			o.MinScore = 0.99
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "needle", results[0].Text)
	})

	t.Run("MetadataFilter", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"intro to go", "intro to rust"}, func(o *AddOptions) {
			o.Metadatas = []metadata.Document{
				{"lang": metadata.String("go")},
				{"lang": metadata.String("rust")},
			}
		})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "intro", func(o *RetrieveOptions) {
			o.Filters = metadata.Filters(metadata.Eq("lang", metadata.String("rust")))
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "intro to rust", results[0].Text)
		assert.Equal(t, metadata.String("rust"), results[0].Metadata["lang"])
	})

	t.Run("TextStrippedFromMetadata", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"solo"}, func(o *AddOptions) {
			o.Metadatas = []metadata.Document{{"source": metadata.String("unit")}}
		})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "solo")
		require.NoError(t, err)
		require.Len(t, results, 1)

		assert.Equal(t, "solo", results[0].Text)
		assert.NotContains(t, results[0].Metadata, TextMetadataKey)
		assert.Equal(t, metadata.String("unit"), results[0].Metadata["source"])
	})

	t.Run("IncludeEmbeddings", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.AddDocuments(ctx, []string{"solo"})
		require.NoError(t, err)

		results, err := rt.Retrieve(ctx, "solo", func(o *RetrieveOptions) {
			o.IncludeEmbeddings = true
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Len(t, results[0].Embedding, testDim)

		results, err = rt.Retrieve(ctx, "solo")
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Nil(t, results[0].Embedding)
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.Retrieve(ctx, "  ")

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "query", vErr.Field)
	})

	t.Run("InvalidTopK", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		_, err := rt.Retrieve(ctx, "query", func(o *RetrieveOptions) {
			o.TopK = -1
		})

		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "top_k", vErr.Field)
	})

	t.Run("EmptyStore", func(t *testing.T) {
		rt, _ := newTestRetriever(t)

		results, err := rt.Retrieve(ctx, "anything")
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestRetrieveBatch(t *testing.T) {
	ctx := context.Background()

	rt, _ := newTestRetriever(t, WithConcurrency(2))

	_, err := rt.AddDocuments(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)

	out := rt.RetrieveBatch(ctx, []string{"alpha", "", "gamma"}, func(o *RetrieveOptions) {
		o.TopK = 1
	})
	require.Len(t, out, 3)

	assert.Equal(t, "alpha", out[0].Query)
	require.NoError(t, out[0].Err)
	require.Len(t, out[0].Results, 1)
	assert.Equal(t, "alpha", out[0].Results[0].Text)

	var vErr *ValidationError
	require.ErrorAs(t, out[1].Err, &vErr)
	assert.Nil(t, out[1].Results)

	require.NoError(t, out[2].Err)
	require.Len(t, out[2].Results, 1)
	assert.Equal(t, "gamma", out[2].Results[0].Text)
}

func TestDeleteDocuments(t *testing.T) {
	ctx := context.Background()

	rt, _ := newTestRetriever(t)

	ids, err := rt.AddDocuments(ctx, []string{"keep", "drop"})
	require.NoError(t, err)

	deleted, err := rt.DeleteDocuments(ctx, []string{ids[1], "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	results, err := rt.Retrieve(ctx, "drop")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep", results[0].Text)
}

func TestRetrieverCache(t *testing.T) {
	ctx := context.Background()

	rt, embedder := newTestRetriever(t, WithCache(embcache.NewMemory()))

	_, err := rt.AddDocuments(ctx, []string{"cached once"})
	require.NoError(t, err)

	_, err = rt.Retrieve(ctx, "cached once")
	require.NoError(t, err)

	// The document embedding is reused for the identical query text.
	assert.Equal(t, 1, embedder.BatchCalls())
	assert.Equal(t, 0, embedder.EncodeCalls())

	stats, err := rt.Stats(ctx)
	require.NoError(t, err)
	require.NotNil(t, stats.Cache)
	assert.Equal(t, 1, stats.Cache.Entries)
	assert.Equal(t, 1, stats.Embedding.Cached)
	assert.Equal(t, 1, stats.Embedding.Computed)
}

func TestRetrieverStats(t *testing.T) {
	ctx := context.Background()

	rt, embedder := newTestRetriever(t, WithTopK(7), WithMinScore(0.25))

	_, err := rt.AddDocuments(ctx, []string{"one", "two"})
	require.NoError(t, err)

	stats, err := rt.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Store.Count)
	assert.Equal(t, testDim, stats.Store.Dimension)
	assert.Equal(t, embedder.ModelName(), stats.Embedder.Model)
	assert.Equal(t, testDim, stats.Embedder.Dimension)
	assert.Equal(t, 7, stats.Retriever.TopK)
	assert.InDelta(t, 0.25, stats.Retriever.MinScore, 1e-6)
	assert.Nil(t, stats.Cache)
}

func TestAddDocumentsMetadataReachesCache(t *testing.T) {
	ctx := context.Background()

	cache := embcache.NewMemory()
	rt, embedder := newTestRetriever(t, WithCache(cache))

	_, err := rt.AddDocuments(ctx, []string{"kept in cache"}, func(o *AddOptions) {
		o.Metadatas = []metadata.Document{{"lang": metadata.String("go")}}
	})
	require.NoError(t, err)

	meta, ok, err := cache.Meta(ctx, embcache.Key(embedder.ModelName(), "kept in cache"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"lang": "go"}, meta.Extra)
	assert.Equal(t, embedder.ModelName(), meta.Model)
}

func TestRetrieverPersistLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	rt, _ := newTestRetriever(t)

	_, err := rt.AddDocuments(ctx, []string{"durable fact"}, func(o *AddOptions) {
		o.IDs = []string{"doc-1"}
	})
	require.NoError(t, err)

	require.NoError(t, rt.Persist(ctx, dir))

	fresh, _ := newTestRetriever(t)
	require.NoError(t, fresh.Load(ctx, dir))

	results, err := fresh.Retrieve(ctx, "durable fact")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].ID)
	assert.Equal(t, "durable fact", results[0].Text)
}
