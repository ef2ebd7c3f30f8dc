package semdex_test

import (
	"context"
	"fmt"
	"log"

	"github.com/hupe1980/semdex"
	"github.com/hupe1980/semdex/embedding/embcache"
	"github.com/hupe1980/semdex/metadata"
	"github.com/hupe1980/semdex/store/flat"
	"github.com/hupe1980/semdex/testutil"
)

// Example demonstrates indexing documents and running a semantic query.
func Example() {
	ctx := context.Background()

	// A deterministic embedder keeps the example self-contained; swap in
	// openai.New(apiKey) for real embeddings.
	embedder := testutil.NewFakeEmbedder(64)

	st, err := flat.New(func(o *flat.Options) {
		o.Dimension = embedder.Dimension()
	})
	if err != nil {
		log.Fatal(err)
	}

	rt, err := semdex.New(embedder, st,
		semdex.WithCache(embcache.NewMemory()),
		semdex.WithTopK(1),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	_, err = rt.AddDocuments(ctx, []string{
		"Go compiles to a single static binary",
		"Sourdough needs a well-fed starter",
	})
	if err != nil {
		log.Fatal(err)
	}

	results, err := rt.Retrieve(ctx, "Go compiles to a single static binary")
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Printf("%.2f %s\n", r.Score, r.Text)
	}
	// Output: 1.00 Go compiles to a single static binary
}

// Example_metadataFilters demonstrates restricting a query with metadata.
func Example_metadataFilters() {
	ctx := context.Background()

	embedder := testutil.NewFakeEmbedder(64)

	st, err := flat.New(func(o *flat.Options) {
		o.Dimension = embedder.Dimension()
	})
	if err != nil {
		log.Fatal(err)
	}

	rt, err := semdex.New(embedder, st)
	if err != nil {
		log.Fatal(err)
	}
	defer rt.Close()

	_, err = rt.AddDocuments(ctx,
		[]string{"release notes for v1", "release notes for v2"},
		func(o *semdex.AddOptions) {
			o.Metadatas = []metadata.Document{
				{"version": metadata.Int(1)},
				{"version": metadata.Int(2)},
			}
		},
	)
	if err != nil {
		log.Fatal(err)
	}

	results, err := rt.Retrieve(ctx, "release notes",
		func(o *semdex.RetrieveOptions) {
			o.Filters = metadata.Filters(metadata.Eq("version", metadata.Int(2)))
		},
	)
	if err != nil {
		log.Fatal(err)
	}

	for _, r := range results {
		fmt.Println(r.Text)
	}
	// Output: release notes for v2
}
