// Package semdex provides embedding-backed semantic retrieval for Go.
//
// Semdex ties three pieces together:
//
//   - An embedding.Embedder turning text into dense vectors (OpenAI-compatible
//     client included, any implementation works)
//   - An optional embedding cache (in-memory, on-disk, Redis) so identical
//     texts are embedded only once
//   - A vector store (exact flat search with metadata filtering) with binary
//     snapshot persistence
//
// The Retriever is the main entry point: add documents with AddDocuments,
// query with Retrieve or RetrieveBatch, and persist snapshots with
// Persist/Load. Snapshots can be shipped to object storage via the blobstore
// package (local, in-memory, S3, MinIO backends).
//
// # Quick Start
//
//	embedder, err := openai.New(os.Getenv("OPENAI_API_KEY"))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	st, err := flat.New(func(o *flat.Options) {
//		o.Dimension = embedder.Dimension()
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	rt, err := semdex.New(embedder, st,
//		semdex.WithCache(embcache.NewMemory()),
//		semdex.WithTopK(3),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Close()
//
//	ids, err := rt.AddDocuments(ctx, []string{
//		"The quick brown fox jumps over the lazy dog",
//		"Go is a statically typed, compiled language",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = ids
//
//	results, err := rt.Retrieve(ctx, "programming languages")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, r := range results {
//		fmt.Printf("%.3f %s\n", r.Score, r.Text)
//	}
//
// Scores are derived from squared L2 distance as 1/(1+d) and fall in (0, 1],
// with 1 meaning an exact match.
package semdex
