// Package flat provides an exact, in-memory vector store with brute-force search.
package flat

import (
	"context"
	"sort"
	"sync"

	"github.com/hupe1980/semdex/distance"
	"github.com/hupe1980/semdex/metadata"
	"github.com/hupe1980/semdex/store"
)

// Compile-time check to ensure Flat satisfies the store interface.
var _ store.Store = (*Flat)(nil)

// Options contains configuration options for the flat store.
type Options struct {
	// Dimension is the fixed vector dimensionality for this store.
	// It must be > 0 and is enforced for all adds and searches.
	Dimension int

	// FilterOverfetch is the multiplier applied to k when a metadata filter
	// is present: the filter is evaluated over the k*FilterOverfetch nearest
	// vectors, so a selective filter may return fewer than k results.
	FilterOverfetch int
}

// DefaultOptions contains the default configuration options for the flat store.
var DefaultOptions = Options{
	Dimension:       0,
	FilterOverfetch: 10,
}

// Flat is an exact vector store. Vectors live in one contiguous row-major
// matrix; search scans every row. Reads take a shared lock and may run
// concurrently; writes are exclusive.
type Flat struct {
	mu   sync.RWMutex
	opts Options

	data    []float32 // row-major matrix, len == count*dimension
	ids     []string
	metas   []metadata.Document
	idToPos map[string]int

	metaIndex *metadata.Index
}

// New creates a new flat store. Dimension is required.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, &store.ErrDimensionMismatch{Expected: 1, Actual: opts.Dimension}
	}

	if opts.FilterOverfetch <= 0 {
		opts.FilterOverfetch = DefaultOptions.FilterOverfetch
	}

	return &Flat{
		opts:      opts,
		idToPos:   make(map[string]int),
		metaIndex: metadata.NewIndex(),
	}, nil
}

// Add inserts vectors with their IDs and optional metadata.
// The call is all-or-nothing: validation runs over the whole batch before
// any state changes.
func (f *Flat) Add(ctx context.Context, vectors [][]float32, ids []string, metas []metadata.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(vectors) != len(ids) {
		return store.ErrLengthMismatch
	}

	if metas != nil && len(metas) != len(vectors) {
		return store.ErrLengthMismatch
	}

	if len(vectors) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	seen := make(map[string]struct{}, len(ids))

	for i, id := range ids {
		if id == "" {
			return store.ErrEmptyID
		}

		if _, dup := seen[id]; dup {
			return &store.ErrDuplicateID{ID: id}
		}

		if _, exists := f.idToPos[id]; exists {
			return &store.ErrDuplicateID{ID: id}
		}

		seen[id] = struct{}{}

		if len(vectors[i]) != f.opts.Dimension {
			return &store.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(vectors[i])}
		}
	}

	for i, id := range ids {
		pos := len(f.ids)

		f.data = append(f.data, vectors[i]...)
		f.ids = append(f.ids, id)

		var doc metadata.Document
		if metas != nil {
			doc = metas[i].Clone()
		}
		f.metas = append(f.metas, doc)

		f.idToPos[id] = pos
		if doc != nil {
			f.metaIndex.Add(uint32(pos), doc)
		}
	}

	return nil
}

// Search performs an exact nearest neighbor search, returning up to k results
// ordered by ascending distance. Equal distances keep insertion order.
func (f *Flat) Search(ctx context.Context, query []float32, k int, filters *metadata.FilterSet) ([]store.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if k < 0 {
		return nil, store.ErrInvalidK
	}

	if len(query) != f.opts.Dimension {
		return nil, &store.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(query)}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	count := len(f.ids)
	if k == 0 || count == 0 {
		return []store.SearchResult{}, nil
	}

	dists := make([]float32, count)
	for pos := 0; pos < count; pos++ {
		row := f.data[pos*f.opts.Dimension : (pos+1)*f.opts.Dimension]
		dists[pos] = distance.SquaredL2(query, row)
	}

	order := make([]int, count)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dists[order[i]] < dists[order[j]]
	})

	fetch := k
	if filters != nil && len(filters.Filters) > 0 {
		fetch = k * f.opts.FilterOverfetch
	}
	if fetch > count {
		fetch = count
	}

	candidates, residual := f.metaIndex.Candidates(filters)

	results := make([]store.SearchResult, 0, k)

	for _, pos := range order[:fetch] {
		if filters != nil {
			if candidates != nil && !candidates.Contains(uint32(pos)) {
				continue
			}
			if !matchesResidual(residual, f.metas[pos]) {
				continue
			}
		}

		results = append(results, store.SearchResult{
			ID:       f.ids[pos],
			Score:    distance.Similarity(dists[pos]),
			Distance: dists[pos],
			Metadata: f.metas[pos].Clone(),
		})

		if len(results) == k {
			break
		}
	}

	return results, nil
}

func matchesResidual(residual []metadata.Filter, doc metadata.Document) bool {
	for i := range residual {
		if !residual[i].Matches(doc) {
			return false
		}
	}
	return true
}

// Delete removes the given IDs and returns how many were present.
// Surviving vectors are compacted into a fresh matrix.
func (f *Flat) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	drop := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if pos, ok := f.idToPos[id]; ok {
			drop[pos] = struct{}{}
		}
	}

	if len(drop) == 0 {
		return 0, nil
	}

	dim := f.opts.Dimension
	survivors := len(f.ids) - len(drop)

	data := make([]float32, 0, survivors*dim)
	newIDs := make([]string, 0, survivors)
	metas := make([]metadata.Document, 0, survivors)
	idToPos := make(map[string]int, survivors)

	for pos, id := range f.ids {
		if _, gone := drop[pos]; gone {
			continue
		}

		idToPos[id] = len(newIDs)
		data = append(data, f.data[pos*dim:(pos+1)*dim]...)
		newIDs = append(newIDs, id)
		metas = append(metas, f.metas[pos])
	}

	f.data = data
	f.ids = newIDs
	f.metas = metas
	f.idToPos = idToPos
	f.metaIndex.Rebuild(metas)

	return len(drop), nil
}

// Vector returns a copy of the stored vector for the given ID.
func (f *Flat) Vector(id string) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	pos, ok := f.idToPos[id]
	if !ok {
		return nil, false
	}

	dim := f.opts.Dimension
	out := make([]float32, dim)
	copy(out, f.data[pos*dim:(pos+1)*dim])

	return out, true
}

// Stats returns the current contents summary.
func (f *Flat) Stats() store.Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return store.Stats{
		Count:     len(f.ids),
		Dimension: f.opts.Dimension,
	}
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return len(f.ids)
}

// Dimension returns the vector dimensionality the store enforces.
func (f *Flat) Dimension() int {
	return f.opts.Dimension
}

// Clear removes all vectors and metadata.
func (f *Flat) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = nil
	f.ids = nil
	f.metas = nil
	f.idToPos = make(map[string]int)
	f.metaIndex.Clear()
}
