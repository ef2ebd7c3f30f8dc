package metadata

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index is an inverted index over document equality terms, backed by roaring
// bitmaps of row positions. It accelerates the equality part of a FilterSet
// during post-search filtering; non-equality operators are evaluated per
// candidate by the caller.
//
// Index is not safe for concurrent mutation; the owning store serializes
// writes.
type Index struct {
	inverted map[string]map[string]*roaring.Bitmap
}

// NewIndex creates an empty metadata index.
func NewIndex() *Index {
	return &Index{inverted: make(map[string]map[string]*roaring.Bitmap)}
}

// Add indexes the document's terms under the given row position.
func (ix *Index) Add(pos uint32, doc Document) {
	for key, val := range doc {
		byValue, ok := ix.inverted[key]
		if !ok {
			byValue = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = byValue
		}
		vk := indexTerm(val)
		bm, ok := byValue[vk]
		if !ok {
			bm = roaring.New()
			byValue[vk] = bm
		}
		bm.Add(pos)
	}
}

// Rebuild replaces the index contents from a position-ordered document slice.
// Used after compacting deletes, where every surviving row gets a new position.
func (ix *Index) Rebuild(docs []Document) {
	ix.inverted = make(map[string]map[string]*roaring.Bitmap)
	for pos, doc := range docs {
		ix.Add(uint32(pos), doc)
	}
}

// Clear removes all index contents.
func (ix *Index) Clear() {
	ix.inverted = make(map[string]map[string]*roaring.Bitmap)
}

// Candidates intersects the bitmaps for every equality filter the index can
// answer exactly, returning the allowed positions and the residual filters
// the caller must still evaluate per candidate.
//
// A nil bitmap means "no restriction" (no accelerable filters present). An
// empty bitmap means no row can match.
func (ix *Index) Candidates(fs *FilterSet) (*roaring.Bitmap, []Filter) {
	if fs == nil || len(fs.Filters) == 0 {
		return nil, nil
	}

	var result *roaring.Bitmap
	var residual []Filter

	for _, f := range fs.Filters {
		if f.Operator != OpEqual || !indexableKind(f.Value.Kind) {
			residual = append(residual, f)
			continue
		}

		matched := ix.lookup(f.Key, f.Value)
		if result == nil {
			result = matched
		} else {
			result.And(matched)
		}
	}

	return result, residual
}

// indexableKind reports whether equality on this kind has exact Key()
// semantics. Arrays compare element-wise with numeric coercion, which the
// term index cannot answer, so they stay residual.
func indexableKind(k Kind) bool {
	switch k {
	case KindNull, KindInt, KindFloat, KindString, KindBool:
		return true
	default:
		return false
	}
}

// lookup returns the posting bitmap for the value's canonical term under key.
func (ix *Index) lookup(key string, val Value) *roaring.Bitmap {
	byValue, ok := ix.inverted[key]
	if !ok {
		return roaring.New()
	}

	out := roaring.New()
	if bm, ok := byValue[indexTerm(val)]; ok {
		out.Or(bm)
	}
	return out
}

// indexTerm canonicalizes a value to its index term. Integral floats map to
// the int term so that Int(3) and Float(3.0) share a posting list, matching
// Filter.Matches numeric coercion.
func indexTerm(val Value) string {
	if val.Kind == KindFloat {
		if f := val.F64; f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return Int(int64(f)).Key()
		}
	}
	return val.Key()
}
