// Package embcache provides content-addressed caching of embedding vectors
// with disk, Redis and in-memory backends.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/semdex/internal/hash"
)

// ErrCorruptEntry is returned when a cached vector fails integrity checks.
// Callers should treat it as a miss.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Key derives the cache key for a text under a given model. The model name
// namespaces the key, so switching models never serves stale vectors.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(model + ":" + text))
	return hex.EncodeToString(sum[:])
}

// EntryMeta describes a cached vector. It is stored next to the vector and
// is purely informational. Extra carries the user metadata attached to the
// text when it was embedded.
type EntryMeta struct {
	TextPreview string         `json:"text_preview,omitempty"`
	Model       string         `json:"model"`
	Dimension   int            `json:"dimension"`
	CreatedAt   time.Time      `json:"created_at"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// previewLimit caps how much of the original text is kept in EntryMeta.
const previewLimit = 100

// NewEntryMeta builds an EntryMeta for a vector derived from text.
func NewEntryMeta(model, text string, dimension int) EntryMeta {
	preview := text
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	return EntryMeta{
		TextPreview: preview,
		Model:       model,
		Dimension:   dimension,
		CreatedAt:   time.Now().UTC(),
	}
}

// Stats summarizes cache contents and effectiveness.
type Stats struct {
	Entries   int    `json:"entries"`
	SizeBytes int64  `json:"size_bytes"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
}

// Cache stores embedding vectors by content-derived key.
type Cache interface {
	// Get returns the cached vector for key. A false return means a miss;
	// corrupt entries are reported as misses, not errors.
	Get(ctx context.Context, key string) ([]float32, bool, error)

	// Put stores a vector under key.
	Put(ctx context.Context, key string, vec []float32, meta EntryMeta) error

	// Stats returns contents and hit/miss counters for this cache instance.
	Stats(ctx context.Context) (Stats, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// encodeVector serializes a vector as a little-endian count, the raw float
// data and a trailing CRC32-C over both.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+len(vec)*4+4)
	binary.LittleEndian.PutUint32(buf, uint32(len(vec)))

	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+i*4:], math.Float32bits(v))
	}

	binary.LittleEndian.PutUint32(buf[4+len(vec)*4:], hash.CRC32C(buf[:4+len(vec)*4]))

	return buf
}

// decodeVector is the inverse of encodeVector. Any structural or checksum
// failure yields ErrCorruptEntry.
func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrCorruptEntry, len(buf))
	}

	count := int(binary.LittleEndian.Uint32(buf))
	if len(buf) != 4+count*4+4 {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCorruptEntry, len(buf), 4+count*4+4)
	}

	body := buf[:4+count*4]
	want := binary.LittleEndian.Uint32(buf[4+count*4:])
	if got := hash.CRC32C(body); got != want {
		return nil, fmt.Errorf("%w: checksum 0x%08x, want 0x%08x", ErrCorruptEntry, got, want)
	}

	vec := make([]float32, count)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4+i*4:]))
	}

	return vec, nil
}
