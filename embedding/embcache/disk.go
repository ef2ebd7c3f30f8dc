package embcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/hupe1980/semdex/codec"
	"github.com/hupe1980/semdex/persistence"
)

const (
	vectorsDirName = "vectors"
	metaDirName    = "meta"

	vectorExt = ".vec"
	metaExt   = ".json"
)

// Compile-time check to ensure Disk satisfies the cache interface.
var _ Cache = (*Disk)(nil)

// Disk is a filesystem-backed cache. Each entry is a vector file plus a JSON
// metadata sidecar, both written atomically so a crash never leaves a torn
// entry behind. Corrupt entries are treated as misses and removed.
type Disk struct {
	dir    string
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewDisk creates a disk cache rooted at dir, creating the layout if needed.
func NewDisk(dir string) (*Disk, error) {
	for _, sub := range []string{vectorsDirName, metaDirName} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, err
		}
	}

	return &Disk{dir: dir}, nil
}

func (d *Disk) vectorPath(key string) string {
	return filepath.Join(d.dir, vectorsDirName, key+vectorExt)
}

func (d *Disk) metaPath(key string) string {
	return filepath.Join(d.dir, metaDirName, key+metaExt)
}

// Get returns the cached vector for key.
func (d *Disk) Get(ctx context.Context, key string) ([]float32, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	buf, err := os.ReadFile(d.vectorPath(key))
	if err != nil {
		d.misses.Add(1)
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	vec, err := decodeVector(buf)
	if err != nil {
		// Drop the broken entry so it does not fail again next time.
		_ = os.Remove(d.vectorPath(key))
		_ = os.Remove(d.metaPath(key))
		d.misses.Add(1)
		return nil, false, nil
	}

	d.hits.Add(1)

	return vec, true, nil
}

// Put stores a vector under key.
func (d *Disk) Put(ctx context.Context, key string, vec []float32, meta EntryMeta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := persistence.SaveToFile(d.vectorPath(key), func(w io.Writer) error {
		_, err := w.Write(encodeVector(vec))
		return err
	}); err != nil {
		return err
	}

	encoded, err := codec.Default.Marshal(meta)
	if err != nil {
		return err
	}

	return persistence.SaveToFile(d.metaPath(key), func(w io.Writer) error {
		_, err := w.Write(encoded)
		return err
	})
}

// Meta returns the metadata sidecar for key, if present.
func (d *Disk) Meta(ctx context.Context, key string) (EntryMeta, bool, error) {
	if err := ctx.Err(); err != nil {
		return EntryMeta{}, false, err
	}

	raw, err := os.ReadFile(d.metaPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return EntryMeta{}, false, nil
		}
		return EntryMeta{}, false, err
	}

	var meta EntryMeta
	if err := codec.Default.Unmarshal(raw, &meta); err != nil {
		return EntryMeta{}, false, err
	}

	return meta, true, nil
}

// Stats walks the vector directory to report entry count and size.
func (d *Disk) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Hits:   d.hits.Load(),
		Misses: d.misses.Load(),
	}

	entries, err := os.ReadDir(filepath.Join(d.dir, vectorsDirName))
	if err != nil {
		return Stats{}, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), vectorExt) {
			continue
		}

		stats.Entries++

		if info, err := entry.Info(); err == nil {
			stats.SizeBytes += info.Size()
		}
	}

	return stats, nil
}

// Clear removes all entries.
func (d *Disk) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, sub := range []string{vectorsDirName, metaDirName} {
		path := filepath.Join(d.dir, sub)
		if err := os.RemoveAll(path); err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return err
		}
	}

	return nil
}

// Close is a no-op for the disk backend.
func (d *Disk) Close() error { return nil }
