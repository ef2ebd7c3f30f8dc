package flat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/semdex/codec"
	"github.com/hupe1980/semdex/metadata"
	"github.com/hupe1980/semdex/persistence"
	"github.com/hupe1980/semdex/store"
)

const (
	indexFileName = "index.bin"
	metaFileName  = "metadata.json"
)

// sidecar is the JSON document stored next to the binary snapshot. Entry
// order matches row order in the vector matrix.
type sidecar struct {
	Entries []sidecarEntry `json:"entries"`
}

type sidecarEntry struct {
	ID       string            `json:"id"`
	Metadata metadata.Document `json:"metadata,omitempty"`
}

// Persist writes a snapshot of the store into dir. The snapshot consists of
// index.bin (header plus zstd-compressed vector matrix) and metadata.json
// (IDs and metadata in row order). Both files are written atomically.
func (f *Flat) Persist(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	payload, err := persistence.EncodeFloat32(f.data)
	if err != nil {
		return err
	}

	header := persistence.FileHeader{
		Flags:       persistence.FlagZstd,
		Dimension:   uint32(f.opts.Dimension),
		VectorCount: uint64(len(f.ids)),
	}

	if err := persistence.SaveToFile(filepath.Join(dir, indexFileName), func(w io.Writer) error {
		return persistence.WriteSnapshot(w, &header, payload)
	}); err != nil {
		return err
	}

	sc := sidecar{Entries: make([]sidecarEntry, len(f.ids))}
	for pos, id := range f.ids {
		sc.Entries[pos] = sidecarEntry{ID: id, Metadata: f.metas[pos]}
	}

	encoded, err := codec.Default.Marshal(sc)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	return persistence.SaveToFile(filepath.Join(dir, metaFileName), func(w io.Writer) error {
		_, err := w.Write(encoded)
		return err
	})
}

// Load replaces the store contents from a snapshot in dir. The snapshot's
// dimension must match the store's configured dimension; the vector matrix
// and the metadata sidecar must agree on the row count.
func (f *Flat) Load(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		header  *persistence.FileHeader
		payload []byte
	)

	if err := persistence.LoadFromFile(filepath.Join(dir, indexFileName), func(r io.Reader) error {
		var err error
		header, payload, err = persistence.ReadSnapshot(r)
		return err
	}); err != nil {
		return err
	}

	if int(header.Dimension) != f.opts.Dimension {
		return &store.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: int(header.Dimension)}
	}

	if header.Flags&persistence.FlagZstd == 0 {
		return fmt.Errorf("unsupported snapshot flags: 0x%04x", header.Flags)
	}

	count := int(header.VectorCount)

	data, err := persistence.DecodeFloat32(payload, count*f.opts.Dimension)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return err
	}

	var sc sidecar
	if err := codec.Default.Unmarshal(raw, &sc); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	if len(sc.Entries) != count {
		return fmt.Errorf("%w: matrix has %d rows, sidecar has %d entries",
			persistence.ErrCountMismatch, count, len(sc.Entries))
	}

	ids := make([]string, count)
	metas := make([]metadata.Document, count)
	idToPos := make(map[string]int, count)

	for pos, entry := range sc.Entries {
		if entry.ID == "" {
			return store.ErrEmptyID
		}

		if _, dup := idToPos[entry.ID]; dup {
			return &store.ErrDuplicateID{ID: entry.ID}
		}

		ids[pos] = entry.ID
		metas[pos] = entry.Metadata
		idToPos[entry.ID] = pos
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.data = data
	f.ids = ids
	f.metas = metas
	f.idToPos = idToPos
	f.metaIndex.Rebuild(metas)

	return nil
}
