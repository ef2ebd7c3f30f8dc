package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/semdex/internal/hash"
)

var byteOrder = binary.LittleEndian

// Shared zstd coders, safe for concurrent EncodeAll/DecodeAll use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeFloat32 compresses a float32 slice with zstd and returns the payload.
// Safety: Validates alignment before unsafe conversion.
func EncodeFloat32(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}

	if err := validateFloat32SliceAlignment(vec); err != nil {
		return nil, err
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), len(vec)*4)

	return zstdEncoder.EncodeAll(raw, nil), nil
}

// DecodeFloat32 decompresses a zstd payload into a float32 slice of exactly
// count elements.
func DecodeFloat32(payload []byte, count int) ([]float32, error) {
	if count == 0 {
		return nil, nil
	}

	vec := make([]float32, count)
	dst := unsafe.Slice((*byte)(unsafe.Pointer(&vec[0])), count*4)

	raw, err := zstdDecoder.DecodeAll(payload, dst[:0])
	if err != nil {
		return nil, fmt.Errorf("decompress vectors: %w", err)
	}
	if len(raw) != len(dst) {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCountMismatch, len(raw), len(dst))
	}
	if &raw[0] != &dst[0] {
		// DecodeAll reallocated; copy back into the aligned slice.
		copy(dst, raw)
	}

	return vec, nil
}

// WriteSnapshot writes a header followed by the payload. The header's Magic,
// Version and Checksum fields are filled in here.
func WriteSnapshot(w io.Writer, header *FileHeader, payload []byte) error {
	header.Magic = MagicNumber
	header.Version = Version
	header.Checksum = hash.CRC32C(payload)

	if err := binary.Write(w, byteOrder, header); err != nil {
		return err
	}

	_, err := w.Write(payload)

	return err
}

// ReadSnapshot reads and validates the header, then returns the payload with
// its checksum verified.
func ReadSnapshot(r io.Reader) (*FileHeader, []byte, error) {
	var header FileHeader
	if err := binary.Read(r, byteOrder, &header); err != nil {
		return nil, nil, err
	}

	if header.Magic != MagicNumber {
		return nil, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}

	if header.Version != Version {
		return nil, nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}

	cr := NewChecksumReader(r)

	payload, err := io.ReadAll(cr)
	if err != nil {
		return nil, nil, err
	}

	if err := cr.Verify(header.Checksum); err != nil {
		return nil, nil, err
	}

	return &header, payload, nil
}

// SaveToFile atomically writes a file via a temp file and rename.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	// Write to a temp file in the same directory to ensure rename is atomic.
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	// Match typical file permissions (best-effort).
	_ = tmp.Chmod(0644)

	// Use buffered writer to batch writes (critical for performance)
	buf := bufio.NewWriterSize(tmp, 256*1024) // 256KB buffer
	if err := writeFunc(buf); err != nil {
		return err
	}

	if err := buf.Flush(); err != nil {
		return err
	}

	if err := tmp.Sync(); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	// Atomically replace target.
	if err := os.Rename(tmpName, filename); err != nil {
		return err
	}

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	// Success: prevent deferred cleanup from removing the final file.
	tmpName = ""
	return nil
}

// LoadFromFile is a helper to load data from a file.
func LoadFromFile(filename string, readFunc func(io.Reader) error) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	// Use buffered reader to batch reads
	buf := bufio.NewReaderSize(f, 256*1024) // 256KB buffer
	return readFunc(buf)
}
