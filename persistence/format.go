package persistence

import "errors"

const (
	// MagicNumber identifies snapshot files (ASCII: "SDX0")
	MagicNumber = 0x53445830
	// Version is the current file format version (v1.0.0)
	Version = 0x00010000

	// FlagZstd marks the vector section as zstd-compressed.
	FlagZstd = uint16(1 << 0)
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrCountMismatch  = errors.New("vector count mismatch")
)

// FileHeader is the 48-byte header at the start of every snapshot file.
// Fixed-size and little-endian so the layout stays stable across versions.
type FileHeader struct {
	Magic       uint32 // 0x53445830 ("SDX0")
	Version     uint32 // File format version
	Flags       uint16 // FlagZstd etc.
	Padding1    [2]byte
	Dimension   uint32 // Vector dimensionality
	VectorCount uint64 // Total number of vectors
	Checksum    uint32 // CRC32-C of the payload following the header
	Padding2    [4]byte
	Reserved    [16]byte // Future use
}
