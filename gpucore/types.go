package gpucore

import "fmt"

// Resource IDs
//
// Buffers are referenced through opaque IDs. Each device implementation
// maintains the mapping between IDs and its actual storage.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// TextureFormat specifies the cell format of a buffer.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	// Amplitude buffers keep (re, im) in R and G; density buffers use all four.
	TextureFormatRGBA32Float TextureFormat = iota + 1
)

// String returns the format name.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA32Float:
		return "RGBA32Float"
	default:
		return fmt.Sprintf("Unknown(%d)", uint32(f))
	}
}

// Channels is the number of float32 values stored per cell.
const Channels = 4

// CellBytes is the size of one cell in bytes.
const CellBytes = Channels * 4

// Buffer describes a device-resident, 2D-addressable array of cells.
//
// A buffer is written once, by the kernel call that produced it, and is
// read-only afterwards. Cells are addressed linearly in row-major order; the
// 2D shape only matters to devices that store buffers as textures.
type Buffer struct {
	ID     BufferID
	Width  int
	Height int
	Format TextureFormat
}

// Len returns the number of cells in the buffer.
func (b Buffer) Len() int {
	return b.Width * b.Height
}

// SizeBytes returns the buffer size in bytes.
func (b Buffer) SizeBytes() uint64 {
	return uint64(b.Len()) * CellBytes //nolint:gosec // Len is non-negative
}

// IsValid reports whether the buffer refers to an allocated resource.
func (b Buffer) IsValid() bool {
	return b.ID != InvalidID && b.Width > 0 && b.Height > 0
}

// String returns a short description for logs.
func (b Buffer) String() string {
	return fmt.Sprintf("Buffer#%d(%dx%d %s)", b.ID, b.Width, b.Height, b.Format)
}

// ShapeForPower returns the grid used for a buffer of 1<<p cells.
// Width takes the extra factor of two when p is odd.
func ShapeForPower(p int) (width, height int) {
	if p < 0 {
		p = 0
	}
	return 1 << ((p + 1) / 2), 1 << (p / 2)
}
