// Package core defines core types with zero external dependencies.
package core

// RawFrame is an uncompressed picture as produced by a frame source.
// Pixels are packed 0x00BBGGRR, row-major, Stride pixels per row.
type RawFrame struct {
	Width  int
	Height int
	Stride int
	Pixels []uint32
}

// At returns the pixel at (x, y).
func (f RawFrame) At(x, y int) uint32 {
	return f.Pixels[y*f.Stride+x]
}

// RGB splits a packed pixel into its channels.
func RGB(p uint32) (r, g, b uint8) {
	return uint8(p), uint8(p >> 8), uint8(p >> 16)
}

// Frame is one compressed picture tagged with its stream-wide id.
type Frame struct {
	ID      uint32
	Payload []byte
}

// Fragment is the unit placed on the wire. Every fragment of a frame
// carries the same Count and Index < Count.
type Fragment struct {
	FrameID  uint32
	Index    uint16
	Count    uint16
	Checksum uint64 // over Payload
	Payload  []byte
}

// Valid reports whether the carried checksum matches the payload.
func (f Fragment) Valid() bool {
	return Checksum(f.Payload) == f.Checksum
}

// Planes is a decoded picture in a luma + interleaved chroma layout (NV12).
// The layout is dictated by the codec engine and passed through unchanged.
type Planes struct {
	FrameID  uint32
	Width    int
	Height   int
	Y        []byte
	StrideY  int
	UV       []byte
	StrideUV int
}

// SeqNewer reports whether frame id a is newer than b using serial-number
// arithmetic, so ids keep comparing correctly across wraparound.
func SeqNewer(a, b uint32) bool {
	return a != b && int32(a-b) > 0
}
