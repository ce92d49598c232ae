package fragment

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/vizor/internal/core"
)

// HeaderSize is the fixed size of the fragment header on the wire.
//
//	bytes 0-3:   frame id
//	bytes 4-5:   fragment index
//	bytes 6-7:   fragment count
//	bytes 8-11:  payload length
//	bytes 12-19: checksum
//
// All fields are big-endian; the payload follows immediately.
const HeaderSize = 20

// MaxDatagram is the largest UDP payload over IPv4.
const MaxDatagram = 65507

// MaxDataLimit is the largest payload a single fragment may carry.
const MaxDataLimit = MaxDatagram - HeaderSize

// Marshal encodes f into a new datagram.
func Marshal(f core.Fragment) []byte {
	return AppendMarshal(make([]byte, 0, HeaderSize+len(f.Payload)), f)
}

// AppendMarshal appends the encoding of f to dst.
func AppendMarshal(dst []byte, f core.Fragment) []byte {
	dst = binary.BigEndian.AppendUint32(dst, f.FrameID)
	dst = binary.BigEndian.AppendUint16(dst, f.Index)
	dst = binary.BigEndian.AppendUint16(dst, f.Count)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(f.Payload)))
	dst = binary.BigEndian.AppendUint64(dst, f.Checksum)
	return append(dst, f.Payload...)
}

// Unmarshal decodes one datagram. The returned payload aliases b; callers
// that keep it past the next read must copy it.
// The checksum is not verified here.
func Unmarshal(b []byte) (core.Fragment, error) {
	if len(b) < HeaderSize {
		return core.Fragment{}, fmt.Errorf("%d bytes: %w", len(b), core.ErrFragmentTooShort)
	}

	f := core.Fragment{
		FrameID:  binary.BigEndian.Uint32(b[0:4]),
		Index:    binary.BigEndian.Uint16(b[4:6]),
		Count:    binary.BigEndian.Uint16(b[6:8]),
		Checksum: binary.BigEndian.Uint64(b[12:20]),
	}
	length := binary.BigEndian.Uint32(b[8:12])
	if uint64(length) != uint64(len(b)-HeaderSize) {
		return core.Fragment{}, fmt.Errorf("header says %d, datagram carries %d: %w",
			length, len(b)-HeaderSize, core.ErrFragmentLength)
	}
	if f.Count == 0 || f.Index >= f.Count {
		return core.Fragment{}, fmt.Errorf("index %d of %d: %w", f.Index, f.Count, core.ErrFragmentIndex)
	}
	f.Payload = b[HeaderSize:]
	return f, nil
}
