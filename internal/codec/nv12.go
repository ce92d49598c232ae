package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"firestige.xyz/vizor/internal/core"
)

// NV12 is the name of the built-in reference engine.
const NV12 = "nv12"

func init() {
	Register(NV12, Factory{
		NewEncoder: func(opts Options) (Encoder, error) { return NewNV12Encoder(opts) },
		NewDecoder: func(opts Options) (Decoder, error) { return NewNV12Decoder(opts) },
	})
}

// nv12Header is width u16 | height u16, big-endian.
const nv12Header = 4

// NV12Options configure the reference engine.
type NV12Options struct {
	OutputWidth  int `mapstructure:"output_width"`  // 0 = input width
	OutputHeight int `mapstructure:"output_height"` // 0 = input height
	Delay        int `mapstructure:"delay"`         // frames held back before emitting
}

// NV12Encoder converts packed RGB frames to BT.601 limited-range NV12,
// scaling to the output size with nearest-neighbour sampling. It does not
// compress; it stands in for a real engine in tests and demos.
type NV12Encoder struct {
	opts    NV12Options
	pending [][]byte
	closed  bool
}

// NewNV12Encoder builds an encoder from options.
func NewNV12Encoder(opts Options) (*NV12Encoder, error) {
	var o NV12Options
	if err := DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	if o.OutputWidth < 0 || o.OutputHeight < 0 || o.Delay < 0 {
		return nil, fmt.Errorf("nv12 options %+v: %w", o, core.ErrConfigInvalid)
	}
	if o.OutputWidth > math.MaxUint16 || o.OutputHeight > math.MaxUint16 {
		return nil, fmt.Errorf("nv12 output %dx%d: %w", o.OutputWidth, o.OutputHeight, core.ErrConfigInvalid)
	}
	return &NV12Encoder{opts: o}, nil
}

// Encode converts frame and returns the payloads ready to leave the delay line.
func (e *NV12Encoder) Encode(frame core.RawFrame) ([][]byte, error) {
	if e.closed {
		return nil, core.ErrCodecClosed
	}
	if frame.Width <= 0 || frame.Height <= 0 || frame.Stride < frame.Width ||
		len(frame.Pixels) < (frame.Height-1)*frame.Stride+frame.Width {
		return nil, fmt.Errorf("%dx%d stride %d with %d pixels: %w",
			frame.Width, frame.Height, frame.Stride, len(frame.Pixels), core.ErrInvalidFrame)
	}

	w, h := e.outputSize(frame)
	e.pending = append(e.pending, encodeNV12(frame, w, h))
	if len(e.pending) <= e.opts.Delay {
		return nil, nil
	}
	out := e.pending[0]
	e.pending = e.pending[1:]
	return [][]byte{out}, nil
}

// outputSize picks even dimensions no smaller than 2x2.
func (e *NV12Encoder) outputSize(frame core.RawFrame) (int, int) {
	w, h := e.opts.OutputWidth, e.opts.OutputHeight
	if w == 0 {
		w = frame.Width
	}
	if h == 0 {
		h = frame.Height
	}
	w = max(2, min(w, math.MaxUint16)&^1)
	h = max(2, min(h, math.MaxUint16)&^1)
	return w, h
}

// Flush returns every payload still held back.
func (e *NV12Encoder) Flush() ([][]byte, error) {
	if e.closed {
		return nil, core.ErrCodecClosed
	}
	out := e.pending
	e.pending = nil
	return out, nil
}

// Close drops buffered payloads.
func (e *NV12Encoder) Close() error {
	e.closed = true
	e.pending = nil
	return nil
}

func encodeNV12(frame core.RawFrame, w, h int) []byte {
	buf := make([]byte, nv12Header+w*h*3/2)
	binary.BigEndian.PutUint16(buf[0:2], uint16(w))
	binary.BigEndian.PutUint16(buf[2:4], uint16(h))
	yPlane := buf[nv12Header : nv12Header+w*h]
	uvPlane := buf[nv12Header+w*h:]

	sample := func(x, y int) (int, int, int) {
		sx := x * frame.Width / w
		sy := y * frame.Height / h
		r, g, b := core.RGB(frame.At(sx, sy))
		return int(r), int(g), int(b)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := sample(x, y)
			yPlane[y*w+x] = uint8(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}

	for y := 0; y < h; y += 2 {
		for x := 0; x < w; x += 2 {
			var rs, gs, bs int
			for _, d := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
				r, g, b := sample(x+d[0], y+d[1])
				rs, gs, bs = rs+r, gs+g, bs+b
			}
			r, g, b := rs/4, gs/4, bs/4
			i := (y/2)*w + x
			uvPlane[i] = uint8(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			uvPlane[i+1] = uint8(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
	return buf
}

// NV12Decoder unpacks payloads produced by NV12Encoder.
type NV12Decoder struct {
	closed bool
}

// NewNV12Decoder builds a decoder. The engine takes no decode options.
func NewNV12Decoder(opts Options) (*NV12Decoder, error) {
	var o NV12Options
	if err := DecodeOptions(opts, &o); err != nil {
		return nil, err
	}
	return &NV12Decoder{}, nil
}

// Decode returns one picture per payload. The planes alias payload.
func (d *NV12Decoder) Decode(payload []byte) ([]core.Planes, error) {
	if d.closed {
		return nil, core.ErrCodecClosed
	}
	if len(payload) < nv12Header {
		return nil, fmt.Errorf("%d bytes: %w", len(payload), core.ErrInvalidPayload)
	}
	w := int(binary.BigEndian.Uint16(payload[0:2]))
	h := int(binary.BigEndian.Uint16(payload[2:4]))
	if w == 0 || h == 0 || w%2 != 0 || h%2 != 0 {
		return nil, fmt.Errorf("dimensions %dx%d: %w", w, h, core.ErrInvalidPayload)
	}
	if want := nv12Header + w*h*3/2; len(payload) != want {
		return nil, fmt.Errorf("%dx%d needs %d bytes, got %d: %w", w, h, want, len(payload), core.ErrInvalidPayload)
	}

	body := payload[nv12Header:]
	return []core.Planes{{
		Width:    w,
		Height:   h,
		Y:        body[:w*h],
		StrideY:  w,
		UV:       body[w*h:],
		StrideUV: w,
	}}, nil
}

// Close marks the decoder unusable.
func (d *NV12Decoder) Close() error {
	d.closed = true
	return nil
}
