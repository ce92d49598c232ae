package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want uint64
	}{
		{"nil", nil, 0},
		{"empty", []byte{}, 0},
		{"single", []byte{0xff}, 255},
		{"several", []byte{1, 2, 3, 4}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(tt.in))
		})
	}
}

func TestChecksumDetectsBitFlip(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := Checksum(data)
	data[3] ^= 0x01
	assert.NotEqual(t, sum, Checksum(data))
}

func TestFragmentValid(t *testing.T) {
	f := Fragment{Payload: []byte{9, 9, 9}}
	f.Checksum = Checksum(f.Payload)
	assert.True(t, f.Valid())

	f.Payload[0] = 8
	assert.False(t, f.Valid())
}

func TestRawFrameAt(t *testing.T) {
	f := RawFrame{Width: 2, Height: 2, Stride: 3, Pixels: []uint32{1, 2, 0, 3, 4, 0}}
	assert.Equal(t, uint32(1), f.At(0, 0))
	assert.Equal(t, uint32(4), f.At(1, 1))

	r, g, b := RGB(0x00332211)
	assert.Equal(t, uint8(0x11), r)
	assert.Equal(t, uint8(0x22), g)
	assert.Equal(t, uint8(0x33), b)
}

func TestSeqNewer(t *testing.T) {
	assert.True(t, SeqNewer(2, 1))
	assert.False(t, SeqNewer(1, 2))
	assert.False(t, SeqNewer(5, 5))
	// wraparound
	assert.True(t, SeqNewer(0, 0xffffffff))
	assert.False(t, SeqNewer(0xffffffff, 0))
}

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("frame 7: %w", ErrChecksumMismatch)
	assert.True(t, errors.Is(wrapped, ErrChecksumMismatch))
	assert.False(t, errors.Is(wrapped, ErrInconsistentCount))
}
