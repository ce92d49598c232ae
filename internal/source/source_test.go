package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vizor/internal/core"
)

func TestNew(t *testing.T) {
	s, err := New(Config{Name: "pattern", Width: 64, Height: 32})
	require.NoError(t, err)
	defer s.Close()

	f, err := s.Capture()
	require.NoError(t, err)
	assert.Equal(t, 64, f.Width)
	assert.Equal(t, 32, f.Height)
	assert.Equal(t, 64, f.Stride)
	assert.Len(t, f.Pixels, 64*32)
}

func TestNewInvalid(t *testing.T) {
	_, err := New(Config{Name: "pattern"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	_, err = New(Config{Name: "webcam", Width: 2, Height: 2})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestPatternScrolls(t *testing.T) {
	p := NewPattern(70, 2, 0)
	first, _ := p.Capture()
	a := append([]uint32{}, first.Pixels...)
	second, _ := p.Capture()

	assert.NotEqual(t, a, second.Pixels)
	// One column shift: column x of frame 2 equals column x+1 of frame 1.
	assert.Equal(t, a[1], second.Pixels[0])
}

func TestPatternNoiseIsDeterministic(t *testing.T) {
	a := NewPattern(32, 32, 42)
	b := NewPattern(32, 32, 42)
	fa, _ := a.Capture()
	fb, _ := b.Capture()
	assert.Equal(t, fa.Pixels, fb.Pixels)

	c := NewPattern(32, 32, 43)
	fc, _ := c.Capture()
	assert.NotEqual(t, fa.Pixels, fc.Pixels)
}
