// Package source provides raw frame producers for the send side.
package source

import (
	"fmt"
	"math/rand"

	"firestige.xyz/vizor/internal/core"
)

// Source produces raw frames on demand.
type Source interface {
	Capture() (core.RawFrame, error)
	Close() error
}

// Config selects and sizes a source.
type Config struct {
	Name   string
	Width  int
	Height int
	Seed   int64 // noise seed; 0 disables noise
}

// New builds the source named in cfg.
func New(cfg Config) (Source, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("source size %dx%d: %w", cfg.Width, cfg.Height, core.ErrConfigInvalid)
	}
	switch cfg.Name {
	case "pattern", "":
		return NewPattern(cfg.Width, cfg.Height, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unknown source %q: %w", cfg.Name, core.ErrConfigInvalid)
	}
}

// barColors are the classic 75% colour bars, packed 0x00BBGGRR.
var barColors = [...]uint32{
	0x00bfbfbf, // grey
	0x0000bfbf, // yellow
	0x00bfbf00, // cyan
	0x0000bf00, // green
	0x00bf00bf, // magenta
	0x000000bf, // red
	0x00bf0000, // blue
}

// Pattern renders colour bars that scroll one column per frame, optionally
// sprinkled with deterministic noise so consecutive frames differ.
type Pattern struct {
	width  int
	height int
	rng    *rand.Rand // nil when noise is off
	seq    int
	pixels []uint32
}

// NewPattern creates a pattern source.
func NewPattern(width, height int, seed int64) *Pattern {
	p := &Pattern{
		width:  width,
		height: height,
		pixels: make([]uint32, width*height),
	}
	if seed != 0 {
		p.rng = rand.New(rand.NewSource(seed))
	}
	return p
}

// Capture renders the next frame. The returned pixels are reused by the
// next call.
func (p *Pattern) Capture() (core.RawFrame, error) {
	barWidth := max(1, p.width/len(barColors))
	for y := 0; y < p.height; y++ {
		row := p.pixels[y*p.width : (y+1)*p.width]
		for x := range row {
			bar := ((x + p.seq) / barWidth) % len(barColors)
			row[x] = barColors[bar]
		}
	}
	if p.rng != nil {
		for i := 0; i < len(p.pixels)/64; i++ {
			p.pixels[p.rng.Intn(len(p.pixels))] = p.rng.Uint32() & 0x00ffffff
		}
	}
	p.seq++

	return core.RawFrame{
		Width:  p.width,
		Height: p.height,
		Stride: p.width,
		Pixels: p.pixels,
	}, nil
}

// Close implements Source.
func (p *Pattern) Close() error { return nil }
