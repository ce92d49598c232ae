// Package fragment splits compressed frames into wire-sized fragments and
// encodes them for the network.
package fragment

import (
	"fmt"
	"math"

	"firestige.xyz/vizor/internal/core"
)

// MaxFragments is the largest fragment count the 16-bit count field can carry.
const MaxFragments = math.MaxUint16

// Split cuts payload into contiguous fragments of at most dataLimit bytes.
// Every fragment carries the final count so a receiver can size the group on
// first arrival. An empty payload yields exactly one empty fragment.
// Fragment payloads alias the input slice.
func Split(frameID uint32, payload []byte, dataLimit int) ([]core.Fragment, error) {
	if dataLimit <= 0 {
		return nil, fmt.Errorf("split frame %d with limit %d: %w", frameID, dataLimit, core.ErrInvalidDataLimit)
	}

	count := (len(payload) + dataLimit - 1) / dataLimit
	if count == 0 {
		count = 1
	}
	if count > MaxFragments {
		return nil, fmt.Errorf("split frame %d: %d bytes at limit %d: %w",
			frameID, len(payload), dataLimit, core.ErrFrameTooLarge)
	}

	fragments := make([]core.Fragment, count)
	for i := 0; i < count; i++ {
		start := i * dataLimit
		end := min(start+dataLimit, len(payload))
		chunk := payload[start:end]
		fragments[i] = core.Fragment{
			FrameID:  frameID,
			Index:    uint16(i),
			Count:    uint16(count),
			Checksum: core.Checksum(chunk),
			Payload:  chunk,
		}
	}
	return fragments, nil
}

// Join concatenates fragment payloads in slice order into a new buffer.
func Join(fragments []core.Fragment) []byte {
	total := 0
	for _, f := range fragments {
		total += len(f.Payload)
	}
	out := make([]byte, 0, total)
	for _, f := range fragments {
		out = append(out, f.Payload...)
	}
	return out
}
