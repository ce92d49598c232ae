// Package reassembly rebuilds compressed frames from fragments that arrive
// out of order, duplicated, corrupted or not at all.
package reassembly

import (
	"fmt"
	"time"

	"firestige.xyz/vizor/internal/core"
)

// Defaults applied by New for zero config fields.
const (
	DefaultDeadline  = 500 * time.Millisecond
	DefaultMaxGroups = 256
)

// Config contains configuration for frame reassembly.
type Config struct {
	Deadline  time.Duration // Age after which an incomplete frame is dropped
	MaxGroups int           // Maximum frames under reassembly at once
}

// group is the working state for one frame id.
type group struct {
	count    uint16
	received int
	parts    [][]byte // indexed by fragment index
	have     []bool   // parts[i] is valid; an empty payload is still a part
	created  time.Time
}

// Stats counts reassembly outcomes since creation.
type Stats struct {
	Accepted           uint64 // fragments inserted into a group
	Completed          uint64 // frames emitted
	Expired            uint64 // groups dropped at deadline or evicted
	Duplicates         uint64
	ChecksumFailures   uint64
	InconsistentCounts uint64
	Stale              uint64 // fragments for frames already completed or expired
	Groups             int    // live groups
}

// Reassembler collects fragments per frame id and emits a frame once every
// fragment is present. It is not safe for concurrent use: the goroutine that
// reads the socket owns it and calls Sweep between reads.
type Reassembler struct {
	groups map[uint32]*group
	// finished remembers completed and expired frame ids for one deadline so
	// stragglers cannot reopen them.
	finished map[uint32]time.Time
	config   Config
	stats    Stats
}

// New creates a new frame reassembler.
func New(cfg Config) *Reassembler {
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.MaxGroups <= 0 {
		cfg.MaxGroups = DefaultMaxGroups
	}
	return &Reassembler{
		groups:   make(map[uint32]*group),
		finished: make(map[uint32]time.Time),
		config:   cfg,
	}
}

// Accept processes one fragment received at now.
// Returns:
//   - Frame complete: (frame, true, nil)
//   - Waiting for more fragments or duplicate: (zero, false, nil)
//   - Fragment discarded: (zero, false, err) on a checksum, count or index anomaly
//
// The fragment payload is copied; the caller may reuse its buffer.
func (r *Reassembler) Accept(f core.Fragment, now time.Time) (core.Frame, bool, error) {
	if !f.Valid() {
		r.stats.ChecksumFailures++
		return core.Frame{}, false, fmt.Errorf("frame %d fragment %d: %w", f.FrameID, f.Index, core.ErrChecksumMismatch)
	}
	if f.Count == 0 || f.Index >= f.Count {
		return core.Frame{}, false, fmt.Errorf("frame %d: index %d of %d: %w", f.FrameID, f.Index, f.Count, core.ErrFragmentIndex)
	}
	if _, done := r.finished[f.FrameID]; done {
		r.stats.Stale++
		return core.Frame{}, false, fmt.Errorf("frame %d fragment %d: %w", f.FrameID, f.Index, core.ErrStaleFragment)
	}

	g, exists := r.groups[f.FrameID]
	if !exists {
		if len(r.groups) >= r.config.MaxGroups {
			r.evictOldest(now)
		}
		g = &group{
			count:   f.Count,
			parts:   make([][]byte, f.Count),
			have:    make([]bool, f.Count),
			created: now,
		}
		r.groups[f.FrameID] = g
	}

	if g.count != f.Count {
		r.stats.InconsistentCounts++
		return core.Frame{}, false, fmt.Errorf("frame %d: count %d, group expects %d: %w",
			f.FrameID, f.Count, g.count, core.ErrInconsistentCount)
	}

	if g.have[f.Index] {
		r.stats.Duplicates++
		return core.Frame{}, false, nil
	}

	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	g.parts[f.Index] = payload
	g.have[f.Index] = true
	g.received++
	r.stats.Accepted++

	if g.received < int(g.count) {
		return core.Frame{}, false, nil
	}

	frame := core.Frame{ID: f.FrameID, Payload: build(g)}
	delete(r.groups, f.FrameID)
	r.markFinished(f.FrameID, now)
	r.stats.Completed++
	return frame, true, nil
}

// build concatenates all parts in index order.
func build(g *group) []byte {
	total := 0
	for _, p := range g.parts {
		total += len(p)
	}
	out := make([]byte, 0, total)
	for _, p := range g.parts {
		out = append(out, p...)
	}
	return out
}

// Sweep drops every group older than the deadline and forgets finished ids
// older than the deadline. Returns the number of groups dropped.
func (r *Reassembler) Sweep(now time.Time) int {
	expired := 0
	for id, g := range r.groups {
		if now.Sub(g.created) > r.config.Deadline {
			delete(r.groups, id)
			r.markFinished(id, now)
			expired++
		}
	}
	r.stats.Expired += uint64(expired)

	for id, at := range r.finished {
		if now.Sub(at) > r.config.Deadline {
			delete(r.finished, id)
		}
	}
	return expired
}

// evictOldest makes room for a new group by dropping the oldest one.
func (r *Reassembler) evictOldest(now time.Time) {
	var (
		oldestID uint32
		oldest   *group
	)
	for id, g := range r.groups {
		if oldest == nil || g.created.Before(oldest.created) {
			oldestID, oldest = id, g
		}
	}
	if oldest == nil {
		return
	}
	delete(r.groups, oldestID)
	r.markFinished(oldestID, now)
	r.stats.Expired++
}

// markFinished records id as done. The finished set is bounded to a few
// multiples of MaxGroups even if Sweep is never called.
func (r *Reassembler) markFinished(id uint32, now time.Time) {
	limit := 4 * r.config.MaxGroups
	if len(r.finished) >= limit {
		for old, at := range r.finished {
			if now.Sub(at) > r.config.Deadline || len(r.finished) >= limit {
				delete(r.finished, old)
			}
		}
	}
	r.finished[id] = now
}

// Len returns the number of frames under reassembly.
func (r *Reassembler) Len() int {
	return len(r.groups)
}

// Received returns how many distinct fragments the live group for id holds.
func (r *Reassembler) Received(id uint32) int {
	if g, ok := r.groups[id]; ok {
		return g.received
	}
	return 0
}

// Stats returns a snapshot of reassembly counters.
func (r *Reassembler) Stats() Stats {
	s := r.stats
	s.Groups = len(r.groups)
	return s
}
