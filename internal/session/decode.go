package session

import (
	"fmt"
	"sync"
	"time"

	"firestige.xyz/vizor/internal/codec"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/reassembly"
)

// HandleFunc receives decoded pictures. Plane memory may be reused after the
// call returns.
type HandleFunc func(core.Planes)

// DecodeConfig configures a DecodeSession.
type DecodeConfig struct {
	Reassembly reassembly.Config
	// DropStale discards completed frames that are not newer than the last
	// frame handed to the decoder.
	DropStale bool
}

// DecodeStats counts decode session activity.
type DecodeStats struct {
	Reassembly   reassembly.Stats
	Frames       uint64 // completed frames handed to the engine
	Pictures     uint64 // pictures delivered to the handler
	CodecErrors  uint64
	StaleDropped uint64
}

// DecodeSession owns a reassembler and a decoder. Once Close returns the
// handler is never called again.
type DecodeSession struct {
	mu          sync.Mutex
	engine      codec.Decoder
	reassembler *reassembly.Reassembler
	handle      HandleFunc
	dropStale   bool
	lastID      uint32
	haveLast    bool
	stats       DecodeStats
	closed      bool
}

// NewDecodeSession takes ownership of engine.
func NewDecodeSession(engine codec.Decoder, cfg DecodeConfig, handle HandleFunc) (*DecodeSession, error) {
	if engine == nil || handle == nil {
		return nil, fmt.Errorf("decode session needs an engine and a handler: %w", core.ErrConfigInvalid)
	}
	return &DecodeSession{
		engine:      engine,
		reassembler: reassembly.New(cfg.Reassembly),
		handle:      handle,
		dropStale:   cfg.DropStale,
	}, nil
}

// Submit feeds one fragment received at now. Reassembly anomalies are
// returned so the caller can count them; a codec error is wrapped in
// core.ErrCodec. Neither stops the session.
func (s *DecodeSession) Submit(f core.Fragment, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrSessionClosed
	}

	frame, complete, err := s.reassembler.Accept(f, now)
	if err != nil || !complete {
		return err
	}

	if s.dropStale && s.haveLast && !core.SeqNewer(frame.ID, s.lastID) {
		s.stats.StaleDropped++
		return nil
	}
	s.lastID, s.haveLast = frame.ID, true
	s.stats.Frames++

	pictures, err := s.engine.Decode(frame.Payload)
	if err != nil {
		s.stats.CodecErrors++
		return fmt.Errorf("decode frame %d: %w: %w", frame.ID, core.ErrCodec, err)
	}
	for _, p := range pictures {
		p.FrameID = frame.ID
		s.handle(p)
		s.stats.Pictures++
	}
	return nil
}

// Sweep drops incomplete frames past the reassembly deadline.
func (s *DecodeSession) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return s.reassembler.Sweep(now)
}

// Stats returns a snapshot of session counters.
func (s *DecodeSession) Stats() DecodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Reassembly = s.reassembler.Stats()
	return stats
}

// Close releases the engine and abandons incomplete frames.
func (s *DecodeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}
