// Package session wraps a codec engine with the fragment transport: the
// encode side turns raw frames into fragments, the decode side turns
// fragments back into pictures.
package session

import (
	"errors"
	"fmt"
	"sync"

	"firestige.xyz/vizor/internal/codec"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
)

// EmitFunc receives every fragment produced by an EncodeSession, in order.
type EmitFunc func(core.Fragment) error

// EncodeConfig configures an EncodeSession.
type EncodeConfig struct {
	DataLimit    int    // max payload bytes per fragment
	FirstFrameID uint32 // id given to the first emitted payload
}

// EncodeStats counts encode session activity.
type EncodeStats struct {
	Submitted   uint64 // raw frames handed to the engine
	Frames      uint64 // compressed payloads emitted
	Fragments   uint64
	CodecErrors uint64
	EmitErrors  uint64
}

// EncodeSession owns an encoder and numbers its output. Every payload the
// engine emits gets its own frame id, however many raw frames produced it.
type EncodeSession struct {
	mu        sync.Mutex
	engine    codec.Encoder
	dataLimit int
	emit      EmitFunc
	nextID    uint32
	stats     EncodeStats
	closed    bool
}

// NewEncodeSession takes ownership of engine.
func NewEncodeSession(engine codec.Encoder, cfg EncodeConfig, emit EmitFunc) (*EncodeSession, error) {
	if engine == nil || emit == nil {
		return nil, fmt.Errorf("encode session needs an engine and an emit func: %w", core.ErrConfigInvalid)
	}
	if cfg.DataLimit <= 0 || cfg.DataLimit > fragment.MaxDataLimit {
		return nil, fmt.Errorf("data limit %d: %w", cfg.DataLimit, core.ErrInvalidDataLimit)
	}
	return &EncodeSession{
		engine:    engine,
		dataLimit: cfg.DataLimit,
		emit:      emit,
		nextID:    cfg.FirstFrameID,
	}, nil
}

// Submit encodes one raw frame and emits the fragments of every payload the
// engine releases. A codec error is returned wrapped in core.ErrCodec and
// leaves the session usable. Returns the number of payloads emitted.
func (s *EncodeSession) Submit(frame core.RawFrame) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, core.ErrSessionClosed
	}
	s.stats.Submitted++
	payloads, err := s.engine.Encode(frame)
	if err != nil {
		s.stats.CodecErrors++
		return 0, fmt.Errorf("encode frame: %w: %w", core.ErrCodec, err)
	}
	return s.send(payloads)
}

// Flush emits whatever the engine still buffers.
func (s *EncodeSession) Flush() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, core.ErrSessionClosed
	}
	payloads, err := s.engine.Flush()
	if err != nil {
		s.stats.CodecErrors++
		return 0, fmt.Errorf("flush encoder: %w: %w", core.ErrCodec, err)
	}
	return s.send(payloads)
}

// send must be called with s.mu held. Emit failures do not stop the
// remaining fragments; loss is the receiver's problem.
func (s *EncodeSession) send(payloads [][]byte) (int, error) {
	var errs []error
	sent := 0
	for _, payload := range payloads {
		id := s.nextID
		s.nextID++

		frags, err := fragment.Split(id, payload, s.dataLimit)
		if err != nil {
			s.stats.CodecErrors++
			errs = append(errs, err)
			continue
		}
		for _, f := range frags {
			if err := s.emit(f); err != nil {
				s.stats.EmitErrors++
				errs = append(errs, err)
				continue
			}
			s.stats.Fragments++
		}
		s.stats.Frames++
		sent++
	}
	return sent, errors.Join(errs...)
}

// NextFrameID returns the id the next payload will carry.
func (s *EncodeSession) NextFrameID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Stats returns a snapshot of session counters.
func (s *EncodeSession) Stats() EncodeStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Close releases the engine. Buffered payloads are abandoned.
func (s *EncodeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}
