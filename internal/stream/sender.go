// Package stream runs the two directions of a vizor stream. Each runner is
// a single goroutine that owns its socket, codec session and, on the send
// side, its frame source.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/vizor/internal/codec"
	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
	"firestige.xyz/vizor/internal/log"
	"firestige.xyz/vizor/internal/metrics"
	"firestige.xyz/vizor/internal/session"
	"firestige.xyz/vizor/internal/source"
	"firestige.xyz/vizor/internal/transport"
)

// SenderStats is a snapshot of sender counters.
type SenderStats struct {
	Captured      uint64
	CaptureErrors uint64
	Sent          uint64 // datagrams accepted by the socket
	SendFailed    uint64
	Session       session.EncodeStats
}

// Sender captures frames at a fixed rate, encodes them and sends their
// fragments to the peer.
type Sender struct {
	src      source.Source
	sock     *transport.SendSocket
	session  *session.EncodeSession
	interval time.Duration
	logger   *slog.Logger
	id       string
	buf      []byte

	captured      atomic.Uint64
	captureErrors atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewSender builds the source, encoder and send socket described by cfg.
// On error nothing stays open.
func NewSender(cfg *config.GlobalConfig) (s *Sender, err error) {
	logger, id := log.Session("sender")

	src, err := source.New(source.Config{
		Name:   cfg.Source.Name,
		Width:  cfg.Source.Width,
		Height: cfg.Source.Height,
		Seed:   cfg.Source.Seed,
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	defer func() {
		if err != nil {
			src.Close()
		}
	}()

	engine, err := codec.NewEncoder(cfg.Codec.Name, codec.Options(cfg.Codec.Options))
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	defer func() {
		if err != nil {
			engine.Close()
		}
	}()

	sock, err := transport.NewSendSocket(transport.SocketConfig{
		LocalPort:     cfg.Transport.LocalPort,
		RemoteAddress: cfg.Transport.RemoteAddress,
		RemotePort:    cfg.Transport.RemotePort,
		DSCP:          cfg.Transport.DSCP,
	})
	if err != nil {
		return nil, fmt.Errorf("create send socket: %w", err)
	}
	defer func() {
		if err != nil {
			sock.Close()
		}
	}()

	s = &Sender{
		src:      src,
		sock:     sock,
		interval: time.Second / time.Duration(cfg.Source.FPS),
		logger:   logger,
		id:       id,
		buf:      make([]byte, 0, fragment.HeaderSize+cfg.Stream.DataLimit),
	}
	s.session, err = session.NewEncodeSession(engine, session.EncodeConfig{
		DataLimit:    cfg.Stream.DataLimit,
		FirstFrameID: cfg.Stream.FirstFrameID,
	}, s.emit)
	if err != nil {
		return nil, fmt.Errorf("create encode session: %w", err)
	}
	return s, nil
}

// emit runs on the Run goroutine, under the session lock.
func (s *Sender) emit(f core.Fragment) error {
	s.buf = fragment.AppendMarshal(s.buf[:0], f)
	if err := s.sock.Send(s.buf); err != nil {
		return err
	}
	metrics.FragmentsSentTotal.Inc()
	return nil
}

// Run captures one frame per tick until ctx is cancelled, then closes the
// sender. Per-frame failures are counted and logged; they do not stop Run.
func (s *Sender) Run(ctx context.Context) error {
	defer s.Close()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sender started",
		"local", s.sock.LocalAddr().String(),
		"interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			stats := s.Stats()
			s.logger.Info("sender stopped",
				"captured", stats.Captured,
				"frames", stats.Session.Frames,
				"fragments", stats.Session.Fragments,
				"codec_errors", stats.Session.CodecErrors)
			return nil
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sender) tick() {
	frame, err := s.src.Capture()
	if err != nil {
		s.captureErrors.Add(1)
		s.logger.Warn("capture failed", "error", err)
		return
	}
	s.captured.Add(1)

	n, err := s.session.Submit(frame)
	metrics.FramesEncodedTotal.Add(float64(n))
	if err != nil {
		if errors.Is(err, core.ErrCodec) {
			metrics.CodecErrorsTotal.WithLabelValues(metrics.DirectionEncode).Inc()
		}
		s.logger.Debug("submit frame failed", "error", err)
	}
}

// SessionID returns the id tagged on this sender's log records.
func (s *Sender) SessionID() string { return s.id }

// Stats returns a snapshot of sender counters.
func (s *Sender) Stats() SenderStats {
	sent, failed := s.sock.Sent()
	return SenderStats{
		Captured:      s.captured.Load(),
		CaptureErrors: s.captureErrors.Load(),
		Sent:          sent,
		SendFailed:    failed,
		Session:       s.session.Stats(),
	}
}

// Close releases the session, source and socket. Run calls it on return.
func (s *Sender) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.session.Close(), s.src.Close(), s.sock.Close())
	})
	return s.closeErr
}
