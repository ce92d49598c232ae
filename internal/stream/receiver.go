package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/vizor/internal/codec"
	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
	"firestige.xyz/vizor/internal/log"
	"firestige.xyz/vizor/internal/metrics"
	"firestige.xyz/vizor/internal/reassembly"
	"firestige.xyz/vizor/internal/session"
	"firestige.xyz/vizor/internal/transport"
)

// ReceiverStats is a snapshot of receiver counters.
type ReceiverStats struct {
	Datagrams uint64 // datagrams read from the peer
	Malformed uint64
	Rejected  uint64 // datagrams from other sources
	Session   session.DecodeStats
}

// Receiver reads fragments from the peer, reassembles and decodes them and
// hands each picture to a handler on the Run goroutine.
type Receiver struct {
	sock       *transport.ReceiveSocket
	session    *session.DecodeSession
	sweepEvery time.Duration
	logger     *slog.Logger
	id         string
	buf        []byte

	datagrams atomic.Uint64
	malformed atomic.Uint64

	// last snapshot exported to prometheus; touched only by Run
	exported session.DecodeStats

	closeOnce sync.Once
	closeErr  error
}

// NewReceiver builds the decoder and receive socket described by cfg.
// handle may be nil. On error nothing stays open.
func NewReceiver(cfg *config.GlobalConfig, handle session.HandleFunc) (r *Receiver, err error) {
	logger, id := log.Session("receiver")
	if handle == nil {
		handle = func(core.Planes) {}
	}

	engine, err := codec.NewDecoder(cfg.Codec.Name, codec.Options(cfg.Codec.Options))
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	defer func() {
		if err != nil {
			engine.Close()
		}
	}()

	sock, err := transport.NewReceiveSocket(transport.SocketConfig{
		LocalPort:     cfg.Transport.LocalPort,
		RemoteAddress: cfg.Transport.RemoteAddress,
		RemotePort:    cfg.Transport.RemotePort,
		ReadBuffer:    cfg.Transport.ReadBuffer,
		PollInterval:  cfg.Stream.Poll(),
	})
	if err != nil {
		return nil, fmt.Errorf("create receive socket: %w", err)
	}
	defer func() {
		if err != nil {
			sock.Close()
		}
	}()

	sess, err := session.NewDecodeSession(engine, session.DecodeConfig{
		Reassembly: reassembly.Config{
			Deadline:  cfg.Stream.Deadline(),
			MaxGroups: cfg.Stream.MaxGroups,
		},
		DropStale: cfg.Stream.DropStale,
	}, handle)
	if err != nil {
		return nil, fmt.Errorf("create decode session: %w", err)
	}

	return &Receiver{
		sock:       sock,
		session:    sess,
		sweepEvery: cfg.Stream.Sweep(),
		logger:     logger,
		id:         id,
		buf:        make([]byte, fragment.MaxDatagram+1),
	}, nil
}

// Run receives until ctx is cancelled, then closes the receiver. No handler
// call happens after Run returns. Only a socket failure ends Run early.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.Close()

	ticker := time.NewTicker(r.sweepEvery)
	defer ticker.Stop()

	r.logger.Info("receiver started",
		"local", r.sock.LocalAddr().String(),
		"sweep_interval", r.sweepEvery)

	for {
		select {
		case <-ctx.Done():
			stats := r.Stats()
			r.logger.Info("receiver stopped",
				"datagrams", stats.Datagrams,
				"completed", stats.Session.Reassembly.Completed,
				"expired", stats.Session.Reassembly.Expired,
				"pictures", stats.Session.Pictures)
			return nil
		case now := <-ticker.C:
			if n := r.session.Sweep(now); n > 0 {
				r.logger.Debug("expired partial frames", "count", n)
			}
			r.export()
			continue
		default:
		}

		n, err := r.sock.Receive(r.buf)
		switch {
		case err == nil:
			r.handle(r.buf[:n], time.Now())
		case errors.Is(err, core.ErrWouldBlock):
		case errors.Is(err, core.ErrUnknownSource):
			metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonUnknownPeer).Inc()
			r.logger.Debug("datagram rejected", "error", err)
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receiver: %w", err)
		}
	}
}

func (r *Receiver) handle(b []byte, now time.Time) {
	r.datagrams.Add(1)
	metrics.FragmentsReceivedTotal.Inc()

	f, err := fragment.Unmarshal(b)
	if err != nil {
		r.malformed.Add(1)
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
		r.logger.Debug("malformed datagram", "size", len(b), "error", err)
		return
	}

	err = r.session.Submit(f, now)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrChecksumMismatch):
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonChecksum).Inc()
	case errors.Is(err, core.ErrInconsistentCount):
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonInconsistent).Inc()
	case errors.Is(err, core.ErrStaleFragment):
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonStale).Inc()
	case errors.Is(err, core.ErrFragmentIndex):
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonMalformed).Inc()
	case errors.Is(err, core.ErrCodec):
		metrics.CodecErrorsTotal.WithLabelValues(metrics.DirectionDecode).Inc()
	}
	if err != nil {
		r.logger.Debug("fragment not delivered",
			"frame_id", f.FrameID,
			"index", f.Index,
			"count", f.Count,
			"error", err)
	}
	r.export()
}

// export pushes session counter deltas to prometheus.
func (r *Receiver) export() {
	cur := r.session.Stats()
	prev := r.exported

	metrics.FramesCompletedTotal.Add(float64(cur.Reassembly.Completed - prev.Reassembly.Completed))
	metrics.FramesExpiredTotal.Add(float64(cur.Reassembly.Expired - prev.Reassembly.Expired))
	metrics.FramesDecodedTotal.Add(float64(cur.Pictures - prev.Pictures))
	if d := cur.Reassembly.Duplicates - prev.Reassembly.Duplicates; d > 0 {
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonDuplicate).Add(float64(d))
	}
	if d := cur.StaleDropped - prev.StaleDropped; d > 0 {
		metrics.FragmentsDroppedTotal.WithLabelValues(metrics.ReasonStale).Add(float64(d))
	}
	metrics.ReassemblyActiveGroups.Set(float64(cur.Reassembly.Groups))

	r.exported = cur
}

// LocalAddr returns the bound receive address.
func (r *Receiver) LocalAddr() net.Addr { return r.sock.LocalAddr() }

// SessionID returns the id tagged on this receiver's log records.
func (r *Receiver) SessionID() string { return r.id }

// Stats returns a snapshot of receiver counters.
func (r *Receiver) Stats() ReceiverStats {
	return ReceiverStats{
		Datagrams: r.datagrams.Load(),
		Malformed: r.malformed.Load(),
		Rejected:  r.sock.Rejected(),
		Session:   r.session.Stats(),
	}
}

// Close releases the session and socket. Run calls it on return.
func (r *Receiver) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = errors.Join(r.session.Close(), r.sock.Close())
	})
	return r.closeErr
}
