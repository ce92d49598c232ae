// Package transport provides the two UDP endpoints of a stream: a send-only
// socket connected to the peer and a receive-only socket that accepts
// datagrams from that peer alone.
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/vizor/internal/core"
)

// DefaultPollInterval bounds how long Receive waits for a datagram.
const DefaultPollInterval = 20 * time.Millisecond

// Sender is the send side of a stream.
type Sender interface {
	Send(b []byte) error
}

// Receiver is the receive side of a stream. Receive returns core.ErrWouldBlock
// when no datagram arrived within the poll interval.
type Receiver interface {
	Receive(buf []byte) (int, error)
}

// SocketConfig fixes the addressing of an endpoint for its lifetime.
type SocketConfig struct {
	LocalPort     int
	RemoteAddress string
	RemotePort    int
	DSCP          int           // 0..63, send side only
	ReadBuffer    int           // SO_RCVBUF bytes, 0 = OS default
	PollInterval  time.Duration // receive side only
}

func (c SocketConfig) remote() (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.RemoteAddress, strconv.Itoa(c.RemotePort)))
	if err != nil {
		return nil, fmt.Errorf("resolve remote %s:%d: %w", c.RemoteAddress, c.RemotePort, err)
	}
	return addr, nil
}

// SendSocket sends datagrams to one fixed peer. Delivery is not
// acknowledged or retried.
type SendSocket struct {
	conn   *net.UDPConn
	remote *net.UDPAddr
	sent   atomic.Uint64
	failed atomic.Uint64
}

// NewSendSocket binds LocalPort and connects to the remote endpoint.
func NewSendSocket(cfg SocketConfig) (*SendSocket, error) {
	if cfg.RemotePort <= 0 || cfg.RemotePort > 65535 {
		return nil, fmt.Errorf("remote port %d: %w", cfg.RemotePort, core.ErrConfigInvalid)
	}
	remote, err := cfg.remote()
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUDP("udp", &net.UDPAddr{Port: cfg.LocalPort}, remote)
	if err != nil {
		return nil, fmt.Errorf("dial %s from port %d: %w", remote, cfg.LocalPort, err)
	}

	if cfg.DSCP > 0 {
		if err := setDSCP(conn, remote, cfg.DSCP); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return &SendSocket{conn: conn, remote: remote}, nil
}

// setDSCP marks outgoing datagrams with the given code point.
func setDSCP(conn *net.UDPConn, remote *net.UDPAddr, dscp int) error {
	if dscp > 63 {
		return fmt.Errorf("dscp %d: %w", dscp, core.ErrConfigInvalid)
	}
	tos := dscp << 2
	if remote.IP.To4() != nil {
		if err := ipv4.NewConn(conn).SetTOS(tos); err != nil {
			return fmt.Errorf("set tos %#x: %w", tos, err)
		}
		return nil
	}
	if err := ipv6.NewConn(conn).SetTrafficClass(tos); err != nil {
		return fmt.Errorf("set traffic class %#x: %w", tos, err)
	}
	return nil
}

// Send writes one datagram.
func (s *SendSocket) Send(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		s.failed.Add(1)
		return fmt.Errorf("send %d bytes to %s: %w", len(b), s.remote, err)
	}
	s.sent.Add(1)
	return nil
}

// LocalAddr returns the bound local address.
func (s *SendSocket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Sent returns the number of datagrams written and failed writes.
func (s *SendSocket) Sent() (sent, failed uint64) {
	return s.sent.Load(), s.failed.Load()
}

// Close releases the socket.
func (s *SendSocket) Close() error { return s.conn.Close() }

// ReceiveSocket reads datagrams from one fixed peer.
type ReceiveSocket struct {
	conn     *net.UDPConn
	source   netip.AddrPort // zero port matches any port
	anySrc   bool
	poll     time.Duration
	rejected atomic.Uint64
}

// NewReceiveSocket binds LocalPort. An empty RemoteAddress accepts any
// sender; a zero RemotePort accepts any port of RemoteAddress.
func NewReceiveSocket(cfg SocketConfig) (*ReceiveSocket, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	r := &ReceiveSocket{poll: cfg.PollInterval, anySrc: cfg.RemoteAddress == ""}
	if !r.anySrc {
		remote, err := cfg.remote()
		if err != nil {
			return nil, err
		}
		r.source = remote.AddrPort()
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.LocalPort})
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.LocalPort, err)
	}
	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set read buffer %d: %w", cfg.ReadBuffer, err)
		}
	}
	r.conn = conn
	return r, nil
}

// Receive reads one datagram into buf, waiting at most the poll interval.
// Datagrams from other sources are dropped and reported as
// core.ErrUnknownSource so the caller can count them.
func (r *ReceiveSocket) Receive(buf []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.poll)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	n, from, err := r.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, core.ErrWouldBlock
		}
		return 0, fmt.Errorf("receive: %w", err)
	}
	if !r.accepts(from) {
		r.rejected.Add(1)
		return 0, fmt.Errorf("datagram from %s: %w", from, core.ErrUnknownSource)
	}
	return n, nil
}

func (r *ReceiveSocket) accepts(from netip.AddrPort) bool {
	if r.anySrc {
		return true
	}
	if from.Addr().Unmap() != r.source.Addr().Unmap() {
		return false
	}
	return r.source.Port() == 0 || from.Port() == r.source.Port()
}

// LocalAddr returns the bound local address.
func (r *ReceiveSocket) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Rejected returns the number of datagrams dropped for their source.
func (r *ReceiveSocket) Rejected() uint64 { return r.rejected.Load() }

// Close releases the socket.
func (r *ReceiveSocket) Close() error { return r.conn.Close() }
