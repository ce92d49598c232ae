package stream

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/vizor/internal/config"
	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
)

func testConfig(t *testing.T) *config.GlobalConfig {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Stream.DataLimit = 256
	cfg.Stream.PollInterval = "5ms"
	cfg.Stream.SweepInterval = "10ms"
	cfg.Source.Width = 64
	cfg.Source.Height = 32
	cfg.Source.FPS = 200
	cfg.Transport.RemoteAddress = "127.0.0.1"
	return cfg
}

func port(addr net.Addr) int { return addr.(*net.UDPAddr).Port }

type collector struct {
	mu       sync.Mutex
	pictures []core.Planes
}

func (c *collector) handle(p core.Planes) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pictures = append(c.pictures, p)
}

func (c *collector) snapshot() []core.Planes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Planes(nil), c.pictures...)
}

func TestLoopback(t *testing.T) {
	cfg := testConfig(t)

	var got collector
	recv, err := NewReceiver(cfg, got.handle)
	require.NoError(t, err)

	cfg.Transport.RemotePort = port(recv.LocalAddr())
	send, err := NewSender(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, send.SessionID(), recv.SessionID())

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return recv.Run(gctx) })
	g.Go(func() error { return send.Run(gctx) })

	require.Eventually(t, func() bool {
		return len(got.snapshot()) >= 5
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, g.Wait())

	pictures := got.snapshot()
	for i, p := range pictures {
		assert.Equal(t, 64, p.Width)
		assert.Equal(t, 32, p.Height)
		assert.Len(t, p.Y, 64*32)
		assert.Len(t, p.UV, 64*16)
		if i > 0 {
			assert.True(t, core.SeqNewer(p.FrameID, pictures[i-1].FrameID))
		}
	}

	sstats := send.Stats()
	assert.Positive(t, sstats.Captured)
	assert.Positive(t, sstats.Sent)
	// 64x32 NV12 plus its header spans several 256 byte fragments.
	assert.Greater(t, sstats.Session.Fragments, sstats.Session.Frames)

	rstats := recv.Stats()
	assert.GreaterOrEqual(t, rstats.Session.Pictures, uint64(len(pictures)))
	assert.Zero(t, rstats.Malformed)

	// Nothing is delivered once Run has returned.
	n := len(got.snapshot())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, got.snapshot(), n)
}

func startReceiver(t *testing.T, cfg *config.GlobalConfig) (*Receiver, *net.UDPConn, context.CancelFunc, chan error) {
	t.Helper()
	recv, err := NewReceiver(cfg, nil)
	require.NoError(t, err)

	peer, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port(recv.LocalAddr())})
	require.NoError(t, err)
	t.Cleanup(func() { peer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- recv.Run(ctx) }()
	return recv, peer, cancel, done
}

func TestReceiverCountsAnomalies(t *testing.T) {
	cfg := testConfig(t)
	recv, peer, cancel, done := startReceiver(t, cfg)

	_, err := peer.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	bad := core.Fragment{FrameID: 9, Index: 0, Count: 2, Payload: []byte("abc")}
	bad.Checksum = core.Checksum(bad.Payload) + 1
	_, err = peer.Write(fragment.Marshal(bad))
	require.NoError(t, err)

	partial := core.Fragment{FrameID: 10, Index: 0, Count: 2, Payload: []byte("abc")}
	partial.Checksum = core.Checksum(partial.Payload)
	_, err = peer.Write(fragment.Marshal(partial))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s := recv.Stats()
		return s.Datagrams == 3 && s.Session.Reassembly.ChecksumFailures == 1 && s.Session.Reassembly.Accepted == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, recv.Stats().Malformed)

	// The partial frame is swept once the deadline passes.
	require.Eventually(t, func() bool {
		return recv.Stats().Session.Reassembly.Expired == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Zero(t, recv.Stats().Session.Reassembly.Groups)

	cancel()
	assert.NoError(t, <-done)
}

func TestReceiverRejectsForeignSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.RemoteAddress = "127.0.0.1"
	cfg.Transport.RemotePort = 1 // nothing sends from port 1
	recv, peer, cancel, done := startReceiver(t, cfg)

	f := core.Fragment{FrameID: 1, Index: 0, Count: 1, Payload: []byte("x")}
	f.Checksum = core.Checksum(f.Payload)
	_, err := peer.Write(fragment.Marshal(f))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return recv.Stats().Rejected == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, recv.Stats().Datagrams)

	cancel()
	assert.NoError(t, <-done)
}

func TestNewSenderErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.RemotePort = 0
	_, err := NewSender(cfg)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	cfg = testConfig(t)
	cfg.Transport.RemotePort = 9
	cfg.Codec.Name = "h264"
	_, err = NewSender(cfg)
	assert.ErrorIs(t, err, core.ErrUnknownCodec)

	cfg = testConfig(t)
	cfg.Transport.RemotePort = 9
	cfg.Source.Name = "camera"
	_, err = NewSender(cfg)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestSenderCloseWithoutRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Transport.RemotePort = 9
	send, err := NewSender(cfg)
	require.NoError(t, err)
	require.NoError(t, send.Close())
	assert.NoError(t, send.Close())
}
