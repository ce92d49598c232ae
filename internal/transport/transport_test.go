package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vizor/internal/core"
)

func newLoopbackPair(t *testing.T, remotePort int) (*SendSocket, *ReceiveSocket) {
	t.Helper()
	recv, err := NewReceiveSocket(SocketConfig{
		RemoteAddress: "127.0.0.1",
		RemotePort:    remotePort,
		PollInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { recv.Close() })

	send, err := NewSendSocket(SocketConfig{
		RemoteAddress: "127.0.0.1",
		RemotePort:    recv.LocalAddr().(*net.UDPAddr).Port,
	})
	require.NoError(t, err)
	t.Cleanup(func() { send.Close() })
	return send, recv
}

// receiveWithin polls until a datagram or a non-would-block error arrives.
func receiveWithin(t *testing.T, r *ReceiveSocket, buf []byte, d time.Duration) (int, error) {
	t.Helper()
	deadline := time.Now().Add(d)
	for {
		n, err := r.Receive(buf)
		if err != core.ErrWouldBlock || time.Now().After(deadline) {
			return n, err
		}
	}
}

func TestLoopbackSendReceive(t *testing.T) {
	send, recv := newLoopbackPair(t, 0)

	require.NoError(t, send.Send([]byte("datagram")))
	buf := make([]byte, 1500)
	n, err := receiveWithin(t, recv, buf, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "datagram", string(buf[:n]))

	sent, failed := send.Sent()
	assert.Equal(t, uint64(1), sent)
	assert.Equal(t, uint64(0), failed)
}

func TestReceiveWouldBlock(t *testing.T) {
	_, recv := newLoopbackPair(t, 0)

	start := time.Now()
	_, err := recv.Receive(make([]byte, 64))
	assert.ErrorIs(t, err, core.ErrWouldBlock)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiveRejectsUnknownSource(t *testing.T) {
	// Port 1 is never the sender's ephemeral port.
	send, recv := newLoopbackPair(t, 1)

	require.NoError(t, send.Send([]byte("x")))
	_, err := receiveWithin(t, recv, make([]byte, 64), 2*time.Second)
	assert.ErrorIs(t, err, core.ErrUnknownSource)
	assert.Equal(t, uint64(1), recv.Rejected())
}

func TestReceiveAcceptsAnySourceWhenUnset(t *testing.T) {
	recv, err := NewReceiveSocket(SocketConfig{PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	defer recv.Close()

	send, err := NewSendSocket(SocketConfig{RemoteAddress: "127.0.0.1", RemotePort: recv.LocalAddr().(*net.UDPAddr).Port})
	require.NoError(t, err)
	defer send.Close()

	require.NoError(t, send.Send([]byte("y")))
	n, err := receiveWithin(t, recv, make([]byte, 64), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewSendSocketValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SocketConfig
	}{
		{"zero remote port", SocketConfig{RemoteAddress: "127.0.0.1"}},
		{"remote port too large", SocketConfig{RemoteAddress: "127.0.0.1", RemotePort: 70000}},
		{"dscp out of range", SocketConfig{RemoteAddress: "127.0.0.1", RemotePort: 9, DSCP: 64}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSendSocket(tt.cfg)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
			assert.Nil(t, s)
		})
	}
}

func TestNewSendSocketWithDSCP(t *testing.T) {
	s, err := NewSendSocket(SocketConfig{RemoteAddress: "127.0.0.1", RemotePort: 9, DSCP: 34})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestNewReceiveSocketBindConflict(t *testing.T) {
	first, err := NewReceiveSocket(SocketConfig{})
	require.NoError(t, err)
	defer first.Close()

	_, err = NewReceiveSocket(SocketConfig{LocalPort: first.LocalAddr().(*net.UDPAddr).Port})
	assert.Error(t, err)
}
