package fragment

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vizor/internal/core"
)

func TestLayerDecodeFromUDP(t *testing.T) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 5004}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	frag := &Layer{Fragment: core.Fragment{FrameID: 9, Index: 1, Count: 3, Payload: []byte("hello")}}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ip, udp, frag))

	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeIPv4, gopacket.Default)
	udpLayer, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)

	var decoded Layer
	require.NoError(t, decoded.DecodeFromBytes(udpLayer.Payload, gopacket.NilDecodeFeedback))
	assert.Equal(t, uint32(9), decoded.Fragment.FrameID)
	assert.Equal(t, uint16(1), decoded.Fragment.Index)
	assert.Equal(t, uint16(3), decoded.Fragment.Count)
	assert.Equal(t, []byte("hello"), decoded.Fragment.Payload)
	assert.True(t, decoded.Fragment.Valid())
	assert.Len(t, decoded.LayerContents(), HeaderSize)
}

func TestLayerDecodeShort(t *testing.T) {
	var l Layer
	err := l.DecodeFromBytes([]byte{1, 2, 3}, gopacket.NilDecodeFeedback)
	assert.ErrorIs(t, err, core.ErrFragmentTooShort)
}

func TestLayerDecoderRegistered(t *testing.T) {
	data := Marshal(core.Fragment{FrameID: 3, Index: 0, Count: 1, Payload: []byte{7}})
	pkt := gopacket.NewPacket(data, LayerTypeFragment, gopacket.Default)
	l, ok := pkt.Layer(LayerTypeFragment).(*Layer)
	require.True(t, ok)
	assert.Equal(t, uint32(3), l.Fragment.FrameID)
}
