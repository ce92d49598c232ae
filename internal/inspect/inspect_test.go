package inspect

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
	"firestige.xyz/vizor/internal/reassembly"
)

const streamPort = 5004

type capture struct {
	t   *testing.T
	w   *pcapgo.Writer
	buf bytes.Buffer
}

func newCapture(t *testing.T) *capture {
	c := &capture{t: t}
	c.w = pcapgo.NewWriter(&c.buf)
	require.NoError(t, c.w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	return c
}

func (c *capture) write(ts time.Time, dstPort uint16, payload gopacket.SerializableLayer) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 6},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: layers.UDPPort(dstPort)}
	require.NoError(c.t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(c.t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, payload))

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	require.NoError(c.t, c.w.WritePacket(ci, data))
}

func frag(id uint32, index, count uint16, payload string) *fragment.Layer {
	return &fragment.Layer{Fragment: core.Fragment{
		FrameID: id,
		Index:   index,
		Count:   count,
		Payload: []byte(payload),
	}}
}

func TestInspect(t *testing.T) {
	c := newCapture(t)
	t0 := time.Unix(1700000000, 0)
	ms := func(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

	// Frame 1 arrives reversed with a duplicate.
	c.write(ms(0), streamPort, frag(1, 2, 3, "ccc"))
	c.write(ms(1), streamPort, frag(1, 1, 3, "bbb"))
	c.write(ms(2), streamPort, frag(1, 1, 3, "bbb"))
	c.write(ms(3), streamPort, frag(1, 0, 3, "aaa"))

	// Unrelated traffic and garbage on the stream port.
	c.write(ms(4), 53, gopacket.Payload("dns"))
	c.write(ms(5), streamPort, gopacket.Payload{1, 2, 3})

	// Corrupted checksum.
	bad := core.Fragment{FrameID: 2, Index: 0, Count: 1, Payload: []byte("x")}
	bad.Checksum = core.Checksum(bad.Payload) + 1
	c.write(ms(6), streamPort, gopacket.Payload(fragment.Marshal(bad)))

	// Frame 3 loses a fragment and expires once frame 4 arrives late.
	c.write(ms(10), streamPort, frag(3, 0, 3, "a"))
	c.write(ms(11), streamPort, frag(3, 2, 3, "c"))
	c.write(ms(2000), streamPort, frag(4, 0, 1, "solo"))

	report, err := Inspect(&c.buf, Options{
		Port:       streamPort,
		Reassembly: reassembly.Config{Deadline: 500 * time.Millisecond},
	})
	require.NoError(t, err)

	assert.EqualValues(t, 10, report.Packets)
	assert.EqualValues(t, 9, report.UDP)
	assert.EqualValues(t, 8, report.Fragments)
	assert.EqualValues(t, 1, report.Malformed)
	assert.EqualValues(t, 2, report.Frames)
	assert.EqualValues(t, len("aaabbbccc")+len("solo"), report.FrameBytes)
	assert.Zero(t, report.Incomplete)
	assert.EqualValues(t, 1, report.Reassembly.Duplicates)
	assert.EqualValues(t, 1, report.Reassembly.ChecksumFailures)
	assert.EqualValues(t, 1, report.Reassembly.Expired)
	assert.Equal(t, 2*time.Second, report.Duration())
}

func TestInspectAnyPortKeepsOpenGroups(t *testing.T) {
	c := newCapture(t)
	t0 := time.Unix(1700000000, 0)
	c.write(t0, 6000, frag(7, 0, 2, "half"))
	c.write(t0.Add(time.Millisecond), 6001, frag(8, 0, 1, "whole"))

	report, err := Inspect(&c.buf, Options{})
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.UDP)
	assert.EqualValues(t, 1, report.Frames)
	assert.Equal(t, 1, report.Incomplete)
}

func TestInspectNotPcap(t *testing.T) {
	_, err := Inspect(bytes.NewReader([]byte("definitely not a capture")), Options{})
	assert.Error(t, err)
}

func TestInspectUnsupportedLinkType(t *testing.T) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeIEEE802_11))
	_, err := Inspect(&buf, Options{})
	assert.Error(t, err)
}
