// Package inspect replays a pcap capture of a vizor stream through the
// reassembler and reports what a receiver would have seen.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/vizor/internal/core"
	"firestige.xyz/vizor/internal/fragment"
	"firestige.xyz/vizor/internal/reassembly"
)

// Options selects the stream inside the capture.
type Options struct {
	Port       uint16 // UDP port on either side; 0 matches every UDP packet
	Reassembly reassembly.Config
}

// Report summarises one capture.
type Report struct {
	Packets     uint64 // records in the file
	UDP         uint64 // UDP packets matching the port
	IPFragments uint64 // IP-level fragments, not reassembled
	Fragments   uint64 // well-formed vizor fragments
	Malformed   uint64
	Frames      uint64 // frames completed
	FrameBytes  uint64
	Incomplete  int // groups still open at end of capture
	Reassembly  reassembly.Stats
	First, Last time.Time
}

// Duration returns the time spanned by the capture.
func (r Report) Duration() time.Duration { return r.Last.Sub(r.First) }

type inspector struct {
	opts Options
	re   *reassembly.Reassembler

	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
	eth     layers.Ethernet
	loop    layers.Loopback
	ip4     layers.IPv4
	ip6     layers.IPv6
	udp     layers.UDP
	frag    fragment.Layer

	report Report
}

// Inspect reads a pcap stream from r. Fragments are replayed with their
// capture timestamps so deadline expiry matches the recorded timing.
func Inspect(r io.Reader, opts Options) (Report, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return Report{}, fmt.Errorf("open pcap: %w", err)
	}

	first, err := firstLayer(pr.LinkType())
	if err != nil {
		return Report{}, err
	}

	in := &inspector{opts: opts, re: reassembly.New(opts.Reassembly)}
	in.parser = gopacket.NewDecodingLayerParser(first, &in.eth, &in.loop, &in.ip4, &in.ip6, &in.udp)
	in.parser.IgnoreUnsupported = true
	in.decoded = make([]gopacket.LayerType, 0, 4)

	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return in.finish(), fmt.Errorf("read packet %d: %w", in.report.Packets+1, err)
		}
		in.packet(data, ci.Timestamp)
	}
	return in.finish(), nil
}

func firstLayer(lt layers.LinkType) (gopacket.LayerType, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return layers.LayerTypeEthernet, nil
	case layers.LinkTypeNull, layers.LinkTypeLoop:
		return layers.LayerTypeLoopback, nil
	case layers.LinkTypeRaw, layers.LinkTypeIPv4:
		return layers.LayerTypeIPv4, nil
	case layers.LinkTypeIPv6:
		return layers.LayerTypeIPv6, nil
	default:
		return 0, fmt.Errorf("unsupported link type %s", lt)
	}
}

func (in *inspector) packet(data []byte, ts time.Time) {
	in.report.Packets++
	if in.report.First.IsZero() {
		in.report.First = ts
	}
	in.report.Last = ts

	// Errors past the UDP layer are expected; only the decoded list matters.
	_ = in.parser.DecodeLayers(data, &in.decoded)

	var sawUDP bool
	for _, lt := range in.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if in.ip4.Flags&layers.IPv4MoreFragments != 0 || in.ip4.FragOffset != 0 {
				in.report.IPFragments++
				return
			}
		case layers.LayerTypeUDP:
			sawUDP = true
		}
	}
	if !sawUDP || !in.matches() {
		return
	}
	in.report.UDP++

	in.re.Sweep(ts)

	if err := in.frag.DecodeFromBytes(in.udp.Payload, gopacket.NilDecodeFeedback); err != nil {
		in.report.Malformed++
		return
	}
	in.report.Fragments++

	frame, complete, err := in.re.Accept(in.frag.Fragment, ts)
	if err != nil {
		if errors.Is(err, core.ErrFragmentIndex) {
			in.report.Malformed++
		}
		return
	}
	if complete {
		in.report.Frames++
		in.report.FrameBytes += uint64(len(frame.Payload))
	}
}

func (in *inspector) matches() bool {
	if in.opts.Port == 0 {
		return true
	}
	p := layers.UDPPort(in.opts.Port)
	return in.udp.SrcPort == p || in.udp.DstPort == p
}

func (in *inspector) finish() Report {
	in.report.Incomplete = in.re.Len()
	in.report.Reassembly = in.re.Stats()
	return in.report
}
