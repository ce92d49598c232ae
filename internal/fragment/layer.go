package fragment

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/vizor/internal/core"
)

// LayerTypeFragment lets gopacket decode vizor fragments carried in UDP.
var LayerTypeFragment = gopacket.RegisterLayerType(2150, gopacket.LayerTypeMetadata{
	Name:    "VizorFragment",
	Decoder: gopacket.DecodeFunc(decodeLayer),
})

// Layer is the gopacket view of one fragment datagram.
type Layer struct {
	layers.BaseLayer
	Fragment core.Fragment
}

// LayerType implements gopacket.Layer.
func (l *Layer) LayerType() gopacket.LayerType { return LayerTypeFragment }

// CanDecode implements gopacket.DecodingLayer.
func (l *Layer) CanDecode() gopacket.LayerClass { return LayerTypeFragment }

// NextLayerType implements gopacket.DecodingLayer.
func (l *Layer) NextLayerType() gopacket.LayerType { return gopacket.LayerTypePayload }

// DecodeFromBytes implements gopacket.DecodingLayer.
func (l *Layer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	f, err := Unmarshal(data)
	if err != nil {
		df.SetTruncated()
		return err
	}
	l.Fragment = f
	l.Contents = data[:HeaderSize]
	l.Payload = data[HeaderSize:]
	return nil
}

// SerializeTo implements gopacket.SerializableLayer.
func (l *Layer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	f := l.Fragment
	if opts.ComputeChecksums {
		f.Checksum = core.Checksum(f.Payload)
	}
	bytes, err := b.PrependBytes(HeaderSize + len(f.Payload))
	if err != nil {
		return err
	}
	AppendMarshal(bytes[:0], f)
	return nil
}

func decodeLayer(data []byte, p gopacket.PacketBuilder) error {
	l := &Layer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return p.NextDecoder(l.NextLayerType())
}
