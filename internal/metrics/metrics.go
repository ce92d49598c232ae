// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Drop reasons used with FragmentsDroppedTotal.
const (
	ReasonMalformed    = "malformed"
	ReasonChecksum     = "checksum"
	ReasonInconsistent = "inconsistent"
	ReasonStale        = "stale"
	ReasonDuplicate    = "duplicate"
	ReasonUnknownPeer  = "unknown_source"
)

// Codec error directions used with CodecErrorsTotal.
const (
	DirectionEncode = "encode"
	DirectionDecode = "decode"
)

var (
	// FragmentsSentTotal counts datagrams handed to the send socket
	FragmentsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_fragments_sent_total",
			Help: "Total number of fragments sent",
		},
	)

	// FragmentsReceivedTotal counts datagrams read from the receive socket
	FragmentsReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_fragments_received_total",
			Help: "Total number of fragments received",
		},
	)

	// FragmentsDroppedTotal counts fragments discarded before reassembly completes
	FragmentsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizor_fragments_dropped_total",
			Help: "Total number of fragments dropped",
		},
		[]string{"reason"},
	)

	// FramesEncodedTotal counts encoded frames produced by the codec
	FramesEncodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_frames_encoded_total",
			Help: "Total number of encoded frames produced",
		},
	)

	// FramesCompletedTotal counts frames reassembled from all their fragments
	FramesCompletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_frames_completed_total",
			Help: "Total number of frames reassembled",
		},
	)

	// FramesExpiredTotal counts partial frames dropped by the reassembly deadline
	FramesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_frames_expired_total",
			Help: "Total number of partial frames expired",
		},
	)

	// FramesDecodedTotal counts pictures delivered by the decoder
	FramesDecodedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizor_frames_decoded_total",
			Help: "Total number of decoded pictures delivered",
		},
	)

	// CodecErrorsTotal counts codec failures by direction
	CodecErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizor_codec_errors_total",
			Help: "Total number of codec errors",
		},
		[]string{"direction"},
	)

	// ReassemblyActiveGroups tracks partial frames awaiting fragments
	ReassemblyActiveGroups = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vizor_reassembly_active_groups",
			Help: "Number of partial frames in the reassembly table",
		},
	)
)
