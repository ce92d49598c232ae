// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with fmt.Errorf("...: %w") and compare
// with errors.Is.
var (
	// Fragmentation errors
	ErrInvalidDataLimit = errors.New("vizor: data limit must be positive")
	ErrFrameTooLarge    = errors.New("vizor: frame needs more fragments than the wire format allows")

	// Wire decoding errors
	ErrFragmentTooShort = errors.New("vizor: fragment shorter than header")
	ErrFragmentLength   = errors.New("vizor: fragment payload length mismatch")
	ErrFragmentIndex    = errors.New("vizor: fragment index out of range")

	// Reassembly anomalies
	ErrChecksumMismatch  = errors.New("vizor: fragment checksum mismatch")
	ErrInconsistentCount = errors.New("vizor: inconsistent fragment count for frame")
	ErrStaleFragment     = errors.New("vizor: fragment for a finished frame")

	// Transport errors
	ErrWouldBlock    = errors.New("vizor: no datagram available")
	ErrUnknownSource = errors.New("vizor: datagram from unexpected source")

	// Codec and session errors
	ErrCodec          = errors.New("vizor: codec engine failure")
	ErrUnknownCodec   = errors.New("vizor: codec not registered")
	ErrCodecClosed    = errors.New("vizor: codec engine closed")
	ErrInvalidFrame   = errors.New("vizor: raw frame does not match its dimensions")
	ErrInvalidPayload = errors.New("vizor: compressed payload malformed")
	ErrSessionClosed  = errors.New("vizor: session closed")

	// Configuration errors
	ErrConfigInvalid = errors.New("vizor: invalid configuration")
)
