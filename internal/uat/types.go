// Package uat implements the UAT (978 MHz Universal Access Transceiver)
// signal-to-message pipeline: I/Q sample conversion, sync search and
// demodulation, Reed-Solomon error correction (via internal/rs), and the
// DO-282B bit-packed ADS-B payload decoder.
package uat

import "time"

// PhaseSample is an unsigned 16-bit angle, scaled by 2^15/pi and wrapped
// modulo 2^16. WrapDiff is the only safe way to compare two of these.
type PhaseSample = uint16

// FrameKind classifies a demodulated, FEC-corrected UAT frame.
type FrameKind int

const (
	DownlinkShort FrameKind = iota
	DownlinkLong
	Uplink
)

func (k FrameKind) String() string {
	switch k {
	case DownlinkShort:
		return "downlink_short"
	case DownlinkLong:
		return "downlink_long"
	case Uplink:
		return "uplink"
	default:
		return "unknown"
	}
}

// RawFrame is a demodulated, FEC-corrected UAT frame: the payload bytes
// with parity stripped, plus the metadata a caller needs to compute RSSI
// and timestamp it.
type RawFrame struct {
	Kind           FrameKind
	Payload        []byte // 18, 34, or 432 bytes per Kind
	CorrectedErrors int
	RSSI            float64 // dB; -1000 sentinel when total power was zero
	ReceivedAt      time.Time
	RawTimestamp    uint32 // device tick count, 0 if not available
	HasRawTimestamp bool
}

// Protocol constants (original_source/uat_protocol.h).
const (
	SyncBits          = 36
	DownlinkSyncWord  = 0x0EACDDA4E2
	UplinkSyncWord    = 0x153225B1D
	DownlinkShortBits = 240   // 18+12 bytes * 8
	DownlinkLongBits  = 384   // 34+14 bytes * 8
	UplinkBits        = 4416  // 552 bytes * 8
	DownlinkLongBytes = 48    // 34 data + 14 parity, transmitted length
	UplinkBytes       = 552   // 72*6 + 20*6

	DownlinkShortBytes = 18
	DownlinkLongDataBytes = 34
	UplinkDataBytes       = 432

	rsGenPoly = 0x187
	rsFCR     = 120
	rsPrim    = 1

	downlinkShortRoots = 12
	downlinkShortPad   = 225
	downlinkLongRoots  = 14
	downlinkLongPad    = 207
	uplinkBlockRoots   = 20
	uplinkBlockPad     = 163
	uplinkSubBlocks    = 6
	uplinkSubBlockLen  = 92 // 72 data + 20 parity
)

// TrailingReserve is the number of phase samples the caller must retain
// across HandleSamples calls so that no frame straddling a batch boundary
// is lost or duplicated.
const TrailingReserve = (SyncBits + UplinkBits) * 2
