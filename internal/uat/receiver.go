package uat

import (
	"math"
	"time"
)

// uatSampleRate is the UAT channel rate in samples per second (~2.083 Msps).
const uatSampleRate = 2083333

// Receiver drives one receive chain: it owns the tail-preservation buffer
// across calls, but is otherwise stateless, single-threaded, and
// cooperative per spec.md §5 — HandleSamples runs to completion on one
// batch and never blocks.
type Receiver struct {
	conv   Converter
	demod  *Demodulator
	tail   []byte // raw bytes for the last TrailingReserve samples of the previous batch
}

// NewReceiver builds a Receiver for one sample format, sharing fec
// read-only with any other Receiver in the process.
func NewReceiver(conv Converter, fec *FecContext) *Receiver {
	return &Receiver{conv: conv, demod: NewDemodulator(fec)}
}

// HandleSamples converts and demodulates one batch of raw I/Q bytes.
// timestamp is the wall-clock time of the first sample in raw (not
// counting any carried-over tail). rawTimestamp/hasRawTimestamp propagate
// a device tick count when the source provides one (e.g. Stratux framing).
func (r *Receiver) HandleSamples(raw []byte, timestamp time.Time, rawTimestamp uint32, hasRawTimestamp bool) []RawFrame {
	bps := r.conv.Format().BytesPerSample()
	previousSamples := len(r.tail) / bps

	combined := make([]byte, 0, len(r.tail)+len(raw))
	combined = append(combined, r.tail...)
	combined = append(combined, raw...)

	// discard a truncated trailing partial sample
	usable := (len(combined) / bps) * bps
	combined = combined[:usable]

	phase := r.conv.Phase(combined, nil)
	magsq := r.conv.MagSq(combined, nil)

	candidates := r.demod.Demodulate(phase)

	frames := make([]RawFrame, 0, len(candidates))
	for _, c := range candidates {
		total := 0.0
		count := c.PhaseEnd - c.PhaseStart
		for i := c.PhaseStart; i < c.PhaseEnd && i < len(magsq); i++ {
			total += magsq[i]
		}
		rssi := -1000.0
		if total > 0 && count > 0 {
			rssi = 10 * math.Log10(total/float64(count))
		}

		offsetMs := 1000.0 * float64(c.PhaseStart) / uatSampleRate
		previousMs := 1000.0 * float64(previousSamples) / uatSampleRate
		msgTime := timestamp.Add(time.Duration((offsetMs - previousMs) * float64(time.Millisecond)))

		frames = append(frames, RawFrame{
			Kind:            c.Kind,
			Payload:         c.Payload,
			CorrectedErrors: c.CorrectedErrors,
			RSSI:            rssi,
			ReceivedAt:      msgTime,
			RawTimestamp:    rawTimestamp,
			HasRawTimestamp: hasRawTimestamp,
		})
	}

	// Preserve the trailing reserve for the next call. The caller must not
	// advance its own cursor past len(combined)-TrailingReserve*bps either,
	// but since we always reprocess from a fresh combined buffer here that
	// invariant is enforced by construction.
	reserveSamples := TrailingReserve
	totalSamples := len(combined) / bps
	if reserveSamples > totalSamples {
		reserveSamples = totalSamples
	}
	tailStart := (totalSamples - reserveSamples) * bps
	r.tail = append([]byte(nil), combined[tailStart:]...)

	return frames
}
