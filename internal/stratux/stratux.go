// Package stratux implements the Stratux v3 UAT dongle's framed serial
// protocol (spec.md §6.3): a TI CC1310-based demodulator that ships
// FEC-coded downlink/uplink frames over a 2 Mbaud serial link, prefixed by
// a fixed preamble, a little-endian length, an RSSI byte, and a 32-bit
// device tick count. Grounded on original_source/stratux_serial.cc's
// ParserState state machine and ParseMessage.
package stratux

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/uatdecode/uatd/internal/uat"
)

var preamble = [4]byte{0x0A, 0xB0, 0xCD, 0xE0}

type parserState int

const (
	statePreamble parserState = iota
	stateLength1
	stateLength2
	stateMessage
)

// Reader pulls Stratux-framed messages off a byte stream and FEC-corrects
// them into RawFrame values via a shared FecContext. It holds parser state
// across Read calls so a caller can feed it arbitrarily small chunks (or
// use ScanReader to pull from an io.Reader directly).
type Reader struct {
	fec *uat.FecContext

	state         parserState
	preambleIndex int
	length        int
	message       []byte

	previousSysTimestamp  time.Time
	previousRawTimestamp  uint32
	messageStartTimestamp time.Time
}

func NewReader(fec *uat.FecContext) *Reader {
	return &Reader{fec: fec}
}

// Feed parses one chunk of raw bytes, at wall-clock time streamTime for the
// first byte of buf, and returns every complete, FEC-corrected frame found.
// Malformed or FEC-uncorrectable messages are silently dropped per spec.md
// §7 (decode rejection).
func (r *Reader) Feed(buf []byte, streamTime time.Time) []uat.RawFrame {
	var frames []uat.RawFrame
	for i := 0; i < len(buf); {
		b := buf[i]
		switch r.state {
		case statePreamble:
			if b == preamble[r.preambleIndex] {
				if r.preambleIndex == 0 {
					r.messageStartTimestamp = streamTime.Add(time.Duration(i) * time.Second / 200000)
				}
				i++
				r.preambleIndex++
				if r.preambleIndex >= len(preamble) {
					r.state = stateLength1
				}
			} else {
				if r.preambleIndex > 0 {
					r.preambleIndex = 0
				} else {
					i++
				}
			}

		case stateLength1:
			r.length = int(b) + 5
			i++
			r.state = stateLength2

		case stateLength2:
			r.length += int(b) << 8
			i++
			r.message = r.message[:0]
			r.state = stateMessage

		case stateMessage:
			need := r.length - len(r.message)
			avail := len(buf) - i
			n := need
			if avail < n {
				n = avail
			}
			r.message = append(r.message, buf[i:i+n]...)
			i += n
			if len(r.message) == r.length {
				if frame, ok := r.parseMessage(); ok {
					frames = append(frames, frame)
				}
				r.state = statePreamble
				r.preambleIndex = 0
			}
		}
	}
	return frames
}

// parseMessage decodes r.message (rssi byte + 4-byte LE device tick +
// payload) into a RawFrame, applying the appropriate FEC codec by payload
// length and the wall-clock reassignment rule from spec.md §6.3.
func (r *Reader) parseMessage() (uat.RawFrame, bool) {
	if len(r.message) < 5 {
		return uat.RawFrame{}, false
	}
	rawRSSI := int8(r.message[0])
	rawTimestamp := binary.LittleEndian.Uint32(r.message[1:5])
	payload := r.message[5:]

	var sysTime time.Time
	if !r.previousSysTimestamp.IsZero() && rawTimestamp > r.previousRawTimestamp {
		deltaTicks := rawTimestamp - r.previousRawTimestamp
		sysTime = r.previousSysTimestamp.Add(time.Duration(deltaTicks) * time.Millisecond / 4000)
	} else {
		sysTime = r.messageStartTimestamp
	}
	r.previousSysTimestamp = sysTime
	r.previousRawTimestamp = rawTimestamp

	var kind uat.FrameKind
	var body []byte
	var errs int
	var ok bool

	switch len(payload) {
	case uat.UplinkBytes:
		body, errs, ok = r.fec.CorrectUplink(payload, nil)
		kind = uat.Uplink
	case uat.DownlinkLongBytes:
		kind, body, errs, ok = r.fec.CorrectDownlink(payload, nil)
	default:
		return uat.RawFrame{}, false
	}
	if !ok {
		return uat.RawFrame{}, false
	}

	return uat.RawFrame{
		Kind:            kind,
		Payload:         body,
		CorrectedErrors: errs,
		RSSI:            float64(rawRSSI),
		ReceivedAt:      sysTime,
		RawTimestamp:    rawTimestamp,
		HasRawTimestamp: true,
	}, true
}

// ScanReader drives a Reader from an io.Reader, delivering frames to fn
// until EOF or a read error. It is the entry point cmd/uatd wires a serial
// port or FIFO into.
func ScanReader(r io.Reader, fec *uat.FecContext, fn func(uat.RawFrame)) error {
	parser := NewReader(fec)
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			for _, f := range parser.Feed(buf[:n], time.Now()) {
				fn(f)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("stratux: read: %w", err)
		}
	}
}
