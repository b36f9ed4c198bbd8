// Package wire implements the line-oriented raw wire format described in
// spec.md §6.1: one line per demodulated frame, prefix-tagged by direction,
// hex payload, and a handful of semicolon-terminated key=value metadata
// pairs. It is grounded on original_source/uat_message.cc's RawMessage
// stream operator for the format and on
// _examples/other_examples/cyoung-stratux__uatparse.go's New() for the
// parsing grammar.
package wire

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/uatdecode/uatd/internal/uat"
)

// FormatFrame renders one decoded frame as a single wire-format line,
// including its trailing newline. rs and rt are omitted when zero, rssi
// when zero, and t when frame.ReceivedAt is the zero time.
func FormatFrame(frame uat.RawFrame) string {
	var b strings.Builder
	switch frame.Kind {
	case uat.Uplink:
		b.WriteByte('+')
	default:
		b.WriteByte('-')
	}
	b.WriteString(hex.EncodeToString(frame.Payload))
	b.WriteByte(';')

	if frame.CorrectedErrors != 0 {
		fmt.Fprintf(&b, "rs=%d;", frame.CorrectedErrors)
	}
	if frame.RSSI != 0 {
		fmt.Fprintf(&b, "rssi=%.1f;", frame.RSSI)
	}
	if !frame.ReceivedAt.IsZero() {
		nanos := frame.ReceivedAt.UnixNano()
		fmt.Fprintf(&b, "t=%d.%03d;", nanos/1e9, (nanos%1e9)/1e6)
	}
	if frame.HasRawTimestamp && frame.RawTimestamp != 0 {
		fmt.Fprintf(&b, "rt=%d;", frame.RawTimestamp)
	}
	b.WriteByte('\n')
	return b.String()
}

// FormatMeta renders a meta_line (a bare '!' followed by kvpairs), used for
// out-of-band announcements such as session start/stop markers.
func FormatMeta(kv map[string]string) string {
	var b strings.Builder
	b.WriteByte('!')
	for k, v := range kv {
		fmt.Fprintf(&b, "%s=%s;", k, v)
	}
	b.WriteByte('\n')
	return b.String()
}

// Line is one parsed input line: either a data line (Payload set, Uplink
// tells direction) or a meta line (Meta set, Payload nil).
type Line struct {
	Uplink bool
	Payload []byte
	Errors  int
	RSSI    float64
	Time    float64 // Unix seconds with fractional millis, 0 if absent
	RawTime uint32
	Meta    map[string]string
}

// ProtocolError reports a malformed data line. Per spec.md §7 this is a
// connection-scoped protocol error: the caller must stop reading and close
// the connection.
type ProtocolError struct {
	Line string
	Err  error
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("wire: malformed line %q: %v", e.Line, e.Err) }
func (e *ProtocolError) Unwrap() error { return e.Err }

// Scanner reads wire-format lines from r, one Line per call to Next.
type Scanner struct {
	sc *bufio.Scanner
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{sc: bufio.NewScanner(r)}
}

// Next returns the next parsed line, or io.EOF when the input is exhausted.
// A malformed data line returns a *ProtocolError; the caller must not call
// Next again afterward.
func (s *Scanner) Next() (Line, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return Line{}, err
		}
		return Line{}, io.EOF
	}
	raw := s.sc.Text()
	if raw == "" {
		return s.Next()
	}
	if raw[0] == '!' {
		return Line{Meta: parseKV(raw[1:])}, nil
	}
	if raw[0] != '-' && raw[0] != '+' {
		return Line{}, &ProtocolError{Line: raw, Err: fmt.Errorf("unknown line prefix %q", raw[0])}
	}
	rest := raw[1:]
	semi := strings.IndexByte(rest, ';')
	if semi < 0 {
		return Line{}, &ProtocolError{Line: raw, Err: fmt.Errorf("missing payload terminator")}
	}
	payload, err := hex.DecodeString(rest[:semi])
	if err != nil {
		return Line{}, &ProtocolError{Line: raw, Err: err}
	}
	line := Line{Uplink: raw[0] == '+', Payload: payload}
	kv := parseKV(rest[semi+1:])
	for k, v := range kv {
		switch k {
		case "rs":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Line{}, &ProtocolError{Line: raw, Err: err}
			}
			line.Errors = n
		case "rssi":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Line{}, &ProtocolError{Line: raw, Err: err}
			}
			line.RSSI = f
		case "t":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Line{}, &ProtocolError{Line: raw, Err: err}
			}
			line.Time = f
		case "rt":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return Line{}, &ProtocolError{Line: raw, Err: err}
			}
			line.RawTime = uint32(n)
		}
		// unknown keys are ignored per spec.md §6.1
	}
	return line, nil
}

func parseKV(s string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			continue
		}
		out[pair[:eq]] = pair[eq+1:]
	}
	return out
}
