package stratux

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/uatdecode/uatd/internal/rs"
	"github.com/uatdecode/uatd/internal/uat"
)

func newTestFec(t *testing.T) *uat.FecContext {
	t.Helper()
	fec, err := uat.NewFecContext()
	if err != nil {
		t.Fatal(err)
	}
	return fec
}

func buildFrame(rssi int8, rawTimestamp uint32, payload []byte) []byte {
	frame := make([]byte, 0, 4+2+5+len(payload))
	frame = append(frame, 0x0A, 0xB0, 0xCD, 0xE0)
	l := uint16(len(payload)) // length field excludes the 5 header bytes per spec.md §6.3
	lenField := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenField, l)
	frame = append(frame, lenField...)
	frame = append(frame, byte(rssi))
	tsField := make([]byte, 4)
	binary.LittleEndian.PutUint32(tsField, rawTimestamp)
	frame = append(frame, tsField...)
	frame = append(frame, payload...)
	return frame
}

func encodedDownlinkLong(t *testing.T) []byte {
	t.Helper()
	c, err := rs.NewCodec(14, 120, 1, 0x187, 207)
	if err != nil {
		t.Fatal(err)
	}
	data := make([]byte, c.DataLen())
	data[0] = 0x08 // payload_type 1, so CorrectDownlink accepts it as long
	parity := c.Encode(data)
	return append(data, parity...)
}

func TestReaderParsesOneDownlinkFrame(t *testing.T) {
	fec := newTestFec(t)
	r := NewReader(fec)

	payload := encodedDownlinkLong(t)
	raw := buildFrame(-42, 12345, payload)

	frames := r.Feed(raw, time.Unix(1000, 0))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	f := frames[0]
	if f.Kind != uat.DownlinkLong {
		t.Errorf("Kind = %v, want DownlinkLong", f.Kind)
	}
	if f.RSSI != -42 {
		t.Errorf("RSSI = %v, want -42", f.RSSI)
	}
	if f.RawTimestamp != 12345 {
		t.Errorf("RawTimestamp = %v, want 12345", f.RawTimestamp)
	}
	if !f.HasRawTimestamp {
		t.Error("HasRawTimestamp should be true")
	}
}

func TestReaderHandlesSplitAcrossFeedCalls(t *testing.T) {
	fec := newTestFec(t)
	r := NewReader(fec)

	payload := encodedDownlinkLong(t)
	raw := buildFrame(-10, 500, payload)

	mid := len(raw) / 2
	frames := r.Feed(raw[:mid], time.Unix(2000, 0))
	if len(frames) != 0 {
		t.Fatalf("expected 0 frames from partial input, got %d", len(frames))
	}
	frames = r.Feed(raw[mid:], time.Unix(2000, 0))
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame after completing the message, got %d", len(frames))
	}
}

func TestReaderResyncsAfterGarbage(t *testing.T) {
	fec := newTestFec(t)
	r := NewReader(fec)

	payload := encodedDownlinkLong(t)
	garbage := []byte{0xFF, 0x0A, 0xB0, 0x00, 0x0A}
	raw := append(garbage, buildFrame(-5, 1, payload)...)

	frames := r.Feed(raw, time.Unix(0, 0))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1 after resync", len(frames))
	}
}

func TestReaderWallClockReassignment(t *testing.T) {
	fec := newTestFec(t)
	r := NewReader(fec)
	payload := encodedDownlinkLong(t)

	first := buildFrame(0, 4000, payload)
	frames := r.Feed(first, time.Unix(100, 0))
	if len(frames) != 1 {
		t.Fatal("expected first frame")
	}
	t1 := frames[0].ReceivedAt

	second := buildFrame(0, 4000+4000, payload) // 4000 ticks later == 1ms later at 4MHz
	frames = r.Feed(second, time.Unix(100, 0))
	if len(frames) != 1 {
		t.Fatal("expected second frame")
	}
	t2 := frames[0].ReceivedAt

	delta := t2.Sub(t1)
	if delta != time.Millisecond {
		t.Errorf("delta = %v, want 1ms", delta)
	}
}
