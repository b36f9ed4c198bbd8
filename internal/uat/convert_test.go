package uat

import (
	"math"
	"testing"
)

func expectedPhase(theta float64) uint16 {
	v := math.Round(32768.0 * theta / math.Pi)
	m := int64(v) % 65536
	if m < 0 {
		m += 65536
	}
	return uint16(m)
}

func wrapDelta(a, b uint16) int {
	d := int(a) - int(b)
	if d > 32768 {
		d -= 65536
	}
	if d < -32768 {
		d += 65536
	}
	if d < 0 {
		d = -d
	}
	return d
}

func TestCU8PhaseRoundTrip(t *testing.T) {
	conv, err := NewConverter(FormatCU8)
	if err != nil {
		t.Fatal(err)
	}
	for _, theta := range []float64{0, math.Pi / 6, math.Pi / 2, math.Pi, 3 * math.Pi / 2, 2*math.Pi - 0.01} {
		i := byte(math.Round(127.5 + 127.5*math.Cos(theta)))
		q := byte(math.Round(127.5 + 127.5*math.Sin(theta)))
		got := conv.Phase([]byte{i, q}, nil)
		if len(got) != 1 {
			t.Fatalf("theta=%v: expected 1 sample, got %d", theta, len(got))
		}
		want := expectedPhase(theta)
		if d := wrapDelta(got[0], want); d > 1 {
			t.Errorf("theta=%v: phase=%d want~%d (delta %d)", theta, got[0], want, d)
		}
	}
}

func TestCS16HPhaseRoundTripWithinTableTolerance(t *testing.T) {
	conv, err := NewConverter(FormatCS16H)
	if err != nil {
		t.Fatal(err)
	}
	for _, theta := range []float64{0, math.Pi / 4, math.Pi / 3, math.Pi / 2, 2 * math.Pi / 3, math.Pi, -math.Pi / 4} {
		x := int16(math.Round(30000 * math.Cos(theta)))
		y := int16(math.Round(30000 * math.Sin(theta)))
		raw := []byte{byte(x), byte(x >> 8), byte(y), byte(y >> 8)}
		got := conv.Phase(raw, nil)
		want := expectedPhase(theta)
		if d := wrapDelta(got[0], want); d > 256 {
			t.Errorf("theta=%v: phase=%d want~%d (delta %d exceeds table tolerance)", theta, got[0], want, d)
		}
	}
}

func TestCF32HPhaseRoundTrip(t *testing.T) {
	conv, err := NewConverter(FormatCF32H)
	if err != nil {
		t.Fatal(err)
	}
	for _, theta := range []float64{0, math.Pi / 5, math.Pi, 3 * math.Pi / 2} {
		x := math.Float32bits(float32(math.Cos(theta)))
		y := math.Float32bits(float32(math.Sin(theta)))
		raw := make([]byte, 8)
		raw[0], raw[1], raw[2], raw[3] = byte(x), byte(x>>8), byte(x>>16), byte(x>>24)
		raw[4], raw[5], raw[6], raw[7] = byte(y), byte(y>>8), byte(y>>16), byte(y>>24)
		got := conv.Phase(raw, nil)
		want := expectedPhase(theta)
		if d := wrapDelta(got[0], want); d > 1 {
			t.Errorf("theta=%v: phase=%d want~%d", theta, got[0], want)
		}
	}
}

func TestMagSqUnitsNotComparableAcrossFormatsButInternallyConsistent(t *testing.T) {
	cu8, _ := NewConverter(FormatCU8)
	cs16h, _ := NewConverter(FormatCS16H)

	fullScaleCU8 := cu8.MagSq([]byte{255, 127}, nil)[0] // max I excursion, centered Q
	if fullScaleCU8 <= 0 {
		t.Fatal("expected positive magnitude")
	}

	zero := cs16h.MagSq([]byte{0, 0, 0, 0}, nil)[0]
	if zero != 0 {
		t.Errorf("CS16H zero sample magsq = %v, want 0", zero)
	}
}

func TestBytesPerSample(t *testing.T) {
	tests := []struct {
		f    SampleFormat
		want int
	}{
		{FormatCU8, 2}, {FormatCS8, 2}, {FormatCS16H, 4}, {FormatCF32H, 8},
	}
	for _, tc := range tests {
		if got := tc.f.BytesPerSample(); got != tc.want {
			t.Errorf("%v.BytesPerSample() = %d, want %d", tc.f, got, tc.want)
		}
	}
}
