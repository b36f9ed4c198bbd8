package uat

import (
	"testing"

	"github.com/uatdecode/uatd/internal/rs"
)

func popcount64(x uint64) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

func TestSyncMatchExhaustivePerturbations(t *testing.T) {
	const target = DownlinkSyncWord
	// the exact match plus every single- and double-bit perturbation:
	// C(36,1)+C(36,2)+1 = 667 words. The boundary at popcount 4/5 is
	// checked by TestSyncMatchPopcountBoundary.
	for bit := 0; bit < SyncBits; bit++ {
		w := uint64(target) ^ (uint64(1) << bit)
		if !syncMatch(w, target) {
			t.Errorf("single-bit perturbation at bit %d should match", bit)
		}
	}
	for i := 0; i < SyncBits; i++ {
		for j := i + 1; j < SyncBits; j++ {
			w := uint64(target) ^ (uint64(1) << i) ^ (uint64(1) << j)
			if !syncMatch(w, target) {
				t.Errorf("double-bit perturbation at bits %d,%d should match", i, j)
			}
		}
	}
	if !syncMatch(target, target) {
		t.Error("exact match should match")
	}
}

// bitsFromWord returns the nbits low-order bits of word, most significant
// first -- the order Demodulate's sync0/sync1 registers accumulate in.
func bitsFromWord(word uint64, nbits int) []int {
	bits := make([]int, nbits)
	for i := 0; i < nbits; i++ {
		bits[i] = int((word >> uint(nbits-1-i)) & 1)
	}
	return bits
}

// bitsFromBytes returns the bits of data, most significant bit of each byte
// first, matching demodBits' packing.
func bitsFromBytes(data []byte) []int {
	bits := make([]int, len(data)*8)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = int((b >> uint(7-j)) & 1)
		}
	}
	return bits
}

// modulatePhase turns a bit sequence into idealized, noiseless phase
// samples, two per bit: a rising pair for a 1 bit and a falling pair for a
// 0, so that WrapDiff of each pair reproduces the bit exactly.
func modulatePhase(bits []int) []PhaseSample {
	const lo, hi = PhaseSample(10000), PhaseSample(20000)
	out := make([]PhaseSample, 0, len(bits)*2)
	for _, b := range bits {
		if b == 1 {
			out = append(out, lo, hi)
		} else {
			out = append(out, hi, lo)
		}
	}
	return out
}

// modulateFrame lays out a full transmitted frame -- sync word then
// payload, one bit per pair of phase samples -- ready to feed to
// Demodulator.Demodulate.
func modulateFrame(syncWord uint64, payload []byte, payloadBits int) []PhaseSample {
	bits := bitsFromWord(syncWord, SyncBits)
	bits = append(bits, bitsFromBytes(payload)[:payloadBits]...)
	return modulatePhase(bits)
}

func TestDemodulateNoiseOnlyYieldsNoFrames(t *testing.T) {
	fec, err := NewFecContext()
	if err != nil {
		t.Fatal(err)
	}
	d := NewDemodulator(fec)

	g := &fecLCG{state: 42}
	phase := make([]PhaseSample, 20000)
	for i := range phase {
		phase[i] = PhaseSample(g.next())
	}

	frames := d.Demodulate(phase)
	if len(frames) != 0 {
		t.Fatalf("expected no frames from noise, got %d", len(frames))
	}
}

func TestDemodulateRecoversDownlinkShortFrame(t *testing.T) {
	fec, err := NewFecContext()
	if err != nil {
		t.Fatal(err)
	}
	d := NewDemodulator(fec)

	data := make([]byte, DownlinkShortBytes)
	g := &fecLCG{state: 7}
	for i := range data {
		data[i] = byte(g.next())
	}
	data[0] = 0x02 // payload_type 0: top 5 bits of byte 0 are zero
	code := encodeDownlinkShort(t, data)

	raw := make([]byte, DownlinkLongBytes)
	copy(raw, code)
	phase := modulateFrame(DownlinkSyncWord, raw, DownlinkLongBits)

	frames := d.Demodulate(phase)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Kind != DownlinkShort {
		t.Errorf("kind = %v, want DownlinkShort", f.Kind)
	}
	if f.CorrectedErrors != 0 {
		t.Errorf("corrected errors = %d, want 0", f.CorrectedErrors)
	}
	if len(f.Payload) != DownlinkShortBytes {
		t.Fatalf("payload len = %d, want %d", len(f.Payload), DownlinkShortBytes)
	}
	for i := range data {
		if f.Payload[i] != data[i] {
			t.Fatalf("payload byte %d = 0x%02X, want 0x%02X", i, f.Payload[i], data[i])
		}
	}
}

func TestDemodulateRecoversDownlinkLongFrame(t *testing.T) {
	fec, err := NewFecContext()
	if err != nil {
		t.Fatal(err)
	}
	d := NewDemodulator(fec)

	data := make([]byte, DownlinkLongDataBytes)
	g := &fecLCG{state: 13}
	for i := range data {
		data[i] = byte(g.next())
	}
	data[0] = 0x08 // payload_type 1: top 5 bits of byte 0 are 00001
	code := encodeDownlinkLong(t, data)
	phase := modulateFrame(DownlinkSyncWord, code, DownlinkLongBits)

	frames := d.Demodulate(phase)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Kind != DownlinkLong {
		t.Errorf("kind = %v, want DownlinkLong", f.Kind)
	}
	if f.CorrectedErrors != 0 {
		t.Errorf("corrected errors = %d, want 0", f.CorrectedErrors)
	}
	if len(f.Payload) != DownlinkLongDataBytes {
		t.Fatalf("payload len = %d, want %d", len(f.Payload), DownlinkLongDataBytes)
	}
	for i := range data {
		if f.Payload[i] != data[i] {
			t.Fatalf("payload byte %d = 0x%02X, want 0x%02X", i, f.Payload[i], data[i])
		}
	}
}

func TestDemodulateRecoversUplinkFrameWithMovedError(t *testing.T) {
	fec, err := NewFecContext()
	if err != nil {
		t.Fatal(err)
	}
	d := NewDemodulator(fec)

	sub, err := rs.NewCodec(uplinkBlockRoots, rsFCR, rsPrim, rsGenPoly, uplinkBlockPad)
	if err != nil {
		t.Fatal(err)
	}

	g := &fecLCG{state: 21}
	subData := make([][]byte, uplinkSubBlocks)
	subCodes := make([][]byte, uplinkSubBlocks)
	for b := 0; b < uplinkSubBlocks; b++ {
		data := make([]byte, 72)
		for i := range data {
			data[i] = byte(g.next())
		}
		subData[b] = data
		parity := sub.Encode(data)
		subCodes[b] = append(append([]byte(nil), data...), parity...)
	}

	// Inject a single-byte error, then move it to a different sub-block --
	// still well within one sub-block's 20-root correction capacity either
	// way, so the frame must still be recovered exactly.
	subCodes[2][10] ^= 0x01
	subCodes[2][10] ^= 0x01
	subCodes[4][50] ^= 0x01

	raw := make([]byte, UplinkBytes)
	for b := 0; b < uplinkSubBlocks; b++ {
		for i := 0; i < uplinkSubBlockLen; i++ {
			raw[i*uplinkSubBlocks+b] = subCodes[b][i]
		}
	}
	phase := modulateFrame(UplinkSyncWord, raw, UplinkBits)

	frames := d.Demodulate(phase)
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	f := frames[0]
	if f.Kind != Uplink {
		t.Errorf("kind = %v, want Uplink", f.Kind)
	}
	if f.CorrectedErrors == 0 {
		t.Error("expected at least one corrected error")
	}
	if len(f.Payload) != UplinkDataBytes {
		t.Fatalf("payload len = %d, want %d", len(f.Payload), UplinkDataBytes)
	}
	for b := 0; b < uplinkSubBlocks; b++ {
		got := f.Payload[b*72 : (b+1)*72]
		want := subData[b]
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("sub-block %d byte %d mismatch", b, i)
			}
		}
	}
}

func TestSyncMatchPopcountBoundary(t *testing.T) {
	const target = DownlinkSyncWord
	for trial := 0; trial < 200; trial++ {
		// deterministic pseudo-random bit positions via a simple LCG so the
		// test has no external randomness dependency.
		seed := uint64(trial*2654435761 + 1)
		mask := uint64(0)
		nbits := trial%9 + 1
		for k := 0; k < nbits; k++ {
			seed = seed*6364136223846793005 + 1
			bit := int(seed>>33) % SyncBits
			mask ^= uint64(1) << uint(bit)
		}
		w := uint64(target) ^ mask
		want := popcount64(w^target) <= 4
		if got := syncMatch(w, target); got != want {
			t.Errorf("trial %d: syncMatch popcount=%d got %v want %v", trial, popcount64(w^target), got, want)
		}
	}
}
