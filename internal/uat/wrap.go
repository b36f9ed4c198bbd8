package uat

// WrapDiff computes the wrap-safe difference between two 16-bit phase
// samples, b minus a, folded into [-32768, 32767]. This is the only
// primitive used anywhere in the demodulator to compare two phase samples;
// a plain subtraction would be wrong across the 0/65536 wraparound.
func WrapDiff(a, b uint16) int16 {
	d := int32(b) - int32(a)
	switch {
	case d >= 32768:
		d -= 65536
	case d < -32768:
		d += 65536
	}
	return int16(d)
}
