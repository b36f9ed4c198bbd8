package uat

import "github.com/uatdecode/uatd/internal/rs"

// FecContext holds the three Reed-Solomon codecs UAT frames use. It is
// built once and shared read-only; nothing here allocates per call beyond
// the small scratch buffers a single decode needs.
type FecContext struct {
	downlinkShort *rs.Codec
	downlinkLong  *rs.Codec
	uplinkBlock   *rs.Codec
}

// NewFecContext constructs the three fixed UAT codecs. The parameters are
// process constants; a construction failure here would mean the constants
// themselves are wrong, which is a programming error, not a runtime
// condition — callers are expected to treat an error from this function as
// fatal at startup.
func NewFecContext() (*FecContext, error) {
	short, err := rs.NewCodec(downlinkShortRoots, rsFCR, rsPrim, rsGenPoly, downlinkShortPad)
	if err != nil {
		return nil, err
	}
	long, err := rs.NewCodec(downlinkLongRoots, rsFCR, rsPrim, rsGenPoly, downlinkLongPad)
	if err != nil {
		return nil, err
	}
	uplink, err := rs.NewCodec(uplinkBlockRoots, rsFCR, rsPrim, rsGenPoly, uplinkBlockPad)
	if err != nil {
		return nil, err
	}
	return &FecContext{downlinkShort: short, downlinkLong: long, uplinkBlock: uplink}, nil
}

// CorrectDownlink implements the long-then-short disambiguation from
// spec.md §4.3: raw must be DownlinkLongBytes (48) bytes, the transmitted
// length of the long code. Long is tried first; success requires both an
// RS pass AND payload_type != 0. Failing that, short is retried using only
// the erasures that fall within its shorter span. The RS decoder never
// mutates raw on failure, which step 2 relies on.
func (f *FecContext) CorrectDownlink(raw []byte, erasures []int) (kind FrameKind, payload []byte, corrected int, ok bool) {
	if len(raw) != DownlinkLongBytes {
		panic("uat: CorrectDownlink: wrong input length")
	}
	if len(erasures) > 14 {
		return 0, nil, 0, false
	}

	buf := make([]byte, DownlinkLongBytes)
	copy(buf, raw)
	if n, ok := f.downlinkLong.Decode(buf, erasures); ok {
		if buf[0]>>3 != 0 {
			return DownlinkLong, append([]byte(nil), buf[:DownlinkLongDataBytes]...), n, true
		}
	}

	var shortEras []int
	for _, e := range erasures {
		if e < DownlinkShortBytes {
			shortEras = append(shortEras, e)
		}
	}
	buf2 := make([]byte, f.downlinkShort.CodeLen())
	copy(buf2, raw[:f.downlinkShort.CodeLen()])
	if n, ok := f.downlinkShort.Decode(buf2, shortEras); ok {
		if buf2[0]>>3 == 0 {
			return DownlinkShort, append([]byte(nil), buf2[:DownlinkShortBytes]...), n, true
		}
	}
	return 0, nil, 0, false
}

// CorrectUplink implements the deinterleaved uplink decode from spec.md
// §4.3: raw must be UplinkBytes (552) bytes, byte-interleaved across 6
// sub-blocks. Each sub-block is independently RS-decoded; any sub-block
// failure fails the whole frame.
func (f *FecContext) CorrectUplink(raw []byte, erasures []int) (payload []byte, corrected int, ok bool) {
	if len(raw) != UplinkBytes {
		panic("uat: CorrectUplink: wrong input length")
	}
	out := make([]byte, 0, UplinkDataBytes)
	total := 0
	for b := 0; b < uplinkSubBlocks; b++ {
		sub := make([]byte, uplinkSubBlockLen)
		for i := 0; i < uplinkSubBlockLen; i++ {
			sub[i] = raw[i*uplinkSubBlocks+b]
		}
		var subEras []int
		for _, e := range erasures {
			if e%uplinkSubBlocks == b {
				subEras = append(subEras, e/uplinkSubBlocks)
			}
		}
		if len(subEras) > uplinkBlockRoots {
			return nil, 0, false
		}
		n, ok := f.uplinkBlock.Decode(sub, subEras)
		if !ok {
			return nil, 0, false
		}
		total += n
		out = append(out, sub[:72]...)
	}
	return out, total, true
}
