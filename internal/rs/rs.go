// Package rs implements Reed-Solomon forward error correction over GF(2^8),
// sized for shortened codes the way UAT's downlink and uplink frames use
// them: a fixed generator polynomial, a first-consecutive-root offset, and
// a "pad" of implicit leading zero data symbols that are never transmitted.
//
// Table construction and the encoder follow the classic Karn-style
// index-of/alpha-to LFSR pattern; no equivalent decoder exists in any
// retrieved reference implementation, so the decoder (Berlekamp-Massey with
// erasures, Chien search, Forney) is original code built on the same table
// convention.
package rs

import "fmt"

const (
	symBits = 8
	nn      = (1 << symBits) - 1 // 255
)

// Codec is an immutable Reed-Solomon codec for one shortened code. Built
// once at process startup and shared read-only across receivers; nothing
// in Encode or Decode mutates the tables.
type Codec struct {
	nroots int
	pad    int
	fcr    int
	prim   int
	iprim  int

	alphaTo []byte // GF(256) exp table, length nn+1
	indexOf []byte // GF(256) log table, length nn+1; indexOf[0] == nn (sentinel for log of zero)
	genpoly []byte // generator polynomial in index form, length nroots+1
}

// NewCodec builds a shortened RS(nn-pad, nn-pad-nroots) codec over GF(256)
// with the given generator polynomial (as a degree-8 binary polynomial,
// e.g. 0x187), first-consecutive-root fcr, and primitive element index
// prim. gfpoly must define a primitive polynomial; construction fails
// otherwise, which for the three codes UAT actually uses never happens and
// would indicate a programming error in the caller's constants.
func NewCodec(nroots, fcr, prim int, gfpoly uint16, pad int) (*Codec, error) {
	if nroots <= 0 || nroots >= nn {
		return nil, fmt.Errorf("rs: invalid nroots %d", nroots)
	}
	if pad < 0 || pad+nroots >= nn {
		return nil, fmt.Errorf("rs: invalid pad %d", pad)
	}

	c := &Codec{
		nroots: nroots,
		pad:    pad,
		fcr:    fcr,
		prim:   prim,
	}

	c.alphaTo = make([]byte, nn+1)
	c.indexOf = make([]byte, nn+1)

	sr := 1
	for i := 0; i < nn; i++ {
		c.alphaTo[i] = byte(sr)
		c.indexOf[sr] = byte(i)
		sr <<= 1
		if sr&(1<<symBits) != 0 {
			sr ^= int(gfpoly)
		}
		sr &= nn
	}
	if sr != 1 {
		return nil, fmt.Errorf("rs: gfpoly 0x%x is not primitive", gfpoly)
	}
	c.indexOf[0] = byte(nn)
	c.alphaTo[nn] = 0

	// inverse of prim modulo nn, by exhaustive search (prim is always a
	// small constant chosen once at startup, so this runs a handful of
	// times total for the process lifetime).
	c.iprim = 1
	for (c.iprim*prim)%nn != 1 {
		c.iprim++
	}

	c.genpoly = make([]byte, nroots+1)
	c.genpoly[0] = 1
	for i := 0; i < nroots; i++ {
		c.genpoly[i+1] = 1
		for j := i; j > 0; j-- {
			if c.genpoly[j] != 0 {
				c.genpoly[j] = c.genpoly[j-1] ^ c.alphaTo[c.modnn(int(c.indexOf[c.genpoly[j]])+(fcr+i)*prim)]
			} else {
				c.genpoly[j] = c.genpoly[j-1]
			}
		}
		c.genpoly[0] = c.alphaTo[c.modnn(int(c.indexOf[c.genpoly[0]])+(fcr+i)*prim)]
	}
	for i := 0; i <= nroots; i++ {
		c.genpoly[i] = c.indexOf[c.genpoly[i]]
	}
	return c, nil
}

// modnn reduces x modulo nn using the digit-sum identity that holds
// because nn = 2^symBits - 1.
func (c *Codec) modnn(x int) int {
	for x >= nn {
		x -= nn
		x = (x >> symBits) + (x & nn)
	}
	return x
}

// DataLen is the number of data bytes this codec carries per codeword,
// after shortening.
func (c *Codec) DataLen() int { return nn - c.pad - c.nroots }

// ParityLen is the number of parity (root) bytes appended per codeword.
func (c *Codec) ParityLen() int { return c.nroots }

// CodeLen is DataLen()+ParityLen(), the length of one transmitted (shortened) codeword.
func (c *Codec) CodeLen() int { return nn - c.pad }

// Encode returns the nroots parity bytes for data, which must have length
// DataLen(). The classic Karn systematic LFSR encoder: process each data
// byte through a feedback shift register seeded from the generator
// polynomial.
func (c *Codec) Encode(data []byte) []byte {
	if len(data) != c.DataLen() {
		panic("rs: Encode: wrong data length")
	}
	parity := make([]byte, c.nroots)
	for i := 0; i < len(data); i++ {
		feedback := c.indexOf[data[i]^parity[0]]
		if int(feedback) != nn {
			for j := 1; j < c.nroots; j++ {
				parity[j] ^= c.alphaTo[c.modnn(int(feedback)+int(c.genpoly[c.nroots-j]))]
			}
		}
		copy(parity, parity[1:])
		if int(feedback) != nn {
			parity[c.nroots-1] = c.alphaTo[c.modnn(int(feedback)+int(c.genpoly[0]))]
		} else {
			parity[c.nroots-1] = 0
		}
	}
	return parity
}
