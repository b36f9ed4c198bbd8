package rs

// Decode corrects data in place, given a list of erasure positions (0-based
// indices into data, i.e. already local to the shortened codeword — the
// caller is responsible for whatever remapping its framing needs before
// calling this). data must have length CodeLen(). On success it returns the
// number of corrected symbols (errors plus erasures) and true. On failure
// it returns false and leaves data completely unmodified, which callers
// that retry a different framing after a failed decode depend on.
func (c *Codec) Decode(data []byte, erasures []int) (numErrors int, ok bool) {
	if len(data) != c.CodeLen() {
		panic("rs: Decode: wrong data length")
	}
	if len(erasures) > c.nroots {
		return 0, false
	}

	work := make([]byte, len(data))
	copy(work, data)

	n := c.CodeLen()
	pad := c.pad

	// Form the syndromes: evaluate data(x) at the nroots consecutive
	// roots of the generator, skipping the implicit leading zero pad
	// symbols (Horner's method starting directly at the first
	// transmitted symbol is equivalent to running it across the full
	// unshortened codeword, since the skipped leading coefficients are
	// zero).
	s := make([]int, c.nroots)
	for i := range s {
		s[i] = int(work[0])
	}
	for j := 1; j < n; j++ {
		for i := 0; i < c.nroots; i++ {
			if s[i] == 0 {
				s[i] = int(work[j])
			} else {
				s[i] = int(work[j]) ^ int(c.alphaTo[c.modnn(int(c.indexOf[s[i]])+(c.fcr+i)*c.prim)])
			}
		}
	}

	synError := 0
	sIdx := make([]int, c.nroots)
	for i := 0; i < c.nroots; i++ {
		synError |= s[i]
		sIdx[i] = int(c.indexOf[byte(s[i])])
	}
	if synError == 0 {
		return 0, true
	}

	noEras := len(erasures)
	lambda := make([]int, c.nroots+1)
	lambda[0] = 1
	erasPos := make([]int, noEras)
	for i, e := range erasures {
		erasPos[i] = e + pad
	}

	if noEras > 0 {
		lambda[1] = int(c.alphaTo[c.modnn(c.prim*(nn-1-erasPos[0]))])
		for i := 1; i < noEras; i++ {
			u := c.modnn(c.prim * (nn - 1 - erasPos[i]))
			for j := i + 1; j > 0; j-- {
				tmp := int(c.indexOf[byte(lambda[j-1])])
				if tmp != nn {
					lambda[j] ^= int(c.alphaTo[c.modnn(u+tmp)])
				}
			}
		}
	}

	b := make([]int, c.nroots+1)
	for i := range b {
		b[i] = int(c.indexOf[byte(lambda[i])])
	}

	r := noEras
	el := noEras
	t := make([]int, c.nroots+1)
	for {
		r++
		if r > c.nroots {
			break
		}
		discrR := 0
		for i := 0; i < r; i++ {
			if lambda[i] != 0 && sIdx[r-i-1] != nn {
				discrR ^= int(c.alphaTo[c.modnn(int(c.indexOf[byte(lambda[i])])+sIdx[r-i-1])])
			}
		}
		discrR = int(c.indexOf[byte(discrR)])
		if discrR == nn {
			copy(b[1:], b[:c.nroots])
			b[0] = nn
		} else {
			t[0] = lambda[0]
			for i := 0; i < c.nroots; i++ {
				if b[i] != nn {
					t[i+1] = lambda[i+1] ^ int(c.alphaTo[c.modnn(discrR+b[i])])
				} else {
					t[i+1] = lambda[i+1]
				}
			}
			if 2*el <= r+noEras-1 {
				el = r + noEras - el
				for i := 0; i <= c.nroots; i++ {
					if lambda[i] == 0 {
						b[i] = nn
					} else {
						b[i] = c.modnn(int(c.indexOf[byte(lambda[i])]) - discrR + nn)
					}
				}
			} else {
				copy(b[1:], b[:c.nroots])
				b[0] = nn
			}
			copy(lambda, t[:c.nroots+1])
		}
	}

	degLambda := 0
	lambdaIdx := make([]int, c.nroots+1)
	for i := 0; i <= c.nroots; i++ {
		lambdaIdx[i] = int(c.indexOf[byte(lambda[i])])
		if lambdaIdx[i] != nn {
			degLambda = i
		}
	}

	reg := make([]int, c.nroots+1)
	copy(reg[1:], lambdaIdx[1:])
	root := make([]int, c.nroots)
	loc := make([]int, c.nroots)
	count := 0
	k := c.iprim - 1
	for i := 1; i <= nn; i++ {
		q := 1
		for j := degLambda; j > 0; j-- {
			if reg[j] != nn {
				reg[j] = c.modnn(reg[j] + j)
				q ^= int(c.alphaTo[reg[j]])
			}
		}
		if q == 0 {
			root[count] = i
			loc[count] = k
			count++
			if count == degLambda {
				break
			}
		}
		k = c.modnn(k + c.iprim)
	}
	if degLambda != count {
		return 0, false
	}

	// omega(x) = s(x)*lambda(x) mod x^nroots, in index form.
	degOmega := degLambda - 1
	omega := make([]int, c.nroots+1)
	for i := 0; i <= degOmega; i++ {
		tmp := 0
		for j := i; j >= 0; j-- {
			if sIdx[i-j] != nn && lambdaIdx[j] != nn {
				tmp ^= int(c.alphaTo[c.modnn(sIdx[i-j]+lambdaIdx[j])])
			}
		}
		omega[i] = int(c.indexOf[byte(tmp)])
	}

	for j := count - 1; j >= 0; j-- {
		num1 := 0
		for i := degOmega; i >= 0; i-- {
			if omega[i] != nn {
				num1 ^= int(c.alphaTo[c.modnn(omega[i]+i*root[j])])
			}
		}
		num2 := int(c.alphaTo[c.modnn(root[j]*(c.fcr-1)+nn)])
		den := 0
		top := minInt(degLambda, c.nroots-1) &^ 1
		for i := top; i >= 0; i -= 2 {
			if lambdaIdx[i+1] != nn {
				den ^= int(c.alphaTo[c.modnn(lambdaIdx[i+1]+i*root[j])])
			}
		}
		if den == 0 {
			return 0, false
		}
		if num1 != 0 {
			pos := loc[j]
			if pos < pad || pos >= pad+n {
				return 0, false
			}
			localPos := pos - pad
			work[localPos] ^= c.alphaTo[c.modnn(int(c.indexOf[byte(num1)])+int(c.indexOf[byte(num2)])+nn-int(c.indexOf[byte(den)]))]
		}
	}

	copy(data, work)
	return count, true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
