// Package arith holds the number-theory building blocks used by key
// generation and signing: big-endian byte arithmetic, random sampling in a
// range and coprimality checks on the engine.
package arith

// AddBE sets a = a + b mod 2^(8*len(a)). b is right-aligned against a and
// may be shorter.
func AddBE(a, b []byte) {
	carry := 0
	j := len(b) - 1
	for i := len(a) - 1; i >= 0; i-- {
		s := int(a[i]) + carry
		if j >= 0 {
			s += int(b[j])
			j--
		}
		a[i] = byte(s)
		carry = s >> 8
	}
}

// AddWord adds a small value to a, wrapping around.
func AddWord(a []byte, v uint) {
	for i := len(a) - 1; i >= 0 && v != 0; i-- {
		s := uint(a[i]) + (v & 0xFF)
		a[i] = byte(s)
		v = (v >> 8) + (s >> 8)
	}
}

// SubWord subtracts a small value from a, wrapping around.
func SubWord(a []byte, v uint) {
	borrow := v
	for i := len(a) - 1; i >= 0 && borrow != 0; i-- {
		d := int(a[i]) - int(borrow&0xFF)
		borrow >>= 8
		if d < 0 {
			d += 256
			borrow++
		}
		a[i] = byte(d)
	}
}

// IsZero reports whether every byte of a is zero.
func IsZero(a []byte) bool {
	var acc byte
	for _, b := range a {
		acc |= b
	}
	return acc == 0
}

// IsOne reports whether a encodes the value 1.
func IsOne(a []byte) bool {
	return len(a) > 0 && a[len(a)-1] == 1 && IsZero(a[:len(a)-1])
}

// TrimLeadingZeros returns a without its leading zero bytes, keeping at
// least one byte.
func TrimLeadingZeros(a []byte) []byte {
	for len(a) > 1 && a[0] == 0 {
		a = a[1:]
	}
	return a
}
