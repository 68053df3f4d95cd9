package ecc

import (
	"bytes"
	"math/big"

	"github.com/glinharesb/sicrypto/internal/arith"
	"github.com/glinharesb/sicrypto/internal/mac"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// rfc6979 derives the signature nonce from the private key and the digest
// with HMAC_DRBG as in RFC 6979 section 3.2. The candidate T is built in the
// signer's nonce region, which first holds bits2octets(h1).
type rfc6979 struct {
	s       *signer
	bigK, v []byte
	x       []byte
	tlen    int
	skip    int
}

// start runs steps b through f, then generates candidates. After the
// engine rejected a nonce the sequence is replayed and the candidates
// already used are skipped.
func (d *rfc6979) start(t *task.Task) status.Code {
	s := d.s
	curve := s.key.Curve
	if d.x == nil {
		d.x = make([]byte, curve.OpSize)
		copy(d.x[len(d.x)-len(s.key.D):], s.key.D)
	}
	clear(d.bigK)
	for i := range d.v {
		d.v[i] = 0x01
	}
	bits2octets(s.h, curve.Order, curve.OrderBits(), s.k)
	d.skip = s.attempts
	return d.hmac(t, d.bigK, d.updateV, d.v, []byte{0x00}, d.x, s.k)
}

func (d *rfc6979) updateV(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return d.hmac(t, d.v, d.reseed, d.v)
}

func (d *rfc6979) reseed(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return d.hmac(t, d.bigK, d.candidate, d.v, []byte{0x01}, d.x, d.s.k)
}

// candidate runs the last V update of step f, or the one after a rejected
// candidate, and starts filling T.
func (d *rfc6979) candidate(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	d.tlen = 0
	return d.hmac(t, d.v, d.block, d.v)
}

func (d *rfc6979) block(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return d.hmac(t, d.v, d.extend, d.v)
}

// extend appends V to T until T holds an operand.
func (d *rfc6979) extend(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	n := copy(d.s.k[d.tlen:], d.v)
	d.tlen += n
	if d.tlen < len(d.s.k) {
		return d.block(t)
	}
	return d.check(t)
}

// check accepts k = bits2int(T) when 1 <= k < q and no more candidates are
// to be skipped; otherwise it runs step h.3 and tries again.
func (d *rfc6979) check(t *task.Task) status.Code {
	curve := d.s.key.Curve
	k := d.s.k
	bits2int(k, curve.OrderBits(), k)
	if !arith.IsZero(k) && bytes.Compare(k, curve.Order) < 0 {
		if d.skip == 0 {
			return d.s.generate(t)
		}
		d.skip--
	}
	return d.hmac(t, d.bigK, d.rekeyed, d.v, []byte{0x00})
}

func (d *rfc6979) rekeyed(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return d.hmac(t, d.v, d.restart, d.v)
}

func (d *rfc6979) restart(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	d.tlen = 0
	return d.block(t)
}

// hmac writes HMAC_K(parts...) to out and continues with next. The key is
// copied into the HMAC state first, so out may be K itself.
func (d *rfc6979) hmac(t *task.Task, out []byte, next task.Continuation, parts ...[]byte) status.Code {
	t.RunAfter(next)
	mac.CreateHMAC(t, d.s.alg, d.bigK)
	for _, p := range parts {
		t.Consume(p)
	}
	t.Produce(out)
	return t.Code()
}

// bits2int writes the leftmost qlen bits of b, as an integer, to out.
func bits2int(b []byte, qlen int, out []byte) {
	v := new(big.Int).SetBytes(b)
	if excess := 8*len(b) - qlen; excess > 0 {
		v.Rsh(v, uint(excess))
	}
	v.FillBytes(out)
}

// bits2octets writes bits2int(b) mod q to out.
func bits2octets(b, q []byte, qlen int, out []byte) {
	bits2int(b, qlen, out)
	if bytes.Compare(out, q) >= 0 {
		v := new(big.Int).SetBytes(out)
		v.Sub(v, new(big.Int).SetBytes(q))
		v.FillBytes(out)
	}
}
