// Package rsakeygen generates RSA keys from random probable primes as
// described in FIPS 186-4 appendix B.3.3.
package rsakeygen

import (
	"bytes"
	"math/big"

	"github.com/glinharesb/sicrypto/internal/arith"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// productSmallPrimes is the product of the first 130 odd primes.
var productSmallPrimes = []byte{
	0x02, 0xc8, 0x5f, 0xf8, 0x70, 0xf2, 0x4b, 0xe8, 0x0f, 0x62, 0xb1, 0xba, 0x6c, 0x20, 0xbd, 0x72,
	0xb8, 0x37, 0xef, 0xdf, 0x12, 0x12, 0x06, 0xd8, 0x7d, 0xb5, 0x6b, 0x7d, 0x69, 0xfa, 0x4c, 0x02,
	0x1c, 0x10, 0x7c, 0x3c, 0xa2, 0x06, 0xfe, 0x8f, 0xa7, 0x08, 0x0e, 0xf5, 0x76, 0xef, 0xfc, 0x82,
	0xf9, 0xb1, 0x0f, 0x57, 0x50, 0x65, 0x6b, 0x77, 0x94, 0xb1, 0x6a, 0xfd, 0x70, 0x99, 0x6e, 0x91,
	0xae, 0xf6, 0xe0, 0xad, 0x15, 0xe9, 0x1b, 0x07, 0x1a, 0xc9, 0xb2, 0x4d, 0x98, 0xb2, 0x33, 0xad,
	0x86, 0xee, 0x05, 0x55, 0x18, 0xe5, 0x8e, 0x56, 0x63, 0x8e, 0xf1, 0x8b, 0xac, 0x5c, 0x74, 0xcb,
	0x35, 0xbb, 0xb6, 0xe5, 0xda, 0xe2, 0x78, 0x3d, 0xd1, 0xc0, 0xce, 0x7d, 0xec, 0x4f, 0xc7, 0x0e,
	0x51, 0x86, 0xd4, 0x11, 0xdf, 0x36, 0x36, 0x8f, 0x06, 0x1a, 0xa3, 0x60, 0x11, 0xf3, 0x01, 0x79,
}

// sqrt2Bound is ceil(2^63.5), the smallest acceptable top 64 bits of a
// candidate.
var sqrt2Bound = []byte{0xB5, 0x04, 0xF3, 0x33, 0xF9, 0xDE, 0x64, 0x85}

// CheckPQWorkmemSize returns the workmem CreateCheckPQ needs for
// candidates of size bytes.
func CheckPQWorkmemSize(size int) int {
	return 2 * size
}

type checkPQ struct {
	e, p, q []byte
	size    int
	rounds  int

	base, scratch []byte
}

// candidate returns the value under test: q when set, p otherwise.
func (c *checkPQ) candidate() []byte {
	if c.q != nil {
		return c.q
	}
	return c.p
}

// CreateCheckPQ configures t to test a candidate prime factor against the
// public exponent e. With q nil it tests p; otherwise it tests q given an
// accepted p. Both are big-endian with the same length and the top bit set.
//
// Run ends in OK for a probable prime. ErrCompositeValue and
// ErrNotInvertible reject the candidate on primality or coprimality with
// e-1; ErrRSAPQRangeCheckFail rejects it on magnitude.
func CreateCheckPQ(t *task.Task, e, p, q []byte) {
	size := len(p)
	if size < 13 || len(e) < 3 {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return
	}
	if e[len(e)-1]&1 == 0 || len(e) > 2*size || e[0] == 0 || (q != nil && len(q) != size) {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	if p[0]&0x80 == 0 || (q != nil && q[0]&0x80 == 0) {
		t.MarkFinal(status.ErrRSAPQRangeCheckFail)
		return
	}
	if p[size-1]&1 == 0 || (q != nil && q[size-1]&1 == 0) {
		t.MarkFinal(status.ErrCompositeValue)
		return
	}
	mem, ok := t.Carve(task.Layout{size, size})
	if !ok {
		return
	}
	c := &checkPQ{e: e, p: p, q: q, size: size, base: mem[0], scratch: mem[1], rounds: 5}
	// FIPS 186-4 table C.2
	if size >= 192 {
		c.rounds = 4
	}
	t.Configure(task.Actions{Run: c.run})
}

func (c *checkPQ) run(t *task.Task) {
	cand := c.candidate()
	if bytes.Compare(cand[:len(sqrt2Bound)], sqrt2Bound) < 0 {
		t.MarkFinal(status.ErrRSAPQRangeCheckFail)
		return
	}
	if c.q != nil && tooClose(c.p, c.q) {
		t.MarkFinal(status.ErrRSAPQRangeCheckFail)
		return
	}
	t.RunAfter(c.sieved)
	arith.CreateCoprimeCheck(t, cand, productSmallPrimes)
	t.Run()
}

// tooClose reports whether |p - q| <= 2^(bitlen - 100).
func tooClose(p, q []byte) bool {
	d := new(big.Int).Sub(new(big.Int).SetBytes(p), new(big.Int).SetBytes(q))
	bound := new(big.Int).Lsh(big.NewInt(1), uint(8*len(p)-100))
	return d.Abs(d).Cmp(bound) <= 0
}

// sieved follows the small primes check with gcd(candidate - 1, e) = 1.
func (c *checkPQ) sieved(t *task.Task) status.Code {
	if t.Code() == status.ErrNotInvertible {
		return t.MarkFinal(status.ErrCompositeValue)
	}
	if t.Code() != status.OK {
		return t.Code()
	}
	copy(c.scratch, c.candidate())
	c.scratch[c.size-1] &= 0xFE
	t.RunAfter(c.coprimeWithE)
	arith.CreateCoprimeCheck(t, c.scratch, c.e)
	t.Run()
	return t.Code()
}

// coprimeWithE turns the scratch copy into candidate - 2, the bound for
// the Miller-Rabin bases.
func (c *checkPQ) coprimeWithE(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	arith.SubWord(c.scratch, 1)
	return c.nextRound(t)
}

// nextRound draws a base in [1, candidate - 3] and shifts it up by one.
func (c *checkPQ) nextRound(t *task.Task) status.Code {
	t.RunAfter(c.round)
	arith.CreateRandomInRange(t, c.scratch, c.base)
	t.Run()
	return t.Code()
}

func (c *checkPQ) round(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	arith.AddWord(c.base, 1)
	req, ok := t.Acquire(hsm.CmdMillerRabin)
	if !ok {
		return t.Code()
	}
	in, ok := t.Inputs(req, c.size, c.size)
	if !ok {
		return t.Code()
	}
	in[0].Write(c.candidate())
	in[1].Write(c.base)
	t.RunAfter(c.roundDone)
	t.Submit(req)
	return t.Code()
}

func (c *checkPQ) roundDone(t *task.Task) status.Code {
	t.ReleaseRequest()
	c.rounds--
	if t.Code() != status.OK {
		return t.Code()
	}
	if c.rounds > 0 {
		return c.nextRound(t)
	}
	return status.OK
}
