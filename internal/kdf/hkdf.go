// Package kdf implements HKDF (RFC 5869) and PBKDF2 (RFC 8018).
package kdf

import (
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/mac"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// HKDFWorkmemSize returns the workmem CreateHKDF needs for alg.
func HKDFWorkmemSize(alg *hsm.HashAlgorithm) int {
	return mac.WorkmemSize(alg) + 2*alg.DigestSize
}

type hkdf struct {
	alg     *hsm.HashAlgorithm
	info    []byte
	prk     []byte
	block   []byte
	out     []byte
	off     int
	counter byte
}

// CreateHKDF configures t to derive key material from the input keying
// material it consumes. A nil salt stands for a digest-sized zero salt.
// Produce runs extract and expand and fills the whole output buffer.
func CreateHKDF(t *task.Task, alg *hsm.HashAlgorithm, salt, info []byte) {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	if len(salt) > alg.DigestSize {
		t.MarkFinal(status.ErrTooBig)
		return
	}
	mem, ok := t.Carve(task.Layout{mac.WorkmemSize(alg), alg.DigestSize, alg.DigestSize})
	if !ok {
		return
	}
	h := &hkdf{alg: alg, info: info, prk: mem[1], block: mem[2]}
	if salt == nil {
		clear(h.prk)
		salt = h.prk
	}
	mac.CreateHMAC(t, alg, salt)
	if t.Code() != status.Ready {
		return
	}
	a := t.Actions()
	extract := a.Produce
	a.Produce = func(t *task.Task, out []byte) {
		if len(out) > 255*alg.DigestSize {
			t.MarkFinal(status.ErrTooBig)
			return
		}
		h.out = out
		t.RunAfter(h.expand)
		extract(t, h.prk)
	}
	t.SetActions(a)
}

// expand computes T(i) = HMAC(PRK, T(i-1) | info | i) until the output is
// full.
func (h *hkdf) expand(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if h.counter > 0 {
		n := copy(h.out[h.off:], h.block)
		h.off += n
	}
	if h.off >= len(h.out) {
		return status.OK
	}
	h.counter++
	mac.CreateHMAC(t, h.alg, h.prk)
	if h.counter > 1 {
		t.Consume(h.block)
	}
	t.Consume(h.info)
	t.Consume([]byte{h.counter})
	t.RunAfter(h.expand)
	t.Produce(h.block)
	return t.Code()
}
