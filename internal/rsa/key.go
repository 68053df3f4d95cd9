// Package rsa implements RSA encryption (PKCS#1 v1.5, OAEP) and signatures
// (PKCS#1 v1.5, PSS) as task chains over the engine's modular
// exponentiation.
package rsa

import (
	"math/big"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// Key is an RSA key in big-endian byte form. Public keys set N and E. Plain
// private keys set N and D. CRT private keys set P, Q, DP, DQ and QInv; N is
// kept alongside for sizing and E for export.
type Key struct {
	N, E, D            []byte
	P, Q, DP, DQ, QInv []byte
}

// IsCRT reports whether private operations use the CRT elements.
func (k *Key) IsCRT() bool {
	return k.P != nil && k.Q != nil
}

// BitLen returns the bit length of the modulus.
func (k *Key) BitLen() int {
	if k.N != nil {
		return new(big.Int).SetBytes(k.N).BitLen()
	}
	if k.IsCRT() {
		return new(big.Int).Mul(new(big.Int).SetBytes(k.P), new(big.Int).SetBytes(k.Q)).BitLen()
	}
	return 0
}

// Size returns the modulus size in bytes.
func (k *Key) Size() int {
	return (k.BitLen() + 7) / 8
}

// Public returns the public half of the key.
func (k *Key) Public() *Key {
	return &Key{N: k.N, E: k.E}
}

// Text is a caller owned destination buffer. Len is set to the number of
// bytes of Buf holding the result.
type Text struct {
	Buf []byte
	Len int
}

// copyRight copies src into dst right-aligned, zero filling the front.
func copyRight(dst, src []byte) {
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	pad := len(dst) - len(src)
	clear(dst[:pad])
	copy(dst[pad:], src)
}

// modExp describes one exponentiation with the public or private half of a
// key. An operand out of range fails the task with invalid.
type modExp struct {
	key     *Key
	private bool
	invalid status.Code
}

// start submits base^exp mod n. When the engine is done the result is copied
// to dst (key.Size() bytes), the request is released and next runs.
func (m modExp) start(t *task.Task, base, dst []byte, next task.Continuation) {
	key, private := m.key, m.private
	size := key.Size()
	if size == 0 || len(base) > size {
		t.MarkFinal(m.invalid)
		return
	}
	if private && key.IsCRT() {
		req, ok := t.Acquire(hsm.CmdModExpCRT)
		if !ok {
			return
		}
		in, ok := t.Inputs(req, len(key.P), len(key.Q), len(key.P), len(key.Q), len(key.P), size)
		if !ok {
			return
		}
		for i, v := range [][]byte{key.P, key.Q, key.DP, key.DQ, key.QInv, base} {
			in[i].Write(v)
		}
		t.RunAfter(m.finish(dst, next))
		t.Submit(req)
		return
	}
	exp := key.E
	if private {
		exp = key.D
	}
	if len(exp) == 0 || len(key.N) == 0 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	req, ok := t.Acquire(hsm.CmdModExp)
	if !ok {
		return
	}
	in, ok := t.Inputs(req, len(key.N), len(exp), len(key.N))
	if !ok {
		return
	}
	in[0].Write(key.N)
	in[1].Write(exp)
	in[2].Write(base)
	t.RunAfter(m.finish(dst, next))
	t.Submit(req)
}

func (m modExp) finish(dst []byte, next task.Continuation) task.Continuation {
	return func(t *task.Task) status.Code {
		if t.Code() != status.OK {
			t.ReleaseRequest()
			if t.Code() == status.ErrOutOfRange {
				return t.MarkFinal(m.invalid)
			}
			return t.Code()
		}
		copyRight(dst, t.Request().Output(0))
		t.ReleaseRequest()
		return next(t)
	}
}
