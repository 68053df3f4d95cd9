// Package mgf1 implements the MGF1 mask generation function (RFC 8017
// appendix B.2.1), applied by XOR to a caller buffer.
package mgf1

import (
	"encoding/binary"

	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// WorkmemSize returns the workmem CreateXOR needs for alg.
func WorkmemSize(alg *hsm.HashAlgorithm) int {
	return alg.DigestSize + 4
}

type mgf struct {
	alg     *hsm.HashAlgorithm
	seed    []byte
	mask    []byte
	counter []byte
	inout   []byte
	off     int
	c       uint32
}

// CreateXOR configures t to XOR the MGF1 mask of the consumed seed into the
// buffer passed to Produce.
func CreateXOR(t *task.Task, alg *hsm.HashAlgorithm) {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	mem, ok := t.Carve(task.Layout{alg.DigestSize, 4})
	if !ok {
		return
	}
	m := &mgf{alg: alg, mask: mem[0], counter: mem[1]}
	t.Configure(task.Actions{
		Consume: func(t *task.Task, seed []byte) { m.seed = seed },
		Produce: m.produce,
	})
	t.SetParams(m)
}

func (m *mgf) produce(t *task.Task, inout []byte) {
	m.inout = inout
	m.off = 0
	m.c = 0
	t.Complete()
	t.RunAfter(m.step)
}

// step hashes seed | C and XORs the digest into the next chunk.
func (m *mgf) step(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if m.off >= len(m.inout) {
		return status.OK
	}
	binary.BigEndian.PutUint32(m.counter, m.c)
	digest.Create(t, m.alg)
	t.Consume(m.seed)
	t.Consume(m.counter)
	t.RunAfter(m.xor)
	t.Produce(m.mask)
	return t.Code()
}

func (m *mgf) xor(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	chunk := m.inout[m.off:]
	if len(chunk) > len(m.mask) {
		chunk = chunk[:len(m.mask)]
	}
	for i := range chunk {
		chunk[i] ^= m.mask[i]
	}
	m.off += len(chunk)
	m.c++
	return m.step(t)
}
