package kdf

import (
	"encoding/binary"

	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/mac"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// PBKDF2WorkmemSize returns the workmem CreatePBKDF2 needs for alg.
func PBKDF2WorkmemSize(alg *hsm.HashAlgorithm) int {
	return mac.WorkmemSize(alg) + 3*alg.DigestSize + 4
}

type pbkdf2 struct {
	alg        *hsm.HashAlgorithm
	password   []byte
	salt       []byte
	iterations int

	u     []byte
	acc   []byte
	index []byte

	out   []byte
	off   int
	block uint32
	iter  int
}

// CreatePBKDF2 configures t to derive a key from password and salt with the
// given iteration count. Produce fills the whole output buffer. Passwords
// longer than the hash block are hashed once up front.
func CreatePBKDF2(t *task.Task, alg *hsm.HashAlgorithm, password, salt []byte, iterations int) {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	if iterations < 1 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	ds := alg.DigestSize
	mem, ok := t.Carve(task.Layout{mac.WorkmemSize(alg), ds, ds, ds, 4})
	if !ok {
		return
	}
	p := &pbkdf2{
		alg:        alg,
		password:   password,
		salt:       salt,
		iterations: iterations,
		u:          mem[2],
		acc:        mem[3],
		index:      mem[4],
	}
	if len(password) > alg.BlockSize {
		if code := digest.Sum(alg, mem[1], password); code != status.OK {
			t.MarkFinal(code)
			return
		}
		p.password = mem[1]
	}
	t.Configure(task.Actions{Produce: p.produce})
	t.SetParams(p)
}

func (p *pbkdf2) produce(t *task.Task, out []byte) {
	if uint64(len(out)) > uint64(0xFFFFFFFF)*uint64(p.alg.DigestSize) {
		t.MarkFinal(status.ErrTooBig)
		return
	}
	p.out = out
	p.off = 0
	p.block = 0
	t.Complete()
	t.RunAfter(p.nextBlock)
}

// nextBlock starts U1 = HMAC(P, S | INT(i)) of the next output block.
func (p *pbkdf2) nextBlock(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if p.off >= len(p.out) {
		return status.OK
	}
	p.block++
	p.iter = 1
	binary.BigEndian.PutUint32(p.index, p.block)
	mac.CreateHMAC(t, p.alg, p.password)
	t.Consume(p.salt)
	t.Consume(p.index)
	t.RunAfter(p.iterate)
	t.Produce(p.u)
	return t.Code()
}

// iterate folds U_j into the block accumulator and computes U_{j+1}.
func (p *pbkdf2) iterate(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if p.iter == 1 {
		copy(p.acc, p.u)
	} else {
		for i := range p.acc {
			p.acc[i] ^= p.u[i]
		}
	}
	if p.iter == p.iterations {
		p.off += copy(p.out[p.off:], p.acc)
		return p.nextBlock(t)
	}
	p.iter++
	mac.CreateHMAC(t, p.alg, p.password)
	t.Consume(p.u)
	t.RunAfter(p.iterate)
	t.Produce(p.u)
	return t.Code()
}
