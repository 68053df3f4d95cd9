package drbg

import (
	"encoding/binary"

	"github.com/glinharesb/sicrypto/internal/arith"
	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

type hashParams struct {
	seedLen  int
	strength int
}

var hashDRBGParams = map[*hsm.HashAlgorithm]hashParams{
	hsm.SHA1:   {seedLen: 55, strength: 16},
	hsm.SHA224: {seedLen: 55, strength: 24},
	hsm.SHA256: {seedLen: 55, strength: 32},
	hsm.SHA384: {seedLen: 111, strength: 32},
	hsm.SHA512: {seedLen: 111, strength: 32},
}

// HashWorkmemSize returns the workmem CreateHash needs, or 0 if alg cannot
// back a Hash_DRBG.
func HashWorkmemSize(alg *hsm.HashAlgorithm) int {
	p, ok := hashDRBGParams[alg]
	if !ok {
		return 0
	}
	return 3*p.seedLen + alg.DigestSize + 6 + 8
}

type hashDRBG struct {
	base
	alg *hsm.HashAlgorithm
	hashParams

	v, c, work, h, hdr, ctr []byte

	// hash_df progress
	dfParts   [][]byte
	dfOff     int
	dfCounter byte
	dfNext    task.Continuation

	out []byte
	off int
}

// CreateHash configures t as a Hash_DRBG over alg. Workmem holds V, C and
// the scratch space of the derivation function and must stay untouched
// for the lifetime of the generator.
func CreateHash(t *task.Task, alg *hsm.HashAlgorithm) {
	p, ok := hashDRBGParams[alg]
	if !ok {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	mem, ok := t.Carve(task.Layout{p.seedLen, p.seedLen, p.seedLen, alg.DigestSize, 6, 8})
	if !ok {
		return
	}
	d := &hashDRBG{
		alg:        alg,
		hashParams: p,
		v:          mem[0],
		c:          mem[1],
		work:       mem[2],
		h:          mem[3],
		hdr:        mem[4],
		ctr:        mem[5],
	}
	t.SetParams(d)
	rearm(t, d)
}

func (d *hashDRBG) actions() task.Actions {
	if d.st != Instantiated {
		return task.Actions{Consume: d.consume, Run: d.instantiate}
	}
	return task.Actions{Consume: d.consume, Run: d.reseed, Produce: d.generate}
}

func (d *hashDRBG) checkInput(t *task.Task, sz int) bool {
	if sz < d.strength {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return false
	}
	if sz > maxInputSize {
		t.MarkFinal(status.ErrTooBig)
		return false
	}
	return true
}

// instantiate derives V = Hash_df(seed material) and C = Hash_df(0x00 | V).
func (d *hashDRBG) instantiate(t *task.Task) {
	input, sz := d.takeInput()
	if !d.checkInput(t, sz) {
		return
	}
	d.st = Instantiating
	t.Complete()
	t.RunAfter(func(t *task.Task) status.Code {
		return d.df(t, input, d.deriveC)
	})
}

// reseed derives V = Hash_df(0x01 | V | entropy | additional input).
func (d *hashDRBG) reseed(t *task.Task) {
	input, sz := d.takeInput()
	if !d.checkInput(t, sz) {
		return
	}
	t.Logger().Debug("hash drbg reseed", "counter", d.counter)
	d.hdr[5] = 0x01
	parts := append([][]byte{d.hdr[5:6], d.v}, input...)
	t.Complete()
	t.RunAfter(func(t *task.Task) status.Code {
		return d.df(t, parts, d.deriveC)
	})
}

func (d *hashDRBG) deriveC(t *task.Task) status.Code {
	copy(d.v, d.work)
	d.hdr[5] = 0x00
	return d.df(t, [][]byte{d.hdr[5:6], d.v}, func(t *task.Task) status.Code {
		copy(d.c, d.work)
		d.counter = 1
		d.st = Instantiated
		return rearm(t, d)
	})
}

// df runs Hash_df over parts into work, then continues with next.
func (d *hashDRBG) df(t *task.Task, parts [][]byte, next task.Continuation) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	d.dfParts = parts
	d.dfOff = 0
	d.dfCounter = 1
	d.dfNext = next
	return d.dfStep(t)
}

func (d *hashDRBG) dfStep(t *task.Task) status.Code {
	d.hdr[0] = d.dfCounter
	binary.BigEndian.PutUint32(d.hdr[1:5], uint32(d.seedLen*8))
	digest.Create(t, d.alg)
	t.Consume(d.hdr[:5])
	for _, p := range d.dfParts {
		t.Consume(p)
	}
	t.RunAfter(d.dfCollect)
	t.Produce(d.h)
	return t.Code()
}

func (d *hashDRBG) dfCollect(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	d.dfOff += copy(d.work[d.dfOff:], d.h)
	if d.dfOff < d.seedLen {
		d.dfCounter++
		return d.dfStep(t)
	}
	return d.dfNext(t)
}

// generate runs Hashgen over a copy of V, then updates
// V = V + Hash(0x03 | V) + C + reseed counter.
func (d *hashDRBG) generate(t *task.Task, out []byte) {
	if !d.checkGenerate(t, out) {
		return
	}
	if len(out) == 0 {
		rearm(t, d)
		return
	}
	d.out = out
	d.off = 0
	copy(d.work, d.v)
	d.genStep(t)
}

func (d *hashDRBG) genStep(t *task.Task) status.Code {
	digest.Create(t, d.alg)
	t.Consume(d.work)
	t.RunAfter(d.genCollect)
	t.Produce(d.h)
	return t.Code()
}

func (d *hashDRBG) genCollect(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	d.off += copy(d.out[d.off:], d.h)
	if d.off < len(d.out) {
		arith.AddWord(d.work, 1)
		return d.genStep(t)
	}
	d.hdr[5] = 0x03
	digest.Create(t, d.alg)
	t.Consume(d.hdr[5:6])
	t.Consume(d.v)
	t.RunAfter(d.update)
	t.Produce(d.h)
	return t.Code()
}

func (d *hashDRBG) update(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	arith.AddBE(d.v, d.h)
	arith.AddBE(d.v, d.c)
	binary.BigEndian.PutUint64(d.ctr, d.counter)
	arith.AddBE(d.v, d.ctr)
	d.counter++
	return rearm(t, d)
}
