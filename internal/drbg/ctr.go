package drbg

import (
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

const (
	blockSize = 16
	// ctrChunk is the most keystream produced per engine step.
	ctrChunk = 256
)

// CTRWorkmemSize returns the workmem CreateCTR needs for an AES key of
// keySize bytes.
func CTRWorkmemSize(keySize int) int {
	return 2*keySize + 2*blockSize
}

type ctrDRBG struct {
	base
	keySize int
	seedLen int

	key, v, temp []byte

	out []byte
	off int
}

// CreateCTR configures t as a CTR_DRBG over AES with a key of 16, 24 or 32
// bytes, without derivation function. Entropy input for instantiate and
// reseed must be exactly keySize+16 bytes.
func CreateCTR(t *task.Task, keySize int) {
	switch keySize {
	case 16, 24, 32:
	default:
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	seedLen := keySize + blockSize
	mem, ok := t.Carve(task.Layout{keySize, blockSize, seedLen})
	if !ok {
		return
	}
	d := &ctrDRBG{keySize: keySize, seedLen: seedLen, key: mem[0], v: mem[1], temp: mem[2]}
	t.SetParams(d)
	rearm(t, d)
}

func (d *ctrDRBG) actions() task.Actions {
	if d.st != Instantiated {
		return task.Actions{Consume: d.consume, Run: d.instantiate}
	}
	return task.Actions{Consume: d.consume, Run: d.reseed, Produce: d.generate}
}

func (d *ctrDRBG) checkInput(t *task.Task, sz int) bool {
	if sz < d.seedLen {
		t.MarkFinal(status.ErrInputBufferTooSmall)
		return false
	}
	if sz > d.seedLen {
		t.MarkFinal(status.ErrTooBig)
		return false
	}
	return true
}

func (d *ctrDRBG) instantiate(t *task.Task) {
	input, sz := d.takeInput()
	if !d.checkInput(t, sz) {
		return
	}
	d.st = Instantiating
	clear(d.key)
	clear(d.v)
	d.seed(t, input)
}

func (d *ctrDRBG) reseed(t *task.Task) {
	input, sz := d.takeInput()
	if !d.checkInput(t, sz) {
		return
	}
	t.Logger().Debug("ctr drbg reseed", "counter", d.counter)
	d.seed(t, input)
}

func (d *ctrDRBG) seed(t *task.Task, input [][]byte) {
	clear(d.temp)
	off := 0
	for _, p := range input {
		off += copy(d.temp[off:], p)
	}
	if !d.update(t) {
		return
	}
	t.Complete()
	t.RunAfter(func(t *task.Task) status.Code {
		if t.Code() != status.OK {
			return t.Code()
		}
		d.counter = 1
		d.st = Instantiated
		return rearm(t, d)
	})
}

// update replaces (Key, V) with the CTR keystream XORed with the provided
// data, which the caller leaves in temp.
func (d *ctrDRBG) update(t *task.Task) bool {
	blk, code := hsm.NewAES(d.key)
	if code == status.OK {
		code = blk.CTR(d.v, d.temp, d.temp)
	}
	if code != status.OK {
		t.MarkFinal(code)
		return false
	}
	copy(d.key, d.temp[:d.keySize])
	copy(d.v, d.temp[d.keySize:])
	return true
}

func (d *ctrDRBG) generate(t *task.Task, out []byte) {
	if !d.checkGenerate(t, out) {
		return
	}
	if len(out) == 0 {
		rearm(t, d)
		return
	}
	d.out = out
	d.off = 0
	t.Complete()
	t.RunAfter(d.genChunk)
}

// genChunk encrypts zero blocks into the next chunk of output.
func (d *ctrDRBG) genChunk(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	if d.off >= len(d.out) {
		clear(d.temp)
		if !d.update(t) {
			return t.Code()
		}
		d.counter++
		return rearm(t, d)
	}
	chunk := d.out[d.off:min(d.off+ctrChunk, len(d.out))]
	clear(chunk)
	blk, code := hsm.NewAES(d.key)
	if code == status.OK {
		code = blk.CTR(d.v, chunk, chunk)
	}
	if code != status.OK {
		return t.MarkFinal(code)
	}
	d.off += len(chunk)
	t.Complete()
	t.RunAfter(d.genChunk)
	return t.Code()
}
