// Package mac implements HMAC on top of the hash adapter.
package mac

import (
	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

const (
	ipad = 0x36
	opad = 0x5C
)

// WorkmemSize returns the workmem an HMAC with alg needs.
func WorkmemSize(alg *hsm.HashAlgorithm) int {
	return alg.BlockSize + alg.DigestSize
}

type hmac struct {
	alg   *hsm.HashAlgorithm
	pad   []byte
	inner []byte
	out   []byte
}

// CreateHMAC configures t to compute HMAC(key, message) where the message
// is consumed and the tag is produced. Workmem holds the padded key block
// followed by the inner digest.
func CreateHMAC(t *task.Task, alg *hsm.HashAlgorithm, key []byte) {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	mem, ok := t.Carve(task.Layout{alg.BlockSize, alg.DigestSize})
	if !ok {
		return
	}
	h := &hmac{alg: alg, pad: mem[0], inner: mem[1]}

	if len(key) > alg.BlockSize {
		if code := digest.Sum(alg, h.pad, key); code != status.OK {
			t.MarkFinal(code)
			return
		}
		clear(h.pad[alg.DigestSize:])
	} else {
		copy(h.pad, key)
		clear(h.pad[len(key):])
	}
	for i := range h.pad {
		h.pad[i] ^= ipad
	}

	digest.Create(t, alg)
	t.Consume(h.pad)
	a := digest.Actions()
	a.Produce = h.produce
	t.SetActions(a)
	t.SetParams(h)
}

func (h *hmac) produce(t *task.Task, out []byte) {
	if len(out) < h.alg.DigestSize {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	h.out = out
	t.RunAfter(h.outer)
	digest.Produce(t, h.inner)
}

func (h *hmac) outer(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	for i := range h.pad {
		h.pad[i] ^= ipad ^ opad
	}
	digest.Create(t, h.alg)
	t.Consume(h.pad)
	t.Consume(h.inner)
	t.Produce(h.out)
	return t.Code()
}
