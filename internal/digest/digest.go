// Package digest adapts the hash engine to the task model.
package digest

import (
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// Create configures t to hash the data it consumes with alg. Produce writes
// the digest; PartialRun checkpoints the hash state so more data can follow.
func Create(t *task.Task, alg *hsm.HashAlgorithm) {
	if alg == nil {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	t.SetHash(alg.New())
	t.Configure(Actions())
}

// Actions returns the hash actions. Algorithms that wrap a hash, like HMAC,
// start from these and override what they need.
func Actions() task.Actions {
	return task.Actions{
		Consume:    consume,
		Produce:    Produce,
		PartialRun: partialRun,
	}
}

func consume(t *task.Task, data []byte) {
	t.Hash().Feed(data)
}

// Produce finalizes the running hash into out. The task stays
// HardwareProcessing until the next Status or Wait.
func Produce(t *task.Task, out []byte) {
	h := t.Hash()
	if len(out) < h.Algorithm().DigestSize {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	if code := h.Digest(out); code != status.OK {
		t.MarkFinal(code)
		return
	}
	t.Complete()
}

func partialRun(t *task.Task) {
	h := t.Hash()
	state, code := h.SaveState()
	if code == status.OK {
		code = h.ResumeState(state)
	}
	if code != status.OK {
		t.MarkFinal(code)
		return
	}
	a := t.Actions()
	a.Status = ready
	a.Wait = ready
	t.SetActions(a)
}

func ready(*task.Task) status.Code { return status.Ready }

// Sum hashes the concatenation of parts directly on the hash engine. It is
// used for short internal hashes that do not need their own task step.
func Sum(alg *hsm.HashAlgorithm, out []byte, parts ...[]byte) status.Code {
	h := alg.New()
	for _, p := range parts {
		h.Feed(p)
	}
	return h.Digest(out)
}

// CreateThen configures t to hash the data it consumes with alg. Run writes
// the digest to out and continues with next.
func CreateThen(t *task.Task, alg *hsm.HashAlgorithm, out []byte, next task.Continuation) {
	Create(t, alg)
	if t.Code() != status.Ready {
		return
	}
	a := Actions()
	a.Produce = nil
	a.Run = func(t *task.Task) {
		t.RunAfter(next)
		Produce(t, out)
	}
	t.Configure(a)
}

// AcceptDigest configures t to take a digest computed elsewhere. Consumed
// data is collected into out; Run checks that exactly one alg digest was
// consumed and continues with next.
func AcceptDigest(t *task.Task, alg *hsm.HashAlgorithm, out []byte, next task.Continuation) {
	if alg == nil {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return
	}
	if len(out) < alg.DigestSize {
		t.MarkFinal(status.ErrWorkmemBufferTooSmall)
		return
	}
	total := 0
	t.Configure(task.Actions{
		Consume: func(t *task.Task, data []byte) {
			if total < len(out) {
				copy(out[total:], data)
			}
			total += len(data)
		},
		Run: func(t *task.Task) {
			switch {
			case total < alg.DigestSize:
				t.MarkFinal(status.ErrInputBufferTooSmall)
			case total > alg.DigestSize:
				t.MarkFinal(status.ErrTooBig)
			default:
				t.RunAfter(next)
				t.Complete()
			}
		},
	})
}
