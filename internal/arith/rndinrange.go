package arith

import (
	"bytes"
	"math/bits"

	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// MaxRangeAttempts bounds the random draws of CreateRandomInRange. Each draw
// is accepted with probability above one half.
const MaxRangeAttempts = 1024

type rndInRange struct {
	n        []byte
	out      []byte
	mask     byte
	attempts int
}

// CreateRandomInRange configures t to write a uniformly random value in
// [1, n-1] to out. n is big-endian, odd, greater than 2 and has a non-zero
// first byte; out has the same length as n. It needs no workmem.
func CreateRandomInRange(t *task.Task, n, out []byte) {
	if len(n) == 0 || n[0] == 0 || n[len(n)-1]&1 == 0 || (len(n) == 1 && n[0] <= 2) {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	if len(out) != len(n) {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return
	}
	r := &rndInRange{
		n:    n,
		out:  out,
		mask: byte(0xFF >> bits.LeadingZeros8(n[0])),
	}
	t.Configure(task.Actions{Run: r.run})
}

func (r *rndInRange) run(t *task.Task) {
	r.attempts = 1
	t.RunAfter(r.check)
	t.AwaitRandom(r.out)
}

// check masks the excess high bits and rejects 0 and values >= n.
func (r *rndInRange) check(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	r.out[0] &= r.mask
	if !IsZero(r.out) && bytes.Compare(r.out, r.n) < 0 {
		return status.OK
	}
	if r.attempts >= MaxRangeAttempts {
		return t.MarkFinal(status.ErrTooManyAttempts)
	}
	r.attempts++
	t.RunAfter(r.check)
	t.AwaitRandom(r.out)
	return t.Code()
}
