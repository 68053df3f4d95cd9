package arith

import (
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// CoprimeWorkmemSize returns the workmem CreateCoprimeCheck needs for
// operands of the given sizes.
func CoprimeWorkmemSize(asz, bsz int) int {
	return min(asz, bsz)
}

type coprime struct {
	m []byte
	x []byte
}

// CreateCoprimeCheck configures t to test whether gcd(a, b) = 1. The task
// finishes with OK when the operands are coprime and ErrNotInvertible when
// they are not. One operand must be odd; it becomes the modulus of an
// inversion on the engine, preceded by a reduction of the other operand
// when that one is longer.
func CreateCoprimeCheck(t *task.Task, a, b []byte) {
	a, b = TrimLeadingZeros(a), TrimLeadingZeros(b)
	if len(a) == 0 || len(b) == 0 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	c := &coprime{}
	aOdd, bOdd := a[len(a)-1]&1 == 1, b[len(b)-1]&1 == 1
	switch {
	case !aOdd && !bOdd:
		// both even
		t.Configure(task.Actions{Run: func(t *task.Task) { t.MarkFinal(status.ErrNotInvertible) }})
		return
	case aOdd && (!bOdd || len(a) < len(b)):
		c.m, c.x = a, b
	default:
		c.m, c.x = b, a
	}
	if len(c.x) > len(c.m) && !t.RequireWorkmem(len(c.m)) {
		return
	}
	t.Configure(task.Actions{Run: c.run})
}

func (c *coprime) run(t *task.Task) {
	if IsOne(c.m) {
		t.Complete()
		return
	}
	if len(c.x) <= len(c.m) {
		c.invert(t)
		return
	}
	req, ok := t.Acquire(hsm.CmdModReduce)
	if !ok {
		return
	}
	in, ok := t.Inputs(req, len(c.m), len(c.x))
	if !ok {
		return
	}
	in[0].Write(c.m)
	in[1].Write(c.x)
	t.RunAfter(c.reduced)
	t.Submit(req)
}

func (c *coprime) reduced(t *task.Task) status.Code {
	if t.Code() != status.OK {
		t.ReleaseRequest()
		return t.Code()
	}
	x := t.Workmem()[:len(c.m)]
	copy(x, t.Request().Output(0))
	t.ReleaseRequest()
	c.x = x
	c.invert(t)
	return t.Code()
}

func (c *coprime) invert(t *task.Task) {
	if IsZero(c.x) {
		t.MarkFinal(status.ErrNotInvertible)
		return
	}
	req, ok := t.Acquire(hsm.CmdModInverse)
	if !ok {
		return
	}
	in, ok := t.Inputs(req, len(c.m), len(c.x))
	if !ok {
		return
	}
	in[0].Write(c.m)
	in[1].Write(c.x)
	t.RunAfter(func(t *task.Task) status.Code {
		t.ReleaseRequest()
		return t.Code()
	})
	t.Submit(req)
}
