package ecc

import (
	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// IsolatedCurve is the curve of every isolated key.
var IsolatedCurve = hsm.P256

// isolatedCommand runs one command against an isolated key slot. The
// session is held from acquisition until the command's result is read,
// and exited on every path.
type isolatedCommand struct {
	cmd   hsm.Command
	index int
	sess  hsm.IsolatedSession
	input []byte
	done  func(req hsm.Request)
}

func (c *isolatedCommand) start(t *task.Task) status.Code {
	sess, code := t.Engine().EnterIsolated()
	if code != status.OK {
		return t.MarkFinal(code)
	}
	c.sess = sess
	req, code := sess.Acquire(c.cmd, c.index)
	if code != status.OK {
		sess.Exit()
		return t.MarkFinal(code)
	}
	if c.input != nil {
		in, ok := t.CurveInputs(req, IsolatedCurve)
		if !ok {
			sess.Exit()
			return t.Code()
		}
		in[0].Write(c.input)
	}
	t.RunAfter(c.finish)
	t.Submit(req)
	return t.Code()
}

func (c *isolatedCommand) finish(t *task.Task) status.Code {
	defer c.sess.Exit()
	defer t.ReleaseRequest()
	if t.Code() != status.OK {
		return t.Code()
	}
	c.done(t.Request())
	return status.OK
}

// IsolatedSignWorkmemSize returns the workmem an isolated key signature
// needs.
func IsolatedSignWorkmemSize(alg *hsm.HashAlgorithm) int {
	return alg.DigestSize
}

func newIsolatedSign(t *task.Task, alg *hsm.HashAlgorithm, key IsolatedKey, sig []byte) (*isolatedCommand, []byte) {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil, nil
	}
	opsz := IsolatedCurve.OpSize
	if len(sig) < 2*opsz {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return nil, nil
	}
	mem, ok := t.Carve(task.Layout{alg.DigestSize})
	if !ok {
		return nil, nil
	}
	h := mem[0]
	c := &isolatedCommand{
		cmd:   hsm.CmdIsolatedECDSASign,
		index: key.Index,
		input: digestOperand(h, opsz),
		done:  func(req hsm.Request) { writeSignature(sig, req, opsz) },
	}
	return c, h
}

// CreateIsolatedSign configures t to sign the message it consumes with the
// isolated key. The engine draws the nonce.
func CreateIsolatedSign(t *task.Task, alg *hsm.HashAlgorithm, key IsolatedKey, sig []byte) {
	if c, h := newIsolatedSign(t, alg, key, sig); c != nil {
		digest.CreateThen(t, alg, h, func(t *task.Task) status.Code {
			if t.Code() != status.OK {
				return t.Code()
			}
			return c.start(t)
		})
	}
}

// CreateIsolatedSignDigest signs a caller digest with the isolated key.
func CreateIsolatedSignDigest(t *task.Task, alg *hsm.HashAlgorithm, key IsolatedKey, sig []byte) {
	if c, h := newIsolatedSign(t, alg, key, sig); c != nil {
		digest.AcceptDigest(t, alg, h, func(t *task.Task) status.Code {
			if t.Code() != status.OK {
				return t.Code()
			}
			return c.start(t)
		})
	}
}

// CreateIsolatedPublicKey configures t to read the public key of an
// isolated key slot into pub.
func CreateIsolatedPublicKey(t *task.Task, key IsolatedKey, pub *PublicKey) {
	c := &isolatedCommand{
		cmd:   hsm.CmdIsolatedPublicKey,
		index: key.Index,
		done: func(req hsm.Request) {
			pub.Curve = IsolatedCurve
			pub.X = clone(req.Output(0))
			pub.Y = clone(req.Output(1))
		},
	}
	t.Configure(task.Actions{Run: func(t *task.Task) { c.start(t) }})
}
