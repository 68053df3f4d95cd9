package eddsa

import (
	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// SignWorkmemSize returns the workmem a signature with s needs.
func SignWorkmemSize(s *Scheme) int {
	return signLayout(s).Size()
}

// VerifyWorkmemSize returns the workmem a verification with s needs.
func VerifyWorkmemSize(s *Scheme) int {
	return verifyLayout(s).Size()
}

// signLayout: secret hash, r hash, challenge hash, public key, prehash.
func signLayout(s *Scheme) task.Layout {
	hs := s.Hash.DigestSize
	return task.Layout{hs, hs, hs, s.Curve.OpSize, prehashSize(s)}
}

// verifyLayout: challenge hash, prehash.
func verifyLayout(s *Scheme) task.Layout {
	return task.Layout{s.Hash.DigestSize, prehashSize(s)}
}

func prehashSize(s *Scheme) int {
	if s.Prehash == nil {
		return 0
	}
	return s.Prehash.DigestSize
}

// message holds the input of a pure scheme, which is hashed twice, or the
// prehash of a prehashed one.
type message struct {
	parts [][]byte
}

func (m *message) consume(_ *task.Task, data []byte) {
	m.parts = append(m.parts, data)
}

// accept configures t to take the message. Pure schemes keep references
// to the consumed buffers, which must stay unchanged until the task ends;
// prehashed schemes hash them as they arrive.
func (m *message) accept(t *task.Task, s *Scheme, ph []byte, next task.Continuation) {
	if s.Prehash != nil {
		m.parts = [][]byte{ph}
		digest.CreateThen(t, s.Prehash, ph, next)
		return
	}
	t.Configure(task.Actions{
		Consume: m.consume,
		Run: func(t *task.Task) {
			t.RunAfter(next)
			t.Complete()
		},
	})
}

// acceptDigest configures t to take a prehash computed by the caller.
func (m *message) acceptDigest(t *task.Task, s *Scheme, ph []byte, next task.Continuation) {
	if s.Prehash == nil {
		t.MarkFinal(status.ErrNotSupported)
		return
	}
	m.parts = [][]byte{ph}
	digest.AcceptDigest(t, s.Prehash, ph, next)
}

// with returns head followed by the message.
func (m *message) with(head ...[]byte) [][]byte {
	return append(head, m.parts...)
}

// hash writes H(parts...) to out and continues with next.
func hash(t *task.Task, alg *hsm.HashAlgorithm, out []byte, next task.Continuation, parts ...[]byte) status.Code {
	t.RunAfter(next)
	digest.Create(t, alg)
	for _, p := range parts {
		t.Consume(p)
	}
	t.Produce(out)
	return t.Code()
}

// pointMult starts scalar*B on the engine. The continuation must release
// the request.
func pointMult(t *task.Task, cmd hsm.Command, curve *hsm.Curve, scalar []byte, next task.Continuation) status.Code {
	req, ok := t.Acquire(cmd)
	if !ok {
		return t.Code()
	}
	in, ok := t.CurveInputs(req, curve)
	if !ok {
		return t.Code()
	}
	in[0].Write(scalar)
	t.RunAfter(next)
	t.Submit(req)
	return t.Code()
}

type signer struct {
	s   *Scheme
	key *ecc.PrivateKey
	sig []byte
	msg message

	secret, rh, kh, pub, ph []byte
}

func newSigner(t *task.Task, s *Scheme, key *ecc.PrivateKey, sig []byte) *signer {
	if s == nil || key == nil || key.Curve != s.Curve || len(key.D) != s.Curve.OpSize {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	if len(sig) < s.SignatureSize() {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return nil
	}
	mem, ok := t.Carve(signLayout(s))
	if !ok {
		return nil
	}
	return &signer{s: s, key: key, sig: sig, secret: mem[0], rh: mem[1], kh: mem[2], pub: mem[3], ph: mem[4]}
}

// CreateSign configures t to sign the message it consumes. Run writes
// R || S to sig.
func CreateSign(t *task.Task, s *Scheme, key *ecc.PrivateKey, sig []byte) {
	if g := newSigner(t, s, key, sig); g != nil {
		g.msg.accept(t, s, g.ph, g.start)
	}
}

// CreateSignDigest signs a prehash computed by the caller. Only prehashed
// schemes support it.
func CreateSignDigest(t *task.Task, s *Scheme, key *ecc.PrivateKey, sig []byte) {
	if g := newSigner(t, s, key, sig); g != nil {
		g.msg.acceptDigest(t, s, g.ph, g.start)
	}
}

func (g *signer) start(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return deriveSecret(t, g.s, g.key, g.secret, g.pub, g.nonce)
}

// deriveSecret hashes the seed into secret, clamps the scalar half and
// computes the public key into pub before continuing with next.
func deriveSecret(t *task.Task, s *Scheme, key *ecc.PrivateKey, secret, pub []byte, next task.Continuation) status.Code {
	b := s.Curve.OpSize
	return hash(t, s.Hash, secret, func(t *task.Task) status.Code {
		if t.Code() != status.OK {
			return t.Code()
		}
		s.clamp(secret[:b])
		return pointMult(t, s.pointMult, s.Curve, secret[:b], func(t *task.Task) status.Code {
			if t.Code() != status.OK {
				t.ReleaseRequest()
				return t.Code()
			}
			copy(pub, t.Request().Output(0))
			t.ReleaseRequest()
			return next(t)
		})
	}, key.D)
}

// nonce computes r = H(dom || prefix || M) and starts R = r*B.
func (g *signer) nonce(t *task.Task) status.Code {
	b := g.s.Curve.OpSize
	return hash(t, g.s.Hash, g.rh, func(t *task.Task) status.Code {
		if t.Code() != status.OK {
			return t.Code()
		}
		g.s.reduce(g.rh, g.rh[:b])
		clear(g.rh[b:])
		return pointMult(t, g.s.pointMult, g.s.Curve, g.rh[:b], g.challenge)
	}, g.msg.with(g.s.dom, g.secret[b:2*b])...)
}

// challenge stores R and computes k = H(dom || R || A || M).
func (g *signer) challenge(t *task.Task) status.Code {
	if t.Code() != status.OK {
		t.ReleaseRequest()
		return t.Code()
	}
	b := g.s.Curve.OpSize
	copy(g.sig[:b], t.Request().Output(0))
	t.ReleaseRequest()
	return hash(t, g.s.Hash, g.kh, g.finish, g.msg.with(g.s.dom, g.sig[:b], g.pub)...)
}

// finish writes S = (r + k*s) mod L.
func (g *signer) finish(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	b := g.s.Curve.OpSize
	g.s.reduce(g.kh, g.kh[:b])
	g.s.mulAdd(g.rh[:b], g.kh[:b], g.secret[:b], g.sig[b:2*b])
	clear(g.secret)
	clear(g.rh)
	return status.OK
}

type verifier struct {
	s         *Scheme
	key       *ecc.PublicKey
	signature []byte
	msg       message

	kh, ph []byte
}

func newVerifier(t *task.Task, s *Scheme, key *ecc.PublicKey, signature []byte) *verifier {
	if s == nil || key == nil || key.Curve != s.Curve || len(key.X) != s.Curve.OpSize {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	if len(signature) != s.SignatureSize() {
		t.MarkFinal(status.ErrInvalidSignature)
		return nil
	}
	mem, ok := t.Carve(verifyLayout(s))
	if !ok {
		return nil
	}
	return &verifier{s: s, key: key, signature: signature, kh: mem[0], ph: mem[1]}
}

// CreateVerify configures t to check an R || S signature over the message
// it consumes. Run ends in OK or ErrInvalidSignature.
func CreateVerify(t *task.Task, s *Scheme, key *ecc.PublicKey, signature []byte) {
	if v := newVerifier(t, s, key, signature); v != nil {
		v.msg.accept(t, s, v.ph, v.start)
	}
}

// CreateVerifyDigest checks a signature over a prehash computed by the
// caller.
func CreateVerifyDigest(t *task.Task, s *Scheme, key *ecc.PublicKey, signature []byte) {
	if v := newVerifier(t, s, key, signature); v != nil {
		v.msg.acceptDigest(t, s, v.ph, v.start)
	}
}

func (v *verifier) start(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	b := v.s.Curve.OpSize
	return hash(t, v.s.Hash, v.kh, v.check, v.msg.with(v.s.dom, v.signature[:b], v.key.X)...)
}

func (v *verifier) check(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	b := v.s.Curve.OpSize
	v.s.reduce(v.kh, v.kh[:b])
	req, ok := t.Acquire(v.s.verify)
	if !ok {
		return t.Code()
	}
	in, ok := t.CurveInputs(req, v.s.Curve)
	if !ok {
		return t.Code()
	}
	in[0].Write(v.kh[:b])
	in[1].Write(v.key.X)
	in[2].Write(v.signature[:b])
	in[3].Write(v.signature[b:])
	t.RunAfter(func(t *task.Task) status.Code {
		t.ReleaseRequest()
		return t.Code()
	})
	t.Submit(req)
	return t.Code()
}
