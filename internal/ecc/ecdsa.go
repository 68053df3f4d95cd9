package ecc

import (
	"github.com/glinharesb/sicrypto/internal/arith"
	"github.com/glinharesb/sicrypto/internal/digest"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/mac"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// MaxSignAttempts bounds the nonces tried by one signature. The engine
// rejects a nonce when r or s comes out zero or k is not invertible.
const MaxSignAttempts = 255

// SignWorkmemSize returns the workmem an ECDSA signature needs.
func SignWorkmemSize(alg *hsm.HashAlgorithm, curve *hsm.Curve, deterministic bool) int {
	return signLayout(alg, curve, deterministic).Size()
}

// VerifyWorkmemSize returns the workmem an ECDSA verification needs.
func VerifyWorkmemSize(alg *hsm.HashAlgorithm) int {
	return alg.DigestSize
}

// SignatureSize is the size of an encoded r || s signature on curve.
func SignatureSize(curve *hsm.Curve) int {
	return 2 * curve.OpSize
}

// signLayout carves the digest and the nonce. Deterministic signatures put
// the HMAC subtask's region first, since it works from the start of
// workmem, and keep K and V of the nonce generator last.
func signLayout(alg *hsm.HashAlgorithm, curve *hsm.Curve, deterministic bool) task.Layout {
	if !deterministic {
		return task.Layout{alg.DigestSize, curve.OpSize}
	}
	return task.Layout{mac.WorkmemSize(alg), alg.DigestSize, curve.OpSize, alg.DigestSize, alg.DigestSize}
}

type signer struct {
	alg      *hsm.HashAlgorithm
	key      *PrivateKey
	sig      []byte
	attempts int

	h, k []byte
	det  *rfc6979
}

func newSigner(t *task.Task, alg *hsm.HashAlgorithm, key *PrivateKey, sig []byte, deterministic bool) *signer {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil
	}
	if !validScalar(key) {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	if len(sig) < SignatureSize(key.Curve) {
		t.MarkFinal(status.ErrOutputBufferTooSmall)
		return nil
	}
	mem, ok := t.Carve(signLayout(alg, key.Curve, deterministic))
	if !ok {
		return nil
	}
	s := &signer{alg: alg, key: key, sig: sig}
	if !deterministic {
		s.h, s.k = mem[0], mem[1]
		return s
	}
	s.h, s.k = mem[1], mem[2]
	s.det = &rfc6979{s: s, bigK: mem[3], v: mem[4]}
	return s
}

// CreateSign configures t to sign the message it consumes with a random
// nonce. Run writes r || s to sig.
func CreateSign(t *task.Task, alg *hsm.HashAlgorithm, key *PrivateKey, sig []byte) {
	if s := newSigner(t, alg, key, sig, false); s != nil {
		digest.CreateThen(t, alg, s.h, s.start)
	}
}

// CreateSignDigest signs a digest computed by the caller with a random
// nonce.
func CreateSignDigest(t *task.Task, alg *hsm.HashAlgorithm, key *PrivateKey, sig []byte) {
	if s := newSigner(t, alg, key, sig, false); s != nil {
		digest.AcceptDigest(t, alg, s.h, s.start)
	}
}

// CreateSignDeterministic signs the consumed message with the nonce
// derivation of RFC 6979.
func CreateSignDeterministic(t *task.Task, alg *hsm.HashAlgorithm, key *PrivateKey, sig []byte) {
	if s := newSigner(t, alg, key, sig, true); s != nil {
		digest.CreateThen(t, alg, s.h, s.start)
	}
}

// CreateSignDigestDeterministic signs a caller digest with the nonce
// derivation of RFC 6979.
func CreateSignDigestDeterministic(t *task.Task, alg *hsm.HashAlgorithm, key *PrivateKey, sig []byte) {
	if s := newSigner(t, alg, key, sig, true); s != nil {
		digest.AcceptDigest(t, alg, s.h, s.start)
	}
}

func (s *signer) start(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	return s.nonce(t)
}

func (s *signer) nonce(t *task.Task) status.Code {
	if s.det != nil {
		return s.det.start(t)
	}
	t.RunAfter(s.generate)
	arith.CreateRandomInRange(t, s.key.Curve.Order, s.k)
	t.Run()
	return t.Code()
}

// generate runs the signature with the nonce in s.k.
func (s *signer) generate(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	req, ok := t.Acquire(hsm.CmdECDSAGenerate)
	if !ok {
		return t.Code()
	}
	in, ok := t.CurveInputs(req, s.key.Curve)
	if !ok {
		return t.Code()
	}
	in[0].Write(s.key.D)
	in[1].Write(s.k)
	in[2].Write(digestOperand(s.h, s.key.Curve.OpSize))
	t.RunAfter(s.finish)
	t.Submit(req)
	return t.Code()
}

func (s *signer) finish(t *task.Task) status.Code {
	code := t.Code()
	if code == status.ErrInvalidSignature || code == status.ErrNotInvertible {
		t.ReleaseRequest()
		s.attempts++
		if s.attempts >= MaxSignAttempts {
			return t.MarkFinal(status.ErrTooManyAttempts)
		}
		t.Logger().Debug("ecdsa nonce rejected", "attempts", s.attempts, "status", code.String())
		return s.nonce(t)
	}
	defer t.ReleaseRequest()
	if code != status.OK {
		return code
	}
	writeSignature(s.sig, t.Request(), s.key.Curve.OpSize)
	clear(s.k)
	return status.OK
}

func writeSignature(sig []byte, req hsm.Request, opsz int) {
	copy(sig[:opsz], req.Output(0))
	copy(sig[opsz:2*opsz], req.Output(1))
}

// digestOperand fits a digest to the operand width: shorter digests are
// left padded by the slot, longer ones keep their leftmost bytes.
func digestOperand(h []byte, opsz int) []byte {
	if len(h) > opsz {
		return h[:opsz]
	}
	return h
}

type verifier struct {
	key       *PublicKey
	signature []byte
	h         []byte
}

func newVerifier(t *task.Task, alg *hsm.HashAlgorithm, key *PublicKey, signature []byte) *verifier {
	if alg == nil || alg == hsm.SHAKE256 {
		t.MarkFinal(status.ErrUnsupportedHashAlg)
		return nil
	}
	if !validPoint(key) {
		t.MarkFinal(status.ErrInvalidArg)
		return nil
	}
	if len(signature) != SignatureSize(key.Curve) {
		t.MarkFinal(status.ErrInvalidSignature)
		return nil
	}
	mem, ok := t.Carve(task.Layout{alg.DigestSize})
	if !ok {
		return nil
	}
	return &verifier{key: key, signature: signature, h: mem[0]}
}

// CreateVerify configures t to check an r || s signature over the message
// it consumes. Run ends in OK or ErrInvalidSignature.
func CreateVerify(t *task.Task, alg *hsm.HashAlgorithm, key *PublicKey, signature []byte) {
	if v := newVerifier(t, alg, key, signature); v != nil {
		digest.CreateThen(t, alg, v.h, v.verify)
	}
}

// CreateVerifyDigest checks a signature over a digest computed by the
// caller.
func CreateVerifyDigest(t *task.Task, alg *hsm.HashAlgorithm, key *PublicKey, signature []byte) {
	if v := newVerifier(t, alg, key, signature); v != nil {
		digest.AcceptDigest(t, alg, v.h, v.verify)
	}
}

func (v *verifier) verify(t *task.Task) status.Code {
	if t.Code() != status.OK {
		return t.Code()
	}
	req, ok := t.Acquire(hsm.CmdECDSAVerify)
	if !ok {
		return t.Code()
	}
	in, ok := t.CurveInputs(req, v.key.Curve)
	if !ok {
		return t.Code()
	}
	opsz := v.key.Curve.OpSize
	in[0].Write(v.key.X)
	in[1].Write(v.key.Y)
	in[2].Write(v.signature[:opsz])
	in[3].Write(v.signature[opsz:])
	in[4].Write(digestOperand(v.h, opsz))
	t.RunAfter(release)
	t.Submit(req)
	return t.Code()
}

func release(t *task.Task) status.Code {
	t.ReleaseRequest()
	return t.Code()
}
