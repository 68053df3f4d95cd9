// Package ecc implements elliptic curve keys and ECDSA over the Weierstrass
// curves of the engine, including deterministic nonces (RFC 6979) and
// signing with keys held in the engine's isolated key store.
package ecc

import (
	"github.com/glinharesb/sicrypto/internal/arith"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// PrivateKey is a private key on any engine curve. For Weierstrass curves D
// is the big-endian scalar; for Edwards curves it is the RFC 8032 seed and
// for Montgomery curves the RFC 7748 scalar.
type PrivateKey struct {
	Curve *hsm.Curve
	D     []byte
}

// PublicKey is a public key on any engine curve. Weierstrass keys carry
// both affine coordinates; Edwards and Montgomery keys carry their
// encoding in X and leave Y nil.
type PublicKey struct {
	Curve *hsm.Curve
	X, Y  []byte
}

// IsolatedKey names a P-256 key slot that never leaves the engine.
type IsolatedKey struct {
	Index int
}

// CreateGeneratePrivateKey configures t to generate a private key on
// curve into key. Weierstrass scalars are drawn uniformly from
// [1, order-1]; other curves take OpSize random bytes. It needs no workmem.
func CreateGeneratePrivateKey(t *task.Task, curve *hsm.Curve, key *PrivateKey) {
	if curve == nil {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	key.Curve = curve
	key.D = make([]byte, curve.OpSize)
	if curve.Kind == hsm.Weierstrass {
		arith.CreateRandomInRange(t, curve.Order, key.D)
		return
	}
	t.Configure(task.Actions{Run: func(t *task.Task) {
		t.AwaitRandom(key.D)
	}})
}

type genPubKey struct {
	priv *PrivateKey
	pub  *PublicKey
}

// CreateGeneratePublicKey configures t to compute the public key of a
// Weierstrass private key. Edwards and Montgomery keys are handled by the
// eddsa package.
func CreateGeneratePublicKey(t *task.Task, priv *PrivateKey, pub *PublicKey) {
	if !validScalar(priv) {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	g := &genPubKey{priv: priv, pub: pub}
	t.Configure(task.Actions{Run: g.run})
}

func (g *genPubKey) run(t *task.Task) {
	req, ok := t.Acquire(hsm.CmdECPointMult)
	if !ok {
		return
	}
	in, ok := t.CurveInputs(req, g.priv.Curve)
	if !ok {
		return
	}
	params := g.priv.Curve.Params()
	in[0].Write(g.priv.D)
	in[1].Write(params.Gx.Bytes())
	in[2].Write(params.Gy.Bytes())
	t.RunAfter(g.store)
	t.Submit(req)
}

func (g *genPubKey) store(t *task.Task) status.Code {
	defer t.ReleaseRequest()
	if t.Code() != status.OK {
		return t.Code()
	}
	req := t.Request()
	g.pub.Curve = g.priv.Curve
	g.pub.X = clone(req.Output(0))
	g.pub.Y = clone(req.Output(1))
	return status.OK
}

func validScalar(k *PrivateKey) bool {
	return k != nil && k.Curve != nil && k.Curve.Kind == hsm.Weierstrass &&
		len(k.D) > 0 && len(k.D) <= k.Curve.OpSize
}

func validPoint(k *PublicKey) bool {
	return k != nil && k.Curve != nil && k.Curve.Kind == hsm.Weierstrass &&
		len(k.X) <= k.Curve.OpSize && len(k.Y) <= k.Curve.OpSize
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
