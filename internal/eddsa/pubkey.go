package eddsa

import (
	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// PublicKeyWorkmemSize returns the workmem CreatePublicKey needs for a key
// on curve.
func PublicKeyWorkmemSize(curve *hsm.Curve) int {
	if s, ok := SchemeFor(curve); ok {
		return s.Hash.DigestSize
	}
	return 0
}

// CreatePublicKey configures t to derive the public key of an Edwards or
// Montgomery private key into pub.
func CreatePublicKey(t *task.Task, priv *ecc.PrivateKey, pub *ecc.PublicKey) {
	if priv == nil || priv.Curve == nil || len(priv.D) != priv.Curve.OpSize {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	switch priv.Curve {
	case hsm.X25519:
		createMontgomery(t, hsm.CmdX25519PointMult, priv, pub)
		return
	case hsm.X448:
		createMontgomery(t, hsm.CmdX448PointMult, priv, pub)
		return
	}
	s, ok := SchemeFor(priv.Curve)
	if !ok {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	mem, ok := t.Carve(task.Layout{s.Hash.DigestSize})
	if !ok {
		return
	}
	secret := mem[0]
	x := make([]byte, s.Curve.OpSize)
	t.Configure(task.Actions{Run: func(t *task.Task) {
		deriveSecret(t, s, priv, secret, x, func(t *task.Task) status.Code {
			clear(secret)
			pub.Curve = priv.Curve
			pub.X, pub.Y = x, nil
			return status.OK
		})
	}})
}

// CreateX25519PublicKey configures t to compute the RFC 7748 public key of
// an X25519 private scalar.
func CreateX25519PublicKey(t *task.Task, priv *ecc.PrivateKey, pub *ecc.PublicKey) {
	if priv == nil || priv.Curve != hsm.X25519 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	CreatePublicKey(t, priv, pub)
}

// CreateX448PublicKey configures t to compute the RFC 7748 public key of
// an X448 private scalar.
func CreateX448PublicKey(t *task.Task, priv *ecc.PrivateKey, pub *ecc.PublicKey) {
	if priv == nil || priv.Curve != hsm.X448 {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	CreatePublicKey(t, priv, pub)
}

func createMontgomery(t *task.Task, cmd hsm.Command, priv *ecc.PrivateKey, pub *ecc.PublicKey) {
	t.Configure(task.Actions{Run: func(t *task.Task) {
		pointMult(t, cmd, priv.Curve, priv.D, func(t *task.Task) status.Code {
			defer t.ReleaseRequest()
			if t.Code() != status.OK {
				return t.Code()
			}
			pub.Curve = priv.Curve
			pub.X = append([]byte(nil), t.Request().Output(0)...)
			pub.Y = nil
			return status.OK
		})
	}})
}
