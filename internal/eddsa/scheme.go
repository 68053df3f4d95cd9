// Package eddsa implements the Edwards curve signatures of RFC 8032
// (Ed25519, Ed25519ph and Ed448) and the public keys of the Montgomery
// curves of RFC 7748. Point multiplication and verification run on the
// engine; the scalar arithmetic of signing runs on the host.
package eddsa

import (
	"math/big"

	"github.com/glinharesb/sicrypto/internal/hsm"
)

// Scheme is one EdDSA variant.
type Scheme struct {
	Name  string
	Curve *hsm.Curve
	// Hash derives the secret scalar and the challenge.
	Hash *hsm.HashAlgorithm
	// Prehash, when set, hashes the message before signing.
	Prehash *hsm.HashAlgorithm

	dom       []byte
	pointMult hsm.Command
	verify    hsm.Command
	clamp     func(s []byte)
	order     *big.Int
}

var (
	Ed25519 = &Scheme{
		Name:      "Ed25519",
		Curve:     hsm.Ed25519,
		Hash:      hsm.SHA512,
		pointMult: hsm.CmdEd25519PointMult,
		verify:    hsm.CmdEd25519Verify,
		clamp:     clamp25519,
	}
	// Ed25519ph signs the SHA-512 digest of the message with dom2(1, "").
	Ed25519ph = &Scheme{
		Name:      "Ed25519ph",
		Curve:     hsm.Ed25519,
		Hash:      hsm.SHA512,
		Prehash:   hsm.SHA512,
		dom:       append([]byte("SigEd25519 no Ed25519 collisions"), 0x01, 0x00),
		pointMult: hsm.CmdEd25519PointMult,
		verify:    hsm.CmdEd25519Verify,
		clamp:     clamp25519,
	}
	// Ed448 is pure Ed448 with dom4(0, "").
	Ed448 = &Scheme{
		Name:      "Ed448",
		Curve:     hsm.Ed448,
		Hash:      hsm.SHAKE256,
		dom:       append([]byte("SigEd448"), 0x00, 0x00),
		pointMult: hsm.CmdEd448PointMult,
		verify:    hsm.CmdEd448Verify,
		clamp:     clamp448,
	}
)

func init() {
	for _, s := range []*Scheme{Ed25519, Ed25519ph, Ed448} {
		s.order = new(big.Int).SetBytes(s.Curve.Order)
	}
}

// SchemeFor returns the pure scheme of an Edwards curve.
func SchemeFor(curve *hsm.Curve) (*Scheme, bool) {
	switch curve {
	case hsm.Ed25519:
		return Ed25519, true
	case hsm.Ed448:
		return Ed448, true
	}
	return nil, false
}

// SignatureSize is the size of an encoded R || S signature.
func (s *Scheme) SignatureSize() int { return 2 * s.Curve.OpSize }

func clamp25519(s []byte) {
	s[0] &= 0xF8
	s[31] &= 0x7F
	s[31] |= 0x40
}

func clamp448(s []byte) {
	s[0] &= 0xFC
	s[55] |= 0x80
	s[56] = 0
}

// reduce writes the little-endian value in mod the group order to out,
// little-endian.
func (s *Scheme) reduce(in, out []byte) {
	v := leInt(in)
	putLE(v.Mod(v, s.order), out)
}

// mulAdd writes (r + k*a) mod the group order to out. All values are
// little-endian.
func (s *Scheme) mulAdd(r, k, a, out []byte) {
	v := leInt(k)
	v.Mul(v, leInt(a))
	v.Add(v, leInt(r))
	putLE(v.Mod(v, s.order), out)
}

func leInt(b []byte) *big.Int {
	be := make([]byte, len(b))
	for i, c := range b {
		be[len(b)-1-i] = c
	}
	return new(big.Int).SetBytes(be)
}

func putLE(v *big.Int, out []byte) {
	v.FillBytes(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
}
