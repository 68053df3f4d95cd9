package keystore

import (
	"fmt"
	"time"

	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/sig"
)

// persistedKey is the JSON-serializable form of a KeyEntry.
type persistedKey struct {
	ID        string            `json:"id"`
	Algorithm string            `json:"algorithm"`
	Hash      string            `json:"hash,omitempty"`
	SaltSize  int               `json:"salt_size,omitempty"`
	Status    KeyStatus         `json:"status"`
	Curve     string            `json:"curve,omitempty"`
	Bits      int               `json:"bits,omitempty"`
	RSA       *persistedRSA     `json:"rsa,omitempty"`
	EC        *persistedEC      `json:"ec,omitempty"`
	Isolated  *int              `json:"isolated_index,omitempty"`
	Verifier  string            `json:"verifier"`
	CreatedAt time.Time         `json:"created_at"`
	RotatedAt time.Time         `json:"rotated_at,omitempty"`
	Successor string            `json:"successor,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
}

type persistedRSA struct {
	N    []byte `json:"n"`
	E    []byte `json:"e"`
	D    []byte `json:"d,omitempty"`
	P    []byte `json:"p,omitempty"`
	Q    []byte `json:"q,omitempty"`
	DP   []byte `json:"dp,omitempty"`
	DQ   []byte `json:"dq,omitempty"`
	QInv []byte `json:"qinv,omitempty"`
}

// persistedEC holds the private scalar, if any, and the public encoding.
type persistedEC struct {
	Curve string `json:"curve"`
	D     []byte `json:"d,omitempty"`
	X     []byte `json:"x"`
	Y     []byte `json:"y,omitempty"`
}

func encodeEntry(e *KeyEntry) (persistedKey, error) {
	if e.Key == nil || e.Public == nil {
		return persistedKey{}, fmt.Errorf("key %s: missing key material", e.ID)
	}
	pk := persistedKey{
		ID:        e.ID,
		Algorithm: e.Key.Def.Name(),
		SaltSize:  e.Key.SaltSize,
		Status:    e.Status,
		Curve:     e.Curve,
		Bits:      e.Bits,
		Verifier:  e.Public.Def.Name(),
		CreatedAt: e.CreatedAt,
		RotatedAt: e.RotatedAt,
		Successor: e.Successor,
		Labels:    e.Labels,
	}
	if e.Key.Hash != nil {
		pk.Hash = e.Key.Hash.Name
	}
	switch {
	case e.Key.RSA != nil:
		k := e.Key.RSA
		pk.RSA = &persistedRSA{N: k.N, E: k.E, D: k.D, P: k.P, Q: k.Q, DP: k.DP, DQ: k.DQ, QInv: k.QInv}
	case e.Key.EC != nil:
		pk.EC = &persistedEC{Curve: e.Key.EC.Curve.Name, D: e.Key.EC.D, X: e.Public.EC.X, Y: e.Public.EC.Y}
	default:
		idx := e.Key.IK.Index
		pk.Isolated = &idx
		pk.EC = &persistedEC{Curve: e.Public.EC.Curve.Name, X: e.Public.EC.X, Y: e.Public.EC.Y}
	}
	return pk, nil
}

func decodeEntry(pk persistedKey) (*KeyEntry, error) {
	alg, ok := sig.Lookup(pk.Algorithm)
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q", pk.Algorithm)
	}
	verifier, ok := sig.Lookup(pk.Verifier)
	if !ok {
		return nil, fmt.Errorf("unknown verifier %q", pk.Verifier)
	}
	key := &sig.PrivateKey{Def: alg, SaltSize: pk.SaltSize}
	if pk.Hash != "" {
		if key.Hash, ok = hsm.HashByName(pk.Hash); !ok {
			return nil, fmt.Errorf("unknown hash %q", pk.Hash)
		}
	}
	pub := &sig.PublicKey{Def: verifier, Hash: key.Hash, SaltSize: key.SaltSize}

	switch {
	case pk.RSA != nil:
		r := pk.RSA
		key.RSA = &rsa.Key{N: r.N, E: r.E, D: r.D, P: r.P, Q: r.Q, DP: r.DP, DQ: r.DQ, QInv: r.QInv}
		pub.RSA = key.RSA.Public()
	case pk.EC != nil:
		curve, ok := hsm.CurveByName(pk.EC.Curve)
		if !ok {
			return nil, fmt.Errorf("unknown curve %q", pk.EC.Curve)
		}
		pub.EC = &ecc.PublicKey{Curve: curve, X: pk.EC.X, Y: pk.EC.Y}
		if pk.Isolated != nil {
			key.IK = ecc.IsolatedKey{Index: *pk.Isolated}
		} else {
			key.EC = &ecc.PrivateKey{Curve: curve, D: pk.EC.D}
		}
	default:
		return nil, fmt.Errorf("no key material")
	}

	return &KeyEntry{
		ID:        pk.ID,
		Status:    pk.Status,
		Key:       key,
		Public:    pub,
		Curve:     pk.Curve,
		Bits:      pk.Bits,
		CreatedAt: pk.CreatedAt,
		RotatedAt: pk.RotatedAt,
		Successor: pk.Successor,
		Labels:    pk.Labels,
	}, nil
}
