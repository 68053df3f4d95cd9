package crypto

import (
	stdcrypto "crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	stdrsa "crypto/rsa"
	"encoding/pem"
	"fmt"
	"math/big"

	"go.step.sm/crypto/pemutil"
	"go.step.sm/crypto/x25519"

	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/sig"
)

// StdPublicKey converts a verification key to its standard library form.
// Ed448 keys have no standard library type.
func StdPublicKey(pub *sig.PublicKey) (stdcrypto.PublicKey, error) {
	switch {
	case pub.RSA != nil:
		return &stdrsa.PublicKey{
			N: new(big.Int).SetBytes(pub.RSA.N),
			E: int(new(big.Int).SetBytes(pub.RSA.E).Int64()),
		}, nil
	case pub.EC == nil:
	case pub.EC.Curve.Kind == hsm.Weierstrass:
		return &ecdsa.PublicKey{
			Curve: pub.EC.Curve.Elliptic(),
			X:     new(big.Int).SetBytes(pub.EC.X),
			Y:     new(big.Int).SetBytes(pub.EC.Y),
		}, nil
	case pub.EC.Curve == hsm.Ed25519:
		return ed25519.PublicKey(pub.EC.X), nil
	case pub.EC.Curve == hsm.X25519:
		return x25519.PublicKey(pub.EC.X), nil
	}
	return nil, fmt.Errorf("export public key: %w", ErrUnsupportedAlgorithm)
}

// MarshalPublicKeyPEM encodes a verification key as a PKIX "PUBLIC KEY"
// block.
func MarshalPublicKeyPEM(pub *sig.PublicKey) ([]byte, error) {
	k, err := StdPublicKey(pub)
	if err != nil {
		return nil, err
	}
	block, err := pemutil.Serialize(k)
	if err != nil {
		return nil, fmt.Errorf("serialize public key: %w", err)
	}
	return pem.EncodeToMemory(block), nil
}

// MarshalExchangeKeyPEM encodes an X25519 public key.
func MarshalExchangeKeyPEM(pub *ecc.PublicKey) ([]byte, error) {
	return MarshalPublicKeyPEM(&sig.PublicKey{EC: pub})
}

// ParsePublicKeyPEM decodes a PKIX public key for verification with alg.
// hash is the digest the signatures were made with.
func ParsePublicKeyPEM(data []byte, alg sig.Algorithm, hash *hsm.HashAlgorithm) (*sig.PublicKey, error) {
	k, err := pemutil.ParseKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	pub := &sig.PublicKey{Def: alg, Hash: hash}
	switch k := k.(type) {
	case *stdrsa.PublicKey:
		if alg != sig.RSAPSS && alg != sig.RSAPKCS1v15 {
			break
		}
		pub.RSA = &rsa.Key{N: k.N.Bytes(), E: big.NewInt(int64(k.E)).Bytes()}
		if alg == sig.RSAPSS && hash != nil {
			pub.SaltSize = hash.DigestSize
		}
		return pub, nil
	case *ecdsa.PublicKey:
		if alg != sig.ECDSA && alg != sig.ECDSADeterministic {
			break
		}
		curve, ok := hsm.CurveByName(k.Curve.Params().Name)
		if !ok {
			break
		}
		pub.EC = &ecc.PublicKey{
			Curve: curve,
			X:     k.X.FillBytes(make([]byte, curve.OpSize)),
			Y:     k.Y.FillBytes(make([]byte, curve.OpSize)),
		}
		return pub, nil
	case ed25519.PublicKey:
		if alg != sig.Ed25519 && alg != sig.Ed25519ph {
			break
		}
		pub.EC = &ecc.PublicKey{Curve: hsm.Ed25519, X: []byte(k)}
		return pub, nil
	}
	return nil, fmt.Errorf("parse %T for %s: %w", k, alg.Name(), ErrUnsupportedAlgorithm)
}
