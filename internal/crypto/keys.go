package crypto

import (
	"context"
	"fmt"

	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/eddsa"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/rsakeygen"
	"github.com/glinharesb/sicrypto/internal/sig"
	"github.com/glinharesb/sicrypto/internal/task"
)

// DefaultRSABits is the modulus size used when KeySpec.Bits is zero.
const DefaultRSABits = 2048

var rsaExponent = []byte{0x01, 0x00, 0x01}

// KeySpec describes a signing key to generate.
type KeySpec struct {
	// Algorithm is a sig algorithm name, e.g. "ECDSA" or "RSA-PSS".
	Algorithm string
	// Curve selects the ECDSA curve; P-256 when empty.
	Curve string
	// Hash overrides the algorithm's default hash.
	Hash string
	// Bits is the RSA modulus size.
	Bits int
	// SaltSize is the RSA-PSS salt length; the digest size when zero.
	SaltSize int
	// Index is the isolated key slot.
	Index int
}

// GenerateKey creates a signing key as described by spec.
func (e *Engine) GenerateKey(ctx context.Context, spec KeySpec) (*sig.PrivateKey, error) {
	alg, ok := sig.Lookup(spec.Algorithm)
	if !ok {
		return nil, fmt.Errorf("generate key %q: %w", spec.Algorithm, ErrUnsupportedAlgorithm)
	}
	key := &sig.PrivateKey{Def: alg}

	switch alg {
	case sig.ECDSA, sig.ECDSADeterministic:
		name := spec.Curve
		if name == "" {
			name = hsm.P256.Name
		}
		curve, ok := hsm.CurveByName(name)
		if !ok || curve.Kind != hsm.Weierstrass {
			return nil, fmt.Errorf("generate key: curve %q: %w", name, ErrUnsupportedAlgorithm)
		}
		key.Hash = curveHash(curve)
		k, err := e.generateEC(ctx, curve)
		if err != nil {
			return nil, err
		}
		key.EC = k
	case sig.Ed25519, sig.Ed25519ph, sig.Ed448:
		curve := hsm.Ed25519
		if alg == sig.Ed448 {
			curve = hsm.Ed448
		}
		if alg == sig.Ed25519ph {
			key.Hash = hsm.SHA512
		}
		k, err := e.generateEC(ctx, curve)
		if err != nil {
			return nil, err
		}
		key.EC = k
		return key, nil
	case sig.RSAPSS, sig.RSAPKCS1v15:
		bits := spec.Bits
		if bits == 0 {
			bits = DefaultRSABits
		}
		k, err := e.GenerateRSAKey(ctx, bits)
		if err != nil {
			return nil, err
		}
		key.RSA = k
		key.Hash = hsm.SHA256
	case sig.IsolatedECDSA:
		if spec.Index < 0 || spec.Index > 255 {
			return nil, fmt.Errorf("isolated key index %d: %w", spec.Index, ErrUnsupportedAlgorithm)
		}
		key.IK = ecc.IsolatedKey{Index: spec.Index}
		key.Hash = hsm.SHA256
	}

	if spec.Hash != "" {
		h, ok := hsm.HashByName(spec.Hash)
		if !ok {
			return nil, fmt.Errorf("generate key: hash %q: %w", spec.Hash, ErrUnsupportedAlgorithm)
		}
		key.Hash = h
	}
	if alg == sig.RSAPSS {
		key.SaltSize = spec.SaltSize
		if key.SaltSize == 0 {
			key.SaltSize = key.Hash.DigestSize
		}
	}
	return key, nil
}

func curveHash(c *hsm.Curve) *hsm.HashAlgorithm {
	switch c {
	case hsm.P224:
		return hsm.SHA224
	case hsm.P384:
		return hsm.SHA384
	case hsm.P521:
		return hsm.SHA512
	}
	return hsm.SHA256
}

func (e *Engine) generateEC(ctx context.Context, curve *hsm.Curve) (*ecc.PrivateKey, error) {
	k := &ecc.PrivateKey{}
	err := e.exec(ctx, "generate "+curve.Name+" key", 0, func(t *task.Task) {
		ecc.CreateGeneratePrivateKey(t, curve, k)
	}, run)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// GenerateRSAKey creates a CRT RSA key with a bits sized modulus and public
// exponent 65537.
func (e *Engine) GenerateRSAKey(ctx context.Context, bits int) (*rsa.Key, error) {
	if bits%16 != 0 {
		return nil, fmt.Errorf("rsa modulus of %d bits: %w", bits, ErrUnsupportedAlgorithm)
	}
	size := bits / 8
	key := &rsa.Key{}
	err := e.exec(ctx, "generate rsa key", rsakeygen.GeneratePrivateKeyWorkmemSize(size), func(t *task.Task) {
		rsakeygen.CreateGeneratePrivateKey(t, rsaExponent, size, true, key)
	}, run)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// PublicKey derives the verification key of key.
func (e *Engine) PublicKey(ctx context.Context, key *sig.PrivateKey) (*sig.PublicKey, error) {
	mem := 0
	if key.EC != nil && key.EC.Curve != nil {
		mem = eddsa.PublicKeyWorkmemSize(key.EC.Curve)
	}
	pub := &sig.PublicKey{}
	err := e.exec(ctx, "public key", mem, func(t *task.Task) {
		sig.CreatePublicKey(t, key, pub)
	}, run)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// GenerateExchangeKey creates an X25519 or X448 key pair.
func (e *Engine) GenerateExchangeKey(ctx context.Context, curve *hsm.Curve) (*ecc.PrivateKey, *ecc.PublicKey, error) {
	if curve != hsm.X25519 && curve != hsm.X448 {
		return nil, nil, fmt.Errorf("exchange key: %w", ErrUnsupportedAlgorithm)
	}
	priv, err := e.generateEC(ctx, curve)
	if err != nil {
		return nil, nil, err
	}
	pub := &ecc.PublicKey{}
	err = e.exec(ctx, "exchange public key", 0, func(t *task.Task) {
		eddsa.CreatePublicKey(t, priv, pub)
	}, run)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}
