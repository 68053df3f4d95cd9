package sig

import (
	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/eddsa"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

var (
	ECDSA              Algorithm = ecdsaAlg{}
	ECDSADeterministic Algorithm = ecdsaAlg{deterministic: true}
	Ed25519            Algorithm = eddsaAlg{eddsa.Ed25519}
	Ed25519ph          Algorithm = eddsaAlg{eddsa.Ed25519ph}
	Ed448              Algorithm = eddsaAlg{eddsa.Ed448}
	RSAPSS             Algorithm = rsaAlg{pss: true}
	RSAPKCS1v15        Algorithm = rsaAlg{}
	IsolatedECDSA      Algorithm = isolatedAlg{}
)

type ecdsaAlg struct {
	deterministic bool
}

func (a ecdsaAlg) Name() string {
	if a.deterministic {
		return "ECDSA-deterministic"
	}
	return "ECDSA"
}

func (a ecdsaAlg) Sign(t *task.Task, key *PrivateKey, sig []byte) {
	if a.deterministic {
		ecc.CreateSignDeterministic(t, key.Hash, key.EC, sig)
		return
	}
	ecc.CreateSign(t, key.Hash, key.EC, sig)
}

func (a ecdsaAlg) SignDigest(t *task.Task, key *PrivateKey, sig []byte) {
	if a.deterministic {
		ecc.CreateSignDigestDeterministic(t, key.Hash, key.EC, sig)
		return
	}
	ecc.CreateSignDigest(t, key.Hash, key.EC, sig)
}

func (ecdsaAlg) Verify(t *task.Task, key *PublicKey, signature []byte) {
	ecc.CreateVerify(t, key.Hash, key.EC, signature)
}

func (ecdsaAlg) VerifyDigest(t *task.Task, key *PublicKey, signature []byte) {
	ecc.CreateVerifyDigest(t, key.Hash, key.EC, signature)
}

func (a ecdsaAlg) PublicKey(t *task.Task, key *PrivateKey, pub *PublicKey) {
	if key.EC == nil {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	pub.Def, pub.Hash = a, key.Hash
	pub.EC = &ecc.PublicKey{}
	ecc.CreateGeneratePublicKey(t, key.EC, pub.EC)
}

// OperandSize returns 0 when key holds no EC key.
func (ecdsaAlg) OperandSize(key *PrivateKey) int {
	if key.EC == nil || key.EC.Curve == nil {
		return 0
	}
	return key.EC.Curve.OpSize
}

func (ecdsaAlg) Components() int { return 2 }

func (a ecdsaAlg) SignWorkmemSize(key *PrivateKey) int {
	if key.EC == nil || key.EC.Curve == nil {
		return 0
	}
	return ecc.SignWorkmemSize(key.Hash, key.EC.Curve, a.deterministic)
}

func (ecdsaAlg) VerifyWorkmemSize(key *PublicKey) int {
	return ecc.VerifyWorkmemSize(key.Hash)
}

type eddsaAlg struct {
	scheme *eddsa.Scheme
}

func (a eddsaAlg) Name() string { return a.scheme.Name }

func (a eddsaAlg) Sign(t *task.Task, key *PrivateKey, sig []byte) {
	eddsa.CreateSign(t, a.scheme, key.EC, sig)
}

func (a eddsaAlg) SignDigest(t *task.Task, key *PrivateKey, sig []byte) {
	eddsa.CreateSignDigest(t, a.scheme, key.EC, sig)
}

func (a eddsaAlg) Verify(t *task.Task, key *PublicKey, signature []byte) {
	eddsa.CreateVerify(t, a.scheme, key.EC, signature)
}

func (a eddsaAlg) VerifyDigest(t *task.Task, key *PublicKey, signature []byte) {
	eddsa.CreateVerifyDigest(t, a.scheme, key.EC, signature)
}

func (a eddsaAlg) PublicKey(t *task.Task, key *PrivateKey, pub *PublicKey) {
	pub.Def, pub.Hash = a, key.Hash
	pub.EC = &ecc.PublicKey{}
	eddsa.CreatePublicKey(t, key.EC, pub.EC)
}

func (a eddsaAlg) OperandSize(*PrivateKey) int { return a.scheme.Curve.OpSize }
func (eddsaAlg) Components() int               { return 2 }

func (a eddsaAlg) SignWorkmemSize(*PrivateKey) int  { return eddsa.SignWorkmemSize(a.scheme) }
func (a eddsaAlg) VerifyWorkmemSize(*PublicKey) int { return eddsa.VerifyWorkmemSize(a.scheme) }

type rsaAlg struct {
	pss bool
}

func (a rsaAlg) Name() string {
	if a.pss {
		return "RSA-PSS"
	}
	return "RSA-PKCS1v15"
}

func (a rsaAlg) Sign(t *task.Task, key *PrivateKey, sig []byte) {
	out := &rsa.Text{Buf: sig}
	if a.pss {
		rsa.CreatePSSSign(t, key.Hash, key.RSA, key.SaltSize, out)
		return
	}
	rsa.CreatePKCS1v15Sign(t, key.Hash, key.RSA, out)
}

func (a rsaAlg) SignDigest(t *task.Task, key *PrivateKey, sig []byte) {
	out := &rsa.Text{Buf: sig}
	if a.pss {
		rsa.CreatePSSSignDigest(t, key.Hash, key.RSA, key.SaltSize, out)
		return
	}
	rsa.CreatePKCS1v15SignDigest(t, key.Hash, key.RSA, out)
}

func (a rsaAlg) Verify(t *task.Task, key *PublicKey, signature []byte) {
	if a.pss {
		rsa.CreatePSSVerify(t, key.Hash, key.RSA, key.SaltSize, signature)
		return
	}
	rsa.CreatePKCS1v15Verify(t, key.Hash, key.RSA, signature)
}

func (a rsaAlg) VerifyDigest(t *task.Task, key *PublicKey, signature []byte) {
	if a.pss {
		rsa.CreatePSSVerifyDigest(t, key.Hash, key.RSA, key.SaltSize, signature)
		return
	}
	rsa.CreatePKCS1v15VerifyDigest(t, key.Hash, key.RSA, signature)
}

// PublicKey copies the public half; no engine work is needed.
func (a rsaAlg) PublicKey(t *task.Task, key *PrivateKey, pub *PublicKey) {
	if key.RSA == nil || key.RSA.N == nil || key.RSA.E == nil {
		t.MarkFinal(status.ErrInvalidArg)
		return
	}
	t.Configure(task.Actions{Run: func(t *task.Task) {
		pub.Def, pub.Hash, pub.SaltSize = a, key.Hash, key.SaltSize
		pub.RSA = key.RSA.Public()
		t.Complete()
	}})
}

func (rsaAlg) OperandSize(key *PrivateKey) int {
	if key.RSA == nil {
		return 0
	}
	return key.RSA.Size()
}

func (rsaAlg) Components() int { return 1 }

func (a rsaAlg) SignWorkmemSize(key *PrivateKey) int {
	if key.RSA == nil {
		return 0
	}
	if a.pss {
		return rsa.PSSWorkmemSize(key.Hash, key.RSA)
	}
	return rsa.PKCS1v15SigWorkmemSize(key.Hash, key.RSA)
}

func (a rsaAlg) VerifyWorkmemSize(key *PublicKey) int {
	if a.pss {
		return rsa.PSSWorkmemSize(key.Hash, key.RSA)
	}
	return rsa.PKCS1v15SigWorkmemSize(key.Hash, key.RSA)
}

// isolatedAlg signs with a key slot of the engine. Its public keys are
// ordinary P-256 keys and verify with ECDSA.
type isolatedAlg struct{}

func (isolatedAlg) Name() string { return "ECDSA-isolated" }

func (isolatedAlg) Sign(t *task.Task, key *PrivateKey, sig []byte) {
	ecc.CreateIsolatedSign(t, key.Hash, key.IK, sig)
}

func (isolatedAlg) SignDigest(t *task.Task, key *PrivateKey, sig []byte) {
	ecc.CreateIsolatedSignDigest(t, key.Hash, key.IK, sig)
}

func (isolatedAlg) Verify(t *task.Task, key *PublicKey, signature []byte) {
	ECDSA.Verify(t, key, signature)
}

func (isolatedAlg) VerifyDigest(t *task.Task, key *PublicKey, signature []byte) {
	ECDSA.VerifyDigest(t, key, signature)
}

func (isolatedAlg) PublicKey(t *task.Task, key *PrivateKey, pub *PublicKey) {
	pub.Def, pub.Hash = ECDSA, key.Hash
	pub.EC = &ecc.PublicKey{}
	ecc.CreateIsolatedPublicKey(t, key.IK, pub.EC)
}

func (isolatedAlg) OperandSize(*PrivateKey) int { return ecc.IsolatedCurve.OpSize }
func (isolatedAlg) Components() int             { return 2 }

func (isolatedAlg) SignWorkmemSize(key *PrivateKey) int {
	return ecc.IsolatedSignWorkmemSize(key.Hash)
}

func (isolatedAlg) VerifyWorkmemSize(key *PublicKey) int {
	return ecc.VerifyWorkmemSize(key.Hash)
}
