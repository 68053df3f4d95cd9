// Package sig dispatches signature operations over every algorithm the
// engine supports. A key refers to its Algorithm, so callers can sign and
// verify without knowing which scheme the key uses.
package sig

import (
	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/task"
)

// Algorithm is the set of operations of one signature scheme. Each create
// method configures t the way the scheme's own package does; signatures
// are written to sig as fixed size big-endian components (r || s for
// ECDSA, R || S for EdDSA, s for RSA).
type Algorithm interface {
	Name() string
	Sign(t *task.Task, key *PrivateKey, sig []byte)
	SignDigest(t *task.Task, key *PrivateKey, sig []byte)
	Verify(t *task.Task, key *PublicKey, signature []byte)
	VerifyDigest(t *task.Task, key *PublicKey, signature []byte)
	// PublicKey derives the public key of key into pub.
	PublicKey(t *task.Task, key *PrivateKey, pub *PublicKey)
	// OperandSize is the size of one signature component.
	OperandSize(key *PrivateKey) int
	// Components is the number of operands in a signature.
	Components() int
	SignWorkmemSize(key *PrivateKey) int
	VerifyWorkmemSize(key *PublicKey) int
}

// PrivateKey is a signing key of any algorithm. Only the field matching
// Def is used.
type PrivateKey struct {
	Def  Algorithm
	Hash *hsm.HashAlgorithm
	// SaltSize is the RSA-PSS salt length.
	SaltSize int

	RSA *rsa.Key
	EC  *ecc.PrivateKey
	IK  ecc.IsolatedKey
}

// PublicKey is a verification key of any algorithm.
type PublicKey struct {
	Def      Algorithm
	Hash     *hsm.HashAlgorithm
	SaltSize int

	RSA *rsa.Key
	EC  *ecc.PublicKey
}

// SignatureSize returns the encoded size of a signature made with key.
func SignatureSize(key *PrivateKey) int {
	return key.Def.Components() * key.Def.OperandSize(key)
}

// CreateSign configures t to sign the consumed message with key.
func CreateSign(t *task.Task, key *PrivateKey, sig []byte) {
	key.Def.Sign(t, key, sig)
}

// CreateSignDigest configures t to sign a consumed digest with key.
func CreateSignDigest(t *task.Task, key *PrivateKey, sig []byte) {
	key.Def.SignDigest(t, key, sig)
}

// CreateVerify configures t to check signature over the consumed message.
func CreateVerify(t *task.Task, key *PublicKey, signature []byte) {
	key.Def.Verify(t, key, signature)
}

// CreateVerifyDigest configures t to check signature over a consumed
// digest.
func CreateVerifyDigest(t *task.Task, key *PublicKey, signature []byte) {
	key.Def.VerifyDigest(t, key, signature)
}

// CreatePublicKey configures t to derive the public key of key.
func CreatePublicKey(t *task.Task, key *PrivateKey, pub *PublicKey) {
	key.Def.PublicKey(t, key, pub)
}

// Lookup returns the algorithm with the given name.
func Lookup(name string) (Algorithm, bool) {
	for _, a := range All {
		if a.Name() == name {
			return a, true
		}
	}
	return nil, false
}

// All lists every algorithm.
var All = []Algorithm{ECDSA, ECDSADeterministic, Ed25519, Ed25519ph, Ed448, RSAPSS, RSAPKCS1v15, IsolatedECDSA}
