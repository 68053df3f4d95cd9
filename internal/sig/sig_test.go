package sig

import (
	"crypto/rand"
	stdrsa "crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

func runTask(tk *task.Task) status.Code {
	tk.Run()
	return tk.Wait()
}

func eccKey(t *testing.T, curve *hsm.Curve) *ecc.PrivateKey {
	t.Helper()
	k := &ecc.PrivateKey{}
	tk := task.New(nil)
	ecc.CreateGeneratePrivateKey(tk, curve, k)
	require.Equal(t, status.OK, runTask(tk))
	return k
}

func rsaKey(t *testing.T) *rsa.Key {
	t.Helper()
	k, err := stdrsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &rsa.Key{
		N: k.N.Bytes(),
		E: []byte{0x01, 0x00, 0x01},
		D: k.D.Bytes(),
	}
}

func sum(alg *hsm.HashAlgorithm, msg []byte) []byte {
	h := alg.New()
	h.Feed(msg)
	out := make([]byte, alg.DigestSize)
	h.Digest(out)
	return out
}

func TestDispatch(t *testing.T) {
	rk := rsaKey(t)
	keys := []*PrivateKey{
		{Def: ECDSA, Hash: hsm.SHA256, EC: eccKey(t, hsm.P256)},
		{Def: ECDSADeterministic, Hash: hsm.SHA384, EC: eccKey(t, hsm.P384)},
		{Def: Ed25519, EC: eccKey(t, hsm.Ed25519)},
		{Def: Ed25519ph, Hash: hsm.SHA512, EC: eccKey(t, hsm.Ed25519)},
		{Def: Ed448, EC: eccKey(t, hsm.Ed448)},
		{Def: RSAPSS, Hash: hsm.SHA256, SaltSize: 32, RSA: rk},
		{Def: RSAPKCS1v15, Hash: hsm.SHA256, RSA: rk},
		{Def: IsolatedECDSA, Hash: hsm.SHA256, IK: ecc.IsolatedKey{Index: 1}},
	}
	msg := []byte("dispatched through the algorithm interface")

	for _, key := range keys {
		name := key.Def.Name()
		pub := &PublicKey{}
		tk := task.New(make([]byte, 128))
		CreatePublicKey(tk, key, pub)
		require.Equal(t, status.OK, runTask(tk), name)
		require.NotNil(t, pub.Def, name)

		sig := make([]byte, SignatureSize(key))
		tk = task.New(make([]byte, key.Def.SignWorkmemSize(key)))
		CreateSign(tk, key, sig)
		tk.Consume(msg)
		require.Equal(t, status.OK, runTask(tk), name)

		verify := func(data []byte, digest bool) status.Code {
			tk := task.New(make([]byte, pub.Def.VerifyWorkmemSize(pub)))
			if digest {
				CreateVerifyDigest(tk, pub, sig)
			} else {
				CreateVerify(tk, pub, sig)
			}
			tk.Consume(data)
			return runTask(tk)
		}
		assert.Equal(t, status.OK, verify(msg, false), name)
		assert.Equal(t, status.ErrInvalidSignature, verify([]byte("another message"), false), name)

		if key.Hash == nil {
			continue
		}
		h := sum(key.Hash, msg)
		assert.Equal(t, status.OK, verify(h, true), name)

		tk = task.New(make([]byte, key.Def.SignWorkmemSize(key)))
		CreateSignDigest(tk, key, sig)
		tk.Consume(h)
		require.Equal(t, status.OK, runTask(tk), name)
		assert.Equal(t, status.OK, verify(msg, false), name)
	}
}

func TestPureEdDSARejectsDigest(t *testing.T) {
	key := &PrivateKey{Def: Ed25519, EC: eccKey(t, hsm.Ed25519)}
	tk := task.New(make([]byte, key.Def.SignWorkmemSize(key)))
	CreateSignDigest(tk, key, make([]byte, 64))
	assert.Equal(t, status.ErrNotSupported, tk.Code())
}

func TestSignatureSize(t *testing.T) {
	assert.Equal(t, 64, SignatureSize(&PrivateKey{Def: ECDSA, EC: &ecc.PrivateKey{Curve: hsm.P256}}))
	assert.Equal(t, 132, SignatureSize(&PrivateKey{Def: ECDSA, EC: &ecc.PrivateKey{Curve: hsm.P521}}))
	assert.Equal(t, 114, SignatureSize(&PrivateKey{Def: Ed448}))
	assert.Equal(t, 64, SignatureSize(&PrivateKey{Def: IsolatedECDSA}))
	n := make([]byte, 256)
	n[0] = 0x80
	assert.Equal(t, 256, SignatureSize(&PrivateKey{Def: RSAPSS, RSA: &rsa.Key{N: n}}))
}

func TestMismatchedKeyKind(t *testing.T) {
	ed := &PrivateKey{Def: ECDSA, Hash: hsm.SHA256, RSA: &rsa.Key{N: []byte{0xc5}}}
	assert.Zero(t, SignatureSize(ed))
	assert.Zero(t, ECDSA.SignWorkmemSize(ed))

	tk := task.New(nil)
	CreatePublicKey(tk, ed, &PublicKey{})
	assert.Equal(t, status.ErrInvalidArg, tk.Code())

	rk := &PrivateKey{Def: RSAPSS, Hash: hsm.SHA256, EC: &ecc.PrivateKey{Curve: hsm.P256}}
	assert.Zero(t, SignatureSize(rk))
	assert.Zero(t, RSAPSS.SignWorkmemSize(rk))
}

func TestLookup(t *testing.T) {
	for _, a := range All {
		got, ok := Lookup(a.Name())
		assert.True(t, ok)
		assert.Equal(t, a, got)
	}
	_, ok := Lookup("DSA")
	assert.False(t, ok)
}
