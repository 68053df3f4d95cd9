package eddsa

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/cloudflare/circl/dh/x448"
	"github.com/cloudflare/circl/sign/ed448"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.step.sm/crypto/x25519"
	"golang.org/x/crypto/curve25519"

	"github.com/glinharesb/sicrypto/internal/ecc"
	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

func runTask(tk *task.Task) status.Code {
	tk.Run()
	return tk.Wait()
}

func randomKey(t *testing.T, curve *hsm.Curve) *ecc.PrivateKey {
	t.Helper()
	priv := &ecc.PrivateKey{}
	tk := task.New(nil)
	ecc.CreateGeneratePrivateKey(tk, curve, priv)
	require.Equal(t, status.OK, runTask(tk))
	return priv
}

func publicKey(t *testing.T, priv *ecc.PrivateKey) *ecc.PublicKey {
	t.Helper()
	pub := &ecc.PublicKey{}
	tk := task.New(make([]byte, PublicKeyWorkmemSize(priv.Curve)))
	CreatePublicKey(tk, priv, pub)
	require.Equal(t, status.OK, runTask(tk))
	return pub
}

func sign(t *testing.T, s *Scheme, priv *ecc.PrivateKey, msg ...[]byte) []byte {
	t.Helper()
	sig := make([]byte, s.SignatureSize())
	tk := task.New(make([]byte, SignWorkmemSize(s)))
	CreateSign(tk, s, priv, sig)
	for _, m := range msg {
		tk.Consume(m)
	}
	require.Equal(t, status.OK, runTask(tk))
	return sig
}

func verify(s *Scheme, pub *ecc.PublicKey, msg, sig []byte) status.Code {
	tk := task.New(make([]byte, VerifyWorkmemSize(s)))
	CreateVerify(tk, s, pub, sig)
	tk.Consume(msg)
	return runTask(tk)
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestEd25519Vector(t *testing.T) {
	// RFC 8032 section 7.1, TEST 1.
	priv := &ecc.PrivateKey{Curve: hsm.Ed25519, D: mustHex(t, "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")}
	wantPub := mustHex(t, "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a")
	wantSig := mustHex(t, "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b")

	pub := publicKey(t, priv)
	assert.Equal(t, wantPub, pub.X)

	sig := sign(t, Ed25519, priv)
	assert.Equal(t, wantSig, sig)
	assert.Equal(t, status.OK, verify(Ed25519, pub, nil, sig))
}

func TestEd25519MatchesStdlib(t *testing.T) {
	priv := randomKey(t, hsm.Ed25519)
	std := ed25519.NewKeyFromSeed(priv.D)
	msg := []byte("ed25519 over the task engine")

	pub := publicKey(t, priv)
	assert.Equal(t, []byte(std.Public().(ed25519.PublicKey)), pub.X)

	// Consuming the message in pieces gives the same signature.
	sig := sign(t, Ed25519, priv, msg[:7], msg[7:])
	assert.Equal(t, ed25519.Sign(std, msg), sig)

	assert.Equal(t, status.OK, verify(Ed25519, pub, msg, sig))
	assert.Equal(t, status.ErrInvalidSignature, verify(Ed25519, pub, []byte("other"), sig))

	stdSig := ed25519.Sign(std, []byte("from stdlib"))
	assert.Equal(t, status.OK, verify(Ed25519, pub, []byte("from stdlib"), stdSig))
}

func TestEd25519ph(t *testing.T) {
	priv := randomKey(t, hsm.Ed25519)
	std := ed25519.NewKeyFromSeed(priv.D)
	pub := publicKey(t, priv)
	msg := []byte("prehashed message")
	ph := sha512.Sum512(msg)
	opts := &ed25519.Options{Hash: crypto.SHA512}

	want, err := std.Sign(nil, ph[:], opts)
	require.NoError(t, err)

	sig := sign(t, Ed25519ph, priv, msg)
	assert.Equal(t, want, sig)

	digestSig := make([]byte, 64)
	tk := task.New(make([]byte, SignWorkmemSize(Ed25519ph)))
	CreateSignDigest(tk, Ed25519ph, priv, digestSig)
	tk.Consume(ph[:])
	require.Equal(t, status.OK, runTask(tk))
	assert.Equal(t, want, digestSig)

	assert.NoError(t, ed25519.VerifyWithOptions(std.Public().(ed25519.PublicKey), ph[:], sig, opts))
	assert.Equal(t, status.OK, verify(Ed25519ph, pub, msg, sig))

	tk = task.New(make([]byte, VerifyWorkmemSize(Ed25519ph)))
	CreateVerifyDigest(tk, Ed25519ph, pub, sig)
	tk.Consume(ph[:])
	assert.Equal(t, status.OK, runTask(tk))

	// Pure and prehashed signatures are domain separated.
	assert.Equal(t, status.ErrInvalidSignature, verify(Ed25519, pub, msg, sig))
}

func TestEd448MatchesCircl(t *testing.T) {
	priv := randomKey(t, hsm.Ed448)
	require.Len(t, priv.D, ed448.SeedSize)
	ref := ed448.NewKeyFromSeed(priv.D)
	msg := []byte("ed448 over the task engine")

	pub := publicKey(t, priv)
	assert.Equal(t, []byte(ref.Public().(ed448.PublicKey)), pub.X)

	sig := sign(t, Ed448, priv, msg)
	assert.Equal(t, ed448.Sign(ref, msg, ""), sig)
	assert.True(t, ed448.Verify(ref.Public().(ed448.PublicKey), msg, sig, ""))

	assert.Equal(t, status.OK, verify(Ed448, pub, msg, sig))
	sig[0] ^= 1
	assert.Equal(t, status.ErrInvalidSignature, verify(Ed448, pub, msg, sig))
}

func TestVerifyRejects(t *testing.T) {
	priv := randomKey(t, hsm.Ed25519)
	pub := publicKey(t, priv)
	msg := []byte("m")
	sig := sign(t, Ed25519, priv, msg)

	// S >= L is not a canonical scalar.
	bad := append([]byte(nil), sig...)
	for i := 32; i < 64; i++ {
		bad[i] = 0xFF
	}
	assert.Equal(t, status.ErrInvalidSignature, verify(Ed25519, pub, msg, bad))

	tk := task.New(make([]byte, VerifyWorkmemSize(Ed25519)))
	CreateVerify(tk, Ed25519, pub, sig[:63])
	assert.Equal(t, status.ErrInvalidSignature, tk.Code())

	tk = task.New(make([]byte, VerifyWorkmemSize(Ed25519)))
	CreateVerifyDigest(tk, Ed25519, pub, sig)
	assert.Equal(t, status.ErrNotSupported, tk.Code())

	tk = task.New(make([]byte, VerifyWorkmemSize(Ed448)))
	CreateVerify(tk, Ed448, pub, make([]byte, 114))
	assert.Equal(t, status.ErrInvalidArg, tk.Code())
}

func TestSignArguments(t *testing.T) {
	priv := randomKey(t, hsm.Ed25519)
	tests := []struct {
		name string
		s    *Scheme
		key  *ecc.PrivateKey
		sig  []byte
		mem  int
		want status.Code
	}{
		{"curve mismatch", Ed448, priv, make([]byte, 114), SignWorkmemSize(Ed448), status.ErrInvalidArg},
		{"short seed", Ed25519, &ecc.PrivateKey{Curve: hsm.Ed25519, D: make([]byte, 31)}, make([]byte, 64), SignWorkmemSize(Ed25519), status.ErrInvalidArg},
		{"short output", Ed25519, priv, make([]byte, 63), SignWorkmemSize(Ed25519), status.ErrOutputBufferTooSmall},
		{"workmem", Ed25519, priv, make([]byte, 64), SignWorkmemSize(Ed25519) - 1, status.ErrWorkmemBufferTooSmall},
	}
	for _, tt := range tests {
		tk := task.New(make([]byte, tt.mem))
		CreateSign(tk, tt.s, tt.key, tt.sig)
		assert.Equal(t, tt.want, tk.Code(), tt.name)
	}
}

func TestX25519PublicKey(t *testing.T) {
	priv := randomKey(t, hsm.X25519)
	pub := &ecc.PublicKey{}
	tk := task.New(nil)
	CreateX25519PublicKey(tk, priv, pub)
	require.Equal(t, status.OK, runTask(tk))

	want, ok := x25519.PrivateKey(priv.D).Public().(x25519.PublicKey)
	require.True(t, ok)
	assert.Equal(t, []byte(want), pub.X)

	u, err := curve25519.X25519(priv.D, curve25519.Basepoint)
	require.NoError(t, err)
	assert.Equal(t, u, pub.X)

	CreateX25519PublicKey(tk, &ecc.PrivateKey{Curve: hsm.X448, D: make([]byte, 56)}, pub)
	assert.Equal(t, status.ErrInvalidArg, tk.Code())
}

func TestX448PublicKey(t *testing.T) {
	priv := randomKey(t, hsm.X448)
	pub := &ecc.PublicKey{}
	tk := task.New(nil)
	CreateX448PublicKey(tk, priv, pub)
	require.Equal(t, status.OK, runTask(tk))

	var sec, want x448.Key
	copy(sec[:], priv.D)
	x448.KeyGen(&want, &sec)
	assert.Equal(t, want[:], pub.X)
}

func TestKeysFromRandomSeeds(t *testing.T) {
	seed := make([]byte, 32)
	_, err := rand.Read(seed)
	require.NoError(t, err)
	a := publicKey(t, &ecc.PrivateKey{Curve: hsm.Ed25519, D: seed})
	seed[0] ^= 1
	b := publicKey(t, &ecc.PrivateKey{Curve: hsm.Ed25519, D: seed})
	assert.NotEqual(t, a.X, b.X)
}
