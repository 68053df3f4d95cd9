package drbg

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

// refHash is a direct transcription of SP 800-90A 10.1.1 used to check the
// task based implementation.
type refHash struct {
	newHash func() hash.Hash
	seedLen int
	v, c    []byte
	counter uint64
}

func (r *refHash) df(input ...[]byte) []byte {
	var out []byte
	var bitsBuf [4]byte
	binary.BigEndian.PutUint32(bitsBuf[:], uint32(r.seedLen*8))
	for i := byte(1); len(out) < r.seedLen; i++ {
		h := r.newHash()
		h.Write([]byte{i})
		h.Write(bitsBuf[:])
		for _, p := range input {
			h.Write(p)
		}
		out = h.Sum(out)
	}
	return out[:r.seedLen]
}

func (r *refHash) instantiate(seed []byte) {
	r.v = r.df(seed)
	r.c = r.df([]byte{0}, r.v)
	r.counter = 1
}

func (r *refHash) reseed(entropy []byte) {
	r.v = r.df([]byte{1}, r.v, entropy)
	r.c = r.df([]byte{0}, r.v)
	r.counter = 1
}

func (r *refHash) add(vals ...[]byte) {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(r.seedLen*8))
	sum := new(big.Int).SetBytes(r.v)
	for _, v := range vals {
		sum.Add(sum, new(big.Int).SetBytes(v))
	}
	sum.Mod(sum, mod)
	r.v = sum.FillBytes(make([]byte, r.seedLen))
}

func (r *refHash) generate(n int) []byte {
	data := new(big.Int).SetBytes(r.v)
	mod := new(big.Int).Lsh(big.NewInt(1), uint(r.seedLen*8))
	var out []byte
	for len(out) < n {
		h := r.newHash()
		h.Write(data.FillBytes(make([]byte, r.seedLen)))
		out = h.Sum(out)
		data.Add(data, big.NewInt(1)).Mod(data, mod)
	}
	h := r.newHash()
	h.Write([]byte{3})
	h.Write(r.v)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], r.counter)
	r.add(h.Sum(nil), r.c, ctr[:])
	r.counter++
	return out[:n]
}

func seq(n int, start byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = start + byte(i)
	}
	return b
}

func newHashTask(t *testing.T, alg *hsm.HashAlgorithm, seed []byte) *task.Task {
	t.Helper()
	tk := task.New(make([]byte, HashWorkmemSize(alg)))
	CreateHash(tk, alg)
	require.Equal(t, status.Ready, tk.Code())
	tk.Consume(seed)
	tk.Run()
	require.Equal(t, status.Ready, tk.Wait())
	st, ctr := StateOf(tk)
	require.Equal(t, Instantiated, st)
	require.Equal(t, uint64(1), ctr)
	return tk
}

func generate(t *testing.T, tk *task.Task, n int) []byte {
	t.Helper()
	out := make([]byte, n)
	tk.Produce(out)
	require.Equal(t, status.Ready, tk.Wait())
	return out
}

func TestHashDRBGMatchesReference(t *testing.T) {
	tests := []struct {
		alg *hsm.HashAlgorithm
		ref *refHash
	}{
		{hsm.SHA256, &refHash{newHash: sha256.New, seedLen: 55}},
		{hsm.SHA512, &refHash{newHash: sha512.New, seedLen: 111}},
	}
	for _, tt := range tests {
		t.Run(tt.alg.Name, func(t *testing.T) {
			seed := seq(48, 1)
			tk := newHashTask(t, tt.alg, seed)
			tt.ref.instantiate(seed)

			for _, n := range []int{1, 32, 64, 200} {
				assert.Equal(t, tt.ref.generate(n), generate(t, tk, n), "generate %d", n)
			}

			entropy := seq(40, 100)
			tk.Consume(entropy[:10])
			tk.Consume(entropy[10:])
			tk.Run()
			require.Equal(t, status.Ready, tk.Wait())
			tt.ref.reseed(entropy)
			assert.Equal(t, tt.ref.generate(77), generate(t, tk, 77), "after reseed")
		})
	}
}

func TestHashDRBGReseedChangesOutput(t *testing.T) {
	seed := seq(32, 9)
	a := newHashTask(t, hsm.SHA256, seed)
	b := newHashTask(t, hsm.SHA256, seed)

	b.Consume(seq(32, 50))
	b.Run()
	require.Equal(t, status.Ready, b.Wait())

	assert.NotEqual(t, generate(t, a, 32), generate(t, b, 32))
}

func TestHashDRBGZeroLengthRequest(t *testing.T) {
	seed := seq(32, 3)
	tk := newHashTask(t, hsm.SHA256, seed)
	ref := &refHash{newHash: sha256.New, seedLen: 55}
	ref.instantiate(seed)

	tk.Produce(nil)
	require.Equal(t, status.Ready, tk.Wait())
	_, ctr := StateOf(tk)
	assert.Equal(t, uint64(1), ctr, "zero length request leaves state alone")
	assert.Equal(t, ref.generate(16), generate(t, tk, 16))
}

func TestHashDRBGRequestTooLarge(t *testing.T) {
	tk := newHashTask(t, hsm.SHA256, seq(32, 0))
	tk.Produce(make([]byte, MaxRequestSize+1))
	assert.Equal(t, status.ErrInvalidRequestSize, tk.Wait())

	assert.Equal(t, status.Ready, Rearm(tk))
	generate(t, tk, MaxRequestSize)
}

func TestHashDRBGReseedNeeded(t *testing.T) {
	tk := newHashTask(t, hsm.SHA256, seq(32, 0))
	tk.Params().(*hashDRBG).counter = ReseedInterval + 1

	tk.Produce(make([]byte, 8))
	require.Equal(t, status.ErrReseedNeeded, tk.Wait())

	require.Equal(t, status.Ready, Rearm(tk))
	tk.Produce(make([]byte, 8))
	require.Equal(t, status.ErrReseedNeeded, tk.Wait(), "generate keeps failing until reseed")
	require.Equal(t, status.Ready, Rearm(tk))

	tk.Consume(seq(32, 1))
	tk.Run()
	require.Equal(t, status.Ready, tk.Wait())
	_, ctr := StateOf(tk)
	assert.Equal(t, uint64(1), ctr)
	generate(t, tk, 8)
}

func TestHashDRBGReachesReseedBoundary(t *testing.T) {
	tk := newHashTask(t, hsm.SHA256, seq(32, 0))
	tk.Params().(*hashDRBG).counter = ReseedInterval

	tk.Produce(make([]byte, 8))
	require.Equal(t, status.Ready, tk.Wait(), "last generate before the limit")
	_, ctr := StateOf(tk)
	require.Equal(t, ReseedInterval+1, ctr)

	tk.Produce(make([]byte, 8))
	assert.Equal(t, status.ErrReseedNeeded, tk.Wait())
}

func TestHashDRBGEntropyChecks(t *testing.T) {
	tk := task.New(make([]byte, HashWorkmemSize(hsm.SHA256)))
	CreateHash(tk, hsm.SHA256)
	tk.Consume(make([]byte, 31))
	tk.Run()
	assert.Equal(t, status.ErrInputBufferTooSmall, tk.Wait())

	tk = task.New(make([]byte, HashWorkmemSize(hsm.SHA1)))
	CreateHash(tk, hsm.SHA1)
	tk.Consume(make([]byte, 16))
	tk.Run()
	assert.Equal(t, status.Ready, tk.Wait(), "sha-1 needs 128 bits")

	tk = task.New(nil)
	CreateHash(tk, hsm.SHA3_256)
	assert.Equal(t, status.ErrUnsupportedHashAlg, tk.Code())

	tk = task.New(make([]byte, HashWorkmemSize(hsm.SHA256)-1))
	CreateHash(tk, hsm.SHA256)
	assert.Equal(t, status.ErrWorkmemBufferTooSmall, tk.Code())
}

// refCTR transcribes SP 800-90A 10.2.1 without derivation function.
type refCTR struct {
	key, v []byte
}

func (r *refCTR) inc() {
	for i := len(r.v) - 1; i >= 0; i-- {
		r.v[i]++
		if r.v[i] != 0 {
			return
		}
	}
}

func (r *refCTR) update(provided []byte) {
	blk, _ := aes.NewCipher(r.key)
	seedLen := len(r.key) + 16
	var temp []byte
	for len(temp) < seedLen {
		r.inc()
		out := make([]byte, 16)
		blk.Encrypt(out, r.v)
		temp = append(temp, out...)
	}
	temp = temp[:seedLen]
	for i := range provided {
		temp[i] ^= provided[i]
	}
	r.key = temp[:len(r.key)]
	r.v = append([]byte(nil), temp[len(r.key):]...)
}

func (r *refCTR) generate(n int) []byte {
	blk, _ := aes.NewCipher(r.key)
	var out []byte
	for len(out) < n {
		r.inc()
		b := make([]byte, 16)
		blk.Encrypt(b, r.v)
		out = append(out, b...)
	}
	r.update(nil)
	return out[:n]
}

func TestCTRDRBGMatchesReference(t *testing.T) {
	for _, keySize := range []int{16, 24, 32} {
		seed := seq(keySize+16, byte(keySize))
		tk := task.New(make([]byte, CTRWorkmemSize(keySize)))
		CreateCTR(tk, keySize)
		tk.Consume(seed)
		tk.Run()
		require.Equal(t, status.Ready, tk.Wait())

		ref := &refCTR{key: make([]byte, keySize), v: make([]byte, 16)}
		ref.update(seed)

		for _, n := range []int{5, 16, 255, 256, 700} {
			assert.Equal(t, ref.generate(n), generate(t, tk, n), "key %d generate %d", keySize, n)
		}

		entropy := seq(keySize+16, 0x40)
		tk.Consume(entropy)
		tk.Run()
		require.Equal(t, status.Ready, tk.Wait())
		ref.update(entropy)
		assert.Equal(t, ref.generate(40), generate(t, tk, 40), "key %d after reseed", keySize)
	}
}

func TestCTRDRBGEntropyMustMatchSeedLength(t *testing.T) {
	tests := []struct {
		n    int
		want status.Code
	}{
		{31, status.ErrInputBufferTooSmall},
		{33, status.ErrTooBig},
		{32, status.Ready},
	}
	for _, tt := range tests {
		tk := task.New(make([]byte, CTRWorkmemSize(16)))
		CreateCTR(tk, 16)
		tk.Consume(make([]byte, tt.n))
		tk.Run()
		assert.Equal(t, tt.want, tk.Wait(), "entropy %d", tt.n)
	}

	tk := task.New(make([]byte, 64))
	CreateCTR(tk, 20)
	assert.Equal(t, status.ErrInvalidArg, tk.Code())
}

func TestCTRDRBGReseedNeeded(t *testing.T) {
	tk := task.New(make([]byte, CTRWorkmemSize(32)))
	CreateCTR(tk, 32)
	tk.Consume(seq(48, 0))
	tk.Run()
	require.Equal(t, status.Ready, tk.Wait())

	tk.Params().(*ctrDRBG).counter = ReseedInterval + 1
	tk.Produce(make([]byte, 16))
	assert.Equal(t, status.ErrReseedNeeded, tk.Wait())
	assert.True(t, bytes.Equal(tk.Params().(*ctrDRBG).key, tk.Workmem()[:32]))
}

func TestCTRDRBGReachesReseedBoundary(t *testing.T) {
	tk := task.New(make([]byte, CTRWorkmemSize(16)))
	CreateCTR(tk, 16)
	tk.Consume(seq(32, 0))
	tk.Run()
	require.Equal(t, status.Ready, tk.Wait())
	tk.Params().(*ctrDRBG).counter = ReseedInterval

	tk.Produce(make([]byte, 40))
	require.Equal(t, status.Ready, tk.Wait(), "last generate before the limit")
	_, ctr := StateOf(tk)
	require.Equal(t, ReseedInterval+1, ctr)

	tk.Produce(make([]byte, 40))
	require.Equal(t, status.ErrReseedNeeded, tk.Wait())

	require.Equal(t, status.Ready, Rearm(tk))
	tk.Consume(seq(32, 7))
	tk.Run()
	require.Equal(t, status.Ready, tk.Wait())
	tk.Produce(make([]byte, 40))
	assert.Equal(t, status.Ready, tk.Wait())
}

func BenchmarkHashDRBGGenerate(b *testing.B) {
	tk := task.New(make([]byte, HashWorkmemSize(hsm.SHA256)))
	CreateHash(tk, hsm.SHA256)
	tk.Consume(make([]byte, 32))
	tk.Run()
	tk.Wait()
	out := make([]byte, 64)
	for b.Loop() {
		tk.Produce(out)
		tk.Wait()
	}
}
