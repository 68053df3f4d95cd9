package rsakeygen

import (
	"crypto"
	"crypto/rand"
	stdrsa "crypto/rsa"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

var f4 = []byte{0x01, 0x00, 0x01}

func runTask(tk *task.Task) status.Code {
	tk.Run()
	return tk.Wait()
}

func bytesOf(v *big.Int, size int) []byte {
	return v.FillBytes(make([]byte, size))
}

// prime returns a prime of bits bits with the top two bits set and
// gcd(p-1, 65537) = 1.
func prime(t *testing.T, bits int) *big.Int {
	t.Helper()
	e := big.NewInt(65537)
	for {
		p, err := rand.Prime(rand.Reader, bits)
		require.NoError(t, err)
		pm1 := new(big.Int).Sub(p, big.NewInt(1))
		if new(big.Int).GCD(nil, nil, pm1, e).Cmp(big.NewInt(1)) == 0 {
			return p
		}
	}
}

func TestCheckPQAcceptsPrimes(t *testing.T) {
	for _, size := range []int{32, 128, 192} {
		p := bytesOf(prime(t, 8*size), size)
		q := bytesOf(prime(t, 8*size), size)

		tk := task.New(make([]byte, CheckPQWorkmemSize(size)))
		CreateCheckPQ(tk, f4, p, nil)
		assert.Equal(t, status.OK, runTask(tk), "p of %d bytes", size)

		CreateCheckPQ(tk, f4, p, q)
		assert.Equal(t, status.OK, runTask(tk), "q of %d bytes", size)
	}
}

func TestRangeRejectsDoNotChargeAttempts(t *testing.T) {
	g := &generatePQ{limit: 3}
	assert.False(t, g.reject(status.ErrRSAPQRangeCheckFail))
	assert.False(t, g.reject(status.ErrRSAPQRangeCheckFail))
	assert.False(t, g.reject(status.ErrCompositeValue))
	assert.Equal(t, 1, g.attempts)
	assert.Equal(t, 2, g.rangeRejects)

	assert.False(t, g.reject(status.ErrNotInvertible))
	assert.True(t, g.reject(status.ErrCompositeValue), "attempt bound")
	assert.True(t, g.reject(status.ErrRSAPQRangeCheckFail), "range bound")
}

func TestCheckPQRejections(t *testing.T) {
	const size = 32
	p := prime(t, 8*size)

	bound := new(big.Int).SetBytes(append(append([]byte(nil), sqrt2Bound...), make([]byte, size-8)...))
	var composite *big.Int
	for composite == nil || composite.Cmp(bound) < 0 || composite.BitLen() != 8*size {
		composite = new(big.Int).Mul(prime(t, 4*size), prime(t, 4*size))
	}
	multipleOf3 := new(big.Int).Set(p)
	multipleOf3.Sub(multipleOf3, new(big.Int).Mod(p, big.NewInt(3)))
	if multipleOf3.Bit(0) == 0 {
		multipleOf3.Add(multipleOf3, big.NewInt(3))
	}
	small := new(big.Int).Lsh(big.NewInt(0xB5), 8*size-8)
	small.SetBit(small, 0, 1)
	near := new(big.Int).Add(p, big.NewInt(2))

	tests := []struct {
		name string
		p, q []byte
		want status.Code
	}{
		{"composite", bytesOf(composite, size), nil, status.ErrCompositeValue},
		{"small factor", bytesOf(multipleOf3, size), nil, status.ErrCompositeValue},
		{"below sqrt2 bound", bytesOf(small, size), nil, status.ErrRSAPQRangeCheckFail},
		{"q close to p", bytesOf(p, size), bytesOf(near, size), status.ErrRSAPQRangeCheckFail},
		{"even", bytesOf(new(big.Int).Sub(p, big.NewInt(1)), size), nil, status.ErrCompositeValue},
		{"top bit clear", bytesOf(new(big.Int).Rsh(p, 1), size), nil, status.ErrRSAPQRangeCheckFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := task.New(make([]byte, CheckPQWorkmemSize(size)))
			CreateCheckPQ(tk, f4, tt.p, tt.q)
			assert.Equal(t, tt.want, runTask(tk))
		})
	}
}

func TestCheckPQCommonFactorWithE(t *testing.T) {
	// p = 2*e*k + 1 shares the factor e with p - 1.
	const size = 32
	e := big.NewInt(65537)
	var p *big.Int
	for {
		k, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 8*size-17))
		require.NoError(t, err)
		k.SetBit(k, 8*size-18, 1)
		k.SetBit(k, 8*size-19, 1)
		p = new(big.Int).Mul(k, e)
		p.Lsh(p, 1).Add(p, big.NewInt(1))
		if p.BitLen() == 8*size && p.ProbablyPrime(20) {
			break
		}
	}
	tk := task.New(make([]byte, CheckPQWorkmemSize(size)))
	CreateCheckPQ(tk, f4, bytesOf(p, size), nil)
	assert.Equal(t, status.ErrNotInvertible, runTask(tk))
}

func TestCheckPQArguments(t *testing.T) {
	p := make([]byte, 32)
	p[0], p[31] = 0xC0, 1
	tests := []struct {
		name string
		e, p []byte
		want status.Code
	}{
		{"short candidate", f4, p[:12], status.ErrInputBufferTooSmall},
		{"short exponent", []byte{0x01, 0x01}, p, status.ErrInputBufferTooSmall},
		{"even exponent", []byte{0x01, 0x00, 0x02}, p, status.ErrInvalidArg},
		{"exponent leading zero", []byte{0x00, 0x01, 0x01}, p, status.ErrInvalidArg},
	}
	for _, tt := range tests {
		tk := task.New(make([]byte, 64))
		CreateCheckPQ(tk, tt.e, tt.p, nil)
		assert.Equal(t, tt.want, tk.Code(), tt.name)
	}

	tk := task.New(make([]byte, 63))
	CreateCheckPQ(tk, f4, p, nil)
	assert.Equal(t, status.ErrWorkmemBufferTooSmall, tk.Code())
}

func TestGeneratePQ(t *testing.T) {
	const keySize = 64
	p, q := make([]byte, keySize/2), make([]byte, keySize/2)
	tk := task.New(make([]byte, GeneratePQWorkmemSize(keySize)))
	CreateGeneratePQ(tk, f4, keySize, p, q)
	require.Equal(t, status.OK, runTask(tk))

	bp, bq := new(big.Int).SetBytes(p), new(big.Int).SetBytes(q)
	assert.True(t, bp.ProbablyPrime(20))
	assert.True(t, bq.ProbablyPrime(20))
	assert.Equal(t, 8*keySize/2, bp.BitLen())
	assert.Equal(t, 8*keySize/2, bq.BitLen())

	diff := new(big.Int).Sub(bp, bq)
	assert.Greater(t, diff.Abs(diff).BitLen(), 8*keySize/2-100)
}

func TestGeneratePQArguments(t *testing.T) {
	tk := task.New(make([]byte, 64))
	CreateGeneratePQ(tk, f4, 63, make([]byte, 31), make([]byte, 31))
	assert.Equal(t, status.ErrInvalidArg, tk.Code())

	CreateGeneratePQ(tk, nil, 64, make([]byte, 32), make([]byte, 32))
	assert.Equal(t, status.ErrInputBufferTooSmall, tk.Code())

	CreateGeneratePQ(tk, f4, 64, make([]byte, 31), make([]byte, 32))
	assert.Equal(t, status.ErrOutputBufferTooSmall, tk.Code())
}

func TestGeneratePrivateKey(t *testing.T) {
	if testing.Short() {
		t.Skip("2048-bit key generation")
	}
	for _, crt := range []bool{false, true} {
		key := &rsa.Key{}
		tk := task.New(make([]byte, GeneratePrivateKeyWorkmemSize(MinKeySize)))
		CreateGeneratePrivateKey(tk, f4, MinKeySize, crt, key)
		require.Equal(t, status.OK, runTask(tk), "crt=%v", crt)

		n := new(big.Int).SetBytes(key.N)
		assert.Equal(t, 2048, n.BitLen())
		assert.Equal(t, f4, key.E)
		assert.Equal(t, crt, key.IsCRT())
		if crt {
			p, q := new(big.Int).SetBytes(key.P), new(big.Int).SetBytes(key.Q)
			assert.Zero(t, new(big.Int).Mul(p, q).Cmp(n))
			assert.True(t, p.ProbablyPrime(4))
			assert.True(t, q.ProbablyPrime(4))
		}

		// The key must interoperate with a standard verifier.
		msg := []byte("generated")
		sig := &rsa.Text{Buf: make([]byte, key.Size())}
		st := task.New(make([]byte, rsa.PKCS1v15SigWorkmemSize(hsm.SHA256, key)))
		rsa.CreatePKCS1v15Sign(st, hsm.SHA256, key, sig)
		st.Consume(msg)
		require.Equal(t, status.OK, runTask(st))

		digest := sha256.Sum256(msg)
		pub := &stdrsa.PublicKey{N: n, E: 65537}
		assert.NoError(t, stdrsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig.Buf[:sig.Len]))
	}
}

func TestGeneratePrivateKeyArguments(t *testing.T) {
	tests := []struct {
		name    string
		e       []byte
		keySize int
		want    status.Code
	}{
		{"small modulus", f4, 128, status.ErrIncompatibleHW},
		{"odd modulus", f4, 257, status.ErrInvalidArg},
		{"exponent too big", append([]byte{1}, make([]byte, 32)...), 256, status.ErrTooBig},
		{"exponent 2^16", []byte{0x01, 0x00, 0x00}, 256, status.ErrInputBufferTooSmall},
		{"exponent 3", []byte{0x03}, 256, status.ErrInputBufferTooSmall},
		{"even exponent", []byte{0x01, 0x00, 0x02}, 256, status.ErrInvalidArg},
	}
	for _, tt := range tests {
		tk := task.New(make([]byte, GeneratePrivateKeyWorkmemSize(tt.keySize)))
		CreateGeneratePrivateKey(tk, tt.e, tt.keySize, false, &rsa.Key{})
		assert.Equal(t, tt.want, tk.Code(), tt.name)
	}

	tk := task.New(make([]byte, 511))
	CreateGeneratePrivateKey(tk, f4, 256, false, &rsa.Key{})
	assert.Equal(t, status.ErrWorkmemBufferTooSmall, tk.Code())
}
