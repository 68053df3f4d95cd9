package arith

import (
	"bytes"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

type constReader byte

func (c constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(c)
	}
	return len(p), nil
}

type seededReader struct{ r *rand.ChaCha8 }

func newSeeded(seed byte) *seededReader {
	var s [32]byte
	s[0] = seed
	return &seededReader{r: rand.NewChaCha8(s)}
}

func (s *seededReader) Read(p []byte) (int, error) { return s.r.Read(p) }

func TestAddSub(t *testing.T) {
	a := []byte{0x00, 0xFF, 0xFF}
	AddWord(a, 1)
	assert.Equal(t, []byte{0x01, 0x00, 0x00}, a)
	SubWord(a, 2)
	assert.Equal(t, []byte{0x00, 0xFF, 0xFE}, a)

	b := []byte{0xFF, 0xFF}
	AddBE(b, []byte{0x02})
	assert.Equal(t, []byte{0x00, 0x01}, b, "addition wraps")

	c := []byte{0x01, 0x00}
	AddBE(c, []byte{0x05, 0x01, 0x01})
	assert.Equal(t, []byte{0x02, 0x01}, c, "longer operand is truncated")

	assert.True(t, IsOne([]byte{0, 0, 1}))
	assert.False(t, IsOne([]byte{1, 0, 1}))
	assert.Equal(t, []byte{0}, TrimLeadingZeros([]byte{0, 0, 0}))
}

func TestRandomInRange(t *testing.T) {
	n := []byte{0x01, 0x00, 0x01}
	out := make([]byte, 3)
	rnd := newSeeded(7)
	limit := new(big.Int).SetBytes(n)
	for range 200 {
		tk := task.New(nil, task.WithRandom(rnd))
		CreateRandomInRange(tk, n, out)
		tk.Run()
		require.Equal(t, status.OK, tk.Wait())
		v := new(big.Int).SetBytes(out)
		require.True(t, v.Sign() > 0 && v.Cmp(limit) < 0, "value %v out of range", v)
	}
}

func TestRandomInRangeRejectsAndRetries(t *testing.T) {
	// 0xFF first draws are rejected for n = 0x81; the reader then yields 0x05
	r := bytes.NewReader([]byte{0xFF, 0xFF, 0x00, 0x05})
	out := make([]byte, 1)
	tk := task.New(nil, task.WithRandom(r))
	CreateRandomInRange(tk, []byte{0x81}, out)
	tk.Run()
	require.Equal(t, status.OK, tk.Wait())
	assert.Equal(t, byte(0x05), out[0])
}

func TestRandomInRangeTooManyAttempts(t *testing.T) {
	out := make([]byte, 1)
	tk := task.New(nil, task.WithRandom(constReader(0xFF)))
	CreateRandomInRange(tk, []byte{0x81}, out)
	tk.Run()
	assert.Equal(t, status.ErrTooManyAttempts, tk.Wait())
}

func TestRandomInRangeInvalid(t *testing.T) {
	for _, n := range [][]byte{{0x02}, {0x10, 0x00}, {0x00, 0x81}, {}} {
		tk := task.New(nil)
		CreateRandomInRange(tk, n, make([]byte, len(n)))
		assert.Equal(t, status.ErrInvalidArg, tk.Code(), "n=%x", n)
	}
}

func checkCoprime(t *testing.T, a, b []byte) status.Code {
	t.Helper()
	tk := task.New(make([]byte, CoprimeWorkmemSize(len(a), len(b))))
	CreateCoprimeCheck(tk, a, b)
	tk.Run()
	return tk.Wait()
}

func TestCoprimeAgainstGCD(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	for i := range 300 {
		a := make([]byte, 1+rnd.IntN(24))
		b := make([]byte, 1+rnd.IntN(24))
		for j := range a {
			a[j] = byte(rnd.Uint32())
		}
		for j := range b {
			b[j] = byte(rnd.Uint32())
		}
		if i%3 == 0 {
			a[len(a)-1] |= 1
		}
		ba, bb := new(big.Int).SetBytes(a), new(big.Int).SetBytes(b)
		want := status.ErrNotInvertible
		if new(big.Int).GCD(nil, nil, ba, bb).Cmp(big.NewInt(1)) == 0 {
			want = status.OK
		}
		require.Equal(t, want, checkCoprime(t, a, b), "a=%x b=%x", a, b)
	}
}

func TestCoprimeEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want status.Code
	}{
		{"one and even", []byte{1}, []byte{0x10, 0x00}, status.OK},
		{"even and one", []byte{0x10, 0x00}, []byte{1}, status.OK},
		{"both even", []byte{4}, []byte{6}, status.ErrNotInvertible},
		{"zero and odd", []byte{0}, []byte{9}, status.ErrNotInvertible},
		{"zero and one", []byte{0}, []byte{1}, status.OK},
		{"same value", []byte{0x0F}, []byte{0x0F}, status.ErrNotInvertible},
		{"leading zeros", []byte{0, 0, 3}, []byte{0, 8}, status.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkCoprime(t, tt.a, tt.b))
		})
	}
}

func TestCoprimeWorkmemTooSmall(t *testing.T) {
	tk := task.New(nil)
	CreateCoprimeCheck(tk, []byte{1, 2, 3, 4}, []byte{3})
	assert.Equal(t, status.ErrWorkmemBufferTooSmall, tk.Code())
}
