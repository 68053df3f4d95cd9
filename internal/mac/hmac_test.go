package mac

import (
	stdhmac "crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"testing"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

func tag(t *testing.T, alg *hsm.HashAlgorithm, key []byte, msg ...[]byte) []byte {
	t.Helper()
	tk := task.New(make([]byte, WorkmemSize(alg)))
	CreateHMAC(tk, alg, key)
	for _, m := range msg {
		tk.Consume(m)
	}
	out := make([]byte, alg.DigestSize)
	tk.Produce(out)
	if got := tk.Wait(); got != status.OK {
		t.Fatalf("Wait = %v", got)
	}
	return out
}

func TestHMACVectors(t *testing.T) {
	tests := []struct {
		name string
		alg  *hsm.HashAlgorithm
		key  string
		msg  string
		want string
	}{
		{
			name: "sha256 quick brown fox",
			alg:  hsm.SHA256,
			key:  "key",
			msg:  "The quick brown fox jumps over the lazy dog",
			want: "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8",
		},
		{
			name: "sha1 quick brown fox",
			alg:  hsm.SHA1,
			key:  "key",
			msg:  "The quick brown fox jumps over the lazy dog",
			want: "de7c9b85b8b78aa6bc8a7a36f70a90701c9db4d9",
		},
		{
			name: "rfc4231 case 2",
			alg:  hsm.SHA256,
			key:  "Jefe",
			msg:  "what do ya want for nothing?",
			want: "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := hex.EncodeToString(tag(t, tt.alg, []byte(tt.key), []byte(tt.msg)))
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHMACMatchesStdlib(t *testing.T) {
	algs := []struct {
		alg *hsm.HashAlgorithm
		fn  func() hash.Hash
	}{
		{hsm.SHA1, sha1.New},
		{hsm.SHA256, sha256.New},
		{hsm.SHA384, sha512.New384},
		{hsm.SHA512, sha512.New},
	}
	msg := []byte("streamed in two parts")
	for _, a := range algs {
		for _, keyLen := range []int{0, 1, a.alg.BlockSize, a.alg.BlockSize + 1, 3 * a.alg.BlockSize} {
			key := make([]byte, keyLen)
			for i := range key {
				key[i] = byte(i * 7)
			}
			m := stdhmac.New(a.fn, key)
			m.Write(msg)
			want := m.Sum(nil)
			got := tag(t, a.alg, key, msg[:8], msg[8:])
			if !stdhmac.Equal(got, want) {
				t.Errorf("%s key %d: got %x, want %x", a.alg, keyLen, got, want)
			}
		}
	}
}

func TestHMACWorkmemTooSmall(t *testing.T) {
	tk := task.New(make([]byte, WorkmemSize(hsm.SHA256)-1))
	CreateHMAC(tk, hsm.SHA256, []byte("k"))
	if got := tk.Wait(); got != status.ErrWorkmemBufferTooSmall {
		t.Fatalf("Wait = %v", got)
	}
}

func TestHMACOutputTooSmall(t *testing.T) {
	tk := task.New(make([]byte, WorkmemSize(hsm.SHA256)))
	CreateHMAC(tk, hsm.SHA256, []byte("k"))
	tk.Consume([]byte("m"))
	tk.Produce(make([]byte, 16))
	if got := tk.Wait(); got != status.ErrOutputBufferTooSmall {
		t.Fatalf("Wait = %v", got)
	}
}
