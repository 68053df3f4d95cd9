package kdf

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"io"
	"testing"

	xhkdf "golang.org/x/crypto/hkdf"
	xpbkdf2 "golang.org/x/crypto/pbkdf2"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/status"
	"github.com/glinharesb/sicrypto/internal/task"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func runHKDF(t *testing.T, alg *hsm.HashAlgorithm, ikm, salt, info []byte, n int) ([]byte, status.Code) {
	t.Helper()
	tk := task.New(make([]byte, HKDFWorkmemSize(alg)))
	CreateHKDF(tk, alg, salt, info)
	tk.Consume(ikm)
	out := make([]byte, n)
	tk.Produce(out)
	return out, tk.Wait()
}

func TestHKDFRFC5869Case1(t *testing.T) {
	ikm := bytes.Repeat([]byte{0x0b}, 22)
	salt := mustHex(t, "000102030405060708090a0b0c")
	info := mustHex(t, "f0f1f2f3f4f5f6f7f8f9")
	want := "3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865"

	got, code := runHKDF(t, hsm.SHA256, ikm, salt, info, 42)
	if code != status.OK {
		t.Fatalf("Wait = %v", code)
	}
	if hex.EncodeToString(got) != want {
		t.Fatalf("okm = %x, want %s", got, want)
	}
}

func TestHKDFMatchesXCrypto(t *testing.T) {
	ikm := []byte("input keying material")
	info := []byte("context")
	for _, n := range []int{0, 1, 32, 33, 100, 255 * 32} {
		got, code := runHKDF(t, hsm.SHA256, ikm, nil, info, n)
		if code != status.OK {
			t.Fatalf("len %d: Wait = %v", n, code)
		}
		want := make([]byte, n)
		if _, err := io.ReadFull(xhkdf.New(sha256.New, ikm, nil, info), want); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("len %d mismatch", n)
		}
	}
}

func TestHKDFLimits(t *testing.T) {
	if _, code := runHKDF(t, hsm.SHA256, []byte("k"), nil, nil, 255*32+1); code != status.ErrTooBig {
		t.Fatalf("long output: %v", code)
	}
	if _, code := runHKDF(t, hsm.SHA256, []byte("k"), make([]byte, 33), nil, 16); code != status.ErrTooBig {
		t.Fatalf("long salt: %v", code)
	}
	tk := task.New(make([]byte, HKDFWorkmemSize(hsm.SHA256)-1))
	CreateHKDF(tk, hsm.SHA256, nil, nil)
	if tk.Code() != status.ErrWorkmemBufferTooSmall {
		t.Fatalf("small workmem: %v", tk.Code())
	}
}

func runPBKDF2(t *testing.T, alg *hsm.HashAlgorithm, password, salt []byte, iter, n int) []byte {
	t.Helper()
	tk := task.New(make([]byte, PBKDF2WorkmemSize(alg)))
	CreatePBKDF2(tk, alg, password, salt, iter)
	out := make([]byte, n)
	tk.Produce(out)
	if code := tk.Wait(); code != status.OK {
		t.Fatalf("Wait = %v", code)
	}
	return out
}

func TestPBKDF2RFC6070(t *testing.T) {
	tests := []struct {
		iter int
		want string
	}{
		{1, "0c60c80f961f0e71f3a9b524af6012062fe037a6"},
		{2, "ea6c014dc72d6f8ccd1ed92ace1d41f0d8de8957"},
		{4096, "4b007901b765489abead49d926f721d065a429c1"},
	}
	for _, tt := range tests {
		got := runPBKDF2(t, hsm.SHA1, []byte("password"), []byte("salt"), tt.iter, 20)
		if hex.EncodeToString(got) != tt.want {
			t.Errorf("c=%d: got %x, want %s", tt.iter, got, tt.want)
		}
	}
}

func TestPBKDF2MatchesXCrypto(t *testing.T) {
	longPassword := bytes.Repeat([]byte("p"), 200)
	tests := []struct {
		alg      *hsm.HashAlgorithm
		password []byte
		n        int
	}{
		{hsm.SHA256, []byte("secret"), 50},
		{hsm.SHA512, longPassword, 64},
		{hsm.SHA1, longPassword, 45},
	}
	for _, tt := range tests {
		got := runPBKDF2(t, tt.alg, tt.password, []byte("NaCl"), 3, tt.n)
		var want []byte
		switch tt.alg {
		case hsm.SHA256:
			want = xpbkdf2.Key(tt.password, []byte("NaCl"), 3, tt.n, sha256.New)
		case hsm.SHA512:
			want = xpbkdf2.Key(tt.password, []byte("NaCl"), 3, tt.n, sha512.New)
		default:
			want = xpbkdf2.Key(tt.password, []byte("NaCl"), 3, tt.n, sha1.New)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("%s: got %x, want %x", tt.alg, got, want)
		}
	}
}

func TestPBKDF2InvalidIterations(t *testing.T) {
	tk := task.New(make([]byte, PBKDF2WorkmemSize(hsm.SHA256)))
	CreatePBKDF2(tk, hsm.SHA256, []byte("p"), []byte("s"), 0)
	if got := tk.Wait(); got != status.ErrInvalidArg {
		t.Fatalf("Wait = %v", got)
	}
}
