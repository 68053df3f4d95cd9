package crypto

import (
	"context"
	"fmt"

	"github.com/glinharesb/sicrypto/internal/hsm"
	"github.com/glinharesb/sicrypto/internal/rsa"
	"github.com/glinharesb/sicrypto/internal/task"
)

// Padding selects the RSA encryption scheme.
type Padding int

const (
	PaddingOAEP Padding = iota + 1
	PaddingPKCS1v15
)

func (p Padding) String() string {
	switch p {
	case PaddingOAEP:
		return "OAEP"
	case PaddingPKCS1v15:
		return "PKCS1v15"
	default:
		return "UNKNOWN"
	}
}

// ParsePadding maps a scheme name to its Padding.
func ParsePadding(s string) (Padding, error) {
	switch s {
	case "", "OAEP":
		return PaddingOAEP, nil
	case "PKCS1v15":
		return PaddingPKCS1v15, nil
	}
	return 0, fmt.Errorf("padding %q: %w", s, ErrUnsupportedAlgorithm)
}

// Encrypt encrypts msg to pub. hash and label are used by OAEP only; a nil
// hash means SHA-256.
func (e *Engine) Encrypt(ctx context.Context, pub *rsa.Key, pad Padding, hash *hsm.HashAlgorithm, label, msg []byte) ([]byte, error) {
	if hash == nil {
		hash = hsm.SHA256
	}
	out := &rsa.Text{Buf: make([]byte, pub.Size())}
	var mem int
	var configure func(t *task.Task)
	switch pad {
	case PaddingOAEP:
		mem = rsa.OAEPEncryptWorkmemSize(hash, pub)
		configure = func(t *task.Task) { rsa.CreateOAEPEncrypt(t, hash, pub, label, out) }
	case PaddingPKCS1v15:
		mem = rsa.PKCS1v15WorkmemSize(pub)
		configure = func(t *task.Task) { rsa.CreatePKCS1v15Encrypt(t, pub, out) }
	default:
		return nil, fmt.Errorf("encrypt: %w", ErrUnsupportedAlgorithm)
	}
	if err := e.exec(ctx, "encrypt", mem, configure, run, msg); err != nil {
		return nil, err
	}
	return out.Buf[:out.Len], nil
}

// Decrypt reverses Encrypt with the private key.
func (e *Engine) Decrypt(ctx context.Context, priv *rsa.Key, pad Padding, hash *hsm.HashAlgorithm, label, ciphertext []byte) ([]byte, error) {
	if hash == nil {
		hash = hsm.SHA256
	}
	out := &rsa.Text{Buf: make([]byte, priv.Size())}
	var mem int
	var configure func(t *task.Task)
	switch pad {
	case PaddingOAEP:
		mem = rsa.OAEPDecryptWorkmemSize(hash, priv)
		configure = func(t *task.Task) { rsa.CreateOAEPDecrypt(t, hash, priv, label, out) }
	case PaddingPKCS1v15:
		mem = rsa.PKCS1v15WorkmemSize(priv)
		configure = func(t *task.Task) { rsa.CreatePKCS1v15Decrypt(t, priv, out) }
	default:
		return nil, fmt.Errorf("decrypt: %w", ErrUnsupportedAlgorithm)
	}
	if err := e.exec(ctx, "decrypt", mem, configure, run, ciphertext); err != nil {
		return nil, err
	}
	return out.Buf[:out.Len], nil
}
